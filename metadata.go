package trackplay

import (
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageLines = 256
	MaxNameLength   = 24
	UnnamedName     = "<unnamed>"
	UnknownText     = "Unknown"
)

// SanitizeName trims a name for display. Empty names become UnnamedName and
// names longer than MaxNameLength runes are cut with an ellipsis.
func SanitizeName(name string) string {
	name = strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 || r == utf8.RuneError {
			return ' '
		}
		return r
	}, name))
	if name == "" {
		return UnnamedName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		runes := []rune(name)
		return string(runes[:MaxNameLength-1]) + "…"
	}
	return name
}

// SplitMessage splits a free text message into lines, dropping carriage
// returns and empty lines. At most MaxMessageLines lines are returned.
func SplitMessage(message string) []string {
	var ret []string
	for _, line := range strings.Split(message, "\n") {
		line = strings.TrimRight(strings.ReplaceAll(line, "\r", ""), " \t")
		if strings.TrimSpace(line) == "" {
			continue
		}
		ret = append(ret, line)
		if len(ret) == MaxMessageLines {
			break
		}
	}
	return ret
}

// Finalize fills in the fallbacks for missing metadata: the title falls back
// to the base name of path, the artist and the tracker to UnknownText, and the
// instrument names to the sample names if the module has no instruments. All
// names are sanitized.
func (m *Metadata) Finalize(path string) {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		m.Title = filepath.Base(path)
	}
	if m.Artist = strings.TrimSpace(m.Artist); m.Artist == "" {
		m.Artist = UnknownText
	}
	if m.Tracker = strings.TrimSpace(m.Tracker); m.Tracker == "" {
		m.Tracker = UnknownText
	}
	for i, n := range m.InstrumentNames {
		m.InstrumentNames[i] = SanitizeName(n)
	}
	for i, n := range m.SampleNames {
		m.SampleNames[i] = SanitizeName(n)
	}
	if len(m.InstrumentNames) == 0 && len(m.SampleNames) > 0 {
		m.InstrumentNames = append([]string(nil), m.SampleNames...)
	}
	if len(m.Message) > MaxMessageLines {
		m.Message = m.Message[:MaxMessageLines]
	}
}
