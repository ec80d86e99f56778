package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/vsariola/trackplay/tracker"
)

// Palette of the player. Both themes use the standard ANSI colors so they
// follow the terminal's own color scheme.
type palette struct {
	border, title, text, dim, accent, playing, cursor lipgloss.TerminalColor
	specLow, specMid, specHigh                        lipgloss.TerminalColor
	vu, wave, err                                     lipgloss.TerminalColor
}

var palettes = map[string]palette{
	tracker.ThemeDark: {
		border:   lipgloss.ANSIColor(8),
		title:    lipgloss.ANSIColor(10),
		text:     lipgloss.ANSIColor(7),
		dim:      lipgloss.ANSIColor(8),
		accent:   lipgloss.ANSIColor(11),
		playing:  lipgloss.ANSIColor(10),
		cursor:   lipgloss.ANSIColor(4),
		specLow:  lipgloss.ANSIColor(10),
		specMid:  lipgloss.ANSIColor(11),
		specHigh: lipgloss.ANSIColor(9),
		vu:       lipgloss.ANSIColor(2),
		wave:     lipgloss.ANSIColor(6),
		err:      lipgloss.ANSIColor(9),
	},
	tracker.ThemeLight: {
		border:   lipgloss.ANSIColor(7),
		title:    lipgloss.ANSIColor(4),
		text:     lipgloss.ANSIColor(0),
		dim:      lipgloss.ANSIColor(8),
		accent:   lipgloss.ANSIColor(5),
		playing:  lipgloss.ANSIColor(2),
		cursor:   lipgloss.ANSIColor(14),
		specLow:  lipgloss.ANSIColor(2),
		specMid:  lipgloss.ANSIColor(3),
		specHigh: lipgloss.ANSIColor(1),
		vu:       lipgloss.ANSIColor(2),
		wave:     lipgloss.ANSIColor(4),
		err:      lipgloss.ANSIColor(1),
	},
}

type styles struct {
	frame, title, text, dim, label, accent, status lipgloss.Style
	rowCursor, rowNumber, cell                     lipgloss.Style
	specLow, specMid, specHigh, vu, wave, err      lipgloss.Style
}

func newStyles(theme string) styles {
	p, ok := palettes[theme]
	if !ok {
		p = palettes[tracker.ThemeDark]
	}
	return styles{
		frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.border).
			Padding(0, 1),
		title:  lipgloss.NewStyle().Foreground(p.title).Bold(true),
		text:   lipgloss.NewStyle().Foreground(p.text),
		dim:    lipgloss.NewStyle().Foreground(p.dim),
		label:  lipgloss.NewStyle().Foreground(p.text).Bold(true),
		accent: lipgloss.NewStyle().Foreground(p.accent),
		status: lipgloss.NewStyle().Foreground(p.playing).Bold(true),
		rowCursor: lipgloss.NewStyle().
			Background(p.cursor).
			Foreground(lipgloss.ANSIColor(15)).
			Bold(true),
		rowNumber: lipgloss.NewStyle().Foreground(p.accent),
		cell:      lipgloss.NewStyle().Foreground(p.text),
		specLow:   lipgloss.NewStyle().Foreground(p.specLow),
		specMid:   lipgloss.NewStyle().Foreground(p.specMid),
		specHigh:  lipgloss.NewStyle().Foreground(p.specHigh),
		vu:        lipgloss.NewStyle().Foreground(p.vu),
		wave:      lipgloss.NewStyle().Foreground(p.wave),
		err:       lipgloss.NewStyle().Foreground(p.err),
	}
}

func nextTheme(theme string) string {
	if theme == tracker.ThemeLight {
		return tracker.ThemeDark
	}
	return tracker.ThemeLight
}
