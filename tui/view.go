package tui

import (
	"fmt"
	"strings"
)

const (
	cellWidth      = 13 // "C-4 01 40 A0F"
	rowLabelWidth  = 3
	frameOverhead  = 4 // border and padding
	vuWidth        = 6
	spectrumHeight = 3
	barWidth       = 2
	fixedLines     = 15 // everything but the pattern grid
	minGridRows    = 3
)

// Unicode block elements for bar heights, 9 levels including space
var barBlocks = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

const helpText = "spc pause  ←→ order  [] rows  d/u channels  e/E fx  +/- vol  n info  t theme  x export  q quit"

// View renders the whole screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	sections := []string{
		m.renderTitle(),
		m.renderPosition(),
		m.renderStatus(),
		"",
		m.renderChannelNames(),
		m.renderVU(),
	}
	if m.showInfo {
		sections = append(sections, m.renderInfo(m.gridRows()+1)...)
	} else {
		sections = append(sections, m.renderGrid(m.gridRows())...)
	}
	sections = append(sections, "")
	sections = append(sections, m.renderSpectrum()...)
	sections = append(sections, m.renderWaveform(), m.renderFooter())
	return m.styles.frame.Render(strings.Join(sections, "\n"))
}

func (m Model) renderTitle() string {
	return m.styles.title.Render("TRACKPLAY") + "  " + m.styles.accent.Render(m.meta.Title)
}

func (m Model) renderPosition() string {
	s := m.state
	return m.styles.text.Render(fmt.Sprintf("Order %02d/%02d  Pattern %02d  Row %02d  Speed %d  %s / %s",
		s.Order, max(m.meta.NumOrders-1, 0), max(s.Pattern, 0), s.Row, s.Speed,
		formatTime(s.Seconds), formatTime(m.meta.Duration)))
}

func (m Model) renderStatus() string {
	s := m.state
	play := m.styles.status.Render("▶ Playing")
	if s.Paused {
		play = m.styles.accent.Render("⏸ Paused ")
	}
	first, last := m.pageChannels()
	return fmt.Sprintf("%s  %s %3.0f%%  %s %s  %s %s  %s",
		play,
		m.styles.label.Render("Vol"), s.Volume*100,
		m.styles.label.Render("Out"), m.styles.vu.Render(vuBar(s.Master.Fraction(0), vuWidth)+" "+vuBar(s.Master.Fraction(1), vuWidth)),
		m.styles.label.Render("FX"), effectName(s.Effect),
		m.styles.dim.Render(fmt.Sprintf("ch %d-%d/%d", first+1, last, len(s.Channels))))
}

func (m Model) renderChannelNames() string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", rowLabelWidth))
	first, last := m.pageChannels()
	for ch := first; ch < last; ch++ {
		c := m.state.Channels[ch]
		name := fmt.Sprintf("%d", ch+1)
		style := m.styles.dim
		if c.Instrument >= 0 {
			name += " " + c.InstrumentName
			style = m.styles.accent
		}
		b.WriteString(style.Render(fit(name, cellWidth)))
		b.WriteString(" ")
	}
	return b.String()
}

func (m Model) renderVU() string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", rowLabelWidth))
	first, last := m.pageChannels()
	for ch := first; ch < last; ch++ {
		c := m.state.Channels[ch]
		b.WriteString(m.styles.vu.Render(vuBar(c.VULeft, vuWidth) + " " + vuBar(c.VURight, vuWidth)))
		b.WriteString(" ")
	}
	return b.String()
}

// renderGrid shows the playing row followed by the rows that come next.
func (m Model) renderGrid(rows int) []string {
	first, last := m.pageChannels()
	lines := make([]string, 0, rows)
	current := make([]string, len(m.state.Channels))
	for i, c := range m.state.Channels {
		current[i] = c.Line
	}
	lines = append(lines, m.styles.rowCursor.Render(gridLine(m.state.Row, current, first, last)))
	for _, p := range m.state.Preview {
		if len(lines) >= rows {
			break
		}
		line := gridLine(p.Row, p.Channels, first, last)
		if p.Row == 0 {
			lines = append(lines, m.styles.rowNumber.Render(line))
		} else {
			lines = append(lines, m.styles.cell.Render(line))
		}
	}
	for len(lines) < rows {
		lines = append(lines, "")
	}
	return lines
}

func gridLine(row int, cells []string, first, last int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%02d ", row)
	for ch := first; ch < last && ch < len(cells); ch++ {
		b.WriteString(fit(cells[ch], cellWidth))
		b.WriteString(" ")
	}
	return b.String()
}

// renderInfo is the overlay shown instead of the grid: the module metadata
// and its message.
func (m Model) renderInfo(rows int) []string {
	meta := m.meta
	lines := []string{
		m.styles.label.Render("Title    ") + meta.Title,
		m.styles.label.Render("Artist   ") + meta.Artist,
		m.styles.label.Render("Tracker  ") + meta.Tracker,
		m.styles.label.Render("Type     ") + meta.Type,
		m.styles.label.Render("Date     ") + meta.Date,
		m.styles.label.Render("Contents ") + fmt.Sprintf("%d channels, %d instruments, %d samples, %d patterns, %d orders",
			meta.NumChannels, meta.NumInstruments, meta.NumSamples, meta.NumPatterns, meta.NumOrders),
		m.styles.label.Render("Duration ") + formatTime(meta.Duration),
	}
	if len(meta.Message) > 0 {
		lines = append(lines, "")
		for _, l := range meta.Message {
			lines = append(lines, m.styles.dim.Render(l))
		}
	} else if len(meta.InstrumentNames) > 0 {
		lines = append(lines, "")
		for i, name := range meta.InstrumentNames {
			lines = append(lines, m.styles.dim.Render(fmt.Sprintf("%02X %s", i+1, name)))
		}
	}
	if len(lines) > rows {
		lines = lines[:rows]
	}
	for len(lines) < rows {
		lines = append(lines, "")
	}
	return lines
}

func (m Model) renderSpectrum() []string {
	rows := spectrumRows(m.state.Spectrum, spectrumHeight)
	for i, r := range rows {
		switch {
		case i == 0:
			rows[i] = m.styles.specHigh.Render(r)
		case i == len(rows)-1:
			rows[i] = m.styles.specLow.Render(r)
		default:
			rows[i] = m.styles.specMid.Render(r)
		}
	}
	return rows
}

func (m Model) renderWaveform() string {
	return m.styles.wave.Render(waveLine(m.state.WaveformLeft, m.state.WaveformRight, m.innerWidth()))
}

func (m Model) renderFooter() string {
	if m.err != nil {
		return m.styles.err.Render("ERR: " + m.err.Error())
	}
	if m.state.Err != "" {
		return m.styles.err.Render("ERR: " + m.state.Err)
	}
	if m.status != "" {
		return m.styles.accent.Render(m.status)
	}
	return m.styles.dim.Render(fit(helpText, m.innerWidth()))
}

func (m Model) innerWidth() int {
	return max(m.width-frameOverhead, cellWidth+rowLabelWidth)
}

func (m Model) gridRows() int {
	return max(m.height-fixedLines, minGridRows)
}

func (m Model) channelsPerPage() int {
	return max((m.innerWidth()-rowLabelWidth)/(cellWidth+1), 1)
}

func (m Model) numPages() int {
	n := len(m.state.Channels)
	per := m.channelsPerPage()
	return max((n+per-1)/per, 1)
}

// pageChannels returns the channels shown on the current page as a half-open
// range.
func (m Model) pageChannels() (first, last int) {
	per := m.channelsPerPage()
	first = min(m.channelPage*per, len(m.state.Channels))
	last = min(first+per, len(m.state.Channels))
	return first, last
}

// vuBar draws a level in [0, 1] as a bar of width characters.
func vuBar(level float32, width int) string {
	n := int(level*float32(width) + 0.5)
	n = max(0, min(n, width))
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}

// spectrumRows draws the bands as vertical bars, top row first.
func spectrumRows(bands []float32, height int) []string {
	rows := make([]string, height)
	for r := range rows {
		var b strings.Builder
		level := float32(height - 1 - r)
		for _, v := range bands {
			fill := max(0, min(v, 1))*float32(height) - level
			block := barBlocks[0]
			switch {
			case fill >= 1:
				block = barBlocks[len(barBlocks)-1]
			case fill > 0:
				block = barBlocks[int(fill*float32(len(barBlocks)-1))]
			}
			b.WriteString(strings.Repeat(block, barWidth))
			b.WriteString(" ")
		}
		rows[r] = b.String()
	}
	return rows
}

// waveLine draws the mono mix of the waveform as one line of block elements,
// silence being the middle level.
func waveLine(left, right []float32, width int) string {
	n := min(len(left), len(right))
	if n == 0 || width <= 0 {
		return strings.Repeat(barBlocks[len(barBlocks)/2], max(width, 0))
	}
	var b strings.Builder
	for i := 0; i < width; i++ {
		j := i * n / width
		v := (left[j] + right[j]) / 2
		v = max(-1, min(v, 1))
		b.WriteString(barBlocks[int((v+1)/2*float32(len(barBlocks)-1)+0.5)])
	}
	return b.String()
}

// fit truncates or pads s to exactly width runes.
func fit(s string, width int) string {
	r := []rune(s)
	if len(r) > width {
		return string(r[:width])
	}
	return s + strings.Repeat(" ", width-len(r))
}

func formatTime(seconds float64) string {
	total := int(max(seconds, 0))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
