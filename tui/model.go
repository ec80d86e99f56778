// Package tui implements the terminal front end of the player.
package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
	"github.com/vsariola/trackplay/tracker"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type tickMsg time.Time

// Model is the bubbletea model of the player. It never touches the decoder
// itself: it renders the snapshots of the player and sends it commands.
type Model struct {
	player *tracker.Player
	broker *tracker.Broker
	config tracker.Config
	meta   trackplay.Metadata
	format trackplay.ExportFormat

	state       tracker.TransportState
	styles      styles
	theme       string
	channelPage int
	showInfo    bool
	exporting   bool
	status      string // export progress or result, replaces the help line
	err         error
	quitting    bool
	width       int
	height      int
}

const (
	volumeStep = 0.05
	rowStep    = 8
	tickPeriod = 50 * time.Millisecond
	// how long quitting waits for a running export
	exportQuitTimeout = 30 * time.Second
)

var titleCaser = cases.Title(language.English)

// NewModel creates a Model for a started player. config is saved on quit
// with the last volume and theme.
func NewModel(p *tracker.Player, b *tracker.Broker, config tracker.Config) Model {
	format, err := config.ExportFormat()
	if err != nil {
		format = trackplay.FormatWAV
	}
	return Model{
		player: p,
		broker: b,
		config: config,
		meta:   p.Metadata(),
		format: format,
		state:  p.Snapshot(),
		styles: newStyles(config.Theme),
		theme:  config.Theme,
		width:  80,
		height: 24,
	}
}

// Init starts the tick timer and requests the terminal size.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), tea.WindowSize())
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickPeriod, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles key presses, ticks and window resizes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m.handleKey(msg)
		if m.quitting {
			m.waitForExport()
			m.saveConfig()
			return m, tea.Quit
		}
		m.state = m.player.Snapshot()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.channelPage = min(m.channelPage, m.numPages()-1)

	case tickMsg:
		m.player.ExecuteAll(m.broker.ToPlayer)
		m.drainProgress()
		m.state = m.player.Snapshot()
		if m.state.Finished && !m.exporting {
			m.quitting = true
			m.saveConfig()
			return m, tea.Quit
		}
		return m, tickCmd()
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
	case " ":
		m.player.TogglePause()
	case "left", "h":
		m.player.JumpToOrder(-1)
	case "right", "l":
		m.player.JumpToOrder(1)
	case "[":
		m.player.JumpRows(-rowStep)
	case "]":
		m.player.JumpRows(rowStep)
	case "d", "pgdown":
		m.channelPage = min(m.channelPage+1, m.numPages()-1)
	case "u", "pgup":
		m.channelPage = max(m.channelPage-1, 0)
	case "e":
		m.player.SetEffect(m.player.Effect().Next(1))
	case "E":
		m.player.SetEffect(m.player.Effect().Next(-1))
	case "+", "=":
		m.player.SetVolume(m.player.Volume() + volumeStep)
	case "-":
		m.player.SetVolume(m.player.Volume() - volumeStep)
	case "n":
		m.showInfo = !m.showInfo
	case "t":
		m.theme = nextTheme(m.theme)
		m.styles = newStyles(m.theme)
	case "x":
		m.startExport()
	}
}

func (m *Model) startExport() {
	if m.exporting {
		return
	}
	m.exporting = true
	m.status = "Exporting..."
	m.player.ExportAsync(m.broker, tracker.ExportOptions{Format: m.format})
}

func (m *Model) drainProgress() {
	for {
		select {
		case p := <-m.broker.Progress:
			m.applyProgress(p)
		default:
			return
		}
	}
}

func (m *Model) applyProgress(p tracker.ExportProgress) {
	switch {
	case p.Finished && p.Err != nil:
		m.exporting = false
		m.err = p.Err
		m.status = ""
	case p.Finished:
		m.exporting = false
		m.err = nil
		m.status = "Exported " + p.Path
	case p.Total > 0:
		m.status = fmt.Sprintf("Exporting %s %3d%%", p.Path, p.Done*100/p.Total)
	}
}

// waitForExport blocks until a running export has finished, so that quitting
// does not leave a partial file behind.
func (m *Model) waitForExport() {
	for m.exporting {
		p, ok := tracker.TimeoutReceive(m.broker.Progress, exportQuitTimeout)
		if !ok {
			logrus.WithField("function", "waitForExport").Warn("Export did not finish in time")
			return
		}
		m.applyProgress(p)
	}
}

func (m *Model) saveConfig() {
	if m.config.Path == "" {
		return
	}
	m.config.Volume = m.player.Volume()
	m.config.Theme = m.theme
	if err := m.config.Save(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "saveConfig",
			"path":     m.config.Path,
			"error":    err,
		}).Warn("Could not save config")
	}
}

// effectName returns the effect as shown to the user, e.g. "Bass Boost".
func effectName(e tracker.Effect) string {
	return titleCaser.String(e.String())
}
