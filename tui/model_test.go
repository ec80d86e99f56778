package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/vsariola/trackplay"
	"github.com/vsariola/trackplay/tracker"
)

type fakeDecoder struct {
	orders   []int
	rows     []int
	channels int
	pos      trackplay.Position
}

func (d *fakeDecoder) NumOrders() int { return len(d.orders) }

func (d *fakeDecoder) OrderPattern(order int) int {
	if order < 0 || order >= len(d.orders) {
		return -1
	}
	return d.orders[order]
}

func (d *fakeDecoder) PatternRows(pattern int) int {
	if pattern < 0 || pattern >= len(d.rows) {
		return 0
	}
	return d.rows[pattern]
}

func (d *fakeDecoder) Render(buf trackplay.AudioBuffer) (int, error) {
	clear(buf)
	return len(buf), nil
}

func (d *fakeDecoder) SampleRate() int              { return 44100 }
func (d *fakeDecoder) Position() trackplay.Position { return d.pos }
func (d *fakeDecoder) NumChannels() int             { return d.channels }

func (d *fakeDecoder) SetOrderRow(order, row int) error {
	d.pos.Order, d.pos.Row, d.pos.Pattern = order, row, d.OrderPattern(order)
	return nil
}

func (d *fakeDecoder) SetSeconds(s float64) error {
	d.pos.Seconds = s
	return nil
}

func (d *fakeDecoder) ChannelVU(ch int) (float32, float32) { return 0, 0 }

func (d *fakeDecoder) FormatCell(pattern, row, ch int) (string, error) {
	if row >= d.PatternRows(pattern) {
		return "", errors.New("out of range")
	}
	return fmt.Sprintf("C-4 %02X .. ...", ch+1), nil
}

func (d *fakeDecoder) Metadata() trackplay.Metadata {
	return trackplay.Metadata{
		Title:           "Fake Song",
		NumChannels:     d.channels,
		NumOrders:       len(d.orders),
		InstrumentNames: []string{"Bass"},
		Duration:        75,
	}
}

func newTestModel(channels int) Model {
	d := &fakeDecoder{orders: []int{0, 1, 0}, rows: []int{16, 16}, channels: channels}
	p := tracker.NewPlayer(d, nil, tracker.DefaultPlayerConfig())
	return NewModel(p, tracker.NewBroker(), tracker.DefaultConfig())
}

func press(m Model, keys ...tea.KeyMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(k)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysControlPlayer(t *testing.T) {
	m := newTestModel(4)
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyRight})
	if m.state.Order != 1 || m.state.Row != 0 {
		t.Fatalf("after right: order %d row %d", m.state.Order, m.state.Row)
	}
	m, _ = press(m, runes("]"))
	if m.state.Order != 1 || m.state.Row != rowStep {
		t.Fatalf("after ]: order %d row %d", m.state.Order, m.state.Row)
	}
	m, _ = press(m, runes("]"), runes("]"))
	if m.state.Order != 2 || m.state.Row != rowStep {
		t.Fatalf("rows did not cross into the next order: order %d row %d", m.state.Order, m.state.Row)
	}
	m, _ = press(m, runes("h"), runes("h"), runes("h"))
	if m.state.Order != 0 {
		t.Fatalf("order should clamp to 0, got %d", m.state.Order)
	}
	m, _ = press(m, runes(" "))
	if !m.state.Paused {
		t.Fatal("space should pause")
	}
	m, _ = press(m, runes("-"), runes("-"))
	if v := m.state.Volume; v < 0.89 || v > 0.91 {
		t.Fatalf("volume %v, want 0.9", v)
	}
	m, _ = press(m, runes("+"), runes("+"), runes("+"))
	if m.state.Volume != 1 {
		t.Fatalf("volume %v, want it clamped to 1", m.state.Volume)
	}
	m, _ = press(m, runes("e"), runes("e"))
	if m.state.Effect != tracker.EffectEcho {
		t.Fatalf("effect %v, want echo", m.state.Effect)
	}
	m, _ = press(m, runes("E"), runes("E"), runes("E"))
	if m.state.Effect != tracker.EffectChorus {
		t.Fatalf("effect %v, want chorus", m.state.Effect)
	}
}

func TestThemeAndInfo(t *testing.T) {
	m := newTestModel(2)
	m, _ = press(m, runes("t"))
	if m.theme != tracker.ThemeLight {
		t.Fatalf("theme %q, want light", m.theme)
	}
	m, _ = press(m, runes("t"), runes("n"))
	if m.theme != tracker.ThemeDark || !m.showInfo {
		t.Fatalf("theme %q info %v", m.theme, m.showInfo)
	}
	if v := m.View(); !strings.Contains(v, "Duration") || !strings.Contains(v, "1:15") {
		t.Fatalf("info overlay missing metadata:\n%s", v)
	}
}

func TestQuit(t *testing.T) {
	m := newTestModel(2)
	m, cmd := press(m, runes("q"))
	if !m.quitting || cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
	if m.View() != "" {
		t.Fatal("view should be empty after quitting")
	}
}

func TestChannelPaging(t *testing.T) {
	m := newTestModel(8)
	if per := m.channelsPerPage(); per != 5 {
		t.Fatalf("channelsPerPage = %d, want 5 at width 80", per)
	}
	m, _ = press(m, runes("d"), runes("d"))
	if m.channelPage != 1 {
		t.Fatalf("page %d, want 1", m.channelPage)
	}
	if first, last := m.pageChannels(); first != 5 || last != 8 {
		t.Fatalf("page channels %d-%d", first, last)
	}
	next, _ := m.Update(tea.WindowSizeMsg{Width: 200, Height: 40})
	m = next.(Model)
	if m.channelPage != 0 {
		t.Fatalf("page %d after widening, want 0", m.channelPage)
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyPgUp})
	if m.channelPage != 0 {
		t.Fatal("page went below 0")
	}
}

func TestTickExecutesCommands(t *testing.T) {
	m := newTestModel(2)
	m.broker.ToPlayer <- tracker.Command{Kind: tracker.CommandJumpOrder, Delta: 2}
	m.broker.Progress <- tracker.ExportProgress{Path: "song.wav", Done: 50, Total: 200}
	next, cmd := m.Update(tickMsg{})
	m = next.(Model)
	if cmd == nil || m.quitting {
		t.Fatal("tick should keep ticking")
	}
	if m.state.Order != 2 {
		t.Fatalf("order %d, want 2", m.state.Order)
	}
	if m.status != "Exporting song.wav  25%" {
		t.Fatalf("status %q", m.status)
	}
}

func TestApplyProgress(t *testing.T) {
	m := newTestModel(2)
	m.exporting = true
	m.applyProgress(tracker.ExportProgress{Path: "a.wav", Finished: true})
	if m.exporting || m.status != "Exported a.wav" {
		t.Fatalf("exporting %v status %q", m.exporting, m.status)
	}
	m.exporting = true
	m.applyProgress(tracker.ExportProgress{Err: trackplay.ErrExportCancelled, Finished: true})
	if m.exporting || !errors.Is(m.err, trackplay.ErrExportCancelled) {
		t.Fatalf("exporting %v err %v", m.exporting, m.err)
	}
	if !strings.Contains(m.renderFooter(), "export cancelled") {
		t.Fatalf("footer %q", m.renderFooter())
	}
}

func TestViewShowsGrid(t *testing.T) {
	m := newTestModel(2)
	v := m.View()
	for _, want := range []string{"TRACKPLAY", "Fake Song", "00 C-4 01 .. ... C-4 02 .. ...", "01 C-4 01", "Order 00/02"} {
		if !strings.Contains(v, want) {
			t.Fatalf("view does not contain %q:\n%s", want, v)
		}
	}
}

func TestRenderHelpers(t *testing.T) {
	if got := vuBar(0.5, 6); got != "███···" {
		t.Fatalf("vuBar(0.5) = %q", got)
	}
	if got := vuBar(2, 4); got != "████" {
		t.Fatalf("vuBar(2) = %q", got)
	}
	rows := spectrumRows([]float32{1, 0, 0.5}, 2)
	if rows[0] != "██       " || rows[1] != "██    ██ " {
		t.Fatalf("spectrumRows = %q", rows)
	}
	if got := waveLine(nil, nil, 3); got != "▄▄▄" {
		t.Fatalf("waveLine of silence = %q", got)
	}
	if got := waveLine([]float32{-1, 1}, []float32{-1, 1}, 4); got != "  ██" {
		t.Fatalf("waveLine = %q", got)
	}
	if got := fit("abcdef", 3); got != "abc" {
		t.Fatalf("fit = %q", got)
	}
	if got := fit("ab", 4); got != "ab  " {
		t.Fatalf("fit = %q", got)
	}
	if got := formatTime(125.7); got != "2:05" {
		t.Fatalf("formatTime = %q", got)
	}
	if got := effectName(tracker.EffectBassBoost); got != "Bass Boost" {
		t.Fatalf("effectName = %q", got)
	}
}
