package tracker_test

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/vsariola/trackplay"
	"github.com/vsariola/trackplay/tracker"
)

type fakeDecoder struct {
	*testLayout
	pos       trackplay.Position
	remaining int // frames left; negative means endless
	value     float32
	vu        [][2]float32
	err       error
	seeks     int
	rate      int // 44100 when zero
}

func newFakeDecoder(orders []int, rows []int, frames int) *fakeDecoder {
	return &fakeDecoder{
		testLayout: &testLayout{orders: orders, rows: rows},
		remaining:  frames,
		value:      0.5,
		vu:         make([][2]float32, 2),
	}
}

func (d *fakeDecoder) Render(buf trackplay.AudioBuffer) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	n := len(buf)
	if d.remaining >= 0 {
		n = min(n, d.remaining)
		d.remaining -= n
	}
	if n == 0 {
		return 0, io.EOF
	}
	for i := range buf[:n] {
		buf[i] = [2]float32{d.value, d.value}
	}
	d.pos.Seconds += float64(n) / float64(d.SampleRate())
	return n, nil
}

func (d *fakeDecoder) SampleRate() int {
	if d.rate == 0 {
		return 44100
	}
	return d.rate
}

func (d *fakeDecoder) Position() trackplay.Position { return d.pos }
func (d *fakeDecoder) NumChannels() int             { return len(d.vu) }

func (d *fakeDecoder) SetOrderRow(order, row int) error {
	d.seeks++
	d.pos.Order, d.pos.Row = order, row
	d.pos.Pattern = d.OrderPattern(order)
	return nil
}

func (d *fakeDecoder) SetSeconds(s float64) error {
	d.pos.Seconds = s
	return nil
}

func (d *fakeDecoder) ChannelVU(ch int) (float32, float32) { return d.vu[ch][0], d.vu[ch][1] }

// FormatCell puts the channel number + 1 in the instrument column.
func (d *fakeDecoder) FormatCell(pattern, row, ch int) (string, error) {
	if pattern < 0 || row >= d.PatternRows(pattern) {
		return "", errors.New("out of range")
	}
	return fmt.Sprintf("C-4 %02X .. ...", ch+1), nil
}

func (d *fakeDecoder) Metadata() trackplay.Metadata {
	return trackplay.Metadata{
		Title:           "test",
		NumChannels:     len(d.vu),
		InstrumentNames: []string{"Bass", "Lead"},
		Duration:        1,
	}
}

type fakeOutput struct {
	mu      sync.Mutex
	samples []float32
	starts  int
	stops   int
	closed  bool
}

func (o *fakeOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts++
	return nil
}

func (o *fakeOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stops++
	return nil
}

func (o *fakeOutput) WriteAudio(buf []float32) error {
	o.mu.Lock()
	o.samples = append(o.samples, buf...)
	o.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil
}

func (o *fakeOutput) Close() error {
	o.closed = true
	return nil
}

func (o *fakeOutput) written() []float32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float32(nil), o.samples...)
}

func (o *fakeOutput) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.starts, o.stops
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func smallConfig() tracker.PlayerConfig {
	c := tracker.DefaultPlayerConfig()
	c.BufferFrames = 64
	c.SpectrumWindow = 256
	c.WaveformSize = 32
	return c
}

func TestPlayerInitialState(t *testing.T) {
	d := newFakeDecoder([]int{0, 1}, []int{64, 64}, 0)
	p := tracker.NewPlayer(d, &fakeOutput{}, smallConfig())
	s := p.Snapshot()
	if s.Order != 0 || s.Row != 0 || s.Finished || s.Paused {
		t.Fatalf("unexpected initial state %+v", s)
	}
	if len(s.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(s.Channels))
	}
	if len(s.Preview) != 32 {
		t.Fatalf("got %d preview rows, want 32", len(s.Preview))
	}
	if s.Preview[0].Row != 1 || s.Preview[31].Row != 32 {
		t.Fatalf("preview covers rows %d..%d, want 1..32", s.Preview[0].Row, s.Preview[31].Row)
	}
	if s.Volume != 1 || s.Effect != tracker.EffectNone {
		t.Fatalf("volume %v effect %v", s.Volume, s.Effect)
	}
}

func TestPlayerPreviewCrossesOrders(t *testing.T) {
	d := newFakeDecoder([]int{0, -1, 1}, []int{8, 64}, 0)
	d.SetOrderRow(0, 4)
	p := tracker.NewPlayer(d, nil, smallConfig())
	s := p.Snapshot()
	if len(s.Preview) != 32 {
		t.Fatalf("got %d preview rows, want 32", len(s.Preview))
	}
	// rows 5..7 of order 0, then order 1 is skipped and order 2 starts at 0
	if s.Preview[2].Order != 0 || s.Preview[2].Row != 7 {
		t.Fatalf("preview[2] = %+v", s.Preview[2])
	}
	if s.Preview[3].Order != 2 || s.Preview[3].Pattern != 1 || s.Preview[3].Row != 0 {
		t.Fatalf("preview[3] = %+v", s.Preview[3])
	}
}

func TestPlayerPlaysUntilFinished(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, 200)
	out := &fakeOutput{}
	p := tracker.NewPlayer(d, out, smallConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "finished", func() bool { return p.Snapshot().Finished })
	p.Stop()
	p.Stop()
	if got := len(out.written()); got != 400 {
		t.Fatalf("wrote %d samples, want 400", got)
	}
	if s := p.Snapshot(); !s.Finished {
		t.Fatal("finished flag cleared by Stop")
	}
	if err := p.Err(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if starts, stops := out.counts(); starts != 1 || stops != 1 {
		t.Fatalf("starts %d stops %d, want 1 and 1", starts, stops)
	}
}

func TestPlayerDecoderError(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, -1)
	d.err = errors.New("broken")
	p := tracker.NewPlayer(d, &fakeOutput{}, smallConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "finished", func() bool { return p.Snapshot().Finished })
	p.Stop()
	if p.Err() == nil || p.Snapshot().Err == "" {
		t.Fatal("decoder error was not recorded")
	}
}

func TestPlayerStartWithoutOutput(t *testing.T) {
	p := tracker.NewPlayer(newFakeDecoder([]int{0}, []int{64}, 0), nil, smallConfig())
	if err := p.Start(); !errors.Is(err, trackplay.ErrNoOutput) {
		t.Fatalf("Start() = %v, want ErrNoOutput", err)
	}
}

func TestPlayerJumpToOrder(t *testing.T) {
	d := newFakeDecoder([]int{0, 1, 0, 1}, []int{64, 64}, 0)
	p := tracker.NewPlayer(d, nil, smallConfig())
	for _, c := range []struct{ delta, want int }{{1, 1}, {10, 3}, {-1, 2}, {-10, 0}} {
		p.JumpToOrder(c.delta)
		if s := p.Snapshot(); s.Order != c.want || s.Row != 0 {
			t.Fatalf("JumpToOrder(%d): order %d row %d, want %d 0", c.delta, s.Order, s.Row, c.want)
		}
	}
}

func TestPlayerJumpRows(t *testing.T) {
	d := newFakeDecoder([]int{0, 1}, []int{64, 64}, 0)
	d.SetOrderRow(0, 60)
	p := tracker.NewPlayer(d, nil, smallConfig())
	seeks := d.seeks
	p.JumpRows(0)
	if d.seeks != seeks {
		t.Fatal("JumpRows(0) seeked")
	}
	p.JumpRows(8)
	if s := p.Snapshot(); s.Order != 1 || s.Row != 4 {
		t.Fatalf("JumpRows(8): %d/%d, want 1/4", s.Order, s.Row)
	}
	p.JumpRows(-8)
	if s := p.Snapshot(); s.Order != 0 || s.Row != 60 {
		t.Fatalf("JumpRows(-8): %d/%d, want 0/60", s.Order, s.Row)
	}
}

func TestPlayerVolume(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, 64)
	out := &fakeOutput{}
	p := tracker.NewPlayer(d, out, smallConfig())
	p.SetVolume(2)
	if v := p.Volume(); v != 1 {
		t.Fatalf("volume %v, want 1", v)
	}
	p.SetVolume(-1)
	if v := p.Volume(); v != 0 {
		t.Fatalf("volume %v, want 0", v)
	}
	p.SetVolume(0.5)
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "finished", func() bool { return p.Snapshot().Finished })
	p.Stop()
	for i, v := range out.written() {
		if v != 0.25 {
			t.Fatalf("sample %d = %v, want 0.25", i, v)
		}
	}
}

func TestPlayerInstrumentActivity(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, 0)
	d.vu[1] = [2]float32{0.5, 0.2}
	p := tracker.NewPlayer(d, nil, smallConfig())
	s := p.Snapshot()
	if s.Channels[0].Instrument != -1 {
		t.Fatalf("silent channel has instrument %d", s.Channels[0].Instrument)
	}
	ch := s.Channels[1]
	if ch.Instrument != 1 || ch.InstrumentName != "Lead" {
		t.Fatalf("channel 1 instrument %d %q, want 1 Lead", ch.Instrument, ch.InstrumentName)
	}
	if ch.VULeft != 0.5 || ch.Line != "C-4 02 .. ..." {
		t.Fatalf("channel 1 status %+v", ch)
	}
}

func TestPlayerPause(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, -1)
	out := &fakeOutput{}
	p := tracker.NewPlayer(d, out, smallConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "audio", func() bool { return len(out.written()) > 0 })
	p.TogglePause()
	waitFor(t, "output stop", func() bool { _, stops := out.counts(); return stops == 1 })
	if !p.Snapshot().Paused {
		t.Fatal("not paused")
	}
	n := len(out.written())
	time.Sleep(20 * time.Millisecond)
	if len(out.written()) != n {
		t.Fatal("audio written while paused")
	}
	p.TogglePause()
	waitFor(t, "output restart", func() bool { starts, _ := out.counts(); return starts == 2 })
	waitFor(t, "more audio", func() bool { return len(out.written()) > n })
	p.Stop()
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !out.closed {
		t.Fatal("output not closed")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, 0)
	p := tracker.NewPlayer(d, nil, smallConfig())
	s := p.Snapshot()
	s.Channels[0].Line = "changed"
	s.Preview[0].Channels[0] = "changed"
	again := p.Snapshot()
	if again.Channels[0].Line == "changed" || again.Preview[0].Channels[0] == "changed" {
		t.Fatal("snapshot shares memory with the player")
	}
}

func TestPlayerPauseSilencesMeters(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, -1)
	d.vu[1] = [2]float32{0.5, 0.2}
	out := &fakeOutput{}
	p := tracker.NewPlayer(d, out, smallConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	waitFor(t, "audio", func() bool { return len(out.written()) > 0 })
	if s := p.Snapshot(); s.Channels[1].VULeft != 0.5 || s.Channels[1].VURight != 0.2 {
		t.Fatalf("VU while playing %+v", s.Channels[1])
	}
	p.TogglePause()
	waitFor(t, "silent meters", func() bool {
		s := p.Snapshot()
		for _, ch := range s.Channels {
			if ch.VULeft != 0 || ch.VURight != 0 {
				return false
			}
		}
		return s.Master == tracker.Volume{tracker.MeterMinDB, tracker.MeterMinDB}
	})
	time.Sleep(10 * time.Millisecond)
	for i, ch := range p.Snapshot().Channels {
		if ch.VULeft != 0 || ch.VURight != 0 {
			t.Fatalf("channel %d VU %v %v while paused", i, ch.VULeft, ch.VURight)
		}
	}
}

func TestPlayerFinishedUntilRestart(t *testing.T) {
	d := newFakeDecoder([]int{0}, []int{64}, 128)
	out := &fakeOutput{}
	p := tracker.NewPlayer(d, out, smallConfig())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "finished", func() bool { return p.Snapshot().Finished })
	// the player is still running, so Start does nothing
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if !p.Snapshot().Finished {
		t.Fatal("finished flag cleared without a restart")
	}
	p.Stop()
	if !p.Snapshot().Finished {
		t.Fatal("finished flag cleared by Stop")
	}
	d.remaining = -1
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if p.Snapshot().Finished {
		t.Fatal("finished flag kept after a restart")
	}
	n := len(out.written())
	waitFor(t, "more audio", func() bool { return len(out.written()) > n })
	if p.Snapshot().Finished {
		t.Fatal("finished while the decoder still renders")
	}
	if starts, _ := out.counts(); starts != 2 {
		t.Fatalf("output started %d times, want 2", starts)
	}
}

func TestPlayerFirstBuffer48k(t *testing.T) {
	d := newFakeDecoder([]int{0, 1}, []int{64, 64}, -1)
	d.rate = 48000
	out := &fakeOutput{}
	c := tracker.DefaultPlayerConfig()
	c.BufferFrames = 1024
	p := tracker.NewPlayer(d, out, c)
	if p.SampleRate() != 48000 {
		t.Fatalf("sample rate %d, want 48000", p.SampleRate())
	}
	if p.Volume() != 1 || p.Effect() != tracker.EffectNone {
		t.Fatalf("volume %v effect %v", p.Volume(), p.Effect())
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	waitFor(t, "first buffer", func() bool { return len(out.written()) >= 2048 })
	s := p.Snapshot()
	if s.Order != 0 || s.Finished {
		t.Fatalf("after the first buffer: order %d finished %v", s.Order, s.Finished)
	}
	samples := out.written()
	if len(samples)%2048 != 0 {
		t.Fatalf("wrote %d samples, want whole buffers of 2048", len(samples))
	}
	for i, v := range samples[:2048] {
		if v != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}
