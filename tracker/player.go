package tracker

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/viterin/vek/vek32"
	"github.com/vsariola/trackplay"
)

type (
	// Player plays a Decoder through an AudioOutput on its own goroutine and
	// publishes what is being played as a TransportState. The control methods
	// are safe to call from any goroutine.
	Player struct {
		decoder trackplay.Decoder
		output  trackplay.AudioOutput
		config  PlayerConfig
		meta    trackplay.Metadata

		mu           sync.Mutex // guards the fields below
		cond         *sync.Cond
		running      bool
		paused       bool
		stopping     bool
		finished     bool
		outputActive bool
		volume       float64
		effect       Effect
		err          error
		master       Volume
		state        TransportState
		done         chan struct{}

		decoderMu          sync.Mutex // guards decoder and channelInstruments
		channelInstruments []int

		// owned by the playback goroutine
		effects  *Effects
		frames   trackplay.AudioBuffer
		samples  []float32
		spectrum *SpectrumAnalyzer
		waveform *WaveformSampler
		meter    *VolumeAnalyzer
	}

	PlayerConfig struct {
		BufferFrames   int
		SpectrumWindow int
		SpectrumBands  int
		WaveformSize   int
		Volume         float64
		Effect         Effect
		ExportTemplate string // used when ExportOptions.Path is empty
	}

	// TransportState is a snapshot of the playback: where the song is, what
	// each channel is playing and what the output looks like.
	TransportState struct {
		Order         int
		Pattern       int
		Row           int
		Speed         int
		Seconds       float64
		Paused        bool
		Finished      bool
		Volume        float64
		Effect        Effect
		Master        Volume // peak level of the output, in dB
		Err           string
		Channels      []ChannelStatus
		Preview       []PatternRowPreview
		Spectrum      []float32
		WaveformLeft  []float32
		WaveformRight []float32
	}

	ChannelStatus struct {
		Line           string
		VULeft         float32
		VURight        float32
		Instrument     int // 0-based, -1 when no instrument is active
		InstrumentName string
	}

	PatternRowPreview struct {
		Order    int
		Pattern  int
		Row      int
		Channels []string
	}
)

const (
	DefaultBufferFrames = 1024
	previewRows         = 32
	activityThreshold   = 0.01
)

func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		BufferFrames:   DefaultBufferFrames,
		SpectrumWindow: DefaultSpectrumWindow,
		SpectrumBands:  DefaultSpectrumBands,
		WaveformSize:   DefaultWaveformSize,
		Volume:         1,
	}
}

// NewPlayer creates a stopped player. output can be nil for a player that is
// only used for exporting.
func NewPlayer(decoder trackplay.Decoder, output trackplay.AudioOutput, config PlayerConfig) *Player {
	def := DefaultPlayerConfig()
	if config.BufferFrames <= 0 {
		config.BufferFrames = def.BufferFrames
	}
	if config.SpectrumWindow <= 0 {
		config.SpectrumWindow = def.SpectrumWindow
	}
	if config.SpectrumBands <= 0 {
		config.SpectrumBands = def.SpectrumBands
	}
	if config.WaveformSize <= 0 {
		config.WaveformSize = def.WaveformSize
	}
	sr := decoder.SampleRate()
	p := &Player{
		decoder:  decoder,
		output:   output,
		config:   config,
		meta:     decoder.Metadata(),
		volume:   clampVolume(config.Volume),
		effect:   config.Effect,
		effects:  NewEffects(sr),
		frames:   make(trackplay.AudioBuffer, config.BufferFrames),
		samples:  make([]float32, config.BufferFrames*2),
		spectrum: NewSpectrumAnalyzer(sr, config.SpectrumWindow, config.SpectrumBands),
		waveform: NewWaveformSampler(config.WaveformSize),
		meter:    NewPeakMeter(sr),
	}
	p.master = p.meter.Level
	p.cond = sync.NewCond(&p.mu)
	p.refresh()
	return p
}

// Start starts the output device and the playback goroutine. It does nothing
// if the player is already running.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	if p.output == nil {
		return trackplay.ErrNoOutput
	}
	if err := p.output.Start(); err != nil {
		return fmt.Errorf("could not start audio output: %w", err)
	}
	p.running = true
	p.outputActive = true
	p.stopping = false
	p.finished = false
	p.err = nil
	p.state.Finished = false
	p.state.Err = ""
	p.done = make(chan struct{})
	go p.loop(p.done)
	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"title":    p.meta.Title,
	}).Info("Playback started")
	return nil
}

// Stop asks the playback goroutine to exit, waits for it and stops the
// output device. Calling Stop on a stopped player does nothing.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	p.paused = false
	p.state.Paused = false
	done := p.done
	p.cond.Broadcast()
	p.mu.Unlock()
	<-done
	p.mu.Lock()
	if p.outputActive {
		if err := p.output.Stop(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Stop",
				"error":    err,
			}).Warn("Could not stop audio output")
		}
	}
	p.outputActive = false
	p.running = false
	p.mu.Unlock()
	logrus.WithField("function", "Stop").Info("Playback stopped")
}

// Close stops the player and closes the output device.
func (p *Player) Close() error {
	p.Stop()
	if p.output == nil {
		return nil
	}
	return p.output.Close()
}

func (p *Player) TogglePause() {
	p.mu.Lock()
	p.paused = !p.paused
	p.state.Paused = p.paused
	p.cond.Broadcast()
	p.mu.Unlock()
}

func (p *Player) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.state.Paused = paused
	p.cond.Broadcast()
	p.mu.Unlock()
}

// SetVolume sets the output volume, clamped to [0, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = clampVolume(v)
	p.state.Volume = p.volume
	p.mu.Unlock()
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *Player) SetEffect(e Effect) {
	if e < 0 || e >= NumEffects {
		e = EffectNone
	}
	p.mu.Lock()
	p.effect = e
	p.state.Effect = e
	p.mu.Unlock()
}

func (p *Player) Effect() Effect {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effect
}

func (p *Player) Metadata() trackplay.Metadata { return p.meta }

func (p *Player) SampleRate() int { return p.decoder.SampleRate() }

// Snapshot returns a copy of the current transport state that shares no
// memory with the player.
func (p *Player) Snapshot() TransportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.clone()
}

// JumpToOrder moves delta orders from the current one, clamped to the song,
// and starts from the first row of that order.
func (p *Player) JumpToOrder(delta int) {
	p.decoderMu.Lock()
	total := p.decoder.NumOrders()
	if total <= 0 {
		p.decoderMu.Unlock()
		return
	}
	target := max(0, min(p.decoder.Position().Order+delta, total-1))
	err := p.decoder.SetOrderRow(target, 0)
	p.decoderMu.Unlock()
	p.afterSeek("JumpToOrder", SongPos{Order: target}, err)
}

// JumpRows moves delta rows forward or backward across pattern boundaries.
func (p *Player) JumpRows(delta int) {
	if delta == 0 {
		return
	}
	p.decoderMu.Lock()
	if p.decoder.NumOrders() <= 0 {
		p.decoderMu.Unlock()
		return
	}
	pos := p.decoder.Position()
	target := SongPos{Order: pos.Order, Row: pos.Row}.AddRows(p.decoder, delta)
	err := p.decoder.SetOrderRow(target.Order, target.Row)
	p.decoderMu.Unlock()
	p.afterSeek("JumpRows", target, err)
}

func (p *Player) afterSeek(function string, target SongPos, err error) {
	fields := logrus.Fields{
		"function": function,
		"order":    target.Order,
		"row":      target.Row,
	}
	if err != nil {
		fields["error"] = err
		logrus.WithFields(fields).Warn("Seek failed")
	} else {
		logrus.WithFields(fields).Debug("Seek")
	}
	p.mu.Lock()
	p.finished = false
	p.state.Finished = false
	p.mu.Unlock()
	p.refresh()
}

func (p *Player) loop(done chan<- struct{}) {
	defer close(done)
	for {
		p.mu.Lock()
		stopping, paused := p.stopping, p.paused
		p.mu.Unlock()
		if stopping {
			return
		}
		if paused {
			if !p.waitWhilePaused() {
				return
			}
			continue
		}
		p.mu.Lock()
		needStart := !p.outputActive
		p.mu.Unlock()
		if needStart {
			if err := p.output.Start(); err != nil {
				p.fail("could not restart audio output", err)
				return
			}
			p.mu.Lock()
			p.outputActive = true
			p.mu.Unlock()
			continue
		}
		if !p.step() {
			return
		}
	}
}

// waitWhilePaused stops the output once, silences the meters and blocks until
// the player is unpaused or stopped. It returns false if the loop should exit.
func (p *Player) waitWhilePaused() bool {
	p.mu.Lock()
	active := p.outputActive
	p.mu.Unlock()
	if active {
		if err := p.output.Stop(); err != nil {
			p.fail("could not stop audio output", err)
			return false
		}
		p.mu.Lock()
		p.outputActive = false
		p.meter.Reset()
		p.master = p.meter.Level
		p.state.Master = p.master
		for i := range p.state.Channels {
			p.state.Channels[i].VULeft = 0
			p.state.Channels[i].VURight = 0
		}
		p.mu.Unlock()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.paused && !p.stopping {
		p.cond.Wait()
	}
	return !p.stopping
}

// step renders, processes and plays one buffer. It returns false when the
// song has ended or playback failed.
func (p *Player) step() bool {
	p.decoderMu.Lock()
	n, err := p.decoder.Render(p.frames)
	p.decoderMu.Unlock()
	if err != nil && !errors.Is(err, io.EOF) {
		p.fail("decoder failed", err)
		return false
	}
	if n <= 0 {
		p.mu.Lock()
		p.finished = true
		p.state.Finished = true
		p.mu.Unlock()
		logrus.WithField("function", "step").Info("Playback finished")
		return false
	}
	p.mu.Lock()
	volume, effect := p.volume, p.effect
	p.mu.Unlock()
	buf := p.frames[:n].Interleave(p.samples)
	p.process(buf, n, volume, effect, p.effects)
	p.spectrum.Update(buf)
	p.waveform.Update(buf)
	if err := p.meter.Update(buf); err != nil {
		logrus.WithField("function", "step").Debug(err)
	}
	p.mu.Lock()
	p.master = p.meter.Level
	p.mu.Unlock()
	if err := p.output.WriteAudio(buf); err != nil {
		p.fail("could not write to audio output", err)
		return false
	}
	p.refresh()
	return true
}

func (p *Player) process(buf []float32, frames int, volume float64, effect Effect, fx *Effects) {
	if volume != 1 {
		vek32.MulNumber_Inplace(buf, float32(volume))
	}
	if effect != EffectNone {
		fx.Apply(buf, frames, effect)
	}
}

// fail records an error that ended playback; the player is left finished.
func (p *Player) fail(msg string, err error) {
	pos := p.Snapshot()
	logrus.WithFields(logrus.Fields{
		"function": "loop",
		"order":    pos.Order,
		"row":      pos.Row,
		"error":    err,
	}).Error(msg)
	p.mu.Lock()
	p.err = fmt.Errorf("%s: %w", msg, err)
	p.finished = true
	p.state.Finished = true
	p.state.Err = p.err.Error()
	p.mu.Unlock()
}

// Err returns the error that ended playback, if any.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// refresh reads the decoder and publishes a new TransportState. The decoder
// lock and the state lock are taken one after the other, never together.
func (p *Player) refresh() {
	var next TransportState
	p.decoderMu.Lock()
	p.readDecoder(&next)
	p.decoderMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	next.Paused = p.paused
	next.Finished = p.finished
	next.Volume = p.volume
	next.Effect = p.effect
	next.Master = p.master
	if p.err != nil {
		next.Err = p.err.Error()
	}
	next.Spectrum = p.spectrum.Bands(p.state.Spectrum)
	next.WaveformLeft, next.WaveformRight = p.waveform.Ordered(p.state.WaveformLeft, p.state.WaveformRight)
	p.state = next
}

func (p *Player) readDecoder(s *TransportState) {
	d := p.decoder
	pos := d.Position()
	s.Order, s.Pattern, s.Row, s.Speed, s.Seconds = pos.Order, pos.Pattern, pos.Row, pos.Speed, pos.Seconds
	channels := d.NumChannels()
	if len(p.channelInstruments) != channels {
		p.channelInstruments = make([]int, channels)
		for i := range p.channelInstruments {
			p.channelInstruments[i] = -1
		}
	}
	names := p.meta.InstrumentNames
	cells, structured := d.(trackplay.CellReader)
	s.Channels = make([]ChannelStatus, channels)
	for ch := range s.Channels {
		st := &s.Channels[ch]
		l, r := d.ChannelVU(ch)
		st.VULeft, st.VURight = clampUnit(l), clampUnit(r)
		st.Instrument = -1
		line, err := d.FormatCell(pos.Pattern, pos.Row, ch)
		if err != nil {
			st.Line = trackplay.PlaceholderCell
			continue
		}
		st.Line = line
		ins := -1
		if structured {
			if c, err := cells.Cell(pos.Pattern, pos.Row, ch); err == nil {
				ins = c.Instrument
			}
		} else {
			ins = parseInstrument(line)
		}
		if ins > 0 && ins <= len(names) {
			p.channelInstruments[ch] = ins - 1
		}
		active := p.channelInstruments[ch]
		if max(abs32(l), abs32(r)) > activityThreshold && active >= 0 && active < len(names) {
			st.Instrument = active
			st.InstrumentName = names[active]
		}
	}
	s.Preview = p.preview(pos, channels)
}

// preview collects the rows that follow the current one, walking into the
// following orders until previewRows rows are found or the song ends.
func (p *Player) preview(pos trackplay.Position, channels int) []PatternRowPreview {
	d := p.decoder
	if pos.Order < 0 || pos.Pattern < 0 || pos.Row < 0 || channels <= 0 {
		return nil
	}
	ret := make([]PatternRowPreview, 0, previewRows)
	total := d.NumOrders()
	order, pattern, row := pos.Order, pos.Pattern, pos.Row+1
	for len(ret) < previewRows && order < total {
		rows := 0
		if pattern >= 0 {
			rows = d.PatternRows(pattern)
		}
		for ; row < rows && len(ret) < previewRows; row++ {
			pr := PatternRowPreview{Order: order, Pattern: pattern, Row: row, Channels: make([]string, channels)}
			for ch := range pr.Channels {
				line, err := d.FormatCell(pattern, row, ch)
				if err != nil {
					line = trackplay.PlaceholderCell
				}
				pr.Channels[ch] = line
			}
			ret = append(ret, pr)
		}
		order++
		row = 0
		if order < total {
			pattern = d.OrderPattern(order)
		}
	}
	return ret
}

// parseInstrument reads the instrument column out of a formatted cell such as
// "C-4 01 40 A0F". It returns -1 if there is no instrument.
func parseInstrument(line string) int {
	if len(line) < 6 {
		return -1
	}
	s := strings.ReplaceAll(line[4:6], " ", "")
	if s == "" || s == ".." || s == "." || s == "-" {
		return -1
	}
	if v, err := strconv.ParseInt(s, 16, 32); err == nil {
		return int(v)
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return -1
}

func (s TransportState) clone() TransportState {
	ret := s
	ret.Channels = append([]ChannelStatus(nil), s.Channels...)
	if s.Preview != nil {
		ret.Preview = make([]PatternRowPreview, len(s.Preview))
		for i, pr := range s.Preview {
			pr.Channels = append([]string(nil), pr.Channels...)
			ret.Preview[i] = pr
		}
	}
	ret.Spectrum = append([]float32(nil), s.Spectrum...)
	ret.WaveformLeft = append([]float32(nil), s.WaveformLeft...)
	ret.WaveformRight = append([]float32(nil), s.WaveformRight...)
	return ret
}

func clampVolume(v float64) float64 {
	if v != v {
		return 0
	}
	return max(0, min(1, v))
}

func clampUnit(v float32) float32 {
	return max(0, min(1, abs32(v)))
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
