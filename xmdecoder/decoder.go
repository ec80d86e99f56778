// Package xmdecoder plays FastTracker II modules with github.com/quasilyte/xm
// and exposes them as a trackplay.Decoder.
package xmdecoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/quasilyte/xm"
	"github.com/quasilyte/xm/xmfile"
	"github.com/sirupsen/logrus"
	"github.com/vsariola/trackplay"
)

type Decoder struct {
	song     *Song
	meta     trackplay.Metadata
	stream   *xm.Stream
	timeline []rowEntry
	end      int64 // frame where the song ends

	frame        int64 // frames returned by Render since the start
	streamFrames int64 // frames read from the stream since the start
	entry        int
	pending      []byte
	scratch      []byte
	tickBytes    int
	done         bool

	levels     []float32
	instrument []int // 0-based instrument of the last note per channel, -1 if none
}

// SampleRate is the only rate the stream renders at.
const SampleRate = 44100

const (
	bytesPerFrame = 4
	vuDecayFrames = 4410
)

var (
	ErrCellOutOfRange = errors.New("pattern cell out of range")
	ErrPosition       = errors.New("position out of range")
	ErrStream         = errors.New("xm stream failed")
)

// Load reads and parses the module at path.
func Load(path string) (*Decoder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read module: %w", err)
	}
	return Parse(data, path)
}

// Parse parses an XM module. name is used as the title if the module has
// none.
func Parse(data []byte, name string) (*Decoder, error) {
	parser := xmfile.NewParser(xmfile.ParserConfig{})
	m, err := parser.ParseFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("could not parse module: %w", err)
	}
	return load(m, name)
}

// load compiles a parsed module into a stream and wraps it.
func load(m *xmfile.Module, name string) (d *Decoder, err error) {
	stream := xm.NewStream()
	defer func() {
		if r := recover(); r != nil {
			d, err = nil, fmt.Errorf("%w: could not load module: %v", ErrStream, r)
		}
	}()
	if err := stream.LoadModule(m, xm.LoadModuleConfig{LinearInterpolation: true, SampleRate: SampleRate}); err != nil {
		return nil, fmt.Errorf("could not load module: %w", err)
	}
	return newDecoder(convertModule(m), stream, name), nil
}

func newDecoder(song *Song, stream *xm.Stream, name string) *Decoder {
	d := &Decoder{
		song:       song,
		stream:     stream,
		tickBytes:  int(stream.GetInfo().BytesPerTick),
		levels:     make([]float32, song.NumChannels),
		instrument: make([]int, song.NumChannels),
	}
	if d.tickBytes < bytesPerFrame {
		d.tickBytes = int(samplesPerTick(song.DefaultBPM)) * bytesPerFrame
	}
	d.scratch = make([]byte, d.tickBytes+bytesPerFrame)
	d.timeline, d.end = buildTimeline(song, int64(d.tickBytes/bytesPerFrame))
	d.meta = song.metadata()
	d.meta.Duration = float64(d.end) / SampleRate
	d.meta.Finalize(name)
	d.resetChannels()
	stream.SetEventHandler(d.handleEvent)
	logrus.WithFields(logrus.Fields{
		"function": "newDecoder",
		"title":    d.meta.Title,
		"channels": song.NumChannels,
		"orders":   len(song.Orders),
		"duration": d.meta.Duration,
	}).Debug("Module loaded")
	return d
}

func (d *Decoder) handleEvent(e xm.StreamEvent) {
	if e.Kind != xm.EventNote || e.Channel < 0 || e.Channel >= len(d.levels) {
		return
	}
	note, instrument, vol := e.NoteEventData()
	if note == keyOffNote {
		d.levels[e.Channel] = 0
		return
	}
	d.levels[e.Channel] = max(0, min(1, vol))
	if instrument >= 0 {
		d.instrument[e.Channel] = instrument
	}
}

func (d *Decoder) resetChannels() {
	for i := range d.levels {
		d.levels[i] = 0
		d.instrument[i] = -1
	}
}

// Render fills buf with the next frames of the song. At the end of the song
// it returns 0 frames and io.EOF.
func (d *Decoder) Render(buf trackplay.AudioBuffer) (n int, err error) {
	for n < len(buf) {
		if len(d.pending) == 0 {
			if d.done {
				break
			}
			if err := d.fill(); err != nil {
				d.advance(n)
				return n, err
			}
			continue
		}
		k := min(len(buf)-n, len(d.pending)/bytesPerFrame)
		for i := 0; i < k; i++ {
			l := int16(binary.LittleEndian.Uint16(d.pending[i*4:]))
			r := int16(binary.LittleEndian.Uint16(d.pending[i*4+2:]))
			buf[n+i] = [2]float32{float32(l) / 32768, float32(r) / 32768}
		}
		d.pending = d.pending[k*bytesPerFrame:]
		n += k
	}
	d.advance(n)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (d *Decoder) advance(frames int) {
	d.frame += int64(frames)
	d.entry = entryAt(d.timeline, d.frame)
	decay := float32(math.Exp(-float64(frames) / vuDecayFrames))
	for i := range d.levels {
		d.levels[i] *= decay
	}
}

// fill reads the next tick from the stream into pending.
func (d *Decoder) fill() (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.done = true
			d.pending = nil
			// a pattern break on the last order makes the stream run past
			// the order list; that is just the end of the song
			if d.streamFrames >= d.end {
				err = nil
				return
			}
			err = fmt.Errorf("%w: %v", ErrStream, r)
		}
	}()
	n, err := d.readTick()
	d.pending = d.scratch[:n]
	d.streamFrames += int64(n / bytesPerFrame)
	if errors.Is(err, io.EOF) {
		d.done = true
		return nil
	}
	if err != nil {
		d.done = true
		return fmt.Errorf("%w: %v", ErrStream, err)
	}
	if n == 0 {
		d.done = true
	}
	return nil
}

// readTick asks the stream for a single tick. Read fits as many whole ticks
// as the slice has room for, so one spare byte makes it exactly one.
func (d *Decoder) readTick() (int, error) {
	return d.stream.Read(d.scratch[:d.tickBytes+1])
}

// seekFrame restarts the stream and renders silently up to frame.
func (d *Decoder) seekFrame(frame int64) error {
	d.stream.Rewind()
	d.pending = nil
	d.done = false
	d.streamFrames = 0
	for d.streamFrames < frame && !d.done {
		if err := d.fill(); err != nil {
			return err
		}
	}
	if over := d.streamFrames - frame; over > 0 {
		keep := min(int(over)*bytesPerFrame, len(d.pending))
		d.pending = d.pending[len(d.pending)-keep:]
	} else {
		d.pending = nil
	}
	d.frame = min(frame, d.streamFrames)
	d.entry = entryAt(d.timeline, d.frame)
	d.resetChannels()
	return nil
}

func (d *Decoder) SetOrderRow(order, row int) error {
	if order < 0 || order >= len(d.song.Orders) {
		return fmt.Errorf("%w: order %d", ErrPosition, order)
	}
	i := seekTarget(d.timeline, order, max(row, 0))
	if i >= len(d.timeline) {
		return d.seekFrame(d.end)
	}
	return d.seekFrame(d.timeline[i].Start)
}

func (d *Decoder) SetSeconds(seconds float64) error {
	if seconds < 0 || math.IsNaN(seconds) {
		return fmt.Errorf("%w: %v seconds", ErrPosition, seconds)
	}
	return d.seekFrame(min(int64(seconds*SampleRate), d.end))
}

func (d *Decoder) Position() trackplay.Position {
	pos := trackplay.Position{Seconds: float64(d.frame) / SampleRate, Speed: d.song.DefaultSpeed}
	if d.entry < 0 {
		pos.Pattern = d.OrderPattern(0)
		return pos
	}
	e := d.timeline[d.entry]
	pos.Order, pos.Pattern, pos.Row, pos.Speed = e.Order, e.Pattern, e.Row, e.Speed
	return pos
}

func (d *Decoder) SampleRate() int { return SampleRate }

func (d *Decoder) NumChannels() int { return d.song.NumChannels }

func (d *Decoder) NumOrders() int { return len(d.song.Orders) }

func (d *Decoder) OrderPattern(order int) int {
	if order < 0 || order >= len(d.song.Orders) {
		return -1
	}
	return d.song.Orders[order]
}

func (d *Decoder) PatternRows(pattern int) int {
	if pattern < 0 || pattern >= len(d.song.Patterns) {
		return 0
	}
	return d.song.Patterns[pattern].Rows
}

// ChannelVU returns the level of the last note played on the channel, decayed
// over time and panned by the first sample of its instrument.
func (d *Decoder) ChannelVU(ch int) (left, right float32) {
	if ch < 0 || ch >= len(d.levels) {
		return 0, 0
	}
	pan := float32(0.5)
	if i := d.instrument[ch]; i >= 0 && i < len(d.song.Instruments) {
		pan = d.song.Instruments[i].Panning
	}
	l := d.levels[ch]
	return l * float32(math.Sqrt(float64(1-pan))), l * float32(math.Sqrt(float64(pan)))
}

func (d *Decoder) Cell(pattern, row, ch int) (trackplay.Cell, error) {
	c, ok := d.song.cell(pattern, row, ch)
	if !ok {
		return trackplay.Cell{}, fmt.Errorf("%w: pattern %d row %d channel %d", ErrCellOutOfRange, pattern, row, ch)
	}
	return c, nil
}

func (d *Decoder) FormatCell(pattern, row, ch int) (string, error) {
	c, err := d.Cell(pattern, row, ch)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

func (d *Decoder) Metadata() trackplay.Metadata {
	m := d.meta
	m.Message = append([]string(nil), d.meta.Message...)
	m.InstrumentNames = append([]string(nil), d.meta.InstrumentNames...)
	m.SampleNames = append([]string(nil), d.meta.SampleNames...)
	return m
}
