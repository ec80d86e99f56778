package trackplay

import "errors"

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length, each
	// sample represented by [2]float32. [0] is left channel, [1] is right
	AudioBuffer [][2]float32

	// AudioOutput is the device end of the playback chain. WriteAudio blocks
	// until the device has accepted the whole buffer; this blocking is what
	// paces the playback loop.
	AudioOutput interface {
		Start() error
		Stop() error
		WriteAudio(buffer []float32) error // interleaved L, R, L, R...
		Close() error
	}

	AudioContext interface {
		Output() AudioOutput
		SampleRate() int
		Close() error
	}

	// SongLayout describes the arrangement of a song: which pattern is played
	// at each order and how many rows each pattern has. OrderPattern returns
	// -1 for orders that do not map to a playable pattern.
	SongLayout interface {
		NumOrders() int
		OrderPattern(order int) int
		PatternRows(pattern int) int
	}

	// Decoder renders a tracker module into audio and answers questions about
	// its current position. Decoders are not safe for concurrent use.
	Decoder interface {
		SongLayout
		// Render fills buf with frames and returns how many were written. A
		// return of 0 frames or io.EOF marks the end of the song.
		Render(buf AudioBuffer) (int, error)
		SampleRate() int
		Position() Position
		SetOrderRow(order, row int) error
		SetSeconds(seconds float64) error
		NumChannels() int
		ChannelVU(channel int) (left, right float32)
		FormatCell(pattern, row, channel int) (string, error)
		Metadata() Metadata
	}

	// CellReader is implemented by decoders that can return the structured
	// contents of a pattern cell instead of just its text.
	CellReader interface {
		Cell(pattern, row, channel int) (Cell, error)
	}

	Position struct {
		Order   int
		Pattern int
		Row     int
		Speed   int
		Seconds float64
	}

	Metadata struct {
		Title           string
		Artist          string
		Tracker         string
		Type            string
		Date            string
		Message         []string
		NumChannels     int
		NumInstruments  int
		NumSamples      int
		NumPatterns     int
		NumOrders       int
		InstrumentNames []string
		SampleNames     []string
		Duration        float64 // seconds
	}
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrExportCancelled   = errors.New("export cancelled")
	ErrNoOutput          = errors.New("no audio output")
)

// Fill fills the AudioBuffer using a Decoder, stopping early if the decoder
// runs out of song.
func (buffer AudioBuffer) Fill(d Decoder) (int, error) {
	n := 0
	for n < len(buffer) {
		r, err := d.Render(buffer[n:])
		n += r
		if err != nil {
			return n, err
		}
		if r <= 0 {
			break
		}
	}
	return n, nil
}

// Interleave writes the buffer into dst as L, R, L, R... and returns the
// slice, growing it when needed.
func (buffer AudioBuffer) Interleave(dst []float32) []float32 {
	if cap(dst) < len(buffer)*2 {
		dst = make([]float32, len(buffer)*2)
	}
	dst = dst[:len(buffer)*2]
	for i, s := range buffer {
		dst[i*2] = s[0]
		dst[i*2+1] = s[1]
	}
	return dst
}

// Deinterleave is the inverse of Interleave. Trailing odd samples are dropped.
func Deinterleave(src []float32, dst AudioBuffer) AudioBuffer {
	n := len(src) / 2
	if cap(dst) < n {
		dst = make(AudioBuffer, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = [2]float32{src[i*2], src[i*2+1]}
	}
	return dst
}
