package tracker

import "sync"

type (
	// WaveformSampler keeps a decimated copy of the most recent output for
	// the oscilloscope view.
	WaveformSampler struct {
		mu          sync.Mutex
		left, right RingBuffer[float32]
	}

	// RingBuffer is a generic ring buffer with buffer and a cursor. The cursor
	// is where the next value goes.
	RingBuffer[T any] struct {
		Buffer []T
		Cursor int
	}
)

const DefaultWaveformSize = 512

func NewWaveformSampler(size int) *WaveformSampler {
	if size < 1 {
		size = DefaultWaveformSize
	}
	return &WaveformSampler{
		left:  RingBuffer[float32]{Buffer: make([]float32, size)},
		right: RingBuffer[float32]{Buffer: make([]float32, size)},
	}
}

// Update writes every n:th frame of the interleaved buffer into the rings,
// with n chosen so that a buffer covers about a quarter of the ring. A call
// stops as soon as the ring wraps around, so the ring is refreshed at most
// once per call.
func (w *WaveformSampler) Update(buf []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	size := len(w.left.Buffer)
	decimation := max(1, (len(buf)/2)/(4*size))
	for i := 0; i+1 < len(buf); i += decimation * 2 {
		w.left.Push(buf[i])
		if w.right.Push(buf[i+1]) {
			break
		}
	}
}

// Ordered copies the rings oldest sample first.
func (w *WaveformSampler) Ordered(left, right []float32) ([]float32, []float32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.left.Ordered(left), w.right.Ordered(right)
}

func (w *WaveformSampler) Cursor() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.left.Cursor
}

// Push stores the value at the cursor and advances it, returning true when the
// cursor wrapped back to 0.
func (r *RingBuffer[T]) Push(value T) bool {
	r.Buffer[r.Cursor] = value
	r.Cursor++
	if r.Cursor >= len(r.Buffer) {
		r.Cursor = 0
		return true
	}
	return false
}

// Ordered appends the contents to dst[:0] starting from the oldest value.
func (r *RingBuffer[T]) Ordered(dst []T) []T {
	dst = append(dst[:0], r.Buffer[r.Cursor:]...)
	return append(dst, r.Buffer[:r.Cursor]...)
}
