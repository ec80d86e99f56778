package tracker

import (
	"math"
	"sync"

	"github.com/viterin/vek/vek32"
)

type (
	// SpectrumAnalyzer accumulates the mono mix of the played signal into a
	// window and, each time the window is full, turns it into a fixed number
	// of logarithmically spaced band levels in [0, 1].
	SpectrumAnalyzer struct {
		mu         sync.Mutex
		sampleRate int
		window     []float32 // window weighting function
		bitPerm    []int     // bit-reversal permutation table
		input      []float32
		cursor     int
		bands      []float32
		bandBins   [][2]int
		temp       specTemp
	}

	specTemp struct {
		tmp1, tmp2 []float32
		re, im     []float64
	}
)

const (
	DefaultSpectrumWindow = 2048
	DefaultSpectrumBands  = 20
	spectrumMinFreq       = 20.0
	spectrumMaxFreq       = 20000.0
)

// NewSpectrumAnalyzer panics if windowSize is not a power of two of at least 2.
func NewSpectrumAnalyzer(sampleRate, windowSize, numBands int) *SpectrumAnalyzer {
	n := windowSize
	if n < 2 || n&(n-1) != 0 {
		panic("tracker: spectrum window size must be a power of two")
	}
	if numBands < 1 {
		panic("tracker: spectrum needs at least one band")
	}
	s := &SpectrumAnalyzer{
		sampleRate: sampleRate,
		window:     make([]float32, n),
		input:      make([]float32, n),
		bands:      make([]float32, numBands),
		temp: specTemp{
			tmp1: make([]float32, n),
			tmp2: make([]float32, n),
			re:   make([]float64, n),
			im:   make([]float64, n),
		},
	}
	for i := 0; i < n; i++ {
		// Hanning window
		s.window[i] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1))))
	}
	s.bitPerm = bitReversal(n)
	s.bandBins = bandBins(sampleRate, n, numBands)
	return s
}

// bandBins splits the bins [0, n/2) into numBands log-spaced ranges between
// 20 Hz and 20 kHz. Every range has at least one bin.
func bandBins(sampleRate, n, numBands int) [][2]int {
	ret := make([][2]int, numBands)
	freqPerBin := float64(sampleRate) / float64(n)
	logMin, logMax := math.Log10(spectrumMinFreq), math.Log10(spectrumMaxFreq)
	logRange := logMax - logMin
	for b := range ret {
		fStart := math.Pow(10, logMin+logRange*float64(b)/float64(numBands))
		fEnd := math.Pow(10, logMin+logRange*float64(b+1)/float64(numBands))
		start := min(int(fStart/freqPerBin), n/2-1)
		end := min(int(fEnd/freqPerBin), n/2)
		if end <= start {
			end = start + 1
		}
		ret[b] = [2]int{start, end}
	}
	return ret
}

// Update feeds an interleaved stereo buffer to the analyzer. Samples that do
// not fit in the current window are dropped; a new window starts on the next
// call after an analysis.
func (s *SpectrumAnalyzer) Update(buf []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i+1 < len(buf) && s.cursor < len(s.input); i += 2 {
		s.input[s.cursor] = (buf[i] + buf[i+1]) * 0.5
		s.cursor++
	}
	if s.cursor < len(s.input) {
		return
	}
	s.cursor = 0
	s.analyze()
}

// Bands copies the latest band levels into dst, growing it when needed.
func (s *SpectrumAnalyzer) Bands(dst []float32) []float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(dst[:0], s.bands...)
}

func (s *SpectrumAnalyzer) NumBands() int { return len(s.bands) }

func (s *SpectrumAnalyzer) analyze() {
	t := &s.temp
	n := len(s.input)
	vek32.Mul_Into(t.tmp1, s.input, s.window)    // apply windowing
	vek32.Gather_Into(t.tmp2, t.tmp1, s.bitPerm) // bit-reversal permutation
	for i, v := range t.tmp2 {
		t.re[i] = float64(v)
		t.im[i] = 0
	}
	fft(t.re, t.im)
	m := n / 2
	mag := t.tmp1[:m]
	for i := 0; i < m; i++ {
		mag[i] = float32(math.Hypot(t.re[i], t.im[i]))
	}
	for b, r := range s.bandBins {
		avg := vek32.Mean(mag[r[0]:r[1]])
		norm := avg / float32(n) * 2.5
		var v float32
		if norm > 0 {
			v = float32((20*math.Log10(float64(norm)+1e-6) + 50) / 50)
		}
		s.bands[b] = max(0, min(1, v))
	}
}

// bitReversal returns the bit-reversal permutation table for n points.
func bitReversal(n int) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			perm[i], perm[j] = perm[j], perm[i]
		}
	}
	return perm
}

// fft is an in-place radix-2 transform of data that is already in
// bit-reversed order.
func fft(re, im []float64) {
	n := len(re)
	for length := 2; length <= n; length <<= 1 {
		ang := -2 * math.Pi / float64(length)
		wr, wi := math.Cos(ang), math.Sin(ang)
		half := length / 2
		for i := 0; i < n; i += length {
			cr, ci := 1.0, 0.0
			for j := 0; j < half; j++ {
				a, b := i+j, i+j+half
				vr := re[b]*cr - im[b]*ci
				vi := re[b]*ci + im[b]*cr
				re[b], im[b] = re[a]-vr, im[a]-vi
				re[a], im[a] = re[a]+vr, im[a]+vi
				cr, ci = cr*wr-ci*wi, cr*wi+ci*wr
			}
		}
	}
}

// FFT returns the magnitudes of the discrete Fourier transform of x, whose
// length must be a power of two. It is the transform the analyzer uses,
// exposed for testing and for callers that want raw bins.
func FFT(x []float32) []float64 {
	n := len(x)
	if n < 1 || n&(n-1) != 0 {
		panic("tracker: FFT length must be a power of two")
	}
	re, im := make([]float64, n), make([]float64, n)
	for i, p := range bitReversal(n) {
		re[i] = float64(x[p])
	}
	fft(re, im)
	ret := make([]float64, n)
	for i := range ret {
		ret[i] = math.Hypot(re[i], im[i])
	}
	return ret
}
