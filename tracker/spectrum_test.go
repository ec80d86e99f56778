package tracker_test

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/vsariola/trackplay/tracker"
	"gonum.org/v1/gonum/dsp/fourier"
)

// tone is a sine with identical channels, so the mono mix keeps it.
func tone(frames int, freq, sampleRate float64) []float32 {
	buf := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		v := float32(0.8 * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
		buf[i*2], buf[i*2+1] = v, v
	}
	return buf
}

func TestFFTMatchesGonum(t *testing.T) {
	const n = 256
	x := make([]float32, n)
	seq := make([]float64, n)
	for i := range x {
		v := math.Sin(2*math.Pi*5*float64(i)/n) + 0.3*math.Cos(2*math.Pi*37*float64(i)/n) + 0.1*float64(i%3)
		x[i] = float32(v)
		seq[i] = float64(x[i])
	}
	got := tracker.FFT(x)
	want := fourier.NewFFT(n).Coefficients(nil, seq)
	for k := range want {
		if math.Abs(got[k]-cmplx.Abs(want[k])) > 1e-3 {
			t.Fatalf("bin %d: got %v, want %v", k, got[k], cmplx.Abs(want[k]))
		}
	}
}

func TestSpectrumSilenceIsZero(t *testing.T) {
	s := tracker.NewSpectrumAnalyzer(48000, 2048, 20)
	// prime the bands with a loud signal first
	s.Update(tone(2048, 1000, 48000))
	s.Update(make([]float32, 2048*2))
	for i, b := range s.Bands(nil) {
		if b != 0 {
			t.Fatalf("band %d = %v after a silent window, want 0", i, b)
		}
	}
}

func TestSpectrumBandsInRange(t *testing.T) {
	s := tracker.NewSpectrumAnalyzer(44100, 1024, 20)
	for iter := 0; iter < 20; iter++ {
		buf := make([]float32, 300*2)
		for i := range buf {
			buf[i] = float32(math.Sin(float64(i*iter))) * 4 // beyond full scale on purpose
		}
		s.Update(buf)
		bands := s.Bands(nil)
		if len(bands) != 20 {
			t.Fatalf("got %d bands, want 20", len(bands))
		}
		for i, b := range bands {
			if b < 0 || b > 1 {
				t.Fatalf("band %d = %v outside [0,1]", i, b)
			}
		}
	}
}

func TestSpectrumSinePeak(t *testing.T) {
	s := tracker.NewSpectrumAnalyzer(48000, 2048, 20)
	signal := tone(2048, 1000, 48000)
	s.Update(signal[:2048])
	for _, b := range s.Bands(nil) {
		if b != 0 {
			t.Fatalf("bands changed before the window was full")
		}
	}
	s.Update(signal[2048:])
	bands := s.Bands(nil)
	peak := 0
	for i, b := range bands {
		if b > bands[peak] {
			peak = i
		}
	}
	// 1 kHz lands in band 11: 20*10^(11*0.15) = 893 Hz .. 20*10^(12*0.15) = 1262 Hz
	if peak != 11 {
		t.Fatalf("peak band = %d, want 11 (bands %v)", peak, bands)
	}
	if bands[peak] <= 0 || bands[peak] > 1 {
		t.Fatalf("peak level %v not in (0,1]", bands[peak])
	}
}

func TestSpectrumPanicsOnBadWindow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected a panic for a non power of two window")
		}
	}()
	tracker.NewSpectrumAnalyzer(48000, 1000, 20)
}
