package tracker

import (
	"errors"
	"math"
)

type (
	// Volume is a level of the left and right channels in decibels relative
	// to full scale (0 dB = signal level of +-1).
	Volume [2]float64

	// VolumeAnalyzer measures the level of the master output after the volume
	// and the effect have been applied.
	VolumeAnalyzer struct {
		Level      Volume  // current volume level of left and right channels
		Attack     float64 // attack time constant in seconds
		Release    float64 // release time constant in seconds
		Min        float64 // minimum volume in decibels
		Max        float64 // maximum volume in decibels
		SampleRate int
	}
)

const (
	MeterMinDB = -60
	MeterMaxDB = 6
)

var errNaN = errors.New("NaN detected in master output")

// NewPeakMeter returns an analyzer with the time constants of a peak meter:
// a fast attack and a slow release.
func NewPeakMeter(sampleRate int) *VolumeAnalyzer {
	return &VolumeAnalyzer{
		Level:      Volume{MeterMinDB, MeterMinDB},
		Attack:     1.5e-3,
		Release:    1.5,
		Min:        MeterMinDB,
		Max:        MeterMaxDB,
		SampleRate: sampleRate,
	}
}

// Update analyzes the interleaved buffer and moves Level towards it.
//
// The samples are converted to decibels and smoothed with an exponentially
// decaying average, with the time constant Attack when the level rises and
// Release when it falls. NaN samples are skipped and reported as an error.
func (v *VolumeAnalyzer) Update(buffer []float32) (err error) {
	// from https://en.wikipedia.org/wiki/Exponential_smoothing
	alphaAttack := 1 - math.Exp(-1.0/(v.Attack*float64(v.SampleRate)))
	alphaRelease := 1 - math.Exp(-1.0/(v.Release*float64(v.SampleRate)))
	for j := 0; j < 2; j++ {
		for i := j; i < len(buffer); i += 2 {
			sample2 := float64(buffer[i]) * float64(buffer[i])
			if math.IsNaN(sample2) {
				if err == nil {
					err = errNaN
				}
				continue
			}
			dB := 10 * math.Log10(sample2)
			if dB < v.Min || math.IsNaN(dB) {
				dB = v.Min
			}
			if dB > v.Max {
				dB = v.Max
			}
			a := alphaAttack
			if dB < v.Level[j] {
				a = alphaRelease
			}
			v.Level[j] += (dB - v.Level[j]) * a
		}
	}
	return err
}

// Reset drops the level to the minimum, e.g. when the output is paused.
func (v *VolumeAnalyzer) Reset() {
	v.Level = Volume{v.Min, v.Min}
}

// Fraction maps a level in decibels to [0, 1] for drawing a meter.
func (v Volume) Fraction(ch int) float32 {
	return float32(max(0, min(1, (v[ch]-MeterMinDB)/(MeterMaxDB-MeterMinDB))))
}
