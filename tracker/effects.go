package tracker

import (
	"fmt"
	"math"
	"strings"
)

type (
	// Effect selects the single DSP effect applied to the playback signal.
	Effect int

	// Effects holds the state of every effect. The state of an effect is kept
	// when another effect is selected, so switching back continues where it
	// left off.
	Effects struct {
		sampleRate float32
		bass       bassBoost
		echo       delayLine
		reverb     delayLine
		flanger    flanger
		phaser     phaser
		chorus     chorus
	}

	bassBoost struct {
		lp [2]float32
	}

	delayLine struct {
		buf [2][]float32
		pos int
	}

	flanger struct {
		delayLine
		phase float32
	}

	phaser struct {
		state [2][phaserStages]float32
		phase float32
	}

	chorus struct {
		delayLine
		phase1, phase2 float32
	}
)

const (
	EffectNone Effect = iota
	EffectBassBoost
	EffectEcho
	EffectReverb
	EffectFlanger
	EffectPhaser
	EffectChorus
	NumEffects
)

const (
	EchoBufferSize    = 48000
	ReverbBufferSize  = 96000
	FlangerBufferSize = 4800
	ChorusBufferSize  = 9600
	phaserStages      = 4
	twoPi             = 2 * math.Pi
)

var effectNames = [NumEffects]string{"none", "bass boost", "echo", "reverb", "flanger", "phaser", "chorus"}

func (e Effect) String() string {
	if e < 0 || e >= NumEffects {
		return fmt.Sprintf("Effect(%d)", int(e))
	}
	return effectNames[e]
}

// Next returns the effect after e, wrapping around; delta can be negative.
func (e Effect) Next(delta int) Effect {
	n := int(NumEffects)
	return Effect(((int(e)+delta)%n + n) % n)
}

// ParseEffect parses an effect name. Spaces, dashes and underscores are
// ignored, so "bass-boost", "bass_boost" and "BassBoost" all work.
func ParseEffect(s string) (Effect, error) {
	key := normalizeEffectName(s)
	if key == "" {
		return EffectNone, nil
	}
	for i, name := range effectNames {
		if normalizeEffectName(name) == key {
			return Effect(i), nil
		}
	}
	return EffectNone, fmt.Errorf("unknown effect %q", s)
}

func normalizeEffectName(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(strings.ToLower(s))
}

func NewEffects(sampleRate int) *Effects {
	return &Effects{
		sampleRate: float32(sampleRate),
		echo:       newDelayLine(EchoBufferSize),
		reverb:     newDelayLine(ReverbBufferSize),
		flanger:    flanger{delayLine: newDelayLine(FlangerBufferSize)},
		chorus:     chorus{delayLine: newDelayLine(ChorusBufferSize)},
	}
}

func newDelayLine(size int) delayLine {
	return delayLine{buf: [2][]float32{make([]float32, size), make([]float32, size)}}
}

// Apply processes frames stereo frames of the interleaved buffer in place.
// EffectNone leaves the buffer untouched.
func (e *Effects) Apply(buf []float32, frames int, kind Effect) {
	frames = min(frames, len(buf)/2)
	if frames <= 0 {
		return
	}
	switch kind {
	case EffectBassBoost:
		e.applyBassBoost(buf, frames)
	case EffectEcho:
		e.applyEcho(buf, frames)
	case EffectReverb:
		e.applyReverb(buf, frames)
	case EffectFlanger:
		e.applyFlanger(buf, frames)
	case EffectPhaser:
		e.applyPhaser(buf, frames)
	case EffectChorus:
		e.applyChorus(buf, frames)
	}
}

// Cursor returns the ring buffer write position of a delay based effect, or
// -1 for effects without one.
func (e *Effects) Cursor(kind Effect) int {
	switch kind {
	case EffectEcho:
		return e.echo.pos
	case EffectReverb:
		return e.reverb.pos
	case EffectFlanger:
		return e.flanger.pos
	case EffectChorus:
		return e.chorus.pos
	}
	return -1
}

// Phase returns the LFO phase of a modulated effect in radians, or 0.
func (e *Effects) Phase(kind Effect) float32 {
	switch kind {
	case EffectFlanger:
		return e.flanger.phase
	case EffectPhaser:
		return e.phaser.phase
	case EffectChorus:
		return e.chorus.phase1
	}
	return 0
}

func (e *Effects) applyBassBoost(buf []float32, frames int) {
	const alpha, gain = 0.15, 1.8
	for i := 0; i < frames; i++ {
		for c := 0; c < 2; c++ {
			x := buf[i*2+c]
			e.bass.lp[c] += alpha * (x - e.bass.lp[c])
			buf[i*2+c] = clamp1(e.bass.lp[c]*gain + x*(1-gain*0.5))
		}
	}
}

func (e *Effects) applyEcho(buf []float32, frames int) {
	const delayTime, feedback, mix = 0.25, 0.4, 0.3
	d := &e.echo
	delay := int(delayTime * e.sampleRate)
	size := len(d.buf[0])
	for i := 0; i < frames; i++ {
		read := ringIndex(d.pos-delay, size)
		for c := 0; c < 2; c++ {
			x := buf[i*2+c]
			delayed := d.buf[c][read]
			d.buf[c][d.pos] = clamp1(x + delayed*feedback)
			buf[i*2+c] = clamp1(x*(1-mix) + delayed*mix)
		}
		d.pos = (d.pos + 1) % size
	}
}

func (e *Effects) applyReverb(buf []float32, frames int) {
	const mix, decay = 0.35, 0.5
	d := &e.reverb
	size := len(d.buf[0])
	taps := [4]int{
		int(0.029 * e.sampleRate),
		int(0.037 * e.sampleRate),
		int(0.041 * e.sampleRate),
		int(0.043 * e.sampleRate),
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < 2; c++ {
			var rev float32
			for _, t := range taps {
				rev += d.buf[c][ringIndex(d.pos-t, size)] * decay
			}
			rev *= 0.25
			x := buf[i*2+c]
			d.buf[c][d.pos] = x + rev*decay
			buf[i*2+c] = clamp1(x*(1-mix) + rev*mix)
		}
		d.pos = (d.pos + 1) % size
	}
}

func (e *Effects) applyFlanger(buf []float32, frames int) {
	const lfoFreq, depth, feedback, mix = 0.5, 0.003, 0.6, 0.5
	f := &e.flanger
	size := len(f.buf[0])
	inc := float32(twoPi * lfoFreq / float64(e.sampleRate))
	base := int(0.002 * e.sampleRate)
	for i := 0; i < frames; i++ {
		lfo := float32(math.Sin(float64(f.phase)))
		f.phase = wrapPhase(f.phase + inc)
		delay := min(base+int((lfo*0.5+0.5)*depth*e.sampleRate), size-1)
		read := ringIndex(f.pos-delay, size)
		for c := 0; c < 2; c++ {
			x := buf[i*2+c]
			delayed := f.buf[c][read]
			f.buf[c][f.pos] = x + delayed*feedback
			buf[i*2+c] = clamp1(x*(1-mix) + delayed*mix)
		}
		f.pos = (f.pos + 1) % size
	}
}

func (e *Effects) applyPhaser(buf []float32, frames int) {
	const lfoFreq, feedback, mix = 0.4, 0.7, 0.5
	p := &e.phaser
	inc := float32(twoPi * lfoFreq / float64(e.sampleRate))
	for i := 0; i < frames; i++ {
		lfo := float32(math.Sin(float64(p.phase)))
		p.phase = wrapPhase(p.phase + inc)
		coeff := 0.3 + (lfo*0.5+0.5)*0.5
		for c := 0; c < 2; c++ {
			x := buf[i*2+c]
			in := x
			for s := range p.state[c] {
				out := -in + p.state[c][s]
				p.state[c][s] = in + out*coeff
				in = out
			}
			buf[i*2+c] = clamp1(x*(1-mix) + in*mix + in*feedback*0.3)
		}
	}
}

func (e *Effects) applyChorus(buf []float32, frames int) {
	const lfoFreq1, lfoFreq2, depth, mix = 0.7, 1.1, 0.002, 0.4
	ch := &e.chorus
	size := len(ch.buf[0])
	inc1 := float32(twoPi * lfoFreq1 / float64(e.sampleRate))
	inc2 := float32(twoPi * lfoFreq2 / float64(e.sampleRate))
	base := int(0.020 * e.sampleRate)
	for i := 0; i < frames; i++ {
		lfo1 := float32(math.Sin(float64(ch.phase1)))
		lfo2 := float32(math.Sin(float64(ch.phase2)))
		ch.phase1 = wrapPhase(ch.phase1 + inc1)
		ch.phase2 = wrapPhase(ch.phase2 + inc2)
		delay1 := min(base+int((lfo1*0.5+0.5)*depth*e.sampleRate), size-1)
		delay2 := min(base+int((lfo2*0.5+0.5)*depth*e.sampleRate), size-1)
		read1 := ringIndex(ch.pos-delay1, size)
		read2 := ringIndex(ch.pos-delay2, size)
		for c := 0; c < 2; c++ {
			x := buf[i*2+c]
			wet := (ch.buf[c][read1] + ch.buf[c][read2]) * 0.5
			ch.buf[c][ch.pos] = x
			buf[i*2+c] = clamp1(x*(1-mix) + wet*mix)
		}
		ch.pos = (ch.pos + 1) % size
	}
}

func ringIndex(i, size int) int {
	return ((i % size) + size) % size
}

func wrapPhase(p float32) float32 {
	if p >= twoPi {
		p -= twoPi
	}
	return p
}

func clamp1(v float32) float32 {
	if v != v { // NaN
		return 0
	}
	return max(-1, min(1, v))
}
