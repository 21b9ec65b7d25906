package lfo

import (
	"math"
	"strings"
)

type Wave uint8

const (
	WaveSaw Wave = iota
	WaveSquare
	WaveTriangle
	WaveRandom
	WaveSine
)

var waveNames = map[string]Wave{
	"saw":      WaveSaw,
	"square":   WaveSquare,
	"triangle": WaveTriangle,
	"random":   WaveRandom,
	"sine":     WaveSine,
}

func ParseWave(s string) (Wave, bool) {
	w, ok := waveNames[strings.ToLower(s)]
	return w, ok
}

func (w Wave) String() string {
	for name, v := range waveNames {
		if v == w {
			return name
		}
	}
	return "unknown"
}

// Oscillator is a low-frequency oscillator used to pre-render modulation
// buffers.
type Oscillator struct {
	wave   Wave
	rateHz float64
	depth  float64
	phase  float64 // [0, 1)
	held   float64 // sample-and-hold value for WaveRandom
}

func New(wave Wave, rateHz, depth float64) *Oscillator {
	return &Oscillator{wave: wave, rateHz: rateHz, depth: depth}
}

// Sample advances by one sample and returns a value in [-depth, +depth].
// Returns 0 if depth or rate is zero.
func (o *Oscillator) Sample(sampleRate float64) float64 {
	if o.depth == 0 || o.rateHz == 0 || sampleRate == 0 {
		return 0
	}
	var v float64
	switch o.wave {
	case WaveSaw:
		v = 1.0 - 2.0*o.phase
	case WaveSquare:
		if o.phase < 0.5 {
			v = 1.0
		} else {
			v = -1.0
		}
	case WaveRandom:
		v = o.held
	case WaveSine:
		v = math.Sin(2 * math.Pi * o.phase)
	default:
		if o.phase < 0.5 {
			v = 4.0*o.phase - 1.0
		} else {
			v = 3.0 - 4.0*o.phase
		}
	}

	prev := o.phase
	o.phase += o.rateHz / sampleRate
	o.phase -= math.Floor(o.phase)
	if o.wave == WaveRandom && o.phase < prev {
		// sine hash; deterministic so renders repeat
		h := math.Sin(o.phase*12345.6789+o.held*67890.1234) * 2.0
		o.held = (h-math.Floor(h))*2.0 - 1.0
	}
	return v * o.depth
}

func (o *Oscillator) Reset() {
	o.phase = 0
	o.held = 0
}

// Fill writes offset plus the oscillator into dst, one sample per element.
func (o *Oscillator) Fill(dst []float32, sampleRate int, offset float64) {
	sr := float64(sampleRate)
	for i := range dst {
		dst[i] = float32(offset + o.Sample(sr))
	}
}
