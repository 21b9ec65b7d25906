package effects

import (
	"math"
	"sync/atomic"
)

// EQ5Band is the master equalizer. Bands are split at 200Hz, 800Hz, 2.5kHz
// and 8kHz. Gains are float32 bit patterns so the audio thread reads them
// without locking.
type EQ5Band struct {
	gains  [5]atomic.Uint32
	alphas [4]float32
	lp     [][4]float32 // crossover state per channel
}

var defaultCrossovers = [4]float64{200, 800, 2500, 8000}

// NewEQ5Band creates a 5-band EQ with all gains at unity.
func NewEQ5Band(sampleRate, channels int) *EQ5Band {
	eq := &EQ5Band{lp: make([][4]float32, channels)}
	for i, freq := range defaultCrossovers {
		eq.alphas[i] = onePole(sampleRate, freq)
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1.0))
	}
	return eq
}

// SetGain sets the gain for band (0-4). 1.0 = unity, 0.0 = silence, 2.0 = +6dB.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band >= 0 && band < 5 {
		eq.gains[band].Store(math.Float32bits(gain))
	}
}

func (eq *EQ5Band) Gain(band int) float32 {
	if band >= 0 && band < 5 {
		return math.Float32frombits(eq.gains[band].Load())
	}
	return 1.0
}

// Flat reports whether every band is at unity.
func (eq *EQ5Band) Flat() bool {
	for i := range eq.gains {
		if eq.Gain(i) != 1 {
			return false
		}
	}
	return true
}

func (eq *EQ5Band) Process(frame []float32) {
	var g [5]float32
	for i := range g {
		g[i] = math.Float32frombits(eq.gains[i].Load())
	}
	for ch := 0; ch < len(frame) && ch < len(eq.lp); ch++ {
		st := &eq.lp[ch]
		rem := frame[ch]
		var out float32
		for i := 0; i < 4; i++ {
			st[i] += eq.alphas[i] * (rem - st[i])
			out += st[i] * g[i]
			rem -= st[i]
		}
		frame[ch] = out + rem*g[4]
	}
}

func (eq *EQ5Band) Reset() {
	for i := range eq.lp {
		eq.lp[i] = [4]float32{}
	}
}
