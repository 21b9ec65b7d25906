package effects

import "github.com/chewxy/math32"

// Compressor is a per-channel peak compressor with makeup gain.
type Compressor struct {
	threshold float32
	ratio     float32
	attack    float32 // coefficient
	release   float32 // coefficient
	makeup    float32
	env       []float32
}

// NewCompressor creates a compressor effect.
// thresholdDB: threshold in dB (e.g., -20)
// ratio: compression ratio (e.g., 4 for 4:1)
// attackMs, releaseMs: envelope times
// makeupDB: makeup gain in dB
func NewCompressor(sampleRate, channels int, thresholdDB, ratio, attackMs, releaseMs, makeupDB float32) *Compressor {
	sr := float32(sampleRate)
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: dbToGain(thresholdDB),
		ratio:     ratio,
		attack:    1 - math32.Exp(-1/(attackMs*sr/1000)),
		release:   1 - math32.Exp(-1/(releaseMs*sr/1000)),
		makeup:    dbToGain(makeupDB),
		env:       make([]float32, channels),
	}
}

func dbToGain(db float32) float32 { return math32.Pow(10, db/20) }

func (c *Compressor) Process(frame []float32) {
	for ch := 0; ch < len(frame) && ch < len(c.env); ch++ {
		abs := math32.Abs(frame[ch])
		if abs > c.env[ch] {
			c.env[ch] += c.attack * (abs - c.env[ch])
		} else {
			c.env[ch] += c.release * (abs - c.env[ch])
		}
		frame[ch] *= c.gain(c.env[ch]) * c.makeup
	}
}

func (c *Compressor) gain(env float32) float32 {
	if env <= c.threshold || c.threshold <= 0 {
		return 1
	}
	return math32.Pow(env/c.threshold, 1/c.ratio-1)
}

func (c *Compressor) Reset() {
	for i := range c.env {
		c.env[i] = 0
	}
}
