package effects

import "github.com/chewxy/math32"

// Chorus is a sine-modulated fractional delay shared by all channels.
type Chorus struct {
	lines    [][]float32
	pos      int
	depth    float32 // samples
	rate     float32 // radians per sample
	phase    float32
	feedback float32
	wet      float32
}

// NewChorus creates a chorus/flanger effect.
// delayMs: base delay (typically 5-30ms)
// feedback: 0..1
// depthMs: modulation depth
// rateHz: modulation rate (typically 0.1-5Hz)
// wet: wet/dry mix 0..1
func NewChorus(sampleRate, channels int, delayMs, feedback, depthMs, rateHz, wet float32) *Chorus {
	sr := float32(sampleRate)
	base := int(delayMs * sr / 1000)
	depth := depthMs * sr / 1000
	size := max(base+int(depth)+2, 4)
	return &Chorus{
		lines:    delayLines(channels, size),
		depth:    depth,
		rate:     2 * math32.Pi * rateHz / sr,
		feedback: clamp(feedback, 0, 0.9),
		wet:      clamp(wet, 0, 1),
	}
}

func (c *Chorus) Process(frame []float32) {
	size := len(c.lines[0])
	mod := math32.Sin(c.phase) * c.depth
	c.phase += c.rate
	if c.phase > 2*math32.Pi {
		c.phase -= 2 * math32.Pi
	}
	read := float32(c.pos) - (float32(size/2) + mod)
	for read < 0 {
		read += float32(size)
	}
	idx := int(read)
	frac := read - float32(idx)
	idx2 := (idx + 1) % size
	for ch := 0; ch < len(frame) && ch < len(c.lines); ch++ {
		line := c.lines[ch]
		line[c.pos] = frame[ch]
		del := line[idx]*(1-frac) + line[idx2]*frac
		line[c.pos] += del * c.feedback
		frame[ch] = frame[ch]*(1-c.wet) + del*c.wet
	}
	c.pos++
	if c.pos >= size {
		c.pos = 0
	}
}

func (c *Chorus) Reset() {
	zero(c.lines)
	c.pos = 0
	c.phase = 0
}
