package effects

// Effector processes one interleaved frame in place. len(frame) is the
// channel count the effect was built for.
type Effector interface {
	Process(frame []float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(frame []float32) {
	for _, e := range c.effects {
		e.Process(frame)
	}
}

// ProcessFrames runs the chain over every whole frame of an interleaved buffer.
func (c *Chain) ProcessFrames(buf []float32, channels int) {
	if channels <= 0 || len(c.effects) == 0 {
		return
	}
	for i := 0; i+channels <= len(buf); i += channels {
		c.Process(buf[i : i+channels])
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func zero(bufs [][]float32) {
	for _, b := range bufs {
		for i := range b {
			b[i] = 0
		}
	}
}

func delayLines(channels, size int) [][]float32 {
	lines := make([][]float32, channels)
	for ch := range lines {
		lines[ch] = make([]float32, size)
	}
	return lines
}
