package effects

// Delay is a multichannel feedback delay. Each channel feeds a share of its
// neighbour's delayed signal back into its own line.
type Delay struct {
	lines    [][]float32
	pos      int
	feedback float32
	cross    float32
	wet      float32
	delayed  []float32
}

// NewDelay creates a delay effect.
// delayMs: delay time in milliseconds
// feedback: feedback amount 0..1
// cross: share of feedback taken from the next channel 0..1
// wet: wet/dry mix 0..1
func NewDelay(sampleRate, channels int, delayMs float64, feedback, cross, wet float32) *Delay {
	samples := int(delayMs * float64(sampleRate) / 1000.0)
	if samples < 1 {
		samples = 1
	}
	return &Delay{
		lines:    delayLines(channels, samples),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
		delayed:  make([]float32, channels),
	}
}

func (d *Delay) Process(frame []float32) {
	n := len(d.lines)
	for ch := 0; ch < n; ch++ {
		d.delayed[ch] = d.lines[ch][d.pos]
	}
	for ch := 0; ch < n && ch < len(frame); ch++ {
		own, next := d.delayed[ch], d.delayed[(ch+1)%n]
		fb := own*d.feedback*(1-d.cross) + next*d.feedback*d.cross
		d.lines[ch][d.pos] = frame[ch] + fb
		frame[ch] = frame[ch]*(1-d.wet) + own*d.wet
	}
	d.pos++
	if d.pos >= len(d.lines[0]) {
		d.pos = 0
	}
}

func (d *Delay) Reset() {
	zero(d.lines)
	d.pos = 0
}
