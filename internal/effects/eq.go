package effects

// EQ3Band is a fixed 3-band equalizer built from two one-pole splits.
type EQ3Band struct {
	lowGain  float32
	midGain  float32
	highGain float32
	lpAlpha  float32
	hpAlpha  float32
	lp, hp   []float32
}

// NewEQ3Band creates a 3-band EQ. Gains are linear (1.0 = unity); lowFreq and
// highFreq are the crossover points.
func NewEQ3Band(sampleRate, channels int, lowGain, midGain, highGain, lowFreq, highFreq float32) *EQ3Band {
	return &EQ3Band{
		lowGain:  lowGain,
		midGain:  midGain,
		highGain: highGain,
		lpAlpha:  onePole(sampleRate, float64(lowFreq)),
		hpAlpha:  onePole(sampleRate, float64(highFreq)),
		lp:       make([]float32, channels),
		hp:       make([]float32, channels),
	}
}

func (eq *EQ3Band) Process(frame []float32) {
	for ch := 0; ch < len(frame) && ch < len(eq.lp); ch++ {
		v := frame[ch]
		eq.lp[ch] += eq.lpAlpha * (v - eq.lp[ch])
		eq.hp[ch] += eq.hpAlpha * (v - eq.hp[ch])
		low := eq.lp[ch]
		high := v - eq.hp[ch]
		mid := v - low - high
		frame[ch] = low*eq.lowGain + mid*eq.midGain + high*eq.highGain
	}
}

func (eq *EQ3Band) Reset() {
	zero([][]float32{eq.lp, eq.hp})
}
