package effects

import "math"

// Distortion is tanh waveshaping with pre/post gain and an optional one-pole
// lowpass per channel.
type Distortion struct {
	preGain  float32
	postGain float32
	lpfAlpha float32
	lpf      []float32
}

// NewDistortion creates a distortion effect.
// lpfCutoff: lowpass cutoff in Hz (0 disables it)
func NewDistortion(sampleRate, channels int, preGain, postGain, lpfCutoff float32) *Distortion {
	d := &Distortion{preGain: preGain, postGain: postGain, lpf: make([]float32, channels)}
	if lpfCutoff > 0 && lpfCutoff < float32(sampleRate)/2 {
		d.lpfAlpha = onePole(sampleRate, float64(lpfCutoff))
	}
	return d
}

func onePole(sampleRate int, freq float64) float32 {
	rc := 1.0 / (2.0 * math.Pi * freq)
	dt := 1.0 / float64(sampleRate)
	return float32(dt / (rc + dt))
}

func (d *Distortion) Process(frame []float32) {
	for ch := 0; ch < len(frame) && ch < len(d.lpf); ch++ {
		v := float32(math.Tanh(float64(frame[ch]*d.preGain))) * d.postGain
		if d.lpfAlpha > 0 {
			d.lpf[ch] += d.lpfAlpha * (v - d.lpf[ch])
			v = d.lpf[ch]
		}
		frame[ch] = v
	}
}

func (d *Distortion) Reset() {
	for i := range d.lpf {
		d.lpf[i] = 0
	}
}
