package device

import "github.com/viterin/vek/vek32"

// Window is the in-memory output device a sequence renders into: one mono
// buffer per output channel, sized to the frames the backend asked for in
// the current period. Buffer pointers stay stable across periods.
type Window struct {
	rate     int
	outputs  []*Buffer
	needed   int
	underrun bool
}

func NewWindow(rate, channels int) *Window {
	w := &Window{rate: rate, outputs: make([]*Buffer, channels)}
	for i := range w.outputs {
		w.outputs[i] = &Buffer{Rate: rate}
	}
	return w
}

func (w *Window) Rate() int { return w.rate }

func (w *Window) Channels() int { return len(w.outputs) }

func (w *Window) Needed() int { return w.needed }

// Underrun reports whether the backend starved before this period.
func (w *Window) Underrun() bool { return w.underrun }

func (w *Window) SetUnderrun(v bool) { w.underrun = v }

func (w *Window) Output(ch int) *Buffer { return w.outputs[ch] }

// Prepare sizes every output to frames samples of silence.
func (w *Window) Prepare(frames int) {
	w.needed = frames
	for _, b := range w.outputs {
		if cap(b.Data) < frames {
			b.Data = make([]float32, frames)
			continue
		}
		b.Data = vek32.Zeros_Into(b.Data, frames)
	}
}

// Interleave writes the prepared frames into dst as channel-interleaved
// samples, scaled by gain. dst must hold Needed()*Channels() samples.
func (w *Window) Interleave(dst []float32, gain float32) {
	chans := len(w.outputs)
	for ch, b := range w.outputs {
		for i, s := range b.Data[:w.needed] {
			dst[i*chans+ch] = s * gain
		}
	}
}
