package device

import (
	"math"

	"github.com/chewxy/math32"
)

type Mode uint8

const (
	ModeOnce Mode = iota
	ModeLoop
	ModePhase
)

func ParseMode(s string) (Mode, bool) {
	switch s {
	case "once":
		return ModeOnce, true
	case "loop":
		return ModeLoop, true
	case "phase":
		return ModePhase, true
	}
	return ModeOnce, false
}

func (m Mode) String() string {
	switch m {
	case ModeLoop:
		return "loop"
	case ModePhase:
		return "phase"
	}
	return "once"
}

// Player resamples an input buffer into its output buffer, mixing on top of
// what is already there. Positions are in samples of the respective buffer;
// LoopStart and LoopLength are in input samples. Speed is input samples
// consumed per output sample.
type Player struct {
	Input  *Buffer
	Output *Buffer
	InPos  float64
	OutPos int

	Volume       float32
	VolumeSource Source
	Speed        float64
	SpeedSource  Source
	PhaseSource  Source
	LoopStart    float64
	LoopLength   float64
	StartSource  Source
	LengthSource Source
	Mode         Mode

	stop StopReason
}

func NewPlayer() *Player {
	return &Player{Volume: 1, Speed: 1}
}

func (p *Player) StopReason() StopReason { return p.stop }

func (p *Player) Run(n int) int {
	p.stop = 0
	if p.Output == nil {
		p.stop = StopOutput
		return 0
	}
	if p.Input == nil || p.Input.Len() == 0 {
		p.stop = StopInput
		return 0
	}
	in := p.Input.Data
	inLen := float64(len(in))
	out := p.Output.Data
	done := 0
	for ; done < n; done++ {
		if p.OutPos >= len(out) {
			p.stop |= StopOutput
			break
		}
		// Every source is peeked first; nothing is consumed unless the whole
		// sample can be produced.
		vol := p.Volume
		if p.VolumeSource.Bound() {
			v, ok := p.VolumeSource.peek()
			if !ok {
				p.stop |= StopVolume
				break
			}
			vol *= v
		}
		speed := p.Speed
		if p.SpeedSource.Bound() {
			v, ok := p.SpeedSource.peek()
			if !ok {
				p.stop |= StopSpeed
				break
			}
			speed *= float64(v)
		}
		pos := p.InPos
		if p.Mode == ModePhase {
			if !p.PhaseSource.Bound() {
				p.stop |= StopPhase
				break
			}
			v, ok := p.PhaseSource.peek()
			if !ok {
				p.stop |= StopPhase
				break
			}
			pos = float64(v) * inLen
		}
		start, length := p.LoopStart, p.LoopLength
		if p.Mode == ModeLoop {
			if p.StartSource.Bound() {
				v, ok := p.StartSource.peek()
				if !ok {
					p.stop |= StopStart
					break
				}
				start = float64(v) * inLen
			}
			if p.LengthSource.Bound() {
				v, ok := p.LengthSource.peek()
				if !ok {
					p.stop |= StopLength
					break
				}
				length = float64(v) * inLen
			}
			pos = wrap(pos, start, length)
		}
		if !(pos >= 0 && pos < inLen) {
			if p.Mode == ModePhase && !math.IsNaN(pos) && !math.IsInf(pos, 0) {
				pos = wrap(pos, 0, inLen)
			}
			// NaN and infinite positions fail this check as well.
			if !(pos >= 0 && pos < inLen) {
				p.stop |= StopInput
				break
			}
		}
		out[p.OutPos] += interpolate(in, pos, p.Mode == ModeLoop, start, length) * vol

		p.VolumeSource.advance()
		p.SpeedSource.advance()
		p.PhaseSource.advance()
		p.StartSource.advance()
		p.LengthSource.advance()
		p.OutPos++
		if p.Mode == ModePhase {
			p.InPos = pos
		} else {
			p.InPos = pos + speed
		}
	}
	return done
}

func (s *Source) advance() {
	if s.Buffer != nil {
		s.Pos++
	}
}

// wrap folds pos into [start, start+length). A non-positive length leaves pos
// alone so the player runs off the end like a one-shot.
func wrap(pos, start, length float64) float64 {
	if length <= 0 {
		return pos
	}
	if pos >= start+length || pos < start {
		off := pos - start
		off -= length * float64(int64(off/length))
		if off < 0 {
			off += length
		}
		pos = start + off
	}
	return pos
}

func interpolate(in []float32, pos float64, loop bool, start, length float64) float32 {
	i := int(pos)
	frac := float32(pos - float64(i))
	a := in[i]
	var b float32
	switch {
	case i+1 < len(in) && (!loop || length <= 0 || float64(i+1) < start+length):
		b = in[i+1]
	case loop && length > 0:
		b = in[int(start)%len(in)]
	}
	return a + (b-a)*frac
}

// NoteRatio returns the playback ratio for a MIDI note number, with middle C
// (60) at the sample's native pitch.
func NoteRatio(note int) float64 {
	return float64(math32.Pow(2, float32(note-60)/12))
}
