package device

import "math"

// Buffer is a mono run of float32 samples at a native rate.
type Buffer struct {
	Data []float32
	Rate int
}

func NewBuffer(samples, rate int) *Buffer {
	if samples < 0 {
		samples = 0
	}
	return &Buffer{Data: make([]float32, samples), Rate: rate}
}

// SilenceBuffer allocates a zeroed buffer lasting ms milliseconds at rate.
func SilenceBuffer(ms float64, rate int) *Buffer {
	b := &Buffer{Rate: rate}
	return NewBuffer(b.Samples(ms), rate)
}

func (b *Buffer) Len() int { return len(b.Data) }

func (b *Buffer) SamplesPerMs() float64 { return float64(b.Rate) / 1000 }

// Samples converts a duration in milliseconds to a sample count at the
// buffer's rate.
func (b *Buffer) Samples(ms float64) int {
	return int(math.Round(ms * b.SamplesPerMs()))
}

// Position converts a millisecond offset into a sample index. Negative offsets
// count back from the end of the buffer. The result is clamped to [0, Len].
func (b *Buffer) Position(ms float64) int {
	pos := b.Samples(ms)
	if ms < 0 {
		pos += b.Len()
	}
	if pos < 0 {
		return 0
	}
	if pos > b.Len() {
		return b.Len()
	}
	return pos
}

// Source is a modulation input: a buffer read one sample per output sample.
type Source struct {
	Buffer *Buffer
	Pos    int
}

// Bind attaches b and rewinds the read position.
func (s *Source) Bind(b *Buffer) {
	s.Buffer = b
	s.Pos = 0
}

func (s *Source) Bound() bool { return s.Buffer != nil }

// peek returns the current sample without consuming it.
func (s *Source) peek() (float32, bool) {
	if s.Pos >= len(s.Buffer.Data) {
		return 0, false
	}
	return s.Buffer.Data[s.Pos], true
}
