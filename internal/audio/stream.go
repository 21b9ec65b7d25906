package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

// SampleSource fills dst with interleaved float32 frames.
type SampleSource interface {
	Process(dst []float32)
}

// FinishingSource is a SampleSource that can signal when playback has ended.
// When Finished returns true, the stream will return io.EOF on the next Read.
type FinishingSource interface {
	SampleSource
	Finished() bool
}

// StreamReader pulls whole frames from a SampleSource and encodes them as
// float32 little-endian bytes.
type StreamReader struct {
	mu       sync.Mutex
	source   SampleSource
	channels int
	buf      []float32
	frames   atomic.Int64
}

func NewStreamReader(source SampleSource, channels int) *StreamReader {
	if channels < 1 {
		channels = 1
	}
	return &StreamReader{source: source, channels: channels}
}

func (r *StreamReader) FrameSize() int { return 4 * r.channels }

// Frames is the number of frames handed to the backend so far.
func (r *StreamReader) Frames() int64 { return r.frames.Load() }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / r.FrameSize()
	if frames == 0 {
		return 0, nil
	}
	need := frames * r.channels
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	r.frames.Add(int64(frames))
	n := frames * r.FrameSize()
	if fs, ok := r.source.(FinishingSource); ok && fs.Finished() {
		return n, io.EOF
	}
	return n, nil
}

func (r *StreamReader) Close() error { return nil }
