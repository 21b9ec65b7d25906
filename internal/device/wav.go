package device

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/wav"
)

var ErrInvalidWAV = errors.New("not a valid WAV file")

// DecodeWAV reads one channel of a PCM WAV stream into a buffer at the file's
// native rate. Samples are normalized to [-1, 1).
func DecodeWAV(r io.ReadSeeker, channel int) (*Buffer, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode pcm: %w", err)
	}
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 {
		return nil, fmt.Errorf("%w: unknown bit depth", ErrInvalidWAV)
	}
	chans := pcm.Format.NumChannels
	if chans < 1 {
		chans = 1
	}
	if channel < 0 || channel >= chans {
		return nil, fmt.Errorf("channel %d out of range for %d-channel file", channel, chans)
	}
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	frames := len(pcm.Data) / chans
	buf := NewBuffer(frames, pcm.Format.SampleRate)
	for i := 0; i < frames; i++ {
		buf.Data[i] = float32(pcm.Data[i*chans+channel]) / factor
	}
	return buf, nil
}
