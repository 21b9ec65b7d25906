package trackseq

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// renderPeriod is the window size Render runs a sequence with.
const renderPeriod = 1024

// Render runs seq for up to seconds and returns its interleaved frames with
// the sequence's tag effects applied. The result is shorter when the sequence
// ends first.
func Render(seq *Sequence, seconds float64) ([]float32, error) {
	if seconds < 0 {
		return nil, errors.New("seconds must not be negative")
	}
	ch := seq.Channels()
	frames := int(float64(seq.Rate()) * seconds)
	out := make([]float32, 0, frames*ch)
	buf := make([]float32, renderPeriod*ch)
	for done := 0; done < frames && !seq.Ended(); {
		get := min(renderPeriod, frames-done)
		n, err := seq.Fill(buf[:get*ch])
		if err != nil {
			return out, err
		}
		if n == 0 {
			break
		}
		chunk := buf[:n*ch]
		seq.applyEffects(chunk)
		out = append(out, chunk...)
		done += n
	}
	return out, nil
}

// WriteWAV encodes interleaved float samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate, channels int) error {
	if channels <= 0 || sampleRate <= 0 {
		return fmt.Errorf("invalid format %d Hz x%d", sampleRate, channels)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = pcm16(s)
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav: %w", err)
	}
	return nil
}

func pcm16(s float32) int {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32767
	}
	return int(s * 32767)
}
