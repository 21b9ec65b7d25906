package audio

import (
	"fmt"
	"time"
)

type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendEbiten, BackendOto:
		return b, nil
	}
	return "", fmt.Errorf("unknown audio backend %q", s)
}

// Output is a started or paused real-time stream on a sound device.
type Output interface {
	Play()
	Pause()
	IsPlaying() bool
	// Position is what the listener actually hears.
	Position() time.Duration
	Stop() error
}

// NewOutput opens source on the given backend. Only one sample rate can be
// used per process and backend.
func NewOutput(backend Backend, sampleRate, channels int, source SampleSource) (Output, error) {
	switch backend {
	case BackendEbiten, "":
		return newEbitenOutput(sampleRate, channels, source)
	case BackendOto:
		return newOtoOutput(sampleRate, channels, source)
	}
	return nil, fmt.Errorf("unknown audio backend %q", backend)
}
