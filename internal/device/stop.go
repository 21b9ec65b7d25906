package device

import "strings"

// StopReason is a bitmask explaining why a device produced fewer samples than
// requested.
type StopReason uint32

const (
	StopOutput StopReason = 1 << iota
	StopInput
	StopVolume
	StopSpeed
	StopPhase
	StopStart
	StopLength
	StopSlice
	// StopRequest is set by the channel runtime, never by a device, when the
	// channel's pending request reached zero.
	StopRequest
)

var stopNames = []string{"output", "input", "volume", "speed", "phase", "start", "length", "slice", "request"}

func (s StopReason) String() string {
	if s == 0 {
		return "none"
	}
	var parts []string
	for i, name := range stopNames {
		if s&(1<<uint(i)) != 0 {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, "|")
}

// Device is the primitive a channel drives: Run writes up to n samples and
// reports how many it produced; StopReason explains a short run.
type Device interface {
	Run(n int) int
	StopReason() StopReason
}
