package sequencer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cbegin/trackseq-go/internal/device"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

var (
	ErrSpeed = errors.New("invalid speed")
	ErrMode  = errors.New("invalid player mode")
)

// channel is one timeline column bound to a device. The three kinds differ in
// their fields and device; the runtime drives them all the same way.
type channel interface {
	kind() Kind
	primitive() device.Device
	apply(values []timeline.Value) error
	output() *device.Buffer
	setOutPos(pos int)
	common() *channelState
	// settings is a comparable snapshot of every field a row can set.
	settings() any
}

// channelState is what the runtime itself tracks per channel.
type channelState struct {
	pending int
	// follow holds the follow-up row per entry of the kind's followUps, or
	// timeline.NoRow.
	follow []int
}

func newChannelState(k Kind) channelState {
	follow := make([]int, len(kindLayouts[k].followUps))
	for i := range follow {
		follow[i] = timeline.NoRow
	}
	return channelState{follow: follow}
}

// setFollow stores a follow-up field if field is one, and reports whether it was.
func (s *channelState) setFollow(k Kind, field int, v timeline.Value) bool {
	base := len(kindLayouts[k].fields)
	if field < base {
		return false
	}
	s.follow[field-base] = v.RowIndex()
	return true
}

// binder resolves buffer indices and converts times for channel updates.
type binder struct {
	buffers *BufferTable
	rate    int
}

func (b *binder) buffer(v timeline.Value) (*device.Buffer, error) {
	return b.buffers.Resolve(int(v.Int))
}

// samples converts ms against buf, or against the device rate when buf is nil.
func (b *binder) samples(buf *device.Buffer, ms float64) int {
	if buf == nil {
		buf = &device.Buffer{Rate: b.rate}
	}
	n := buf.Samples(ms)
	if n < 0 {
		return 0
	}
	return n
}

func position(buf *device.Buffer, ms float64) int {
	if buf == nil {
		return 0
	}
	return buf.Position(ms)
}

func newChannel(k Kind, b *binder) channel {
	switch k {
	case KindPlayer:
		return &playerChannel{b: b, dev: device.NewPlayer(), channelState: newChannelState(k), ratio: 1}
	case KindFilter:
		return &filterChannel{b: b, dev: device.NewFilter(), channelState: newChannelState(k)}
	}
	return &silenceChannel{b: b, dev: &device.Silence{}, channelState: newChannelState(k)}
}

type silenceChannel struct {
	channelState
	b   *binder
	dev *device.Silence
}

func (c *silenceChannel) kind() Kind { return KindSilence }
func (c *silenceChannel) primitive() device.Device { return c.dev }
func (c *silenceChannel) output() *device.Buffer { return c.dev.Output }
func (c *silenceChannel) setOutPos(pos int) { c.dev.OutPos = pos }
func (c *silenceChannel) common() *channelState { return &c.channelState }
func (c *silenceChannel) settings() any { return *c.dev }

func (c *silenceChannel) apply(values []timeline.Value) error {
	for i, v := range values {
		if v.IsNull() || c.setFollow(KindSilence, i, v) {
			continue
		}
		switch i {
		case silOutput:
			buf, err := c.b.buffer(v)
			if err != nil {
				return err
			}
			c.dev.Output = buf
		case silOutPos:
			c.dev.OutPos = position(c.dev.Output, v.Float)
		case silReqTime:
			c.pending = c.b.samples(c.dev.Output, v.Float)
		}
	}
	return nil
}

type playerChannel struct {
	channelState
	b      *binder
	dev    *device.Player
	ratio  float64
	loopMs float64
}

type playerSettings struct {
	dev           device.Player
	ratio, loopMs float64
}

func (c *playerChannel) kind() Kind { return KindPlayer }
func (c *playerChannel) primitive() device.Device { return c.dev }
func (c *playerChannel) output() *device.Buffer { return c.dev.Output }
func (c *playerChannel) setOutPos(pos int) { c.dev.OutPos = pos }
func (c *playerChannel) common() *channelState { return &c.channelState }
func (c *playerChannel) settings() any {
	return playerSettings{dev: *c.dev, ratio: c.ratio, loopMs: c.loopMs}
}

func (c *playerChannel) apply(values []timeline.Value) error {
	for i, v := range values {
		if v.IsNull() || c.setFollow(KindPlayer, i, v) {
			continue
		}
		var err error
		switch i {
		case plInput:
			c.dev.Input, err = c.b.buffer(v)
		case plInPos:
			c.dev.InPos = float64(position(c.dev.Input, v.Float))
		case plOutput:
			c.dev.Output, err = c.b.buffer(v)
		case plOutPos:
			c.dev.OutPos = position(c.dev.Output, v.Float)
		case plReqTime:
			c.pending = c.b.samples(c.dev.Output, v.Float)
		case plVolume:
			c.dev.Volume = float32(v.Float)
		case plVolumeSource:
			err = c.bind(&c.dev.VolumeSource, v)
		case plSpeed:
			c.ratio, err = parseSpeed(v.Str)
		case plSpeedSource:
			err = c.bind(&c.dev.SpeedSource, v)
		case plPhaseSource:
			err = c.bind(&c.dev.PhaseSource, v)
		case plLoopStart:
			c.dev.LoopStart = float64(position(c.dev.Input, v.Float))
		case plLoopLength:
			c.loopMs = v.Float
		case plStartSource:
			err = c.bind(&c.dev.StartSource, v)
		case plLengthSource:
			err = c.bind(&c.dev.LengthSource, v)
		case plMode:
			mode, ok := device.ParseMode(v.Str)
			if !ok {
				err = fmt.Errorf("%w %q", ErrMode, v.Str)
			}
			c.dev.Mode = mode
		}
		if err != nil {
			return err
		}
	}
	// Loop length and speed follow the rate of whatever input is bound now.
	c.dev.LoopLength = 0
	if c.dev.Input != nil {
		c.dev.LoopLength = float64(c.b.samples(c.dev.Input, c.loopMs))
	}
	c.dev.Speed = c.ratio
	if c.dev.Input != nil && c.dev.Output != nil && c.dev.Output.Rate > 0 {
		c.dev.Speed = float64(c.dev.Input.Rate) / float64(c.dev.Output.Rate) * c.ratio
	}
	return nil
}

func (c *playerChannel) bind(src *device.Source, v timeline.Value) error {
	buf, err := c.b.buffer(v)
	if err != nil {
		return err
	}
	src.Bind(buf)
	return nil
}

type filterChannel struct {
	channelState
	b   *binder
	dev *device.Filter
}

func (c *filterChannel) kind() Kind { return KindFilter }
func (c *filterChannel) primitive() device.Device { return c.dev }
func (c *filterChannel) output() *device.Buffer { return c.dev.Output }
func (c *filterChannel) setOutPos(pos int) { c.dev.OutPos = pos }
func (c *filterChannel) common() *channelState { return &c.channelState }

type filterSettings struct {
	input, output, kernel      *device.Buffer
	inPos, outPos              int
	volume                     float32
	volumeSource, sliceSource  device.Source
	kernelStart, slices, slice int
}

func (c *filterChannel) settings() any {
	f := c.dev
	return filterSettings{
		input:        f.Input,
		output:       f.Output,
		kernel:       f.Kernel,
		inPos:        f.InPos,
		outPos:       f.OutPos,
		volume:       f.Volume,
		volumeSource: f.VolumeSource,
		sliceSource:  f.SliceSource,
		kernelStart:  f.KernelStart,
		slices:       f.Slices,
		slice:        f.Slice,
	}
}

func (c *filterChannel) apply(values []timeline.Value) error {
	for i, v := range values {
		if v.IsNull() || c.setFollow(KindFilter, i, v) {
			continue
		}
		var err error
		switch i {
		case fiInput:
			c.dev.Input, err = c.b.buffer(v)
		case fiInPos:
			c.dev.InPos = position(c.dev.Input, v.Float)
		case fiOutput:
			c.dev.Output, err = c.b.buffer(v)
		case fiOutPos:
			c.dev.OutPos = position(c.dev.Output, v.Float)
		case fiReqTime:
			c.pending = c.b.samples(c.dev.Output, v.Float)
		case fiVolume:
			c.dev.Volume = float32(v.Float)
		case fiVolumeSource:
			var buf *device.Buffer
			if buf, err = c.b.buffer(v); err == nil {
				c.dev.VolumeSource.Bind(buf)
			}
		case fiFilter:
			c.dev.Kernel, err = c.b.buffer(v)
		case fiFilterStart:
			c.dev.KernelStart = position(c.dev.Kernel, v.Float)
		case fiSlices:
			c.dev.Slices = int(v.Int)
		case fiSlice:
			c.dev.Slice = int(v.Int)
		case fiSliceSource:
			var buf *device.Buffer
			if buf, err = c.b.buffer(v); err == nil {
				c.dev.SliceSource.Bind(buf)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

var noteSemitones = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// parseSpeed reads a literal ratio ("1.5") or a note name ("C4", "F#3",
// "Bb2", "A-5") played relative to C4.
func parseSpeed(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w %q", ErrSpeed, s)
		}
		return v, nil
	}
	note, err := parseNote(s)
	if err != nil {
		return 0, err
	}
	return device.NoteRatio(note), nil
}

func parseNote(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrSpeed)
	}
	semi, ok := noteSemitones[strings.ToUpper(s[:1])[0]]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrSpeed, s)
	}
	rest := s[1:]
	switch {
	case strings.HasPrefix(rest, "#"):
		semi++
		rest = rest[1:]
	case strings.HasPrefix(rest, "b"):
		semi--
		rest = rest[1:]
	case strings.HasPrefix(rest, "-") && len(rest) > 1 && rest[1] != '-':
		rest = rest[1:]
	}
	octave, err := strconv.Atoi(rest)
	if err != nil {
		return 0, fmt.Errorf("%w %q", ErrSpeed, s)
	}
	note := (octave+1)*12 + semi
	if note < 0 || note > 127 {
		return 0, fmt.Errorf("%w %q", ErrSpeed, s)
	}
	return note, nil
}
