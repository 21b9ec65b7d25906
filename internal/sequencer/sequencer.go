package sequencer

import (
	"io"
	"log/slog"
	"math"

	"github.com/cbegin/trackseq-go/internal/device"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

type Config struct {
	// Output is the device the sequence renders into.
	Output Output
	// External buffers are referenced by `buffer external <name>`.
	External map[string]*device.Buffer
	// BaseDir resolves relative `buffer file` paths.
	BaseDir string
	// StallThreshold is how many consecutive zero-progress iterations with
	// the same stop reason a channel gets before its request is dropped.
	StallThreshold int
	// MaxRequest caps the samples asked of the cursor in one step.
	MaxRequest int
	Logger     *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		StallThreshold: 2,
		MaxRequest:     4096,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StallThreshold <= 0 {
		c.StallThreshold = d.StallThreshold
	}
	if c.MaxRequest <= 0 {
		c.MaxRequest = d.MaxRequest
	}
	if c.Logger == nil {
		c.Logger = d.Logger
	}
	return c
}

// Sequencer is one loaded sequence: its timeline, buffers, channels and
// cursor. It is not safe for concurrent use; the audio callback owns it.
type Sequencer struct {
	cfg     Config
	log     *slog.Logger
	header  Header
	tl      *timeline.Timeline
	cursor  *Cursor
	buffers *BufferTable
	rt      *runtime
	ended   bool

	clockMs      float64
	clockSamples int64
}

// Load reads a sequence from src and instantiates its buffers against
// cfg.Output.
func Load(src timeline.LineSource, cfg Config) (*Sequencer, error) {
	cfg = cfg.withDefaults()
	h, tl, err := readSequence(src)
	if err != nil {
		return nil, err
	}
	s := &Sequencer{cfg: cfg, log: cfg.Logger, header: h, tl: tl, cursor: NewCursor(tl)}
	if err := s.load(); err != nil {
		return nil, err
	}
	name, _ := src.Position()
	s.log.Debug("sequence loaded",
		"name", name,
		"channels", len(h.Kinds),
		"outputs", h.Channels,
		"buffers", len(h.Buffers),
		"rows", tl.Rows.Len(),
		"patterns", len(tl.Patterns),
	)
	return s, nil
}

func (s *Sequencer) load() error {
	buffers, err := newBufferTable(s.header.Channels, s.cfg.Output)
	if err != nil {
		return err
	}
	if err := buffers.load(s.header.Buffers, s.cfg.BaseDir, s.cfg.External); err != nil {
		return err
	}
	s.buffers = buffers
	s.rt = newRuntime(s.header.Kinds, s.tl.Rows, buffers, s.cfg.Output.Rate(), s.cfg.StallThreshold, s.log)
	return nil
}

func (s *Sequencer) unload() {
	if s.buffers != nil {
		s.buffers.unload()
	}
	s.buffers = nil
	s.rt = nil
}

// Run advances the sequence by up to needed samples of the current output
// window, which starts at position 0. It returns the samples advanced, which
// is short of needed only when the sequence ends.
func (s *Sequencer) Run(needed int) (int, error) {
	if s.ended || s.rt == nil {
		return 0, nil
	}
	spm := float64(s.cfg.Output.Rate()) / 1000
	s.rt.beginWindow()
	advanced := 0
	for needed > 0 {
		get := needed
		if get > s.cfg.MaxRequest {
			get = s.cfg.MaxRequest
		}
		// Ask for the time that lands exactly on the target sample so rounding
		// never accumulates across steps.
		target := s.clockSamples + int64(get)
		step := s.cursor.Advance(float64(target)/spm - s.clockMs)
		if step.Status == StatusEnded {
			s.ended = true
			s.log.Debug("sequence ended", "samples", s.clockSamples)
			break
		}
		s.clockMs += step.Elapsed
		n := int(int64(math.Round(s.clockMs*spm)) - s.clockSamples)
		if n < 0 {
			n = 0
		}
		if n > get {
			n = get
		}
		s.clockSamples += int64(n)
		if err := s.rt.runChannels(n, step.Delta); err != nil {
			return advanced, err
		}
		needed -= n
		advanced += n
	}
	return advanced, nil
}

// FastReset rewinds the cursor and clocks. Buffers and channel state are
// left as they are.
func (s *Sequencer) FastReset() {
	s.cursor.Reset()
	s.ended = false
	s.clockMs = 0
	s.clockSamples = 0
	if s.rt != nil {
		s.rt.outPos = 0
	}
}

// Reset reloads every buffer and channel, then rewinds.
func (s *Sequencer) Reset() error {
	s.unload()
	if err := s.load(); err != nil {
		return err
	}
	s.FastReset()
	return nil
}

// Close releases the sequence's buffers. The sequence produces nothing after
// Close until Reset.
func (s *Sequencer) Close() { s.unload() }

func (s *Sequencer) Ended() bool { return s.ended }

func (s *Sequencer) Tag(name string) (string, bool) {
	v, ok := s.header.Tags[name]
	return v, ok
}

func (s *Sequencer) Tags() map[string]string {
	out := make(map[string]string, len(s.header.Tags))
	for k, v := range s.header.Tags {
		out[k] = v
	}
	return out
}

// Header returns the parsed declaration section.
func (s *Sequencer) Header() Header { return s.header }

// Cursor exposes the playback cursor for diagnostics.
func (s *Sequencer) Cursor() *Cursor { return s.cursor }
