package trackseq

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/cbegin/trackseq-go/internal/device"
	intfx "github.com/cbegin/trackseq-go/internal/effects"
	"github.com/cbegin/trackseq-go/internal/preproc"
	intseq "github.com/cbegin/trackseq-go/internal/sequencer"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

// ParseError locates a malformed line of a sequence file.
type ParseError = timeline.ParseError

var (
	ErrInsufficientChannels = intseq.ErrInsufficientChannels
	ErrBufferRange          = intseq.ErrBufferRange
	ErrUnknownExternal      = intseq.ErrUnknownExternal
)

const (
	DefaultSampleRate = 48000
	DefaultChannels   = 2
)

type LoadOption func(*loadConfig)

type loadConfig struct {
	rate     int
	channels int
	macros   map[string]string
	external map[string]*device.Buffer
	stall    int
	logger   *slog.Logger
}

func defaultLoadConfig() loadConfig {
	return loadConfig{
		rate:     DefaultSampleRate,
		channels: DefaultChannels,
		macros:   make(map[string]string),
		external: make(map[string]*device.Buffer),
	}
}

// WithOutput sets the rate and channel count of the device the sequence
// renders for.
func WithOutput(sampleRate, channels int) LoadOption {
	return func(cfg *loadConfig) {
		cfg.rate = sampleRate
		cfg.channels = channels
	}
}

// WithExternalBuffer supplies the samples behind `buffer external <name>`.
// The slice is referenced, not copied.
func WithExternalBuffer(name string, samples []float32, sampleRate int) LoadOption {
	return func(cfg *loadConfig) {
		cfg.external[name] = &device.Buffer{Data: samples, Rate: sampleRate}
	}
}

func WithMacro(name, value string) LoadOption {
	return func(cfg *loadConfig) {
		cfg.macros[name] = value
	}
}

// WithStallThreshold sets how many zero-progress iterations a channel gets
// before it is treated as idle for the rest of a block.
func WithStallThreshold(n int) LoadOption {
	return func(cfg *loadConfig) {
		cfg.stall = n
	}
}

func WithLogger(logger *slog.Logger) LoadOption {
	return func(cfg *loadConfig) {
		cfg.logger = logger
	}
}

// Sequence is a loaded sequence bound to its own output window. It is not
// safe for concurrent use.
type Sequence struct {
	name    string
	seq     *intseq.Sequencer
	window  *device.Window
	effects *intfx.Chain
}

// Load reads a sequence file. Relative `buffer file` and `include` paths
// resolve against the file's directory.
func Load(path string, opts ...LoadOption) (*Sequence, error) {
	cfg := buildLoadConfig(opts)
	full, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	src, err := preproc.Open(full, preproc.WithMacros(cfg.macros))
	if err != nil {
		return nil, err
	}
	return load(full, filepath.Dir(full), src, cfg)
}

// LoadReader reads a sequence from r. name is used in error positions and
// relative paths resolve against the working directory.
func LoadReader(name string, r io.Reader, opts ...LoadOption) (*Sequence, error) {
	cfg := buildLoadConfig(opts)
	src := preproc.New(name, r, preproc.WithMacros(cfg.macros))
	return load(name, "", src, cfg)
}

func buildLoadConfig(opts []LoadOption) loadConfig {
	cfg := defaultLoadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func load(name, baseDir string, src *preproc.Reader, cfg loadConfig) (*Sequence, error) {
	defer src.Close()
	if cfg.rate <= 0 || cfg.channels <= 0 {
		return nil, fmt.Errorf("invalid output %d Hz x%d", cfg.rate, cfg.channels)
	}
	window := device.NewWindow(cfg.rate, cfg.channels)
	scfg := intseq.DefaultConfig()
	scfg.Output = window
	scfg.External = cfg.external
	scfg.BaseDir = baseDir
	scfg.StallThreshold = cfg.stall
	scfg.Logger = cfg.logger
	seq, err := intseq.Load(src, scfg)
	if err != nil {
		return nil, err
	}
	effects, err := intfx.FromTags(seq.Tags(), cfg.rate, cfg.channels)
	if err != nil {
		seq.Close()
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &Sequence{name: name, seq: seq, window: window, effects: effects}, nil
}

func (s *Sequence) Name() string  { return s.name }
func (s *Sequence) Rate() int     { return s.window.Rate() }
func (s *Sequence) Channels() int { return s.window.Channels() }

// Run advances the sequence by up to needed frames into a fresh output
// window. It returns fewer frames only when the sequence ends.
func (s *Sequence) Run(needed int) (int, error) {
	s.window.Prepare(needed)
	return s.seq.Run(needed)
}

// Output is channel ch of the window filled by the last Run.
func (s *Sequence) Output(ch int) []float32 {
	return s.window.Output(ch).Data[:s.window.Needed()]
}

// Fill runs the sequence for len(dst)/Channels() frames and writes them
// interleaved into dst. Frames past the end of the sequence are silent.
func (s *Sequence) Fill(dst []float32) (int, error) {
	frames := len(dst) / s.Channels()
	n, err := s.Run(frames)
	if err != nil {
		return n, err
	}
	s.window.Interleave(dst, 1)
	return n, nil
}

// Reset reloads every buffer and rewinds to the first line.
func (s *Sequence) Reset() error {
	if s.effects != nil {
		s.effects.Reset()
	}
	return s.seq.Reset()
}

// FastReset rewinds to the first line without reloading buffers.
func (s *Sequence) FastReset() { s.seq.FastReset() }

func (s *Sequence) Ended() bool { return s.seq.Ended() }

func (s *Sequence) Tag(name string) (string, bool) { return s.seq.Tag(name) }

func (s *Sequence) Tags() map[string]string { return s.seq.Tags() }

// Close releases the sequence's buffers.
func (s *Sequence) Close() { s.seq.Close() }

// applyEffects runs the effectN tag chain over interleaved frames.
func (s *Sequence) applyEffects(buf []float32) {
	if s.effects != nil {
		s.effects.ProcessFrames(buf, s.Channels())
	}
}
