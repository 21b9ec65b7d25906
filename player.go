package trackseq

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viterin/vek/vek32"

	intaudio "github.com/cbegin/trackseq-go/internal/audio"
	intfx "github.com/cbegin/trackseq-go/internal/effects"
)

// PlaybackEvent carries playback events from Watch().
type PlaybackEvent struct {
	Kind     int // EventLoopCompleted, EventPlaybackEnded, EventUnderrun or EventError
	Sequence int // index into the sequences passed to Play, -1 for the whole mix
	Err      error
}

const (
	EventLoopCompleted int = iota
	EventPlaybackEnded
	EventUnderrun
	EventError
)

type Backend = intaudio.Backend

const (
	BackendEbiten = intaudio.BackendEbiten
	BackendOto    = intaudio.BackendOto
)

type PlayerOption func(*playerConfig)

type playerConfig struct {
	channels     int
	backend      Backend
	loopPlayback bool
	sampleTap    func([]float32)
	logger       *slog.Logger
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{channels: DefaultChannels, backend: BackendEbiten}
}

func WithChannels(channels int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.channels = channels
	}
}

func WithBackend(backend Backend) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.backend = backend
	}
}

// WithLoopPlayback rewinds each sequence when it ends instead of dropping it
// from the mix.
func WithLoopPlayback(enabled bool) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.loopPlayback = enabled
	}
}

// WithSampleTap installs a callback invoked with each mixed interleaved buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

func WithPlayerLogger(logger *slog.Logger) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.logger = logger
	}
}

// Player drives loaded sequences on a real-time audio backend.
type Player struct {
	mu           sync.Mutex
	sampleRate   int
	channels     int
	backend      Backend
	audio        intaudio.Output
	mix          *mixer
	volume       float64
	loopPlayback bool
	sampleTap    func([]float32)
	masterEQ     *intfx.EQ5Band
	log          *slog.Logger
	done         chan struct{}
	eventCh      chan PlaybackEvent
	eventChMu    sync.Mutex
}

func NewPlayer(sampleRate int, opts ...PlayerOption) (*Player, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.channels <= 0 {
		return nil, errors.New("channel count must be positive")
	}
	if _, err := intaudio.ParseBackend(string(cfg.backend)); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Player{
		sampleRate:   sampleRate,
		channels:     cfg.channels,
		backend:      cfg.backend,
		volume:       1,
		loopPlayback: cfg.loopPlayback,
		sampleTap:    cfg.sampleTap,
		masterEQ:     intfx.NewEQ5Band(sampleRate, cfg.channels),
		log:          cfg.logger,
	}, nil
}

func (p *Player) SampleRate() int { return p.sampleRate }
func (p *Player) Channels() int   { return p.channels }

// Play replaces the current playback with seqs, mixed together. Every
// sequence must have been loaded WithOutput(p.SampleRate(), p.Channels()).
func (p *Player) Play(seqs ...*Sequence) error {
	if len(seqs) == 0 {
		return errors.New("nothing to play")
	}
	for i, s := range seqs {
		if s.Rate() != p.sampleRate || s.Channels() != p.channels {
			return fmt.Errorf("sequence %d renders %d Hz x%d, player is %d Hz x%d",
				i, s.Rate(), s.Channels(), p.sampleRate, p.channels)
		}
	}

	p.mu.Lock()

	// Signal any existing Wait() that the previous playback was replaced
	if p.done != nil {
		close(p.done)
	}
	p.done = make(chan struct{})

	mix := newMixer(seqs, p.channels, p.loopPlayback)
	mix.masterEQ = p.masterEQ
	mix.sampleTap = p.sampleTap
	mix.setVolume(p.volume)
	mix.onEvent = p.handleEvent
	mix.log = p.log
	mix.period = func(frames int) time.Duration {
		return time.Duration(frames) * time.Second / time.Duration(p.sampleRate)
	}

	out, err := intaudio.NewOutput(p.backend, p.sampleRate, p.channels, mix)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	if p.audio != nil {
		_ = p.audio.Stop()
	}
	p.audio = out
	p.mix = mix
	p.mu.Unlock()

	// Some backends pull the first period inside Play, and the mix may report
	// events from there.
	out.Play()
	p.log.Debug("playback started", "sequences", len(seqs), "backend", p.backend)
	return nil
}

func (p *Player) handleEvent(ev PlaybackEvent) {
	p.sendEvent(ev)
	if ev.Sequence < 0 && (ev.Kind == EventPlaybackEnded || ev.Kind == EventError) {
		p.signalDone()
	}
}

func (p *Player) sendEvent(ev PlaybackEvent) {
	p.eventChMu.Lock()
	ch := p.eventCh
	p.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

func (p *Player) signalDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a != nil {
		a.Play()
	}
}

func (p *Player) Stop() error {
	p.mu.Lock()
	if p.audio == nil {
		p.mu.Unlock()
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	p.mix = nil
	done := p.done
	p.done = nil
	p.mu.Unlock()
	p.sendEvent(PlaybackEvent{Kind: EventPlaybackEnded, Sequence: -1})
	if done != nil {
		close(done)
	}
	return err
}

// Wait blocks until every sequence has ended or playback fails. With loop
// playback enabled Wait blocks until Stop (use Watch for loop counting).
// Wait returns immediately if no playback is active.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Watch returns a channel that receives playback events:
//   - EventLoopCompleted: a sequence reached its end and was rewound
//   - EventPlaybackEnded: a sequence ended (Sequence >= 0) or the whole mix did (Sequence == -1)
//   - EventUnderrun: the backend pulled later than the previous period lasted
//   - EventError: a sequence failed; the mix stops producing sound
//
// The channel is buffered (cap 8); receive in a goroutine to avoid blocking.
// Only the most recent Watch() channel receives events; call Watch before Play.
func (p *Player) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 8)
	p.eventChMu.Lock()
	p.eventCh = ch
	p.eventChMu.Unlock()
	return ch
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	if p.mix != nil {
		p.mix.setVolume(volume)
	}
}

func (p *Player) MasterVolume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band frequencies: 0=<200Hz, 1=200-800Hz, 2=800-2.5kHz, 3=2.5-8kHz, 4=>8kHz.
// This takes effect immediately on the audio thread (lock-free).
func (p *Player) SetEQBand(band int, gain float32) {
	p.masterEQ.SetGain(band, gain)
}

func (p *Player) EQBand(band int) float32 {
	return p.masterEQ.Gain(band)
}

// PlaybackPosition returns the current output position of the audio driver in
// frames, i.e. what the listener actually hears right now. Returns 0 if not
// playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return int64(a.Position().Seconds() * float64(p.sampleRate))
}

// mixer is the audio-thread SampleSource: each pull runs every live sequence
// in turn for the whole period and sums the results.
type mixer struct {
	seqs      []*Sequence
	live      []bool
	channels  int
	loop      bool
	scratch   []float32
	volume    atomic.Uint64 // float64 bits
	masterEQ  *intfx.EQ5Band
	sampleTap func([]float32)
	onEvent   func(PlaybackEvent)
	log       *slog.Logger
	finished  atomic.Bool

	now      func() time.Time
	period   func(frames int) time.Duration
	lastPull time.Time
	lastLen  time.Duration
}

func newMixer(seqs []*Sequence, channels int, loop bool) *mixer {
	m := &mixer{
		seqs:     seqs,
		live:     make([]bool, len(seqs)),
		channels: channels,
		loop:     loop,
		now:      time.Now,
		onEvent:  func(PlaybackEvent) {},
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for i := range m.live {
		m.live[i] = true
	}
	m.setVolume(1)
	return m
}

func (m *mixer) setVolume(v float64) { m.volume.Store(math.Float64bits(v)) }

func (m *mixer) Finished() bool { return m.finished.Load() }

func (m *mixer) Process(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}
	if m.finished.Load() {
		return
	}
	frames := len(dst) / m.channels
	m.checkUnderrun(frames)
	if cap(m.scratch) < len(dst) {
		m.scratch = make([]float32, len(dst))
	}
	scratch := m.scratch[:frames*m.channels]
	live := 0
	for i, s := range m.seqs {
		if !m.live[i] {
			continue
		}
		if err := m.render(i, s, scratch, frames); err != nil {
			m.log.Error("sequence failed", "sequence", s.Name(), "err", err)
			m.finished.Store(true)
			m.onEvent(PlaybackEvent{Kind: EventError, Sequence: -1, Err: err})
			for j := range dst {
				dst[j] = 0
			}
			return
		}
		s.applyEffects(scratch)
		vek32.Add_Inplace(dst[:len(scratch)], scratch)
		if m.live[i] {
			live++
		}
	}
	if m.masterEQ != nil && !m.masterEQ.Flat() {
		for j := 0; j+m.channels <= len(dst); j += m.channels {
			m.masterEQ.Process(dst[j : j+m.channels])
		}
	}
	if vol := float32(math.Float64frombits(m.volume.Load())); vol != 1 {
		vek32.MulNumber_Inplace(dst, vol)
	}
	if m.sampleTap != nil {
		m.sampleTap(dst)
	}
	if live == 0 {
		m.finished.Store(true)
		m.onEvent(PlaybackEvent{Kind: EventPlaybackEnded, Sequence: -1})
	}
}

// render fills scratch with frames of sequence i, rewinding it at its end
// when looping.
func (m *mixer) render(i int, s *Sequence, scratch []float32, frames int) error {
	off := 0
	rewound := false
	for off < frames {
		n, err := s.Fill(scratch[off*m.channels : frames*m.channels])
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		off += n
		if !s.Ended() {
			if n == 0 {
				break
			}
			continue
		}
		if !m.loop {
			m.live[i] = false
			m.onEvent(PlaybackEvent{Kind: EventPlaybackEnded, Sequence: i})
			break
		}
		// A sequence that ends without producing a frame would spin.
		if n == 0 && rewound {
			break
		}
		s.FastReset()
		rewound = true
		m.onEvent(PlaybackEvent{Kind: EventLoopCompleted, Sequence: i})
	}
	return nil
}

// checkUnderrun flags a pull that arrives later than the previous period
// lasted, which means the device buffer drained.
func (m *mixer) checkUnderrun(frames int) {
	if m.period == nil {
		return
	}
	now := m.now()
	late := !m.lastPull.IsZero() && now.Sub(m.lastPull) > 2*m.lastLen
	m.lastPull = now
	m.lastLen = m.period(frames)
	for _, s := range m.seqs {
		s.window.SetUnderrun(late)
	}
	if late {
		m.onEvent(PlaybackEvent{Kind: EventUnderrun, Sequence: -1})
	}
}
