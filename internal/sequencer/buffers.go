package sequencer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"golang.org/x/sync/errgroup"

	"github.com/cbegin/trackseq-go/internal/device"
	"github.com/cbegin/trackseq-go/internal/lfo"
)

var (
	ErrInsufficientChannels = errors.New("output device has fewer channels than the sequence declares")
	ErrBufferRange          = errors.New("buffer index out of range")
	ErrUnknownExternal      = errors.New("external buffer not supplied")
)

type BufferKind uint8

const (
	BufferSilence BufferKind = iota
	BufferFile
	BufferExternal
	BufferLFO
)

// BufferDecl is one `buffer` line of a sequence header.
type BufferDecl struct {
	Kind    BufferKind
	Ms      float64 // silence length
	Path    string  // file path
	Channel int     // file channel
	Name    string  // external name

	Wave   lfo.Wave // lfo shape
	RateHz float64
	Depth  float64
	Offset float64
}

// Output is the device side of a sequence: the real output buffers for the
// current period and their common rate.
type Output interface {
	Rate() int
	Channels() int
	Output(ch int) *device.Buffer
}

// BufferTable resolves logical buffer indices. Indices below seqChannels are
// the device outputs; the rest address declared buffers in order.
type BufferTable struct {
	seqChannels int
	out         Output
	declared    []*device.Buffer
}

func newBufferTable(seqChannels int, out Output) (*BufferTable, error) {
	if out.Channels() < seqChannels {
		return nil, fmt.Errorf("%w: device has %d, sequence needs %d", ErrInsufficientChannels, out.Channels(), seqChannels)
	}
	return &BufferTable{seqChannels: seqChannels, out: out}, nil
}

// load instantiates every declared buffer. File buffers are decoded
// concurrently.
func (t *BufferTable) load(decls []BufferDecl, baseDir string, external map[string]*device.Buffer) error {
	bufs := make([]*device.Buffer, len(decls))
	group, ctx := errgroup.WithContext(context.Background())
	for i, d := range decls {
		switch d.Kind {
		case BufferSilence:
			bufs[i] = device.SilenceBuffer(d.Ms, t.out.Rate())
		case BufferLFO:
			b := device.SilenceBuffer(d.Ms, t.out.Rate())
			lfo.New(d.Wave, d.RateHz, d.Depth).Fill(b.Data, b.Rate, d.Offset)
			bufs[i] = b
		case BufferExternal:
			name := d.Name
			b, ok := external[name]
			if !ok {
				group.Go(func() error { return fmt.Errorf("%w: %q", ErrUnknownExternal, name) })
				continue
			}
			bufs[i] = b
		case BufferFile:
			i, d := i, d
			group.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				b, err := loadFile(d.Path, baseDir, d.Channel)
				if err != nil {
					return err
				}
				bufs[i] = b
				return nil
			})
		}
	}
	if err := group.Wait(); err != nil {
		return err
	}
	t.declared = bufs
	return nil
}

func loadFile(path, baseDir string, channel int) (*device.Buffer, error) {
	full, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", path, err)
	}
	if !filepath.IsAbs(full) {
		full = filepath.Join(baseDir, full)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("buffer file: %w", err)
	}
	defer f.Close()
	b, err := device.DecodeWAV(f, channel)
	if err != nil {
		return nil, fmt.Errorf("buffer file %s: %w", full, err)
	}
	return b, nil
}

func (t *BufferTable) unload() { t.declared = nil }

// Len is the size of the logical index space.
func (t *BufferTable) Len() int { return t.seqChannels + len(t.declared) }

// Resolve maps a logical index to a buffer. Negative indices mean unbound and
// resolve to nil.
func (t *BufferTable) Resolve(idx int) (*device.Buffer, error) {
	if idx < 0 {
		return nil, nil
	}
	logical := idx
	outs := t.out.Channels()
	if idx >= t.seqChannels {
		idx = idx - t.seqChannels + outs
	}
	switch {
	case idx < outs:
		return t.out.Output(idx), nil
	case idx-outs < len(t.declared):
		return t.declared[idx-outs], nil
	}
	return nil, fmt.Errorf("%w: %d of %d", ErrBufferRange, logical, t.Len())
}

// IsOutput reports whether b is one of the device outputs.
func (t *BufferTable) IsOutput(b *device.Buffer) bool {
	if b == nil {
		return false
	}
	for ch := 0; ch < t.out.Channels(); ch++ {
		if t.out.Output(ch) == b {
			return true
		}
	}
	return false
}
