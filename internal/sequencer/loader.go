package sequencer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cbegin/trackseq-go/internal/lfo"
	"github.com/cbegin/trackseq-go/internal/timeline"
)

const (
	Signature     = "TRACKSEQ"
	FormatVersion = 1
)

var (
	ErrHeader    = errors.New("malformed header")
	ErrVersion   = errors.New("unsupported format version")
	ErrDirective = errors.New("malformed declaration")
)

// Header is everything declared before the `sequence` line.
type Header struct {
	Version  int
	Channels int // output channels the sequence addresses
	Tags     map[string]string
	Buffers  []BufferDecl
	Kinds    []Kind // one per timeline column after the global one
}

type declReader struct {
	src timeline.LineSource
}

func (r *declReader) fail(err error) error {
	name, line := r.src.Position()
	return &timeline.ParseError{File: name, Line: line, Column: -1, Err: err}
}

func (r *declReader) next() ([]string, error) {
	for {
		text, err := r.src.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil, r.fail(fmt.Errorf("%w: missing sequence section", timeline.ErrUnexpectedEOF))
		}
		if err != nil {
			return nil, err
		}
		if fields := strings.Fields(text); len(fields) > 0 {
			return fields, nil
		}
	}
}

// readSequence parses the header and declarations, registers one column per
// channel and reads the timeline that follows `sequence`.
func readSequence(src timeline.LineSource) (Header, *timeline.Timeline, error) {
	r := &declReader{src: src}
	h := Header{Tags: make(map[string]string)}

	fields, err := r.next()
	if err != nil {
		return h, nil, err
	}
	if len(fields) != 3 || fields[0] != Signature {
		return h, nil, r.fail(fmt.Errorf("%w: want %q <version> <channels>", ErrHeader, Signature))
	}
	if h.Version, err = strconv.Atoi(fields[1]); err != nil {
		return h, nil, r.fail(fmt.Errorf("%w: version %q", ErrHeader, fields[1]))
	}
	if h.Version != FormatVersion {
		return h, nil, r.fail(fmt.Errorf("%w: %d", ErrVersion, h.Version))
	}
	if h.Channels, err = strconv.Atoi(fields[2]); err != nil || h.Channels < 1 {
		return h, nil, r.fail(fmt.Errorf("%w: channel count %q", ErrHeader, fields[2]))
	}

	reg := timeline.NewRegistry()
	schemas, err := registerSchemas(reg)
	if err != nil {
		return h, nil, err
	}
	for {
		fields, err := r.next()
		if err != nil {
			return h, nil, err
		}
		if fields[0] == "sequence" {
			break
		}
		if err := h.declare(fields, reg, schemas); err != nil {
			return h, nil, r.fail(err)
		}
	}
	tl, err := timeline.Read(reg, src)
	if err != nil {
		return h, nil, err
	}
	return h, tl, nil
}

func (h *Header) declare(fields []string, reg *timeline.Registry, schemas [numKinds]timeline.SchemaID) error {
	switch fields[0] {
	case "tag":
		if len(fields) < 2 {
			return fmt.Errorf("%w: tag needs a name", ErrDirective)
		}
		h.Tags[fields[1]] = strings.Join(fields[2:], " ")
	case "channel":
		if len(fields) != 2 {
			return fmt.Errorf("%w: channel takes one kind", ErrDirective)
		}
		k, ok := ParseKind(fields[1])
		if !ok {
			return fmt.Errorf("%w: unknown channel kind %q", ErrDirective, fields[1])
		}
		if _, err := reg.AddColumn(schemas[k]); err != nil {
			return err
		}
		h.Kinds = append(h.Kinds, k)
	case "buffer":
		d, err := parseBufferDecl(fields[1:])
		if err != nil {
			return err
		}
		h.Buffers = append(h.Buffers, d)
	default:
		return fmt.Errorf("%w: unknown declaration %q", ErrDirective, fields[0])
	}
	return nil
}

func parseBufferDecl(args []string) (BufferDecl, error) {
	if len(args) < 2 {
		return BufferDecl{}, fmt.Errorf("%w: buffer needs a kind and an argument", ErrDirective)
	}
	switch args[0] {
	case "silence":
		ms, err := strconv.ParseFloat(args[1], 64)
		if err != nil || ms < 0 || len(args) != 2 {
			return BufferDecl{}, fmt.Errorf("%w: buffer silence <ms>", ErrDirective)
		}
		return BufferDecl{Kind: BufferSilence, Ms: ms}, nil
	case "file":
		d := BufferDecl{Kind: BufferFile, Path: args[1]}
		switch len(args) {
		case 2:
		case 3:
			ch, err := strconv.Atoi(args[2])
			if err != nil || ch < 0 {
				return BufferDecl{}, fmt.Errorf("%w: buffer file channel %q", ErrDirective, args[2])
			}
			d.Channel = ch
		default:
			return BufferDecl{}, fmt.Errorf("%w: buffer file <path> [channel]", ErrDirective)
		}
		return d, nil
	case "lfo":
		return parseLFODecl(args[1:])
	case "external":
		if len(args) != 2 {
			return BufferDecl{}, fmt.Errorf("%w: buffer external <name>", ErrDirective)
		}
		return BufferDecl{Kind: BufferExternal, Name: args[1]}, nil
	}
	return BufferDecl{}, fmt.Errorf("%w: unknown buffer kind %q", ErrDirective, args[0])
}

// parseLFODecl reads `<wave> <hz> <ms> [depth [offset]]`. Depth and offset
// default to 0.5 so the buffer spans 0..1.
func parseLFODecl(args []string) (BufferDecl, error) {
	usage := fmt.Errorf("%w: buffer lfo <wave> <hz> <ms> [depth [offset]]", ErrDirective)
	if len(args) < 3 || len(args) > 5 {
		return BufferDecl{}, usage
	}
	wave, ok := lfo.ParseWave(args[0])
	if !ok {
		return BufferDecl{}, fmt.Errorf("%w: unknown lfo wave %q", ErrDirective, args[0])
	}
	nums := []float64{0, 0, 0.5, 0.5}
	for i, a := range args[1:] {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return BufferDecl{}, usage
		}
		nums[i] = v
	}
	if nums[0] < 0 || nums[1] < 0 {
		return BufferDecl{}, usage
	}
	return BufferDecl{Kind: BufferLFO, Wave: wave, RateHz: nums[0], Ms: nums[1], Depth: nums[2], Offset: nums[3]}, nil
}
