package timeline

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// LineSource supplies fully preprocessed logical lines. ReadLine returns
// io.EOF once input is exhausted; Position names the line last returned.
type LineSource interface {
	ReadLine() (string, error)
	Position() (name string, line int)
}

// Timeline is a loaded sequence body: rows interned against the registry,
// the initial line, the patterns and the playback order.
type Timeline struct {
	Registry *Registry
	Rows     *RowTable
	Initial  Line
	Patterns []Pattern
	Order    []int
}

// Value returns field of the row at idx.
func (t *Timeline) Value(idx, field int) Value {
	return t.Rows.Row(idx).Values[field]
}

// DivisionMs returns the division duration carried by a global-column row, if
// the row sets it.
func (t *Timeline) DivisionMs(idx int) (float64, bool) {
	if idx == NoRow {
		return 0, false
	}
	v := t.Value(idx, 0)
	if v.Kind != KindInt {
		return 0, false
	}
	return float64(v.Int), true
}

type reader struct {
	src LineSource
	p   *lineParser
}

// Read parses the initial line, the patterns and the order line from src,
// then resolves every named-row reference.
func Read(reg *Registry, src LineSource) (*Timeline, error) {
	rows := NewRowTable()
	r := &reader{src: src, p: newLineParser(reg, rows)}
	tl := &Timeline{Registry: reg, Rows: rows}

	text, err := r.nextNonBlank("initial line")
	if err != nil {
		return nil, err
	}
	line, col, err := r.p.parseLine(text, true)
	if err != nil {
		return nil, r.errorf(col, err)
	}
	tl.Initial = line

	patterns, err := r.readCount("pattern count")
	if err != nil {
		return nil, err
	}
	tl.Patterns = make([]Pattern, 0, patterns)
	for i := 0; i < patterns; i++ {
		lines, err := r.readCount("line count")
		if err != nil {
			return nil, err
		}
		pat := make(Pattern, 0, lines)
		for j := 0; j < lines; j++ {
			text, err := r.next(fmt.Sprintf("line %d of pattern %d", j, i))
			if err != nil {
				return nil, err
			}
			line, col, err := r.p.parseLine(text, false)
			if err != nil {
				return nil, r.errorf(col, err)
			}
			pat = append(pat, line)
		}
		tl.Patterns = append(tl.Patterns, pat)
	}

	text, err = r.nextNonBlank("order line")
	if err != nil {
		return nil, err
	}
	for _, f := range strings.Fields(text) {
		idx, err := strconv.Atoi(f)
		if err != nil {
			return nil, r.errorf(-1, fmt.Errorf("%w: order entry %q", ErrBadToken, f))
		}
		if idx < 0 || idx >= len(tl.Patterns) {
			return nil, r.errorf(-1, fmt.Errorf("%w: %d of %d patterns", ErrOrderRange, idx, len(tl.Patterns)))
		}
		tl.Order = append(tl.Order, idx)
	}

	if err := r.fixup(); err != nil {
		return nil, err
	}
	if len(r.p.firstRef) > 0 {
		if remap := rows.dedup(); remap != nil {
			tl.remap(remap)
		}
	}
	return tl, nil
}

func (t *Timeline) remap(remap []int) {
	lines := []Line{t.Initial}
	for _, pat := range t.Patterns {
		lines = append(lines, pat...)
	}
	for _, line := range lines {
		for col, idx := range line {
			if idx != NoRow {
				line[col] = remap[idx]
			}
		}
	}
}

func (r *reader) fixup() error {
	p := r.p
	for _, ref := range p.firstRef {
		if _, ok := p.rows.Lookup(ref.name); !ok {
			return &ParseError{File: ref.pos.file, Line: ref.pos.line, Column: ref.col, Err: fmt.Errorf("%w %q", ErrUnknownName, ref.name)}
		}
	}
	for _, lr := range p.refs {
		idx, err := p.rows.resolve(p.reg, lr.ref.name, p.reg.ColumnSchema(ColumnID(lr.ref.col)))
		if err != nil {
			return &ParseError{File: lr.ref.pos.file, Line: lr.ref.pos.line, Column: lr.ref.col, Err: err}
		}
		lr.line[lr.ref.col] = idx
	}
	if err := p.rows.resolveNames(p.reg); err != nil {
		name, line := r.src.Position()
		return &ParseError{File: name, Line: line, Column: -1, Err: err}
	}
	return nil
}

func (r *reader) next(what string) (string, error) {
	text, err := r.src.ReadLine()
	name, line := r.src.Position()
	r.p.pos = position{file: name, line: line}
	if errors.Is(err, io.EOF) {
		return "", &ParseError{File: name, Line: line, Column: -1, Err: fmt.Errorf("%w: expected %s", ErrUnexpectedEOF, what)}
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (r *reader) nextNonBlank(what string) (string, error) {
	for {
		text, err := r.next(what)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
}

func (r *reader) readCount(what string) (int, error) {
	text, err := r.nextNonBlank(what)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0, r.errorf(-1, fmt.Errorf("%w: %s %q", ErrBadToken, what, text))
	}
	return n, nil
}

func (r *reader) errorf(col int, err error) error {
	return &ParseError{File: r.p.pos.file, Line: r.p.pos.line, Column: col, Err: err}
}
