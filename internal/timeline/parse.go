package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Line holds one row index per column, NoRow meaning "no change".
type Line []int

type Pattern []Line

type tokens struct {
	list []string
	pos  int
}

func (t *tokens) next() (string, error) {
	if t.pos >= len(t.list) {
		return "", fmt.Errorf("%w: ran out of tokens", ErrFieldCount)
	}
	tok := t.list[t.pos]
	t.pos++
	return tok, nil
}

func (t *tokens) unread()   { t.pos-- }
func (t *tokens) left() int { return len(t.list) - t.pos }

type position struct {
	file string
	line int
}

type nameRef struct {
	name string
	pos  position
	col  int
}

// lineRef is a column entry waiting for a forward =name reference.
type lineRef struct {
	line Line
	ref  nameRef
}

type lineParser struct {
	reg      *Registry
	rows     *RowTable
	pos      position
	refs     []lineRef
	firstRef []nameRef
	seenRef  map[string]bool
}

func newLineParser(reg *Registry, rows *RowTable) *lineParser {
	return &lineParser{reg: reg, rows: rows, seenRef: make(map[string]bool)}
}

// parseLine splits text on '|' into one token group per column. It returns the
// column a failure happened in, or -1.
func (p *lineParser) parseLine(text string, initial bool) (Line, int, error) {
	n := p.reg.NumColumns()
	line := make(Line, n)
	for i := range line {
		line[i] = NoRow
	}
	groups := strings.Split(text, "|")
	if !initial {
		if strings.TrimSpace(text) == "" {
			return line, -1, nil
		}
		if strings.TrimSpace(strings.Join(groups[1:], "")) == "" {
			if err := p.parseGroup(line, 0, strings.Fields(groups[0]), false); err != nil {
				return nil, 0, err
			}
			return line, -1, nil
		}
	}
	col := 0
	for _, g := range groups {
		if col >= n {
			return nil, col, fmt.Errorf("%w: more than %d columns", ErrColumnCount, n)
		}
		fields := strings.Fields(g)
		if !initial && len(fields) > 0 {
			if skip, ok := skipCount(fields[0]); ok {
				if len(fields) != 1 {
					return nil, col, ErrSkip
				}
				if col+skip > n {
					return nil, col, fmt.Errorf("%w: skipping %d columns from column %d", ErrColumnCount, skip, col)
				}
				col += skip
				continue
			}
		}
		if err := p.parseGroup(line, col, fields, initial); err != nil {
			return nil, col, err
		}
		col++
	}
	if col != n {
		return nil, -1, fmt.Errorf("%w: got %d, want %d", ErrColumnCount, col, n)
	}
	return line, -1, nil
}

func skipCount(tok string) (int, bool) {
	if len(tok) < 2 || tok[0] != '-' {
		return 0, false
	}
	v, err := strconv.Atoi(tok[1:])
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func (p *lineParser) parseGroup(line Line, col int, fields []string, initial bool) error {
	if len(fields) == 0 {
		if initial {
			return fmt.Errorf("%w: initial line must set every column", ErrFieldCount)
		}
		return nil
	}
	toks := &tokens{list: fields}
	v, err := p.parseRow(p.reg.ColumnSchema(ColumnID(col)), toks, initial, true)
	if err != nil {
		return err
	}
	if toks.left() > 0 {
		return fmt.Errorf("%w: %d extra tokens", ErrFieldCount, toks.left())
	}
	switch v.Kind {
	case KindRow:
		line[col] = v.RowIndex()
	case kindName:
		p.refs = append(p.refs, lineRef{line: line, ref: nameRef{name: v.Str, pos: p.pos, col: col}})
	}
	return nil
}

// parseRow reads one row of schema from toks and interns it. A top-level zero
// mask means "no change" and yields a null value instead of a row.
func (p *lineParser) parseRow(schema SchemaID, toks *tokens, initial, top bool) (Value, error) {
	fields := p.reg.Schema(schema).Fields
	values := make([]Value, len(fields))
	name := ""
	if initial {
		for i, f := range fields {
			v, err := p.parseField(f, toks, true)
			if err != nil {
				return Value{}, err
			}
			values[i] = v
		}
	} else {
		head, err := toks.next()
		if err != nil {
			return Value{}, err
		}
		if strings.HasPrefix(head, "=") {
			return p.reference(head[1:], schema)
		}
		maskText, rowName, _ := strings.Cut(head, "=")
		mask, err := parseMask(maskText, len(fields))
		if err != nil {
			return Value{}, err
		}
		if mask == 0 && rowName == "" && top {
			return Value{}, nil
		}
		name = rowName
		for i, f := range fields {
			if mask&(1<<uint(len(fields)-1-i)) == 0 {
				continue
			}
			v, err := p.parseField(f, toks, false)
			if err != nil {
				return Value{}, err
			}
			values[i] = v
		}
	}
	idx := p.rows.Intern(Row{Schema: schema, Values: values})
	if name != "" {
		if err := p.rows.Name(name, idx); err != nil {
			return Value{}, err
		}
	}
	return RowValue(idx), nil
}

func parseMask(text string, fields int) (uint64, error) {
	if text == "" {
		return 0, fmt.Errorf("%w: empty changemask", ErrBadToken)
	}
	mask, err := strconv.ParseUint(text, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: changemask %q", ErrBadToken, text)
	}
	if fields < 64 && mask>>uint(fields) != 0 {
		return 0, fmt.Errorf("%w: %s for %d fields", ErrMask, text, fields)
	}
	return mask, nil
}

func (p *lineParser) parseField(f Field, toks *tokens, initial bool) (Value, error) {
	tok, err := toks.next()
	if err != nil {
		return Value{}, err
	}
	switch f.Type {
	case FieldInt:
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not an int", ErrBadToken, tok)
		}
		return IntValue(v), nil
	case FieldHex:
		v, err := parseHex(tok)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %q is not hex", ErrBadToken, tok)
		}
		return IntValue(v), nil
	case FieldFloat:
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a float", ErrBadToken, tok)
		}
		return FloatValue(v), nil
	case FieldString:
		return StringValue(tok), nil
	case FieldRow:
		if tok == "-" {
			return RowValue(NoRow), nil
		}
		if strings.HasPrefix(tok, "=") {
			return p.reference(tok[1:], f.Nested)
		}
		toks.unread()
		return p.parseRow(f.Nested, toks, initial, false)
	}
	return Value{}, fmt.Errorf("%w: %d", ErrFieldType, int(f.Type))
}

func parseHex(tok string) (int64, error) {
	neg := strings.HasPrefix(tok, "-")
	tok = strings.TrimPrefix(tok, "-")
	tok = strings.TrimPrefix(strings.TrimPrefix(tok, "0x"), "0X")
	v, err := strconv.ParseInt(tok, 16, 64)
	if neg {
		v = -v
	}
	return v, err
}

// reference resolves =name now when the name is known, otherwise leaves a
// placeholder for the fixup pass.
func (p *lineParser) reference(name string, schema SchemaID) (Value, error) {
	if name == "" {
		return Value{}, fmt.Errorf("%w: empty row name", ErrBadToken)
	}
	if _, ok := p.rows.Lookup(name); ok {
		idx, err := p.rows.resolve(p.reg, name, schema)
		if err != nil {
			return Value{}, err
		}
		return RowValue(idx), nil
	}
	if !p.seenRef[name] {
		p.seenRef[name] = true
		p.firstRef = append(p.firstRef, nameRef{name: name, pos: p.pos, col: -1})
	}
	return nameValue(name), nil
}
