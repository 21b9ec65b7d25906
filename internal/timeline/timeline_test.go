package timeline

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type sliceSource struct {
	lines []string
	pos   int
}

func newSource(text string) *sliceSource {
	return &sliceSource{lines: strings.Split(text, "\n")}
}

func (s *sliceSource) ReadLine() (string, error) {
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	s.pos++
	return s.lines[s.pos-1], nil
}

func (s *sliceSource) Position() (string, int) { return "test", s.pos }

// testRegistry builds a registry with `channels` columns sharing one schema:
// int, hex, float, string, nested row of the same schema.
func testRegistry(t *testing.T, channels int) (*Registry, SchemaID) {
	t.Helper()
	reg := NewRegistry()
	s := reg.AddSchema()
	for _, ft := range []FieldType{FieldInt, FieldHex, FieldFloat, FieldString} {
		if err := reg.AddField(s, ft, 0); err != nil {
			t.Fatalf("add field: %v", err)
		}
	}
	if err := reg.AddField(s, FieldRow, s); err != nil {
		t.Fatalf("add nested field: %v", err)
	}
	for i := 0; i < channels; i++ {
		if _, err := reg.AddColumn(s); err != nil {
			t.Fatalf("add column: %v", err)
		}
	}
	return reg, s
}

func TestRegistryRejectsUnknownSchema(t *testing.T) {
	reg := NewRegistry()
	if err := reg.AddField(5, FieldInt, 0); !errors.Is(err, ErrSchemaRange) {
		t.Fatalf("expected ErrSchemaRange, got %v", err)
	}
	s := reg.AddSchema()
	if err := reg.AddField(s, FieldRow, 9); !errors.Is(err, ErrSchemaRange) {
		t.Fatalf("expected ErrSchemaRange for nested schema, got %v", err)
	}
	if _, err := reg.AddColumn(42); !errors.Is(err, ErrSchemaRange) {
		t.Fatalf("expected ErrSchemaRange for column, got %v", err)
	}
	if reg.NumColumns() != 1 || reg.FieldCount(GlobalSchema) != 1 {
		t.Fatalf("global schema/column missing: columns=%d fields=%d", reg.NumColumns(), reg.FieldCount(GlobalSchema))
	}
}

func TestInterningIsIdempotent(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	p := newLineParser(reg, NewRowTable())
	a, _, err := p.parseLine("| 11 5 -", false)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	b, _, err := p.parseLine("|11 5  -", false)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if a[1] == NoRow || a[1] != b[1] {
		t.Fatalf("expected identical rows to share an index, got %d and %d", a[1], b[1])
	}
	if p.rows.Len() != 1 {
		t.Fatalf("expected 1 interned row, got %d", p.rows.Len())
	}
}

func TestChangemaskSelectsFields(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	p := newLineParser(reg, NewRowTable())
	// The initial line sets every field; 0A selects hex and string.
	full, _, err := p.parseLine("100 | 7 ff 0.5 abc -", true)
	if err != nil {
		t.Fatalf("initial parse failed: %v", err)
	}
	sparse, _, err := p.parseLine("| 0A 1f xyz", false)
	if err != nil {
		t.Fatalf("sparse parse failed: %v", err)
	}
	before := p.rows.Row(full[1]).Values
	delta := p.rows.Row(sparse[1]).Values
	merged := append([]Value(nil), before...)
	for i, v := range delta {
		if !v.IsNull() {
			merged[i] = v
		}
	}
	want := []Value{IntValue(7), IntValue(0x1f), FloatValue(0.5), StringValue("xyz"), RowValue(NoRow)}
	for i := range want {
		if merged[i] != want[i] {
			t.Fatalf("field %d: expected %+v, got %+v", i, want[i], merged[i])
		}
	}
	for _, i := range []int{0, 2, 4} {
		if !delta[i].IsNull() {
			t.Fatalf("field %d should be absent from delta, got %+v", i, delta[i])
		}
	}
}

func TestSkipDirective(t *testing.T) {
	reg, _ := testRegistry(t, 5)
	p := newLineParser(reg, NewRowTable())
	line, _, err := p.parseLine("1 10 | -3 | 10 1 | 10 2", false)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(line) != 6 {
		t.Fatalf("expected 6 columns, got %d", len(line))
	}
	for c := 1; c <= 3; c++ {
		if line[c] != NoRow {
			t.Fatalf("column %d should be skipped, got row %d", c, line[c])
		}
	}
	if line[0] == NoRow || line[4] == NoRow || line[5] == NoRow {
		t.Fatalf("expected columns 0, 4, 5 to be set, got %v", line)
	}
	if _, _, err := p.parseLine("| -3 10 1 | | ", false); !errors.Is(err, ErrSkip) {
		t.Fatalf("expected ErrSkip for mixed group, got %v", err)
	}
	if _, _, err := p.parseLine("| -9", false); !errors.Is(err, ErrColumnCount) {
		t.Fatalf("expected ErrColumnCount for overlong skip, got %v", err)
	}
}

func TestEmptyLinesMeanNoChange(t *testing.T) {
	reg, _ := testRegistry(t, 3)
	p := newLineParser(reg, NewRowTable())
	for _, text := range []string{"", "   ", "1 250", "1 250 |  "} {
		line, _, err := p.parseLine(text, false)
		if err != nil {
			t.Fatalf("%q: parse failed: %v", text, err)
		}
		for c := 1; c < len(line); c++ {
			if line[c] != NoRow {
				t.Fatalf("%q: column %d should be null", text, c)
			}
		}
	}
	line, _, _ := p.parseLine("1 250 |", false)
	if ms, ok := (&Timeline{Rows: p.rows}).DivisionMs(line[0]); !ok || ms != 250 {
		t.Fatalf("expected global division 250, got %v %v", ms, ok)
	}
}

func TestFieldCountErrors(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	p := newLineParser(reg, NewRowTable())
	cases := []struct {
		text string
		want error
	}{
		{"| 18 5", ErrFieldCount},
		{"| 10 5 extra", ErrFieldCount},
		{"| 40 1", ErrMask},
		{"| 10 x", ErrBadToken},
		{"| zz", ErrBadToken},
		{"| 4 NaN", ErrBadToken},
		{"| 4 -Inf", ErrBadToken},
		{"| 10 1 | 10 2", ErrColumnCount},
	}
	for _, tc := range cases {
		if _, _, err := p.parseLine(tc.text, false); !errors.Is(err, tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.text, tc.want, err)
		}
	}
}

func TestNestedRowsAreInterned(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	p := newLineParser(reg, NewRowTable())
	line, _, err := p.parseLine("| 11 1 10 5", false)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	outer := p.rows.Row(line[1])
	inner := outer.Values[4].RowIndex()
	if inner == NoRow {
		t.Fatalf("expected nested row reference")
	}
	got := p.rows.Row(inner).Values
	if got[0] != IntValue(5) || !got[4].IsNull() {
		t.Fatalf("unexpected nested row %+v", got)
	}
}

const namedTimeline = `100 | 1 ff 1.5 s -
1
3
| 10=A 42
| 10=B 42
| =A
0`

func TestNamedRowsResolve(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	tl, err := Read(reg, newSource(namedTimeline))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	pat := tl.Patterns[0]
	if pat[0][1] != pat[1][1] {
		t.Fatalf("expected A and B to intern to one row, got %d and %d", pat[0][1], pat[1][1])
	}
	if pat[2][1] != pat[0][1] {
		t.Fatalf("expected =A to resolve to %d, got %d", pat[0][1], pat[2][1])
	}
	a, _ := tl.Rows.Lookup("A")
	b, _ := tl.Rows.Lookup("B")
	if a != b {
		t.Fatalf("expected name table entries to match, got %d and %d", a, b)
	}
}

func TestForwardReferencesAreFixedUp(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	src := `100 | 1 1 1 s -
1
2
| 1 =LATER
| 11=LATER 3 -
0 0`
	tl, err := Read(reg, newSource(src))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	later, _ := tl.Rows.Lookup("LATER")
	first := tl.Rows.Row(tl.Patterns[0][0][1])
	if first.Values[4].RowIndex() != later {
		t.Fatalf("expected nested reference to fix up to %d, got %+v", later, first.Values[4])
	}
	if len(tl.Order) != 2 {
		t.Fatalf("expected 2 order entries, got %d", len(tl.Order))
	}
}

func TestForwardReferencesIntern(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	src := `100 | 1 1 1 s -
1
4
| 1 =LATER
| 11=LATER 3 -
| 1 =LATER
| 11 4 1 =LATER
0`
	tl, err := Read(reg, newSource(src))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	pat := tl.Patterns[0]
	if pat[0][1] != pat[2][1] {
		t.Fatalf("expected identical declarations to share a row, got %d and %d", pat[0][1], pat[2][1])
	}
	later, _ := tl.Rows.Lookup("LATER")
	if pat[1][1] != later {
		t.Fatalf("expected LATER at %d, got %d", pat[1][1], later)
	}
	nested := tl.Rows.Row(pat[3][1]).Values[4].RowIndex()
	if nested != pat[0][1] {
		t.Fatalf("expected nested row to point at %d, got %d", pat[0][1], nested)
	}
	for i := 0; i < tl.Rows.Len(); i++ {
		for j := 0; j < i; j++ {
			if tl.Rows.Row(i).equal(tl.Rows.Row(j)) {
				t.Fatalf("rows %d and %d are equal", j, i)
			}
		}
	}
}

func TestReadErrors(t *testing.T) {
	reg, _ := testRegistry(t, 1)
	cases := []struct {
		name string
		src  string
		want error
	}{
		{"duplicate name", "1 | 1 1 1 s -\n1\n2\n| 10=A 1\n| 10=A 2\n0", ErrDuplicateName},
		{"unknown name", "1 | 1 1 1 s -\n1\n1\n| =NOPE\n0", ErrUnknownName},
		{"order range", "1 | 1 1 1 s -\n1\n1\n\n0 1", ErrOrderRange},
		{"truncated", "1 | 1 1 1 s -\n2\n1\n\n", ErrUnexpectedEOF},
		{"bad count", "1 | 1 1 1 s -\nx", ErrBadToken},
		{"sparse initial", "1 1 |", ErrFieldCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(reg, newSource(tc.src))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
		})
	}
}
