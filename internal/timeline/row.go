package timeline

import (
	"errors"
	"fmt"
)

// NoRow marks an unset row reference, both in lines and in row fields.
const NoRow = -1

type Kind uint8

const (
	KindNull Kind = iota // field not present: leave the channel value untouched
	KindInt
	KindFloat
	KindString
	KindRow
	kindName // unresolved =name reference, only alive while reading
)

// Value is one field of a row. Row references keep their index in Int.
type Value struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

func IntValue(v int64) Value { return Value{Kind: KindInt, Int: v} }
func FloatValue(v float64) Value { return Value{Kind: KindFloat, Float: v} }
func StringValue(v string) Value { return Value{Kind: KindString, Str: v} }
func RowValue(idx int) Value { return Value{Kind: KindRow, Int: int64(idx)} }
func nameValue(name string) Value { return Value{Kind: kindName, Str: name} }
func (v Value) IsNull() bool { return v.Kind == KindNull }

// RowIndex returns the referenced row, or NoRow for an explicit "no row".
func (v Value) RowIndex() int {
	if v.Kind != KindRow {
		return NoRow
	}
	return int(v.Int)
}

// Row is an interned set of field values for one schema.
type Row struct {
	Schema SchemaID
	Values []Value
}

func (r Row) equal(o Row) bool {
	if r.Schema != o.Schema || len(r.Values) != len(o.Values) {
		return false
	}
	for i := range r.Values {
		if r.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

var (
	ErrDuplicateName = errors.New("duplicate row name")
	ErrUnknownName   = errors.New("undefined row name")
	ErrSchemaMatch   = errors.New("row schema mismatch")
)

// RowTable is the arena of interned rows plus the row name table.
type RowTable struct {
	rows  []Row
	names map[string]int
}

func NewRowTable() *RowTable {
	return &RowTable{names: make(map[string]int)}
}

// Intern stores row unless an equal row already exists, and returns the index
// of the stored instance.
func (t *RowTable) Intern(row Row) int {
	for i := range t.rows {
		if t.rows[i].equal(row) {
			return i
		}
	}
	t.rows = append(t.rows, row)
	return len(t.rows) - 1
}

func (t *RowTable) Len() int { return len(t.rows) }

func (t *RowTable) Row(idx int) Row { return t.rows[idx] }

// Name binds name to the row at idx. A name may only ever denote one row.
func (t *RowTable) Name(name string, idx int) error {
	if prev, ok := t.names[name]; ok && prev != idx {
		return fmt.Errorf("%w %q", ErrDuplicateName, name)
	}
	t.names[name] = idx
	return nil
}

func (t *RowTable) Lookup(name string) (int, bool) {
	idx, ok := t.names[name]
	return idx, ok
}

// resolveNames rewrites every placeholder left by forward references.
func (t *RowTable) resolveNames(reg *Registry) error {
	for i := range t.rows {
		row := &t.rows[i]
		fields := reg.Schema(row.Schema).Fields
		for j, v := range row.Values {
			if v.Kind != kindName {
				continue
			}
			idx, err := t.resolve(reg, v.Str, fields[j].Nested)
			if err != nil {
				return err
			}
			row.Values[j] = RowValue(idx)
		}
	}
	return nil
}

func (t *RowTable) resolve(reg *Registry, name string, want SchemaID) (int, error) {
	idx, ok := t.names[name]
	if !ok {
		return NoRow, fmt.Errorf("%w %q", ErrUnknownName, name)
	}
	if got := t.rows[idx].Schema; got != want {
		return NoRow, fmt.Errorf("%w: %q has schema %d, want %d", ErrSchemaMatch, name, got, want)
	}
	return idx, nil
}

// dedup merges rows that only became equal once their forward references were
// resolved. It returns the old-to-new index map, or nil when nothing merged.
func (t *RowTable) dedup() []int {
	canon := make([]int, len(t.rows))
	for i := range canon {
		canon[i] = i
	}
	find := func(i int) int {
		for canon[i] != i {
			i = canon[i]
		}
		return i
	}
	merged := false
	for {
		changed := false
		for i := range t.rows {
			if canon[i] != i {
				continue
			}
			for j := 0; j < i; j++ {
				if canon[j] == j && t.rows[j].equal(t.rows[i]) {
					canon[i] = j
					changed = true
					break
				}
			}
		}
		if !changed {
			break
		}
		merged = true
		// Rows pointing at merged duplicates may now be equal themselves.
		for i := range t.rows {
			t.rows[i].remap(find)
		}
	}
	if !merged {
		return nil
	}

	remap := make([]int, len(t.rows))
	rows := make([]Row, 0, len(t.rows))
	for i := range t.rows {
		if canon[i] == i {
			remap[i] = len(rows)
			rows = append(rows, t.rows[i])
		}
	}
	for i := range remap {
		remap[i] = remap[find(i)]
	}
	for i := range rows {
		rows[i].remap(func(idx int) int { return remap[idx] })
	}
	t.rows = rows
	for name, idx := range t.names {
		t.names[name] = remap[idx]
	}
	return remap
}

func (r Row) remap(index func(int) int) {
	for i, v := range r.Values {
		if v.Kind == KindRow && v.Int >= 0 {
			r.Values[i] = RowValue(index(int(v.Int)))
		}
	}
}
