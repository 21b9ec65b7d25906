package timeline

import (
	"errors"
	"fmt"
)

// FieldType is the type of one field of a row schema.
type FieldType int

const (
	FieldInt FieldType = iota + 1
	FieldHex
	FieldFloat
	FieldString
	FieldRow
)

func (t FieldType) String() string {
	switch t {
	case FieldInt:
		return "int"
	case FieldHex:
		return "hex"
	case FieldFloat:
		return "float"
	case FieldString:
		return "string"
	case FieldRow:
		return "row"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

type SchemaID int

type ColumnID int

const (
	// GlobalSchema has a single int field: the division duration in milliseconds.
	GlobalSchema SchemaID = 0
	// GlobalColumn is bound to GlobalSchema.
	GlobalColumn ColumnID = 0
)

var (
	ErrSchemaRange = errors.New("schema index out of range")
	ErrFieldType   = errors.New("invalid field type")
)

type Field struct {
	Type   FieldType
	Nested SchemaID // only meaningful for FieldRow
}

type Schema struct {
	Fields []Field
}

// Registry holds the row schemas and the column bindings of one timeline.
type Registry struct {
	schemas []Schema
	columns []SchemaID
}

// NewRegistry returns a registry that already holds the global schema and the
// global column.
func NewRegistry() *Registry {
	r := &Registry{}
	g := r.AddSchema()
	r.schemas[g].Fields = append(r.schemas[g].Fields, Field{Type: FieldInt})
	r.columns = append(r.columns, g)
	return r
}

func (r *Registry) AddSchema() SchemaID {
	r.schemas = append(r.schemas, Schema{})
	return SchemaID(len(r.schemas) - 1)
}

// AddField appends a field to schema. nested is only read for FieldRow and
// must name a registered schema; a schema may nest itself.
func (r *Registry) AddField(schema SchemaID, t FieldType, nested SchemaID) error {
	if !r.valid(schema) {
		return fmt.Errorf("add field to schema %d: %w", schema, ErrSchemaRange)
	}
	if t < FieldInt || t > FieldRow {
		return fmt.Errorf("add field to schema %d: %w: %d", schema, ErrFieldType, int(t))
	}
	f := Field{Type: t}
	if t == FieldRow {
		if !r.valid(nested) {
			return fmt.Errorf("nested schema %d: %w", nested, ErrSchemaRange)
		}
		f.Nested = nested
	}
	r.schemas[schema].Fields = append(r.schemas[schema].Fields, f)
	return nil
}

func (r *Registry) AddColumn(schema SchemaID) (ColumnID, error) {
	if !r.valid(schema) {
		return 0, fmt.Errorf("add column: %w", ErrSchemaRange)
	}
	r.columns = append(r.columns, schema)
	return ColumnID(len(r.columns) - 1), nil
}

func (r *Registry) valid(id SchemaID) bool {
	return id >= 0 && int(id) < len(r.schemas)
}

// Schema returns the schema with the given id. It panics on an unregistered
// id, which only happens on a programming error since rows and columns are
// validated when they are created.
func (r *Registry) Schema(id SchemaID) Schema {
	return r.schemas[id]
}

func (r *Registry) FieldCount(id SchemaID) int {
	return len(r.schemas[id].Fields)
}

func (r *Registry) NumSchemas() int { return len(r.schemas) }

func (r *Registry) NumColumns() int { return len(r.columns) }

func (r *Registry) ColumnSchema(c ColumnID) SchemaID {
	return r.columns[c]
}
