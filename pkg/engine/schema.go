package engine

import (
	"bytes"

	"rmdb/pkg/rmerr"
	"rmdb/pkg/types"
	"rmdb/pkg/utils/functools"
)

// Schema describes one table's row shape: an ordered list of typed columns
// paired with their names, grounded on the teacher's TupleDescription. It
// doubles as the source of every index's types.KeyLayout, since an index
// key is always a subset of a table's own columns.
type Schema struct {
	Columns types.KeyLayout
	Names   []string
}

// NewSchema builds a Schema, requiring names to be provided one-to-one
// with columns so error messages and the debug inspector can refer to
// columns by name.
func NewSchema(columns types.KeyLayout, names []string) (*Schema, error) {
	if len(columns) == 0 {
		return nil, rmerr.New(rmerr.InternalError, "schema must have at least one column")
	}
	if len(names) != len(columns) {
		return nil, rmerr.Newf(rmerr.InternalError, "%d column names for %d columns", len(names), len(columns))
	}
	cols := make(types.KeyLayout, len(columns))
	copy(cols, columns)
	nm := make([]string, len(names))
	copy(nm, names)
	return &Schema{Columns: cols, Names: nm}, nil
}

// ColumnIndex returns the position of name in the schema, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, n := range s.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// recordFieldSize returns column c's contribution to the row's on-disk
// record-payload length, which differs from its key-encoding width for
// STRING columns (a 4-byte length prefix plus the full declared width),
// per types.StringField.Serialize.
func recordFieldSize(c types.Column) int32 {
	switch c.Kind {
	case types.StringKind:
		return int32(4 + c.Width)
	default:
		return 4
	}
}

// RecordSize returns the fixed byte length of this schema's row encoding,
// the value passed to heap.Create as recordSize.
func (s *Schema) RecordSize() int32 {
	var total int32
	for _, c := range s.Columns {
		total += recordFieldSize(c)
	}
	return total
}

// EncodeRow serializes fields (one per schema column, in order) into a
// heap record payload.
func (s *Schema) EncodeRow(fields []types.Field) ([]byte, error) {
	if len(fields) != len(s.Columns) {
		return nil, rmerr.Newf(rmerr.InvalidValueCount, "expected %d values, got %d", len(s.Columns), len(fields))
	}
	var buf bytes.Buffer
	for i, f := range fields {
		if f.Kind() != s.Columns[i].Kind {
			return nil, rmerr.Newf(rmerr.IncompatibleType, "column %q expects %v, got %v", s.Names[i], s.Columns[i].Kind, f.Kind())
		}
		if err := f.Serialize(&buf); err != nil {
			return nil, rmerr.Wrap(err, rmerr.InternalError, "serialize column "+s.Names[i])
		}
	}
	return buf.Bytes(), nil
}

// DecodeRow parses a heap record payload back into one Field per schema
// column, in order.
func (s *Schema) DecodeRow(payload []byte) ([]types.Field, error) {
	r := bytes.NewReader(payload)
	fields := make([]types.Field, len(s.Columns))
	for i, c := range s.Columns {
		f, err := types.ParseField(r, c.Kind, c.Width)
		if err != nil {
			return nil, rmerr.Wrap(err, rmerr.InternalError, "parse column "+s.Names[i])
		}
		fields[i] = f
	}
	return fields, nil
}

// Project builds the composite types.KeyLayout for the given column
// indices, used to derive an index's key layout. projectFields extracts
// the matching Field subset of a row for encoding that row's key.
func (s *Schema) Project(columnIndices []int) types.KeyLayout {
	return functools.Map(columnIndices, func(ci int) types.Column { return s.Columns[ci] })
}

func projectFields(fields []types.Field, columnIndices []int) []types.Field {
	return functools.Map(columnIndices, func(ci int) types.Field { return fields[ci] })
}
