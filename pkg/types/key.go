package types

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Column describes one column of a composite index key: its kind and, for
// STRING columns, its declared fixed width.
type Column struct {
	Kind  Kind
	Width int // only meaningful for StringKind; INT/FLOAT are always 4
}

func (c Column) size() int {
	return c.Kind.FixedWidth(c.Width)
}

// KeyLayout is an ordered list of columns; its TotalSize is the B+ tree's
// fixed key_size.
type KeyLayout []Column

func (l KeyLayout) TotalSize() int {
	total := 0
	for _, c := range l {
		total += c.size()
	}
	return total
}

// EncodeKey concatenates the fixed-width encoding of each field in column
// order, producing the flat byte key stored in a B+ tree node.
func EncodeKey(layout KeyLayout, fields []Field) []byte {
	buf := make([]byte, 0, layout.TotalSize())
	for i, c := range layout {
		buf = append(buf, fields[i].KeyBytes(c.size())...)
	}
	return buf
}

// CompareKeys compares two encoded composite keys column by column using
// each column's declared comparator, short-circuiting at the first
// non-equal column.
func CompareKeys(layout KeyLayout, a, b []byte) int {
	offset := 0
	for _, c := range layout {
		w := c.size()
		ca, cb := a[offset:offset+w], b[offset:offset+w]
		if cmp := compareColumn(c.Kind, ca, cb); cmp != 0 {
			return cmp
		}
		offset += w
	}
	return 0
}

func compareColumn(kind Kind, a, b []byte) int {
	switch kind {
	case IntKind:
		av := int32(binary.LittleEndian.Uint32(a)) // #nosec G115
		bv := int32(binary.LittleEndian.Uint32(b)) // #nosec G115
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case FloatKind:
		av := math.Float32frombits(binary.LittleEndian.Uint32(a))
		bv := math.Float32frombits(binary.LittleEndian.Uint32(b))
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case StringKind:
		return bytes.Compare(a, b)
	default:
		return 0
	}
}
