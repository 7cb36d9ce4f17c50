package types

import (
	"io"
)

// Field is a single typed column value. Implementations are IntField,
// FloatField, and StringField.
type Field interface {
	// Serialize writes the record-payload encoding of this field (used by
	// the heap file, not by the B+ tree key encoder — see EncodeKey).
	Serialize(w io.Writer) error

	Kind() Kind

	String() string

	Equals(other Field) bool

	// KeyBytes returns the fixed-width, byte-comparable encoding of this
	// field for use as (part of) a B+ tree key. The returned slice always
	// has length equal to the column's declared width.
	KeyBytes(width int) []byte

	Length() uint32
}
