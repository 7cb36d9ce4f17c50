package types

import (
	"encoding/binary"
	"hash/fnv"
	"io"

	"rmdb/pkg/primitives"
)

// StringMaxSize is the default declared width for string columns when the
// caller does not specify one.
const StringMaxSize = 256

// StringField is a string column value. MaxSize is the column's declared
// fixed width; values longer than MaxSize are truncated on construction.
type StringField struct {
	Value   string
	MaxSize int
}

func NewStringField(value string, maxSize int) *StringField {
	if len(value) > maxSize {
		value = value[:maxSize]
	}
	return &StringField{Value: value, MaxSize: maxSize}
}

// Serialize writes the record-payload encoding: a 4-byte length prefix,
// the value bytes, then zero padding to MaxSize. This form is never used
// for B+ tree keys — see KeyBytes.
func (s *StringField) Serialize(w io.Writer) error {
	length := min(len(s.Value), s.MaxSize)

	lengthBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthBytes, uint32(length))
	if _, err := w.Write(lengthBytes); err != nil {
		return err
	}
	if _, err := w.Write([]byte(s.Value[:length])); err != nil {
		return err
	}
	padding := make([]byte, s.MaxSize-length)
	_, err := w.Write(padding)
	return err
}

func (s *StringField) Kind() Kind { return StringKind }

func (s *StringField) String() string { return s.Value }

func (s *StringField) Equals(other Field) bool {
	otherField, ok := other.(*StringField)
	if !ok {
		return false
	}
	return s.Value == otherField.Value
}

// KeyBytes returns the pure fixed-width, zero-padded byte sequence used as
// (part of) a B+ tree key: no length prefix, so two keys of the same
// declared width compare correctly with a plain memcmp.
func (s *StringField) KeyBytes(width int) []byte {
	buf := make([]byte, width)
	n := min(len(s.Value), width)
	copy(buf, s.Value[:n])
	return buf
}

func (s *StringField) Length() uint32 {
	return uint32(4 + s.MaxSize)
}

func (s *StringField) Hash() (primitives.HashCode, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.Value))
	return primitives.HashCode(h.Sum32()), nil
}
