package types

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"strconv"

	"rmdb/pkg/primitives"
)

// IntField is a signed 32-bit integer column value.
type IntField struct {
	Value int32
}

func NewIntField(value int32) *IntField {
	return &IntField{Value: value}
}

func (f *IntField) Serialize(w io.Writer) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(f.Value)) // #nosec G115
	_, err := w.Write(b)
	return err
}

func (f *IntField) Kind() Kind { return IntKind }

func (f *IntField) String() string {
	return strconv.FormatInt(int64(f.Value), 10)
}

func (f *IntField) Equals(other Field) bool {
	otherField, ok := other.(*IntField)
	if !ok {
		return false
	}
	return f.Value == otherField.Value
}

// KeyBytes returns the 4-byte little-endian representation; width is
// ignored since INT columns are always 4 bytes.
func (f *IntField) KeyBytes(_ int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(f.Value)) // #nosec G115
	return b
}

func (f *IntField) Length() uint32 { return 4 }

func (f *IntField) Hash() (primitives.HashCode, error) {
	h := fnv.New32a()
	_, _ = h.Write(f.KeyBytes(4))
	return primitives.HashCode(h.Sum32()), nil
}
