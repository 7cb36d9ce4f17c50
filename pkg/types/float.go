package types

import (
	"encoding/binary"
	"hash/fnv"
	"io"
	"math"
	"strconv"

	"rmdb/pkg/primitives"
)

// FloatField is an IEEE-754 32-bit floating point column value. Comparison
// is exact (no epsilon tolerance): the B+ tree needs a strict total order
// over key bytes, and tolerant equality would break that invariant.
type FloatField struct {
	Value float32
}

func NewFloatField(value float32) *FloatField {
	return &FloatField{Value: value}
}

func (f *FloatField) Serialize(w io.Writer) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f.Value))
	_, err := w.Write(b)
	return err
}

func (f *FloatField) Kind() Kind { return FloatKind }

func (f *FloatField) String() string {
	return strconv.FormatFloat(float64(f.Value), 'f', -1, 32)
}

func (f *FloatField) Equals(other Field) bool {
	otherField, ok := other.(*FloatField)
	if !ok {
		return false
	}
	return f.Value == otherField.Value
}

func (f *FloatField) KeyBytes(_ int) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(f.Value))
	return b
}

func (f *FloatField) Length() uint32 { return 4 }

func (f *FloatField) Hash() (primitives.HashCode, error) {
	h := fnv.New32a()
	_, _ = h.Write(f.KeyBytes(4))
	return primitives.HashCode(h.Sum32()), nil
}
