package types

import (
	"encoding/binary"
	"io"
	"math"

	"rmdb/pkg/rmerr"
)

// ParseField reads one field's record-payload encoding (the format
// Field.Serialize writes, not the fixed-width KeyBytes encoding) from r
// and returns the reconstructed Field. width is the column's declared
// width; it is ignored for IntKind/FloatKind, which are always 4 bytes.
func ParseField(r io.Reader, kind Kind, width int) (Field, error) {
	switch kind {
	case IntKind:
		b := make([]byte, 4)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return NewIntField(int32(binary.LittleEndian.Uint32(b))), nil // #nosec G115

	case FloatKind:
		b := make([]byte, 4)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, err
		}
		return NewFloatField(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil

	case StringKind:
		lengthBytes := make([]byte, 4)
		if _, err := io.ReadFull(r, lengthBytes); err != nil {
			return nil, err
		}
		length := int(binary.LittleEndian.Uint32(lengthBytes)) // #nosec G115

		data := make([]byte, width)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		if length > width {
			length = width
		}
		return NewStringField(string(data[:length]), width), nil

	default:
		return nil, rmerr.Newf(rmerr.InternalError, "cannot parse field of unknown kind %v", kind)
	}
}
