package types_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rmdb/pkg/types"
)

func TestIntFieldSerializeRoundTrip(t *testing.T) {
	f := types.NewIntField(-42)
	var buf bytes.Buffer
	require.NoError(t, f.Serialize(&buf))
	assert.Len(t, buf.Bytes(), 4)

	key := f.KeyBytes(4)
	assert.Equal(t, buf.Bytes(), key)
}

func TestFloatFieldExactComparison(t *testing.T) {
	a := types.NewFloatField(1.0000001)
	b := types.NewFloatField(1.0000002)

	assert.False(t, a.Equals(b), "FLOAT comparison must be exact, not epsilon-tolerant")

	same := types.NewFloatField(1.0000001)
	assert.True(t, a.Equals(same))
}

func TestStringFieldKeyBytesFixedWidthNoPrefix(t *testing.T) {
	f := types.NewStringField("ab", 8)
	key := f.KeyBytes(8)
	assert.Len(t, key, 8)
	assert.Equal(t, []byte("ab\x00\x00\x00\x00\x00\x00"), key)
}

func TestCompareKeysColumnWise(t *testing.T) {
	layout := types.KeyLayout{
		{Kind: types.IntKind},
		{Kind: types.StringKind, Width: 4},
	}

	k1 := types.EncodeKey(layout, []types.Field{types.NewIntField(1), types.NewStringField("bb", 4)})
	k2 := types.EncodeKey(layout, []types.Field{types.NewIntField(1), types.NewStringField("aa", 4)})
	k3 := types.EncodeKey(layout, []types.Field{types.NewIntField(2), types.NewStringField("aa", 4)})

	assert.Equal(t, layout.TotalSize(), len(k1))
	assert.True(t, types.CompareKeys(layout, k2, k1) < 0)
	assert.True(t, types.CompareKeys(layout, k1, k3) < 0)
	assert.Equal(t, 0, types.CompareKeys(layout, k1, k1))
}

func TestIntFieldLittleEndianOrdering(t *testing.T) {
	small := types.NewIntField(1)
	large := types.NewIntField(256)

	layout := types.KeyLayout{{Kind: types.IntKind}}
	ks := types.EncodeKey(layout, []types.Field{small})
	kl := types.EncodeKey(layout, []types.Field{large})

	assert.True(t, types.CompareKeys(layout, ks, kl) < 0)
}
