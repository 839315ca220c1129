package codec

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, tc := range []struct {
		tag  string
		want ScalarType
	}{
		{"int", Int},
		{"UInt", UInt},
		{" double ", Double},
		{"b", Bytes},
		{"s", String},
		{"f", Float},
		{"string", String},
	} {
		got, err := Lookup(tc.tag)
		require.NoError(t, err, tc.tag)
		assert.Equal(t, tc.want, got, tc.tag)
	}

	_, err := Lookup("int128")
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestWidth(t *testing.T) {
	want := map[ScalarType]int{
		Short: 2, UShort: 2, Int: 4, UInt: 4, Long: 4, ULong: 4, Float: 4, Double: 8,
	}
	for typ, w := range want {
		got, err := typ.Width()
		require.NoError(t, err)
		assert.Equal(t, w, got, typ.String())
	}

	_, err := Bytes.Width()
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeLittleEndian(t *testing.T) {
	b, err := Encode(UInt, 0x11223344)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, b)

	b, err = Encode(Short, -2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfe, 0xff}, b)

	b, err = Encode(Float, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, b)
}

func TestEncodeRejectsUnrepresentable(t *testing.T) {
	for _, tc := range []struct {
		typ ScalarType
		v   float64
	}{
		{Int, 1.5},
		{Short, 40000},
		{UShort, -1},
		{UInt, math.NaN()},
		{Float, 1e300},
	} {
		_, err := Encode(tc.typ, tc.v)
		assert.ErrorIs(t, err, ErrUnencodable, "%s %v", tc.typ, tc.v)
	}

	_, err := Encode(Bytes, 1)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestEncodeValuesConcatenates(t *testing.T) {
	b, err := EncodeValues(UShort, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 2, 0}, b)

	_, err = EncodeValues(UShort)
	assert.ErrorIs(t, err, ErrUnencodable)
}

func TestPackDecodeRoundTrip(t *testing.T) {
	for _, typ := range NumericTypes {
		b, err := Pack(typ, 100)
		require.NoError(t, err, typ.String())

		v, err := Decode(typ, b)
		require.NoError(t, err, typ.String())
		assert.Equal(t, 100.0, v, typ.String())
	}

	b, err := Pack(Int, int32(-7))
	require.NoError(t, err)
	v, err := Decode(Int, b)
	require.NoError(t, err)
	assert.Equal(t, -7.0, v)

	_, err = Decode(Double, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestTruncEqual(t *testing.T) {
	assert.True(t, TruncEqual(5.9, 5))
	assert.True(t, TruncEqual(-5.9, -5))
	assert.False(t, TruncEqual(4.9, 5))
	assert.False(t, TruncEqual(math.NaN(), math.NaN()))
	assert.False(t, TruncEqual(math.Inf(1), math.Inf(1)))
}
