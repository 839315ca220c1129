// Package codec maps scalar type tags to their fixed-width little-endian encodings.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/constraints"
)

// ScalarType names the encoding used to interpret a span of target memory.
type ScalarType string

const (
	Short  ScalarType = "short"
	UShort ScalarType = "ushort"
	Int    ScalarType = "int"
	UInt   ScalarType = "uint"
	Long   ScalarType = "long"
	ULong  ScalarType = "ulong"
	Float  ScalarType = "float"
	Double ScalarType = "double"
	Bytes  ScalarType = "bytes"
	String ScalarType = "string"
)

var (
	// ErrUnknownType is returned for tags that do not name a scalar type.
	ErrUnknownType = errors.New("unknown data type")

	// ErrUnencodable is returned when a value cannot be represented by the requested type.
	ErrUnencodable = errors.New("value not representable")

	// ErrShortBuffer is returned when decoding from fewer bytes than the type's width.
	ErrShortBuffer = errors.New("buffer shorter than type width")
)

// NumericTypes lists every fixed-width type, in the order the locator probes them
// when no type is fixed.
var NumericTypes = []ScalarType{Short, UShort, Int, UInt, Long, ULong, Float, Double}

// long and ulong follow the LLP64 model: 4 bytes wide.
var widths = map[ScalarType]int{
	Short:  2,
	UShort: 2,
	Int:    4,
	UInt:   4,
	Long:   4,
	ULong:  4,
	Float:  4,
	Double: 8,
}

var aliases = map[string]ScalarType{
	"b": Bytes,
	"s": String,
	"f": Float,
}

// Lookup resolves a tag, case-insensitively, to its ScalarType.
func Lookup(tag string) (ScalarType, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if t, ok := aliases[tag]; ok {
		return t, nil
	}
	t := ScalarType(tag)
	if _, ok := widths[t]; ok || t == Bytes || t == String {
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, tag)
}

// Width returns the encoded size in bytes. Bytes and String have no fixed width.
func (t ScalarType) Width() (int, error) {
	w, ok := widths[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q has no fixed width", ErrUnknownType, string(t))
	}
	return w, nil
}

// IsNumeric reports whether t has a fixed-width numeric encoding.
func (t ScalarType) IsNumeric() bool {
	_, ok := widths[t]
	return ok
}

func (t ScalarType) String() string {
	return string(t)
}

func (t ScalarType) signed() bool {
	return t == Short || t == Int || t == Long
}

func (t ScalarType) intRange() (lo, hi float64) {
	switch t {
	case Short:
		return math.MinInt16, math.MaxInt16
	case UShort:
		return 0, math.MaxUint16
	case Int, Long:
		return math.MinInt32, math.MaxInt32
	case UInt, ULong:
		return 0, math.MaxUint32
	}
	return 0, 0
}

// Encode packs v as t. Integer types reject fractional, non-finite and out of range
// values with ErrUnencodable.
func Encode(t ScalarType, v float64) ([]byte, error) {
	w, err := t.Width()
	if err != nil {
		return nil, err
	}
	out := make([]byte, w)

	switch t {
	case Float:
		if !math.IsInf(v, 0) && !math.IsNaN(v) && math.Abs(v) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %v overflows %s", ErrUnencodable, v, t)
		}
		binary.LittleEndian.PutUint32(out, math.Float32bits(float32(v)))
		return out, nil
	case Double:
		binary.LittleEndian.PutUint64(out, math.Float64bits(v))
		return out, nil
	}

	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrUnencodable, v)
	}
	lo, hi := t.intRange()
	if v < lo || v > hi {
		return nil, fmt.Errorf("%w: %v out of range for %s", ErrUnencodable, v, t)
	}

	if t.signed() {
		n := int64(v)
		switch w {
		case 2:
			binary.LittleEndian.PutUint16(out, uint16(int16(n)))
		case 4:
			binary.LittleEndian.PutUint32(out, uint32(int32(n)))
		}
		return out, nil
	}

	n := uint64(v)
	switch w {
	case 2:
		binary.LittleEndian.PutUint16(out, uint16(n))
	case 4:
		binary.LittleEndian.PutUint32(out, uint32(n))
	}
	return out, nil
}

// EncodeValues packs each value as t and concatenates the results.
func EncodeValues(t ScalarType, values ...float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no values", ErrUnencodable)
	}
	var out []byte
	for _, v := range values {
		b, err := Encode(t, v)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Pack is Encode for any Go integer or float value.
func Pack[N constraints.Integer | constraints.Float](t ScalarType, v N) ([]byte, error) {
	return Encode(t, float64(v))
}

// Decode unpacks the leading Width() bytes of b as t.
func Decode(t ScalarType, b []byte) (float64, error) {
	w, err := t.Width()
	if err != nil {
		return 0, err
	}
	if len(b) < w {
		return 0, fmt.Errorf("%w: need %d bytes for %s, have %d", ErrShortBuffer, w, t, len(b))
	}

	switch t {
	case Short:
		return float64(int16(binary.LittleEndian.Uint16(b))), nil
	case UShort:
		return float64(binary.LittleEndian.Uint16(b)), nil
	case Int, Long:
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case UInt, ULong:
		return float64(binary.LittleEndian.Uint32(b)), nil
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	}
}

// TruncEqual compares a and b after truncating both toward zero, so 5.9 equals 5.
// Values that are not finite never compare equal. The precision loss is intentional:
// float and double candidates are matched on their integer part.
func TruncEqual(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Trunc(a) == math.Trunc(b)
}
