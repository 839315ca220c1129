package process

import (
	"fmt"
	"strconv"
	"strings"

	"gomemscan/codec"
)

// ProcessMemoryAddress represents a memory address within a process
type ProcessMemoryAddress uint64

func (pma ProcessMemoryAddress) ToString() string {
	return fmt.Sprintf("0x%X", uint64(pma))
}

// ProcessMemorySize represents a size of memory region
type ProcessMemorySize uint

func (pms ProcessMemorySize) ToString() string {
	return fmt.Sprintf("%d bytes", uint(pms))
}

// Address is a virtual address paired with the type used to read it when no
// explicit type is given. Arithmetic returns a new Address of the same type.
type Address struct {
	Value ProcessMemoryAddress
	Type  codec.ScalarType
}

// NewAddress builds an Address; an empty type defaults to uint.
func NewAddress(value ProcessMemoryAddress, t codec.ScalarType) Address {
	if t == "" {
		t = codec.UInt
	}
	return Address{Value: value, Type: t}
}

// Add returns the address offset forward by n bytes.
func (a Address) Add(n int64) Address {
	return Address{Value: ProcessMemoryAddress(int64(a.Value) + n), Type: a.Type}
}

// Sub returns the address offset backward by n bytes.
func (a Address) Sub(n int64) Address {
	return a.Add(-n)
}

func (a Address) String() string {
	return fmt.Sprintf("0x%08X", uint64(a.Value))
}

// AOB (Array of Bytes) represents a pattern to search for in memory
type AOB struct {
	Pattern []byte // The byte pattern to search for
	Mask    []byte // Optional mask where 0xFF means exact match and 0x00 means wildcard
}

// IsValid checks if the AOB pattern is valid
func (aob AOB) IsValid() bool {
	return len(aob.Pattern) > 0 && (len(aob.Mask) == 0 || len(aob.Pattern) == len(aob.Mask))
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(pattern) != len(mask) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// ParseAOB parses a pattern such as "00 ba ad ?? f0" or "00,ba,ad,?,f0".
// "?" and "??" are wildcards.
func ParseAOB(s string) (AOB, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 {
		return AOB{}, fmt.Errorf("empty pattern")
	}

	aob := AOB{
		Pattern: make([]byte, 0, len(parts)),
		Mask:    make([]byte, 0, len(parts)),
	}
	for _, part := range parts {
		if part == "??" || part == "?" {
			aob.Pattern = append(aob.Pattern, 0)
			aob.Mask = append(aob.Mask, 0)
			continue
		}

		val, err := strconv.ParseUint(part, 16, 8)
		if err != nil {
			return AOB{}, fmt.Errorf("invalid hex byte: %s", part)
		}
		aob.Pattern = append(aob.Pattern, byte(val))
		aob.Mask = append(aob.Mask, 0xFF)
	}
	return aob, nil
}

func (aob AOB) String() string {
	var sb strings.Builder
	for i, b := range aob.Pattern {
		if i > 0 {
			sb.WriteString(" ")
		}
		if len(aob.Mask) > i && aob.Mask[i] == 0 {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02x", b)
	}
	return sb.String()
}
