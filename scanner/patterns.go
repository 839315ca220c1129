package scanner

import (
	"encoding/binary"
	"math"
	"regexp"
	"strings"
	"unicode/utf16"

	"gomemscan/process"
)

// UTF16Pattern turns an ASCII literal into a regular expression matching its UTF-16LE
// encoding. Every character is escaped and followed by a NUL byte, so s is matched
// literally. ok is false when s holds characters outside ASCII.
func UTF16Pattern(s string) (expr string, ok bool) {
	var sb strings.Builder
	for _, r := range s {
		if r > 0x7f {
			return "", false
		}
		sb.WriteString(regexp.QuoteMeta(string(r)))
		sb.WriteString(`\x00`)
	}
	return sb.String(), true
}

// EncodeUTF16 returns the UTF-16LE bytes of s, without a terminator.
func EncodeUTF16(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

// UTF16 matches the exact UTF-16LE encoding of s.
func UTF16(s string) (Matcher, error) {
	return Bytes(EncodeUTF16(s))
}

// UTF16Text matches the UTF-16LE encoding of s ignoring ASCII case. Text with characters
// outside ASCII is matched exactly.
func UTF16Text(s string) (Matcher, error) {
	expr, ok := UTF16Pattern(s)
	if !ok || s == "" {
		return UTF16(s)
	}
	p, err := Pattern("", expr)
	if err != nil {
		return nil, err
	}
	m, err := Regexp(p)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// FloatGroup matches consecutive float32 values by the two high bytes of each
// encoding. The two low bytes are wildcards, so nearby values also match.
func FloatGroup(values ...float64) (Matcher, error) {
	aob := process.AOB{
		Pattern: make([]byte, 0, 4*len(values)),
		Mask:    make([]byte, 0, 4*len(values)),
	}
	for _, v := range values {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(float32(v)))
		aob.Pattern = append(aob.Pattern, 0, 0, b[2], b[3])
		aob.Mask = append(aob.Mask, 0, 0, 0xff, 0xff)
	}
	return Masked(aob)
}

// AddressBytes matches addr stored as a little-endian pointer of the given width.
func AddressBytes(addr process.ProcessMemoryAddress, width int) (Matcher, error) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(addr))
	if width != 4 {
		width = 8
	}
	return Bytes(b[:width])
}
