package scanner

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"
	"math"
	"regexp"

	"gomemscan/codec"
	"gomemscan/process"
)

// Func adapts a plain function to a Matcher.
type Func func(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match]

func (f Func) MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match] {
	return f(buf, base)
}

type literal struct {
	needle []byte
	typ    codec.ScalarType
}

// Literal matches the little-endian encoding of values as t, concatenated when more
// than one value is given. Every start offset is reported, overlapping ones included.
func Literal(t codec.ScalarType, values ...float64) (Matcher, error) {
	needle, err := codec.EncodeValues(t, values...)
	if err != nil {
		return nil, err
	}
	return literal{needle: needle, typ: t}, nil
}

// Bytes matches a pre-encoded needle. Matches are typed as bytes.
func Bytes(needle []byte) (Matcher, error) {
	if len(needle) == 0 {
		return nil, fmt.Errorf("empty pattern")
	}
	return literal{needle: bytes.Clone(needle), typ: codec.Bytes}, nil
}

func (l literal) MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for off := 0; off <= len(buf)-len(l.needle); {
			i := bytes.Index(buf[off:], l.needle)
			if i < 0 {
				return
			}
			off += i
			if !yield(Match{Address: process.NewAddress(base+process.ProcessMemoryAddress(off), l.typ)}) {
				return
			}
			off++
		}
	}
}

type masked struct {
	aob process.AOB
}

// Masked matches an array of bytes where a zero mask byte is a wildcard. An empty
// mask means an exact match.
func Masked(aob process.AOB) (Matcher, error) {
	if !aob.IsValid() {
		return nil, fmt.Errorf("mask length (%d) doesn't match pattern length (%d)", len(aob.Mask), len(aob.Pattern))
	}
	if len(aob.Mask) == 0 {
		aob.Mask = bytes.Repeat([]byte{0xFF}, len(aob.Pattern))
	}
	return masked{aob: aob}, nil
}

func (m masked) MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match] {
	pattern, mask := m.aob.Pattern, m.aob.Mask

	return func(yield func(Match) bool) {
		for i := 0; i <= len(buf)-len(pattern); i++ {
			matched := true
			for j := range pattern {
				if mask[j] == 0 {
					continue
				}
				if buf[i+j]&mask[j] != pattern[j]&mask[j] {
					matched = false
					break
				}
			}
			if matched && !yield(Match{Address: process.NewAddress(base+process.ProcessMemoryAddress(i), codec.Bytes)}) {
				return
			}
		}
	}
}

// LabeledPattern pairs a label with a regular expression.
type LabeledPattern struct {
	Label string
	Re    *regexp.Regexp
}

// Pattern compiles expr case-insensitively.
func Pattern(label, expr string) (LabeledPattern, error) {
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return LabeledPattern{}, fmt.Errorf("pattern %q: %w", label, err)
	}
	return LabeledPattern{Label: label, Re: re}, nil
}

// Compiled uses re as given.
func Compiled(label string, re *regexp.Regexp) LabeledPattern {
	return LabeledPattern{Label: label, Re: re}
}

// RegexpMatcher reports every non-overlapping match of each of its patterns.
type RegexpMatcher struct {
	patterns []LabeledPattern
	groups   bool
}

func Regexp(patterns ...LabeledPattern) (*RegexpMatcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns")
	}
	return &RegexpMatcher{patterns: patterns}, nil
}

// WithGroups returns a copy that attaches submatches and named groups to each match.
func (r *RegexpMatcher) WithGroups() *RegexpMatcher {
	return &RegexpMatcher{patterns: r.patterns, groups: true}
}

func (r *RegexpMatcher) MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for _, p := range r.patterns {
			for _, loc := range p.Re.FindAllSubmatchIndex(buf, -1) {
				m := Match{
					Label:   p.Label,
					Address: process.NewAddress(base+process.ProcessMemoryAddress(loc[0]), codec.Bytes),
				}
				if r.groups {
					m.Groups, m.Named = submatches(p.Re, buf, loc)
				}
				if !yield(m) {
					return
				}
			}
		}
	}
}

func submatches(re *regexp.Regexp, buf []byte, loc []int) ([]string, map[string]string) {
	names := re.SubexpNames()
	groups := make([]string, 0, len(names)-1)
	var named map[string]string

	for i := 1; i < len(names); i++ {
		var s string
		if loc[2*i] >= 0 {
			s = string(buf[loc[2*i]:loc[2*i+1]])
		}
		groups = append(groups, s)
		if names[i] != "" {
			if named == nil {
				named = make(map[string]string)
			}
			named[names[i]] = s
		}
	}
	return groups, named
}

type tolerantFloat struct {
	target float64
}

// TolerantFloat decodes a float32 at every byte offset and reports the ones whose
// integer part equals the integer part of target.
func TolerantFloat(target float64) Matcher {
	return tolerantFloat{target: target}
}

func (f tolerantFloat) MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for i := 0; i+4 <= len(buf); i++ {
			v := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i:])))
			if !codec.TruncEqual(v, f.target) {
				continue
			}
			if !yield(Match{Address: process.NewAddress(base+process.ProcessMemoryAddress(i), codec.Float)}) {
				return
			}
		}
	}
}
