// Package scanner streams the committed regions of a process through a Matcher and
// yields the matches lazily.
package scanner

import (
	"errors"
	"iter"

	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "scanner"))

// DefaultChunkSize bounds a single read while a region is being collected.
const DefaultChunkSize = 1 << 20

// Match is one hit. Label is empty for strategies that do not name their patterns.
type Match struct {
	Label   string
	Address process.Address

	// Groups and Named are filled by regular expression matchers built with WithGroups.
	Groups []string
	Named  map[string]string
}

// Matcher is invoked once per region with the complete region bytes.
type Matcher interface {
	MatchRegion(buf []byte, base process.ProcessMemoryAddress) iter.Seq[Match]
}

// Options configures a scan
type Options struct {
	Start     process.ProcessMemoryAddress
	End       process.ProcessMemoryAddress
	Mask      process.Protection
	ChunkSize int
}

// Option is a function that configures a scan
type Option func(*Options)

// WithRange limits the scan to regions between start and end. Zero means the
// process bound.
func WithRange(start, end process.ProcessMemoryAddress) Option {
	return func(o *Options) {
		o.Start = start
		o.End = end
	}
}

// WithProtection sets the region protection filter. Zero disables it.
func WithProtection(mask process.Protection) Option {
	return func(o *Options) {
		o.Mask = mask
	}
}

func WithChunkSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.ChunkSize = n
		}
	}
}

func NewOptions(opts ...Option) Options {
	o := Options{
		Mask:      process.DefaultScanProtection,
		ChunkSize: DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Scan returns a sequence over every match of m in p. Nothing is read until the
// sequence is pulled, and each iteration walks the address space again.
//
// A region that cannot be read is skipped. A permission failure, a closed handle or a
// failed region query is yielded as the final element.
func Scan(p process.Process, m Matcher, opts ...Option) iter.Seq2[Match, error] {
	o := NewOptions(opts...)

	return func(yield func(Match, error) bool) {
		if !p.IsOpen() {
			yield(Match{}, process.ErrProcessNotOpen)
			return
		}

		for region, err := range process.Regions(p, o.Start, o.End, o.Mask) {
			if err != nil {
				yield(Match{}, err)
				return
			}

			buf, err := readRegion(p, region, o.ChunkSize)
			if err != nil {
				if errors.Is(err, process.ErrPermissionDenied) || errors.Is(err, process.ErrProcessNotOpen) {
					yield(Match{}, err)
					return
				}
				log.Debugln("Skipping region", region.Base.ToString(), err)
				continue
			}
			if len(buf) == 0 {
				continue
			}

			for match := range m.MatchRegion(buf, region.Base) {
				if !yield(match, nil) {
					return
				}
			}
		}
	}
}

// readRegion collects a whole region in chunks. A short chunk ends the region.
func readRegion(p process.Process, region process.MemoryRegion, chunkSize int) ([]byte, error) {
	buf := make([]byte, 0, min(uint64(region.Size), uint64(chunkSize)))

	for read := process.ProcessMemorySize(0); read < region.Size; {
		n := min(region.Size-read, process.ProcessMemorySize(chunkSize))

		data, err := process.ReadMemory(p, region.Base+process.ProcessMemoryAddress(read), n)
		if err != nil {
			return nil, err
		}
		buf = append(buf, data...)
		read += process.ProcessMemorySize(len(data))

		if process.ProcessMemorySize(len(data)) < n {
			break
		}
	}
	return buf, nil
}

// Collect drains a scan into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Match, error]) ([]Match, error) {
	var matches []Match
	for match, err := range seq {
		if err != nil {
			return matches, err
		}
		matches = append(matches, match)
	}
	return matches, nil
}
