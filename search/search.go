// Package search walks pointer graphs in a target process looking for paths from a
// base address to a value.
package search

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"gomemscan/codec"
	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

var log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "search"))

var ErrNoTarget = errors.New("no search target specified")

// Searcher holds configuration for the search
type Searcher struct {
	MaxStructSize uint
	MaxDepth      int
	MinAlignment  uint
	MaxResults    int
	SearchFor     func([]byte) bool

	err error
}

// Option is a function that configures a Searcher
type Option func(*Searcher)

func WithMaxStructSize(size uint) Option {
	return func(s *Searcher) {
		s.MaxStructSize = size
	}
}

func WithMaxDepth(depth int) Option {
	return func(s *Searcher) {
		s.MaxDepth = depth
	}
}

func WithMinAlignment(align uint) Option {
	return func(s *Searcher) {
		s.MinAlignment = align
	}
}

// WithMaxResults stops the walk once n paths were found. Zero means no limit.
func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		s.MaxResults = n
	}
}

// WithBytes matches slots that start with needle.
func WithBytes(needle []byte) Option {
	needle = bytes.Clone(needle)
	return func(s *Searcher) {
		s.SearchFor = func(data []byte) bool {
			return len(needle) > 0 && bytes.HasPrefix(data, needle)
		}
	}
}

// WithValue matches slots holding v encoded as t.
func WithValue(t codec.ScalarType, v float64) Option {
	return func(s *Searcher) {
		needle, err := codec.Encode(t, v)
		if err != nil {
			s.err = err
			return
		}
		WithBytes(needle)(s)
	}
}

// SearchResult represents a found path to the target. Path can be passed straight
// to process.ReadPointerPath together with the base that was searched.
type SearchResult struct {
	Path    []int64
	Address process.ProcessMemoryAddress
}

func (r SearchResult) String() string {
	s := ""
	for i, off := range r.Path {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprintf("+0x%X", off)
	}
	return fmt.Sprintf("[%s] = %s", s, r.Address.ToString())
}

type walker struct {
	*Searcher
	proc    process.Process
	width   int
	visited map[process.ProcessMemoryAddress]bool
	results []SearchResult
}

// Search performs a recursive search for the target value starting at base.
// Every readable pointer-aligned slot is followed up to MaxDepth levels.
func Search(proc process.Process, base process.ProcessMemoryAddress, options ...Option) ([]SearchResult, error) {
	s := &Searcher{
		MaxStructSize: 256,
		MaxDepth:      3,
		MinAlignment:  4,
	}

	for _, opt := range options {
		opt(s)
	}

	if s.err != nil {
		return nil, s.err
	}
	if s.SearchFor == nil {
		return nil, ErrNoTarget
	}
	if s.MinAlignment == 0 {
		s.MinAlignment = 1
	}
	if !proc.IsOpen() {
		return nil, process.ErrProcessNotOpen
	}
	if err := proc.UpdateMemoryMap(); err != nil {
		return nil, &process.QueryError{Address: base, Err: err}
	}

	w := &walker{
		Searcher: s,
		proc:     proc,
		width:    process.PointerWidth(proc),
		visited:  make(map[process.ProcessMemoryAddress]bool),
	}
	w.walk(base, 0, nil)

	log.Debugln("Pointer search from", base.ToString(), "visited", len(w.visited), "structs, found", len(w.results))
	return w.results, nil
}

func (w *walker) full() bool {
	return w.MaxResults > 0 && len(w.results) >= w.MaxResults
}

func (w *walker) readable(addr process.ProcessMemoryAddress) bool {
	region, err := w.proc.QueryRegion(addr)
	if err != nil {
		return false
	}
	return region.IsBacked() && region.Protect.IsReadable()
}

func (w *walker) walk(addr process.ProcessMemoryAddress, depth int, path []int64) {
	if depth > w.MaxDepth || w.visited[addr] || w.full() {
		return
	}
	w.visited[addr] = true

	// Partial reads are fine: a struct at the end of a region is still searched.
	data, err := process.ReadMemory(w.proc, addr, process.ProcessMemorySize(w.MaxStructSize))
	if err != nil {
		return
	}

	for offset := uint(0); offset < uint(len(data)); offset += w.MinAlignment {
		if w.full() {
			return
		}

		if w.SearchFor(data[offset:]) {
			w.results = append(w.results, SearchResult{
				Path:    append(append([]int64(nil), path...), int64(offset)),
				Address: addr + process.ProcessMemoryAddress(offset),
			})
		}

		if depth >= w.MaxDepth || offset%uint(w.width) != 0 || offset+uint(w.width) > uint(len(data)) {
			continue
		}

		var ptr uint64
		if w.width == 8 {
			ptr = binary.LittleEndian.Uint64(data[offset:])
		} else {
			ptr = uint64(binary.LittleEndian.Uint32(data[offset:]))
		}

		target := process.ProcessMemoryAddress(ptr)
		if ptr != 0 && w.readable(target) {
			w.walk(target, depth+1, append(append([]int64(nil), path...), int64(offset)))
		}
	}
}
