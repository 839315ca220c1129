// Package session bundles an open process with the scanner, locator, symbol cache and
// disassembler configured for it.
package session

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"gomemscan/codec"
	"gomemscan/config"
	"gomemscan/disasm"
	"gomemscan/hexdump"
	"gomemscan/locator"
	"gomemscan/process"
	"gomemscan/scanner"
	"gomemscan/search"
	"gomemscan/symbol"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

type Session struct {
	p            process.Process
	scanOpts     []scanner.Option
	defaultType  codec.ScalarType
	maxStringLen int
	cacheSize    int
	disasm       disasm.Disassembler
	symbols      *symbol.Cache
	log          *logger.Logger
}

type Option func(*Session) error

// WithScanOptions applies opts to every scan started by the session.
func WithScanOptions(opts ...scanner.Option) Option {
	return func(s *Session) error {
		s.scanOpts = append(s.scanOpts, opts...)
		return nil
	}
}

// WithDisassembler sets the disassembler used by Instruction. Without one, Instruction
// returns disasm.Unavailable.
func WithDisassembler(d disasm.Disassembler) Option {
	return func(s *Session) error {
		s.disasm = d
		return nil
	}
}

// WithSymbolCache memoizes Symbol in an LRU of size entries. Zero disables the cache.
func WithSymbolCache(size int) Option {
	return func(s *Session) error {
		s.cacheSize = size
		return nil
	}
}

// WithDefaultType sets the type Address uses when none is given.
func WithDefaultType(t codec.ScalarType) Option {
	return func(s *Session) error {
		s.defaultType = t
		return nil
	}
}

// WithConfig applies a loaded configuration: scan chunk size and protection, symbol
// cache size, string limit, default type and an x86 disassembler.
func WithConfig(c *config.Config) Option {
	return func(s *Session) error {
		mask, err := c.ScanProtection()
		if err != nil {
			return err
		}
		t, err := c.Type()
		if err != nil {
			return err
		}
		if t != "" {
			s.defaultType = t
		}

		s.scanOpts = append(s.scanOpts, scanner.WithChunkSize(c.GetChunkSize()), scanner.WithProtection(mask))
		s.cacheSize = c.GetSymbolCacheSize()
		s.maxStringLen = c.GetMaxStringLen()

		mode := c.DisasmMode
		if mode == 0 {
			mode = process.PointerWidth(s.p) * 8
		}
		s.disasm = disasm.X86{Mode: mode, Flavour: disasm.ParseFlavour(c.DisasmFlavour), Symbols: s.symbolFor}
		return nil
	}
}

// New wraps an open process. The session owns p from here on and closes it in Close.
func New(p process.Process, opts ...Option) (*Session, error) {
	if !p.IsOpen() {
		return nil, process.ErrProcessNotOpen
	}

	s := &Session{
		p:            p,
		defaultType:  codec.UInt,
		maxStringLen: config.DefaultMaxStringLen,
		log:          logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("session-%d", p.GetPID()))),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.cacheSize > 0 {
		cache, err := symbol.NewCache(p, s.cacheSize)
		if err != nil {
			return nil, err
		}
		s.symbols = cache
	}

	s.log.Infoln("Session opened")
	return s, nil
}

func (s *Session) Process() process.Process {
	return s.p
}

func (s *Session) Close() error {
	if s.symbols != nil {
		s.symbols.Purge()
	}
	return s.p.Close()
}

// Address builds an Address of type t, or of the session's default type when t is empty.
func (s *Session) Address(v process.ProcessMemoryAddress, t codec.ScalarType) process.Address {
	if t == "" {
		t = s.defaultType
	}
	return process.NewAddress(v, t)
}

// Read decodes the value at a. String addresses are not numeric; use ReadString.
func (s *Session) Read(a process.Address) (float64, error) {
	return process.Read(s.p, a.Value, a.Type)
}

func (s *Session) ReadString(a process.Address) (string, error) {
	return process.ReadString(s.p, a.Value, s.maxStringLen)
}

func (s *Session) Write(a process.Address, v float64) (int, error) {
	return process.Write(s.p, a.Value, a.Type, v)
}

func (s *Session) ReadBytes(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	return process.ReadMemory(s.p, addr, size)
}

func (s *Session) WriteBytes(addr process.ProcessMemoryAddress, data []byte) (int, error) {
	return process.WriteMemory(s.p, addr, data)
}

// Regions lists the regions a scan would visit.
func (s *Session) Regions() ([]process.MemoryRegion, error) {
	o := scanner.NewOptions(s.scanOpts...)
	return process.CollectRegions(s.p, o.Start, o.End, o.Mask)
}

// Search scans with m. opts are applied after the session's own scan options.
func (s *Session) Search(m scanner.Matcher, opts ...scanner.Option) iter.Seq2[scanner.Match, error] {
	return scanner.Scan(s.p, m, append(append([]scanner.Option(nil), s.scanOpts...), opts...)...)
}

// Replace writes data at every match of m and reports whether every write succeeded.
// Matches are collected before the first write so a replacement cannot feed the scan.
func (s *Session) Replace(m scanner.Matcher, data []byte) (bool, error) {
	matches, err := scanner.Collect(s.Search(m))
	if err != nil {
		return false, err
	}

	ok := true
	for _, match := range matches {
		n, err := s.WriteBytes(match.Address.Value, data)
		if errors.Is(err, process.ErrProcessNotOpen) {
			return false, err
		}
		if err != nil || n != len(data) {
			s.log.Debugln("Write at", match.Address.Value.ToString(), "failed:", err)
			ok = false
			continue
		}
		s.log.Debugln("Write at", match.Address.Value.ToString(), "succeeded")
	}
	return ok, nil
}

// UTF16Search finds the UTF-16LE encoding of text, ignoring ASCII case.
func (s *Session) UTF16Search(text string) (iter.Seq2[scanner.Match, error], error) {
	m, err := scanner.UTF16Text(text)
	if err != nil {
		return nil, err
	}
	return s.Search(m), nil
}

// UTF16Replace writes replacement, UTF-16LE encoded, over every occurrence of text.
// Occurrences are found as by UTF16Search.
func (s *Session) UTF16Replace(text, replacement string) (bool, error) {
	m, err := scanner.UTF16Text(text)
	if err != nil {
		return false, err
	}
	return s.Replace(m, scanner.EncodeUTF16(replacement))
}

// GroupSearch finds runs of float32 values close to values.
func (s *Session) GroupSearch(values ...float64) (iter.Seq2[scanner.Match, error], error) {
	m, err := scanner.FloatGroup(values...)
	if err != nil {
		return nil, err
	}
	return s.Search(m), nil
}

// SearchAddress finds places that store addr as a pointer of the target's width.
func (s *Session) SearchAddress(addr process.ProcessMemoryAddress) (iter.Seq2[scanner.Match, error], error) {
	m, err := scanner.AddressBytes(addr, process.PointerWidth(s.p))
	if err != nil {
		return nil, err
	}
	return s.Search(m), nil
}

// PointerPaths searches the pointer graph below base.
func (s *Session) PointerPaths(base process.ProcessMemoryAddress, opts ...search.Option) ([]search.SearchResult, error) {
	return search.Search(s.p, base, opts...)
}

// Locator starts a candidate search that uses the session's scan options.
func (s *Session) Locator(opts ...locator.Option) (*locator.Locator, error) {
	return locator.New(s.p, append([]locator.Option{locator.WithScanOptions(s.scanOpts...)}, opts...)...)
}

// Symbol names addr relative to its module.
func (s *Session) Symbol(addr process.ProcessMemoryAddress) string {
	if s.symbols != nil {
		return s.symbols.Resolve(addr)
	}
	return symbol.Resolve(s.p, addr)
}

func (s *Session) symbolFor(addr uint64) (string, uint64) {
	modules, err := s.p.Modules()
	if err != nil {
		return "", 0
	}
	for _, m := range modules {
		if m.Contains(process.ProcessMemoryAddress(addr)) {
			return m.Name, uint64(m.Base)
		}
	}
	return "", 0
}

func (s *Session) HasModule(name string) (bool, error) {
	return symbol.HasModule(s.p, name)
}

// Instruction returns the text of the instruction at addr.
func (s *Session) Instruction(addr process.ProcessMemoryAddress) string {
	return disasm.At(s.p, s.disasm, addr)
}

func (s *Session) Instructions(addr process.ProcessMemoryAddress, count int) ([]disasm.Line, error) {
	return disasm.Range(s.p, s.disasm, addr, count)
}

// Dump writes size bytes starting before bytes ahead of addr to w. A numeric t prints
// typed values, anything else a byte dump.
func (s *Session) Dump(w io.Writer, addr process.ProcessMemoryAddress, size process.ProcessMemorySize, before process.ProcessMemorySize, t codec.ScalarType, opts hexdump.HexDumpOptions) error {
	start := addr - process.ProcessMemoryAddress(min(before, process.ProcessMemorySize(addr)))

	data, err := process.ReadMemory(s.p, start, size)
	if err != nil {
		return err
	}
	hexdump.Typed(w, data, uint64(start), t, opts)
	return nil
}
