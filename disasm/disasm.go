// Package disasm renders instructions read from a target process.
package disasm

import (
	"errors"
	"fmt"

	"gomemscan/process"

	"golang.org/x/arch/x86/x86asm"
)

// Unavailable is the text returned when no disassembler is configured.
const Unavailable = "disassembly unavailable"

// window is how many bytes are read to decode one instruction.
const window = 32

var ErrNoDisassembler = errors.New(Unavailable)

// Disassembler decodes the instruction at the start of code, located at pc.
type Disassembler interface {
	Decode(code []byte, pc uint64) (text string, length int, err error)
}

// AssemblyFlavour selects the syntax of the rendered text.
type AssemblyFlavour int

const (
	IntelFlavour AssemblyFlavour = iota
	GNUFlavour
	GoFlavour
)

// ParseFlavour accepts "intel", "gnu" and "go"; anything else is intel.
func ParseFlavour(s string) AssemblyFlavour {
	switch s {
	case "gnu":
		return GNUFlavour
	case "go":
		return GoFlavour
	}
	return IntelFlavour
}

// X86 decodes x86 (Mode 32) or x86-64 (Mode 64) machine code.
type X86 struct {
	Mode    int
	Flavour AssemblyFlavour

	// Symbols names branch targets. It may be nil.
	Symbols func(addr uint64) (name string, base uint64)
}

func (d X86) symLookup(addr uint64) (string, uint64) {
	if d.Symbols == nil {
		return "", 0
	}
	return d.Symbols(addr)
}

func (d X86) Decode(code []byte, pc uint64) (string, int, error) {
	mode := d.Mode
	if mode != 16 && mode != 32 {
		mode = 64
	}

	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return "?", 1, err
	}

	var text string
	switch d.Flavour {
	case GNUFlavour:
		text = x86asm.GNUSyntax(inst, pc, d.symLookup)
	case GoFlavour:
		text = x86asm.GoSyntax(inst, pc, d.symLookup)
	default:
		text = x86asm.IntelSyntax(inst, pc, d.symLookup)
	}
	return text, inst.Len, nil
}

// At reads a window at addr and returns the text of the first instruction. A nil
// disassembler returns Unavailable; a failed read returns a message naming addr.
func At(p process.Process, d Disassembler, addr process.ProcessMemoryAddress) string {
	if d == nil {
		return Unavailable
	}

	code, err := process.ReadMemory(p, addr, window)
	if err != nil || len(code) == 0 {
		return fmt.Sprintf("Unable to disassemble at %08x", uint64(addr))
	}

	text, _, err := d.Decode(code, uint64(addr))
	if err != nil {
		return fmt.Sprintf("Unable to disassemble at %08x", uint64(addr))
	}
	return text
}

// Line is one decoded instruction.
type Line struct {
	Address process.ProcessMemoryAddress
	Bytes   []byte
	Text    string
}

func (l Line) String() string {
	return fmt.Sprintf("%016x  %-24x %s", uint64(l.Address), l.Bytes, l.Text)
}

// Range decodes up to count instructions starting at addr. Undecodable bytes are
// emitted as one-byte "?" lines.
func Range(p process.Process, d Disassembler, addr process.ProcessMemoryAddress, count int) ([]Line, error) {
	if d == nil {
		return nil, ErrNoDisassembler
	}

	code, err := process.ReadMemory(p, addr, process.ProcessMemorySize(count*15+window))
	if err != nil {
		return nil, err
	}

	var lines []Line
	off := 0
	for len(lines) < count && off < len(code) {
		pc := addr + process.ProcessMemoryAddress(off)
		text, n, _ := d.Decode(code[off:], uint64(pc))
		if n <= 0 || off+n > len(code) {
			n = 1
		}
		lines = append(lines, Line{Address: pc, Bytes: code[off : off+n], Text: text})
		off += n
	}
	return lines, nil
}
