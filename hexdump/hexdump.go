// Package hexdump formats target memory as hex and ASCII columns, or as a column of
// typed values.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"gomemscan/codec"
	"gomemscan/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// HexDumpOptions defines options for customizing the hexdump output
type HexDumpOptions struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes (usually 1, 2, 4, or 8)
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartOffset is the address of data[0]
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// NoColor disables ANSI escapes, for files and pipes
	NoColor bool

	OffsetColor       coloransi.ColorCode
	HexColor          coloransi.ColorCode
	ASCIIColor        coloransi.ColorCode
	NonPrintableColor coloransi.ColorCode
	ZeroColor         coloransi.ColorCode

	// HighlightPattern is a pattern to highlight in the dump
	HighlightPattern         []byte
	HighlightColor           coloransi.ColorCode
	HighlightBackgroundColor coloransi.ColorCode

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// Regions enables the pointer preview: 8-byte values at the start and middle of a
	// line that fall inside one of the regions are printed after the ASCII column.
	Regions []process.MemoryRegion
}

// DefaultOptions returns the default hexdump options
func DefaultOptions() HexDumpOptions {
	return HexDumpOptions{
		BytesPerLine:             16,
		GroupSize:                1,
		ShowASCII:                true,
		OffsetWidth:              8,
		OffsetColor:              coloransi.Cyan,
		HexColor:                 coloransi.Green,
		ASCIIColor:               coloransi.White,
		NonPrintableColor:        coloransi.Red,
		ZeroColor:                coloransi.BrightBlack,
		HighlightColor:           coloransi.Yellow,
		HighlightBackgroundColor: coloransi.Black,
	}
}

func (o HexDumpOptions) fg(color coloransi.ColorCode, s string) string {
	if o.NoColor {
		return s
	}
	return coloransi.Foreground(color, s)
}

func (o HexDumpOptions) fgbg(fg, bg coloransi.ColorCode, s string) string {
	if o.NoColor {
		return s
	}
	return coloransi.Color(fg, bg, s)
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options HexDumpOptions) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options HexDumpOptions) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	lineCount := 0
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lineCount >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(data))
		formatLine(writer, data[offset:end], uint64(offset)+options.StartOffset, options)
		lineCount++
	}
}

// formatLine formats a single line of the hex dump
func formatLine(writer io.Writer, data []byte, offset uint64, options HexDumpOptions) {
	offsetStr := fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", offset)
	fmt.Fprint(writer, options.fg(options.OffsetColor, offsetStr), "  ")

	hexParts := formatHexValues(data, options)

	// The divider only appears once the line reaches past half of BytesPerLine.
	useSplit := options.BytesPerLine >= 8 && len(data) > options.BytesPerLine/2

	groupsPerLine := max(options.BytesPerLine/options.GroupSize, 1)
	leftGroups := min(groupsPerLine/2, len(hexParts))

	if useSplit && leftGroups > 0 && leftGroups < len(hexParts) {
		fmt.Fprint(writer, strings.Join(hexParts[:leftGroups], " "), " | ", strings.Join(hexParts[leftGroups:], " "))
	} else {
		fmt.Fprint(writer, strings.Join(hexParts, " "))
	}

	// Pad short lines so the ASCII column stays aligned.
	if options.BytesPerLine > len(data) {
		fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
		curGroups := (len(data) + options.GroupSize - 1) / options.GroupSize
		missingBytes := options.BytesPerLine - len(data)
		deltaSpaces := (fullGroups - 1) - max(0, curGroups-1)

		pipeFull, pipeCur := 0, 0
		if options.BytesPerLine >= 8 {
			pipeFull = 3
		}
		if useSplit {
			pipeCur = 3
		}

		if padding := missingBytes*2 + deltaSpaces + (pipeFull - pipeCur); padding > 0 {
			fmt.Fprint(writer, strings.Repeat(" ", padding))
		}
	}

	if options.ShowASCII {
		fmt.Fprint(writer, " | ")

		midPoint := options.BytesPerLine / 2
		if options.BytesPerLine >= 8 && len(data) > midPoint {
			formatASCII(writer, data[:midPoint], 0, options)
			fmt.Fprint(writer, " ")
			formatASCII(writer, data[midPoint:], midPoint, options)
		} else {
			formatASCII(writer, data, 0, options)
		}
	}

	if len(options.Regions) > 0 && len(data) >= 8 {
		var ptrs []string
		for _, at := range []int{0, 8} {
			if at+8 > len(data) {
				break
			}
			ptr := binary.LittleEndian.Uint64(data[at:])
			if isValidPointer(ptr, options.Regions) {
				ptrs = append(ptrs, options.fg(coloransi.Yellow, fmt.Sprintf("0x%x", ptr)))
			}
		}
		if len(ptrs) > 0 {
			fmt.Fprint(writer, " | ", strings.Join(ptrs, " "))
		}
	}

	fmt.Fprintln(writer)
}

func highlighted(data []byte, pos int, pattern []byte) bool {
	return len(pattern) > 0 && pos+len(pattern) <= len(data) && bytes.Equal(data[pos:pos+len(pattern)], pattern)
}

// formatASCII formats the ASCII part of a hex dump line
func formatASCII(writer io.Writer, data []byte, offset int, options HexDumpOptions) {
	for i, b := range data {
		c := rune(b)

		switch {
		case highlighted(data, i, options.HighlightPattern):
			fmt.Fprint(writer, options.fgbg(options.HighlightColor, options.HighlightBackgroundColor, printable(c)))
		case b == 0:
			fmt.Fprint(writer, options.fg(options.ZeroColor, "."))
		case b > unicode.MaxASCII || !unicode.IsPrint(c):
			fmt.Fprint(writer, options.fg(options.NonPrintableColor, "."))
		default:
			fmt.Fprint(writer, options.fg(options.ASCIIColor, string(c)))
		}
	}
}

func printable(c rune) string {
	if c > unicode.MaxASCII || !unicode.IsPrint(c) {
		return "."
	}
	return string(c)
}

// formatHexValues formats the hex values part of the line with proper grouping and highlighting
func formatHexValues(data []byte, options HexDumpOptions) []string {
	var result []string
	var groupBuffer []string

	for i, b := range data {
		hexValue := fmt.Sprintf("%02x", b)

		var colored string
		switch {
		case highlighted(data, i, options.HighlightPattern):
			colored = options.fgbg(options.HighlightColor, options.HighlightBackgroundColor, hexValue)
		case b == 0:
			colored = options.fg(options.ZeroColor, hexValue)
		default:
			colored = options.fg(options.HexColor, hexValue)
		}
		groupBuffer = append(groupBuffer, colored)

		if (i+1)%options.GroupSize == 0 || i == len(data)-1 {
			result = append(result, strings.Join(groupBuffer, ""))
			groupBuffer = nil
		}
	}

	return result
}

func isValidPointer(ptr uint64, regions []process.MemoryRegion) bool {
	for _, r := range regions {
		if r.Contains(process.ProcessMemoryAddress(ptr)) {
			return true
		}
	}
	return false
}

// DumpBytes creates a simple hex dump with default options
func DumpBytes(data []byte) string {
	return Dump(data, DefaultOptions())
}

// DumpWithOffset creates a hex dump starting at the specified offset
func DumpWithOffset(data []byte, startOffset uint64) string {
	options := DefaultOptions()
	options.StartOffset = startOffset
	return Dump(data, options)
}

// Typed writes data as a column of t values, four per line, each line prefixed with
// the address of its first value. Bytes and String fall back to the byte dump.
func Typed(writer io.Writer, data []byte, address uint64, t codec.ScalarType, options HexDumpOptions) {
	w, err := t.Width()
	if err != nil {
		options.StartOffset = address
		DumpToWriter(writer, data, options)
		return
	}

	const perLine = 4
	for i := 0; i < len(data); i += w {
		if (i/w)%perLine == 0 {
			if i > 0 {
				fmt.Fprintln(writer)
			}
			fmt.Fprint(writer, options.fg(options.OffsetColor, fmt.Sprintf("%08X", address+uint64(i))), ": ")
		}

		cell := "NaN"
		if v, err := codec.Decode(t, data[i:]); err == nil {
			if t == codec.Float || t == codec.Double {
				cell = strconv.FormatFloat(v, 'f', 4, 64)
			} else {
				cell = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		fmt.Fprintf(writer, "%-15s ", cell)
	}
	if len(data) > 0 {
		fmt.Fprintln(writer)
	}
}

// DumpTyped is Typed into a string, without colors.
func DumpTyped(data []byte, address uint64, t codec.ScalarType) string {
	options := DefaultOptions()
	options.NoColor = true

	var buffer bytes.Buffer
	Typed(&buffer, data, address, t, options)
	return buffer.String()
}
