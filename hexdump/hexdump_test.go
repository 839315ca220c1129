package hexdump

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"gomemscan/codec"
	"gomemscan/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plain() HexDumpOptions {
	o := DefaultOptions()
	o.NoColor = true
	return o
}

func TestDumpPlainLine(t *testing.T) {
	data := []byte("ABCDEFGHIJKLMNOP")
	out := Dump(data, plain())

	assert.Equal(t,
		"00000000  41 42 43 44 45 46 47 48 | 49 4a 4b 4c 4d 4e 4f 50 | ABCDEFGH IJKLMNOP\n",
		out)
}

func TestDumpStartOffsetAndMaxLines(t *testing.T) {
	o := plain()
	o.StartOffset = 0x1000
	o.MaxLines = 1

	out := Dump(make([]byte, 48), o)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "00001000  "))
	assert.Equal(t, "... 32 more bytes", lines[1])
}

func TestDumpShortLineKeepsASCIIColumn(t *testing.T) {
	full := Dump([]byte("ABCDEFGHIJKLMNOP"), plain())
	short := Dump([]byte("AB"), plain())

	assert.Equal(t, strings.Index(full, " | ABCDEFGH"), strings.Index(short, " | AB"))
}

func TestDumpNonPrintable(t *testing.T) {
	out := Dump([]byte{0x00, 0x7f, 0xff, 'x'}, plain())
	assert.Contains(t, out, "| ...x")
}

func TestDumpPointerPreview(t *testing.T) {
	o := plain()
	o.Regions = []process.MemoryRegion{{Base: 0x400000, Size: 0x1000, Protect: process.PageReadOnly, State: process.StateCommit}}

	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data, 0x400010)
	binary.LittleEndian.PutUint64(data[8:], 0x999999)

	out := Dump(data, o)
	assert.Contains(t, out, "| 0x400010")
	assert.NotContains(t, out, "0x999999")
}

func TestDumpColorDiffersFromPlain(t *testing.T) {
	data := []byte("hello")
	assert.NotEqual(t, Dump(data, plain()), DumpBytes(data))
}

func TestTypedInts(t *testing.T) {
	data, err := codec.EncodeValues(codec.Int, 1, -2, 3, 4, 5)
	require.NoError(t, err)

	out := DumpTyped(data, 0x2000, codec.Int)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "00002000: 1 "))
	assert.Contains(t, lines[0], "-2")
	assert.True(t, strings.HasPrefix(lines[1], "00002010: 5"))
}

func TestTypedFloats(t *testing.T) {
	data, err := codec.EncodeValues(codec.Float, 1.5)
	require.NoError(t, err)

	out := DumpTyped(data, 0x10, codec.Float)
	assert.Equal(t, "00000010: 1.5000          \n", out)
}

func TestTypedBytesFallsBack(t *testing.T) {
	var buf bytes.Buffer
	Typed(&buf, []byte("AB"), 0x30, codec.Bytes, plain())
	assert.True(t, strings.HasPrefix(buf.String(), "00000030  41 42"))
}
