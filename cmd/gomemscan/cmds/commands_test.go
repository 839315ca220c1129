package cmds

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"path/filepath"
	"testing"

	"gomemscan/codec"
	"gomemscan/process"
	"gomemscan/process_blob"
	"gomemscan/scanner"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dataBase = 0x10000
	codeBase = 0x30000
)

func newTarget(t *testing.T) *process_blob.Image {
	t.Helper()

	data := make([]byte, 0x1000)
	copy(data[0x10:], "hello\x00")
	binary.LittleEndian.PutUint64(data[0x40:], dataBase+0x200)
	copy(data[0x50:], scanner.EncodeUTF16("abc"))
	binary.LittleEndian.PutUint32(data[0x80:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(data[0x200:], 1337)

	img := process_blob.NewImage(4242, "target")
	require.NoError(t, img.Map(dataBase, data, process.PageReadWrite))
	require.NoError(t, img.Map(codeBase, []byte{0x55, 0x48, 0x89, 0xe5, 0xc3}, process.PageExecuteRead))
	img.AddModule(process.ModuleInfo{Name: "target.exe", Path: "/opt/target/target.exe", Base: dataBase, Size: 0x1000})
	return img
}

// saveTarget writes the test target to a dump directory for --dump.
func saveTarget(t *testing.T) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "dump")
	stats, err := process_blob.Save(newTarget(t), dir, process_blob.SaveOptions{Name: "target"})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Saved)
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := New()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--config", filepath.Join(t.TempDir(), "config.yml"), "--no-color"))
	err := cmd.Execute()
	return out.String(), err
}

// fakeFinder serves fresh copies of the test target, so every command can close its own.
type fakeFinder struct {
	t     *testing.T
	procs []process.ProcessInfo
}

func (f *fakeFinder) FindAllProcesses() ([]process.ProcessInfo, error) {
	return f.procs, nil
}

func (f *fakeFinder) FindProcessByPID(pid process.ProcessID) (*process.ProcessInfo, error) {
	for i := range f.procs {
		if f.procs[i].PID == pid {
			return &f.procs[i], nil
		}
	}
	return nil, process.ErrNoSuchTarget
}

func (f *fakeFinder) FindProcessByName(name string) ([]process.ProcessInfo, error) {
	var out []process.ProcessInfo
	for _, p := range f.procs {
		if p.Name == name {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeFinder) OpenProcessByPID(pid process.ProcessID) (process.Process, error) {
	if _, err := f.FindProcessByPID(pid); err != nil {
		return nil, err
	}
	return newTarget(f.t), nil
}

func (f *fakeFinder) OpenProcessByName(name string) (process.Process, error) {
	procs, _ := f.FindProcessByName(name)
	target, err := process.SelectUnique(name, procs)
	if err != nil {
		return nil, err
	}
	return f.OpenProcessByPID(target.PID)
}

func useFakeFinder(t *testing.T) {
	t.Helper()

	f := &fakeFinder{t: t, procs: []process.ProcessInfo{
		{PID: 4242, PPID: 1, Name: "target", Exe: "/opt/target/target.exe", State: process.ProcessSleeping},
		{PID: 50, PPID: 1, Name: "twin"},
		{PID: 51, PPID: 1, Name: "twin"},
	}}
	prev := newFinder
	newFinder = func() (finder, error) { return f, nil }
	t.Cleanup(func() { newFinder = prev })
}

func TestNoTarget(t *testing.T) {
	_, err := run(t, "regions")
	assert.ErrorIs(t, err, errNoTarget)
}

func TestParseAddress(t *testing.T) {
	for _, s := range []string{"10200", "0x10200", "0X10200"} {
		addr, err := parseAddress(s)
		require.NoError(t, err)
		assert.Equal(t, process.ProcessMemoryAddress(0x10200), addr)
	}

	_, err := parseAddress("xyz")
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "-3", formatValue(codec.Int, -3))
	assert.Equal(t, "65535", formatValue(codec.UShort, 65535))
	assert.Equal(t, "1.5", formatValue(codec.Float, 1.5))
}

func TestRegions(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "regions")
	require.NoError(t, err)
	assert.Contains(t, out, "0x10000")
	assert.Contains(t, out, "4.0 KiB")
	assert.Contains(t, out, "rw-")
	assert.Contains(t, out, "1 regions")
	assert.NotContains(t, out, "0x30000")

	out, err = run(t, "--dump", dir, "regions", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "0x30000")
	assert.Contains(t, out, "r-x")
	assert.Contains(t, out, "2 regions")
}

func TestRead(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "read", "10200", "--type", "int")
	require.NoError(t, err)
	assert.Equal(t, "target.exe+0x00000200 (int) = 1337\n", out)

	out, err = run(t, "--dump", dir, "read", "0x10200", "-t", "short", "-c", "2")
	require.NoError(t, err)
	assert.Equal(t, "target.exe+0x00000200 (short) = 1337\ntarget.exe+0x00000202 (short) = 0\n", out)

	out, err = run(t, "--dump", dir, "read", "0x10080", "-t", "float")
	require.NoError(t, err)
	assert.Contains(t, out, "= 1.5")

	out, err = run(t, "--dump", dir, "read", "0x10010", "-t", "string")
	require.NoError(t, err)
	assert.Equal(t, "target.exe+0x00000010 \"hello\"\n", out)

	out, err = run(t, "--dump", dir, "read", "0x10000", "-t", "bytes", "-s", "32")
	require.NoError(t, err)
	assert.Contains(t, out, "00010010  68 65 6c 6c 6f 00")

	out, err = run(t, "--dump", dir, "read", "0x10040", "--pointers", "2")
	require.NoError(t, err)
	assert.Equal(t, "0x10200 target.exe+0x00000200\n1 of 2 pointers valid\n", out)

	_, err = run(t, "--dump", dir, "read", "0x50000", "-t", "int")
	assert.ErrorIs(t, err, process.ErrTransferFailed)

	_, err = run(t, "--dump", dir, "read", "0x10000", "-t", "quad")
	assert.ErrorIs(t, err, codec.ErrUnknownType)
}

func TestWrite(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "write", "10200", "7", "-t", "int")
	require.NoError(t, err)
	assert.Equal(t, "wrote 4 bytes at 0x10200\n", out)

	out, err = run(t, "--dump", dir, "write", "10010", "90 90 c3", "-t", "bytes")
	require.NoError(t, err)
	assert.Equal(t, "wrote 3 bytes at 0x10010\n", out)

	out, err = run(t, "--dump", dir, "write", "10010", "bye", "-t", "string")
	require.NoError(t, err)
	assert.Equal(t, "wrote 3 bytes at 0x10010\n", out)

	_, err = run(t, "--dump", dir, "write", "10010", "90 ?? c3", "-t", "bytes")
	assert.Error(t, err)
}

func TestScan(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "scan", "--value", "1337", "-t", "int")
	require.NoError(t, err)
	assert.Equal(t, "0x00010200 target.exe+0x00000200\n1 matches\n", out)

	out, err = run(t, "--dump", dir, "scan", "--utf16", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00010050 ")

	out, err = run(t, "--dump", dir, "scan", "--aob", "68 65 ?? 6c")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00010010 ")
	assert.Contains(t, out, "1 matches")

	out, err = run(t, "--dump", dir, "scan", "--regex", "h(el)lo", "--groups")
	require.NoError(t, err)
	assert.Contains(t, out, `0x00010010 target.exe+0x00000010 re0 "el"`)

	out, err = run(t, "--dump", dir, "scan", "--address", "10200")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00010040 ")

	out, err = run(t, "--dump", dir, "scan", "--float", "1.5")
	require.NoError(t, err)
	assert.Contains(t, out, "0x00010080 ")

	out, err = run(t, "--dump", dir, "scan", "--aob", "00", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "stopped after 3 matches")

	out, err = run(t, "--dump", dir, "scan", "--value", "1337", "-t", "int", "--start", "20000")
	require.NoError(t, err)
	assert.Equal(t, "0 matches\n", out)

	_, err = run(t, "--dump", dir, "scan")
	assert.ErrorIs(t, err, errScanMode)
	_, err = run(t, "--dump", dir, "scan", "--value", "1", "--aob", "00")
	assert.ErrorIs(t, err, errScanMode)
}

func TestScanReplace(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "scan", "--aob", "68 65 6c 6c 6f", "--replace", "4a 45")
	require.NoError(t, err)
	assert.Equal(t, "replaced every match\n", out)

	out, err = run(t, "--dump", dir, "scan", "--utf16", "abc", "--replace", "xyz")
	require.NoError(t, err)
	assert.Equal(t, "replaced every match\n", out)
}

func TestSymbolAndDisasm(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "symbol", "10200", "40000")
	require.NoError(t, err)
	assert.Equal(t, "0x10200 target.exe+0x00000200\n0x40000 0x00040000\n", out)

	out, err = run(t, "--dump", dir, "disasm", "30000", "-c", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "push rbp")
	assert.Contains(t, out, "mov rbp, rsp")
	assert.Contains(t, out, "ret")
}

func TestPaths(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "--dump", dir, "paths", "10000", "--value", "1337", "-t", "int")
	require.NoError(t, err)
	assert.Contains(t, out, "[+0x40 -> +0x0] = 0x10200 target.exe+0x00000200")
	assert.NotContains(t, out, "[+0x200]")

	out, err = run(t, "--dump", dir, "paths", "10000", "--bytes", "39 05 00 00", "--struct-size", "1024", "--depth", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "[+0x200] = 0x10200")
	assert.Contains(t, out, "1 paths")

	_, err = run(t, "--dump", dir, "paths", "10000")
	assert.Error(t, err)
}

func TestDumpLoad(t *testing.T) {
	dir := saveTarget(t)

	out, err := run(t, "dump", "load", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Process Name: target")
	assert.Contains(t, out, "PID: 4242")
	assert.Contains(t, out, "Memory Regions: 2")
	assert.Contains(t, out, "0000000000010000 - 0000000000011000 (rw-) 4.0 KiB")

	out, err = run(t, "dump", "load", dir, "--addr", "0x10000", "--size", "80")
	require.NoError(t, err)
	assert.Contains(t, out, "Hexdump at 0x10000 (80 bytes):")
	assert.Contains(t, out, "00010010  68 65 6c 6c 6f 00")
	assert.Contains(t, out, "| 0x10200")
}

func TestLiveTargetThroughFinder(t *testing.T) {
	useFakeFinder(t)

	out, err := run(t, "ps")
	require.NoError(t, err)
	assert.Contains(t, out, "PID")
	assert.Contains(t, out, "4242")
	assert.Contains(t, out, "/opt/target/target.exe")

	out, err = run(t, "ps", "twin")
	require.NoError(t, err)
	assert.Contains(t, out, "50")
	assert.NotContains(t, out, "4242")

	out, err = run(t, "--pid", "4242", "read", "10200", "-t", "int")
	require.NoError(t, err)
	assert.Contains(t, out, "= 1337")

	out, err = run(t, "--name", "target", "symbol", "10200")
	require.NoError(t, err)
	assert.Contains(t, out, "target.exe+0x00000200")

	_, err = run(t, "--name", "twin", "regions")
	assert.ErrorIs(t, err, process.ErrAmbiguousTarget)

	_, err = run(t, "--pid", "9", "regions")
	assert.ErrorIs(t, err, process.ErrNoSuchTarget)
}

func TestDumpSave(t *testing.T) {
	useFakeFinder(t)
	dir := filepath.Join(t.TempDir(), "saved")

	out, err := run(t, "--pid", "4242", "dump", "save", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "saved 1 regions")

	out, err = run(t, "--pid", "4242", "dump", "save", dir, "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "saved 2 regions")

	img, err := process_blob.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "target", img.Name())

	v, err := process.Read(img, dataBase+0x200, codec.Int)
	require.NoError(t, err)
	assert.Equal(t, 1337.0, v)
}
