//go:build linux

package process_linux

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"unsafe"

	"gomemscan/codec"
	"gomemscan/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSelf(t *testing.T) *LinuxProcess {
	t.Helper()

	p, err := NewWithPID(process.ProcessID(os.Getpid()))
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	probe := []byte{1}
	if _, err := p.ReadMemoryAt(make([]byte, 1), process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&probe[0])))); err != nil {
		t.Skipf("process_vm_readv unavailable: %v", err)
	}
	runtime.KeepAlive(probe)
	return p
}

func TestSelfReadWrite(t *testing.T) {
	p := openSelf(t)

	buf := []byte("gomemscan self test")
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))

	got, err := process.ReadMemory(p, addr, process.ProcessMemorySize(len(buf)))
	require.NoError(t, err)
	assert.Equal(t, buf, got)

	n, err := process.WriteMemory(p, addr, []byte("GOMEM"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "GOMEMSCAN self test", string(buf))

	runtime.KeepAlive(buf)
}

func TestSelfTypedRead(t *testing.T) {
	p := openSelf(t)

	cell := new(int32)
	*cell = -1234
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(cell)))

	v, err := process.Read(p, addr, codec.Int)
	require.NoError(t, err)
	assert.Equal(t, -1234.0, v)

	runtime.KeepAlive(cell)
}

func TestSelfRegions(t *testing.T) {
	p := openSelf(t)

	buf := make([]byte, 64)
	addr := process.ProcessMemoryAddress(uintptr(unsafe.Pointer(&buf[0])))
	require.NoError(t, p.UpdateMemoryMap())

	region, err := p.QueryRegion(addr)
	require.NoError(t, err)
	assert.True(t, region.Contains(addr))
	assert.True(t, region.Protect.IsWritable())

	minAddr, maxAddr := p.AddressBounds()
	assert.Equal(t, process.ProcessMemoryAddress(minUserAddress), minAddr)
	assert.Greater(t, maxAddr, addr)

	found := false
	for r, err := range process.Regions(p, 0, 0, process.DefaultScanProtection) {
		require.NoError(t, err)
		if r.Contains(addr) {
			found = true
		}
	}
	assert.True(t, found)

	modules, err := p.Modules()
	require.NoError(t, err)
	assert.NotEmpty(t, modules)

	runtime.KeepAlive(buf)
}

func TestSelfUnmappedRead(t *testing.T) {
	p := openSelf(t)

	_, err := process.ReadMemory(p, minUserAddress, 16)
	assert.ErrorIs(t, err, process.ErrTransferFailed)
	assert.ErrorIs(t, err, process.ErrPartialTransfer)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := NewWithPID(process.ProcessID(os.Getpid()))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, p.IsOpen())

	_, err = p.ReadMemoryAt(make([]byte, 4), 0x1000)
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
	_, err = p.QueryRegion(0x1000)
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
	_, err = p.ProtectMemory(0x1000, 1, process.PageReadWrite)
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
}

func TestOpenMissingPID(t *testing.T) {
	_, err := NewWithPID(-1)
	assert.ErrorIs(t, err, process.ErrNoSuchTarget)
}

func fakeProc(t *testing.T, procs map[int][2]string) *LinuxProcessFinder {
	t.Helper()

	root := t.TempDir()
	for pid, p := range procs {
		dir := filepath.Join(root, strconv.Itoa(pid))
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "comm"), []byte(p[0]+"\n"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte("Name:\t"+p[0]+"\nState:\tS (sleeping)\nPPid:\t1\n"), 0644))
		if p[1] != "" {
			require.NoError(t, os.Symlink(p[1], filepath.Join(dir, "exe")))
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sys"), 0755))
	return &LinuxProcessFinder{root: root}
}

func TestFinderMatchesCommAndExe(t *testing.T) {
	f := fakeProc(t, map[int][2]string{
		100: {"game", "/opt/game/game"},
		200: {"game-launcher", "/opt/game/launcher"},
		300: {"worker", "/usr/bin/python3"},
		400: {"kthreadd", ""},
	})

	all, err := f.FindAllProcesses()
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, process.ProcessID(100), all[0].PID)
	assert.Equal(t, process.ProcessID(1), all[0].PPID)
	assert.Equal(t, process.ProcessSleeping, all[0].State)

	found, err := f.FindProcessByName("game")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, process.ProcessID(100), found[0].PID)

	found, err = f.FindProcessByName("python3")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, process.ProcessID(300), found[0].PID)

	info, err := f.FindProcessByPID(400)
	require.NoError(t, err)
	assert.Equal(t, "kthreadd", info.Name)
	assert.Empty(t, info.Exe)

	_, err = f.FindProcessByPID(999)
	assert.ErrorIs(t, err, process.ErrNoSuchTarget)
}

func TestFinderOpenByNameNeedsUniqueMatch(t *testing.T) {
	f := fakeProc(t, map[int][2]string{
		100: {"twin", ""},
		101: {"twin", ""},
	})

	_, err := f.OpenProcessByName("twin")
	assert.ErrorIs(t, err, process.ErrAmbiguousTarget)

	_, err = f.OpenProcessByName("nobody")
	assert.ErrorIs(t, err, process.ErrNoSuchTarget)
}
