package process_blob

import (
	"testing"

	"gomemscan/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageRejectsOverlap(t *testing.T) {
	img := NewImage(1, "overlap")
	require.NoError(t, img.Map(0x1000, make([]byte, 0x1000), process.PageReadWrite))

	assert.Error(t, img.Map(0x1800, make([]byte, 0x1000), process.PageReadWrite))
	assert.Error(t, img.Map(0x0800, make([]byte, 0x1000), process.PageReadWrite))
	assert.Error(t, img.Reserve(0x1000, 0))
	assert.NoError(t, img.Map(0x2000, make([]byte, 0x10), process.PageReadWrite))
}

func TestImageMapCopiesData(t *testing.T) {
	img := NewImage(1, "copy")
	data := []byte{1, 2, 3, 4}
	require.NoError(t, img.Map(0x1000, data, process.PageReadWrite))
	data[0] = 9

	buf := make([]byte, 4)
	n, err := img.ReadMemoryAt(buf, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf)
}

func TestImageQueryRegion(t *testing.T) {
	img := NewImage(1, "query")
	require.NoError(t, img.Map(0x1000, make([]byte, 0x1000), process.PageReadOnly))
	require.NoError(t, img.Reserve(0x4000, 0x1000))

	r, err := img.QueryRegion(0x1800)
	require.NoError(t, err)
	assert.Equal(t, process.ProcessMemoryAddress(0x1000), r.Base)
	assert.True(t, r.IsBacked())

	gap, err := img.QueryRegion(0x2000)
	require.NoError(t, err)
	assert.Equal(t, process.StateFree, gap.State)
	assert.Equal(t, process.ProcessMemorySize(0x2000), gap.Size)

	res, err := img.QueryRegion(0x4000)
	require.NoError(t, err)
	assert.Equal(t, process.StateReserve, res.State)
	assert.False(t, res.IsBacked())

	_, err = img.QueryRegion(0x5000)
	assert.ErrorIs(t, err, process.ErrNoMoreRegions)
}

func TestImageEnforcesProtection(t *testing.T) {
	img := NewImage(1, "prot")
	require.NoError(t, img.Map(0x1000, make([]byte, 0x10), process.PageReadOnly))

	n, err := img.WriteMemoryAt(0x1000, []byte{1})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, process.ErrPartialTransfer)

	old, err := img.ProtectMemory(0x1000, 1, process.PageReadWrite)
	require.NoError(t, err)
	assert.Equal(t, process.PageReadOnly, old)

	n, err = img.WriteMemoryAt(0x1000, []byte{1})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = img.ProtectMemory(0x9000, 1, process.PageReadWrite)
	assert.ErrorIs(t, err, process.ErrAddressNotMapped)
}

func TestImageMaxTransfer(t *testing.T) {
	img := NewImage(1, "cap")
	require.NoError(t, img.Map(0x1000, make([]byte, 0x10), process.PageReadOnly))
	img.SetMaxTransfer(4)

	buf := make([]byte, 0x10)
	n, err := img.ReadMemoryAt(buf, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestImageModulesAndClose(t *testing.T) {
	img := NewImage(7, "mods")
	img.AddModule(process.ModuleInfo{Name: "game.exe", Base: 0x400000, Size: 0x1000})

	mods, err := img.Modules()
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "game.exe", mods[0].Name)

	assert.True(t, img.IsOpen())
	require.NoError(t, img.Close())
	assert.False(t, img.IsOpen())
	assert.Equal(t, process.ProcessID(7), img.GetPID())

	_, err = img.Modules()
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
	_, err = img.QueryRegion(0)
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
}
