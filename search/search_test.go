package search

import (
	"encoding/binary"
	"testing"

	"gomemscan/codec"
	"gomemscan/process"
	"gomemscan/process_blob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	baseAddr  = 0x10000
	childAddr = 0x20000
)

func newGraph(t *testing.T) *process_blob.Image {
	img := process_blob.NewImage(42, "graph")

	base := make([]byte, 0x1000)
	binary.LittleEndian.PutUint64(base[0x10:], childAddr)
	binary.LittleEndian.PutUint32(base[0x40:], 1337)

	child := make([]byte, 0x1000)
	binary.LittleEndian.PutUint64(child[0x08:], baseAddr)
	binary.LittleEndian.PutUint32(child[0x24:], 1337)

	require.NoError(t, img.Map(baseAddr, base, process.PageReadWrite))
	require.NoError(t, img.Map(childAddr, child, process.PageReadOnly))
	return img
}

func paths(results []SearchResult) [][]int64 {
	out := make([][]int64, len(results))
	for i, r := range results {
		out[i] = r.Path
	}
	return out
}

func TestSearchFollowsPointers(t *testing.T) {
	img := newGraph(t)

	results, err := Search(img, baseAddr, WithValue(codec.Int, 1337))
	require.NoError(t, err)
	assert.ElementsMatch(t, [][]int64{{0x40}, {0x10, 0x24}}, paths(results))

	for _, r := range results {
		addr, err := process.ReadPointerPath(img, baseAddr, r.Path...)
		require.NoError(t, err)
		assert.Equal(t, r.Address, addr)

		v, err := process.Read(img, addr, codec.Int)
		require.NoError(t, err)
		assert.Equal(t, 1337.0, v)
	}
}

func TestSearchDepthLimit(t *testing.T) {
	img := newGraph(t)

	results, err := Search(img, baseAddr, WithValue(codec.Int, 1337), WithMaxDepth(0))
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{0x40}}, paths(results))
}

func TestSearchMaxResults(t *testing.T) {
	img := newGraph(t)

	results, err := Search(img, baseAddr, WithValue(codec.Int, 1337), WithMaxResults(1))
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchStructSizeBoundsTheWindow(t *testing.T) {
	img := newGraph(t)

	results, err := Search(img, baseAddr, WithValue(codec.Int, 1337), WithMaxStructSize(0x20))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSkipsUnreadablePointers(t *testing.T) {
	img := process_blob.NewImage(1, "dangling")
	base := make([]byte, 0x100)
	binary.LittleEndian.PutUint64(base, 0xdead0000)
	require.NoError(t, img.Map(baseAddr, base, process.PageReadWrite))

	results, err := Search(img, baseAddr, WithBytes([]byte{0xff, 0xff}))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchErrors(t *testing.T) {
	img := newGraph(t)

	_, err := Search(img, baseAddr)
	assert.ErrorIs(t, err, ErrNoTarget)

	_, err = Search(img, baseAddr, WithValue(codec.Short, 1e9))
	assert.ErrorIs(t, err, codec.ErrUnencodable)

	require.NoError(t, img.Close())
	_, err = Search(img, baseAddr, WithValue(codec.Int, 1))
	assert.ErrorIs(t, err, process.ErrProcessNotOpen)
}

func TestSearchResultString(t *testing.T) {
	r := SearchResult{Path: []int64{0x10, 0x24}, Address: 0x20024}
	assert.Equal(t, "[+0x10 -> +0x24] = 0x20024", r.String())
}
