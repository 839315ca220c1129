package config

import (
	"os"
	"path/filepath"
	"testing"

	"gomemscan/codec"
	"gomemscan/process"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfigMissingFileGivesDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, c.GetChunkSize())
	assert.Equal(t, DefaultSymbolCacheSize, c.GetSymbolCacheSize())
	assert.Equal(t, DefaultMaxStringLen, c.GetMaxStringLen())

	mask, err := c.ScanProtection()
	require.NoError(t, err)
	assert.Equal(t, process.DefaultScanProtection, mask)

	typ, err := c.Type()
	require.NoError(t, err)
	assert.Equal(t, codec.ScalarType(""), typ)
}

func TestLoadConfigFields(t *testing.T) {
	path := writeConfig(t, `
chunk-size: 4096
protection: [readwrite, execute-read]
default-type: Float
symbol-cache-size: 0
disasm-mode: 32
disasm-flavour: gnu
max-string-len: 64
`)

	c, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 4096, c.GetChunkSize())
	assert.Equal(t, 0, c.GetSymbolCacheSize())
	assert.Equal(t, 64, c.GetMaxStringLen())
	assert.Equal(t, 32, c.DisasmMode)
	assert.Equal(t, "gnu", c.DisasmFlavour)

	mask, err := c.ScanProtection()
	require.NoError(t, err)
	assert.Equal(t, process.PageReadWrite|process.PageExecuteRead, mask)

	typ, err := c.Type()
	require.NoError(t, err)
	assert.Equal(t, codec.Float, typ)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	for _, body := range []string{
		"protection: [bogus]\n",
		"default-type: quad\n",
		"disasm-mode: 16\n",
		"chunk-size: -1\n",
		"chunk-size: [\n",
	} {
		_, err := LoadConfig(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	size := 8
	in := &Config{ChunkSize: 1024, Protection: []string{"readonly"}, SymbolCacheSize: &size}
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	require.NoError(t, SaveConfig(in, path))
	out, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
