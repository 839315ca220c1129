package process

import (
	"testing"

	"gomemscan/codec"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressArithmetic(t *testing.T) {
	a := NewAddress(0x1000, "")
	assert.Equal(t, codec.UInt, a.Type)

	b := a.Add(0x10)
	assert.Equal(t, ProcessMemoryAddress(0x1010), b.Value)
	assert.Equal(t, ProcessMemoryAddress(0x1000), a.Value)
	assert.Equal(t, a.Type, b.Type)

	assert.Equal(t, ProcessMemoryAddress(0xFF0), a.Sub(0x10).Value)
	assert.Equal(t, "0x00001000", a.String())
}

func TestParseAOB(t *testing.T) {
	aob, err := ParseAOB("48 8b ?? 05,?")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x48, 0x8b, 0, 0x05, 0}, aob.Pattern)
	assert.Equal(t, []byte{0xff, 0xff, 0, 0xff, 0}, aob.Mask)
	assert.True(t, aob.IsValid())
	assert.Equal(t, "48 8b ?? 05 ??", aob.String())

	_, err = ParseAOB("")
	assert.Error(t, err)
	_, err = ParseAOB("zz")
	assert.Error(t, err)
}

func TestParsePerms(t *testing.T) {
	cases := map[string]Protection{
		"r--p": PageReadOnly,
		"rw-p": PageReadWrite,
		"r-xp": PageExecuteRead,
		"rwxp": PageExecuteReadWrite,
		"--xp": PageExecute,
		"---p": PageNoAccess,
	}
	for perms, want := range cases {
		assert.Equal(t, want, ParsePerms(perms), perms)
	}
}

func TestProtectionPredicates(t *testing.T) {
	assert.True(t, PageExecuteRead.IsReadable())
	assert.False(t, PageExecuteRead.IsWritable())
	assert.True(t, PageExecuteRead.IsExecutable())
	assert.False(t, PageNoAccess.IsReadable())
	assert.False(t, (PageReadWrite | PageGuard).IsReadable())
	assert.True(t, (PageReadWrite | PageNoCache).IsUnsafe())
	assert.Equal(t, "r-x", PageExecuteRead.String())
}

func TestParseProtection(t *testing.T) {
	p, err := ParseProtection("readonly", "ReadWrite")
	require.NoError(t, err)
	assert.Equal(t, DefaultScanProtection, p)

	_, err = ParseProtection("bogus")
	assert.Error(t, err)
}
