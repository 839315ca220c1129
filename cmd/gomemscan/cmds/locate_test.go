package cmds

import (
	"bytes"
	"testing"

	"gomemscan/codec"
	"gomemscan/locator"
	"gomemscan/process"
	"gomemscan/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTerm(t *testing.T, opts ...locator.Option) (*locateTerm, *bytes.Buffer, process.Process) {
	t.Helper()

	img := newTarget(t)
	sess, err := session.New(img, session.WithSymbolCache(16))
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })

	var out bytes.Buffer
	term, err := newLocateTerm(sess, &out, opts...)
	require.NoError(t, err)
	return term, &out, img
}

func TestLocateNarrowAndSet(t *testing.T) {
	term, out, img := newTestTerm(t, locator.WithType(codec.Int))

	require.NoError(t, term.exec("1337"))
	assert.Equal(t, "1 candidates (int: 1)\n", out.String())

	out.Reset()
	require.NoError(t, term.exec("list"))
	assert.Equal(t, "target.exe+0x00000200 int    1337\n", out.String())

	out.Reset()
	require.NoError(t, term.exec("probe 7"))
	assert.Equal(t, "0 candidates\n", out.String())

	out.Reset()
	require.NoError(t, term.exec("set 7"))
	assert.Equal(t, "wrote 1 addresses, 0 failed\n", out.String())

	v, err := process.Read(img, dataBase+0x200, codec.Int)
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)

	out.Reset()
	require.NoError(t, term.exec("diff"))
	assert.Equal(t, "target.exe+0x00000200 int    7\n1 changed\n", out.String())

	out.Reset()
	require.NoError(t, term.exec("list"))
	assert.Empty(t, out.String())
}

func TestLocateProbesEveryType(t *testing.T) {
	term, out, _ := newTestTerm(t)

	require.NoError(t, term.exec("find 1337"))
	assert.Contains(t, out.String(), "int: 1")
	assert.Contains(t, out.String(), "short: 1")
	assert.NotContains(t, out.String(), "double")
}

func TestLocateErrors(t *testing.T) {
	term, out, _ := newTestTerm(t)

	assert.ErrorIs(t, term.exec("list"), locator.ErrNoValue)
	assert.ErrorIs(t, term.exec("diff"), locator.ErrNoValue)
	assert.ErrorIs(t, term.exec("set 1"), locator.ErrNoValue)
	assert.Error(t, term.exec("probe"))
	assert.Error(t, term.exec("probe abc"))
	assert.Error(t, term.exec("frobnicate"))
	assert.Error(t, term.exec("find `date`"))

	assert.NoError(t, term.exec(""))
	assert.ErrorIs(t, term.exec("quit"), errQuit)
	assert.ErrorIs(t, term.exec("EXIT"), errQuit)

	out.Reset()
	require.NoError(t, term.exec("help"))
	assert.Contains(t, out.String(), "probe <value>")
}
