package asymmetric

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadPrivateKeyRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "keystore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "node.key")
	priv, _, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, SavePrivateKey(path, priv))

	got, err := LoadPrivateKey(path)
	require.NoError(t, err)
	require.True(t, got.PubKey().IsEqual(priv.PubKey()))
}

func TestLoadOrCreatePrivateKeyCreatesOnFirstCall(t *testing.T) {
	dir, err := ioutil.TempDir("", "keystore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "node.key")
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	first, err := LoadOrCreatePrivateKey(path)
	require.NoError(t, err)

	second, err := LoadOrCreatePrivateKey(path)
	require.NoError(t, err)
	require.True(t, first.PubKey().IsEqual(second.PubKey()))
}

func TestLoadPrivateKeyRejectsTruncatedFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "keystore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "node.key")
	require.NoError(t, ioutil.WriteFile(path, []byte("not a key"), 0600))

	_, err = LoadPrivateKey(path)
	require.Equal(t, ErrNotKeyFile, err)
}

func TestLoadPrivateKeyDetectsCorruption(t *testing.T) {
	dir, err := ioutil.TempDir("", "keystore")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "node.key")
	priv, _, err := GenerateKeyPair()
	require.NoError(t, err)
	require.NoError(t, SavePrivateKey(path, priv))

	raw, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, ioutil.WriteFile(path, raw, 0600))

	_, err = LoadPrivateKey(path)
	require.Equal(t, ErrKeyHashMismatch, err)
}
