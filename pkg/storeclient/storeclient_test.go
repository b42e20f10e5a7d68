package storeclient_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeet-sh/yeet/pkg/storeclient"
)

func TestTrustedKeysFallsBackWhenMissing(t *testing.T) {
	keys := storeclient.TrustedKeys(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "cache.nixos.org-1")
}

func TestTrustedKeysParsesConfigLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nix.conf")
	require.NoError(t, os.WriteFile(path, []byte("trusted-public-keys = keyA keyB\n"), 0o644))

	keys := storeclient.TrustedKeys(path)
	assert.Equal(t, []string{"keyA", "keyB"}, keys)
}

func TestWithScopedNetrcWritesAndRemovesFile(t *testing.T) {
	var seen string
	err := storeclient.WithScopedNetrc("https://cache.example/", "alice", "secret", func(path string) error {
		seen = path
		data, rerr := os.ReadFile(path)
		require.NoError(t, rerr)
		assert.Contains(t, string(data), "machine cache.example login alice password secret")
		return nil
	})
	require.NoError(t, err)
	_, statErr := os.Stat(seen)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWithScopedNetrcSkipsWhenNoCredentials(t *testing.T) {
	called := false
	err := storeclient.WithScopedNetrc("https://cache.example/", "", "", func(path string) error {
		called = true
		assert.Equal(t, "", path)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
