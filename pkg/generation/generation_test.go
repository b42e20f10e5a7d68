package generation_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeet-sh/yeet/pkg/contracts"
	"github.com/yeet-sh/yeet/pkg/generation"
)

func newManager(t *testing.T) *generation.Manager {
	t.Helper()
	base := t.TempDir()
	return generation.New(filepath.Join(base, "secret.d"), filepath.Join(base, "secret"))
}

func TestNextGenerationDefaultsToZero(t *testing.T) {
	mgr := newManager(t)
	assert.Equal(t, 0, mgr.NextGeneration())
}

func TestCreateFlipAndGC(t *testing.T) {
	mgr := newManager(t)
	defs := map[string]contracts.SecretDefinition{
		"db": {Name: "db", Mode: "0400", Owner: strconv.Itoa(os.Getuid()), Group: strconv.Itoa(os.Getgid())},
	}
	secrets := map[string][]byte{"db": []byte("hunter2")}

	require.NoError(t, mgr.Create(0, secrets, defs))
	_, _, err := mgr.FlipSymlink(0)
	require.NoError(t, err)

	target, err := mgr.CurrentTarget()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mgr.Root, "0"), target)

	content, err := os.ReadFile(filepath.Join(mgr.Root, "0", "db"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(content))

	assert.Equal(t, 1, mgr.NextGeneration())

	require.NoError(t, mgr.Create(1, secrets, defs))
	require.NoError(t, mgr.GCExceptCurrent(1))
	_, _, err = mgr.FlipSymlink(1)
	require.NoError(t, err)
	require.NoError(t, mgr.GCExceptCurrent(1))

	entries, err := os.ReadDir(mgr.Root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "1", entries[0].Name())
}

func TestRollbackRestoresPreviousSymlink(t *testing.T) {
	mgr := newManager(t)
	defs := map[string]contracts.SecretDefinition{
		"db": {Name: "db", Mode: "0400", Owner: strconv.Itoa(os.Getuid()), Group: strconv.Itoa(os.Getgid())},
	}
	secrets := map[string][]byte{"db": []byte("v0")}
	require.NoError(t, mgr.Create(0, secrets, defs))
	_, _, err := mgr.FlipSymlink(0)
	require.NoError(t, err)

	require.NoError(t, mgr.Create(1, secrets, defs))
	previous, had, err := mgr.FlipSymlink(1)
	require.NoError(t, err)
	require.True(t, had)
	assert.Equal(t, filepath.Join(mgr.Root, "0"), previous)

	// simulate failed activation: roll back
	require.NoError(t, mgr.RestoreSymlink(previous))
	require.NoError(t, mgr.Remove(1))

	target, err := mgr.CurrentTarget()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mgr.Root, "0"), target)

	_, err = os.Stat(filepath.Join(mgr.Root, "1"))
	assert.True(t, os.IsNotExist(err))
}

