package atomicfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileCreatesAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "data.json")

	require.NoError(t, WriteFile(path, []byte(`{"a":1}`), 0644))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(data))

	require.NoError(t, WriteFile(path, []byte(`{"a":2}`), 0644))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"a":2}`, string(data))
}

func TestAcquireLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.lock")

	l1, err := AcquireLock(path)
	require.NoError(t, err)
	defer l1.Close()

	_, err = AcquireLock(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l1.Close())

	l2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Close())
}
