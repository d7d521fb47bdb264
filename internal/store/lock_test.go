package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

func TestDirLock_SecondAcquireFailsFast(t *testing.T) {
	// Given: a held lock on an index directory
	dir := filepath.Join(t.TempDir(), "index")
	first, err := AcquireDirLock(dir)
	require.NoError(t, err)
	defer func() { _ = first.Release() }()

	// When: another run tries to lock the same directory
	_, err = AcquireDirLock(dir)

	// Then: it fails with ERR_202_INDEX_LOCKED instead of waiting
	require.Error(t, err)
	assert.ErrorIs(t, err, crerrors.Sentinel(crerrors.ErrCodeIndexLocked))
	assert.Equal(t, dir+".lock", first.Path())
}

func TestDirLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	first, err := AcquireDirLock(dir)
	require.NoError(t, err)
	require.NoError(t, first.Release())
	require.NoError(t, first.Release())

	second, err := AcquireDirLock(dir)
	require.NoError(t, err)
	assert.NoError(t, second.Release())
}

func TestLockPath_IsSibling(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "index.lock"), LockPath(filepath.Join("data", "index")+string(filepath.Separator)))
}
