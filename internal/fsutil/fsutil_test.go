package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()

	got, err := Resolve(root, "notes/outline.txt")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "outline.txt", filepath.Base(got))

	tests := []string{"../escape.txt", "a/../../escape.txt", "/etc/passwd"}
	for _, rel := range tests {
		_, err := Resolve(root, rel)
		assert.ErrorIs(t, err, ErrOutsideRoot, rel)
	}

	_, err = Resolve(root, "  ")
	assert.Error(t, err)
}

func TestResolve_SymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skip("symlinks unsupported")
	}

	_, err := Resolve(root, "link/secret.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = Resolve(root, "link/y.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestResolve_SymlinkIntoMissingSubdir(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skip("symlinks unsupported")
	}

	_, err := Resolve(root, "link/newdir/deeper/x.txt")
	require.ErrorIs(t, err, ErrOutsideRoot)

	_, statErr := os.Stat(filepath.Join(outside, "newdir"))
	assert.True(t, os.IsNotExist(statErr))

	// 普通的未创建子目录仍然允许
	got, err := Resolve(root, "newdir/deeper/x.txt")
	require.NoError(t, err)
	require.NoError(t, WriteFile(got, []byte("ok")))
	files, err := ListFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"newdir/deeper/x.txt"}, files)
}

func TestListFilesAndWriteFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, WriteFile(filepath.Join(root, "b.txt"), []byte("b")))
	require.NoError(t, WriteFile(filepath.Join(root, "charts", "a.png"), []byte("a")))
	require.NoError(t, os.Mkdir(filepath.Join(root, "empty"), 0o755))

	files, err := ListFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "charts/a.png"}, files)

	empty, err := ListFiles(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)
}
