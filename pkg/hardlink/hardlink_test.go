package hardlink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestCreateLinkTransparency(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "links", "dst.bin")
	writeFile(t, src, "hello")

	require.NoError(t, m.CreateLink(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// writes through the source are visible through the link
	writeFile(t, src, "world")
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	// deleting the source leaves the link readable
	require.NoError(t, os.Remove(src))
	got, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))
}

func TestCreateLinkRejectsNonRegular(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	err := m.CreateLink(sub, filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, ErrInvalidSource)

	src := filepath.Join(dir, "src.bin")
	writeFile(t, src, "data")
	symlink := filepath.Join(dir, "src.link")
	require.NoError(t, os.Symlink(src, symlink))
	err = m.CreateLink(symlink, filepath.Join(dir, "dst"))
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestCreateLinkIdempotentOverwrite(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	first := filepath.Join(dir, "first.bin")
	second := filepath.Join(dir, "second.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeFile(t, first, "first")
	writeFile(t, second, "second")

	require.NoError(t, m.CreateLink(first, dst))
	require.NoError(t, m.CreateLink(second, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestCreateLinkRefusesDirectoryTarget(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeFile(t, src, "data")
	dst := filepath.Join(dir, "occupied")
	require.NoError(t, os.Mkdir(dst, 0o755))

	err := m.CreateLink(src, dst)
	assert.ErrorIs(t, err, ErrTargetIsDir)

	// the directory survives the refusal
	fi, statErr := os.Stat(dst)
	require.NoError(t, statErr)
	assert.True(t, fi.IsDir())
}

func TestDeleteLink(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeFile(t, src, "data")
	require.NoError(t, m.CreateLink(src, dst))

	require.NoError(t, m.DeleteLink(dst))

	// original entry is unaffected
	_, err := os.Stat(src)
	assert.NoError(t, err)

	// absent target is a no-op
	assert.NoError(t, m.DeleteLink(dst))

	// directories are refused
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	assert.ErrorIs(t, m.DeleteLink(sub), ErrTargetIsDir)
}

func TestLinkCount(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeFile(t, src, "data")

	assert.Equal(t, 1, m.LinkCount(src))
	require.NoError(t, m.CreateLink(src, dst))
	assert.Equal(t, 2, m.LinkCount(src))
	assert.Equal(t, 2, m.LinkCount(dst))

	// missing path reports the conservative default
	assert.Equal(t, 1, m.LinkCount(filepath.Join(dir, "missing")))
}

func TestSameFilesystem(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	assert.True(t, m.SameFilesystem(
		filepath.Join(dir, "a.bin"),
		filepath.Join(dir, "b.bin")))

	// parents that do not exist fail closed
	assert.False(t, m.SameFilesystem(
		filepath.Join(dir, "missing", "a.bin"),
		filepath.Join(dir, "b.bin")))
}

func TestVerifySupport(t *testing.T) {
	m := NewManager()
	dir := t.TempDir()

	require.NoError(t, m.VerifySupport(dir))

	// probe files are cleaned up
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
