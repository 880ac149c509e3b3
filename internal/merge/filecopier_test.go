package merge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmerge/internal/domain"
)

func writeFile(t *testing.T, root domain.DatasetRoot, rel string, data []byte) {
	t.Helper()
	abs := root.Absolute(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, data, 0o644))
}

func TestFileCopierCopiesAll(t *testing.T) {
	src := domain.DatasetRoot(t.TempDir())
	dst := domain.DatasetRoot(t.TempDir())
	writeFile(t, src, "photos/a.jpg", []byte("aaa"))
	writeFile(t, src, "voice/b.ogg", []byte("bbb"))

	c := New(WithPoolSize(2))
	err := c.CopyAll(context.Background(), []CopyRequest{
		{SrcRoot: src, DstRoot: dst, RelPath: "photos/a.jpg"},
		{SrcRoot: src, DstRoot: dst, RelPath: "voice/b.ogg"},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dst.Absolute("photos/a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("aaa"), got)
	got, err = os.ReadFile(dst.Absolute("voice/b.ogg"))
	require.NoError(t, err)
	assert.Equal(t, []byte("bbb"), got)
}

func TestFileCopierSkipsExistingDestination(t *testing.T) {
	src := domain.DatasetRoot(t.TempDir())
	dst := domain.DatasetRoot(t.TempDir())
	writeFile(t, src, "a.bin", []byte("new content"))
	writeFile(t, dst, "a.bin", []byte("already here"))

	c := New()
	err := c.CopyAll(context.Background(), []CopyRequest{
		{SrcRoot: src, DstRoot: dst, RelPath: "a.bin"},
	})
	require.NoError(t, err)

	got, err := os.ReadFile(dst.Absolute("a.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("already here"), got, "существующий файл не перезаписывается")
}

func TestFileCopierEmptyBatch(t *testing.T) {
	c := New()
	require.NoError(t, c.CopyAll(context.Background(), nil))
}

func TestFileCopierMissingSourceIsWarning(t *testing.T) {
	src := domain.DatasetRoot(t.TempDir())
	dst := domain.DatasetRoot(t.TempDir())
	writeFile(t, src, "present.bin", []byte("data"))

	c := New()
	err := c.CopyAll(context.Background(), []CopyRequest{
		{SrcRoot: src, DstRoot: dst, RelPath: "missing.bin"},
		{SrcRoot: src, DstRoot: dst, RelPath: "present.bin"},
	})
	require.NoError(t, err, "отсутствующий в источнике файл - предупреждение, а не ошибка")

	_, err = os.Stat(dst.Absolute("missing.bin"))
	assert.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(dst.Absolute("present.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)
}

func TestFileCopierCancelled(t *testing.T) {
	src := domain.DatasetRoot(t.TempDir())
	dst := domain.DatasetRoot(t.TempDir())
	writeFile(t, src, "a.bin", []byte("data"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(WithRetryPause(5 * time.Millisecond))
	err := c.CopyAll(ctx, []CopyRequest{
		{SrcRoot: src, DstRoot: dst, RelPath: "a.bin"},
	})
	require.Error(t, err)
}
