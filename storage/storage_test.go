package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T) *Dir {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "srv"))
	require.NoError(t, err)
	return d
}

func TestOpenCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "srv")
	d, err := Open(root)
	require.NoError(t, err)
	require.Equal(t, root, d.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestWriterCommit(t *testing.T) {
	d := newTestDir(t)

	w, err := d.Writer("data/x/file.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)

	// Nothing visible before commit.
	require.False(t, d.Exists("data/x/file.txt"))

	require.NoError(t, w.Close())

	r, err := d.Reader("data/x/file.txt")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)

	size, err := d.Size("data/x/file.txt")
	require.NoError(t, err)
	require.Equal(t, int64(7), size)
}

func TestWriterAbortKeepsPreviousFile(t *testing.T) {
	d := newTestDir(t)

	w, err := d.Writer("f.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("old"))
	require.NoError(t, w.Close())

	w, err = d.Writer("f.txt")
	require.NoError(t, err)
	_, _ = w.Write([]byte("new"))
	require.NoError(t, w.Abort())

	r, err := d.Reader("f.txt")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	got, _ := io.ReadAll(r)
	require.Equal(t, []byte("old"), got)

	// The aborted temp file is gone.
	files, err := d.Files(".")
	require.NoError(t, err)
	require.Equal(t, []string{"f.txt"}, files)
}

func TestWriterLastCommitWins(t *testing.T) {
	d := newTestDir(t)

	w1, err := d.Writer("f.txt")
	require.NoError(t, err)
	w2, err := d.Writer("f.txt")
	require.NoError(t, err)

	_, _ = w1.Write([]byte("first"))
	_, _ = w2.Write([]byte("second"))
	require.NoError(t, w1.Close())
	require.NoError(t, w2.Close())

	r, err := d.Reader("f.txt")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	got, _ := io.ReadAll(r)
	require.Equal(t, []byte("second"), got)
}

func TestReaderNotFound(t *testing.T) {
	d := newTestDir(t)
	_, err := d.Reader("missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = d.Size("missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveIsIdempotent(t *testing.T) {
	d := newTestDir(t)
	require.NoError(t, d.Remove("missing"))
}

func TestSubdirsAndFiles(t *testing.T) {
	d := newTestDir(t)

	for _, p := range []string{"data/b/addon.cfg", "data/a/addon.cfg"} {
		w, err := d.Writer(p)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	dirs, err := d.Subdirs("data")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, dirs)

	files, err := d.Files("data/a")
	require.NoError(t, err)
	require.Equal(t, []string{"addon.cfg"}, files)

	// Missing directories yield empty lists, not errors.
	dirs, err = d.Subdirs("nope")
	require.NoError(t, err)
	require.Empty(t, dirs)
}

func TestRemoveTree(t *testing.T) {
	d := newTestDir(t)
	w, err := d.Writer("data/x/full_pack.gz")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, d.RemoveTree("data/x"))
	require.False(t, d.Exists("data/x"))
}

func TestRenameAndIsFile(t *testing.T) {
	d := newTestDir(t)
	w, err := d.Writer("data/x")
	require.NoError(t, err)
	_, _ = w.Write([]byte("legacy"))
	require.NoError(t, w.Close())

	require.True(t, d.IsFile("data/x"))
	require.NoError(t, d.Rename("data/x", "data/x.legacy"))
	require.False(t, d.Exists("data/x"))
	require.True(t, d.IsFile("data/x.legacy"))
}
