// Package storage provides filesystem access for the server directory with
// an atomic write discipline: every mutation goes to a temp sibling that is
// fsynced and renamed into place on commit, so readers never observe a
// partial file.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a path does not exist.
var ErrNotFound = errors.New("not found")

// Dir is a filesystem rooted at the server directory. All paths are
// relative to the root and use "/" as the separator.
type Dir struct {
	root string
}

// Open returns a Dir rooted at the given path, creating it if needed.
func Open(root string) (*Dir, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	return &Dir{root: absRoot}, nil
}

// Root returns the absolute root directory path.
func (d *Dir) Root() string {
	return d.root
}

// Reader opens the file at path for reading.
// Returns ErrNotFound if it does not exist.
func (d *Dir) Reader(path string) (io.ReadCloser, error) {
	f, err := os.Open(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Size returns the byte length of the file at path.
// Returns ErrNotFound if it does not exist.
func (d *Dir) Size(path string) (int64, error) {
	info, err := os.Stat(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat file: %w", err)
	}
	return info.Size(), nil
}

// Exists reports whether a file or directory exists at path.
func (d *Dir) Exists(path string) bool {
	_, err := os.Stat(d.abs(path))
	return err == nil
}

// IsFile reports whether path exists and is a regular file.
func (d *Dir) IsFile(path string) bool {
	info, err := os.Stat(d.abs(path))
	return err == nil && info.Mode().IsRegular()
}

// Rename moves a file or directory within the root.
func (d *Dir) Rename(oldPath, newPath string) error {
	if err := os.Rename(d.abs(oldPath), d.abs(newPath)); err != nil {
		return fmt.Errorf("renaming %s: %w", oldPath, err)
	}
	return nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func (d *Dir) Remove(path string) error {
	err := os.Remove(d.abs(path))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// RemoveTree deletes the directory at path and everything under it.
func (d *Dir) RemoveTree(path string) error {
	if err := os.RemoveAll(d.abs(path)); err != nil {
		return fmt.Errorf("removing directory tree: %w", err)
	}
	return nil
}

// Subdirs returns the names of the immediate subdirectories of path,
// sorted. A missing directory yields an empty list.
func (d *Dir) Subdirs(path string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Files returns the names of the regular files directly under path, sorted.
// Uncommitted temp files are skipped.
func (d *Dir) Files(path string) ([]string, error) {
	entries, err := os.ReadDir(d.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".tmp-") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Writer returns an atomic writer for path. Data goes to a temp sibling;
// the final file only appears once Close returns nil. Abort (or Close after
// Abort) discards the temp file and leaves any previous file untouched.
// Parent directories are created as needed.
func (d *Dir) Writer(path string) (*Writer, error) {
	dst := d.abs(path)

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	return &Writer{
		f:       tmp,
		tmpPath: tmp.Name(),
		dstPath: dst,
	}, nil
}

func (d *Dir) abs(path string) string {
	return filepath.Join(d.root, filepath.FromSlash(path))
}

// Writer is an atomic file writer. It implements io.WriteCloser; the write
// commits on Close and is discarded by Abort.
type Writer struct {
	f       *os.File
	tmpPath string
	dstPath string
	done    bool
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

// Close commits the write: sync, close, rename into place.
func (w *Writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("syncing file: %w", err)
	}
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.dstPath); err != nil {
		_ = os.Remove(w.tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// Abort discards the write and removes the temp file.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	_ = w.f.Close()
	return os.Remove(w.tmpPath)
}

var _ io.WriteCloser = (*Writer)(nil)
