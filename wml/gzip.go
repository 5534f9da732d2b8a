package wml

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// DefaultCompressLevel is the gzip level used when callers pass 0.
// Levels above 6 cost CPU for very little size gain on this data.
const DefaultCompressLevel = 6

// ReadGzip parses a gzip-compressed document from r.
func ReadGzip(r io.Reader) (*Node, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = zr.Close() }()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing document: %w", err)
	}
	return Parse(data)
}

// WriteGzip serializes n and writes it gzip-compressed to w at the given
// compression level (0 means DefaultCompressLevel).
func WriteGzip(w io.Writer, n *Node, level int) error {
	if level == 0 {
		level = DefaultCompressLevel
	}
	zw, err := gzip.NewWriterLevel(w, level)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if err := Write(zw, n); err != nil {
		_ = zw.Close()
		return fmt.Errorf("writing document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flushing gzip stream: %w", err)
	}
	return nil
}
