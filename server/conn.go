package server

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/hanko213/campaignd/storage"
	"github.com/hanko213/campaignd/wml"
)

// ErrDocumentTooLarge is returned when an incoming payload exceeds the
// configured document size limit.
var ErrDocumentTooLarge = errors.New("document exceeds size limit")

// The wire protocol frames every payload with a big-endian uint32 length.
// A connection opens with a 4-byte client handshake answered by a 4-byte
// connection number; after that each frame is a gzip-compressed document.

func readHandshake(r io.Reader) error {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fmt.Errorf("reading handshake: %w", err)
	}
	return nil
}

func writeHandshake(w io.Writer, connNum uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], connNum)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("writing handshake: %w", err)
	}
	return nil
}

// readDocument reads one framed, gzip-compressed document. A limit of zero
// disables the size check.
func readDocument(r io.Reader, limit int64) (*wml.Node, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}
	size := int64(binary.BigEndian.Uint32(header[:]))
	if limit > 0 && size > limit {
		return nil, ErrDocumentTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}

	doc, err := wml.ReadGzip(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}

// writeDocument gzip-compresses doc and writes it as one frame. It returns
// the payload size written.
func writeDocument(w io.Writer, doc *wml.Node, level int) (int64, error) {
	var buf bytes.Buffer
	if err := wml.WriteGzip(&buf, doc, level); err != nil {
		return 0, err
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(buf.Len()))
	if _, err := w.Write(header[:]); err != nil {
		return 0, fmt.Errorf("writing frame header: %w", err)
	}
	n, err := io.Copy(w, &buf)
	if err != nil {
		return n, fmt.Errorf("writing frame payload: %w", err)
	}
	return n, nil
}

// writeFile streams the file at path as one frame. Pack files are stored
// gzip-compressed in exactly the on-wire form, so no transcoding happens.
func writeFile(w io.Writer, fs *storage.Dir, path string) (int64, error) {
	size, err := fs.Size(path)
	if err != nil {
		return 0, err
	}
	f, err := fs.Reader(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(size))
	if _, err := w.Write(header[:]); err != nil {
		return 0, fmt.Errorf("writing frame header: %w", err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return n, fmt.Errorf("streaming file: %w", err)
	}
	return n, nil
}
