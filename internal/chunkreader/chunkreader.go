// Package chunkreader reads a byte source in fixed-size blocks.
//
// The concatenation of all blocks returned by a Reader equals the source
// exactly; blocks are never empty and never reordered. For file sources the
// total size comes from filesystem metadata and serves as the progress
// denominator.
package chunkreader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/isseis/go-safe-digest/internal/calcerrors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// DefaultChunkSize is the block size used when none is configured (16 MiB)
const DefaultChunkSize = 16 * 1024 * 1024

// ErrInvalidChunkSize is returned when a non-positive block size is requested
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

// Source is a resolved input: either in-memory text or a file path.
// Exactly one Source is active per calculation.
type Source interface {
	// Open prepares the source for chunked reading.
	Open(chunkSize int) (*Reader, error)
}

// Text returns a Source over an in-memory buffer.
func Text(b []byte) Source {
	return textSource{b: b}
}

type textSource struct {
	b []byte
}

func (s textSource) Open(chunkSize int) (*Reader, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}
	return newReader(bytes.NewReader(s.b), int64(len(s.b)), nil, chunkSize), nil
}

// FileOption configures a file Source
type FileOption func(*fileSource)

// WithDecompression makes the source transparently decompress ".zst" and
// ".gz" files. Progress is still measured against the compressed size.
func WithDecompression() FileOption {
	return func(s *fileSource) {
		s.decompress = true
	}
}

// File returns a Source over the file at path.
func File(path string, opts ...FileOption) Source {
	s := &fileSource{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type fileSource struct {
	path       string
	decompress bool
}

func (s *fileSource) Open(chunkSize int) (*Reader, error) {
	if chunkSize <= 0 {
		return nil, ErrInvalidChunkSize
	}

	f, err := os.Open(s.path) // #nosec G304 -- the path is the user's explicit input
	if err != nil {
		return nil, calcerrors.IOFailure(s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, calcerrors.IOFailure(s.path, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, calcerrors.IOFailure(s.path, fmt.Errorf("%s is a directory", s.path))
	}

	if !s.decompress {
		return newReader(f, info.Size(), f, chunkSize), nil
	}

	counter := &countingReader{r: f}
	dec, closeDec, err := decompressor(s.path, counter)
	if err != nil {
		_ = f.Close()
		return nil, calcerrors.IOFailure(s.path, err)
	}
	r := newReader(dec, info.Size(), closerFunc(func() error {
		closeDec()
		return f.Close()
	}), chunkSize)
	r.consumed = counter.count
	return r, nil
}

// decompressor wraps r according to the file extension. Unknown extensions
// are read as-is.
func decompressor(path string, r io.Reader) (io.Reader, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("zstd: %w", err)
		}
		return dec, dec.Close, nil
	case ".gz":
		dec, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("gzip: %w", err)
		}
		return dec, func() { _ = dec.Close() }, nil
	default:
		return r, func() {}, nil
	}
}

// countingReader is read from the decoder's goroutines, hence the atomic.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) count() int64 {
	return c.n.Load()
}

type closerFunc func() error

func (f closerFunc) Close() error {
	return f()
}
