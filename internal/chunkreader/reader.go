package chunkreader

import (
	"errors"
	"io"
)

// Reader yields successive blocks of a source.
// A Reader is not safe for concurrent use.
type Reader struct {
	// Total is the progress denominator in bytes
	Total int64

	r        io.Reader
	closer   io.Closer
	buf      []byte
	read     int64
	consumed func() int64
	err      error
}

func newReader(r io.Reader, total int64, closer io.Closer, chunkSize int) *Reader {
	return &Reader{
		Total:  total,
		r:      r,
		closer: closer,
		buf:    make([]byte, chunkSize),
	}
}

// Next returns the next non-empty block, or io.EOF once the source is
// exhausted. The returned slice is only valid until the following call.
func (r *Reader) Next() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}

	n, err := io.ReadFull(r.r, r.buf)
	if n > 0 {
		r.read += int64(n)
		if err != nil && !isShortRead(err) {
			r.err = err
		}
		return r.buf[:n], nil
	}

	if err == nil || isShortRead(err) {
		err = io.EOF
	}
	r.err = err
	return nil, err
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Done returns the number of source bytes consumed so far, measured in the
// same unit as Total.
func (r *Reader) Done() int64 {
	if r.consumed != nil {
		return r.consumed()
	}
	return r.read
}

// Close releases the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Split partitions b into blocks of at most size bytes, without copying.
func Split(b []byte, size int) [][]byte {
	if size <= 0 {
		size = DefaultChunkSize
	}
	blocks := make([][]byte, 0, (len(b)+size-1)/size)
	for off := 0; off < len(b); off += size {
		blocks = append(blocks, b[off:min(off+size, len(b))])
	}
	return blocks
}

// ReadAll drains r and returns the concatenation of its blocks.
func ReadAll(r *Reader) ([]byte, error) {
	var out []byte
	for {
		block, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, block...)
	}
}
