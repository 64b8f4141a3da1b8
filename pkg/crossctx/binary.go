package crossctx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unsafe"
)

// Adjacency weights are written as one native-order run, the same
// zero-copy way the graph file writes its CSR arrays.

func writeWeights(w io.Writer, s []EdgeWeight) error {
	if len(s) == 0 {
		return nil
	}
	_, err := w.Write(weightBytes(s))
	return err
}

// weightBytes aliases s; reads into it fill the weights in place.
func weightBytes(s []EdgeWeight) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

// source is a positional reader over an io.ReaderAt; the offset is tracked
// here, not by the underlying reader.
type source struct {
	r   io.ReaderAt
	pos int64
}

// sizer is implemented by bytes.Reader, strings.Reader and io.SectionReader.
type sizer interface {
	Size() int64
}

// ensure fails with ErrTruncated when fewer than n bytes remain, before any
// buffer for them is allocated. Sources without Size are checked by reading
// the last byte of the range.
func (s *source) ensure(n int64, what string) error {
	if n < 0 || n > math.MaxInt64-s.pos {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d", ErrTruncated, what, n, s.pos)
	}
	if n == 0 {
		return nil
	}
	if sz, ok := s.r.(sizer); ok {
		if sz.Size()-s.pos < n {
			return fmt.Errorf("%w: %s needs %d bytes at offset %d, %d available",
				ErrTruncated, what, n, s.pos, max(sz.Size()-s.pos, 0))
		}
		return nil
	}
	var last [1]byte
	if got, err := s.r.ReadAt(last[:], s.pos+n-1); got == 0 {
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s at offset %d: %w", what, s.pos, err)
		}
		return fmt.Errorf("%w: %s needs %d bytes at offset %d", ErrTruncated, what, n, s.pos)
	}
	return nil
}

func (s *source) read(buf []byte, what string) error {
	n, err := s.r.ReadAt(buf, s.pos)
	start := s.pos
	s.pos += int64(n)
	if n == len(buf) {
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read %s at offset %d: %w", what, start, err)
	}
	return fmt.Errorf("%w: %s needs %d bytes at offset %d, got %d",
		ErrTruncated, what, len(buf), start, n)
}

func (s *source) uint32(what string) (uint32, error) {
	var b [4]byte
	if err := s.read(b[:], what); err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(b[:]), nil
}

// records reads count fixed-size records in one call.
func (s *source) records(count uint32, size int, what string) ([]byte, error) {
	n := int64(count) * int64(size)
	if err := s.ensure(n, what); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if err := s.read(buf, what); err != nil {
		return nil, err
	}
	return buf, nil
}
