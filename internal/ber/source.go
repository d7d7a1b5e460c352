package ber

import (
	"bufio"
	"io"
)

// Source is a forward-only byte source with a reportable read position.
// The decoder advances a Source monotonically; it never seeks backwards.
// Concurrent decodes must each own an independent Source.
type Source interface {
	// ReadByte returns the next byte and advances the position by one.
	ReadByte() (byte, error)

	// ReadFull fills p entirely or returns an error. The position advances
	// by the number of bytes read, even on a short read.
	ReadFull(p []byte) error

	// Offset returns the number of bytes consumed so far.
	Offset() int64
}

// BytesSource is a Source backed by an in-memory byte slice.
type BytesSource struct {
	data []byte
	pos  int
}

// NewBytesSource creates a Source over data. The slice is not copied;
// callers must not mutate it while a decode is in progress.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{data: data}
}

// ReadByte returns the next byte from the slice.
func (s *BytesSource) ReadByte() (byte, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// ReadFull copies the next len(p) bytes into p.
func (s *BytesSource) ReadFull(p []byte) error {
	n := copy(p, s.data[s.pos:])
	s.pos += n
	if n < len(p) {
		return io.ErrUnexpectedEOF
	}
	return nil
}

// Offset returns the current read position.
func (s *BytesSource) Offset() int64 {
	return int64(s.pos)
}

// Remaining returns the number of unread bytes.
func (s *BytesSource) Remaining() int {
	return len(s.data) - s.pos
}

// ReaderSource adapts an io.Reader into a Source, tracking the number of
// bytes consumed. Reads are buffered.
type ReaderSource struct {
	r   *bufio.Reader
	pos int64
}

// NewReaderSource creates a buffered Source over r.
func NewReaderSource(r io.Reader) *ReaderSource {
	return &ReaderSource{r: bufio.NewReader(r)}
}

// ReadByte returns the next byte from the underlying reader.
func (s *ReaderSource) ReadByte() (byte, error) {
	b, err := s.r.ReadByte()
	if err == nil {
		s.pos++
	}
	return b, err
}

// ReadFull fills p from the underlying reader.
func (s *ReaderSource) ReadFull(p []byte) error {
	n, err := io.ReadFull(s.r, p)
	s.pos += int64(n)
	if err == io.EOF && len(p) > 0 {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// Offset returns the number of bytes consumed so far.
func (s *ReaderSource) Offset() int64 {
	return s.pos
}
