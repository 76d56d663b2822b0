package sdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single SDF line. Real records stay under 200
// characters; a megabyte catches binary garbage without rejecting
// long data-item values.
const maxLineBytes = 1 << 20

// Splitter reads an SDF stream and yields one Block per $$$$ delimiter.
// Blocks are returned in file order and carry their sequence number.
// The delimiter line itself is never part of a block.
type Splitter struct {
	scanner   *bufio.Scanner
	seq       int
	pending   []string
	discarded int
	done      bool
	err       error
}

// NewSplitter wraps r for block-at-a-time reading.
func NewSplitter(r io.Reader) *Splitter {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Splitter{scanner: sc}
}

// Next returns the next block in the stream. It returns io.EOF once the
// stream is exhausted, and a wrapped read error if the underlying
// reader fails. Trailing lines after the final delimiter that contain
// only whitespace are ignored; non-blank trailing content is discarded
// and counted, never silently folded into a phantom block.
func (s *Splitter) Next() (Block, error) {
	if s.err != nil {
		return Block{}, s.err
	}
	if s.done {
		return Block{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if isDelimiter(line) {
			b := Block{Seq: s.seq, Lines: s.pending}
			s.seq++
			s.pending = nil
			return b, nil
		}
		s.pending = append(s.pending, line)
	}
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("read sdf stream: %w", err)
		return Block{}, s.err
	}
	s.done = true
	for _, line := range s.pending {
		if strings.TrimSpace(line) != "" {
			s.discarded++
		}
	}
	s.pending = nil
	return Block{}, io.EOF
}

// Discarded returns the number of non-blank trailing lines dropped
// after the last delimiter. It is only final once Next has returned
// io.EOF.
func (s *Splitter) Discarded() int {
	return s.discarded
}

// isDelimiter reports whether line is a $$$$ record delimiter. The
// format allows trailing whitespace on the delimiter line but nothing
// else.
func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t") == Delimiter
}
