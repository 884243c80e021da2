package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

const (
	readSize = 8192

	// MaxLineBytes bounds a single protocol line.
	MaxLineBytes = 64 * 1024
)

// Reader splits a byte stream into protocol lines and exact-length payloads.
// Bytes read past the current frame stay buffered for the next call.
type Reader struct {
	src     io.Reader
	pending []byte
	scratch []byte
	eof     bool

	// AcceptUnterminated selects server behavior: a trailing partial line at
	// end of stream is returned as a final line instead of failing with
	// ErrUnterminatedLine, and an oversized line is skipped through its
	// newline so the next ReadLine starts on the following line.
	AcceptUnterminated bool
}

// NewReader returns a Reader pulling from src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Buffered reports the number of unconsumed bytes held by the reader.
func (r *Reader) Buffered() int {
	return len(r.pending)
}

// Reset discards buffered bytes and rebinds the reader to src.
func (r *Reader) Reset(src io.Reader) {
	r.src = src
	r.pending = nil
	r.eof = false
}

// ReadLine returns the next line with the newline and trailing whitespace
// removed. Lines longer than MaxLineBytes fail with ErrLineTooLong; the stream
// stays usable afterwards only when AcceptUnterminated is set.
func (r *Reader) ReadLine() (string, error) {
	for {
		if idx := bytes.IndexByte(r.pending, '\n'); idx >= 0 {
			if idx > MaxLineBytes {
				r.consume(idx + 1)
				return "", fmt.Errorf("%w: %d bytes", ErrLineTooLong, idx)
			}
			line := string(r.pending[:idx])
			r.consume(idx + 1)
			return trimLine(line), nil
		}
		if len(r.pending) > MaxLineBytes {
			if !r.AcceptUnterminated {
				return "", fmt.Errorf("%w: %d bytes without newline", ErrLineTooLong, len(r.pending))
			}
			return "", r.skipLine()
		}

		if r.eof {
			if len(r.pending) == 0 {
				return "", io.EOF
			}
			if !r.AcceptUnterminated {
				return "", ErrUnterminatedLine
			}
			line := string(r.pending)
			r.pending = nil
			return trimLine(line), nil
		}

		if err := r.fill(); err != nil {
			return "", err
		}
	}
}

// ReadExact returns exactly n bytes, draining buffered bytes first.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("read exact: negative length %d", n)
	}

	out := make([]byte, 0, n)
	for len(out) < n {
		if len(r.pending) == 0 {
			if r.eof {
				return nil, fmt.Errorf("read exact: got %d of %d bytes: %w", len(out), n, io.ErrUnexpectedEOF)
			}
			if err := r.fill(); err != nil {
				return nil, err
			}
			continue
		}

		take := min(n-len(out), len(r.pending))
		out = append(out, r.pending[:take]...)
		r.consume(take)
	}
	return out, nil
}

// skipLine drops input through the next newline, or to end of stream, and
// reports the dropped line as ErrLineTooLong.
func (r *Reader) skipLine() error {
	dropped := 0
	for {
		if idx := bytes.IndexByte(r.pending, '\n'); idx >= 0 {
			dropped += idx
			r.consume(idx + 1)
			break
		}
		dropped += len(r.pending)
		r.pending = nil
		if r.eof {
			break
		}
		if err := r.fill(); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: skipped %d bytes", ErrLineTooLong, dropped)
}

// fill appends one read from the source to the pending buffer.
func (r *Reader) fill() error {
	if r.scratch == nil {
		r.scratch = make([]byte, readSize)
	}
	n, err := r.src.Read(r.scratch)
	if n > 0 {
		r.pending = append(r.pending, r.scratch[:n]...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.eof = true
			return nil
		}
		return err
	}
	return nil
}

func (r *Reader) consume(n int) {
	if n >= len(r.pending) {
		r.pending = nil
		return
	}
	r.pending = r.pending[n:]
}

func trimLine(line string) string {
	return strings.TrimRightFunc(line, unicode.IsSpace)
}
