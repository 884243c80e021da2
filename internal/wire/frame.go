package wire

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Status lines and the version reply.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusInvalid = "invalid"

	VersionString = "android_input_agent v0"
)

const (
	beginMarker = "begin"
	endMarker   = "end"
)

// WriteLine writes line followed by a newline.
func WriteLine(w io.Writer, line string) error {
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	_, err := w.Write(buf)
	return err
}

// WriteChunk frames payload as chunk index: a begin line carrying the byte
// length, the raw bytes, then an end line.
func WriteChunk(w io.Writer, index int, payload []byte) error {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 32)
	buf.WriteString(BeginLine(index, len(payload)))
	buf.WriteByte('\n')
	buf.Write(payload)
	buf.WriteString(EndLine(index))
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// BeginLine renders the begin marker for chunk index of size bytes.
func BeginLine(index, size int) string {
	return beginMarker + " " + strconv.Itoa(index) + " " + strconv.Itoa(size)
}

// EndLine renders the end marker for chunk index.
func EndLine(index int) string {
	return endMarker + " " + strconv.Itoa(index)
}

// ParseBegin validates a begin line for chunk index and returns its declared size.
func ParseBegin(line string, index int) (int, error) {
	prefix := beginMarker + " " + strconv.Itoa(index) + " "
	if !strings.HasPrefix(line, prefix) {
		return 0, violation("expected begin marker for chunk %d, got %q", index, line)
	}
	size, err := parseUint(line[len(prefix):])
	if err != nil {
		return 0, violation("bad chunk size in %q", line)
	}
	return size, nil
}

// ReadChunk reads chunk index from r. Declared sizes above maxBytes are
// rejected before any payload is read; maxBytes <= 0 disables the check.
// A failed status in place of the begin marker yields ErrServerFailure.
func ReadChunk(r *Reader, index int, maxBytes int) ([]byte, error) {
	line, err := r.ReadLine()
	if err != nil {
		return nil, err
	}
	if line == StatusFailed {
		return nil, fmt.Errorf("%w: before chunk %d", ErrServerFailure, index)
	}
	size, err := ParseBegin(line, index)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && size > maxBytes {
		return nil, fmt.Errorf("%w: chunk %d declares %d bytes: %w (limit %d)", ErrProtocolViolation, index, size, ErrChunkTooLarge, maxBytes)
	}

	payload, err := r.ReadExact(size)
	if err != nil {
		return nil, err
	}

	line, err = r.ReadLine()
	if err != nil {
		return nil, err
	}
	if want := EndLine(index); line != want {
		return nil, violation("expected %q, got %q", want, line)
	}
	return payload, nil
}
