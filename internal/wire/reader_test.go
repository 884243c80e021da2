package wire

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

// splitReader hands out src in pieces of the given sizes, cycling through them.
type splitReader struct {
	src   []byte
	sizes []int
	next  int
}

func (s *splitReader) Read(p []byte) (int, error) {
	if len(s.src) == 0 {
		return 0, io.EOF
	}
	n := s.sizes[s.next%len(s.sizes)]
	s.next++
	n = min(n, len(p), len(s.src))
	copy(p, s.src[:n])
	s.src = s.src[n:]
	return n, nil
}

func TestReadLineSplitsAndKeepsLeftover(t *testing.T) {
	r := NewReader(strings.NewReader("ok\nfailed\r\ninvalid  \nversion"))

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "ok", line)
	require.Positive(t, r.Buffered())

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "failed", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "invalid", line)

	_, err = r.ReadLine()
	require.ErrorIs(t, err, ErrUnterminatedLine)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadLineAcceptUnterminatedReturnsFinalLine(t *testing.T) {
	r := NewReader(strings.NewReader("tap 1 2\nversion"))
	r.AcceptUnterminated = true

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "tap 1 2", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "version", line)

	_, err = r.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadLineCleanEOF(t *testing.T) {
	r := NewReader(strings.NewReader("ok\n"))
	_, err := r.ReadLine()
	require.NoError(t, err)

	_, err = r.ReadLine()
	require.True(t, errors.Is(err, io.EOF))
}

func TestReadLineOneByteAtATime(t *testing.T) {
	r := NewReader(iotest.OneByteReader(strings.NewReader("screenshot all\nok\n")))

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "screenshot all", line)

	line, err = r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "ok", line)
}

func TestReadLineTooLong(t *testing.T) {
	r := NewReader(bytes.NewReader(bytes.Repeat([]byte("a"), MaxLineBytes+readSize+1)))
	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineTooLongWithNewline(t *testing.T) {
	long := strings.Repeat("x", MaxLineBytes+1)
	r := NewReader(strings.NewReader(long + "\nok\n"))

	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineSkipsOversizedLineInServerMode(t *testing.T) {
	long := strings.Repeat("x", 200*1024)
	r := NewReader(&splitReader{src: []byte(long + "\ntap 1 2\n"), sizes: []int{4096, 777}})
	r.AcceptUnterminated = true

	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "tap 1 2", line)

	_, err = r.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestReadLineSkipsOversizedTailInServerMode(t *testing.T) {
	r := NewReader(strings.NewReader(strings.Repeat("x", 2*MaxLineBytes)))
	r.AcceptUnterminated = true

	_, err := r.ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)

	_, err = r.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

// bufferTracker records the backing array of every buffer it is asked to fill.
type bufferTracker struct {
	src     []byte
	buffers map[*byte]struct{}
}

func (b *bufferTracker) Read(p []byte) (int, error) {
	if len(b.src) == 0 {
		return 0, io.EOF
	}
	b.buffers[&p[0]] = struct{}{}
	n := min(len(p), len(b.src), 16)
	copy(p, b.src[:n])
	b.src = b.src[n:]
	return n, nil
}

func TestReaderReusesReadBuffer(t *testing.T) {
	src := &bufferTracker{
		src:     []byte(strings.Repeat("tap 1 2\n", 40)),
		buffers: map[*byte]struct{}{},
	}
	r := NewReader(src)

	for i := 0; i < 40; i++ {
		line, err := r.ReadLine()
		require.NoError(t, err)
		require.Equal(t, "tap 1 2", line)
	}
	require.Len(t, src.buffers, 1)
}

func TestReadLinePropagatesSourceError(t *testing.T) {
	boom := errors.New("connection reset")
	r := NewReader(iotest.ErrReader(boom))
	_, err := r.ReadLine()
	require.ErrorIs(t, err, boom)
}

func TestReadExactReassemblesAcrossPartialReads(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		payload := make([]byte, rng.Intn(20000))
		rng.Read(payload)
		trailer := []byte("end 0\nok\n")

		sizes := make([]int, 1+rng.Intn(6))
		for i := range sizes {
			sizes[i] = 1 + rng.Intn(3000)
		}

		stream := append(append([]byte(nil), payload...), trailer...)
		r := NewReader(&splitReader{src: stream, sizes: sizes})

		got, err := r.ReadExact(len(payload))
		require.NoError(t, err)
		require.Equal(t, payload, got)

		line, err := r.ReadLine()
		require.NoError(t, err)
		require.Equal(t, "end 0", line)
		line, err = r.ReadLine()
		require.NoError(t, err)
		require.Equal(t, "ok", line)
	}
}

func TestReadExactDrainsLeftoverFirst(t *testing.T) {
	r := NewReader(&splitReader{src: []byte("begin 0 4\nabcdend 0\n"), sizes: []int{64}})

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "begin 0 4", line)
	require.Equal(t, len("abcdend 0\n"), r.Buffered())

	got, err := r.ReadExact(4)
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), got)
	require.Equal(t, len("end 0\n"), r.Buffered())
}

func TestReadExactShortStream(t *testing.T) {
	r := NewReader(strings.NewReader("abc"))
	_, err := r.ReadExact(5)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadExactZeroAndNegative(t *testing.T) {
	r := NewReader(strings.NewReader(""))

	got, err := r.ReadExact(0)
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = r.ReadExact(-1)
	require.Error(t, err)
}

func TestResetDropsLeftover(t *testing.T) {
	r := NewReader(strings.NewReader("ok\nstale\n"))
	_, err := r.ReadLine()
	require.NoError(t, err)
	require.Positive(t, r.Buffered())

	r.Reset(strings.NewReader("fresh\n"))
	require.Zero(t, r.Buffered())

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "fresh", line)
}
