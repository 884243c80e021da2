package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteChunkLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, 1, []byte("PNG\n\x00data")))
	require.Equal(t, "begin 1 9\nPNG\n\x00dataend 1\n", buf.String())
}

func TestReadChunkSequence(t *testing.T) {
	first := bytes.Repeat([]byte{0x89, '\n', 'P'}, 411)
	second := bytes.Repeat([]byte{'\r', '\n', 0}, 329)

	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, 0, first))
	require.NoError(t, WriteChunk(&buf, 1, second))
	require.NoError(t, WriteLine(&buf, StatusOK))

	r := NewReader(&splitReader{src: buf.Bytes(), sizes: []int{7, 500, 3}})

	got, err := ReadChunk(r, 0, 0)
	require.NoError(t, err)
	require.Equal(t, first, got)

	got, err = ReadChunk(r, 1, 0)
	require.NoError(t, err)
	require.Equal(t, second, got)

	line, err := r.ReadLine()
	require.NoError(t, err)
	require.Equal(t, StatusOK, line)
}

func TestReadChunkViolations(t *testing.T) {
	tests := []struct {
		name   string
		stream string
		index  int
	}{
		{name: "wrong index", stream: "begin 1 3\nabcend 1\n", index: 0},
		{name: "not a begin line", stream: "ok\n", index: 0},
		{name: "malformed size", stream: "begin 0 x\n", index: 0},
		{name: "negative size", stream: "begin 0 -3\n", index: 0},
		{name: "missing size", stream: "begin 0\n", index: 0},
		{name: "wrong end index", stream: "begin 0 3\nabcend 1\n", index: 0},
		{name: "end missing", stream: "begin 0 3\nabcok\n", index: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReader(bytes.NewReader([]byte(tc.stream)))
			_, err := ReadChunk(r, tc.index, 0)
			require.ErrorIs(t, err, ErrProtocolViolation)
		})
	}
}

func TestReadChunkRejectsOversizedDeclaration(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("begin 0 1048576\n")))
	_, err := ReadChunk(r, 0, 1024)
	require.ErrorIs(t, err, ErrChunkTooLarge)
	require.ErrorIs(t, err, ErrProtocolViolation)
}

func TestParseBegin(t *testing.T) {
	size, err := ParseBegin("begin 3 1234", 3)
	require.NoError(t, err)
	require.Equal(t, 1234, size)

	_, err = ParseBegin("begin 3 1234 extra", 3)
	require.ErrorIs(t, err, ErrProtocolViolation)
}

func TestReadChunkFailedBeforeBegin(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("begin 0 2\nabend 0\nfailed\n")))

	_, err := ReadChunk(r, 0, 0)
	require.NoError(t, err)

	_, err = ReadChunk(r, 1, 0)
	require.ErrorIs(t, err, ErrServerFailure)
	require.NotErrorIs(t, err, ErrProtocolViolation)
}
