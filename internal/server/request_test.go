package server

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLen(t *testing.T) {
	tests := []struct {
		name string
		buf  string
		want int
	}{
		{"crlf", "GET / HTTP/1.1\r\nHost: a\r\n\r\n", 27},
		{"lf only", "GET / HTTP/1.1\nHost: a\n\n", 24},
		{"with body", "POST / HTTP/1.1\r\n\r\nbody", 19},
		{"incomplete", "GET / HTTP/1.1\r\nHost: a\r\n", 0},
		{"empty", "", 0},
		{"single byte", "G", 0},
		{"control byte", "GET /\x01 HTTP/1.1\r\n\r\n", -1},
		{"tab", "GET /\t HTTP/1.1\r\n\r\n", -1},
		{"nul", "\x00", 0},
		{"nul before end", "\x00\r\n\r\n", -1},
		{"high bytes allowed", "GET /\xe4\xb8\xad HTTP/1.1\r\n\r\n", 21},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RequestLen([]byte(tt.buf)))
		})
	}
}

func TestShiftToNext(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\n\r\nabcNEXT")
	reqLen := RequestLen(buf)
	require.Equal(t, 18, reqLen)

	rest := ShiftToNext(buf, len(buf), reqLen, 3)
	assert.Equal(t, 4, rest)
	assert.Equal(t, "NEXT", string(buf[:rest]))
}

func TestShiftToNext_BodyLongerThanBuffered(t *testing.T) {
	buf := []byte("GET / HTTP/1.1\r\n\r\nab")
	assert.Equal(t, 0, ShiftToNext(buf, len(buf), 18, 10))
}

func TestReadRequest(t *testing.T) {
	t.Run("byte at a time", func(t *testing.T) {
		r := iotest.OneByteReader(strings.NewReader("GET / HTTP/1.1\r\n\r\nrest"))
		buf := make([]byte, 64)
		nread, reqLen := readRequest(r, buf)
		assert.Equal(t, 18, reqLen)
		assert.Equal(t, 18, nread)
	})

	t.Run("buffer full", func(t *testing.T) {
		buf := make([]byte, 8)
		_, reqLen := readRequest(strings.NewReader("GET / HTTP/1.1\r\n\r\n"), buf)
		assert.Equal(t, -1, reqLen)
	})

	t.Run("peer closed", func(t *testing.T) {
		buf := make([]byte, 64)
		nread, reqLen := readRequest(strings.NewReader("GET / HT"), buf)
		assert.Equal(t, 0, reqLen)
		assert.Equal(t, 8, nread)
	})

	t.Run("read error", func(t *testing.T) {
		buf := make([]byte, 64)
		_, reqLen := readRequest(iotest.ErrReader(errors.New("reset")), buf)
		assert.Equal(t, 0, reqLen)
	})
}

func TestReadBody(t *testing.T) {
	buf := make([]byte, 16)
	copy(buf, "ab")
	r := iotest.OneByteReader(strings.NewReader("cdefghijklmnopqrstuvwxyz"))

	assert.Equal(t, 6, readBody(r, buf, 2, 6))
	assert.Equal(t, "abcdef", string(buf[:6]))

	assert.Equal(t, 16, readBody(r, buf, 6, 100), "bounded by the buffer")
	assert.Equal(t, 3, readBody(io.LimitReader(strings.NewReader(""), 0), buf, 3, 10))
}

func TestSendError(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, SendError(&out, 400, "Bad Request", "Can not parse request: FOO", 0))

	want := "HTTP/1.1 400 Bad Request\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 49\r\n" +
		"Connection: close\r\n" +
		"\r\n" +
		"Error 400: Bad Request\nCan not parse request: FOO"
	assert.Equal(t, want, out.String())
}

func TestSendError_NoBody(t *testing.T) {
	for _, code := range []int{100, 204, 304} {
		var out bytes.Buffer
		require.NoError(t, SendError(&out, code, "Status", "ignored", 0))
		assert.True(t, strings.HasSuffix(out.String(), "Content-Length: 0\r\nConnection: close\r\n\r\n"), "code %d", code)
	}
}

func TestSendError_Bounded(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, SendError(&out, 400, "Bad Request", strings.Repeat("x", 500), 128))
	assert.LessOrEqual(t, out.Len(), 128)
	assert.Greater(t, out.Len(), 120)

	head, body, found := strings.Cut(out.String(), "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "Content-Length: "+strconv.Itoa(len(body)))
	assert.True(t, strings.HasPrefix(body, "Error 400: Bad Request\n"))

	out.Reset()
	assert.ErrorIs(t, SendError(&out, 400, "Bad Request", "x", 16), ErrErrorTooLarge)
	assert.Zero(t, out.Len())
}

func TestProto(t *testing.T) {
	for _, p := range []Proto{ProtoHTTP, ProtoSOAPHTTP, ProtoIGRS} {
		assert.Equal(t, p, ParseProto(p.String()))
	}
	assert.Equal(t, ProtoUnknown, ParseProto("unknown"))
	assert.Equal(t, ProtoUnknown, ParseProto("SOAP-HTTP"))
	assert.Equal(t, "unknown", Proto(42).String())
}
