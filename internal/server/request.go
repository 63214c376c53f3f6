package server

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/ezbox-project/go-ezcfg/pkg/httpmsg"
)

// ErrErrorTooLarge is returned by SendError when not even the status line
// and headers fit the limit.
var ErrErrorTooLarge = errors.New("error response exceeds buffer")

// RequestLen returns the length of the request head in buf including the
// empty line that ends it, 0 if the head is not complete yet, or -1 if buf
// holds a control character other than CR and LF. Bytes >= 128 are allowed.
func RequestLen(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		c := buf[i]
		switch {
		case c < 128 && c != '\r' && c != '\n' && !isPrint(c):
			return -1
		case c == '\n' && buf[i+1] == '\n':
			return i + 2
		case c == '\n' && i+2 < len(buf) && buf[i+1] == '\r' && buf[i+2] == '\n':
			return i + 3
		}
	}
	return 0
}

func isPrint(c byte) bool {
	return c >= 0x20 && c < 0x7f
}

// ShiftToNext moves the bytes following the current request and its body to
// the front of buf and returns how many there are.
func ShiftToNext(buf []byte, nread, reqLen, bodyLen int) int {
	consumed := reqLen + bodyLen
	if consumed > nread {
		consumed = nread
	}
	return copy(buf, buf[consumed:nread])
}

// readRequest reads from r into buf until RequestLen finds a complete head.
// It returns the bytes read and the head length: -1 if buf filled up or held
// a control character, 0 if the peer closed or the read failed first.
func readRequest(r io.Reader, buf []byte) (nread, reqLen int) {
	for nread < len(buf) {
		n, err := r.Read(buf[nread:])
		if n > 0 {
			nread += n
			if reqLen = RequestLen(buf[:nread]); reqLen != 0 {
				return nread, reqLen
			}
		}
		if err != nil || n <= 0 {
			return nread, 0
		}
	}
	return nread, -1
}

// readBody keeps reading into buf until it holds want bytes, buf is full or
// the read fails. It returns the new fill level.
func readBody(r io.Reader, buf []byte, nread, want int) int {
	if want > len(buf) {
		want = len(buf)
	}
	for nread < want {
		n, err := r.Read(buf[nread:want])
		if n > 0 {
			nread += n
		}
		if err != nil || n <= 0 {
			break
		}
	}
	return nread
}

// SendError writes a plain text error response with "Connection: close".
// The body is "Error <code>: <reason>\n<message>", omitted for 1xx, 204 and
// 304. With limit > 0 the body is truncated so the whole response fits in
// limit bytes.
func SendError(w io.Writer, code int, reason, message string, limit int) error {
	var body []byte
	if code > 199 && code != 204 && code != 304 {
		body = fmt.Appendf(nil, "Error %d: %s\n%s", code, reason, message)
	}

	resp := errorResponse(code, reason, body)
	if limit > 0 {
		for n := resp.MessageLength(); n > limit && len(body) > 0; n = resp.MessageLength() {
			body = body[:max(len(body)-(n-limit), 0)]
			resp = errorResponse(code, reason, body)
		}
		if resp.MessageLength() > limit {
			return ErrErrorTooLarge
		}
	}

	_, err := resp.WriteTo(w)
	return err
}

func errorResponse(code int, reason string, body []byte) *httpmsg.Message {
	resp := httpmsg.New()
	resp.SetStatusReason(code, reason)
	resp.SetStateResponse()
	resp.AddHeader(httpmsg.HeaderContentType, "text/plain")
	resp.AddHeader(httpmsg.HeaderContentLength, strconv.Itoa(len(body)))
	resp.AddHeader(httpmsg.HeaderConnection, "close")
	resp.SetBody(body)
	return resp
}
