package httpmsg

import (
	"io"
	"strconv"
)

// AppendRequestLine appends "METHOD URI HTTP/maj.min\r\n" to dst.
func (m *Message) AppendRequestLine(dst []byte) ([]byte, error) {
	name := m.methods.Name(m.method)
	if name == "" {
		return dst, ErrUnknownMethod
	}
	dst = append(dst, name...)
	dst = append(dst, ' ')
	dst = append(dst, m.uri...)
	dst = append(dst, ' ')
	dst = m.appendVersion(dst)
	return append(dst, '\r', '\n'), nil
}

// AppendStatusLine appends "HTTP/maj.min code reason\r\n" to dst.
func (m *Message) AppendStatusLine(dst []byte) []byte {
	dst = m.appendVersion(dst)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, int64(m.status), 10)
	dst = append(dst, ' ')
	dst = append(dst, m.Reason()...)
	return append(dst, '\r', '\n')
}

// AppendHeaders appends every header as "Name: value\r\n" in list order.
func (m *Message) AppendHeaders(dst []byte) []byte {
	for _, h := range m.headers {
		dst = append(dst, h.Name...)
		dst = append(dst, ':', ' ')
		dst = append(dst, h.Value...)
		dst = append(dst, '\r', '\n')
	}
	return dst
}

// AppendMessage appends the start line, headers, the empty line and the body.
func (m *Message) AppendMessage(dst []byte) ([]byte, error) {
	var err error
	if m.state == StateResponse {
		dst = m.AppendStatusLine(dst)
	} else {
		dst, err = m.AppendRequestLine(dst)
		if err != nil {
			return dst, err
		}
	}
	dst = m.AppendHeaders(dst)
	dst = append(dst, '\r', '\n')
	return append(dst, m.body...), nil
}

// MessageLength returns the serialized length of the whole message, or -1 if
// the message is a request with an unknown method.
func (m *Message) MessageLength() int {
	b, err := m.AppendMessage(nil)
	if err != nil {
		return -1
	}
	return len(b)
}

// WriteRequestLine writes the request line into buf and returns the number of
// bytes written, or -1 if the method is unknown or buf is too small. Nothing
// is written past len(buf).
func (m *Message) WriteRequestLine(buf []byte) int {
	b, err := m.AppendRequestLine(nil)
	if err != nil {
		return -1
	}
	return copyBounded(buf, b)
}

// WriteStatusLine writes the status line into buf, with the same return
// convention as WriteRequestLine.
func (m *Message) WriteStatusLine(buf []byte) int {
	return copyBounded(buf, m.AppendStatusLine(nil))
}

// WriteHeaders writes the header lines into buf, with the same return
// convention as WriteRequestLine.
func (m *Message) WriteHeaders(buf []byte) int {
	return copyBounded(buf, m.AppendHeaders(nil))
}

// WriteMessage writes the whole message into buf, with the same return
// convention as WriteRequestLine.
func (m *Message) WriteMessage(buf []byte) int {
	b, err := m.AppendMessage(nil)
	if err != nil {
		return -1
	}
	return copyBounded(buf, b)
}

// WriteTo serializes the message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	b, err := m.AppendMessage(nil)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

func (m *Message) appendVersion(dst []byte) []byte {
	dst = append(dst, "HTTP/"...)
	dst = strconv.AppendInt(dst, int64(m.major), 10)
	dst = append(dst, '.')
	return strconv.AppendInt(dst, int64(m.minor), 10)
}

func copyBounded(dst, src []byte) int {
	if len(src) > len(dst) {
		return -1
	}
	return copy(dst, src)
}
