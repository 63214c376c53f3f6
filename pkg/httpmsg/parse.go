package httpmsg

import (
	"bytes"
	"fmt"
)

var crlf = []byte("\r\n")

// ParseRequest parses the request line and headers held in buf. buf must
// contain the complete header section; bytes after the terminating empty line
// are ignored and left for the caller to treat as body.
//
// buf is never modified. Headers are committed to the message only when the
// whole section parses, so a failed parse adds none.
func (m *Message) ParseRequest(buf []byte) error {
	end := bytes.Index(buf, crlf)
	if end < 0 {
		return ErrNoRequestLine
	}

	method, uri, major, minor, err := m.parseRequestLine(buf[:end])
	if err != nil {
		return err
	}

	headers, err := parseHeaders(buf[end+2:])
	if err != nil {
		return err
	}

	m.state = StateRequest
	m.method = method
	m.uri = uri
	m.major, m.minor = major, minor
	m.headers = append(m.headers, headers...)
	return nil
}

func (m *Message) parseRequestLine(line []byte) (method int, uri string, major, minor int, err error) {
	sp := bytes.IndexByte(line, ' ')
	if sp <= 0 {
		return 0, "", 0, 0, ErrUnknownMethod
	}
	method = m.methods.Lookup(string(line[:sp]))
	if method == MethodUnknown {
		return 0, "", 0, 0, fmt.Errorf("%w: %q", ErrUnknownMethod, line[:sp])
	}

	rest := bytes.TrimLeft(line[sp+1:], " ")
	sp = bytes.IndexByte(rest, ' ')
	if sp < 0 {
		if len(rest) == 0 || (rest[0] != '/' && rest[0] != '*') {
			return 0, "", 0, 0, ErrInvalidURI
		}
		return 0, "", 0, 0, ErrInvalidVersion
	}
	target := rest[:sp]
	if len(target) == 0 || (target[0] != '/' && target[0] != '*') {
		return 0, "", 0, 0, ErrInvalidURI
	}

	major, minor, ok := parseVersion(bytes.TrimLeft(rest[sp+1:], " "))
	if !ok {
		return 0, "", 0, 0, ErrInvalidVersion
	}
	return method, string(target), major, minor, nil
}

// parseVersion accepts exactly HTTP/<digits>.<digits>.
func parseVersion(v []byte) (major, minor int, ok bool) {
	const prefix = "HTTP/"
	if !bytes.HasPrefix(v, []byte(prefix)) {
		return 0, 0, false
	}
	v = v[len(prefix):]
	dot := bytes.IndexByte(v, '.')
	if dot <= 0 || dot == len(v)-1 {
		return 0, 0, false
	}
	major, ok = atoi(v[:dot])
	if !ok {
		return 0, 0, false
	}
	minor, ok = atoi(v[dot+1:])
	return major, minor, ok
}

func atoi(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 4 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

// parseHeaders reads header lines up to the first empty line. Lines end in
// CRLF or a bare LF. Continuation lines starting with SP or HTAB are folded
// into the previous value.
func parseHeaders(buf []byte) ([]Header, error) {
	var headers []Header
	for len(buf) > 0 {
		var line []byte
		if nl := bytes.IndexByte(buf, '\n'); nl >= 0 {
			line, buf = buf[:nl], buf[nl+1:]
		} else {
			line, buf = buf, nil
		}
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			break
		}

		if (line[0] == ' ' || line[0] == '\t') && len(headers) > 0 {
			last := &headers[len(headers)-1]
			last.Value += " " + string(trimSpaceTab(line))
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		name := string(bytes.TrimRight(line[:colon], " \t"))
		value := string(trimSpaceTab(line[colon+1:]))

		canonical, known := CanonicalHeader(name)
		headers = append(headers, Header{Name: canonical, Value: value, Known: known})
	}
	return headers, nil
}

func trimSpaceTab(b []byte) []byte {
	return bytes.Trim(b, " \t")
}
