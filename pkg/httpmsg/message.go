// Package httpmsg implements the HTTP/1.x message model used by the ezcd
// protocol server: request-line and header parsing, an ordered header list
// and bounded serialization of requests and responses.
//
// It does not use net/http. Messages are parsed from buffers
// the worker has already read off the socket, one message per connection.
package httpmsg

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var (
	// ErrNoRequestLine is returned when the request line is not CRLF terminated
	ErrNoRequestLine = errors.New("httpmsg: no request line terminator")
	// ErrUnknownMethod is returned when the method token is not in the method table
	ErrUnknownMethod = errors.New("httpmsg: unknown method")
	// ErrInvalidURI is returned when the request URI does not start with '/' or '*'
	ErrInvalidURI = errors.New("httpmsg: invalid request uri")
	// ErrInvalidVersion is returned when the version is not HTTP/<major>.<minor>
	ErrInvalidVersion = errors.New("httpmsg: invalid http version")
	// ErrInvalidHeader is returned when a header line has no ':' separator
	ErrInvalidHeader = errors.New("httpmsg: invalid header line")
)

// State tells whether a message is serialized as a request or a response.
type State uint8

const (
	StateRequest State = iota
	StateResponse
)

// Header is one name/value pair. Known is set when Name matched the table of
// recognized header names, in which case Name holds the canonical spelling.
type Header struct {
	Name  string
	Value string
	Known bool
}

// Message is a single HTTP request or response.
type Message struct {
	methods MethodTable
	state   State

	method int
	uri    string
	major  int
	minor  int

	status int
	reason string

	headers []Header
	body    []byte
}

// New returns an empty message using DefaultMethods.
func New() *Message {
	return NewWithMethods(DefaultMethods)
}

// NewWithMethods returns an empty message that recognizes only the methods
// in table. Protocol variants use this to restrict the accepted verbs.
func NewWithMethods(table MethodTable) *Message {
	if len(table) == 0 {
		table = DefaultMethods
	}
	return &Message{
		methods: table,
		major:   1,
		minor:   1,
	}
}

// Reset clears everything except the method table, so the message can be
// reused for the next request or for a response.
func (m *Message) Reset() {
	m.state = StateRequest
	m.method = MethodUnknown
	m.uri = ""
	m.major, m.minor = 1, 1
	m.status = 0
	m.reason = ""
	m.headers = m.headers[:0]
	m.body = nil
}

// Methods returns the method table in use.
func (m *Message) Methods() MethodTable { return m.methods }

// Method returns the method index, MethodUnknown if unset.
func (m *Message) Method() int { return m.method }

// MethodName returns the method token, "" if unset.
func (m *Message) MethodName() string { return m.methods.Name(m.method) }

// SetMethod selects the method by token. It reports false if the token is not
// in the message's method table.
func (m *Message) SetMethod(token string) bool {
	i := m.methods.Lookup(token)
	if i == MethodUnknown {
		return false
	}
	m.method = i
	return true
}

// RequestURI returns the request target exactly as received.
func (m *Message) RequestURI() string { return m.uri }

// SetRequestURI sets the request target.
func (m *Message) SetRequestURI(uri string) { m.uri = uri }

// Path returns the percent-decoded path part of the request URI.
func (m *Message) Path() string {
	p := m.uri
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

// Query returns the raw query string, the part of the request URI after '?'.
func (m *Message) Query() string {
	if i := strings.IndexByte(m.uri, '?'); i >= 0 {
		return m.uri[i+1:]
	}
	return ""
}

// Version returns the HTTP major and minor version.
func (m *Message) Version() (major, minor int) { return m.major, m.minor }

// SetVersion sets the HTTP version.
func (m *Message) SetVersion(major, minor int) {
	m.major, m.minor = major, minor
}

// State returns whether the message serializes as a request or response.
func (m *Message) State() State { return m.state }

// SetStateRequest marks the message as a request.
func (m *Message) SetStateRequest() { m.state = StateRequest }

// SetStateResponse marks the message as a response.
func (m *Message) SetStateResponse() { m.state = StateResponse }

// Status returns the response status code.
func (m *Message) Status() int { return m.status }

// Reason returns the response reason phrase. If none was set explicitly the
// standard phrase for the status code is returned.
func (m *Message) Reason() string {
	if m.reason != "" {
		return m.reason
	}
	return StatusText(m.status)
}

// SetStatus sets the status code with its standard reason phrase.
func (m *Message) SetStatus(code int) {
	m.status = code
	m.reason = ""
}

// SetStatusReason sets the status code with a custom reason phrase.
func (m *Message) SetStatusReason(code int, reason string) {
	m.status = code
	m.reason = reason
}

// AddHeader appends a header at the tail of the list. Recognized names are
// stored in their canonical spelling. It reports false for an empty name or
// for a name or value carrying CR or LF.
func (m *Message) AddHeader(name, value string) bool {
	if name == "" || strings.ContainsAny(name, "\r\n:") || strings.ContainsAny(value, "\r\n") {
		return false
	}
	canonical, known := CanonicalHeader(name)
	m.headers = append(m.headers, Header{Name: canonical, Value: value, Known: known})
	return true
}

// GetHeader returns the first header whose name matches case-insensitively,
// or nil.
func (m *Message) GetHeader(name string) *Header {
	for i := range m.headers {
		if strings.EqualFold(m.headers[i].Name, name) {
			return &m.headers[i]
		}
	}
	return nil
}

// Header returns the value of the first header named name.
func (m *Message) Header(name string) (string, bool) {
	h := m.GetHeader(name)
	if h == nil {
		return "", false
	}
	return h.Value, true
}

// DelHeader removes every header named name and returns how many were removed.
func (m *Message) DelHeader(name string) int {
	kept := m.headers[:0]
	removed := 0
	for _, h := range m.headers {
		if strings.EqualFold(h.Name, name) {
			removed++
			continue
		}
		kept = append(kept, h)
	}
	m.headers = kept
	return removed
}

// Headers returns a copy of the header list in wire order.
func (m *Message) Headers() []Header {
	out := make([]Header, len(m.headers))
	copy(out, m.headers)
	return out
}

// Body returns the message body.
func (m *Message) Body() []byte { return m.body }

// SetBody replaces the body with a copy of b.
func (m *Message) SetBody(b []byte) {
	if len(b) == 0 {
		m.body = nil
		return
	}
	m.body = append(make([]byte, 0, len(b)), b...)
}

// ContentLength returns the parsed Content-Length header, or -1 if it is
// absent or not a non-negative integer.
func (m *Message) ContentLength() int {
	v, ok := m.Header(HeaderContentLength)
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return -1
	}
	return n
}
