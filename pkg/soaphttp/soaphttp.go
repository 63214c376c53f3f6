// Package soaphttp binds a SOAP envelope to an HTTP message: SOAP requests
// arrive as HTTP request bodies and responses are SOAP envelopes wrapped in
// an HTTP 200 response.
package soaphttp

import (
	"io"
	"strconv"

	"github.com/ezbox-project/go-ezcfg/pkg/httpmsg"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
)

const (
	// ContentType is the media type of every SOAP/HTTP body.
	ContentType = `application/soap+xml; charset="utf-8"`
	// VersionNotSupported is the 505 reason phrase for a non HTTP/1.1 request.
	VersionNotSupported = "SOAP/HTTP binding version not supported"
)

// Message is one SOAP/HTTP exchange. The same instance holds the parsed
// request and, after SetSOAPResponse, the response.
type Message struct {
	HTTP *httpmsg.Message
	SOAP *soap.Document

	maxElements int
	bodyErr     error
}

// New returns an empty message whose SOAP document holds at most
// maxElements elements.
func New(maxElements int) *Message {
	if maxElements <= 0 {
		maxElements = soap.DefaultMaxElements
	}
	return &Message{
		HTTP: httpmsg.New(),
		SOAP: soap.New(maxElements),

		maxElements: maxElements,
	}
}

// Reset clears both the HTTP and SOAP parts. A document enlarged by
// ReserveResponse goes back to the request capacity.
func (m *Message) Reset() {
	m.HTTP.Reset()
	m.resetSOAP()
	m.bodyErr = nil
}

func (m *Message) resetSOAP() {
	if m.SOAP.MaxElements() != m.maxElements {
		m.SOAP = soap.New(m.maxElements)
		return
	}
	m.SOAP.Reset()
}

// ReserveResponse makes the SOAP document able to hold a response of n
// elements. The request capacity only bounds parsing; a larger document is
// used until the next Reset or SetBody.
func (m *Message) ReserveResponse(n int) {
	if n <= m.SOAP.MaxElements() {
		return
	}
	major, minor := m.SOAP.Version()
	m.SOAP = soap.New(n)
	m.SOAP.SetVersion(major, minor)
}

// ParseRequest parses the HTTP request line and headers in buf.
func (m *Message) ParseRequest(buf []byte) error {
	return m.HTTP.ParseRequest(buf)
}

// VersionSupported reports whether the request is HTTP/1.1, the only
// version the binding accepts.
func (m *Message) VersionSupported() bool {
	major, minor := m.HTTP.Version()
	return major == 1 && minor == 1
}

// SetBody attaches the request body and, if it is not empty, parses it as a
// SOAP envelope. A parse failure is kept in BodyError and leaves the
// document empty, so element lookups find nothing.
func (m *Message) SetBody(body []byte) {
	m.HTTP.SetBody(body)
	m.resetSOAP()
	m.bodyErr = nil
	if len(body) == 0 {
		return
	}
	if err := m.SOAP.Parse(body); err != nil {
		m.bodyErr = err
		m.SOAP.Reset()
	}
}

// BodyError returns the SOAP parse error of the last SetBody, if any.
func (m *Message) BodyError() error { return m.bodyErr }

// AppendSOAPMessage appends the XML prologue, a newline and the serialized
// envelope to dst.
func (m *Message) AppendSOAPMessage(dst []byte) []byte {
	dst = append(dst, soap.Prologue...)
	dst = append(dst, '\n')
	return m.SOAP.AppendMessage(dst)
}

// SetSOAPResponse turns the message into an HTTP 200 response carrying the
// current SOAP document.
func (m *Message) SetSOAPResponse() {
	body := m.AppendSOAPMessage(nil)

	m.HTTP.Reset()
	m.HTTP.SetStatus(200)
	m.HTTP.SetStateResponse()
	m.HTTP.SetBody(body)
	m.HTTP.AddHeader(httpmsg.HeaderContentType, ContentType)
	m.HTTP.AddHeader(httpmsg.HeaderContentLength, strconv.Itoa(len(body)))
}

// SetSOAPRequest turns the message into an HTTP request carrying the current
// SOAP document, for clients of the RPC interface.
func (m *Message) SetSOAPRequest(method, uri, host string) bool {
	body := m.AppendSOAPMessage(nil)

	m.HTTP.Reset()
	if !m.HTTP.SetMethod(method) {
		return false
	}
	m.HTTP.SetRequestURI(uri)
	m.HTTP.SetStateRequest()
	m.HTTP.SetBody(body)
	if host != "" {
		m.HTTP.AddHeader(httpmsg.HeaderHost, host)
	}
	m.HTTP.AddHeader(httpmsg.HeaderContentType, ContentType)
	m.HTTP.AddHeader(httpmsg.HeaderContentLength, strconv.Itoa(len(body)))
	return true
}

// WriteTo serializes the HTTP message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	return m.HTTP.WriteTo(w)
}
