// Package igrs implements the framing of IGRS device session messages. IGRS
// runs HTTP/1.1 with its own method set and carries its protocol version and
// message type in numbered extension headers.
package igrs

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ezbox-project/go-ezcfg/pkg/httpmsg"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
)

// Methods is the request method table of IGRS. Only M-POST is used.
var Methods = httpmsg.MethodTable{"", "M-POST"}

// IGRS header names.
const (
	HeaderVersion        = "01-IGRSVersion"
	HeaderMessageType    = "01-IGRSMessageType"
	HeaderTargetDeviceID = "01-TargetDeviceId"
	HeaderSourceDeviceID = "01-SourceDeviceId"
	HeaderSequenceID     = "01-SequenceId"
	HeaderSoapAction     = "02-SoapAction"
)

const (
	// RequestURI is the path every IGRS request is posted to.
	RequestURI = "/IGRS"
	// ContentType is the media type of IGRS message bodies.
	ContentType = "text/xml;charset=utf-8"
	// VersionNotSupported is the 505 reason phrase for a non 1.0 request.
	VersionNotSupported = "IGRS version not supported"

	sessionMan  = `"http://www.igrs.org/session";ns=01`
	envelopeMan = `"http://www.w3.org/2002/12/soap-envelope";ns=02`
)

var (
	// ErrUnknownMessageType means a message type has no builder.
	ErrUnknownMessageType = errors.New("igrs: unknown message type")
	// ErrNoMessage means WriteMessage was called before a message was built.
	ErrNoMessage = errors.New("igrs: no message built")
)

// Message is one IGRS exchange: the HTTP framing plus an optional SOAP body.
type Message struct {
	HTTP *httpmsg.Message
	SOAP *soap.Document

	msgType MessageType
}

// New returns an empty message whose SOAP document holds at most
// maxElements elements.
func New(maxElements int) *Message {
	return &Message{
		HTTP: httpmsg.NewWithMethods(Methods),
		SOAP: soap.New(maxElements),
	}
}

// Reset clears the message for reuse.
func (m *Message) Reset() {
	m.HTTP.Reset()
	m.SOAP.Reset()
	m.msgType = MessageUnknown
}

// ParseRequest parses the HTTP request line and headers in buf and records
// the announced message type, if any.
func (m *Message) ParseRequest(buf []byte) error {
	if err := m.HTTP.ParseRequest(buf); err != nil {
		return err
	}
	if v, ok := m.HTTP.Header(HeaderMessageType); ok {
		m.msgType = ParseMessageType(strings.TrimSpace(v))
	}
	return nil
}

// MessageType returns the type of the parsed or built message.
func (m *Message) MessageType() MessageType { return m.msgType }

// Version returns the IGRS version announced in the 01-IGRSVersion header.
func (m *Message) Version() (major, minor int, ok bool) {
	v, found := m.HTTP.Header(HeaderVersion)
	if !found {
		return 0, 0, false
	}
	return parseVersion(strings.TrimSpace(v))
}

// VersionSupported reports whether the request is IGRS/1.0 over HTTP/1.1.
func (m *Message) VersionSupported() bool {
	if major, minor := m.HTTP.Version(); major != 1 || minor != 1 {
		return false
	}
	major, minor, ok := m.Version()
	return ok && major == 1 && minor == 0
}

func parseVersion(v string) (major, minor int, ok bool) {
	rest, found := strings.CutPrefix(v, "IGRS/")
	if !found {
		return 0, 0, false
	}
	majStr, minStr, found := strings.Cut(rest, ".")
	if !found {
		return 0, 0, false
	}
	var err error
	if major, err = strconv.Atoi(majStr); err != nil || major < 0 {
		return 0, 0, false
	}
	if minor, err = strconv.Atoi(minStr); err != nil || minor < 0 {
		return 0, 0, false
	}
	return major, minor, true
}

// SessionParams identifies the two ends of a CreateSession exchange.
type SessionParams struct {
	Host           string
	TargetDeviceID string
	SourceDeviceID string
	SequenceID     uint32
}

// BuildCreateSessionRequest turns m into a CreateSessionRequest addressed
// with p.
func (m *Message) BuildCreateSessionRequest(p SessionParams) error {
	m.Reset()

	m.SOAP.SetVersion(1, 2)
	body := m.SOAP.InitEnvelope()
	if body < 0 {
		return fmt.Errorf("igrs: build %s: soap document full", CreateSessionRequest)
	}
	if m.SOAP.AddBodyChild(body, -1, CreateSessionRequest.String(), "") < 0 {
		return fmt.Errorf("igrs: build %s: soap document full", CreateSessionRequest)
	}
	payload := m.SOAP.AppendMessage(nil)

	h := m.HTTP
	h.SetMethod("M-POST")
	h.SetRequestURI(RequestURI)
	h.SetVersion(1, 1)
	h.SetStateRequest()
	h.SetBody(payload)

	headers := []httpmsg.Header{
		{Name: httpmsg.HeaderHost, Value: p.Host},
		{Name: httpmsg.HeaderMan, Value: sessionMan},
		{Name: HeaderVersion, Value: "IGRS/1.0"},
		{Name: HeaderMessageType, Value: CreateSessionRequest.String()},
		{Name: HeaderTargetDeviceID, Value: p.TargetDeviceID},
		{Name: HeaderSourceDeviceID, Value: p.SourceDeviceID},
		{Name: HeaderSequenceID, Value: strconv.FormatUint(uint64(p.SequenceID), 10)},
		{Name: httpmsg.HeaderContentType, Value: ContentType},
		{Name: httpmsg.HeaderContentLength, Value: strconv.Itoa(len(payload))},
		{Name: httpmsg.HeaderMan, Value: envelopeMan},
		{Name: HeaderSoapAction, Value: `"IGRS-CreateSession-Request"`},
	}
	for _, hdr := range headers {
		if !h.AddHeader(hdr.Name, hdr.Value) {
			return fmt.Errorf("igrs: invalid header %s: %q", hdr.Name, hdr.Value)
		}
	}

	m.msgType = CreateSessionRequest
	return nil
}

// BuildMessage builds a message of type t. Only CreateSessionRequest has a
// builder.
func (m *Message) BuildMessage(t MessageType, p SessionParams) error {
	if t != CreateSessionRequest {
		return fmt.Errorf("%w: %s", ErrUnknownMessageType, t)
	}
	return m.BuildCreateSessionRequest(p)
}

// WriteMessage writes the built message into buf and returns the number of
// bytes written, or -1 if no message was built or buf is too small.
func (m *Message) WriteMessage(buf []byte) int {
	if m.msgType == MessageUnknown || m.HTTP.State() != httpmsg.StateRequest {
		return -1
	}
	return m.HTTP.WriteMessage(buf)
}

// WriteTo serializes the built message to w.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	if m.msgType == MessageUnknown {
		return 0, ErrNoMessage
	}
	return m.HTTP.WriteTo(w)
}
