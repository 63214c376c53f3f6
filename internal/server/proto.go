package server

import (
	"context"
	"errors"
	"io"
)

// Proto identifies the protocol spoken on a listener.
type Proto int

const (
	ProtoUnknown Proto = iota
	ProtoHTTP
	ProtoSOAPHTTP
	ProtoIGRS
)

var protoNames = [...]string{
	ProtoUnknown:  "unknown",
	ProtoHTTP:     "http",
	ProtoSOAPHTTP: "soap-http",
	ProtoIGRS:     "igrs",
}

// String returns the configuration spelling of p.
func (p Proto) String() string {
	if p < 0 || int(p) >= len(protoNames) {
		return protoNames[ProtoUnknown]
	}
	return protoNames[p]
}

// ParseProto returns the protocol named s, or ProtoUnknown.
func ParseProto(s string) Proto {
	for i := ProtoHTTP; int(i) < len(protoNames); i++ {
		if protoNames[i] == s {
			return i
		}
	}
	return ProtoUnknown
}

// ErrBadRequest is returned by Protocol.Handle when the request is well
// formed but cannot be served. The worker answers it with 400.
var ErrBadRequest = errors.New("bad request")

// VersionError is returned by Protocol.Parse when the request carries a
// protocol version the server does not speak. Reason is the status phrase of
// the 505 answer.
type VersionError struct {
	Reason string
}

func (e *VersionError) Error() string {
	return "unsupported version: " + e.Reason
}

// Protocol is the per-connection message object of one protocol.
type Protocol interface {
	// Reset clears all per-request state.
	Reset()
	// Parse parses the request line and headers in buf.
	Parse(buf []byte) error
	// ContentLength returns the announced body length, or -1 if none.
	ContentLength() int
	// SetBody attaches the request body.
	SetBody(body []byte)
	// Handle serves the parsed request and writes the response to w.
	Handle(ctx context.Context, w io.Writer) error
	// Release returns the object to its factory. It must not be used after.
	Release()
}

// Factory makes protocol objects by tag. A tag without an entry is not
// served.
type Factory map[Proto]func() Protocol
