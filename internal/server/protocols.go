package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/ezbox-project/go-ezcfg/internal/igrs"
	"github.com/ezbox-project/go-ezcfg/internal/nvramrpc"
	"github.com/ezbox-project/go-ezcfg/pkg/httpmsg"
	"github.com/ezbox-project/go-ezcfg/pkg/soaphttp"
)

// HTTPVersionNotSupported is the 505 reason phrase of the plain HTTP protocol.
const HTTPVersionNotSupported = "HTTP version not supported"

// NewFactory returns the protocol objects served by ezcd. SOAP/HTTP requests
// are handed to handler; SOAP documents hold at most maxElements elements.
func NewFactory(handler *nvramrpc.Handler, maxElements int) Factory {
	httpPool := &sync.Pool{New: func() any {
		return &httpProtocol{msg: httpmsg.New()}
	}}
	soapPool := &sync.Pool{New: func() any {
		return &soapHTTPProtocol{msg: soaphttp.New(maxElements)}
	}}
	igrsPool := &sync.Pool{New: func() any {
		return &igrsProtocol{msg: igrs.New(maxElements)}
	}}

	return Factory{
		ProtoHTTP: func() Protocol {
			p := httpPool.Get().(*httpProtocol)
			p.pool = httpPool
			return p
		},
		ProtoSOAPHTTP: func() Protocol {
			p := soapPool.Get().(*soapHTTPProtocol)
			p.pool = soapPool
			p.handler = handler
			return p
		},
		ProtoIGRS: func() Protocol {
			p := igrsPool.Get().(*igrsProtocol)
			p.pool = igrsPool
			return p
		},
	}
}

// writeOK writes a bare "200 OK" status line and the empty line.
func writeOK(msg *httpmsg.Message, w io.Writer) error {
	msg.Reset()
	msg.SetStatus(200)
	msg.SetStateResponse()
	_, err := msg.WriteTo(w)
	return err
}

type httpProtocol struct {
	msg  *httpmsg.Message
	pool *sync.Pool
}

func (p *httpProtocol) Reset() { p.msg.Reset() }

func (p *httpProtocol) Parse(buf []byte) error {
	if err := p.msg.ParseRequest(buf); err != nil {
		return err
	}
	if major, minor := p.msg.Version(); major != 1 || minor != 1 {
		return &VersionError{Reason: HTTPVersionNotSupported}
	}
	return nil
}

func (p *httpProtocol) ContentLength() int { return p.msg.ContentLength() }

func (p *httpProtocol) SetBody(body []byte) { p.msg.SetBody(body) }

func (p *httpProtocol) Handle(ctx context.Context, w io.Writer) error {
	return writeOK(p.msg, w)
}

func (p *httpProtocol) Release() {
	p.msg.Reset()
	p.pool.Put(p)
}

type soapHTTPProtocol struct {
	msg     *soaphttp.Message
	handler *nvramrpc.Handler
	pool    *sync.Pool
}

func (p *soapHTTPProtocol) Reset() { p.msg.Reset() }

func (p *soapHTTPProtocol) Parse(buf []byte) error {
	if err := p.msg.ParseRequest(buf); err != nil {
		return err
	}
	if !p.msg.VersionSupported() {
		return &VersionError{Reason: soaphttp.VersionNotSupported}
	}
	return nil
}

func (p *soapHTTPProtocol) ContentLength() int { return p.msg.HTTP.ContentLength() }

func (p *soapHTTPProtocol) SetBody(body []byte) { p.msg.SetBody(body) }

func (p *soapHTTPProtocol) Handle(ctx context.Context, w io.Writer) error {
	if err := p.handler.Handle(ctx, p.msg); err != nil {
		if errors.Is(err, nvramrpc.ErrUnknownOperation) {
			return fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return err
	}
	_, err := p.msg.WriteTo(w)
	return err
}

func (p *soapHTTPProtocol) Release() {
	p.msg.Reset()
	p.handler = nil
	p.pool.Put(p)
}

// igrsProtocol answers every well formed IGRS/1.0 request with 200 OK.
type igrsProtocol struct {
	msg  *igrs.Message
	pool *sync.Pool
}

func (p *igrsProtocol) Reset() { p.msg.Reset() }

func (p *igrsProtocol) Parse(buf []byte) error {
	if err := p.msg.ParseRequest(buf); err != nil {
		return err
	}
	if !p.msg.VersionSupported() {
		return &VersionError{Reason: igrs.VersionNotSupported}
	}
	return nil
}

func (p *igrsProtocol) ContentLength() int { return p.msg.HTTP.ContentLength() }

func (p *igrsProtocol) SetBody(body []byte) { p.msg.HTTP.SetBody(body) }

func (p *igrsProtocol) Handle(ctx context.Context, w io.Writer) error {
	return writeOK(p.msg.HTTP, w)
}

func (p *igrsProtocol) Release() {
	p.msg.Reset()
	p.pool.Put(p)
}
