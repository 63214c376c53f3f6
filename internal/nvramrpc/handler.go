// Package nvramrpc serves the NVRAM remote procedure calls carried over
// SOAP/HTTP. Each call maps to one store action and is answered with a SOAP
// envelope in an HTTP 200 response, including application faults.
package nvramrpc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
	"github.com/ezbox-project/go-ezcfg/pkg/soaphttp"
)

// BaseURI is the path prefix of every NVRAM operation.
const BaseURI = "/ezcfg/nvram/soap-http"

// Operation names. The request URI is BaseURI + "/" + name.
const (
	OpGet          = "getNvram"
	OpSet          = "setNvram"
	OpUnset        = "unsetNvram"
	OpSetMulti     = "setMultiNvram"
	OpList         = "listNvram"
	OpCommit       = "commitNvram"
	OpInfo         = "infoNvram"
	OpInsertSocket = "insertSocket"
	OpRemoveSocket = "removeSocket"
)

// Name offsets into the request URI of the query style operations. The get
// handler checks that NameQuery follows the operation path before skipping
// GetNameOffset bytes; unset skips UnsetNameOffset bytes unchecked.
const (
	NameQuery       = "?name="
	GetNameOffset   = len(NameQuery)
	UnsetNameOffset = len(NameQuery)
)

var (
	// ErrUnknownOperation means the request names no NVRAM operation.
	ErrUnknownOperation = errors.New("nvramrpc: unknown operation")
	// ErrResourceExhausted means the request body did not fit the SOAP
	// document, or the response could not be built.
	ErrResourceExhausted = errors.New("nvramrpc: soap document capacity exceeded")
)

// Recorder receives the outcome of every handled operation.
type Recorder interface {
	RecordRPC(op string, ok bool)
}

// Handler performs NVRAM operations for parsed SOAP/HTTP requests. It holds
// no per-request state and is safe for concurrent use when its store is.
type Handler struct {
	store    storage.Store
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Handler.
type Option func(*Handler)

// WithRecorder reports operation outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(h *Handler) { h.recorder = r }
}

// NewHandler creates a handler operating on store.
func NewHandler(store storage.Store, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		logger: logger.Named("nvramrpc"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type opFunc func(h *Handler, ctx context.Context, msg *soaphttp.Message) *result

var operations = map[string]opFunc{
	OpGet:          (*Handler).get,
	OpSet:          (*Handler).set,
	OpUnset:        (*Handler).unset,
	OpSetMulti:     (*Handler).setMulti,
	OpList:         (*Handler).list,
	OpCommit:       (*Handler).commit,
	OpInfo:         (*Handler).info,
	OpInsertSocket: (*Handler).insertSocket,
	OpRemoveSocket: (*Handler).removeSocket,
}

// Operation returns the operation a request asks for. The request URI is
// tried first; a request whose URI names no operation is dispatched by the
// first element inside the SOAP body. It returns "" if neither matches.
func Operation(msg *soaphttp.Message) string {
	uri := msg.HTTP.RequestURI()
	if rest, ok := strings.CutPrefix(uri, BaseURI+"/"); ok {
		// query style operations match on prefix
		for _, op := range []string{OpGet, OpUnset} {
			if strings.HasPrefix(rest, op) {
				return op
			}
		}
		if _, ok := operations[rest]; ok {
			return rest
		}
	}

	body := msg.SOAP.BodyIndex()
	for _, child := range msg.SOAP.Children(body) {
		name := msg.SOAP.ElementName(child)
		if i := strings.IndexByte(name, ':'); i >= 0 {
			name = name[i+1:]
		}
		for op := range operations {
			if strings.EqualFold(op, name) {
				return op
			}
		}
		break
	}
	return ""
}

// Handle performs the operation named by msg and replaces msg's content with
// the response. Store failures become SOAP faults and are not returned as
// errors. It returns ErrUnknownOperation when no operation matches and
// ErrResourceExhausted when the request body overflowed the SOAP document
// or the response could not be built, in which case msg holds no usable
// response. Responses are not bounded by the request capacity.
func (h *Handler) Handle(ctx context.Context, msg *soaphttp.Message) error {
	if err := msg.BodyError(); errors.Is(err, soap.ErrCapacity) {
		h.logger.Warn("NVRAM request exceeds SOAP capacity",
			zap.String("uri", msg.HTTP.RequestURI()),
			zap.Int("max_elements", msg.SOAP.MaxElements()))
		return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
	}

	op := Operation(msg)
	fn, ok := operations[op]
	if !ok {
		h.logger.Debug("Unknown NVRAM operation", zap.String("uri", msg.HTTP.RequestURI()))
		return ErrUnknownOperation
	}

	res := fn(h, ctx, msg)
	if res.fault != "" {
		h.logger.Info("NVRAM operation failed",
			zap.String("op", op),
			zap.String("reason", res.fault),
			zap.Error(res.cause))
	}
	if h.recorder != nil {
		h.recorder.RecordRPC(op, res.fault == "")
	}

	msg.ReserveResponse(res.elements())
	if err := build(msg.SOAP, op, res); err != nil {
		h.logger.Error("Failed to build NVRAM response", zap.String("op", op), zap.Error(err))
		return err
	}
	msg.SetSOAPResponse()
	return nil
}
