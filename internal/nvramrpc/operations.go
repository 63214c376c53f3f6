package nvramrpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
	"github.com/ezbox-project/go-ezcfg/pkg/soaphttp"
)

var errMalformedBatch = errors.New("malformed nvram batch")

func opURI(op string) string {
	return BaseURI + "/" + op
}

// queryName extracts the entry name of a get or unset request. The URI form
// is preferred; a request dispatched by body element carries a name child.
func queryName(msg *soaphttp.Message, op string, offset int, checked bool) (string, bool) {
	if rest, found := strings.CutPrefix(msg.HTTP.RequestURI(), opURI(op)); found {
		if checked && !strings.HasPrefix(rest, NameQuery) {
			return "", false
		}
		if len(rest) < offset {
			return "", true
		}
		return rest[offset:], true
	}

	doc := msg.SOAP
	parent := doc.ElementIndex(doc.BodyIndex(), -1, op)
	idx := doc.ElementIndex(parent, -1, ElementName)
	if idx < soap.IndexFirstChild {
		return "", false
	}
	return doc.ElementContent(idx), true
}

// parseBatch collects the nvram{name,value} children of the body element
// op. Any node without a name or value rejects the whole batch.
func parseBatch(doc *soap.Document, op string) ([]storage.Entry, error) {
	parent := doc.ElementIndex(doc.BodyIndex(), -1, op)
	if parent < soap.IndexFirstChild {
		return nil, fmt.Errorf("%w: no %s element", errMalformedBatch, op)
	}

	var entries []storage.Entry
	node := doc.ElementIndex(parent, -1, ElementNVRAM)
	for node != soap.IndexInvalid {
		nameIdx := doc.ElementIndex(node, -1, ElementName)
		if nameIdx < soap.IndexFirstChild {
			return nil, fmt.Errorf("%w: entry %d has no name", errMalformedBatch, len(entries))
		}
		valueIdx := doc.ElementIndex(node, nameIdx, ElementValue)
		if valueIdx < soap.IndexFirstChild {
			return nil, fmt.Errorf("%w: entry %d has no value", errMalformedBatch, len(entries))
		}
		entries = append(entries, storage.Entry{
			Name:  doc.ElementContent(nameIdx),
			Value: doc.ElementContent(valueIdx),
		})
		node = doc.ElementIndex(parent, node, ElementNVRAM)
	}
	return entries, nil
}

func (h *Handler) get(ctx context.Context, msg *soaphttp.Message) *result {
	name, found := queryName(msg, OpGet, GetNameOffset, true)
	if !found {
		return faultResult(ReasonInvalidName, storage.ErrInvalidName)
	}

	value, err := h.store.Get(ctx, name)
	if err != nil {
		return faultResult(ReasonInvalidName, err)
	}
	return &result{fields: []storage.Entry{
		{Name: ElementName, Value: name},
		{Name: ElementValue, Value: value},
	}}
}

func (h *Handler) set(ctx context.Context, msg *soaphttp.Message) *result {
	doc := msg.SOAP
	parent := doc.ElementIndex(doc.BodyIndex(), -1, OpSet)
	nameIdx := doc.ElementIndex(parent, -1, ElementName)
	if nameIdx < soap.IndexFirstChild {
		return faultResult(ReasonInvalidValue, storage.ErrInvalidName)
	}
	valueIdx := doc.ElementIndex(parent, nameIdx, ElementValue)
	if valueIdx < soap.IndexFirstChild {
		return faultResult(ReasonInvalidValue, storage.ErrInvalidValue)
	}

	name, value := doc.ElementContent(nameIdx), doc.ElementContent(valueIdx)
	if err := h.store.Set(ctx, name, value); err != nil {
		return faultResult(ReasonInvalidValue, err)
	}
	return okResult()
}

func (h *Handler) unset(ctx context.Context, msg *soaphttp.Message) *result {
	name, found := queryName(msg, OpUnset, UnsetNameOffset, false)
	if !found {
		return faultResult(ReasonInvalidName, storage.ErrInvalidName)
	}

	if _, err := h.store.Get(ctx, name); err != nil {
		return faultResult(ReasonInvalidName, err)
	}
	if err := h.store.Unset(ctx, name); err != nil {
		return faultResult(ReasonInvalidName, err)
	}
	return okResult()
}

// setMulti applies entries one by one. A failing entry stops the batch and
// leaves the earlier entries applied.
func (h *Handler) setMulti(ctx context.Context, msg *soaphttp.Message) *result {
	entries, err := parseBatch(msg.SOAP, OpSetMulti)
	if err != nil {
		return faultResult(ReasonInvalidValue, err)
	}

	for i, e := range entries {
		if err := h.store.Set(ctx, e.Name, e.Value); err != nil {
			if i > 0 {
				h.logger.Warn("Batch stopped after partial update",
					zap.Int("applied", i),
					zap.Int("total", len(entries)),
					zap.String("name", e.Name))
			}
			return faultResult(ReasonInvalidValue, err)
		}
	}
	return okResult()
}

func (h *Handler) list(ctx context.Context, msg *soaphttp.Message) *result {
	entries, err := h.store.List(ctx)
	if err != nil {
		return faultResult(ReasonOperation, err)
	}
	return &result{rows: entries}
}

func (h *Handler) commit(ctx context.Context, msg *soaphttp.Message) *result {
	if err := h.store.Commit(ctx); err != nil {
		return faultResult(ReasonOperation, err)
	}
	return okResult()
}

func (h *Handler) info(ctx context.Context, msg *soaphttp.Message) *result {
	info, err := h.store.Info(ctx)
	if err != nil {
		return faultResult(ReasonOperation, err)
	}
	return &result{rows: InfoRows(info)}
}

// InfoRows flattens info into the name/value rows of an infoNvram response.
func InfoRows(info *storage.Info) []storage.Entry {
	rows := []storage.Entry{
		{Name: "version", Value: info.Version},
		{Name: "total_space", Value: strconv.Itoa(info.TotalSpace)},
		{Name: "free_space", Value: strconv.Itoa(info.FreeSpace)},
		{Name: "used_space", Value: strconv.Itoa(info.UsedSpace)},
	}
	for i, s := range info.Storage {
		prefix := "storage[" + strconv.Itoa(i) + "]."
		rows = append(rows,
			storage.Entry{Name: prefix + "backend", Value: s.Backend},
			storage.Entry{Name: prefix + "coding", Value: s.Coding},
			storage.Entry{Name: prefix + "path", Value: s.Path},
		)
	}
	return rows
}

func (h *Handler) insertSocket(ctx context.Context, msg *soaphttp.Message) *result {
	entries, err := parseBatch(msg.SOAP, OpInsertSocket)
	if err != nil {
		return faultResult(ReasonInvalidValue, err)
	}
	if err := h.store.InsertSocket(ctx, entries); err != nil {
		return faultResult(ReasonInvalidValue, err)
	}
	return okResult()
}

func (h *Handler) removeSocket(ctx context.Context, msg *soaphttp.Message) *result {
	entries, err := parseBatch(msg.SOAP, OpRemoveSocket)
	if err != nil {
		return faultResult(ReasonInvalidValue, err)
	}
	if err := h.store.RemoveSocket(ctx, entries); err != nil {
		return faultResult(ReasonInvalidValue, err)
	}
	return okResult()
}
