package nvramrpc

import (
	"errors"

	"github.com/ezbox-project/go-ezcfg/internal/storage"
	"github.com/ezbox-project/go-ezcfg/pkg/soap"
)

// Response vocabulary.
const (
	NamespaceAttr = "xmlns:nvns"
	Namespace     = "http://www.ezbox.org/nvram"

	ElementNVRAM  = "nvram"
	ElementName   = "Name"
	ElementValue  = "Value"
	ElementResult = "Result"

	ResultOK = "OK"
)

// Fault reasons.
const (
	ReasonInvalidName  = "invalid nvram name"
	ReasonInvalidValue = "invalid nvram value"
	ReasonOperation    = "nvram operation fail"
)

// result is the outcome of one operation before it is rendered.
type result struct {
	fault string
	cause error

	// direct children of the response element, in order
	fields []storage.Entry
	// nvram{Name,Value} rows after fields
	rows []storage.Entry
}

func okResult() *result {
	return &result{fields: []storage.Entry{{Name: ElementResult, Value: ResultOK}}}
}

// faultElements is the size of a Fault sub-tree: Fault, Code, Value,
// Reason and Text.
const faultElements = 5

// elements returns the number of SOAP elements build needs for res.
func (res *result) elements() int {
	// envelope and body
	n := 2
	if res.fault != "" {
		return n + faultElements
	}
	return n + 1 + len(res.fields) + 3*len(res.rows)
}

func faultResult(reason string, cause error) *result {
	return &result{fault: reason, cause: cause}
}

// ResponseElement returns the name of the response element of op.
func ResponseElement(op string) string {
	return "nvns:" + op + "Response"
}

// build renders res as the SOAP document of msg. Faults go directly under
// the body; everything else under the operation's response element.
func build(doc *soap.Document, op string, res *result) error {
	doc.SetVersion(1, 2)
	body := doc.InitEnvelope()
	if body < 0 {
		return ErrResourceExhausted
	}

	if res.fault != "" {
		code := soap.FaultCodeSender
		if errors.Is(res.cause, storage.ErrBackend) {
			code = soap.FaultCodeReceiver
		}
		if doc.AddFault(body, code, res.fault) < 0 {
			return ErrResourceExhausted
		}
		return nil
	}

	resp := doc.AddBodyChild(body, -1, ResponseElement(op), "")
	if resp < 0 {
		return ErrResourceExhausted
	}
	doc.AddBodyChildAttribute(resp, NamespaceAttr, Namespace, soap.AttrTail)

	for _, f := range res.fields {
		if doc.AddBodyChild(resp, -1, f.Name, f.Value) < 0 {
			return ErrResourceExhausted
		}
	}
	for _, row := range res.rows {
		node := doc.AddBodyChild(resp, -1, ElementNVRAM, "")
		if node < 0 {
			return ErrResourceExhausted
		}
		if doc.AddBodyChild(node, -1, ElementName, row.Name) < 0 {
			return ErrResourceExhausted
		}
		if doc.AddBodyChild(node, -1, ElementValue, row.Value) < 0 {
			return ErrResourceExhausted
		}
	}
	return nil
}
