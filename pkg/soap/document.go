// Package soap implements a small SOAP 1.2 document model.
//
// A Document is an arena of elements addressed by integer index. Index 0 is
// never a valid element, index 1 is the envelope and every element at index 2
// or above is the body, a header block, or one of their descendants. Lookups
// return 0 when nothing matches, and callers must treat any index below
// IndexFirstChild as "not present".
package soap

import (
	"errors"
	"strings"
)

// Arena indices with a fixed meaning.
const (
	IndexInvalid    = 0
	IndexEnvelope   = 1
	IndexFirstChild = 2
)

// DefaultMaxElements is used by New when a non-positive capacity is given.
const DefaultMaxElements = 128

// SOAP 1.2 names used when building documents.
const (
	Prologue = `<?xml version="1.0" encoding="utf-8"?>`

	EnvelopeName    = "env:Envelope"
	BodyName        = "env:Body"
	EnvelopeNSAttr  = "xmlns:env"
	EnvelopeNS      = "http://www.w3.org/2003/05/soap-envelope"
	EncodingStyleNS = "http://www.w3.org/2003/05/soap-encoding"

	FaultName  = "env:Fault"
	CodeName   = "env:Code"
	ValueName  = "env:Value"
	ReasonName = "env:Reason"
	TextName   = "env:Text"

	FaultCodeSender   = "env:Sender"
	FaultCodeReceiver = "env:Receiver"
)

var (
	// ErrCapacity is returned when the document has no room for another element
	ErrCapacity = errors.New("soap: element capacity exceeded")
	// ErrSyntax is returned for malformed XML input
	ErrSyntax = errors.New("soap: syntax error")
	// ErrNotEnvelope is returned when the root element is not an Envelope
	ErrNotEnvelope = errors.New("soap: root element is not an envelope")
)

// AttrPosition selects where a new attribute goes in an element's list.
type AttrPosition int

const (
	AttrTail AttrPosition = iota
	AttrHead
)

// Attr is a name/value attribute. Order is kept on output.
type Attr struct {
	Name  string
	Value string
}

type element struct {
	name    string
	content string
	attrs   []Attr

	parent     int
	firstChild int
	lastChild  int
	next       int
}

// Document is one SOAP envelope. It is not safe for concurrent use.
type Document struct {
	elements []element
	max      int
	body     int
	major    int
	minor    int
}

// New returns an empty document that holds at most maxElements elements,
// the envelope included.
func New(maxElements int) *Document {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	return &Document{
		elements: make([]element, 1, maxElements+1),
		max:      maxElements,
		major:    1,
		minor:    2,
	}
}

// Reset drops every element so the document can be rebuilt. Capacity and
// version are kept.
func (d *Document) Reset() {
	for i := range d.elements {
		d.elements[i] = element{}
	}
	d.elements = d.elements[:1]
	d.body = IndexInvalid
}

// Version returns the SOAP version of the document.
func (d *Document) Version() (major, minor int) { return d.major, d.minor }

// SetVersion sets the SOAP version of the document.
func (d *Document) SetVersion(major, minor int) {
	d.major, d.minor = major, minor
}

// MaxElements returns the element capacity.
func (d *Document) MaxElements() int { return d.max }

// Len returns the number of elements in use.
func (d *Document) Len() int { return len(d.elements) - 1 }

// SetEnvelope creates or renames the envelope element and returns its index.
func (d *Document) SetEnvelope(name string) int {
	if len(d.elements) > IndexEnvelope {
		d.elements[IndexEnvelope].name = name
		return IndexEnvelope
	}
	d.elements = append(d.elements, element{name: name})
	return IndexEnvelope
}

// AddEnvelopeAttribute adds an attribute to the envelope. It reports false
// if there is no envelope yet.
func (d *Document) AddEnvelopeAttribute(name, value string, pos AttrPosition) bool {
	return d.addAttribute(IndexEnvelope, name, value, pos)
}

// SetBody creates the body element under the envelope, or renames it if it
// already exists. It returns the body index or -1 when there is no envelope
// or no room.
func (d *Document) SetBody(name string) int {
	if d.valid(d.body) {
		d.elements[d.body].name = name
		return d.body
	}
	idx := d.addChild(IndexEnvelope, -1, name, "")
	if idx < 0 {
		return -1
	}
	d.body = idx
	return idx
}

// BodyIndex returns the body index, or 0 if the document has no body.
func (d *Document) BodyIndex() int { return d.body }

// AddBodyChild adds an element under parent, which must be the body or one
// of its descendants. With after == -1 the element becomes the last child;
// otherwise it is inserted right after the sibling at index after. It
// returns the new index, or -1 if the arena is full or the indices are
// invalid.
func (d *Document) AddBodyChild(parent, after int, name, content string) int {
	if parent < IndexFirstChild {
		return -1
	}
	return d.addChild(parent, after, name, content)
}

// AddBodyChildAttribute adds an attribute to the element at index.
func (d *Document) AddBodyChildAttribute(index int, name, value string, pos AttrPosition) bool {
	if index < IndexFirstChild {
		return false
	}
	return d.addAttribute(index, name, value, pos)
}

// ElementIndex returns the first child of parent named name that follows the
// sibling after (after == -1 starts from the first child). Names match on the
// full qualified name, or on the local part when name has no prefix, ignoring
// ASCII case. It returns 0 when no element matches.
func (d *Document) ElementIndex(parent, after int, name string) int {
	if !d.valid(parent) {
		return IndexInvalid
	}
	i := d.elements[parent].firstChild
	if after > 0 {
		if !d.valid(after) || d.elements[after].parent != parent {
			return IndexInvalid
		}
		i = d.elements[after].next
	}
	for ; i != IndexInvalid; i = d.elements[i].next {
		if nameMatches(d.elements[i].name, name) {
			return i
		}
	}
	return IndexInvalid
}

// ElementContent returns the text content of the element at index.
func (d *Document) ElementContent(index int) string {
	if !d.valid(index) {
		return ""
	}
	return d.elements[index].content
}

// ElementName returns the qualified name of the element at index.
func (d *Document) ElementName(index int) string {
	if !d.valid(index) {
		return ""
	}
	return d.elements[index].name
}

// ElementAttribute returns the value of the named attribute of the element
// at index.
func (d *Document) ElementAttribute(index int, name string) (string, bool) {
	if !d.valid(index) {
		return "", false
	}
	for _, a := range d.elements[index].attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Parent returns the parent index of the element at index.
func (d *Document) Parent(index int) int {
	if !d.valid(index) {
		return IndexInvalid
	}
	return d.elements[index].parent
}

// Children returns the child indices of parent in document order.
func (d *Document) Children(parent int) []int {
	if !d.valid(parent) {
		return nil
	}
	var out []int
	for i := d.elements[parent].firstChild; i != IndexInvalid; i = d.elements[i].next {
		out = append(out, i)
	}
	return out
}

// AddFault builds the Fault > Code > Value and Fault > Reason > Text sub-tree
// under parent and returns the Fault index, or -1 if the arena is full.
func (d *Document) AddFault(parent int, code, reason string) int {
	fault := d.AddBodyChild(parent, -1, FaultName, "")
	if fault < 0 {
		return -1
	}
	codeIdx := d.AddBodyChild(fault, -1, CodeName, "")
	if codeIdx < 0 {
		return -1
	}
	if d.AddBodyChild(codeIdx, -1, ValueName, code) < 0 {
		return -1
	}
	reasonIdx := d.AddBodyChild(fault, -1, ReasonName, "")
	if reasonIdx < 0 {
		return -1
	}
	text := d.AddBodyChild(reasonIdx, -1, TextName, reason)
	if text < 0 {
		return -1
	}
	d.AddBodyChildAttribute(text, "xml:lang", "en", AttrTail)
	return fault
}

// InitEnvelope resets the document and creates the standard SOAP 1.2
// envelope and body, returning the body index or -1 if capacity is too small.
func (d *Document) InitEnvelope() int {
	d.Reset()
	d.SetEnvelope(EnvelopeName)
	d.AddEnvelopeAttribute(EnvelopeNSAttr, EnvelopeNS, AttrTail)
	return d.SetBody(BodyName)
}

func (d *Document) valid(index int) bool {
	return index > IndexInvalid && index < len(d.elements)
}

func (d *Document) addChild(parent, after int, name, content string) int {
	if !d.valid(parent) {
		return -1
	}
	if after > 0 && (!d.valid(after) || d.elements[after].parent != parent) {
		return -1
	}
	if len(d.elements)-1 >= d.max {
		return -1
	}

	idx := len(d.elements)
	d.elements = append(d.elements, element{name: name, content: content, parent: parent})
	p := &d.elements[parent]

	switch {
	case after > 0:
		prev := &d.elements[after]
		d.elements[idx].next = prev.next
		prev.next = idx
		if p.lastChild == after {
			p.lastChild = idx
		}
	case p.firstChild == IndexInvalid:
		p.firstChild = idx
		p.lastChild = idx
	default:
		d.elements[p.lastChild].next = idx
		p.lastChild = idx
	}
	return idx
}

func (d *Document) addAttribute(index int, name, value string, pos AttrPosition) bool {
	if !d.valid(index) || name == "" {
		return false
	}
	e := &d.elements[index]
	a := Attr{Name: name, Value: value}
	if pos == AttrHead {
		e.attrs = append([]Attr{a}, e.attrs...)
	} else {
		e.attrs = append(e.attrs, a)
	}
	return true
}

func localName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func nameMatches(elementName, query string) bool {
	if strings.EqualFold(elementName, query) {
		return true
	}
	if strings.IndexByte(query, ':') >= 0 {
		return false
	}
	return strings.EqualFold(localName(elementName), query)
}
