package soap

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxDepth = 32

// Parse replaces the document with the envelope read from data. It accepts
// an optional XML declaration, comments, processing instructions, CDATA
// sections and the predefined and numeric character references. The first
// Body child of the envelope becomes the body index.
func (d *Document) Parse(data []byte) error {
	d.Reset()
	p := &parser{doc: d, data: data}

	p.skipMisc()
	if p.pos >= len(p.data) || p.data[p.pos] != '<' {
		return fmt.Errorf("%w: no root element", ErrSyntax)
	}

	name, attrs, empty, err := p.readStartTag()
	if err != nil {
		return err
	}
	if !strings.EqualFold(localName(name), "Envelope") {
		return fmt.Errorf("%w: got %q", ErrNotEnvelope, name)
	}
	d.SetEnvelope(name)
	d.elements[IndexEnvelope].attrs = attrs

	if !empty {
		if err := p.readContent(IndexEnvelope, name, 1); err != nil {
			return err
		}
	}

	p.skipMisc()
	if p.pos < len(p.data) {
		return fmt.Errorf("%w: trailing data after envelope", ErrSyntax)
	}

	d.body = d.ElementIndex(IndexEnvelope, -1, "Body")
	return nil
}

type parser struct {
	doc  *Document
	data []byte
	pos  int
}

func (p *parser) hasPrefix(s string) bool {
	return bytes.HasPrefix(p.data[p.pos:], []byte(s))
}

func (p *parser) skipWS() {
	for p.pos < len(p.data) {
		switch p.data[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

// skipUntil moves past the next occurrence of end, or to the end of input.
func (p *parser) skipUntil(end string) bool {
	i := bytes.Index(p.data[p.pos:], []byte(end))
	if i < 0 {
		p.pos = len(p.data)
		return false
	}
	p.pos += i + len(end)
	return true
}

// skipMisc skips whitespace, NUL padding, declarations and comments outside
// the root element.
func (p *parser) skipMisc() {
	for p.pos < len(p.data) {
		switch {
		case p.data[p.pos] == 0:
			p.pos++
		case p.hasPrefix("<?"):
			p.skipUntil("?>")
		case p.hasPrefix("<!--"):
			p.skipUntil("-->")
		case p.hasPrefix("<!"):
			p.skipUntil(">")
		default:
			before := p.pos
			p.skipWS()
			if p.pos == before {
				return
			}
		}
	}
}

func isNameByte(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '/', '>', '=', '<', '"', '\'':
		return false
	}
	return true
}

func (p *parser) readName() string {
	start := p.pos
	for p.pos < len(p.data) && isNameByte(p.data[p.pos]) {
		p.pos++
	}
	return string(p.data[start:p.pos])
}

// readStartTag reads "<name attr='v' ...>" or its self-closing form.
func (p *parser) readStartTag() (name string, attrs []Attr, empty bool, err error) {
	p.pos++ // '<'
	name = p.readName()
	if name == "" {
		return "", nil, false, fmt.Errorf("%w: empty element name at %d", ErrSyntax, p.pos)
	}

	for {
		p.skipWS()
		if p.pos >= len(p.data) {
			return "", nil, false, fmt.Errorf("%w: unterminated tag %q", ErrSyntax, name)
		}
		switch p.data[p.pos] {
		case '/':
			if !p.hasPrefix("/>") {
				return "", nil, false, fmt.Errorf("%w: bad empty tag %q", ErrSyntax, name)
			}
			p.pos += 2
			return name, attrs, true, nil
		case '>':
			p.pos++
			return name, attrs, false, nil
		}

		attrName := p.readName()
		if attrName == "" {
			return "", nil, false, fmt.Errorf("%w: bad attribute in %q", ErrSyntax, name)
		}
		p.skipWS()
		if p.pos >= len(p.data) || p.data[p.pos] != '=' {
			return "", nil, false, fmt.Errorf("%w: attribute %q has no value", ErrSyntax, attrName)
		}
		p.pos++
		p.skipWS()
		if p.pos >= len(p.data) || (p.data[p.pos] != '"' && p.data[p.pos] != '\'') {
			return "", nil, false, fmt.Errorf("%w: attribute %q is not quoted", ErrSyntax, attrName)
		}
		quote := p.data[p.pos]
		p.pos++
		end := bytes.IndexByte(p.data[p.pos:], quote)
		if end < 0 {
			return "", nil, false, fmt.Errorf("%w: unterminated attribute %q", ErrSyntax, attrName)
		}
		value, err := unescape(p.data[p.pos : p.pos+end])
		if err != nil {
			return "", nil, false, err
		}
		p.pos += end + 1
		attrs = append(attrs, Attr{Name: attrName, Value: value})
	}
}

// readContent reads text and child elements of the element at idx up to and
// including its end tag.
func (p *parser) readContent(idx int, name string, depth int) error {
	var text strings.Builder

	for {
		if p.pos >= len(p.data) {
			return fmt.Errorf("%w: element %q is not closed", ErrSyntax, name)
		}

		if p.data[p.pos] != '<' {
			end := bytes.IndexByte(p.data[p.pos:], '<')
			if end < 0 {
				end = len(p.data) - p.pos
			}
			s, err := unescape(p.data[p.pos : p.pos+end])
			if err != nil {
				return err
			}
			text.WriteString(s)
			p.pos += end
			continue
		}

		switch {
		case p.hasPrefix("</"):
			p.pos += 2
			endName := p.readName()
			p.skipWS()
			if endName != name || p.pos >= len(p.data) || p.data[p.pos] != '>' {
				return fmt.Errorf("%w: expected </%s>", ErrSyntax, name)
			}
			p.pos++
			e := &p.doc.elements[idx]
			if e.firstChild != IndexInvalid {
				e.content = strings.TrimSpace(text.String())
			} else {
				e.content = text.String()
			}
			return nil

		case p.hasPrefix("<!--"):
			if !p.skipUntil("-->") {
				return fmt.Errorf("%w: unterminated comment", ErrSyntax)
			}

		case p.hasPrefix("<![CDATA["):
			p.pos += len("<![CDATA[")
			end := bytes.Index(p.data[p.pos:], []byte("]]>"))
			if end < 0 {
				return fmt.Errorf("%w: unterminated CDATA section", ErrSyntax)
			}
			text.Write(p.data[p.pos : p.pos+end])
			p.pos += end + 3

		case p.hasPrefix("<?"):
			if !p.skipUntil("?>") {
				return fmt.Errorf("%w: unterminated processing instruction", ErrSyntax)
			}

		default:
			if depth >= maxDepth {
				return fmt.Errorf("%w: nesting deeper than %d", ErrSyntax, maxDepth)
			}
			childName, attrs, empty, err := p.readStartTag()
			if err != nil {
				return err
			}
			child := p.doc.addChild(idx, -1, childName, "")
			if child < 0 {
				return ErrCapacity
			}
			p.doc.elements[child].attrs = attrs
			if !empty {
				if err := p.readContent(child, childName, depth+1); err != nil {
					return err
				}
			}
		}
	}
}

var entities = map[string]string{
	"lt":   "<",
	"gt":   ">",
	"amp":  "&",
	"quot": `"`,
	"apos": "'",
}

func unescape(b []byte) (string, error) {
	if bytes.IndexByte(b, '&') < 0 {
		return string(b), nil
	}
	var sb strings.Builder
	for len(b) > 0 {
		amp := bytes.IndexByte(b, '&')
		if amp < 0 {
			sb.Write(b)
			break
		}
		sb.Write(b[:amp])
		b = b[amp+1:]
		semi := bytes.IndexByte(b, ';')
		if semi <= 0 {
			return "", fmt.Errorf("%w: bad character reference", ErrSyntax)
		}
		ref := string(b[:semi])
		b = b[semi+1:]

		if ref[0] == '#' {
			var n uint64
			var err error
			if len(ref) > 1 && (ref[1] == 'x' || ref[1] == 'X') {
				n, err = strconv.ParseUint(ref[2:], 16, 32)
			} else {
				n, err = strconv.ParseUint(ref[1:], 10, 32)
			}
			if err != nil || !utf8.ValidRune(rune(n)) {
				return "", fmt.Errorf("%w: bad character reference &%s;", ErrSyntax, ref)
			}
			sb.WriteRune(rune(n))
			continue
		}

		s, ok := entities[ref]
		if !ok {
			return "", fmt.Errorf("%w: unknown entity &%s;", ErrSyntax, ref)
		}
		sb.WriteString(s)
	}
	return sb.String(), nil
}
