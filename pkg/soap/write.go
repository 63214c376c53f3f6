package soap

// AppendMessage appends the serialized envelope to dst. The XML prologue is
// not included.
func (d *Document) AppendMessage(dst []byte) []byte {
	if !d.valid(IndexEnvelope) {
		return dst
	}
	return d.appendElement(dst, IndexEnvelope)
}

// MessageLength returns the serialized length without writing anything.
func (d *Document) MessageLength() int {
	return len(d.AppendMessage(nil))
}

// WriteMessage serializes the envelope into buf. It never writes past
// len(buf) and returns the full serialized length, so a result larger than
// len(buf) means the output was truncated.
func (d *Document) WriteMessage(buf []byte) int {
	out := d.AppendMessage(nil)
	copy(buf, out)
	return len(out)
}

func (d *Document) appendElement(dst []byte, idx int) []byte {
	e := &d.elements[idx]
	dst = append(dst, '<')
	dst = append(dst, e.name...)
	for _, a := range e.attrs {
		dst = append(dst, ' ')
		dst = append(dst, a.Name...)
		dst = append(dst, '=', '"')
		dst = appendEscaped(dst, a.Value, true)
		dst = append(dst, '"')
	}
	dst = append(dst, '>')
	dst = appendEscaped(dst, e.content, false)
	for c := e.firstChild; c != IndexInvalid; c = d.elements[c].next {
		dst = d.appendElement(dst, c)
	}
	dst = append(dst, '<', '/')
	dst = append(dst, e.name...)
	return append(dst, '>')
}

func appendEscaped(dst []byte, s string, attr bool) []byte {
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			dst = append(dst, "&amp;"...)
		case '<':
			dst = append(dst, "&lt;"...)
		case '>':
			dst = append(dst, "&gt;"...)
		case '"':
			if attr {
				dst = append(dst, "&quot;"...)
			} else {
				dst = append(dst, c)
			}
		case '\'':
			if attr {
				dst = append(dst, "&apos;"...)
			} else {
				dst = append(dst, c)
			}
		default:
			dst = append(dst, c)
		}
	}
	return dst
}
