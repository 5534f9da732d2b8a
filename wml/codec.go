package wml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrSyntax wraps every parse failure, letting callers distinguish a
// malformed document from an I/O problem.
var ErrSyntax = errors.New("syntax error")

// Parse reads a document from its text form.
//
// The grammar is line-oriented: key="value" attributes (values may span
// lines inside quotes, with doubled quotes as the escape), [tag] opening and
// [/tag] closing child nodes, and # comments outside quoted values.
func Parse(data []byte) (*Node, error) {
	p := &parser{src: string(data)}
	root := New()
	if err := p.parseInto(root, ""); err != nil {
		return nil, err
	}
	return root, nil
}

type parser struct {
	src  string
	pos  int
	line int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("wml: line %d: %s: %w", p.line+1, fmt.Sprintf(format, args...), ErrSyntax)
}

// parseInto fills node until the closing tag for name (or EOF at the top
// level, where name is empty).
func (p *parser) parseInto(node *Node, name string) error {
	for p.pos < len(p.src) {
		p.skipBlank()
		if p.pos >= len(p.src) {
			break
		}

		switch p.src[p.pos] {
		case '#':
			p.skipLine()

		case '[':
			tag, closing, err := p.readTag()
			if err != nil {
				return err
			}
			if closing {
				if tag != name {
					return p.errorf("unexpected closing tag [/%s], expected [/%s]", tag, name)
				}
				return nil
			}
			if err := p.parseInto(node.AddChild(tag), tag); err != nil {
				return err
			}

		default:
			key, value, err := p.readAttribute()
			if err != nil {
				return err
			}
			node.SetAttr(key, value)
		}
	}

	if name != "" {
		return p.errorf("missing closing tag [/%s]", name)
	}
	return nil
}

func (p *parser) skipBlank() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '\n' {
			p.line++
			p.pos++
		} else if c == ' ' || c == '\t' || c == '\r' {
			p.pos++
		} else {
			break
		}
	}
}

func (p *parser) skipLine() {
	for p.pos < len(p.src) && p.src[p.pos] != '\n' {
		p.pos++
	}
}

func (p *parser) readTag() (tag string, closing bool, err error) {
	p.pos++ // consume '['
	if p.pos < len(p.src) && p.src[p.pos] == '/' {
		closing = true
		p.pos++
	}
	end := strings.IndexByte(p.src[p.pos:], ']')
	if end < 0 {
		return "", false, p.errorf("unterminated tag")
	}
	tag = p.src[p.pos : p.pos+end]
	p.pos += end + 1
	if tag == "" {
		return "", false, p.errorf("empty tag name")
	}
	return tag, closing, nil
}

func (p *parser) readAttribute() (key, value string, err error) {
	eq := strings.IndexByte(p.src[p.pos:], '=')
	nl := strings.IndexByte(p.src[p.pos:], '\n')
	if eq < 0 || (nl >= 0 && nl < eq) {
		return "", "", p.errorf("expected key=value")
	}
	key = strings.TrimSpace(p.src[p.pos : p.pos+eq])
	if key == "" {
		return "", "", p.errorf("empty attribute key")
	}
	p.pos += eq + 1

	// Skip horizontal whitespace before the value.
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}

	if p.pos < len(p.src) && p.src[p.pos] == '"' {
		value, err = p.readQuoted()
		return key, value, err
	}

	// Unquoted value runs to end of line.
	end := strings.IndexByte(p.src[p.pos:], '\n')
	if end < 0 {
		end = len(p.src) - p.pos
	}
	value = strings.TrimRight(p.src[p.pos:p.pos+end], " \t\r")
	p.pos += end
	return key, value, nil
}

// readQuoted consumes a quoted value, which may span lines. A doubled quote
// inside the value is the escape for a literal quote.
func (p *parser) readQuoted() (string, error) {
	p.pos++ // consume opening '"'
	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '"' {
			if p.pos+1 < len(p.src) && p.src[p.pos+1] == '"' {
				b.WriteByte('"')
				p.pos += 2
				continue
			}
			p.pos++
			return b.String(), nil
		}
		if c == '\n' {
			p.line++
		}
		b.WriteByte(c)
		p.pos++
	}
	return "", p.errorf("unterminated quoted value")
}

// Marshal serializes the document to its text form.
func Marshal(n *Node) []byte {
	var buf bytes.Buffer
	writeNode(&buf, n, 0)
	return buf.Bytes()
}

// Write serializes the document to w.
func Write(w io.Writer, n *Node) error {
	_, err := w.Write(Marshal(n))
	return err
}

func writeNode(buf *bytes.Buffer, n *Node, depth int) {
	for _, a := range n.attrs {
		indent(buf, depth)
		buf.WriteString(a.Key)
		buf.WriteString("=\"")
		buf.WriteString(strings.ReplaceAll(a.Value, `"`, `""`))
		buf.WriteString("\"\n")
	}
	for _, c := range n.children {
		indent(buf, depth)
		buf.WriteByte('[')
		buf.WriteString(c.name)
		buf.WriteString("]\n")
		writeNode(buf, c.node, depth+1)
		indent(buf, depth)
		buf.WriteString("[/")
		buf.WriteString(c.name)
		buf.WriteString("]\n")
	}
}

func indent(buf *bytes.Buffer, depth int) {
	for range depth {
		buf.WriteByte('\t')
	}
}
