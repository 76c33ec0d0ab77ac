package xmltree

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/jacoelho/xformdoc/internal/stack"
)

// XMLNamespace is bound to the reserved xml prefix.
const XMLNamespace = "http://www.w3.org/XML/1998/namespace"

// ErrInvalidXML indicates a document that is not well-formed.
var ErrInvalidXML = errors.New("invalid xml")

func parseError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidXML, fmt.Sprintf(format, args...))
}

// ParseString parses a complete XML document.
func ParseString(input string) (*Tree, error) {
	return Parse(strings.NewReader(input))
}

// Parse reads a complete XML document into a new tree. Comments are kept,
// processing instructions and directives are dropped.
func Parse(r io.Reader) (*Tree, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = true

	t := New()
	open := stack.New[NodeID]()
	parent := func() NodeID {
		if id, ok := open.Peek(); ok {
			return id
		}
		return DocumentID
	}
	rootSeen := false

	for {
		tok, err := decoder.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, parseError("%v", err)
		}

		switch tok := tok.(type) {
		case xml.StartElement:
			if open.IsEmpty() {
				if rootSeen {
					return nil, parseError("multiple root elements")
				}
				rootSeen = true
			}
			open.Push(t.startElement(parent(), tok))
		case xml.EndElement:
			current, ok := open.Pop()
			if !ok {
				return nil, parseError("unexpected end element </%s>", rawName(tok.Name))
			}
			if got, want := rawName(tok.Name), t.nodes[current].name.Qualified(); got != want {
				return nil, parseError("element <%s> closed by </%s>", want, got)
			}
		case xml.CharData:
			if open.IsEmpty() {
				if len(bytes.TrimSpace(tok)) > 0 {
					return nil, parseError("text outside the root element")
				}
				continue
			}
			t.appendText(parent(), string(tok))
		case xml.Comment:
			t.AppendChild(parent(), t.NewComment(string(tok)))
		}
	}

	if current, ok := open.Peek(); ok {
		return nil, parseError("unexpected end of document inside <%s>", t.nodes[current].name.Qualified())
	}
	if !rootSeen {
		return nil, parseError("no root element")
	}
	return t, nil
}

func (t *Tree) startElement(parent NodeID, tok xml.StartElement) NodeID {
	id := t.NewElement(Name{Prefix: tok.Name.Space, Local: tok.Name.Local})
	t.AppendChild(parent, id)

	var attrs []xml.Attr
	for _, attr := range tok.Attr {
		switch {
		case attr.Name.Space == "xmlns":
			t.nodes[id].ns = append(t.nodes[id].ns, NSDecl{Prefix: attr.Name.Local, URI: attr.Value})
		case attr.Name.Space == "" && attr.Name.Local == "xmlns":
			t.nodes[id].ns = append(t.nodes[id].ns, NSDecl{URI: attr.Value})
		default:
			attrs = append(attrs, attr)
		}
	}

	// Unbound prefixes are tolerated and resolve to no namespace.
	space, _ := t.LookupNamespace(id, tok.Name.Space)
	t.nodes[id].name.Space = space

	for _, attr := range attrs {
		name := Name{Prefix: attr.Name.Space, Local: attr.Name.Local}
		if name.Prefix != "" {
			name.Space, _ = t.LookupNamespace(id, name.Prefix)
		}
		t.nodes[id].attrs = append(t.nodes[id].attrs, Attr{Name: name, Value: attr.Value})
	}
	return id
}

func (t *Tree) appendText(parent NodeID, text string) {
	children := t.nodes[parent].children
	if n := len(children); n > 0 && t.nodes[children[n-1]].kind == TextNode {
		t.nodes[children[n-1]].text += text
		return
	}
	textID := t.NewText(text)
	t.AppendChild(parent, textID)
}

func rawName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// Namespaces returns the declarations made directly on id.
func (t *Tree) Namespaces(id NodeID) []NSDecl {
	if !t.valid(id) {
		return nil
	}
	return append([]NSDecl(nil), t.nodes[id].ns...)
}

// DeclareNamespace adds or rebinds a declaration on id.
func (t *Tree) DeclareNamespace(id NodeID, prefix, uri string) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	for i := range n.ns {
		if n.ns[i].Prefix == prefix {
			n.ns[i].URI = uri
			return
		}
	}
	n.ns = append(n.ns, NSDecl{Prefix: prefix, URI: uri})
}

// RemoveNamespace drops the declaration of prefix made directly on id.
func (t *Tree) RemoveNamespace(id NodeID, prefix string) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	n.ns = slices.DeleteFunc(n.ns, func(decl NSDecl) bool { return decl.Prefix == prefix })
}

// LookupNamespace resolves prefix in the scope of id. The empty prefix
// resolves to the default namespace, which is "" when undeclared.
func (t *Tree) LookupNamespace(id NodeID, prefix string) (string, bool) {
	if prefix == "xml" {
		return XMLNamespace, true
	}
	for current := id; t.valid(current); current = t.nodes[current].parent {
		for _, decl := range t.nodes[current].ns {
			if decl.Prefix == prefix {
				return decl.URI, true
			}
		}
	}
	return "", prefix == ""
}

// LookupPrefix finds a non-empty prefix bound to uri in the scope of id.
func (t *Tree) LookupPrefix(id NodeID, uri string) (string, bool) {
	if uri == XMLNamespace {
		return "xml", true
	}
	for current := id; t.valid(current); current = t.nodes[current].parent {
		for _, decl := range t.nodes[current].ns {
			if decl.Prefix == "" || decl.URI != uri {
				continue
			}
			if bound, _ := t.LookupNamespace(id, decl.Prefix); bound == uri {
				return decl.Prefix, true
			}
		}
	}
	return "", false
}
