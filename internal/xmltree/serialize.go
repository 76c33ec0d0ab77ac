package xmltree

import (
	"bufio"
	"io"
	"slices"
	"strings"
)

// WriteOptions controls Write.
type WriteOptions struct {
	// Skip omits a node together with its subtree.
	Skip func(NodeID) bool
	// Comments keeps comment nodes in the output.
	Comments bool
}

var (
	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		"\"", "&quot;",
		"\t", "&#x9;",
		"\n", "&#xA;",
		"\r", "&#xD;",
	)
)

// String serializes the subtree rooted at id.
func (t *Tree) String(id NodeID, opts WriteOptions) string {
	var b strings.Builder
	_ = t.Write(&b, id, opts)
	return b.String()
}

// Write serializes the subtree rooted at id. Empty elements are
// self-closing. The top element carries its own declarations followed by
// any ancestor declarations for prefixes used inside the subtree.
func (t *Tree) Write(w io.Writer, id NodeID, opts WriteOptions) error {
	if !t.valid(id) {
		return nil
	}
	bw := bufio.NewWriter(w)
	if t.nodes[id].kind == DocumentNode {
		for _, child := range t.nodes[id].children {
			t.writeNode(bw, child, opts, nil)
		}
		return bw.Flush()
	}
	t.writeNode(bw, id, opts, t.inheritedDeclarations(id))
	return bw.Flush()
}

func (t *Tree) inheritedDeclarations(id NodeID) []NSDecl {
	if t.nodes[id].kind != ElementNode {
		return nil
	}
	parent := t.nodes[id].parent
	if parent == None {
		return nil
	}

	var used []string
	t.Walk(id, func(current NodeID) bool {
		n := &t.nodes[current]
		if n.kind != ElementNode {
			return false
		}
		if n.name.Prefix != "" {
			used = append(used, n.name.Prefix)
		}
		for _, attr := range n.attrs {
			if attr.Name.Prefix != "" {
				used = append(used, attr.Name.Prefix)
			}
		}
		return true
	})

	var out []NSDecl
	for _, prefix := range used {
		if prefix == "xml" || declares(t.nodes[id].ns, prefix) || declares(out, prefix) {
			continue
		}
		if uri, ok := t.LookupNamespace(parent, prefix); ok {
			out = append(out, NSDecl{Prefix: prefix, URI: uri})
		}
	}
	return out
}

func declares(decls []NSDecl, prefix string) bool {
	return slices.ContainsFunc(decls, func(decl NSDecl) bool { return decl.Prefix == prefix })
}

func (t *Tree) writeNode(w *bufio.Writer, id NodeID, opts WriteOptions, extra []NSDecl) {
	if opts.Skip != nil && opts.Skip(id) {
		return
	}
	n := &t.nodes[id]
	switch n.kind {
	case TextNode:
		_, _ = textEscaper.WriteString(w, n.text)
		return
	case CommentNode:
		if opts.Comments {
			_, _ = w.WriteString("<!--" + n.text + "-->")
		}
		return
	case DocumentNode:
		return
	}

	name := n.name.Qualified()
	_ = w.WriteByte('<')
	_, _ = w.WriteString(name)
	for _, decl := range append(slices.Clone(n.ns), extra...) {
		_, _ = w.WriteString(" xmlns")
		if decl.Prefix != "" {
			_ = w.WriteByte(':')
			_, _ = w.WriteString(decl.Prefix)
		}
		_, _ = w.WriteString(`="`)
		_, _ = attrEscaper.WriteString(w, decl.URI)
		_ = w.WriteByte('"')
	}
	for _, attr := range n.attrs {
		_ = w.WriteByte(' ')
		_, _ = w.WriteString(attr.Name.Qualified())
		_, _ = w.WriteString(`="`)
		_, _ = attrEscaper.WriteString(w, attr.Value)
		_ = w.WriteByte('"')
	}

	children := slices.DeleteFunc(slices.Clone(n.children), func(child NodeID) bool {
		return !t.emits(child, opts)
	})
	if len(children) == 0 {
		_, _ = w.WriteString("/>")
		return
	}
	_ = w.WriteByte('>')
	for _, child := range children {
		t.writeNode(w, child, opts, nil)
	}
	_, _ = w.WriteString("</" + name + ">")
}

func (t *Tree) emits(id NodeID, opts WriteOptions) bool {
	if opts.Skip != nil && opts.Skip(id) {
		return false
	}
	switch t.nodes[id].kind {
	case TextNode:
		return t.nodes[id].text != ""
	case CommentNode:
		return opts.Comments
	}
	return true
}
