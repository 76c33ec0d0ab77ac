// Package xmltree is an arena-backed XML tree with O(1) parent lookups and a
// lazily maintained document-order index.
package xmltree

import (
	"slices"
	"sync"

	"github.com/jacoelho/xformdoc/internal/stack"
)

// NodeID identifies a node inside a Tree arena.
type NodeID int32

// None is the null node reference.
const None NodeID = -1

// DocumentID is the id of the document node of every tree.
const DocumentID NodeID = 0

// Kind classifies arena nodes.
type Kind uint8

const (
	DocumentNode Kind = iota
	ElementNode
	TextNode
	CommentNode
)

// Name is a namespace-qualified element or attribute name. Space holds the
// resolved namespace URI, Prefix the prefix used in the source.
type Name struct {
	Space  string
	Prefix string
	Local  string
}

// Qualified returns prefix:local, or local when there is no prefix.
func (n Name) Qualified() string {
	if n.Prefix == "" {
		return n.Local
	}
	return n.Prefix + ":" + n.Local
}

// Attr is a single attribute.
type Attr struct {
	Name  Name
	Value string
}

// NSDecl is a namespace declaration. An empty Prefix declares the default
// namespace.
type NSDecl struct {
	Prefix string
	URI    string
}

type node struct {
	kind       Kind
	name       Name
	attrs      []Attr
	ns         []NSDecl
	text       string
	parent     NodeID
	children   []NodeID
	irrelevant bool
}

// Tree owns every node it contains. Nodes are never shared across trees;
// ImportSubtree copies.
type Tree struct {
	nodes []node

	orderMu    sync.Mutex
	order      []int
	orderDirty bool
}

// New returns a tree holding only the document node.
func New() *Tree {
	t := &Tree{orderDirty: true}
	t.nodes = append(t.nodes, node{kind: DocumentNode, parent: None})
	return t
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) add(n node) NodeID {
	n.parent = None
	t.nodes = append(t.nodes, n)
	return NodeID(len(t.nodes) - 1)
}

// NewElement creates a detached element.
func (t *Tree) NewElement(name Name) NodeID {
	return t.add(node{kind: ElementNode, name: name})
}

// NewText creates a detached text node.
func (t *Tree) NewText(text string) NodeID {
	return t.add(node{kind: TextNode, text: text})
}

// NewComment creates a detached comment node.
func (t *Tree) NewComment(text string) NodeID {
	return t.add(node{kind: CommentNode, text: text})
}

// DocumentElement returns the single element child of the document node.
func (t *Tree) DocumentElement() NodeID {
	for _, child := range t.nodes[DocumentID].children {
		if t.nodes[child].kind == ElementNode {
			return child
		}
	}
	return None
}

func (t *Tree) Kind(id NodeID) Kind {
	if !t.valid(id) {
		return DocumentNode
	}
	return t.nodes[id].kind
}

// IsElement reports whether id refers to an element.
func (t *Tree) IsElement(id NodeID) bool {
	return t.valid(id) && t.nodes[id].kind == ElementNode
}

func (t *Tree) Name(id NodeID) Name {
	if !t.valid(id) {
		return Name{}
	}
	return t.nodes[id].name
}

// Local is shorthand for Name(id).Local.
func (t *Tree) Local(id NodeID) string {
	return t.Name(id).Local
}

func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return None
	}
	return t.nodes[id].parent
}

// Children returns a copy of the ordered child ids.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return slices.Clone(t.nodes[id].children)
}

// Elements returns the element children of id in order.
func (t *Tree) Elements(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	var out []NodeID
	for _, child := range t.nodes[id].children {
		if t.nodes[child].kind == ElementNode {
			out = append(out, child)
		}
	}
	return out
}

// HasElementChildren reports whether id has at least one element child.
func (t *Tree) HasElementChildren(id NodeID) bool {
	if !t.valid(id) {
		return false
	}
	for _, child := range t.nodes[id].children {
		if t.nodes[child].kind == ElementNode {
			return true
		}
	}
	return false
}

// Text returns the direct text of an element, or the content of a text or
// comment node.
func (t *Tree) Text(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	n := &t.nodes[id]
	if n.kind == TextNode || n.kind == CommentNode {
		return n.text
	}
	var out string
	for _, child := range n.children {
		if t.nodes[child].kind == TextNode {
			out += t.nodes[child].text
		}
	}
	return out
}

// TextContent returns the concatenated text of every descendant text node.
func (t *Tree) TextContent(id NodeID) string {
	if !t.valid(id) {
		return ""
	}
	switch t.nodes[id].kind {
	case TextNode, CommentNode:
		return t.nodes[id].text
	}
	var out []byte
	t.Walk(id, func(current NodeID) bool {
		if t.nodes[current].kind == TextNode {
			out = append(out, t.nodes[current].text...)
		}
		return true
	})
	return string(out)
}

// SetText replaces the text children of an element with a single text node.
// Element children are left in place.
func (t *Tree) SetText(id NodeID, text string) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	if n.kind == TextNode || n.kind == CommentNode {
		n.text = text
		return
	}
	kept := n.children[:0]
	for _, child := range n.children {
		if t.nodes[child].kind == TextNode {
			t.nodes[child].parent = None
			continue
		}
		kept = append(kept, child)
	}
	n.children = kept
	if text != "" {
		textID := t.NewText(text)
		t.nodes[textID].parent = id
		t.nodes[id].children = append(t.nodes[id].children, textID)
	}
	t.markDirty()
}

// Attrs returns a copy of the attributes of id.
func (t *Tree) Attrs(id NodeID) []Attr {
	if !t.valid(id) {
		return nil
	}
	return slices.Clone(t.nodes[id].attrs)
}

// Attr looks an attribute up by namespace URI and local name.
func (t *Tree) Attr(id NodeID, space, local string) (string, bool) {
	if !t.valid(id) {
		return "", false
	}
	for _, attr := range t.nodes[id].attrs {
		if attr.Name.Space == space && attr.Name.Local == local {
			return attr.Value, true
		}
	}
	return "", false
}

// SetAttr replaces the attribute with the same namespace and local name, or
// appends it.
func (t *Tree) SetAttr(id NodeID, attr Attr) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	for i := range n.attrs {
		if n.attrs[i].Name.Space == attr.Name.Space && n.attrs[i].Name.Local == attr.Name.Local {
			n.attrs[i].Value = attr.Value
			return
		}
	}
	n.attrs = append(n.attrs, attr)
}

// RemoveAttr deletes an attribute and reports whether it existed.
func (t *Tree) RemoveAttr(id NodeID, space, local string) bool {
	if !t.valid(id) {
		return false
	}
	n := &t.nodes[id]
	for i := range n.attrs {
		if n.attrs[i].Name.Space == space && n.attrs[i].Name.Local == local {
			n.attrs = slices.Delete(n.attrs, i, i+1)
			return true
		}
	}
	return false
}

// RemoveAttrFunc deletes every attribute for which fn returns true.
func (t *Tree) RemoveAttrFunc(id NodeID, fn func(Attr) bool) {
	if !t.valid(id) {
		return
	}
	n := &t.nodes[id]
	n.attrs = slices.DeleteFunc(n.attrs, fn)
}

// Irrelevant reports the flag set by the relevance engine.
func (t *Tree) Irrelevant(id NodeID) bool {
	return t.valid(id) && t.nodes[id].irrelevant
}

func (t *Tree) SetIrrelevant(id NodeID, irrelevant bool) {
	if t.valid(id) {
		t.nodes[id].irrelevant = irrelevant
	}
}

// AppendChild attaches child as the last child of parent, detaching it from
// any previous parent first.
func (t *Tree) AppendChild(parent, child NodeID) {
	if !t.valid(parent) || !t.valid(child) {
		return
	}
	t.Detach(child)
	t.nodes[child].parent = parent
	t.nodes[parent].children = append(t.nodes[parent].children, child)
	t.markDirty()
}

// InsertBefore attaches child to parent just before ref. A ref of None
// appends.
func (t *Tree) InsertBefore(parent, child, ref NodeID) {
	if ref == None {
		t.AppendChild(parent, child)
		return
	}
	if !t.valid(parent) || !t.valid(child) {
		return
	}
	t.Detach(child)
	siblings := t.nodes[parent].children
	at := slices.Index(siblings, ref)
	if at < 0 {
		at = len(siblings)
	}
	t.nodes[child].parent = parent
	t.nodes[parent].children = slices.Insert(siblings, at, child)
	t.markDirty()
}

// InsertAfter attaches child immediately after ref under ref's parent.
func (t *Tree) InsertAfter(ref, child NodeID) {
	parent := t.Parent(ref)
	if parent == None {
		return
	}
	t.Detach(child)
	siblings := t.nodes[parent].children
	at := slices.Index(siblings, ref)
	t.nodes[child].parent = parent
	t.nodes[parent].children = slices.Insert(siblings, at+1, child)
	t.markDirty()
}

// Detach removes id from its parent. The subtree stays in the arena and may
// be reattached.
func (t *Tree) Detach(id NodeID) {
	if !t.valid(id) {
		return
	}
	parent := t.nodes[id].parent
	if parent == None {
		return
	}
	siblings := t.nodes[parent].children
	if at := slices.Index(siblings, id); at >= 0 {
		t.nodes[parent].children = slices.Delete(siblings, at, at+1)
	}
	t.nodes[id].parent = None
	t.markDirty()
}

// RemoveChildren detaches every child of id.
func (t *Tree) RemoveChildren(id NodeID) {
	if !t.valid(id) {
		return
	}
	for _, child := range t.nodes[id].children {
		t.nodes[child].parent = None
	}
	t.nodes[id].children = nil
	t.markDirty()
}

// Attached reports whether id is connected to the document node.
func (t *Tree) Attached(id NodeID) bool {
	for current := id; t.valid(current); current = t.nodes[current].parent {
		if current == DocumentID {
			return true
		}
	}
	return false
}

// IsAncestor reports whether ancestor is a proper ancestor of id.
func (t *Tree) IsAncestor(ancestor, id NodeID) bool {
	for current := t.Parent(id); current != None; current = t.Parent(current) {
		if current == ancestor {
			return true
		}
	}
	return false
}

// PreviousElement returns the closest preceding element sibling.
func (t *Tree) PreviousElement(id NodeID) NodeID {
	return t.siblingElement(id, -1)
}

// NextElement returns the closest following element sibling.
func (t *Tree) NextElement(id NodeID) NodeID {
	return t.siblingElement(id, 1)
}

func (t *Tree) siblingElement(id NodeID, step int) NodeID {
	parent := t.Parent(id)
	if parent == None {
		return None
	}
	siblings := t.nodes[parent].children
	at := slices.Index(siblings, id)
	for i := at + step; i >= 0 && i < len(siblings); i += step {
		if t.nodes[siblings[i]].kind == ElementNode {
			return siblings[i]
		}
	}
	return None
}

// Walk visits id and its descendants in document order. Returning false from
// fn skips the children of the visited node.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if !t.valid(id) {
		return
	}
	pending := stack.New[NodeID]()
	pending.Push(id)
	for !pending.IsEmpty() {
		current, _ := pending.Pop()
		if !fn(current) {
			continue
		}
		children := t.nodes[current].children
		for i := len(children) - 1; i >= 0; i-- {
			pending.Push(children[i])
		}
	}
}

// CloneSubtree returns a detached deep copy of id.
func (t *Tree) CloneSubtree(id NodeID) NodeID {
	return t.ImportSubtree(t, id)
}

// ImportSubtree deep-copies a subtree of src into t and returns the detached
// copy. src may be t itself.
func (t *Tree) ImportSubtree(src *Tree, id NodeID) NodeID {
	if !src.valid(id) {
		return None
	}
	original := src.nodes[id]
	copied := t.add(node{
		kind:       original.kind,
		name:       original.name,
		attrs:      slices.Clone(original.attrs),
		ns:         slices.Clone(original.ns),
		text:       original.text,
		irrelevant: original.irrelevant,
	})
	for _, child := range original.children {
		childCopy := t.ImportSubtree(src, child)
		t.nodes[childCopy].parent = copied
		t.nodes[copied].children = append(t.nodes[copied].children, childCopy)
	}
	return copied
}

func (t *Tree) markDirty() {
	t.orderMu.Lock()
	t.orderDirty = true
	t.orderMu.Unlock()
}

// Order returns the document-order position of id, or -1 when detached.
func (t *Tree) Order(id NodeID) int {
	t.orderMu.Lock()
	defer t.orderMu.Unlock()
	if t.orderDirty || len(t.order) != len(t.nodes) {
		t.rebuildOrder()
	}
	if !t.valid(id) {
		return -1
	}
	return t.order[id]
}

func (t *Tree) rebuildOrder() {
	t.order = make([]int, len(t.nodes))
	for i := range t.order {
		t.order[i] = -1
	}
	position := 0
	t.Walk(DocumentID, func(id NodeID) bool {
		t.order[id] = position
		position++
		return true
	})
	t.orderDirty = false
}

// SortDocumentOrder sorts ids in document order and drops duplicates.
func (t *Tree) SortDocumentOrder(ids []NodeID) []NodeID {
	slices.SortStableFunc(ids, func(a, b NodeID) int {
		return t.Order(a) - t.Order(b)
	})
	return slices.Compact(ids)
}
