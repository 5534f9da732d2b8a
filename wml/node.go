// Package wml implements the hierarchical document format used for add-on
// content, metadata and wire payloads: a tree of named nodes, each carrying
// an ordered list of string attributes and an ordered list of named
// children. Documents serialize to a plain text form and are stored and
// transmitted gzip-compressed.
package wml

import "iter"

// Attribute is a single key="value" entry on a node.
type Attribute struct {
	Key   string
	Value string
}

// Node is one node of a document tree. The zero value is an empty node.
type Node struct {
	attrs    []Attribute
	children []child
}

type child struct {
	name string
	node *Node
}

// New returns a new empty node.
func New() *Node {
	return &Node{}
}

// Attr returns the value of the named attribute, or "" if absent.
func (n *Node) Attr(key string) string {
	v, _ := n.LookupAttr(key)
	return v
}

// LookupAttr returns the value of the named attribute and whether it is set.
func (n *Node) LookupAttr(key string) (string, bool) {
	for _, a := range n.attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttr reports whether the named attribute is set.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.LookupAttr(key)
	return ok
}

// SetAttr sets the named attribute, preserving its position if it already
// exists and appending it otherwise.
func (n *Node) SetAttr(key, value string) {
	for i, a := range n.attrs {
		if a.Key == key {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, Attribute{Key: key, Value: value})
}

// RemoveAttr removes the named attribute if present.
func (n *Node) RemoveAttr(key string) {
	for i, a := range n.attrs {
		if a.Key == key {
			n.attrs = append(n.attrs[:i], n.attrs[i+1:]...)
			return
		}
	}
}

// RemoveAttrs removes every listed attribute.
func (n *Node) RemoveAttrs(keys ...string) {
	for _, key := range keys {
		n.RemoveAttr(key)
	}
}

// Attrs iterates over the attributes in order.
func (n *Node) Attrs() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, a := range n.attrs {
			if !yield(a.Key, a.Value) {
				return
			}
		}
	}
}

// Children iterates over the children with the given name, in order.
func (n *Node) Children(name string) iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, c := range n.children {
			if c.name == name && !yield(c.node) {
				return
			}
		}
	}
}

// AllChildren iterates over every child with its name, in order.
func (n *Node) AllChildren() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for _, c := range n.children {
			if !yield(c.name, c.node) {
				return
			}
		}
	}
}

// First returns the first child with the given name, or nil.
func (n *Node) First(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c.node
		}
	}
	return nil
}

// FirstWhere returns the first child with the given name whose own "name"
// attribute equals attrName, or nil.
func (n *Node) FirstWhere(name, attrName string) *Node {
	for _, c := range n.children {
		if c.name == name && c.node.Attr("name") == attrName {
			return c.node
		}
	}
	return nil
}

// HasChild reports whether a child with the given name exists.
func (n *Node) HasChild(name string) bool {
	return n.First(name) != nil
}

// ChildCount returns the number of children with the given name.
func (n *Node) ChildCount(name string) int {
	count := 0
	for _, c := range n.children {
		if c.name == name {
			count++
		}
	}
	return count
}

// AddChild appends a new empty child with the given name and returns it.
func (n *Node) AddChild(name string) *Node {
	node := New()
	n.children = append(n.children, child{name: name, node: node})
	return node
}

// AppendChild appends an existing node as a child with the given name. The
// node is owned by n afterwards.
func (n *Node) AppendChild(name string, node *Node) {
	n.children = append(n.children, child{name: name, node: node})
}

// Take removes and returns the first child with the given name, or nil.
// This is the move-out operation: no copy of the subtree is made.
func (n *Node) Take(name string) *Node {
	for i, c := range n.children {
		if c.name == name {
			n.children = append(n.children[:i], n.children[i+1:]...)
			return c.node
		}
	}
	return nil
}

// RemoveChildren removes every child with the given name for which pred
// returns true, and returns the number removed. A nil pred removes all
// children with that name.
func (n *Node) RemoveChildren(name string, pred func(*Node) bool) int {
	kept := n.children[:0]
	removed := 0
	for _, c := range n.children {
		if c.name == name && (pred == nil || pred(c.node)) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	n.children = kept
	return removed
}

// ClearChildren removes every child with the given name.
func (n *Node) ClearChildren(name string) {
	n.RemoveChildren(name, nil)
}

// Append moves every attribute and child of other into n. Attributes
// overwrite same-named existing ones; children are appended in order. The
// other node is left empty.
func (n *Node) Append(other *Node) {
	for _, a := range other.attrs {
		n.SetAttr(a.Key, a.Value)
	}
	n.children = append(n.children, other.children...)
	other.attrs = nil
	other.children = nil
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	out := &Node{
		attrs:    make([]Attribute, len(n.attrs)),
		children: make([]child, len(n.children)),
	}
	copy(out.attrs, n.attrs)
	for i, c := range n.children {
		out.children[i] = child{name: c.name, node: c.node.Clone()}
	}
	return out
}

// Empty reports whether the node has no attributes and no children.
func (n *Node) Empty() bool {
	return n == nil || (len(n.attrs) == 0 && len(n.children) == 0)
}

// Equal reports structural equality. Attributes compare as key/value sets
// and children as unordered multisets per name, so two trees describing the
// same content compare equal regardless of the order mutations happened in.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n.Empty() && other.Empty()
	}
	if len(n.attrs) != len(other.attrs) || len(n.children) != len(other.children) {
		return false
	}
	for _, a := range n.attrs {
		if v, ok := other.LookupAttr(a.Key); !ok || v != a.Value {
			return false
		}
	}
	used := make([]bool, len(other.children))
	for _, c := range n.children {
		found := false
		for i, oc := range other.children {
			if used[i] || oc.name != c.name {
				continue
			}
			if c.node.Equal(oc.node) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
