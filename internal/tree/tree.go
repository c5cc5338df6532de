// Package tree is a recursive node structure stored as an arena: nodes are
// addressed by ID and parent/child links are ID lookups, so there are no
// pointer cycles between parents and children.
//
// A Tree is not safe for concurrent use. Callers serialize access, which is
// how stores drive it (one expansion at a time).
package tree

import (
	"context"
	"strconv"
	"strings"
)

// ID addresses a node inside its tree.
type ID int

// None is the ID of no node.
const None ID = -1

// Mode selects how node selection behaves tree-wide.
type Mode int

const (
	// SingleSelect keeps at most one selected node in the tree.
	SingleSelect Mode = iota
	// MultiSelect lets every node carry its own selection flag.
	MultiSelect
)

// Spec describes a node to create.
type Spec struct {
	Key    string
	Value  any
	Folder bool
}

type entry struct {
	key      string
	value    any
	parent   ID
	children []ID
	folder   bool
	opened   bool
	expanded bool // opened at least once
	selected bool
	focused  bool
}

// Tree owns every node. The root is a sentinel folder at level -1 that is
// always open; its children are the top-level nodes.
type Tree struct {
	nodes     map[ID]*entry
	next      ID
	root      ID
	mode      Mode
	selected  ID
	focused   ID
	observers []Observer
	onExpand  ExpandHook
}

// New creates an empty single-select tree.
func New() *Tree {
	t := &Tree{
		nodes:    make(map[ID]*entry),
		selected: None,
		focused:  None,
	}
	t.root = t.alloc(Spec{Folder: true}, None)
	t.nodes[t.root].opened = true
	t.nodes[t.root].expanded = true
	return t
}

func (t *Tree) alloc(s Spec, parent ID) ID {
	id := t.next
	t.next++
	e := &entry{key: s.Key, value: s.Value, parent: parent, folder: s.Folder}
	if s.Folder {
		e.children = []ID{}
	}
	t.nodes[id] = e
	return id
}

// Root returns the sentinel root node.
func (t *Tree) Root() Node {
	return Node{t: t, id: t.root}
}

// Node returns the node with the given id; the result is invalid if the id is unknown.
func (t *Tree) Node(id ID) Node {
	return Node{t: t, id: id}
}

// Len returns the number of nodes held by the tree, excluding the root.
func (t *Tree) Len() int {
	return len(t.nodes) - 1
}

// Mode returns the selection mode.
func (t *Tree) Mode() Mode {
	return t.mode
}

// SetMode switches the selection mode. Every selection is cleared.
func (t *Tree) SetMode(m Mode) {
	if t.mode == m {
		return
	}
	for _, e := range t.nodes {
		e.selected = false
	}
	t.selected = None
	t.mode = m
	t.notify(Change{Kind: Reset, Node: t.Root()})
}

// Selected returns the selected node in single-select mode.
func (t *Tree) Selected() (Node, bool) {
	if t.selected == None {
		return Node{}, false
	}
	return t.Node(t.selected), true
}

// SelectedNodes returns every selected node in pre-order.
func (t *Tree) SelectedNodes() []Node {
	var out []Node
	for n := range t.Root().PreOrder() {
		if n.Selected() && !n.IsRoot() {
			out = append(out, n)
		}
	}
	return out
}

// Focused returns the focused node.
func (t *Tree) Focused() (Node, bool) {
	if t.focused == None {
		return Node{}, false
	}
	return t.Node(t.focused), true
}

// ExpandHook runs the first time a folder is opened. A failed hook leaves
// the folder unexpanded.
type ExpandHook func(ctx context.Context, n Node) error

// SetOnExpand installs the hook called the first time a folder is opened.
func (t *Tree) SetOnExpand(fn ExpandHook) {
	t.onExpand = fn
}

// FindKey returns the first node, in pre-order, whose key is key.
func (t *Tree) FindKey(key string) (Node, bool) {
	for n := range t.Root().PreOrder() {
		if !n.IsRoot() && n.Key() == key {
			return n, true
		}
	}
	return Node{}, false
}

// Clear releases every top-level node.
func (t *Tree) Clear() {
	for _, c := range t.Root().Children() {
		c.Release()
	}
}

// Node is a handle on one node of a tree. The zero Node is invalid.
type Node struct {
	t  *Tree
	id ID
}

func (n Node) entry() *entry {
	if n.t == nil {
		return nil
	}
	return n.t.nodes[n.id]
}

// Valid reports whether n refers to a live node.
func (n Node) Valid() bool {
	return n.entry() != nil
}

// ID returns the node's handle.
func (n Node) ID() ID {
	return n.id
}

// Tree returns the owning tree.
func (n Node) Tree() *Tree {
	return n.t
}

// IsRoot reports whether n is the sentinel root.
func (n Node) IsRoot() bool {
	return n.t != nil && n.id == n.t.root
}

// Key returns the supplied key, or the index path from the root
// ("0.2.1") for anonymous nodes. Path keys change when siblings move.
func (n Node) Key() string {
	e := n.entry()
	if e == nil {
		return ""
	}
	if e.key != "" {
		return e.key
	}
	return n.Path()
}

// Path returns the dotted index path from the root.
func (n Node) Path() string {
	var parts []string
	for cur := n; ; {
		p := cur.Parent()
		if !p.Valid() {
			break
		}
		parts = append(parts, strconv.Itoa(cur.Index()))
		cur = p
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

// Value returns the payload.
func (n Node) Value() any {
	if e := n.entry(); e != nil {
		return e.value
	}
	return nil
}

// SetValue replaces the payload.
func (n Node) SetValue(v any) {
	if e := n.entry(); e != nil {
		e.value = v
		n.t.notify(Change{Kind: Update, Node: n})
	}
}

// IsFolder reports whether n can hold children.
func (n Node) IsFolder() bool {
	e := n.entry()
	return e != nil && e.folder
}

// IsLeaf reports whether n is a leaf.
func (n Node) IsLeaf() bool {
	e := n.entry()
	return e != nil && !e.folder
}

// Parent returns the parent node; it is invalid for the root and detached nodes.
func (n Node) Parent() Node {
	e := n.entry()
	if e == nil || e.parent == None {
		return Node{}
	}
	return Node{t: n.t, id: e.parent}
}

// Level returns the depth: -1 for the root, 0 for top-level nodes.
func (n Node) Level() int {
	level := -1
	for p := n.Parent(); p.Valid(); p = p.Parent() {
		level++
	}
	return level
}

// Children returns the child nodes in order; nil for leaves.
func (n Node) Children() []Node {
	e := n.entry()
	if e == nil || !e.folder {
		return nil
	}
	out := make([]Node, len(e.children))
	for i, id := range e.children {
		out[i] = Node{t: n.t, id: id}
	}
	return out
}

// Len returns the number of children.
func (n Node) Len() int {
	if e := n.entry(); e != nil {
		return len(e.children)
	}
	return 0
}

// Child returns the i-th child.
func (n Node) Child(i int) Node {
	e := n.entry()
	if e == nil || i < 0 || i >= len(e.children) {
		return Node{}
	}
	return Node{t: n.t, id: e.children[i]}
}

// First returns the first child.
func (n Node) First() Node {
	return n.Child(0)
}

// Last returns the last child.
func (n Node) Last() Node {
	return n.Child(n.Len() - 1)
}

// Index returns n's position among its siblings, or -1 when detached.
func (n Node) Index() int {
	p := n.Parent().entry()
	if p == nil {
		return -1
	}
	for i, id := range p.children {
		if id == n.id {
			return i
		}
	}
	return -1
}

// Next returns the following sibling.
func (n Node) Next() Node {
	i := n.Index()
	if i < 0 {
		return Node{}
	}
	return n.Parent().Child(i + 1)
}

// Prev returns the preceding sibling.
func (n Node) Prev() Node {
	i := n.Index()
	if i <= 0 {
		return Node{}
	}
	return n.Parent().Child(i - 1)
}

// Append adds a child at the end. Appending to a leaf turns it into a folder.
func (n Node) Append(s Spec) Node {
	return n.Insert(n.Len(), s)
}

// Insert adds a child at position i (clamped to the valid range).
func (n Node) Insert(i int, s Spec) Node {
	e := n.entry()
	if e == nil {
		return Node{}
	}
	if !e.folder {
		e.folder = true
		e.children = []ID{}
	}
	if i < 0 {
		i = 0
	}
	if i > len(e.children) {
		i = len(e.children)
	}
	id := n.t.alloc(s, n.id)
	e.children = append(e.children, None)
	copy(e.children[i+1:], e.children[i:])
	e.children[i] = id

	child := Node{t: n.t, id: id}
	n.t.notify(Change{Kind: Insert, Node: child})
	return child
}

// Remove detaches n (and its subtree) from its parent. A selected or focused
// node inside the subtree stops being the tree's selection or focus.
// The detached nodes stay addressable until Release.
func (n Node) Remove() {
	e := n.entry()
	if e == nil || n.IsRoot() || e.parent == None {
		return
	}
	n.t.notify(Change{Kind: Remove, Node: n})
	n.dropSingletons()

	p := n.t.nodes[e.parent]
	for i, id := range p.children {
		if id == n.id {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	e.parent = None
}

func (n Node) dropSingletons() {
	for d := range n.PreOrder() {
		de := d.entry()
		if d.id == n.t.selected {
			n.t.selected = None
		}
		if d.id == n.t.focused {
			n.t.focused = None
		}
		de.selected = false
		de.focused = false
	}
}

// Release removes n if attached, then recursively frees its subtree,
// dropping payloads. The handles become invalid.
func (n Node) Release() {
	if !n.Valid() || n.IsRoot() {
		return
	}
	n.Remove()
	n.release()
}

func (n Node) release() {
	e := n.entry()
	for _, c := range n.Children() {
		c.release()
	}
	e.children = nil
	e.value = nil
	e.parent = None
	delete(n.t.nodes, n.id)
}
