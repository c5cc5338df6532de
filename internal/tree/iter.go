package tree

import "iter"

// PreOrder yields n, then each subtree in order, parents before children.
func (n Node) PreOrder() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		n.preOrder(yield)
	}
}

func (n Node) preOrder(yield func(Node) bool) bool {
	if !n.Valid() {
		return true
	}
	if !yield(n) {
		return false
	}
	for _, c := range n.Children() {
		if !c.preOrder(yield) {
			return false
		}
	}
	return true
}

// PostOrder yields every subtree before its parent, ending with n.
func (n Node) PostOrder() iter.Seq[Node] {
	return func(yield func(Node) bool) {
		n.postOrder(yield)
	}
}

func (n Node) postOrder(yield func(Node) bool) bool {
	if !n.Valid() {
		return true
	}
	for _, c := range n.Children() {
		if !c.postOrder(yield) {
			return false
		}
	}
	return yield(n)
}

// ForEach calls fn for each child with its index.
func (n Node) ForEach(fn func(Node, int)) {
	for i, c := range n.Children() {
		fn(c, i)
	}
}

// Find returns the first child satisfying pred.
func (n Node) Find(pred func(Node) bool) (Node, bool) {
	for _, c := range n.Children() {
		if pred(c) {
			return c, true
		}
	}
	return Node{}, false
}

// Filter returns the children satisfying pred.
func (n Node) Filter(pred func(Node) bool) []Node {
	var out []Node
	for _, c := range n.Children() {
		if pred(c) {
			out = append(out, c)
		}
	}
	return out
}

// Every reports whether all children satisfy pred. It is true for no children.
func (n Node) Every(pred func(Node) bool) bool {
	for _, c := range n.Children() {
		if !pred(c) {
			return false
		}
	}
	return true
}
