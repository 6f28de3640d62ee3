package parser

import (
	"sort"
	"strconv"
	"strings"
)

const (
	flagToken uint8 = 1 << iota
)

type node struct {
	kind    Kind
	aux     Kind // expected kind for Missing nodes
	flags   uint8
	start   int
	end     int
	lookEnd int // exclusive end of the bytes examined to build the node
	first   int32
	count   int32
}

// Tree is an immutable syntax tree for one version of a document. Nodes live
// in a per-tree arena and refer to their children by index, so a tree shares
// nothing with the tree it was incrementally derived from.
type Tree struct {
	grammar *Grammar
	nodes   []node
	kids    []int32
	root    int32
	size    int
	stats   Stats
}

// Stats reports how a tree was built.
type Stats struct {
	Reused int // subtrees copied from the previous tree
	Parsed int // nodes built by parsing
}

// Node is a lightweight handle to a node inside a Tree.
type Node struct {
	t *Tree
	i int32
}

func (t *Tree) Grammar() *Grammar { return t.grammar }

func (t *Tree) Root() Node { return Node{t: t, i: t.root} }

func (t *Tree) Stats() Stats { return t.stats }

// Len is the length in bytes of the parsed text.
func (t *Tree) Len() int { return t.size }

func (n Node) Valid() bool { return n.t != nil }

func (n Node) raw() *node { return &n.t.nodes[n.i] }

func (n Node) Kind() Kind { return n.raw().kind }

func (n Node) Start() int { return n.raw().start }

func (n Node) End() int { return n.raw().end }

// Expected is the kind a Missing node stands in for.
func (n Node) Expected() Kind { return n.raw().aux }

func (n Node) IsToken() bool { return n.raw().flags&flagToken != 0 }

func (n Node) IsError() bool { return n.raw().kind == KindError }

func (n Node) IsMissing() bool { return n.raw().kind == KindMissing }

func (n Node) NumChildren() int { return int(n.raw().count) }

func (n Node) Child(i int) Node {
	r := n.raw()
	return Node{t: n.t, i: n.t.kids[int(r.first)+i]}
}

func (n Node) Children() []Node {
	r := n.raw()
	out := make([]Node, r.count)
	for i := range out {
		out[i] = Node{t: n.t, i: n.t.kids[int(r.first)+i]}
	}
	return out
}

// Text returns the source text the node spans.
func (n Node) Text(src string) string {
	r := n.raw()
	if r.end > len(src) {
		return ""
	}
	return src[r.start:r.end]
}

// ChildOfKind returns the first direct child of kind k.
func (n Node) ChildOfKind(k Kind) (Node, bool) {
	r := n.raw()
	for i := int32(0); i < r.count; i++ {
		c := Node{t: n.t, i: n.t.kids[r.first+i]}
		if c.Kind() == k {
			return c, true
		}
	}
	return Node{}, false
}

// Walk visits n and its descendants depth first, in document order.
// Returning false from fn skips the node's children.
func (n Node) Walk(fn func(Node) bool) {
	if !fn(n) {
		return
	}
	r := n.raw()
	for i := int32(0); i < r.count; i++ {
		Node{t: n.t, i: n.t.kids[r.first+i]}.Walk(fn)
	}
}

// PathAt returns the chain of nodes from the root down to the innermost node
// with Start <= offset < End.
func (t *Tree) PathAt(offset int) []Node {
	return t.path(offset, func(r *node) bool { return r.start <= offset && offset < r.end })
}

// PathBefore is like PathAt but selects nodes with Start < offset <= End,
// which is what a cursor placed right after a token refers to.
func (t *Tree) PathBefore(offset int) []Node {
	return t.path(offset, func(r *node) bool { return r.start < offset && offset <= r.end })
}

func (t *Tree) path(offset int, covers func(*node) bool) []Node {
	path := []Node{t.Root()}
	cur := t.Root()
	for {
		r := cur.raw()
		kids := t.kids[r.first : r.first+r.count]
		// children are ordered by start; find the last one starting at or before offset
		i := sort.Search(len(kids), func(i int) bool { return t.nodes[kids[i]].start > offset })
		next := Node{}
		for j := i - 1; j >= 0; j-- {
			c := &t.nodes[kids[j]]
			if covers(c) {
				next = Node{t: t, i: kids[j]}
				break
			}
			if c.end < offset {
				break
			}
		}
		if !next.Valid() {
			return path
		}
		path = append(path, next)
		cur = next
	}
}

// NodeAt returns the innermost node with Start <= offset < End.
func (t *Tree) NodeAt(offset int) Node {
	p := t.PathAt(offset)
	return p[len(p)-1]
}

// LeafBefore returns the last token or error node that ends at or before
// offset.
func (t *Tree) LeafBefore(offset int) (Node, bool) {
	var found Node
	t.Root().Walk(func(n Node) bool {
		if n.Start() >= offset && n.End() > offset {
			return false
		}
		if (n.IsToken() || n.IsError()) && n.End() <= offset && n.End() > n.Start() {
			found = n
		}
		return true
	})
	return found, found.Valid()
}

// Equal reports whether two trees are structurally identical: same kinds,
// spans and shapes.
func Equal(a, b *Tree) bool {
	if a.size != b.size {
		return false
	}
	return equalNode(a.Root(), b.Root())
}

func equalNode(a, b Node) bool {
	ra, rb := a.raw(), b.raw()
	if ra.kind != rb.kind || ra.aux != rb.aux || ra.flags != rb.flags ||
		ra.start != rb.start || ra.end != rb.end || ra.count != rb.count {
		return false
	}
	for i := 0; i < int(ra.count); i++ {
		if !equalNode(a.Child(i), b.Child(i)) {
			return false
		}
	}
	return true
}

// Dump renders the tree as an s-expression, mostly for tests and debugging.
func (t *Tree) Dump(src string) string {
	var sb strings.Builder
	t.dump(&sb, t.Root(), src)
	return sb.String()
}

func (t *Tree) dump(sb *strings.Builder, n Node, src string) {
	name := t.grammar.KindName(n.Kind())
	switch {
	case n.IsMissing():
		sb.WriteString("(MISSING " + t.grammar.KindName(n.Expected()) + ")")
		return
	case n.IsToken():
		sb.WriteString(name + ":" + strconv.Quote(n.Text(src)))
		return
	}
	sb.WriteString("(" + name)
	for _, c := range n.Children() {
		sb.WriteByte(' ')
		t.dump(sb, c, src)
	}
	sb.WriteByte(')')
}
