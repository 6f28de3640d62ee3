package dae

import (
	"strconv"
	"strings"

	"daelsp/internal/parser"
)

// block is a section together with the headers of the sections enclosing it,
// outermost first, e.g. [dns routing request].
type block struct {
	node parser.Node
	path []string
}

func (b block) header() parser.Node { return b.node.Child(0) }

// name is the optional identifier after the header, as in rule NAME {...}.
func (b block) name() (parser.Node, bool) {
	if b.node.NumChildren() > 1 && b.node.Child(1).Kind() == Ident {
		return b.node.Child(1), true
	}
	return parser.Node{}, false
}

func (b block) is(path ...string) bool {
	if len(path) != len(b.path) {
		return false
	}
	for i := range path {
		if path[i] != b.path[i] {
			return false
		}
	}
	return true
}

// body spans the bytes between the braces. A section missing its closing
// brace runs to the end of the text.
func (b block) body(size int) (int, int) {
	start, end := b.node.End(), size
	for _, c := range b.node.Children() {
		switch c.Kind() {
		case LBrace:
			start = c.End()
		case RBrace:
			end = c.Start()
		}
	}
	return start, end
}

// blocks lists every section of the tree in document order.
func blocks(tree *parser.Tree, src string) []block {
	var out []block
	var visit func(n parser.Node, path []string)
	visit = func(n parser.Node, path []string) {
		for _, c := range n.Children() {
			if c.Kind() != Section {
				continue
			}
			p := append(append([]string(nil), path...), c.Child(0).Text(src))
			out = append(out, block{node: c, path: p})
			visit(c, p)
		}
	}
	visit(tree.Root(), nil)
	return out
}

// parentBlock returns the section directly enclosing b, or nil at the top
// level.
func parentBlock(all []block, b block) *block {
	for i := range all {
		outer := &all[i]
		if len(outer.path) == len(b.path)-1 && outer.node.Start() < b.node.Start() && b.node.End() <= outer.node.End() {
			return outer
		}
	}
	return nil
}

// enclosing returns the innermost section whose body contains offset.
func enclosing(tree *parser.Tree, src string, offset int) (block, bool) {
	var best block
	found := false
	for _, b := range blocks(tree, src) {
		if start, end := b.body(tree.Len()); start <= offset && offset <= end {
			best, found = b, true
		}
	}
	return best, found
}

// items returns the direct statements of a section or file.
func items(n parser.Node, kind parser.Kind) []parser.Node {
	var out []parser.Node
	for _, c := range n.Children() {
		if c.Kind() == kind {
			out = append(out, c)
		}
	}
	return out
}

func descendants(n parser.Node, kind parser.Kind) []parser.Node {
	var out []parser.Node
	n.Walk(func(c parser.Node) bool {
		if c.Kind() == kind {
			out = append(out, c)
		}
		return true
	})
	return out
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		if u, err := strconv.Unquote(`"` + strings.ReplaceAll(s[1:len(s)-1], `"`, `\"`) + `"`); err == nil {
			return u
		}
		return s[1 : len(s)-1]
	}
	if len(s) >= 1 && (s[0] == '\'' || s[0] == '"') {
		return s[1:]
	}
	return s
}

func keyNode(assign parser.Node) parser.Node { return assign.Child(0) }

func keyText(assign parser.Node, src string) string {
	return unquote(assign.Child(0).Text(src))
}

// assignmentValues returns the value nodes of an assignment.
func assignmentValues(assign parser.Node) []parser.Node {
	return items(assign, Value)
}

// valueLeaf returns the token of a simple value, or the condition of a
// compound one.
func valueLeaf(v parser.Node) parser.Node { return v.Child(0) }

func callName(call parser.Node) parser.Node { return call.Child(0) }

func callArgs(call parser.Node) []parser.Node { return items(call, Arg) }

// argParts splits an argument into its optional key and its value token.
func argParts(arg parser.Node) (parser.Node, bool, parser.Node) {
	value := arg.Child(arg.NumChildren() - 1)
	if arg.NumChildren() == 3 {
		return arg.Child(0), true, value
	}
	return parser.Node{}, false, value
}

func predicates(cond parser.Node) []parser.Node { return items(cond, Predicate) }

func negated(pred parser.Node) bool { return pred.Child(0).Kind() == Not }

func predicateCall(pred parser.Node) parser.Node {
	return pred.Child(pred.NumChildren() - 1)
}

func ruleCondition(rule parser.Node) parser.Node { return rule.Child(0) }

// outboundName returns the name token of a routing rule's outbound.
func outboundName(rule parser.Node) (parser.Node, bool) {
	o, ok := rule.ChildOfKind(Outbound)
	if !ok {
		return parser.Node{}, false
	}
	c := o.Child(0)
	if c.Kind() == Call {
		return callName(c), true
	}
	return c, true
}

// assignment finds the first assignment with the given key.
func assignment(section parser.Node, key, src string) (parser.Node, bool) {
	for _, a := range items(section, Assignment) {
		if keyText(a, src) == key {
			return a, true
		}
	}
	return parser.Node{}, false
}
