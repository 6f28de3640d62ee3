package dae

import (
	"fmt"
	"strings"

	"daelsp/internal/analysis"
	"daelsp/internal/parser"
)

func symbolDoc(s analysis.Symbol, builtin bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** `%s`", s.Kind, s.Name)
	if builtin {
		sb.WriteString(" (builtin)")
	}
	if s.Detail != "" {
		fmt.Fprintf(&sb, "\n\n```dae\n%s\n```", s.Detail)
	}
	return sb.String()
}

// Hover describes the token under the cursor: a resolved name, a
// declaration, a function, a section header or a global option.
func (Language) Hover(q analysis.Query) (string, bool) {
	if q.Tree == nil {
		return "", false
	}
	if q.Result != nil {
		if res, ok := q.Result.ResolutionAt(q.Offset); ok {
			if res.Builtin {
				for _, kind := range res.Reference.Kinds {
					if doc, ok := (Language{}).Builtin(kind, res.Reference.Name); ok {
						return fmt.Sprintf("**%s** `%s` (builtin)\n\n%s", kind, res.Reference.Name, doc), true
					}
				}
				return "", false
			}
			return symbolDoc(res.Symbol, false), true
		}
		if sym, ok := q.Result.Symbols.At(q.Offset); ok {
			return symbolDoc(sym, false), true
		}
	}

	path := q.Tree.PathAt(q.Offset)
	if len(path) == 1 {
		path = q.Tree.PathBefore(q.Offset)
	}
	leaf := path[len(path)-1]
	if !leaf.IsToken() || leaf.Kind() != Ident || len(path) < 2 {
		return "", false
	}
	parent := path[len(path)-2]
	text := leaf.Text(q.Text)
	b, inBlock := enclosing(q.Tree, q.Text, q.Offset)

	switch parent.Kind() {
	case Call:
		if callName(parent).Start() != leaf.Start() {
			return "", false
		}
		table := routingFunctions
		if inBlock {
			if fns := functionsFor(b); fns != nil {
				table = fns
			}
			if len(b.path) == 2 && b.path[0] == "group" && isPolicy(path, q.Text) {
				table = policies
			}
		}
		if doc, ok := lookup(table, text); ok {
			return fmt.Sprintf("**function** `%s`\n\n%s", text, doc), true
		}
	case Section:
		if parent.Child(0).Start() != leaf.Start() {
			return "", false
		}
		return sectionDoc(q.Tree, q.Text, parent, text)
	case Assignment:
		if keyNode(parent).Start() != leaf.Start() || !inBlock {
			return "", false
		}
		table := globalKeys
		if !b.is("global") {
			table = groupKeys
		}
		if doc, ok := lookup(table, text); ok {
			return fmt.Sprintf("**option** `%s`\n\n%s", text, doc), true
		}
	case Value:
		if inBlock && len(b.path) == 2 && b.path[0] == "group" {
			if doc, ok := lookup(policies, text); ok {
				return fmt.Sprintf("**policy** `%s`\n\n%s", text, doc), true
			}
		}
	}
	return "", false
}

// isPolicy reports whether path runs through a policy assignment.
func isPolicy(path []parser.Node, src string) bool {
	for _, n := range path {
		if n.Kind() == Assignment && keyText(n, src) == "policy" {
			return true
		}
	}
	return false
}

func sectionDoc(tree *parser.Tree, src string, section parser.Node, header string) (string, bool) {
	all := blocks(tree, src)
	var parent *block
	for _, b := range all {
		if b.node.Start() == section.Start() {
			parent = parentBlock(all, b)
			break
		}
	}
	table, ok := childSections(parent)
	if !ok {
		return "", false
	}
	doc, ok := lookup(table, header)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("**section** `%s`\n\n%s", header, doc), true
}
