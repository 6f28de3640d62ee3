package dae

import (
	"sort"
	"strings"

	"daelsp/internal/analysis"
	"daelsp/internal/parser"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// leaves returns the non-empty tokens of the tree in document order.
func leaves(tree *parser.Tree) []parser.Node {
	var out []parser.Node
	tree.Root().Walk(func(n parser.Node) bool {
		if n.IsToken() && n.End() > n.Start() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// openCall finds the call whose argument list is still open at the end of
// toks and returns its name.
func openCall(toks []parser.Node, src string) (string, bool) {
	depth := 0
	for j := len(toks) - 1; j >= 0; j-- {
		switch toks[j].Kind() {
		case RParen:
			depth++
		case LParen:
			if depth > 0 {
				depth--
				continue
			}
			if j > 0 && toks[j-1].Kind() == Ident {
				return toks[j-1].Text(src), true
			}
			return "", false
		case LBrace, RBrace, Arrow:
			return "", false
		}
	}
	return "", false
}

type completions struct {
	prefix string
	seen   map[string]bool
	items  []protocol.CompletionItem
}

func (c *completions) add(label string, kind protocol.CompletionItemKind, detail, doc string) {
	if !strings.HasPrefix(label, c.prefix) || c.seen[label] {
		return
	}
	c.seen[label] = true
	item := protocol.CompletionItem{Label: label, Kind: &kind}
	if detail != "" {
		item.Detail = &detail
	}
	if doc != "" {
		item.Documentation = protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: doc}
	}
	c.items = append(c.items, item)
}

func (c *completions) entries(table []entry, kind protocol.CompletionItemKind, detail string) {
	for _, e := range table {
		c.add(e.name, kind, detail, e.doc)
	}
}

// symbols offers the names of kind declared in the document and the
// workspace.
func (c *completions) symbols(q analysis.Query, kind analysis.SymbolKind) {
	var all []analysis.Symbol
	if q.Result != nil {
		all = append(all, q.Result.Symbols.All()...)
	}
	if q.Workspace != nil {
		all = append(all, q.Workspace.Symbols(kind)...)
	}
	for _, s := range all {
		if s.Kind == kind {
			c.add(s.Name, protocol.CompletionItemKindReference, string(kind), s.Detail)
		}
	}
}

func (c *completions) outbounds(q analysis.Query, b block) {
	kind, ok := outboundKind(b)
	if !ok {
		return
	}
	c.symbols(q, kind)
	c.entries(builtinsFor(kind), protocol.CompletionItemKindConstant, "builtin")
}

var domainKeys = []entry{
	{"suffix", "Matches the domain and its subdomains."},
	{"full", "Matches the domain exactly."},
	{"keyword", "Matches domains containing the text."},
	{"regex", "Matches domains against a regular expression."},
	{"geosite", "Matches a geosite list, e.g. `geosite:cn`."},
}

var nameKeys = []entry{
	{"keyword", "Selects nodes whose name contains the text."},
	{"regex", "Selects nodes whose name matches a regular expression."},
}

func (c *completions) arguments(q analysis.Query, fn string) {
	switch fn {
	case "rule":
		c.symbols(q, KindRule)
	case "upstream":
		c.symbols(q, KindUpstream)
	case "subtag":
		c.symbols(q, KindSubscription)
	case "name":
		c.symbols(q, KindNode)
		for _, e := range nameKeys {
			c.add(e.name+":", protocol.CompletionItemKindKeyword, "", e.doc)
		}
	case "domain", "qname":
		for _, e := range domainKeys {
			c.add(e.name+":", protocol.CompletionItemKindKeyword, "", e.doc)
		}
	case "l4proto":
		c.add("tcp", protocol.CompletionItemKindValue, "", "")
		c.add("udp", protocol.CompletionItemKindValue, "", "")
	case "ipversion":
		c.add("4", protocol.CompletionItemKindValue, "", "")
		c.add("6", protocol.CompletionItemKindValue, "", "")
	}
}

// statements offers what may start a statement in b, or at the top level
// when b is nil.
func (c *completions) statements(b *block) {
	if b == nil {
		c.entries(topSections, protocol.CompletionItemKindModule, "section")
		return
	}
	if sections, ok := childSections(b); ok && sections != nil {
		c.entries(sections, protocol.CompletionItemKindModule, "section")
	}
	switch {
	case b.is("global"):
		c.entries(globalKeys, protocol.CompletionItemKindProperty, "global option")
	case b.is("rule"):
		c.add("match", protocol.CompletionItemKindProperty, "", "The condition of the rule.")
	case len(b.path) == 2 && b.path[0] == "group":
		c.entries(groupKeys, protocol.CompletionItemKindProperty, "")
	}
	if _, ok := outboundKind(*b); ok {
		c.entries(functionsFor(*b), protocol.CompletionItemKindFunction, "function")
		c.add("fallback", protocol.CompletionItemKindProperty, "", "Where traffic goes when no rule matches.")
	}
}

func (Language) Complete(q analysis.Query) []protocol.CompletionItem {
	if q.Tree == nil || q.Offset < 0 || q.Offset > len(q.Text) {
		return nil
	}
	start := q.Offset
	for start > 0 && isIdentChar(q.Text[start-1]) {
		start--
	}
	c := &completions{prefix: q.Text[start:q.Offset], seen: map[string]bool{}}

	toks := leaves(q.Tree)
	i := sort.Search(len(toks), func(i int) bool { return toks[i].End() > start })
	toks = toks[:i]

	var inside *block
	b, ok := enclosing(q.Tree, q.Text, start)
	if ok {
		inside = &b
	}

	if fn, ok := openCall(toks, q.Text); ok {
		c.arguments(q, fn)
		return c.sorted()
	}
	if len(toks) > 0 {
		switch toks[len(toks)-1].Kind() {
		case Arrow:
			c.outbounds(q, b)
			return c.sorted()
		case And, Not:
			if inside != nil {
				c.entries(functionsFor(b), protocol.CompletionItemKindFunction, "function")
			}
			return c.sorted()
		case Colon:
			if len(toks) < 2 || inside == nil {
				return nil
			}
			switch unquote(toks[len(toks)-2].Text(q.Text)) {
			case "fallback":
				c.outbounds(q, b)
			case "policy":
				c.entries(policies, protocol.CompletionItemKindEnumMember, "policy")
			case "filter", "match":
				c.entries(functionsFor(b), protocol.CompletionItemKindFunction, "function")
			}
			return c.sorted()
		}
	}
	c.statements(inside)
	return c.sorted()
}

func (c *completions) sorted() []protocol.CompletionItem {
	sort.Slice(c.items, func(i, j int) bool { return c.items[i].Label < c.items[j].Label })
	return c.items
}
