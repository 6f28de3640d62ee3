package dae

import (
	"daelsp/internal/analysis"
	"daelsp/internal/parser"
)

func declare(out []analysis.Declaration, n parser.Node, src string, kind analysis.SymbolKind, detail, container string) []analysis.Declaration {
	name := unquote(n.Text(src))
	if name == "" {
		return out
	}
	return append(out, analysis.Declaration{
		Name:      name,
		Kind:      kind,
		Start:     n.Start(),
		End:       n.End(),
		Detail:    detail,
		Container: container,
	})
}

func firstValueText(assign parser.Node, src string) string {
	vals := assignmentValues(assign)
	if len(vals) == 0 {
		return ""
	}
	return vals[0].Text(src)
}

func (Language) Declarations(tree *parser.Tree, src string) []analysis.Declaration {
	var out []analysis.Declaration
	for _, b := range blocks(tree, src) {
		switch {
		case b.is("rule"):
			if name, ok := b.name(); ok {
				detail := ""
				if m, ok := assignment(b.node, "match", src); ok {
					detail = firstValueText(m, src)
				}
				out = declare(out, name, src, KindRule, detail, "")
			}
		case len(b.path) == 2 && b.path[0] == "group":
			detail := ""
			if p, ok := assignment(b.node, "policy", src); ok {
				detail = "policy: " + firstValueText(p, src)
			}
			out = declare(out, b.header(), src, KindGroup, detail, "group")
		case b.is("node"):
			for _, a := range items(b.node, Assignment) {
				out = declare(out, keyNode(a), src, KindNode, firstValueText(a, src), "node")
			}
		case b.is("subscription"):
			for _, a := range items(b.node, Assignment) {
				out = declare(out, keyNode(a), src, KindSubscription, firstValueText(a, src), "subscription")
			}
		case b.is("dns", "upstream"):
			for _, a := range items(b.node, Assignment) {
				out = declare(out, keyNode(a), src, KindUpstream, firstValueText(a, src), "dns.upstream")
			}
		}
	}
	return out
}

func reference(out []analysis.Reference, n parser.Node, src string, kinds ...analysis.SymbolKind) []analysis.Reference {
	if n.IsMissing() {
		return out
	}
	name := unquote(n.Text(src))
	if name == "" {
		return out
	}
	return append(out, analysis.Reference{Name: name, Kinds: kinds, Start: n.Start(), End: n.End()})
}

// callReferences collects the names passed to functions that refer to
// declarations: rule(X), upstream(X), and in groups name(X) and subtag(X).
func callReferences(out []analysis.Reference, b block, n parser.Node, src string) []analysis.Reference {
	inGroup := len(b.path) == 2 && b.path[0] == "group"
	for _, call := range descendants(n, Call) {
		var kind analysis.SymbolKind
		switch callName(call).Text(src) {
		case "rule":
			kind = KindRule
		case "upstream":
			if !b.is("dns", "routing", "response") {
				continue
			}
			kind = KindUpstream
		case "name":
			if !inGroup {
				continue
			}
			kind = KindNode
		case "subtag":
			if !inGroup {
				continue
			}
			kind = KindSubscription
		default:
			continue
		}
		for _, arg := range callArgs(call) {
			if _, keyed, value := argParts(arg); !keyed {
				out = reference(out, value, src, kind)
			}
		}
	}
	return out
}

func (Language) References(tree *parser.Tree, src string) []analysis.Reference {
	var out []analysis.Reference
	for _, b := range blocks(tree, src) {
		kind, routes := outboundKind(b)
		for _, rule := range items(b.node, RoutingRule) {
			out = callReferences(out, b, ruleCondition(rule), src)
			if routes {
				if name, ok := outboundName(rule); ok {
					out = reference(out, name, src, kind)
				}
			}
		}
		for _, a := range items(b.node, Assignment) {
			out = callReferences(out, b, a, src)
			if routes && keyText(a, src) == "fallback" {
				for _, v := range assignmentValues(a) {
					leaf := valueLeaf(v)
					switch leaf.Kind() {
					case Ident, String:
						out = reference(out, leaf, src, kind)
					case Condition:
						// fallback: direct(must)
						if preds := predicates(leaf); len(preds) == 1 && !negated(preds[0]) {
							out = reference(out, callName(predicateCall(preds[0])), src, kind)
						}
					}
				}
			}
		}
	}
	return out
}

func (Language) Builtin(kind analysis.SymbolKind, name string) (string, bool) {
	return lookup(builtinsFor(kind), name)
}
