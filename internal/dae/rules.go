package dae

import (
	"sort"
	"strings"

	"daelsp/internal/analysis"
	"daelsp/internal/parser"
)

// Diagnostic codes of the dae rules.
const (
	CodeUnknownSection         = "unknown-section"
	CodeUnknownFunction        = "unknown-function"
	CodeContradictoryPredicate = "contradictory-predicate"
	CodeUnreachableRule        = "unreachable-rule"
	CodeMissingFallback        = "missing-fallback"
	CodeMissingPolicy          = "missing-policy"
	CodeUnknownPolicy          = "unknown-policy"
	CodeMissingMatch           = "missing-match"
	CodeDuplicateKey           = "duplicate-key"
	CodeUnterminatedString     = "unterminated-string"
)

var rules = []analysis.Rule{
	{Code: CodeUnknownSection, Check: checkSections},
	{Code: CodeUnknownFunction, Check: checkFunctions},
	{Code: CodeContradictoryPredicate, Check: checkContradictions},
	{Code: CodeUnreachableRule, Check: checkUnreachable},
	{Code: CodeMissingFallback, Check: checkFallback},
	{Code: CodeMissingPolicy, Check: checkPolicy},
	{Code: CodeUnknownPolicy, Check: checkPolicyName},
	{Code: CodeMissingMatch, Check: checkMatch},
	{Code: CodeDuplicateKey, Check: checkDuplicateKeys},
	{Code: CodeUnterminatedString, Check: checkStrings},
}

func checkSections(p *analysis.Pass) error {
	all := blocks(p.Tree, p.Text)
	for _, b := range all {
		parent := parentBlock(all, b)
		allowed, restricted := childSections(parent)
		if !restricted {
			continue
		}
		header := b.header()
		if _, ok := lookup(allowed, header.Text(p.Text)); !ok {
			where := "at the top level"
			if parent != nil {
				where = "in " + strings.Join(parent.path, ".")
			}
			p.Node(header, analysis.SeverityError, "unknown section %q %s", header.Text(p.Text), where)
		}
	}
	return nil
}

func checkFunctions(p *analysis.Pass) error {
	for _, b := range blocks(p.Tree, p.Text) {
		known := functionsFor(b)
		if known == nil {
			continue
		}
		var conds []parser.Node
		for _, r := range items(b.node, RoutingRule) {
			conds = append(conds, ruleCondition(r))
		}
		for _, a := range items(b.node, Assignment) {
			key := keyText(a, p.Text)
			if key != "filter" && key != "match" {
				continue
			}
			for _, v := range assignmentValues(a) {
				if leaf := valueLeaf(v); leaf.Kind() == Condition {
					conds = append(conds, leaf)
				}
			}
		}
		for _, cond := range conds {
			for _, pred := range predicates(cond) {
				name := callName(predicateCall(pred))
				if _, ok := lookup(known, name.Text(p.Text)); !ok {
					p.Node(name, analysis.SeverityError, "unknown function %q in %s", name.Text(p.Text), strings.Join(b.path, "."))
				}
			}
		}
	}
	return nil
}

// predicate is a normalized routing predicate: f(a, b) matches when any
// argument matches.
type predicate struct {
	negated bool
	fn      string
	args    []string
	node    parser.Node
}

func (q predicate) String() string {
	s := q.fn + "(" + strings.Join(q.args, ", ") + ")"
	if q.negated {
		return "!" + s
	}
	return s
}

func normalize(pred parser.Node, src string) predicate {
	call := predicateCall(pred)
	q := predicate{negated: negated(pred), fn: callName(call).Text(src), node: pred}
	for _, arg := range callArgs(call) {
		key, keyed, value := argParts(arg)
		a := unquote(value.Text(src))
		if keyed {
			a = key.Text(src) + ":" + a
		}
		q.args = append(q.args, a)
	}
	sort.Strings(q.args)
	return q
}

func conditionOf(cond parser.Node, src string) []predicate {
	var out []predicate
	for _, pred := range predicates(cond) {
		out = append(out, normalize(pred, src))
	}
	return out
}

func subset(a, b []string) bool {
	set := make(map[string]bool, len(b))
	for _, s := range b {
		set[s] = true
	}
	for _, s := range a {
		if !set[s] {
			return false
		}
	}
	return true
}

// implies reports whether q matching guarantees r matching.
func implies(q, r predicate) bool {
	if q.fn != r.fn || q.negated != r.negated {
		return false
	}
	if q.negated {
		return subset(r.args, q.args)
	}
	return subset(q.args, r.args)
}

// exclusive functions match a single attribute, so two of them with disjoint
// arguments can never hold at once.
var exclusive = map[string]bool{"l4proto": true, "ipversion": true}

func disjoint(a, b []string) bool {
	for _, s := range a {
		for _, t := range b {
			if s == t {
				return false
			}
		}
	}
	return true
}

func routingConditions(p *analysis.Pass) []parser.Node {
	var out []parser.Node
	for _, b := range blocks(p.Tree, p.Text) {
		if functionsFor(b) == nil {
			continue
		}
		for _, r := range items(b.node, RoutingRule) {
			out = append(out, ruleCondition(r))
		}
		if m, ok := assignment(b.node, "match", p.Text); ok && b.is("rule") {
			for _, v := range assignmentValues(m) {
				if leaf := valueLeaf(v); leaf.Kind() == Condition {
					out = append(out, leaf)
				}
			}
		}
	}
	return out
}

func checkContradictions(p *analysis.Pass) error {
	for _, cond := range routingConditions(p) {
		preds := conditionOf(cond, p.Text)
	pairs:
		for i, a := range preds {
			for _, b := range preds[i+1:] {
				contradicts := a.fn == b.fn && a.negated != b.negated && strings.Join(a.args, "\x00") == strings.Join(b.args, "\x00")
				if !contradicts && exclusive[a.fn] && a.fn == b.fn && !a.negated && !b.negated {
					contradicts = disjoint(a.args, b.args)
				}
				if contradicts {
					p.Node(cond, analysis.SeverityWarning, "condition can never match: %s contradicts %s", b, a)
					break pairs
				}
			}
		}
	}
	return nil
}

func checkUnreachable(p *analysis.Pass) error {
	for _, b := range blocks(p.Tree, p.Text) {
		if _, ok := outboundKind(b); !ok {
			continue
		}
		rules := items(b.node, RoutingRule)
		conds := make([][]predicate, len(rules))
		for i, r := range rules {
			conds[i] = conditionOf(ruleCondition(r), p.Text)
		}
		for j := range rules {
			for i := 0; i < j; i++ {
				if shadows(conds[i], conds[j]) {
					line := strings.Count(p.Text[:rules[i].Start()], "\n") + 1
					p.Node(rules[j], analysis.SeverityWarning, "unreachable rule: line %d already matches everything it matches", line)
					break
				}
			}
		}
	}
	return nil
}

// shadows reports whether an earlier rule with condition earlier matches
// whenever later does: each of its predicates is implied by one of later's.
func shadows(earlier, later []predicate) bool {
	if len(earlier) == 0 || len(later) == 0 {
		return false
	}
	for _, e := range earlier {
		found := false
		for _, l := range later {
			if implies(l, e) {
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

func checkFallback(p *analysis.Pass) error {
	for _, b := range blocks(p.Tree, p.Text) {
		if _, ok := outboundKind(b); !ok {
			continue
		}
		if _, ok := assignment(b.node, "fallback", p.Text); ok {
			continue
		}
		severity := analysis.SeverityError
		if !b.is("routing") {
			severity = analysis.SeverityWarning
		}
		p.Node(b.header(), severity, "%s has no fallback", strings.Join(b.path, "."))
	}
	return nil
}

func groupMembers(p *analysis.Pass) []block {
	var out []block
	for _, b := range blocks(p.Tree, p.Text) {
		if len(b.path) == 2 && b.path[0] == "group" {
			out = append(out, b)
		}
	}
	return out
}

func checkPolicy(p *analysis.Pass) error {
	for _, b := range groupMembers(p) {
		if _, ok := assignment(b.node, "policy", p.Text); !ok {
			p.Node(b.header(), analysis.SeverityError, "group %q has no policy", b.header().Text(p.Text))
		}
	}
	return nil
}

func checkPolicyName(p *analysis.Pass) error {
	for _, b := range groupMembers(p) {
		a, ok := assignment(b.node, "policy", p.Text)
		if !ok {
			continue
		}
		for _, v := range assignmentValues(a) {
			leaf := valueLeaf(v)
			name := leaf
			if leaf.Kind() == Condition {
				name = callName(predicateCall(predicates(leaf)[0]))
			}
			if _, ok := lookup(policies, unquote(name.Text(p.Text))); !ok {
				p.Node(name, analysis.SeverityError, "unknown policy %q", name.Text(p.Text))
			}
		}
	}
	return nil
}

func checkMatch(p *analysis.Pass) error {
	for _, b := range blocks(p.Tree, p.Text) {
		if !b.is("rule") {
			continue
		}
		if _, ok := assignment(b.node, "match", p.Text); !ok {
			at := b.header()
			if name, ok := b.name(); ok {
				at = name
			}
			p.Node(at, analysis.SeverityError, "rule %q has no match", at.Text(p.Text))
		}
	}
	return nil
}

// keys of these sections are declarations; repeats are reported as
// duplicate declarations instead.
var declaringSections = [][]string{{"node"}, {"subscription"}, {"dns", "upstream"}}

func checkDuplicateKeys(p *analysis.Pass) error {
	for _, b := range blocks(p.Tree, p.Text) {
		skip := false
		for _, d := range declaringSections {
			if b.is(d...) {
				skip = true
			}
		}
		if skip {
			continue
		}
		seen := map[string]bool{}
		for _, a := range items(b.node, Assignment) {
			key := keyText(a, p.Text)
			if key == "filter" {
				continue
			}
			if seen[key] {
				p.Node(keyNode(a), analysis.SeverityWarning, "duplicate key %q in %s", key, strings.Join(b.path, "."))
			}
			seen[key] = true
		}
	}
	return nil
}

func checkStrings(p *analysis.Pass) error {
	p.Tree.Root().Walk(func(n parser.Node) bool {
		if n.IsToken() && n.Kind() == String {
			s := n.Text(p.Text)
			if len(s) < 2 || s[len(s)-1] != s[0] || strings.HasSuffix(s, `\`+s[:1]) && !strings.HasSuffix(s, `\\`+s[:1]) {
				p.Node(n, analysis.SeverityError, "unterminated string")
			}
		}
		return true
	})
	return nil
}
