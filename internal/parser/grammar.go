package parser

import (
	"fmt"
)

// Kind identifies a token or node type. Kinds below KindFirstUser are
// reserved for the engine; grammars allocate their own from KindFirstUser up.
type Kind uint16

const (
	KindInvalid Kind = iota
	KindError        // unparseable input
	KindMissing      // zero-width placeholder for an expected element
	KindEOF          // end of input sentinel, never stored in a tree
	KindFirstUser
)

// TokenRule matches one token kind at a byte offset. Match returns the length
// of the match, or 0 when the rule does not apply.
type TokenRule struct {
	Kind  Kind
	Name  string
	Match func(src string, at int) int
	// Skip marks trivia (whitespace, comments) the parser never sees.
	Skip bool
}

type op uint8

const (
	opTok op = iota
	opSeq
	opChoice
	opMany
	opOpt
	opRef
	opRecover
	opCommit
)

// Expr is a production body built from the combinators below.
type Expr struct {
	op    op
	kind  Kind
	text  string
	items []Expr
	name  string
	until []Kind
}

// Tok matches a single token of the given kind.
func Tok(k Kind) Expr { return Expr{op: opTok, kind: k} }

// Keyword matches a single token of the given kind whose text equals text.
func Keyword(k Kind, text string) Expr { return Expr{op: opTok, kind: k, text: text} }

// Seq matches its items in order. Items following Commit no longer fail the
// sequence: when one does not match, a Missing node is recorded instead.
func Seq(items ...Expr) Expr { return Expr{op: opSeq, items: items} }

// Choice tries every alternative and keeps the longest match. On equal
// length the earlier alternative wins.
func Choice(alts ...Expr) Expr { return Expr{op: opChoice, items: alts} }

// Many matches item zero or more times and stops at the first failure.
func Many(item Expr) Expr { return Expr{op: opMany, items: []Expr{item}} }

// Opt matches item or nothing.
func Opt(item Expr) Expr { return Expr{op: opOpt, items: []Expr{item}} }

// Ref refers to a named production.
func Ref(name string) Expr { return Expr{op: opRef, name: name} }

// Recover matches item repeatedly until end of input or one of the until
// kinds. Tokens where item cannot start are wrapped into Error nodes.
func Recover(item Expr, until ...Kind) Expr {
	return Expr{op: opRecover, items: []Expr{item}, until: until}
}

// Commit marks the point in a Seq after which the sequence is committed.
var Commit = Expr{op: opCommit}

// Production is a named grammar rule. Productions with Kind 0 are hidden:
// their children are spliced into the parent.
type Production struct {
	Name string
	Kind Kind
	Body Expr
	// Reusable productions are candidates for incremental subtree reuse.
	Reusable bool
}

// Grammar is the collaborator-supplied description of a language.
type Grammar struct {
	Tokens      []TokenRule
	Productions []Production
	Start       string
	Root        Kind
	// Lookahead is the maximum number of bytes past a token's end any token
	// rule inspects before deciding the token's length.
	Lookahead int

	names map[Kind]string
	prods map[string]int
}

// Compile validates the grammar and indexes its productions. It must be
// called once before the grammar is used.
func (g *Grammar) Compile() error {
	g.names = map[Kind]string{
		KindError:   "error",
		KindMissing: "missing",
		KindEOF:     "end of input",
	}
	g.prods = make(map[string]int, len(g.Productions))
	reusable := map[Kind]string{}

	for _, t := range g.Tokens {
		if t.Kind < KindFirstUser {
			return fmt.Errorf("token %q uses reserved kind %d", t.Name, t.Kind)
		}
		if t.Match == nil {
			return fmt.Errorf("token %q has no matcher", t.Name)
		}
		g.names[t.Kind] = t.Name
	}
	for i, p := range g.Productions {
		if _, ok := g.prods[p.Name]; ok {
			return fmt.Errorf("production %q declared twice", p.Name)
		}
		g.prods[p.Name] = i
		if p.Kind != KindInvalid {
			g.names[p.Kind] = p.Name
		}
		if p.Reusable && p.Kind == KindInvalid {
			return fmt.Errorf("production %q is reusable but hidden", p.Name)
		}
		if p.Reusable {
			if other, ok := reusable[p.Kind]; ok {
				return fmt.Errorf("reusable productions %q and %q share a kind", other, p.Name)
			}
			reusable[p.Kind] = p.Name
		}
	}
	if _, ok := g.prods[g.Start]; !ok {
		return fmt.Errorf("start production %q not declared", g.Start)
	}
	for _, p := range g.Productions {
		if err := g.checkRefs(p.Name, p.Body); err != nil {
			return err
		}
	}
	if g.Lookahead < 1 {
		g.Lookahead = 1
	}
	if g.Root == KindInvalid {
		g.Root = g.Productions[g.prods[g.Start]].Kind
	}
	return nil
}

// MustCompile is Compile for package-level grammar declarations.
func (g *Grammar) MustCompile() *Grammar {
	if err := g.Compile(); err != nil {
		panic(err)
	}
	return g
}

func (g *Grammar) checkRefs(owner string, e Expr) error {
	if e.op == opRef {
		if _, ok := g.prods[e.name]; !ok {
			return fmt.Errorf("production %q refers to undeclared %q", owner, e.name)
		}
	}
	for _, item := range e.items {
		if err := g.checkRefs(owner, item); err != nil {
			return err
		}
	}
	return nil
}

// KindName returns the declared name of a kind.
func (g *Grammar) KindName(k Kind) string {
	if name, ok := g.names[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", k)
}

// expected describes what an expression would have matched, for Missing nodes.
func (g *Grammar) expected(e Expr) Kind {
	switch e.op {
	case opTok:
		return e.kind
	case opRef:
		p := g.Productions[g.prods[e.name]]
		if p.Kind != KindInvalid {
			return p.Kind
		}
		return g.expected(p.Body)
	case opSeq, opChoice:
		for _, item := range e.items {
			if item.op != opCommit {
				return g.expected(item)
			}
		}
	}
	return KindInvalid
}
