// Package dae describes the dae configuration language to the engine: its
// grammar, symbols, validation rules, completions and hover docs.
package dae

import (
	"strings"

	"daelsp/internal/parser"
)

// Token kinds. Ident is declared before Word so that plain names lex as
// identifiers.
const (
	Ident parser.Kind = parser.KindFirstUser + iota
	Word
	String
	LBrace
	RBrace
	LParen
	RParen
	Comma
	Colon
	Arrow
	And
	Not
	Comment
	Space
)

// Node kinds.
const (
	File parser.Kind = Space + 1 + iota
	Section
	Assignment
	Value
	Call
	Arg
	RoutingRule
	Condition
	Predicate
	Outbound
	Entry
)

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isWordChar(c byte) bool {
	if isIdentChar(c) {
		return true
	}
	switch c {
	case '.', '-', '/', '@', '*', '+':
		return true
	}
	return false
}

func matchIdent(src string, at int) int {
	if !isIdentStart(src[at]) {
		return 0
	}
	n := 1
	for at+n < len(src) && isIdentChar(src[at+n]) {
		n++
	}
	return n
}

// matchWord matches values such as geosite:cn, 224.0.0.0/3 or
// https://example.com. A '-' is left alone before '>' so that a->b lexes as
// an arrow, and ':' belongs to a word only when a word character follows.
func matchWord(src string, at int) int {
	n := 0
	for at+n < len(src) {
		c := src[at+n]
		next := byte(0)
		if at+n+1 < len(src) {
			next = src[at+n+1]
		}
		switch {
		case c == '-' && next == '>':
			return n
		case c == ':':
			if n == 0 || !isWordChar(next) {
				return n
			}
		case !isWordChar(c):
			return n
		}
		n++
	}
	return n
}

// matchString matches a quoted string. An unterminated string runs to the
// end of its line.
func matchString(src string, at int) int {
	quote := src[at]
	if quote != '\'' && quote != '"' {
		return 0
	}
	n := 1
	for at+n < len(src) {
		switch src[at+n] {
		case '\\':
			if at+n+1 < len(src) && src[at+n+1] != '\n' {
				n++
			}
		case quote:
			return n + 1
		case '\n':
			return n
		}
		n++
	}
	return n
}

func matchComment(src string, at int) int {
	if src[at] != '#' {
		return 0
	}
	if i := strings.IndexByte(src[at:], '\n'); i >= 0 {
		return i
	}
	return len(src) - at
}

func matchSpace(src string, at int) int {
	n := 0
	for at+n < len(src) {
		switch src[at+n] {
		case ' ', '\t', '\r', '\n':
			n++
			continue
		}
		break
	}
	return n
}

func literal(s string) func(string, int) int {
	return func(src string, at int) int {
		if strings.HasPrefix(src[at:], s) {
			return len(s)
		}
		return 0
	}
}

var (
	tok    = parser.Tok
	ref    = parser.Ref
	seq    = parser.Seq
	choice = parser.Choice
	opt    = parser.Opt
	many   = parser.Many
	commit = parser.Commit
)

// Grammar is the dae grammar.
var Grammar = (&parser.Grammar{
	Tokens: []parser.TokenRule{
		{Kind: Ident, Name: "identifier", Match: matchIdent},
		{Kind: Word, Name: "value", Match: matchWord},
		{Kind: String, Name: "string", Match: matchString},
		{Kind: LBrace, Name: "'{'", Match: literal("{")},
		{Kind: RBrace, Name: "'}'", Match: literal("}")},
		{Kind: LParen, Name: "'('", Match: literal("(")},
		{Kind: RParen, Name: "')'", Match: literal(")")},
		{Kind: Comma, Name: "','", Match: literal(",")},
		{Kind: Colon, Name: "':'", Match: literal(":")},
		{Kind: Arrow, Name: "'->'", Match: literal("->")},
		{Kind: And, Name: "'&&'", Match: literal("&&")},
		{Kind: Not, Name: "'!'", Match: literal("!")},
		{Kind: Comment, Name: "comment", Match: matchComment, Skip: true},
		{Kind: Space, Name: "whitespace", Match: matchSpace, Skip: true},
	},
	Productions: []parser.Production{
		{Name: "file", Kind: File, Body: parser.Recover(ref("item"))},
		{Name: "item", Body: choice(ref("section"), ref("assignment"), ref("routing rule"), ref("entry"))},
		{Name: "section", Kind: Section, Reusable: true, Body: seq(
			tok(Ident), opt(tok(Ident)), tok(LBrace), commit,
			parser.Recover(ref("item"), RBrace),
			tok(RBrace),
		)},
		{Name: "assignment", Kind: Assignment, Reusable: true, Body: seq(
			choice(tok(Ident), tok(Word), tok(String)), tok(Colon), commit,
			ref("value"), many(seq(tok(Comma), commit, ref("value"))),
		)},
		{Name: "value", Kind: Value, Body: choice(ref("condition"), tok(String), tok(Word), tok(Ident))},
		{Name: "call", Kind: Call, Body: seq(
			tok(Ident), tok(LParen), commit,
			opt(seq(ref("argument"), many(seq(tok(Comma), commit, ref("argument"))))),
			tok(RParen),
		)},
		{Name: "argument", Kind: Arg, Body: seq(
			opt(seq(tok(Ident), tok(Colon))),
			choice(tok(String), tok(Word), tok(Ident)),
		)},
		{Name: "routing rule", Kind: RoutingRule, Reusable: true, Body: seq(
			ref("condition"), commit, tok(Arrow), ref("outbound"),
		)},
		{Name: "condition", Kind: Condition, Body: seq(
			ref("predicate"), many(seq(tok(And), commit, ref("predicate"))),
		)},
		{Name: "predicate", Kind: Predicate, Body: seq(opt(tok(Not)), ref("call"))},
		{Name: "outbound", Kind: Outbound, Body: choice(ref("call"), tok(Ident))},
		{Name: "entry", Kind: Entry, Body: tok(String)},
	},
	Start:     "file",
	Lookahead: 2,
}).MustCompile()
