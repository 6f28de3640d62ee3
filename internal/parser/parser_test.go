package parser_test

import (
	"math/rand"
	"strings"
	"testing"

	"daelsp/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	kIdent parser.Kind = parser.KindFirstUser + iota
	kNum
	kLBrace
	kRBrace
	kEq
	kEqEq
	kSemi
	kSpace
	kFile
	kBlock
	kAssign
	kA
	kB
)

func lit(s string) func(string, int) int {
	return func(src string, at int) int {
		if strings.HasPrefix(src[at:], s) {
			return len(s)
		}
		return 0
	}
}

func span(pred func(byte) bool) func(string, int) int {
	return func(src string, at int) int {
		n := 0
		for at+n < len(src) && pred(src[at+n]) {
			n++
		}
		return n
	}
}

func isLower(c byte) bool { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isSpace(c byte) bool { return c == ' ' || c == '\n' || c == '\t' }

var tokens = []parser.TokenRule{
	{Kind: kIdent, Name: "Ident", Match: span(isLower)},
	{Kind: kNum, Name: "Num", Match: span(isDigit)},
	{Kind: kLBrace, Name: "LBrace", Match: lit("{")},
	{Kind: kRBrace, Name: "RBrace", Match: lit("}")},
	{Kind: kEq, Name: "Eq", Match: lit("=")},
	{Kind: kEqEq, Name: "EqEq", Match: lit("==")},
	{Kind: kSemi, Name: "Semi", Match: lit(";")},
	{Kind: kSpace, Name: "Space", Match: span(isSpace), Skip: true},
}

var blocks = (&parser.Grammar{
	Tokens: tokens,
	Productions: []parser.Production{
		{Name: "File", Kind: kFile, Body: parser.Recover(parser.Ref("Stmt"))},
		{Name: "Stmt", Body: parser.Choice(parser.Ref("Block"), parser.Ref("Assign"))},
		{Name: "Block", Kind: kBlock, Reusable: true, Body: parser.Seq(
			parser.Tok(kIdent), parser.Tok(kLBrace), parser.Commit,
			parser.Recover(parser.Ref("Stmt"), kRBrace),
			parser.Tok(kRBrace),
		)},
		{Name: "Assign", Kind: kAssign, Reusable: true, Body: parser.Seq(
			parser.Tok(kIdent), parser.Tok(kEq), parser.Commit,
			parser.Choice(parser.Tok(kNum), parser.Tok(kIdent)),
			parser.Tok(kSemi),
		)},
	},
	Start: "File",
}).MustCompile()

func TestParseWellFormed(t *testing.T) {
	src := "a = 1; b { c = d; }"
	tree := parser.Parse(blocks, nil, src, nil)
	assert.Equal(t,
		`(File (Assign Ident:"a" Eq:"=" Num:"1" Semi:";") (Block Ident:"b" LBrace:"{" (Assign Ident:"c" Eq:"=" Ident:"d" Semi:";") RBrace:"}"))`,
		tree.Dump(src))
	assert.Equal(t, 0, tree.Root().Start())
	assert.Equal(t, len(src), tree.Root().End())
}

func TestParseRecovery(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "missing value",
			src:  "a = ;",
			want: `(File (Assign Ident:"a" Eq:"=" (MISSING Num) Semi:";"))`,
		},
		{
			name: "stray token",
			src:  "} a = 1;",
			want: `(File (error RBrace:"}") (Assign Ident:"a" Eq:"=" Num:"1" Semi:";"))`,
		},
		{
			name: "unclosed block",
			src:  "b { c = 1;",
			want: `(File (Block Ident:"b" LBrace:"{" (Assign Ident:"c" Eq:"=" Num:"1" Semi:";") (MISSING RBrace)))`,
		},
		{
			name: "unknown bytes",
			src:  "a = 1; ?? b = 2;",
			want: `(File (Assign Ident:"a" Eq:"=" Num:"1" Semi:";") (error error:"?" error:"?") (Assign Ident:"b" Eq:"=" Num:"2" Semi:";"))`,
		},
		{
			name: "unknown bytes are escaped",
			src:  "a = 1; \\ b = 2;",
			want: `(File (Assign Ident:"a" Eq:"=" Num:"1" Semi:";") (error error:"\\") (Assign Ident:"b" Eq:"=" Num:"2" Semi:";"))`,
		},
		{
			name: "empty",
			src:  "",
			want: `(File)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree := parser.Parse(blocks, nil, tt.src, nil)
			assert.Equal(t, tt.want, tree.Dump(tt.src))
			assert.Equal(t, len(tt.src), tree.Root().End())
		})
	}
}

func TestMissingSitsAfterLastToken(t *testing.T) {
	src := "b { c = 1;\n\n"
	tree := parser.Parse(blocks, nil, src, nil)
	block := tree.Root().Child(0)
	last := block.Child(block.NumChildren() - 1)
	require.True(t, last.IsMissing())
	assert.Equal(t, strings.Index(src, ";")+1, last.Start())
	assert.Equal(t, kRBrace, last.Expected())
}

func TestLexerLongestMatch(t *testing.T) {
	g := (&parser.Grammar{
		Tokens: tokens,
		Productions: []parser.Production{
			{Name: "File", Kind: kFile, Body: parser.Many(parser.Choice(parser.Tok(kEq), parser.Tok(kEqEq)))},
		},
		Start: "File",
	}).MustCompile()
	src := "=== ="
	assert.Equal(t, `(File EqEq:"==" Eq:"=" Eq:"=")`, parser.Parse(g, nil, src, nil).Dump(src))
}

func TestChoiceTieBreak(t *testing.T) {
	g := (&parser.Grammar{
		Tokens: tokens,
		Productions: []parser.Production{
			{Name: "File", Kind: kFile, Body: parser.Choice(parser.Ref("A"), parser.Ref("B"))},
			{Name: "A", Kind: kA, Body: parser.Tok(kIdent)},
			{Name: "B", Kind: kB, Body: parser.Seq(parser.Tok(kIdent), parser.Opt(parser.Tok(kIdent)))},
		},
		Start: "File",
	}).MustCompile()

	// equal length: the earlier alternative
	assert.Equal(t, `(File (A Ident:"x"))`, parser.Parse(g, nil, "x", nil).Dump("x"))
	// longer match wins regardless of order
	assert.Equal(t, `(File (B Ident:"x" Ident:"y"))`, parser.Parse(g, nil, "x y", nil).Dump("x y"))
}

func TestCompileErrors(t *testing.T) {
	g := &parser.Grammar{
		Tokens:      tokens,
		Productions: []parser.Production{{Name: "File", Kind: kFile, Body: parser.Ref("Nope")}},
		Start:       "File",
	}
	require.ErrorContains(t, g.Compile(), "undeclared")

	g = &parser.Grammar{
		Tokens:      tokens,
		Productions: []parser.Production{{Name: "File", Kind: kFile, Body: parser.Tok(kIdent)}},
		Start:       "Main",
	}
	require.ErrorContains(t, g.Compile(), "not declared")

	g = &parser.Grammar{
		Tokens:      tokens,
		Productions: []parser.Production{{Name: "File", Body: parser.Tok(kIdent), Reusable: true}},
		Start:       "File",
	}
	require.ErrorContains(t, g.Compile(), "hidden")
}

func TestNodeAt(t *testing.T) {
	src := "a = 1;"
	tree := parser.Parse(blocks, nil, src, nil)

	n := tree.NodeAt(4)
	assert.Equal(t, kNum, n.Kind())
	assert.Equal(t, "1", n.Text(src))

	path := tree.PathAt(4)
	require.Len(t, path, 3)
	assert.Equal(t, kFile, path[0].Kind())
	assert.Equal(t, kAssign, path[1].Kind())

	// between tokens the innermost node is the enclosing production
	assert.Equal(t, kAssign, tree.NodeAt(1).Kind())

	before := tree.PathBefore(5)
	assert.Equal(t, kNum, before[len(before)-1].Kind())

	leaf, ok := tree.LeafBefore(4)
	require.True(t, ok)
	assert.Equal(t, kEq, leaf.Kind())
}

func edit(src string, start, end int, text string) (string, parser.Change) {
	return src[:start] + text + src[end:], parser.Change{Start: start, OldEnd: end, NewEnd: start + len(text)}
}

func TestIncrementalReuse(t *testing.T) {
	src := "a { x = 1; }\nb { y = 2; }\nc { z = 3; }"
	prev := parser.Parse(blocks, nil, src, nil)

	at := strings.Index(src, "3")
	next, change := edit(src, at, at+1, "42")
	tree := parser.Parse(blocks, prev, next, []parser.Change{change})

	require.True(t, parser.Equal(tree, parser.Parse(blocks, nil, next, nil)), tree.Dump(next))
	assert.Equal(t, 2, tree.Stats().Reused)

	// an edit in the first block shifts, but still reuses, the later ones
	next2, change := edit(next, 4, 5, "xx")
	tree2 := parser.Parse(blocks, tree, next2, []parser.Change{change})
	require.True(t, parser.Equal(tree2, parser.Parse(blocks, nil, next2, nil)), tree2.Dump(next2))
	assert.Equal(t, 2, tree2.Stats().Reused)
}

func TestIncrementalEquivalence(t *testing.T) {
	snippets := []string{"", "x", "y", " ", "\n", "=", ";", "{", "}", "12", "a = b;", "q { r = 1; }", "?"}
	rng := rand.New(rand.NewSource(7))

	src := "a { x = 1; }\nb = 2;\nc { d { e = f; } }\n"
	tree := parser.Parse(blocks, nil, src, nil)
	for step := 0; step < 500; step++ {
		var changes []parser.Change
		for n := 1 + rng.Intn(3); n > 0; n-- {
			start := 0
			if len(src) > 0 {
				start = rng.Intn(len(src) + 1)
			}
			end := start + rng.Intn(4)
			if end > len(src) {
				end = len(src)
			}
			var c parser.Change
			src, c = edit(src, start, end, snippets[rng.Intn(len(snippets))])
			changes = append(changes, c)
		}
		tree = parser.Parse(blocks, tree, src, changes)
		scratch := parser.Parse(blocks, nil, src, nil)
		if !parser.Equal(tree, scratch) {
			t.Fatalf("step %d: incremental tree differs for %q\nincremental: %s\nscratch:     %s",
				step, src, tree.Dump(src), scratch.Dump(src))
		}
	}
}

func TestParserKeepsLatestTree(t *testing.T) {
	p := parser.NewParser(blocks)
	src := "a = 1; b = 2;"
	first := p.Update(src, nil)
	assert.Same(t, first, p.Tree())

	next, change := edit(src, 4, 5, "7")
	second := p.Update(next, []parser.Change{change})
	assert.Equal(t, 1, second.Stats().Reused)
	assert.True(t, parser.Equal(second, parser.Parse(blocks, nil, next, nil)))

	p.Reset()
	assert.Nil(t, p.Tree())
}
