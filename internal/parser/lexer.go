package parser

import "unicode/utf8"

type token struct {
	kind  Kind
	start int
	end   int
}

// lex tokenizes src. Among the rules matching at an offset the longest match
// wins, and on equal length the rule declared first. Bytes no rule matches
// become one-rune KindError tokens. The result always ends with a KindEOF
// token at len(src).
func lex(g *Grammar, src string) []token {
	toks := make([]token, 0, len(src)/4+1)
	at := 0
	for at < len(src) {
		best, bestLen := -1, 0
		for i, rule := range g.Tokens {
			if n := rule.Match(src, at); n > bestLen {
				best, bestLen = i, n
			}
		}
		if best < 0 {
			_, size := utf8.DecodeRuneInString(src[at:])
			toks = append(toks, token{kind: KindError, start: at, end: at + size})
			at += size
			continue
		}
		rule := g.Tokens[best]
		if !rule.Skip {
			toks = append(toks, token{kind: rule.Kind, start: at, end: at + bestLen})
		}
		at += bestLen
	}
	return append(toks, token{kind: KindEOF, start: len(src), end: len(src)})
}
