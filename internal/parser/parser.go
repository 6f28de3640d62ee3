package parser

import (
	"sort"
	"sync"
)

const flagReused uint8 = 1 << 7 // scratch only, cleared when the tree is emitted

type memoKey struct {
	prod int
	pos  int
}

type memoEntry struct {
	ok    bool
	next  int
	nodes []int32
	look  int
}

type parse struct {
	g    *Grammar
	src  string
	toks []token

	// scratch arena; only nodes reachable from the root survive
	nodes []node
	kids  []int32
	stack []int32

	memo     map[memoKey]memoEntry
	examined int

	prev  *Tree
	reuse map[reuseKey]candidate
}

// Parse builds the tree for src. When prev is the tree of the text before
// changes were applied, subtrees of reusable productions that the changes did
// not touch are copied instead of reparsed. The result is the same as
// Parse(g, nil, src, nil).
func Parse(g *Grammar, prev *Tree, src string, changes []Change) *Tree {
	p := &parse{
		g:    g,
		src:  src,
		toks: lex(g, src),
		memo: map[memoKey]memoEntry{},
	}
	if prev != nil && prev.grammar == g {
		p.prev = prev
		p.reuse = candidates(prev, changes)
	}

	start := g.prods[g.Start]
	mark := len(p.stack)
	pos, _ := p.ref(start, 0)
	if pos < len(p.toks)-1 {
		p.errorRun(pos, len(p.toks)-1)
	}

	// the root always spans the whole input
	var root int32
	if top := p.stack[mark:]; len(top) == 1 && p.nodes[top[0]].kind == g.Root {
		root = top[0]
	} else {
		root = p.wrap(g.Root, 0, mark)
	}
	r := &p.nodes[root]
	r.start, r.end = 0, len(src)
	if r.lookEnd < len(src) {
		r.lookEnd = len(src)
	}
	return p.emit(root)
}

// leaf pushes a token node.
func (p *parse) leaf(i int) {
	t := p.toks[i]
	p.nodes = append(p.nodes, node{
		kind:    t.kind,
		flags:   flagToken,
		start:   t.start,
		end:     t.end,
		lookEnd: t.end + p.g.Lookahead,
	})
	p.stack = append(p.stack, int32(len(p.nodes)-1))
}

// wrap replaces stack[mark:] by a single node of kind k.
func (p *parse) wrap(k Kind, pos, mark int) int32 {
	children := p.stack[mark:]
	n := node{kind: k, first: int32(len(p.kids)), count: int32(len(children))}
	if len(children) == 0 {
		at := p.toks[pos].start
		n.start, n.end, n.lookEnd = at, at, at
	} else {
		n.start = p.nodes[children[0]].start
		n.end = p.nodes[children[len(children)-1]].end
		for _, c := range children {
			if l := p.nodes[c].lookEnd; l > n.lookEnd {
				n.lookEnd = l
			}
		}
	}
	p.kids = append(p.kids, children...)
	p.nodes = append(p.nodes, n)
	idx := int32(len(p.nodes) - 1)
	p.stack = append(p.stack[:mark], idx)
	return idx
}

// errorRun wraps tokens [from, to) into one Error node.
func (p *parse) errorRun(from, to int) {
	mark := len(p.stack)
	for i := from; i < to; i++ {
		p.peek(i)
		p.leaf(i)
	}
	p.wrap(KindError, from, mark)
}

func (p *parse) missing(e Expr, pos, seqStart int) {
	at := p.toks[pos].start
	if pos > seqStart {
		at = p.toks[pos-1].end
	}
	p.nodes = append(p.nodes, node{kind: KindMissing, aux: p.g.expected(e), start: at, end: at, lookEnd: at})
	p.stack = append(p.stack, int32(len(p.nodes)-1))
}

func (p *parse) peek(i int) token {
	t := p.toks[i]
	if l := t.end + p.g.Lookahead; l > p.examined {
		p.examined = l
	}
	return t
}

// expr matches e at token pos, pushing the nodes it produces. On failure the
// stack is left as it was.
func (p *parse) expr(e Expr, pos int) (int, bool) {
	switch e.op {
	case opTok:
		t := p.peek(pos)
		if t.kind != e.kind || (e.text != "" && p.src[t.start:t.end] != e.text) {
			return pos, false
		}
		p.leaf(pos)
		return pos + 1, true

	case opRef:
		return p.ref(p.g.prods[e.name], pos)

	case opOpt:
		if next, ok := p.expr(e.items[0], pos); ok {
			return next, true
		}
		return pos, true

	case opMany:
		for {
			mark := len(p.stack)
			next, ok := p.expr(e.items[0], pos)
			if !ok || next == pos {
				p.stack = p.stack[:mark]
				return pos, true
			}
			pos = next
		}

	case opSeq:
		mark := len(p.stack)
		start := pos
		committed := false
		for _, item := range e.items {
			if item.op == opCommit {
				committed = true
				continue
			}
			next, ok := p.expr(item, pos)
			if ok {
				pos = next
				continue
			}
			if !committed {
				p.stack = p.stack[:mark]
				return start, false
			}
			p.missing(item, pos, start)
		}
		return pos, true

	case opChoice:
		mark := len(p.stack)
		best, bestNext := -1, 0
		var bestNodes []int32
		for i, alt := range e.items {
			next, ok := p.expr(alt, pos)
			if ok && (best < 0 || next > bestNext) {
				best, bestNext = i, next
				bestNodes = append(bestNodes[:0], p.stack[mark:]...)
			}
			p.stack = p.stack[:mark]
		}
		if best < 0 {
			return pos, false
		}
		p.stack = append(p.stack, bestNodes...)
		return bestNext, true

	case opRecover:
		return p.recover(e, pos), true
	}
	return pos, false
}

func (p *parse) recover(e Expr, pos int) int {
	runStart := -1
	closeRun := func(end int) {
		if runStart < 0 {
			return
		}
		p.errorRun(runStart, end)
		runStart = -1
	}
	for {
		t := p.peek(pos)
		if t.kind == KindEOF || stops(t.kind, e.until) {
			break
		}
		mark := len(p.stack)
		next, ok := p.expr(e.items[0], pos)
		if ok && next > pos {
			if runStart >= 0 {
				items := append([]int32(nil), p.stack[mark:]...)
				p.stack = p.stack[:mark]
				closeRun(pos)
				p.stack = append(p.stack, items...)
			}
			pos = next
			continue
		}
		p.stack = p.stack[:mark]
		if runStart < 0 {
			runStart = pos
		}
		pos++
	}
	closeRun(pos)
	return pos
}

func stops(k Kind, until []Kind) bool {
	for _, u := range until {
		if k == u {
			return true
		}
	}
	return false
}

// ref parses production i at pos. Results are memoized per position, and
// together with the bytes they examined they depend on nothing else, which is
// what makes subtree reuse sound.
func (p *parse) ref(i, pos int) (int, bool) {
	key := memoKey{prod: i, pos: pos}
	if m, ok := p.memo[key]; ok {
		p.stack = append(p.stack, m.nodes...)
		if m.look > p.examined {
			p.examined = m.look
		}
		return m.next, m.ok
	}

	prod := &p.g.Productions[i]
	saved := p.examined
	p.examined = 0
	mark := len(p.stack)

	next, ok, reused := p.tryReuse(prod, pos)
	if !reused {
		next, ok = p.expr(prod.Body, pos)
		if ok && prod.Kind != KindInvalid {
			idx := p.wrap(prod.Kind, pos, mark)
			p.nodes[idx].lookEnd = p.examined
		}
	}

	look := p.examined
	m := memoEntry{ok: ok, next: next, look: look}
	if ok {
		m.nodes = append([]int32(nil), p.stack[mark:]...)
	} else {
		p.stack = p.stack[:mark]
		next = pos
	}
	p.memo[key] = m
	if saved > look {
		p.examined = saved
	}
	return next, ok
}

func (p *parse) tryReuse(prod *Production, pos int) (int, bool, bool) {
	if !prod.Reusable || p.reuse == nil {
		return pos, false, false
	}
	c, ok := p.reuse[reuseKey{kind: prod.Kind, start: p.toks[pos].start}]
	if !ok {
		return pos, false, false
	}
	next := sort.Search(len(p.toks), func(j int) bool { return p.toks[j].start >= c.end })
	if next >= len(p.toks) {
		return pos, false, false
	}
	idx := p.copyFrom(c.old, c.delta)
	p.nodes[idx].flags |= flagReused
	p.stack = append(p.stack, idx)
	p.examined = p.nodes[idx].lookEnd
	return next, true, true
}

// copyFrom copies subtree i of the previous tree into the scratch arena,
// shifted by delta.
func (p *parse) copyFrom(i int32, delta int) int32 {
	old := p.prev.nodes[i]
	var ids []int32
	if old.count > 0 {
		ids = make([]int32, old.count)
		for j, c := range p.prev.kids[old.first : old.first+old.count] {
			ids[j] = p.copyFrom(c, delta)
		}
	}
	n := old
	n.start += delta
	n.end += delta
	n.lookEnd += delta
	n.first = int32(len(p.kids))
	p.kids = append(p.kids, ids...)
	p.nodes = append(p.nodes, n)
	return int32(len(p.nodes) - 1)
}

// emit compacts the nodes reachable from root into a fresh arena, children
// before parents.
func (p *parse) emit(root int32) *Tree {
	t := &Tree{
		grammar: p.g,
		nodes:   make([]node, 0, len(p.nodes)),
		kids:    make([]int32, 0, len(p.kids)),
		size:    len(p.src),
	}
	var visit func(i int32, inReused bool) int32
	visit = func(i int32, inReused bool) int32 {
		n := p.nodes[i]
		switch {
		case inReused:
		case n.flags&flagReused != 0:
			t.stats.Reused++
			inReused = true
		default:
			t.stats.Parsed++
		}
		ids := make([]int32, n.count)
		for j, c := range p.kids[n.first : n.first+n.count] {
			ids[j] = visit(c, inReused)
		}
		n.first = int32(len(t.kids))
		n.flags &^= flagReused
		t.kids = append(t.kids, ids...)
		t.nodes = append(t.nodes, n)
		return int32(len(t.nodes) - 1)
	}
	t.root = visit(root, false)
	return t
}

// Parser holds the latest tree of one document so the next parse can reuse
// it. The previous tree is released as soon as the next one replaces it.
type Parser struct {
	grammar *Grammar
	mu      sync.Mutex
	tree    *Tree
}

func NewParser(g *Grammar) *Parser {
	return &Parser{grammar: g}
}

// Update parses src, which is the current text after changes were applied
// to the text of the previous Update.
func (p *Parser) Update(src string, changes []Change) *Tree {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree = Parse(p.grammar, p.tree, src, changes)
	return p.tree
}

// Reset drops the previous tree; the next Update parses from scratch.
func (p *Parser) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree = nil
}

func (p *Parser) Tree() *Tree {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tree
}
