package parser

// Change describes one edit in byte offsets. Changes of a batch are applied
// in order; each is expressed against the text produced by the previous one.
// [Start, OldEnd) was replaced by text now spanning [Start, NewEnd).
type Change struct {
	Start  int
	OldEnd int
	NewEnd int
}

func (c Change) delta() int { return c.NewEnd - c.OldEnd }

type reuseKey struct {
	kind  Kind
	start int
}

type candidate struct {
	old   int32 // node index in the previous tree
	delta int
	end   int // new end
}

// mapRange moves [a, b) through the changes. It reports false when any change
// touches the range, meaning the bytes it covers are no longer the same.
func mapRange(a, b int, changes []Change) (int, int, bool) {
	for _, c := range changes {
		if c.Start == c.OldEnd {
			// pure insertion: harmless at the edges of the range
			if a < c.Start && c.Start < b {
				return 0, 0, false
			}
		} else if c.Start < b && a < c.OldEnd {
			return 0, 0, false
		}
		if a >= c.OldEnd {
			a += c.delta()
			b += c.delta()
		}
	}
	return a, b, true
}

// candidates collects the nodes of prev that can be reused as is, keyed by
// kind and their start in the new text.
func candidates(prev *Tree, changes []Change) map[reuseKey]candidate {
	out := map[reuseKey]candidate{}
	reusable := map[Kind]bool{}
	for _, p := range prev.grammar.Productions {
		if p.Reusable {
			reusable[p.Kind] = true
		}
	}
	if len(reusable) == 0 {
		return out
	}

	var visit func(i int32)
	visit = func(i int32) {
		n := &prev.nodes[i]
		if n.flags&flagToken != 0 {
			return
		}
		if reusable[n.kind] && n.end > n.start {
			if a, _, ok := mapRange(n.start, n.lookEnd, changes); ok {
				key := reuseKey{kind: n.kind, start: a}
				if _, dup := out[key]; !dup {
					delta := a - n.start
					out[key] = candidate{old: i, delta: delta, end: n.end + delta}
				}
			}
		}
		for _, c := range prev.kids[n.first : n.first+n.count] {
			visit(c)
		}
	}
	visit(prev.root)
	return out
}
