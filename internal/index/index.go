// Package index merges the symbols of every workspace document so that
// references can resolve across files.
package index

import (
	"sort"
	"sync"

	"daelsp/internal/analysis"
)

// Index has two layers. The open layer holds the symbols of documents open
// in the editor and overrides the disk layer for the same uri.
type Index struct {
	mu   sync.RWMutex
	open map[string][]analysis.Symbol
	disk map[string][]analysis.Symbol
}

var _ analysis.Workspace = (*Index)(nil)

func New() *Index {
	return &Index{
		open: make(map[string][]analysis.Symbol),
		disk: make(map[string][]analysis.Symbol),
	}
}

func signature(symbols []analysis.Symbol) string {
	t := analysis.NewSymbolTable()
	for _, s := range symbols {
		t.Add(s)
	}
	return t.Signature()
}

// effective returns the symbols visible for uri. Callers hold mu.
func (x *Index) effective(uri string) ([]analysis.Symbol, bool) {
	if syms, ok := x.open[uri]; ok {
		return syms, true
	}
	syms, ok := x.disk[uri]
	return syms, ok
}

func (x *Index) replace(layer map[string][]analysis.Symbol, uri string, symbols []analysis.Symbol, remove bool) bool {
	before, _ := x.effective(uri)
	if remove {
		delete(layer, uri)
	} else {
		layer[uri] = append([]analysis.Symbol(nil), symbols...)
	}
	after, _ := x.effective(uri)
	return signature(before) != signature(after)
}

// SetOpen records the symbols of an open document. It reports whether the
// names visible to other documents changed.
func (x *Index) SetOpen(uri string, symbols []analysis.Symbol) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.replace(x.open, uri, symbols, false)
}

// CloseOpen drops the open layer of uri; its disk symbols, if any, become
// visible again.
func (x *Index) CloseOpen(uri string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.replace(x.open, uri, nil, true)
}

func (x *Index) SetDisk(uri string, symbols []analysis.Symbol) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.replace(x.disk, uri, symbols, false)
}

func (x *Index) RemoveDisk(uri string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.replace(x.disk, uri, nil, true)
}

// IsOpen reports whether uri has an open layer.
func (x *Index) IsOpen(uri string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.open[uri]
	return ok
}

// URIs lists every indexed document, sorted.
func (x *Index) URIs() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.urisLocked()
}

func (x *Index) urisLocked() []string {
	seen := make(map[string]bool, len(x.open)+len(x.disk))
	var out []string
	for uri := range x.open {
		seen[uri] = true
		out = append(out, uri)
	}
	for uri := range x.disk {
		if !seen[uri] {
			out = append(out, uri)
		}
	}
	sort.Strings(out)
	return out
}

// Lookup finds a declaration of kind and name outside exclude. When several
// documents declare it, the one with the smallest uri wins.
func (x *Index) Lookup(kind analysis.SymbolKind, name string, exclude string) (analysis.Symbol, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, uri := range x.urisLocked() {
		if uri == exclude {
			continue
		}
		syms, _ := x.effective(uri)
		for _, s := range syms {
			if s.Kind == kind && s.Name == name {
				return s, true
			}
		}
	}
	return analysis.Symbol{}, false
}

// Symbols lists the visible symbols of kind, one per name, sorted by name.
func (x *Index) Symbols(kind analysis.SymbolKind) []analysis.Symbol {
	x.mu.RLock()
	defer x.mu.RUnlock()
	seen := map[string]bool{}
	var out []analysis.Symbol
	for _, uri := range x.urisLocked() {
		syms, _ := x.effective(uri)
		for _, s := range syms {
			if s.Kind == kind && !seen[s.Name] {
				seen[s.Name] = true
				out = append(out, s)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len counts the visible symbols.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, uri := range x.urisLocked() {
		syms, _ := x.effective(uri)
		n += len(syms)
	}
	return n
}
