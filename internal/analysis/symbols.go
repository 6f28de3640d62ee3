package analysis

import (
	"sort"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

type SymbolKind string

// Symbol is a declaration site.
type Symbol struct {
	Name      string
	Kind      SymbolKind
	URI       string
	Start     int
	End       int
	Range     protocol.Range
	Detail    string
	Container string
}

func (s Symbol) Location() protocol.Location {
	return protocol.Location{URI: s.URI, Range: s.Range}
}

type symbolKey struct {
	kind SymbolKind
	name string
}

// SymbolTable holds the declarations of one document. The first declaration
// of a kind and name wins.
type SymbolTable struct {
	symbols []Symbol
	byKey   map[symbolKey]int
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{byKey: make(map[symbolKey]int)}
}

// Add records s unless a symbol of the same kind and name exists, in which
// case it returns the existing one and false.
func (t *SymbolTable) Add(s Symbol) (Symbol, bool) {
	key := symbolKey{s.Kind, s.Name}
	if i, ok := t.byKey[key]; ok {
		return t.symbols[i], false
	}
	t.byKey[key] = len(t.symbols)
	t.symbols = append(t.symbols, s)
	return s, true
}

func (t *SymbolTable) Lookup(kind SymbolKind, name string) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	i, ok := t.byKey[symbolKey{kind, name}]
	if !ok {
		return Symbol{}, false
	}
	return t.symbols[i], true
}

// All returns the symbols in declaration order.
func (t *SymbolTable) All() []Symbol {
	if t == nil {
		return nil
	}
	return append([]Symbol(nil), t.symbols...)
}

func (t *SymbolTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.symbols)
}

// At returns the symbol whose name span contains offset.
func (t *SymbolTable) At(offset int) (Symbol, bool) {
	if t == nil {
		return Symbol{}, false
	}
	for _, s := range t.symbols {
		if s.Start <= offset && offset <= s.End {
			return s, true
		}
	}
	return Symbol{}, false
}

// Signature identifies the set of exported names, ignoring positions. Two
// tables with the same signature resolve the same references elsewhere.
func (t *SymbolTable) Signature() string {
	if t == nil {
		return ""
	}
	keys := make([]string, 0, len(t.symbols))
	for _, s := range t.symbols {
		keys = append(keys, string(s.Kind)+"\x00"+s.Name)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}

// Workspace resolves names declared by other documents.
type Workspace interface {
	// Lookup finds a symbol of kind, ignoring those declared in exclude.
	Lookup(kind SymbolKind, name string, exclude string) (Symbol, bool)
	// Symbols lists the symbols of a kind, for completion.
	Symbols(kind SymbolKind) []Symbol
}
