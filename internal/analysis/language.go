package analysis

import (
	"fmt"

	"daelsp/internal/parser"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Declaration is a name a document introduces.
type Declaration struct {
	Name      string
	Kind      SymbolKind
	Start     int
	End       int
	Detail    string
	Container string
}

// Reference is a use of a name. It resolves to a symbol of any of Kinds.
type Reference struct {
	Name  string
	Kinds []SymbolKind
	Start int
	End   int
}

// Rule is a validation rule supplied by a language. Check reports through
// the pass; a returned error or a panic only skips this rule.
type Rule struct {
	Code  string
	Check func(*Pass) error
}

// Language is everything the engine knows about one configuration language.
// Implementations must be pure: the same tree always yields the same output.
type Language interface {
	Name() string
	Grammar() *parser.Grammar
	Declarations(tree *parser.Tree, src string) []Declaration
	References(tree *parser.Tree, src string) []Reference
	// Builtin reports whether name is predefined for kind, with its docs.
	Builtin(kind SymbolKind, name string) (string, bool)
	Rules() []Rule
}

// Query is the input of an editor feature at one cursor position.
type Query struct {
	URI       string
	Tree      *parser.Tree
	Text      string
	Offset    int
	Result    *Result
	Workspace Workspace
}

// Features are the optional editor features of a language.
type Features interface {
	Complete(q Query) []protocol.CompletionItem
	// Hover returns markdown for the position, or false when there is none.
	Hover(q Query) (string, bool)
}

// Pass is handed to each rule.
type Pass struct {
	URI       string
	Tree      *parser.Tree
	Text      string
	Symbols   *SymbolTable
	Workspace Workspace

	code  string
	diags []Diagnostic
}

// Report records a diagnostic tagged with the running rule's code.
func (p *Pass) Report(start, end int, severity Severity, message string) {
	p.diags = append(p.diags, Diagnostic{
		Start:    start,
		End:      end,
		Severity: severity,
		Message:  message,
		Code:     p.code,
	})
}

func (p *Pass) Reportf(start, end int, severity Severity, format string, args ...any) {
	p.Report(start, end, severity, fmt.Sprintf(format, args...))
}

// Node reports at the span of n.
func (p *Pass) Node(n parser.Node, severity Severity, format string, args ...any) {
	p.Reportf(n.Start(), n.End(), severity, format, args...)
}
