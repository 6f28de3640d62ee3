package analysis

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"

	"daelsp/internal/parser"
	"daelsp/internal/textstore"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dae-lsp.analysis")

type Severity int

// Values match the LSP DiagnosticSeverity.
const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

const (
	CodeDuplicateDeclaration = "duplicate-declaration"
	CodeUnresolvedReference  = "unresolved-reference"
	CodeSyntaxError          = "syntax-error"
)

// Diagnostic spans bytes [Start, End) of the analyzed text.
type Diagnostic struct {
	Start    int
	End      int
	Severity Severity
	Message  string
	Code     string
}

// Resolution links a reference to what it names. Builtin references have no
// Symbol.
type Resolution struct {
	Reference Reference
	Symbol    Symbol
	Builtin   bool
}

// Result is the outcome of analyzing one document version.
type Result struct {
	URI         string
	Version     int32
	Symbols     *SymbolTable
	Resolved    []Resolution
	Diagnostics []Diagnostic
}

// ResolutionAt returns the resolved reference under offset.
func (r *Result) ResolutionAt(offset int) (Resolution, bool) {
	for _, res := range r.Resolved {
		if res.Reference.Start <= offset && offset <= res.Reference.End {
			return res, true
		}
	}
	return Resolution{}, false
}

type Input struct {
	URI       string
	Version   int32
	Text      string
	Tree      *parser.Tree
	Lines     *textstore.LineIndex
	Workspace Workspace
}

type Analyzer struct {
	lang Language
}

func New(lang Language) *Analyzer {
	return &Analyzer{lang: lang}
}

func (a *Analyzer) Language() Language { return a.lang }

// Analyze runs a full pass over one document: declarations, then
// references, then the language's rules. It returns ctx.Err() when ctx is
// cancelled between steps.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	if in.Lines == nil {
		in.Lines = textstore.NewLineIndex(in.Text)
	}
	res := &Result{URI: in.URI, Version: in.Version}
	var diags []Diagnostic

	diags = append(diags, syntaxErrors(in.Tree, in.Text)...)

	table, dups := a.declare(in)
	res.Symbols = table
	diags = append(diags, dups...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, ref := range a.lang.References(in.Tree, in.Text) {
		if r, ok := a.resolve(res.Symbols, in, ref); ok {
			res.Resolved = append(res.Resolved, r)
			continue
		}
		diags = append(diags, Diagnostic{
			Start:    ref.Start,
			End:      ref.End,
			Severity: SeverityError,
			Message:  fmt.Sprintf("unresolved %s %q", kindList(ref.Kinds), ref.Name),
			Code:     CodeUnresolvedReference,
		})
	}

	for _, rule := range a.lang.Rules() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		diags = append(diags, a.runRule(rule, in, res.Symbols)...)
	}

	res.Diagnostics = Normalize(diags)
	return res, nil
}

// Symbols collects the declarations of a document without analyzing it
// further, as the workspace scanner needs.
func (a *Analyzer) Symbols(uri string, tree *parser.Tree, text string) *SymbolTable {
	table, _ := a.declare(Input{URI: uri, Tree: tree, Text: text, Lines: textstore.NewLineIndex(text)})
	return table
}

func (a *Analyzer) declare(in Input) (*SymbolTable, []Diagnostic) {
	table := NewSymbolTable()
	var diags []Diagnostic
	for _, d := range a.lang.Declarations(in.Tree, in.Text) {
		sym := Symbol{
			Name:      d.Name,
			Kind:      d.Kind,
			URI:       in.URI,
			Start:     d.Start,
			End:       d.End,
			Range:     in.Lines.Range(d.Start, d.End),
			Detail:    d.Detail,
			Container: d.Container,
		}
		if _, ok := table.Add(sym); !ok {
			diags = append(diags, Diagnostic{
				Start:    d.Start,
				End:      d.End,
				Severity: SeverityError,
				Message:  fmt.Sprintf("duplicate declaration of %s %q", d.Kind, d.Name),
				Code:     CodeDuplicateDeclaration,
			})
		}
	}
	return table, diags
}

func (a *Analyzer) resolve(table *SymbolTable, in Input, ref Reference) (Resolution, bool) {
	for _, kind := range ref.Kinds {
		if sym, ok := table.Lookup(kind, ref.Name); ok {
			return Resolution{Reference: ref, Symbol: sym}, true
		}
	}
	if in.Workspace != nil {
		for _, kind := range ref.Kinds {
			if sym, ok := in.Workspace.Lookup(kind, ref.Name, in.URI); ok {
				return Resolution{Reference: ref, Symbol: sym}, true
			}
		}
	}
	for _, kind := range ref.Kinds {
		if _, ok := a.lang.Builtin(kind, ref.Name); ok {
			return Resolution{Reference: ref, Builtin: true}, true
		}
	}
	return Resolution{}, false
}

// runRule isolates one rule: its diagnostics count only if it completes.
func (a *Analyzer) runRule(rule Rule, in Input, table *SymbolTable) (diags []Diagnostic) {
	pass := &Pass{
		URI:       in.URI,
		Tree:      in.Tree,
		Text:      in.Text,
		Symbols:   table,
		Workspace: in.Workspace,
		code:      rule.Code,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("rule %s panicked on %s: %v\n%s", rule.Code, in.URI, r, debug.Stack())
			diags = nil
		}
	}()
	if err := rule.Check(pass); err != nil {
		log.Errorf("rule %s failed on %s: %v", rule.Code, in.URI, err)
		return nil
	}
	return pass.diags
}

func kindList(kinds []SymbolKind) string {
	switch len(kinds) {
	case 0:
		return "name"
	case 1:
		return string(kinds[0])
	}
	s := string(kinds[0])
	for _, k := range kinds[1:] {
		s += " or " + string(k)
	}
	return s
}

// Normalize sorts diagnostics by position, then severity and message, and
// drops repeats of the same range and message.
func Normalize(diags []Diagnostic) []Diagnostic {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		if a.Message != b.Message {
			return a.Message < b.Message
		}
		return a.Code < b.Code
	})
	out := diags[:0]
	for i, d := range diags {
		if i > 0 {
			prev := out[len(out)-1]
			if prev.Start == d.Start && prev.End == d.End && prev.Message == d.Message {
				continue
			}
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// syntaxErrors reports the outermost error nodes and every missing node.
func syntaxErrors(tree *parser.Tree, src string) []Diagnostic {
	if tree == nil {
		return nil
	}
	g := tree.Grammar()
	var out []Diagnostic
	tree.Root().Walk(func(n parser.Node) bool {
		switch {
		case n.IsMissing():
			out = append(out, Diagnostic{
				Start:    n.Start(),
				End:      n.End(),
				Severity: SeverityError,
				Message:  "expected " + g.KindName(n.Expected()),
				Code:     CodeSyntaxError,
			})
			return false
		case n.IsError():
			msg := "unexpected input"
			if text := n.Text(src); len(text) <= 32 && text != "" {
				msg = fmt.Sprintf("unexpected %q", text)
			}
			out = append(out, Diagnostic{
				Start:    n.Start(),
				End:      n.End(),
				Severity: SeverityError,
				Message:  msg,
				Code:     CodeSyntaxError,
			})
			return false
		}
		return true
	})
	return out
}
