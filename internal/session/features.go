package session

import (
	"context"

	"daelsp/internal/analysis"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// query prepares a feature query at pos. It returns false when the language
// has no features or pos lies outside the document.
func (s *Session) query(ctx context.Context, uri string, pos protocol.Position) (analysis.Features, analysis.Query, bool, error) {
	features, ok := s.lang.(analysis.Features)
	if !ok {
		return nil, analysis.Query{}, false, nil
	}
	snap, err := s.Snapshot(uri)
	if err != nil {
		return nil, analysis.Query{}, false, err
	}
	offset, err := snap.Lines.Offset(pos)
	if err != nil {
		log.Debugf("position %d:%d outside %s", pos.Line, pos.Character, uri)
		return nil, analysis.Query{}, false, nil
	}
	res, err := s.Result(ctx, snap)
	if err != nil {
		return nil, analysis.Query{}, false, err
	}
	return features, analysis.Query{
		URI:       uri,
		Tree:      snap.Tree,
		Text:      snap.Text,
		Offset:    offset,
		Result:    res,
		Workspace: s.index,
	}, true, nil
}

func (s *Session) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	features, q, ok, err := s.query(ctx, params.TextDocument.URI, params.Position)
	if err != nil || !ok {
		return nil, err
	}
	text, ok := features.Hover(q)
	if err := ctx.Err(); err != nil || !ok {
		return nil, err
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.MarkupKindMarkdown, Value: text},
	}, nil
}

func (s *Session) Complete(ctx context.Context, params *protocol.CompletionParams) (*protocol.CompletionList, error) {
	features, q, ok, err := s.query(ctx, params.TextDocument.URI, params.Position)
	if err != nil || !ok {
		return nil, err
	}
	items := features.Complete(q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if items == nil {
		items = []protocol.CompletionItem{}
	}
	return &protocol.CompletionList{Items: items}, nil
}

// Definition returns the declaration a reference resolves to, or the
// declaration itself when pos is on one. Builtins have no location.
func (s *Session) Definition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.Location, error) {
	snap, err := s.Snapshot(params.TextDocument.URI)
	if err != nil {
		return nil, err
	}
	offset, err := snap.Lines.Offset(params.Position)
	if err != nil {
		return nil, nil
	}
	res, err := s.Result(ctx, snap)
	if err != nil {
		return nil, err
	}
	if r, ok := res.ResolutionAt(offset); ok {
		if r.Builtin {
			return nil, nil
		}
		return []protocol.Location{r.Symbol.Location()}, nil
	}
	if sym, ok := res.Symbols.At(offset); ok {
		return []protocol.Location{sym.Location()}, nil
	}
	return nil, nil
}
