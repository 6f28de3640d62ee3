package session_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"daelsp/internal/analysis"
	"daelsp/internal/config"
	"daelsp/internal/dae"
	"daelsp/internal/resolver"
	"daelsp/internal/session"
	"daelsp/internal/textstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

type recorder struct {
	mu        sync.Mutex
	published []protocol.PublishDiagnosticsParams
}

func (r *recorder) Notify(_ context.Context, method string, params any) error {
	if method != string(protocol.ServerTextDocumentPublishDiagnostics) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, params.(protocol.PublishDiagnosticsParams))
	return nil
}

func (r *recorder) forURI(uri string) []protocol.PublishDiagnosticsParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.PublishDiagnosticsParams
	for _, p := range r.published {
		if p.URI == uri {
			out = append(out, p)
		}
	}
	return out
}

func (r *recorder) last(t *testing.T, uri string) protocol.PublishDiagnosticsParams {
	t.Helper()
	all := r.forURI(uri)
	require.NotEmpty(t, all, "nothing published for %s", uri)
	return all[len(all)-1]
}

func newSession(t *testing.T, debounceMS int) (*session.Session, *recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.DebounceMS = debounceMS
	cfg.Scan = false
	rec := &recorder{}
	s := session.New(dae.Language{}, cfg, rec)
	t.Cleanup(s.Shutdown)
	return s, rec
}

func open(t *testing.T, s *session.Session, uri, text string) {
	t.Helper()
	require.NoError(t, s.DidOpen(&protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: uri, LanguageID: "dae", Version: 1, Text: text},
	}))
}

func change(s *session.Session, uri string, version int32, changes ...any) error {
	params := &protocol.DidChangeTextDocumentParams{ContentChanges: changes}
	params.TextDocument.URI = uri
	params.TextDocument.Version = version
	return s.DidChange(params)
}

func insert(line, character uint32, text string) protocol.TextDocumentContentChangeEvent {
	pos := protocol.Position{Line: line, Character: character}
	return protocol.TextDocumentContentChangeEvent{Range: &protocol.Range{Start: pos, End: pos}, Text: text}
}

func codes(diags []protocol.Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Code.Value.(string))
	}
	return out
}

func TestDuplicateRuleIsPublishedOnce(t *testing.T) {
	s, rec := newSession(t, 50)
	uri := "doc://a"
	open(t, s, uri, "rule X { match: domain(example.com) }\n")
	require.NoError(t, change(s, uri, 2, insert(1, 0, "rule X { match: domain(example.org) }\n")))
	s.Wait()

	published := rec.forURI(uri)
	require.Len(t, published, 1)
	p := published[0]
	require.NotNil(t, p.Version)
	assert.EqualValues(t, 2, *p.Version)
	require.Len(t, p.Diagnostics, 1)
	d := p.Diagnostics[0]
	assert.Equal(t, analysis.CodeDuplicateDeclaration, d.Code.Value)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 1, Character: 5},
		End:   protocol.Position{Line: 1, Character: 6},
	}, d.Range)
	assert.Equal(t, protocol.DiagnosticSeverityError, *d.Severity)
}

func TestBurstCollapsesToFinalState(t *testing.T) {
	s, rec := newSession(t, 50)
	uri := "doc://burst"
	open(t, s, uri, "")
	text := "routing {\n  dip(1.1.1.1) -> direct\n  fallback: direct\n}\n"
	for i, r := range text {
		line := uint32(strings.Count(text[:i], "\n"))
		col := uint32(i - (strings.LastIndex(text[:i], "\n") + 1))
		require.NoError(t, change(s, uri, int32(i+2), insert(line, col, string(r))))
	}
	s.Wait()

	snap, err := s.Snapshot(uri)
	require.NoError(t, err)
	assert.Equal(t, text, snap.Text)
	p := rec.last(t, uri)
	assert.EqualValues(t, len(text)+1, *p.Version)
	assert.Empty(t, p.Diagnostics)
}

func TestStaleEditLeavesDocumentUnchanged(t *testing.T) {
	s, rec := newSession(t, 10)
	uri := "doc://a"
	open(t, s, uri, "rule X { match: domain(example.com) }\n")
	s.Wait()
	require.Len(t, rec.forURI(uri), 1)

	err := change(s, uri, 3, insert(0, 0, "# comment\n"))
	require.ErrorIs(t, err, textstore.ErrStaleEdit)
	err = change(s, uri, 1, insert(0, 0, "# comment\n"))
	require.ErrorIs(t, err, textstore.ErrStaleEdit)
	s.Wait()

	snap, err := s.Snapshot(uri)
	require.NoError(t, err)
	assert.EqualValues(t, 1, snap.Version)
	assert.Equal(t, "rule X { match: domain(example.com) }\n", snap.Text)
	assert.Len(t, rec.forURI(uri), 1)
}

func TestInvalidAndUnknownEdits(t *testing.T) {
	s, _ := newSession(t, 10)
	err := change(s, "doc://missing", 2, insert(0, 0, "x"))
	assert.ErrorIs(t, err, textstore.ErrUnknownDocument)

	open(t, s, "doc://a", "abc")
	err = change(s, "doc://a", 2, insert(5, 0, "x"))
	assert.ErrorIs(t, err, textstore.ErrInvalidEdit)
	snap, err := s.Snapshot("doc://a")
	require.NoError(t, err)
	assert.Equal(t, "abc", snap.Text)
}

func TestCloseClearsDiagnostics(t *testing.T) {
	s, rec := newSession(t, 10)
	uri := "doc://a"
	open(t, s, uri, "routing {\n  dip(1.1.1.1) -> nowhere\n}\n")
	s.Wait()
	assert.NotEmpty(t, rec.last(t, uri).Diagnostics)
	assert.True(t, s.Index().IsOpen(uri))

	require.NoError(t, s.DidClose(&protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	}))
	s.Wait()
	p := rec.last(t, uri)
	assert.Empty(t, p.Diagnostics)
	assert.Nil(t, p.Version)
	assert.False(t, s.Index().IsOpen(uri))

	_, err := s.Snapshot(uri)
	assert.ErrorIs(t, err, textstore.ErrUnknownDocument)
	err = s.DidClose(&protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
	})
	assert.ErrorIs(t, err, textstore.ErrUnknownDocument)
}

func TestReferencesAcrossDocuments(t *testing.T) {
	s, rec := newSession(t, 10)
	routing := "file:///ws/routing.dae"
	rules := "file:///ws/rules.dae"

	open(t, s, routing, "routing {\n  rule(cn) -> direct\n  fallback: direct\n}\n")
	s.Wait()
	assert.Equal(t, []string{analysis.CodeUnresolvedReference}, codes(rec.last(t, routing).Diagnostics))

	open(t, s, rules, "rule cn { match: dip(geoip:cn) }\n")
	s.Wait()
	assert.Empty(t, rec.last(t, routing).Diagnostics)

	locs, err := s.Definition(context.Background(), &protocol.DefinitionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: routing},
			Position:     protocol.Position{Line: 1, Character: 8},
		},
	})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, rules, locs[0].URI)
	assert.EqualValues(t, 5, locs[0].Range.Start.Character)

	require.NoError(t, s.DidClose(&protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: rules},
	}))
	s.Wait()
	assert.Equal(t, []string{analysis.CodeUnresolvedReference}, codes(rec.last(t, routing).Diagnostics))
}

func TestReadFeatures(t *testing.T) {
	s, _ := newSession(t, 10)
	uri := "doc://a"
	open(t, s, uri, "routing {\n  dip(1.1.1.1) -> direct\n  fallback: direct\n}\n")
	at := func(line, character uint32) protocol.TextDocumentPositionParams {
		return protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: uri},
			Position:     protocol.Position{Line: line, Character: character},
		}
	}

	hover, err := s.Hover(context.Background(), &protocol.HoverParams{TextDocumentPositionParams: at(1, 3)})
	require.NoError(t, err)
	require.NotNil(t, hover)
	assert.Contains(t, hover.Contents.(protocol.MarkupContent).Value, "dip")

	list, err := s.Complete(context.Background(), &protocol.CompletionParams{TextDocumentPositionParams: at(1, 20)})
	require.NoError(t, err)
	require.NotNil(t, list)
	var labels []string
	for _, item := range list.Items {
		labels = append(labels, item.Label)
	}
	assert.Contains(t, labels, "direct")

	hover, err = s.Hover(context.Background(), &protocol.HoverParams{TextDocumentPositionParams: at(40, 0)})
	assert.NoError(t, err)
	assert.Nil(t, hover)

	locs, err := s.Definition(context.Background(), &protocol.DefinitionParams{TextDocumentPositionParams: at(1, 19)})
	assert.NoError(t, err)
	assert.Empty(t, locs, "builtins have no location")
}

func TestCancelledReadHasNoEffect(t *testing.T) {
	s, rec := newSession(t, 60_000)
	uri := "doc://a"
	open(t, s, uri, "routing {\n  dip(1.1.1.1) -> direct\n  fallback: direct\n}\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	params := &protocol.HoverParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: uri},
		Position:     protocol.Position{Line: 1, Character: 3},
	}}
	hover, err := s.Hover(ctx, params)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, hover)
	assert.False(t, s.Index().IsOpen(uri))
	assert.Empty(t, rec.forURI(uri))

	hover, err = s.Hover(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, hover)
}

func TestInitialize(t *testing.T) {
	s, _ := newSession(t, 10)
	root := "file:///ws"
	res, err := s.Initialize(&protocol.InitializeParams{
		RootURI:               &root,
		InitializationOptions: map[string]any{"debounceMs": 25, "scan": false},
	})
	require.NoError(t, err)
	assert.Equal(t, 25, s.Config().DebounceMS)
	assert.Equal(t, session.Name, res.ServerInfo.Name)
	assert.Equal(t, true, res.Capabilities.HoverProvider)
	require.NotNil(t, res.Capabilities.CompletionProvider)

	_, err = s.Initialize(&protocol.InitializeParams{})
	assert.Error(t, err)
}

func TestInitializeRejectsBadOptions(t *testing.T) {
	s, _ := newSession(t, 10)
	_, err := s.Initialize(&protocol.InitializeParams{
		InitializationOptions: map[string]any{"maxConcurrentReads": 0},
	})
	assert.Error(t, err)
}

func TestWorkspaceScanAndWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rules.dae"), []byte("rule cn { match: dip(geoip:cn) }\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".hidden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden", "x.dae"), []byte("rule hidden { match: dip(1.1.1.1) }\n"), 0o644))

	s, rec := newSession(t, 10)
	rootURI := resolver.URIFromPath(dir)
	_, err := s.Initialize(&protocol.InitializeParams{
		RootURI:               &rootURI,
		InitializationOptions: map[string]any{"scan": true},
	})
	require.NoError(t, err)
	s.Initialized()
	s.Wait()

	_, ok := s.Index().Lookup(dae.KindRule, "cn", "")
	assert.True(t, ok)
	_, ok = s.Index().Lookup(dae.KindRule, "hidden", "")
	assert.False(t, ok)

	routing := resolver.URIFromPath(filepath.Join(dir, "routing.dae"))
	open(t, s, routing, "routing {\n  rule(cn) && rule(us) -> direct\n  fallback: direct\n}\n")
	s.Wait()
	assert.Equal(t, []string{analysis.CodeUnresolvedReference}, codes(rec.last(t, routing).Diagnostics))

	us := filepath.Join(dir, "us.dae")
	require.NoError(t, os.WriteFile(us, []byte("rule us { match: dip(geoip:us) }\n"), 0o644))
	require.NoError(t, s.DidChangeWatchedFiles(&protocol.DidChangeWatchedFilesParams{Changes: []protocol.FileEvent{
		{URI: resolver.URIFromPath(us), Type: protocol.FileChangeTypeCreated},
	}}))
	s.Wait()
	assert.Empty(t, rec.last(t, routing).Diagnostics)

	require.NoError(t, os.Remove(us))
	require.NoError(t, s.DidChangeWatchedFiles(&protocol.DidChangeWatchedFilesParams{Changes: []protocol.FileEvent{
		{URI: resolver.URIFromPath(us), Type: protocol.FileChangeTypeDeleted},
	}}))
	s.Wait()
	_, ok = s.Index().Lookup(dae.KindRule, "us", "")
	assert.False(t, ok)
	assert.NotEmpty(t, rec.last(t, routing).Diagnostics)
}
