package session

import (
	"fmt"

	"daelsp/internal/metrics"
	"daelsp/internal/parser"
	"daelsp/internal/scheduler"
	"daelsp/internal/textstore"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

func analysisKey(uri string) string { return "analyze:" + uri }

func (s *Session) document(uri string) *document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[uri]
}

func (d *document) current() *Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snap
}

// Snapshot returns the latest committed snapshot of uri.
func (s *Session) Snapshot(uri string) (*Snapshot, error) {
	d := s.document(uri)
	if d == nil {
		return nil, fmt.Errorf("%w: %s", textstore.ErrUnknownDocument, uri)
	}
	return d.current(), nil
}

func (s *Session) commit(d *document, uri string, version int32, text string, changes []parser.Change) *Snapshot {
	tree := d.parser.Update(text, changes)
	stats := tree.Stats()
	metrics.ParsedNodes.WithLabelValues("reused").Add(float64(stats.Reused))
	metrics.ParsedNodes.WithLabelValues("parsed").Add(float64(stats.Parsed))

	snap := &Snapshot{
		URI:     uri,
		Version: version,
		Text:    text,
		Tree:    tree,
		Lines:   textstore.NewLineIndex(text),
		gen:     s.gen.Add(1),
	}
	d.snap = snap
	return snap
}

func (s *Session) scheduleAnalysis(uri string) {
	s.sched.Debounce(analysisKey(uri), s.Config().Debounce(), scheduler.Task{
		Name:    "analyze " + uri,
		Execute: func() error { return s.analyzePass(uri) },
	})
}

// DidOpen registers a document and schedules its analysis. Opening a uri
// that is already open replaces it.
func (s *Session) DidOpen(params *protocol.DidOpenTextDocumentParams) error {
	item := params.TextDocument
	doc := s.store.Open(item.URI, item.LanguageID, item.Text, item.Version)

	d := &document{parser: parser.NewParser(s.lang.Grammar())}
	d.mu.Lock()
	s.commit(d, doc.URI, doc.Version, doc.Text, nil)
	d.mu.Unlock()

	s.mu.Lock()
	s.docs[doc.URI] = d
	s.mu.Unlock()

	log.Debugf("opened %s at version %d", doc.URI, doc.Version)
	s.scheduleAnalysis(doc.URI)
	return nil
}

func contentEdits(changes []any) ([]textstore.Edit, error) {
	edits := make([]textstore.Edit, 0, len(changes))
	for _, c := range changes {
		switch c := c.(type) {
		case protocol.TextDocumentContentChangeEvent:
			edits = append(edits, textstore.Edit{Range: c.Range, Text: c.Text})
		case protocol.TextDocumentContentChangeEventWhole:
			edits = append(edits, textstore.Edit{Text: c.Text})
		default:
			return nil, fmt.Errorf("%w: unexpected content change %T", textstore.ErrInvalidEdit, c)
		}
	}
	return edits, nil
}

// DidChange applies the edits, reparses and schedules a debounced analysis.
// A rejected change leaves the document untouched and schedules nothing.
func (s *Session) DidChange(params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI
	d := s.document(uri)
	if d == nil {
		return fmt.Errorf("%w: %s", textstore.ErrUnknownDocument, uri)
	}
	edits, err := contentEdits(params.ContentChanges)
	if err != nil {
		return err
	}

	d.mu.Lock()
	doc, changes, err := s.store.Apply(uri, edits, params.TextDocument.Version)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	s.commit(d, uri, doc.Version, doc.Text, changes)
	d.mu.Unlock()

	s.scheduleAnalysis(uri)
	return nil
}

// DidClose forgets the document. Its symbols leave the index and its
// diagnostics are cleared once any running pass has finished.
func (s *Session) DidClose(params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI
	if err := s.store.Close(uri); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()

	key := analysisKey(uri)
	s.sched.Cancel(key)
	s.sched.Schedule(key, scheduler.Task{
		Name: "close " + uri,
		Execute: func() error {
			if s.document(uri) != nil {
				// reopened before this ran
				return nil
			}
			if s.index.CloseOpen(uri) {
				s.reanalyzeOthers(uri)
			}
			return s.publish(uri, nil, nil)
		},
	})
	log.Debugf("closed %s", uri)
	return nil
}

// reanalyzeOthers queues a pass for every open document but uri, as names
// they reference may have appeared or disappeared.
func (s *Session) reanalyzeOthers(uri string) {
	s.mu.RLock()
	others := make([]string, 0, len(s.docs))
	for other := range s.docs {
		if other != uri {
			others = append(others, other)
		}
	}
	s.mu.RUnlock()
	for _, other := range others {
		s.scheduleAnalysis(other)
	}
}
