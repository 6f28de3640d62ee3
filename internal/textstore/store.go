package textstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"daelsp/internal/parser"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

var (
	ErrStaleEdit       = errors.New("textstore: stale edit")
	ErrUnknownDocument = errors.New("textstore: unknown document")
	ErrInvalidEdit     = errors.New("textstore: invalid edit")
)

// Document is one open text document at one version.
type Document struct {
	URI        string
	LanguageID string
	Version    int32
	Text       string
}

// Edit replaces Range with Text. A nil Range replaces the whole document.
type Edit struct {
	Range *protocol.Range
	Text  string
}

// Store holds the open documents of a session.
type Store struct {
	mu   sync.RWMutex
	docs map[string]Document
}

func New() *Store {
	return &Store{docs: make(map[string]Document)}
}

// Open registers a document, replacing any document already open at uri.
func (s *Store) Open(uri, languageID, text string, version int32) Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := Document{URI: uri, LanguageID: languageID, Version: version, Text: text}
	s.docs[uri] = doc
	return doc
}

// Apply applies edits in order and moves the document to newVersion, which
// must directly follow the current version. Each edit is positioned against
// the text the previous one produced. On error nothing changes.
func (s *Store) Apply(uri string, edits []Edit, newVersion int32) (Document, []parser.Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[uri]
	if !ok {
		return Document{}, nil, fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	if newVersion != doc.Version+1 {
		return Document{}, nil, fmt.Errorf("%w: %s is at version %d, got %d", ErrStaleEdit, uri, doc.Version, newVersion)
	}

	text := doc.Text
	changes := make([]parser.Change, 0, len(edits))
	// spans already rewritten by this batch, in current coordinates
	var touched [][2]int
	for i, e := range edits {
		if e.Range == nil {
			changes = append(changes, parser.Change{Start: 0, OldEnd: len(text), NewEnd: len(e.Text)})
			text = e.Text
			touched = touched[:0]
			continue
		}
		li := NewLineIndex(text)
		start, err := li.Offset(e.Range.Start)
		if err != nil {
			return Document{}, nil, fmt.Errorf("%w: edit %d start: %v", ErrInvalidEdit, i, err)
		}
		end, err := li.Offset(e.Range.End)
		if err != nil {
			return Document{}, nil, fmt.Errorf("%w: edit %d end: %v", ErrInvalidEdit, i, err)
		}
		if start > end {
			return Document{}, nil, fmt.Errorf("%w: edit %d starts after it ends", ErrInvalidEdit, i)
		}
		for _, t := range touched {
			if start < t[1] && t[0] < end || start == end && t[0] < start && start < t[1] {
				return Document{}, nil, fmt.Errorf("%w: edit %d overlaps an earlier edit", ErrInvalidEdit, i)
			}
		}

		delta := len(e.Text) - (end - start)
		for j := range touched {
			if touched[j][0] >= end {
				touched[j][0] += delta
				touched[j][1] += delta
			}
		}
		touched = append(touched, [2]int{start, start + len(e.Text)})
		changes = append(changes, parser.Change{Start: start, OldEnd: end, NewEnd: start + len(e.Text)})
		text = text[:start] + e.Text + text[end:]
	}

	doc.Text = text
	doc.Version = newVersion
	s.docs[uri] = doc
	return doc, changes, nil
}

func (s *Store) Close(uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[uri]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	delete(s.docs, uri)
	return nil
}

// Read returns the current text and version of uri.
func (s *Store) Read(uri string) (string, int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	if !ok {
		return "", 0, fmt.Errorf("%w: %s", ErrUnknownDocument, uri)
	}
	return doc.Text, doc.Version, nil
}

func (s *Store) Get(uri string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// URIs lists the open documents in sorted order.
func (s *Store) URIs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		out = append(out, uri)
	}
	sort.Strings(out)
	return out
}
