// Package session holds the state of one client connection: its open
// documents, their snapshots and analyses, and the workspace index.
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"daelsp/internal/analysis"
	"daelsp/internal/cache"
	"daelsp/internal/config"
	"daelsp/internal/index"
	"daelsp/internal/parser"
	"daelsp/internal/resolver"
	"daelsp/internal/scanner"
	"daelsp/internal/scheduler"
	"daelsp/internal/textstore"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/singleflight"
)

var log = commonlog.GetLogger("dae-lsp.session")

const (
	Name    = "dae-lsp"
	Version = "0.1.0"
)

// Notifier sends server to client notifications.
type Notifier interface {
	Notify(ctx context.Context, method string, params any) error
}

// Snapshot is one immutable version of an open document.
type Snapshot struct {
	URI     string
	Version int32
	Text    string
	Tree    *parser.Tree
	Lines   *textstore.LineIndex

	gen    uint64
	result atomic.Pointer[analysis.Result]
}

type document struct {
	mu     sync.Mutex
	parser *parser.Parser
	snap   *Snapshot
}

type Session struct {
	ID string

	cfg      config.Config
	lang     analysis.Language
	analyzer *analysis.Analyzer
	store    *textstore.Store
	index    *index.Index
	sched    *scheduler.Scheduler
	notifier Notifier
	flight   singleflight.Group
	gen      atomic.Uint64

	mu          sync.RWMutex
	docs        map[string]*document
	resolver    *resolver.Resolver
	scanner     *scanner.Scanner
	cache       *cache.Filecache
	stopWatch   context.CancelFunc
	initialized bool
}

// New returns a session for lang. cfg holds the defaults that the client's
// initializationOptions are overlaid on.
func New(lang analysis.Language, cfg config.Config, notifier Notifier) *Session {
	return &Session{
		ID:       uuid.NewString(),
		cfg:      cfg,
		lang:     lang,
		analyzer: analysis.New(lang),
		store:    textstore.New(),
		index:    index.New(),
		sched:    scheduler.NewScheduler(),
		notifier: notifier,
		docs:     make(map[string]*document),
		resolver: resolver.New(nil, cfg.Include, cfg.Exclude),
	}
}

func (s *Session) Config() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Session) Index() *index.Index { return s.index }

func boolPtr(b bool) *bool { return &b }

func workspaceRoots(params *protocol.InitializeParams) []string {
	var roots []string
	for _, f := range params.WorkspaceFolders {
		if p, err := resolver.PathFromURI(f.URI); err == nil {
			roots = append(roots, p)
		}
	}
	if len(roots) == 0 && params.RootURI != nil {
		if p, err := resolver.PathFromURI(*params.RootURI); err == nil {
			roots = append(roots, p)
		}
	}
	if len(roots) == 0 && params.RootPath != nil && *params.RootPath != "" {
		roots = append(roots, filepath.Clean(*params.RootPath))
	}
	return roots
}

// Initialize applies the client's options and workspace folders and returns
// the server capabilities.
func (s *Session) Initialize(params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil, fmt.Errorf("session %s is already initialized", s.ID)
	}

	cfg, err := config.LoadOnto(s.cfg, params.InitializationOptions)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	s.initialized = true

	roots := workspaceRoots(params)
	s.resolver = resolver.New(roots, cfg.Include, cfg.Exclude)
	if cfg.Cache && len(roots) > 0 {
		path := cfg.CachePath
		if path == "" {
			dir, err := cache.StateDir(Name)
			if err != nil {
				log.Warningf("no state directory, cache disabled: %s", err.Error())
			} else {
				path = filepath.Join(dir, "index.db")
			}
		}
		if path != "" {
			fc, err := cache.NewFilecache(path)
			if err != nil {
				log.Warningf("cache disabled: %s", err.Error())
			} else {
				s.cache = fc
			}
		}
	}
	s.scanner = scanner.New(s.resolver, s.lang, s.cache, cfg.MaxConcurrentReads)
	log.Infof("session %s initialized with roots %v", s.ID, roots)

	syncKind := protocol.TextDocumentSyncKindIncremental
	version := Version
	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: boolPtr(true),
				Change:    &syncKind,
			},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{"(", ":", ">", ",", "&", "!"},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
		},
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    Name,
			Version: &version,
		},
	}, nil
}

// Initialized starts indexing the workspace.
func (s *Session) Initialized() {
	s.mu.Lock()
	cfg := s.cfg
	if cfg.Watch && len(s.resolver.Roots()) > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopWatch = cancel
		err := scanner.Watch(ctx, s.resolver, func(ev protocol.FileEvent) {
			s.DidChangeWatchedFiles(&protocol.DidChangeWatchedFilesParams{Changes: []protocol.FileEvent{ev}})
		})
		if err != nil {
			log.Warningf("file watching disabled: %s", err.Error())
		}
	}
	s.mu.Unlock()

	if !cfg.Scan {
		return
	}
	scan := scheduler.Task{Name: "scan", Execute: s.scan}
	s.sched.Schedule(workspaceKey, scan)
	if interval := cfg.RescanInterval(); interval > 0 {
		s.sched.Periodic(workspaceKey, interval, scan)
	}
}

// Shutdown stops background work. Pending analyses are dropped.
func (s *Session) Shutdown() {
	s.mu.Lock()
	if s.stopWatch != nil {
		s.stopWatch()
		s.stopWatch = nil
	}
	s.mu.Unlock()

	s.sched.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Warningf("closing cache: %s", err.Error())
		}
		s.cache = nil
	}
}

// Wait blocks until no analysis or workspace task is pending.
func (s *Session) Wait() {
	s.sched.Wait()
}
