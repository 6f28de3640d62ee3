// Package scanner indexes the configuration files of the workspace folders
// and watches them for changes.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"daelsp/internal/analysis"
	"daelsp/internal/cache"
	"daelsp/internal/parser"
	"daelsp/internal/resolver"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
)

var log = commonlog.GetLogger("dae-lsp.scanner")

// Result is the outcome of indexing one file.
type Result struct {
	File    resolver.File
	Symbols []analysis.Symbol
	// Cached is set when the symbols came from the cache.
	Cached bool
}

type Scanner struct {
	resolver *resolver.Resolver
	analyzer *analysis.Analyzer
	cache    *cache.Filecache
	workers  int
}

// New returns a scanner. fc may be nil to disable caching.
func New(r *resolver.Resolver, lang analysis.Language, fc *cache.Filecache, workers int) *Scanner {
	if workers < 1 {
		workers = 1
	}
	return &Scanner{resolver: r, analyzer: analysis.New(lang), cache: fc, workers: workers}
}

// Scan walks every root. Any directory whose name begins with "." is
// skipped entirely. Files matching the include globs are indexed in
// parallel; callback is called once per file, never concurrently. Scan
// returns once all callbacks have completed.
func (s *Scanner) Scan(ctx context.Context, callback func(Result)) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	var mu sync.Mutex

	for _, root := range s.resolver.Roots() {
		log.Infof("starting WalkDir at %q", root)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warningf("walk error: %s", err.Error())
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if d.IsDir() {
				if path != root && resolver.IgnoreDir(path) {
					log.Debugf("skipping %q", path)
					return fs.SkipDir
				}
				return nil
			}
			f, err := s.resolver.Resolve(path)
			if err != nil || !s.resolver.Match(f) {
				return nil
			}
			g.Go(func() error {
				res, err := s.index(f)
				if err != nil {
					log.Warningf("read error: %s: %s", path, err.Error())
					return nil
				}
				mu.Lock()
				defer mu.Unlock()
				callback(res)
				return nil
			})
			return nil
		})
		if err != nil {
			log.Warningf("WalkDir finished with error: %s", err.Error())
		}
	}
	return g.Wait()
}

// IndexFile indexes a single file, for watched-file changes.
func (s *Scanner) IndexFile(path string) (Result, error) {
	f, err := s.resolver.Resolve(path)
	if err != nil {
		return Result{}, err
	}
	return s.index(f)
}

// Forget drops a deleted file from the cache.
func (s *Scanner) Forget(path string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(path); err != nil {
		log.Warningf("cache delete %s: %s", path, err.Error())
	}
}

func (s *Scanner) index(f resolver.File) (Result, error) {
	info, err := os.Stat(f.AbsolutePath)
	if err != nil {
		return Result{}, err
	}
	modTime, size := info.ModTime().UnixNano(), info.Size()
	if s.cache != nil {
		if syms, ok := s.cache.Fresh(f.AbsolutePath, modTime, size); ok {
			return Result{File: f, Symbols: syms, Cached: true}, nil
		}
	}

	data, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		return Result{}, err
	}
	text := string(data)
	tree := parser.Parse(s.analyzer.Language().Grammar(), nil, text, nil)
	syms := s.analyzer.Symbols(f.URI, tree, text).All()

	if s.cache != nil {
		if err := s.cache.Put(cache.Entry{
			Path:    f.AbsolutePath,
			URI:     f.URI,
			ModTime: modTime,
			Size:    size,
			Symbols: syms,
		}); err != nil {
			log.Warningf("cache put %s: %s", f.AbsolutePath, err.Error())
		}
	}
	return Result{File: f, Symbols: syms}, nil
}
