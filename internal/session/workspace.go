package session

import (
	"context"

	"daelsp/internal/metrics"
	"daelsp/internal/resolver"
	"daelsp/internal/scanner"
	"daelsp/internal/scheduler"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const workspaceKey = "workspace"

func (s *Session) workspace() (*resolver.Resolver, *scanner.Scanner) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver, s.scanner
}

// scan indexes every workspace file into the disk layer.
func (s *Session) scan() error {
	_, sc := s.workspace()
	if sc == nil {
		return nil
	}
	changed := false
	err := sc.Scan(context.Background(), func(r scanner.Result) {
		source := "parsed"
		if r.Cached {
			source = "cached"
		}
		metrics.IndexedFiles.WithLabelValues(source).Inc()
		if s.index.SetDisk(r.File.URI, r.Symbols) {
			changed = true
		}
	})
	log.Infof("indexed %d symbols", s.index.Len())
	if changed {
		s.reanalyzeOthers("")
	}
	return err
}

// DidChangeWatchedFiles updates the disk layer of the index. Open documents
// are left to the editor; they are reanalyzed when visible names change.
func (s *Session) DidChangeWatchedFiles(params *protocol.DidChangeWatchedFilesParams) error {
	for _, ev := range params.Changes {
		s.sched.Schedule(workspaceKey, scheduler.Task{Name: "watched " + ev.URI, Execute: func() error {
			s.fileChanged(ev)
			return nil
		}})
	}
	return nil
}

func (s *Session) fileChanged(ev protocol.FileEvent) {
	r, sc := s.workspace()
	if sc == nil {
		return
	}
	f, err := r.Resolve(ev.URI)
	if err != nil {
		log.Warningf("watched file: %s", err.Error())
		return
	}

	changed := false
	switch ev.Type {
	case protocol.FileChangeTypeCreated, protocol.FileChangeTypeChanged:
		if !r.Match(f) {
			return
		}
		res, err := sc.IndexFile(f.AbsolutePath)
		if err != nil {
			log.Warningf("reindex %s: %s", f.AbsolutePath, err.Error())
			changed = s.index.RemoveDisk(f.URI)
			break
		}
		metrics.IndexedFiles.WithLabelValues("watched").Inc()
		changed = s.index.SetDisk(f.URI, res.Symbols)
	case protocol.FileChangeTypeDeleted:
		sc.Forget(f.AbsolutePath)
		changed = s.index.RemoveDisk(f.URI)
	}
	if changed && !s.index.IsOpen(f.URI) {
		s.reanalyzeOthers(f.URI)
	}
}
