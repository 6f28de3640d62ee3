package session

import (
	"context"
	"fmt"
	"time"

	"daelsp/internal/analysis"
	"daelsp/internal/metrics"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

const diagnosticSource = "dae-lsp"

func (s *Session) analyze(ctx context.Context, snap *Snapshot) (*analysis.Result, error) {
	start := time.Now()
	res, err := s.analyzer.Analyze(ctx, analysis.Input{
		URI:       snap.URI,
		Version:   snap.Version,
		Text:      snap.Text,
		Tree:      snap.Tree,
		Lines:     snap.Lines,
		Workspace: s.index,
	})
	metrics.AnalysisLatency.Observe(time.Since(start).Seconds())
	return res, err
}

// analyzePass analyzes the latest snapshot of uri, publishes its diagnostics
// and merges its symbols into the index. It runs on the analysis queue of
// uri, so passes of one document never overlap.
func (s *Session) analyzePass(uri string) error {
	d := s.document(uri)
	if d == nil {
		return nil
	}
	snap := d.current()
	res, err := s.analyze(context.Background(), snap)
	if err != nil {
		return err
	}
	snap.result.Store(res)

	if d.current() != snap || s.document(uri) != d {
		// a newer version has its own pass queued
		metrics.AnalysisPasses.WithLabelValues("superseded").Inc()
		return nil
	}
	metrics.AnalysisPasses.WithLabelValues("published").Inc()
	if err := s.publish(uri, snap, res); err != nil {
		return err
	}
	if s.index.SetOpen(uri, res.Symbols.All()) {
		s.reanalyzeOthers(uri)
	}
	return nil
}

// Result returns the analysis of snap, computing it if no pass has yet.
// Concurrent callers share one computation. When ctx is done first, Result
// returns ctx.Err() and the computation finishes on its own.
func (s *Session) Result(ctx context.Context, snap *Snapshot) (*analysis.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if res := snap.result.Load(); res != nil {
		return res, nil
	}
	key := fmt.Sprintf("%s@%d", snap.URI, snap.gen)
	ch := s.flight.DoChan(key, func() (any, error) {
		if res := snap.result.Load(); res != nil {
			return res, nil
		}
		res, err := s.analyze(context.Background(), snap)
		if err != nil {
			return nil, err
		}
		snap.result.CompareAndSwap(nil, res)
		return snap.result.Load(), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*analysis.Result), nil
	}
}

// Diagnostics converts the diagnostics of res to protocol form.
func Diagnostics(snap *Snapshot, res *analysis.Result) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(res.Diagnostics))
	source := diagnosticSource
	for _, d := range res.Diagnostics {
		severity := protocol.DiagnosticSeverity(d.Severity)
		pd := protocol.Diagnostic{
			Range:    snap.Lines.Range(d.Start, d.End),
			Severity: &severity,
			Source:   &source,
			Message:  d.Message,
		}
		if d.Code != "" {
			pd.Code = &protocol.IntegerOrString{Value: d.Code}
		}
		out = append(out, pd)
	}
	return out
}

// publish sends the diagnostics of snap. A nil snap clears the diagnostics
// of uri.
func (s *Session) publish(uri string, snap *Snapshot, res *analysis.Result) error {
	params := protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	}
	if snap != nil {
		version := protocol.UInteger(snap.Version)
		params.Version = &version
		params.Diagnostics = Diagnostics(snap, res)
	}
	if s.notifier == nil {
		return nil
	}
	log.Debugf("publishing %d diagnostics for %s", len(params.Diagnostics), uri)
	return s.notifier.Notify(context.Background(), string(protocol.ServerTextDocumentPublishDiagnostics), params)
}
