// Package server connects transports to dispatchers. Every connection gets
// its own dispatcher and session.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"daelsp/internal/analysis"
	"daelsp/internal/config"
	"daelsp/internal/dispatch"
	"daelsp/internal/metrics"
	"daelsp/internal/transport"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dae-lsp.server")

type Server struct {
	lang  analysis.Language
	cfg   config.Config
	Debug bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Origins limits the WebSocket origins; empty accepts any.
	Origins []string
}

func New(lang analysis.Language, cfg config.Config) *Server {
	return &Server{lang: lang, cfg: cfg}
}

func (s *Server) connectionOptions() []jsonrpc2.ConnOpt {
	rpcLog := commonlog.GetLogger("dae-lsp.rpc")
	opts := []jsonrpc2.ConnOpt{jsonrpc2.SetLogger(transport.Logger{Log: rpcLog})}
	if s.Debug {
		opts = append(opts, jsonrpc2.LogMessages(transport.Logger{Log: rpcLog, Trace: true}))
	}
	return opts
}

// Connect starts serving stream and returns at once.
func (s *Server) Connect(ctx context.Context, stream jsonrpc2.ObjectStream) (*dispatch.Dispatcher, *jsonrpc2.Conn) {
	d := dispatch.New(s.lang, s.cfg)
	conn := jsonrpc2.NewConn(ctx, stream, d, s.connectionOptions()...)
	go func() {
		<-conn.DisconnectNotify()
		d.Disconnected()
	}()
	return d, conn
}

// ServeStream serves stream until the client exits or the connection
// drops, and returns the exit code of the session.
func (s *Server) ServeStream(ctx context.Context, stream jsonrpc2.ObjectStream) int {
	d, conn := s.Connect(ctx, stream)
	select {
	case <-d.Exited():
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		conn.Close()
	}
	return d.ExitCode()
}

// RunStdio serves a single session over stdin and stdout.
func (s *Server) RunStdio(ctx context.Context) int {
	log.Info("reading from stdin, writing to stdout")
	code := s.ServeStream(ctx, transport.Stdio())
	log.Infof("stdin/stdout connection closed, exit code %d", code)
	return code
}

// Handler serves WebSocket sessions at / and metrics at /metrics.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", transport.NewWebSocket(func(_ context.Context, stream jsonrpc2.ObjectStream) {
		s.ServeStream(ctx, stream)
	}, s.Origins...))
	return mux
}

// RunWebSocket listens on address until ctx is done.
func (s *Server) RunWebSocket(ctx context.Context, address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		log.Criticalf("could not bind to address %s: %s", address, err.Error())
		return err
	}
	server := &http.Server{
		Handler:      s.Handler(ctx),
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Infof("listening for WebSocket connections on %s", listener.Addr())
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
