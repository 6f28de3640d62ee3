// Package dispatch maps JSON-RPC messages of one connection onto its
// session. It owns the lifecycle state machine, keeps mutations of a
// document in arrival order and runs read-only requests concurrently.
package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"daelsp/internal/analysis"
	"daelsp/internal/config"
	"daelsp/internal/metrics"
	"daelsp/internal/scheduler"
	"daelsp/internal/session"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tidwall/gjson"
	"github.com/tliron/commonlog"
	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/semaphore"
)

var log = commonlog.GetLogger("dae-lsp.dispatch")

// Dispatcher is the jsonrpc2.Handler of one connection.
type Dispatcher struct {
	session *session.Session
	state   atomic.Int32
	conn    atomic.Pointer[jsonrpc2.Conn]

	// serial queues of document mutations, keyed by uri
	queues *scheduler.Scheduler
	reads  *semaphore.Weighted

	mu       sync.Mutex
	inflight map[jsonrpc2.ID]context.CancelFunc

	exitOnce sync.Once
	exited   chan struct{}
	exitCode int
}

var _ jsonrpc2.Handler = (*Dispatcher)(nil)

// New returns a dispatcher with a fresh session for lang.
func New(lang analysis.Language, cfg config.Config) *Dispatcher {
	d := &Dispatcher{
		queues:   scheduler.NewScheduler(),
		reads:    semaphore.NewWeighted(int64(max(cfg.MaxConcurrentReads, 1))),
		inflight: make(map[jsonrpc2.ID]context.CancelFunc),
		exited:   make(chan struct{}),
		exitCode: 1,
	}
	d.session = session.New(lang, cfg, d)
	metrics.Sessions.Inc()
	return d
}

func (d *Dispatcher) Session() *session.Session { return d.session }

func (d *Dispatcher) State() State { return State(d.state.Load()) }

func (d *Dispatcher) setState(s State) {
	log.Debugf("session %s is %s", d.session.ID, s)
	d.state.Store(int32(s))
}

// Exited is closed once the client sent exit or the connection is gone.
func (d *Dispatcher) Exited() <-chan struct{} { return d.exited }

// ExitCode is 0 when the client sent exit after shutdown, 1 otherwise.
func (d *Dispatcher) ExitCode() int {
	select {
	case <-d.exited:
		return d.exitCode
	default:
		return 1
	}
}

// Notify sends a notification to the client of this connection.
func (d *Dispatcher) Notify(ctx context.Context, method string, params any) error {
	conn := d.conn.Load()
	if conn == nil {
		return nil
	}
	return conn.Notify(ctx, method, params)
}

func (d *Dispatcher) showError(err error) {
	params := protocol.ShowMessageParams{Type: protocol.MessageTypeError, Message: err.Error()}
	if err := d.Notify(context.Background(), string(protocol.ServerWindowShowMessage), params); err != nil {
		log.Warningf("show message: %s", err.Error())
	}
}

// Handle runs on the read loop of the connection, one message at a time.
// Anything that may block is moved to a queue or a goroutine.
func (d *Dispatcher) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	d.conn.CompareAndSwap(nil, conn)
	method := ParseMethod(req.Method)
	if req.Notif {
		d.notification(method, req)
		return
	}
	d.request(ctx, conn, method, req)
}

func (d *Dispatcher) reply(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, start time.Time, result any, err error) {
	metrics.Requests.WithLabelValues(req.Method, outcome(err)).Inc()
	metrics.RequestLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		rpcErr := toRPCError(err)
		if rpcErr.Code == CodeRequestCancelled {
			metrics.Cancellations.Inc()
		}
		if err := conn.ReplyWithError(ctx, req.ID, rpcErr); err != nil {
			log.Warningf("reply to %s %s: %s", req.Method, req.ID, err.Error())
		}
		return
	}
	if err := conn.Reply(ctx, req.ID, result); err != nil {
		log.Warningf("reply to %s %s: %s", req.Method, req.ID, err.Error())
	}
}

func (d *Dispatcher) reject(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request, rpcErr *jsonrpc2.Error) {
	metrics.Requests.WithLabelValues(req.Method, "rejected").Inc()
	if err := conn.ReplyWithError(ctx, req.ID, rpcErr); err != nil {
		log.Warningf("reply to %s %s: %s", req.Method, req.ID, err.Error())
	}
}

func (d *Dispatcher) request(ctx context.Context, conn *jsonrpc2.Conn, method Method, req *jsonrpc2.Request) {
	start := time.Now()
	state := d.State()
	switch {
	case state >= ShuttingDown && method != MethodExit:
		d.reject(ctx, conn, req, rpcError(jsonrpc2.CodeInvalidRequest, "server is shutting down"))
		return
	case method == MethodInitialize:
		result, err := d.initialize(req)
		d.reply(ctx, conn, req, start, result, err)
		return
	case state != Ready && method != MethodExit:
		d.reject(ctx, conn, req, rpcError(CodeServerNotInitialized, "server is not initialized"))
		return
	}

	switch {
	case method == MethodShutdown:
		d.reply(ctx, conn, req, start, nil, d.shutdown())
	case method == MethodExit:
		d.exit()
	case method.Mutates():
		// a mutation sent as a request is answered once it is applied
		uri, task, err := d.mutation(method, req)
		if err != nil {
			d.reply(ctx, conn, req, start, nil, err)
			return
		}
		d.queues.Schedule(documentKey(uri), scheduler.Task{Name: req.Method, Execute: func() error {
			err := task()
			d.reply(ctx, conn, req, start, nil, err)
			return nil
		}})
	case method.Reads():
		d.read(ctx, conn, method, req, start)
	case method == MethodDidChangeWatchedFiles, method == MethodInitialized, method == MethodCancelRequest:
		d.reject(ctx, conn, req, rpcError(jsonrpc2.CodeInvalidRequest, "%s is a notification", req.Method))
	default:
		d.reject(ctx, conn, req, rpcError(jsonrpc2.CodeMethodNotFound, "method not supported: %s", req.Method))
	}
}

func (d *Dispatcher) notification(method Method, req *jsonrpc2.Request) {
	start := time.Now()
	state := d.State()
	count := func(result string) {
		metrics.Requests.WithLabelValues(req.Method, result).Inc()
		metrics.RequestLatency.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())
	}

	switch {
	case method == MethodExit:
		d.exit()
		count("ok")
		return
	case method == MethodCancelRequest:
		d.cancel(req)
		count("ok")
		return
	case method == MethodUnknown:
		if !optional(req.Method) {
			log.Debugf("ignoring unknown notification %s", req.Method)
		}
		count("dropped")
		return
	case method == MethodInitialized && state == Initializing:
		d.setState(Ready)
		d.session.Initialized()
		count("ok")
		return
	case state != Ready:
		log.Debugf("dropping %s while %s", req.Method, state)
		count("dropped")
		return
	}

	var err error
	switch {
	case method.Mutates():
		var uri string
		var task func() error
		uri, task, err = d.mutation(method, req)
		if err == nil {
			d.queues.Schedule(documentKey(uri), scheduler.Task{Name: req.Method, Execute: func() error {
				if err := task(); err != nil {
					log.Warningf("%s %s: %s", req.Method, uri, err.Error())
					d.showError(err)
					count("error")
					return nil
				}
				count("ok")
				return nil
			}})
			return
		}
	case method == MethodDidChangeWatchedFiles:
		var params protocol.DidChangeWatchedFilesParams
		if err = unmarshal(req, &params); err == nil {
			err = d.session.DidChangeWatchedFiles(&params)
		}
	default:
		log.Debugf("%s is not a notification", req.Method)
		count("dropped")
		return
	}
	if err != nil {
		log.Warningf("%s: %s", req.Method, err.Error())
		d.showError(err)
	}
	count(outcome(err))
}

func documentKey(uri string) string { return "document:" + uri }

// documentURI extracts the document of a request without decoding all of
// its params.
func documentURI(req *jsonrpc2.Request) string {
	if req.Params == nil {
		return ""
	}
	return gjson.GetBytes(*req.Params, "textDocument.uri").String()
}

func unmarshal(req *jsonrpc2.Request, v any) error {
	if req.Params == nil {
		return rpcError(jsonrpc2.CodeInvalidParams, "%s: missing params", req.Method)
	}
	if err := json.Unmarshal(*req.Params, v); err != nil {
		return rpcError(jsonrpc2.CodeInvalidParams, "%s: %s", req.Method, err.Error())
	}
	return nil
}

// cancel marks an in-flight read as cancelled.
func (d *Dispatcher) cancel(req *jsonrpc2.Request) {
	if req.Params == nil {
		return
	}
	raw := gjson.GetBytes(*req.Params, "id")
	var id jsonrpc2.ID
	switch raw.Type {
	case gjson.Number:
		id = jsonrpc2.ID{Num: raw.Uint()}
	case gjson.String:
		id = jsonrpc2.ID{Str: raw.String(), IsString: true}
	default:
		return
	}
	d.mu.Lock()
	cancel, ok := d.inflight[id]
	d.mu.Unlock()
	if ok {
		log.Debugf("cancelling request %s", id)
		cancel()
	}
}

func (d *Dispatcher) track(id jsonrpc2.ID, cancel context.CancelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight[id] = cancel
}

func (d *Dispatcher) untrack(id jsonrpc2.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, id)
}

// read runs a read-only request once the mutations that arrived before it
// are applied, on its own goroutine.
func (d *Dispatcher) read(ctx context.Context, conn *jsonrpc2.Conn, method Method, req *jsonrpc2.Request, start time.Time) {
	handler, err := d.reader(method, req)
	if err != nil {
		d.reply(ctx, conn, req, start, nil, err)
		return
	}

	rctx, cancel := context.WithCancel(context.Background())
	d.track(req.ID, cancel)
	barrier := d.queues.Barrier(documentKey(documentURI(req)))

	go func() {
		defer d.untrack(req.ID)
		defer cancel()

		select {
		case <-barrier:
		case <-rctx.Done():
			d.reply(ctx, conn, req, start, nil, rctx.Err())
			return
		}
		if err := d.reads.Acquire(rctx, 1); err != nil {
			d.reply(ctx, conn, req, start, nil, err)
			return
		}
		result, err := handler(rctx)
		d.reads.Release(1)
		if err == nil && rctx.Err() != nil {
			err = rctx.Err()
		}
		d.reply(ctx, conn, req, start, result, err)
	}()
}

func (d *Dispatcher) cancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cancel := range d.inflight {
		cancel()
	}
}

func (d *Dispatcher) exit() {
	d.exitOnce.Do(func() {
		if d.State() == ShuttingDown {
			d.exitCode = 0
		} else {
			d.cancelAll()
			d.queues.Stop()
			d.session.Shutdown()
		}
		d.setState(Exited)
		metrics.Sessions.Dec()
		log.Infof("session %s exited with code %d", d.session.ID, d.exitCode)
		close(d.exited)
		if conn := d.conn.Load(); conn != nil {
			go conn.Close()
		}
	})
}

// Disconnected ends the session when the connection drops without exit.
func (d *Dispatcher) Disconnected() {
	d.exit()
}
