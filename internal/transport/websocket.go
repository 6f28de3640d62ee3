package transport

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/sourcegraph/jsonrpc2"
	wsjsonrpc2 "github.com/sourcegraph/jsonrpc2/websocket"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("dae-lsp.transport")

// ServeFunc serves one connection and returns once it is closed.
type ServeFunc func(ctx context.Context, stream jsonrpc2.ObjectStream)

// WebSocket upgrades every request into a connection of its own.
type WebSocket struct {
	upgrader    websocket.Upgrader
	serve       ServeFunc
	connections atomic.Int64
}

// NewWebSocket returns a handler for serve. When origins is empty every
// origin is accepted.
func NewWebSocket(serve ServeFunc, origins ...string) *WebSocket {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return &WebSocket{
		serve: serve,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
			return len(allowed) == 0 || allowed[r.Header.Get("Origin")]
		}},
	}
}

func (ws *WebSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		log.Infof("error upgrading HTTP to WebSocket: %s", err.Error())
		return
	}
	defer conn.Close()

	id := ws.connections.Add(1)
	log.Infof("received incoming WebSocket connection #%d", id)
	ws.serve(context.Background(), wsjsonrpc2.NewObjectStream(conn))
	log.Infof("WebSocket connection #%d closed", id)
}
