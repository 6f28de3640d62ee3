// Package transport frames JSON-RPC messages for the server: Content-Length
// framing over stdio, one message per call in process, and WebSocket.
package transport

import (
	"os"
	"strings"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"
)

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error) {
	return os.Stdin.Read(p)
}

func (stdrwc) Write(p []byte) (int, error) {
	return os.Stdout.Write(p)
}

func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// Stdio reads Content-Length framed messages from stdin and writes them to
// stdout.
func Stdio() jsonrpc2.ObjectStream {
	return jsonrpc2.NewBufferedStream(stdrwc{}, jsonrpc2.VSCodeObjectCodec{})
}

// Logger adapts a commonlog logger to jsonrpc2. Connection errors are
// warnings; with Trace set everything goes to debug.
type Logger struct {
	Log   commonlog.Logger
	Trace bool
}

func (l Logger) Printf(format string, v ...any) {
	format = strings.TrimSuffix(format, "\n")
	if l.Trace {
		l.Log.Debugf(format, v...)
		return
	}
	l.Log.Warningf(format, v...)
}
