package transport

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/sourcegraph/jsonrpc2"
)

const pipeBuffer = 64

type pipe struct {
	closed chan struct{}
	once   sync.Once
}

func (p *pipe) close() {
	p.once.Do(func() { close(p.closed) })
}

type pipeEnd struct {
	p   *pipe
	in  <-chan json.RawMessage
	out chan<- json.RawMessage
}

// Pipe returns the two ends of an in-process connection. Each WriteObject
// is delivered as one message to the other end's ReadObject. Closing either
// end closes both.
func Pipe() (client, server jsonrpc2.ObjectStream) {
	p := &pipe{closed: make(chan struct{})}
	a := make(chan json.RawMessage, pipeBuffer)
	b := make(chan json.RawMessage, pipeBuffer)
	return &pipeEnd{p: p, in: a, out: b}, &pipeEnd{p: p, in: b, out: a}
}

func (e *pipeEnd) WriteObject(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	select {
	case <-e.p.closed:
		return io.ErrClosedPipe
	default:
	}
	select {
	case e.out <- data:
		return nil
	case <-e.p.closed:
		return io.ErrClosedPipe
	}
}

func (e *pipeEnd) ReadObject(v any) error {
	select {
	case data := <-e.in:
		return json.Unmarshal(data, v)
	case <-e.p.closed:
		return io.EOF
	}
}

func (e *pipeEnd) Close() error {
	e.p.close()
	return nil
}
