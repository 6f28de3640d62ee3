package dispatch

import (
	"context"

	"github.com/sourcegraph/jsonrpc2"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func (d *Dispatcher) initialize(
	req *jsonrpc2.Request,
) (any, error) {
	if d.State() != Uninitialized {
		return nil, rpcError(jsonrpc2.CodeInvalidRequest, "initialize was already received")
	}
	var params protocol.InitializeParams
	if err := unmarshal(req, &params); err != nil {
		return nil, err
	}
	d.setState(Initializing)

	result, err := d.session.Initialize(&params)
	if err != nil {
		d.setState(Uninitialized)
		return nil, rpcError(jsonrpc2.CodeInvalidParams, "initialize: %s", err.Error())
	}
	return result, nil
}

// shutdown stops accepting work, lets queued mutations finish and stops
// the session's background work.
func (d *Dispatcher) shutdown() error {
	d.setState(ShuttingDown)
	d.cancelAll()
	d.queues.Stop()
	d.session.Shutdown()
	log.Infof("session %s shut down", d.session.ID)
	return nil
}

// mutation decodes a document mutation. The returned task applies it and
// must run on the queue of uri.
func (d *Dispatcher) mutation(
	method Method,
	req *jsonrpc2.Request,
) (string, func() error, error) {
	switch method {
	case MethodDidOpen:
		var params protocol.DidOpenTextDocumentParams
		if err := unmarshal(req, &params); err != nil {
			return "", nil, err
		}
		return params.TextDocument.URI, func() error {
			return d.session.DidOpen(&params)
		}, nil

	case MethodDidChange:
		var params protocol.DidChangeTextDocumentParams
		if err := unmarshal(req, &params); err != nil {
			return "", nil, err
		}
		return params.TextDocument.URI, func() error {
			return d.session.DidChange(&params)
		}, nil

	case MethodDidClose:
		var params protocol.DidCloseTextDocumentParams
		if err := unmarshal(req, &params); err != nil {
			return "", nil, err
		}
		return params.TextDocument.URI, func() error {
			return d.session.DidClose(&params)
		}, nil
	}
	return "", nil, rpcError(jsonrpc2.CodeMethodNotFound, "%s is not a mutation", req.Method)
}

// reader decodes a read-only request into a handler that takes the
// request's cancellation context.
func (d *Dispatcher) reader(
	method Method,
	req *jsonrpc2.Request,
) (func(context.Context) (any, error), error) {
	switch method {
	case MethodHover:
		var params protocol.HoverParams
		if err := unmarshal(req, &params); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			hover, err := d.session.Hover(ctx, &params)
			if hover == nil {
				return nil, err
			}
			return hover, err
		}, nil

	case MethodCompletion:
		var params protocol.CompletionParams
		if err := unmarshal(req, &params); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			list, err := d.session.Complete(ctx, &params)
			if list == nil {
				return nil, err
			}
			return list, err
		}, nil

	case MethodDefinition:
		var params protocol.DefinitionParams
		if err := unmarshal(req, &params); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (any, error) {
			locs, err := d.session.Definition(ctx, &params)
			if len(locs) == 0 {
				return nil, err
			}
			return locs, err
		}, nil
	}
	return nil, rpcError(jsonrpc2.CodeMethodNotFound, "%s is not a read", req.Method)
}
