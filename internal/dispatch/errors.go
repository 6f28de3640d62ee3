package dispatch

import (
	"context"
	"errors"
	"fmt"

	"daelsp/internal/textstore"

	"github.com/sourcegraph/jsonrpc2"
)

// Error codes not defined by jsonrpc2.
const (
	CodeServerNotInitialized int64 = -32002
	CodeRequestCancelled     int64 = -32800

	// Server defined codes for rejected document mutations.
	CodeStaleEdit       int64 = -32010
	CodeUnknownDocument int64 = -32011
	CodeInvalidEdit     int64 = -32012
)

func rpcError(code int64, format string, args ...any) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// toRPCError classifies a handler error.
func toRPCError(err error) *jsonrpc2.Error {
	var rpcErr *jsonrpc2.Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, context.Canceled):
		return rpcError(CodeRequestCancelled, "request cancelled")
	case errors.Is(err, textstore.ErrStaleEdit):
		return rpcError(CodeStaleEdit, "%s", err.Error())
	case errors.Is(err, textstore.ErrUnknownDocument):
		return rpcError(CodeUnknownDocument, "%s", err.Error())
	case errors.Is(err, textstore.ErrInvalidEdit):
		return rpcError(CodeInvalidEdit, "%s", err.Error())
	}
	return rpcError(jsonrpc2.CodeInternalError, "%s", err.Error())
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	return "error"
}
