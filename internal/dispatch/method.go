package dispatch

import "strings"

// Method is one of the protocol methods the server knows.
type Method int

const (
	MethodUnknown Method = iota
	MethodInitialize
	MethodInitialized
	MethodShutdown
	MethodExit
	MethodDidOpen
	MethodDidChange
	MethodDidClose
	MethodDidChangeWatchedFiles
	MethodCompletion
	MethodHover
	MethodDefinition
	MethodCancelRequest
	methodCount
)

var methodNames = [methodCount]string{
	MethodUnknown:               "",
	MethodInitialize:            "initialize",
	MethodInitialized:           "initialized",
	MethodShutdown:              "shutdown",
	MethodExit:                  "exit",
	MethodDidOpen:               "textDocument/didOpen",
	MethodDidChange:             "textDocument/didChange",
	MethodDidClose:              "textDocument/didClose",
	MethodDidChangeWatchedFiles: "workspace/didChangeWatchedFiles",
	MethodCompletion:            "textDocument/completion",
	MethodHover:                 "textDocument/hover",
	MethodDefinition:            "textDocument/definition",
	MethodCancelRequest:         "$/cancelRequest",
}

var methodsByName = func() map[string]Method {
	m := make(map[string]Method, methodCount)
	for i := MethodUnknown + 1; i < methodCount; i++ {
		m[methodNames[i]] = i
	}
	return m
}()

// ParseMethod returns the method of a wire name, or MethodUnknown.
func ParseMethod(name string) Method {
	return methodsByName[name]
}

func (m Method) String() string {
	if m <= MethodUnknown || m >= methodCount {
		return "unknown"
	}
	return methodNames[m]
}

// Mutates reports whether m changes document state. Such methods run on the
// document's serial queue and are never cancelled.
func (m Method) Mutates() bool {
	switch m {
	case MethodDidOpen, MethodDidChange, MethodDidClose:
		return true
	}
	return false
}

// Reads reports whether m is a read-only document request.
func (m Method) Reads() bool {
	switch m {
	case MethodCompletion, MethodHover, MethodDefinition:
		return true
	}
	return false
}

// optional reports whether name is one of the "$/" methods a server may
// ignore.
func optional(name string) bool {
	return strings.HasPrefix(name, "$/")
}
