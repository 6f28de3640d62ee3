package transport

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"
)

func TestPipeDeliversOneMessagePerCall(t *testing.T) {
	client, server := Pipe()
	require.NoError(t, client.WriteObject(map[string]any{"method": "initialize", "id": 1}))
	require.NoError(t, client.WriteObject(map[string]any{"method": "initialized"}))

	var first, second map[string]any
	require.NoError(t, server.ReadObject(&first))
	require.NoError(t, server.ReadObject(&second))
	assert.Equal(t, "initialize", first["method"])
	assert.Equal(t, "initialized", second["method"])

	require.NoError(t, server.WriteObject(map[string]any{"id": 1, "result": nil}))
	var reply map[string]any
	require.NoError(t, client.ReadObject(&reply))
	assert.EqualValues(t, 1, reply["id"])
}

func TestPipeClose(t *testing.T) {
	client, server := Pipe()
	require.NoError(t, server.Close())

	var v any
	assert.ErrorIs(t, client.ReadObject(&v), io.EOF)
	assert.ErrorIs(t, client.WriteObject(1), io.ErrClosedPipe)
	assert.ErrorIs(t, server.ReadObject(&v), io.EOF)
}

func TestPipeRejectsUnencodable(t *testing.T) {
	client, _ := Pipe()
	assert.Error(t, client.WriteObject(make(chan int)))
}

type recordingLogger struct {
	commonlog.Logger
	warnings []string
	debugs   []string
}

func (l *recordingLogger) Warningf(format string, v ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) Debugf(format string, v ...any) {
	l.debugs = append(l.debugs, fmt.Sprintf(format, v...))
}

func TestLoggerLevels(t *testing.T) {
	rec := &recordingLogger{}
	Logger{Log: rec}.Printf("jsonrpc2: protocol error: %s\n", "bad frame")
	Logger{Log: rec, Trace: true}.Printf("jsonrpc2: --> request #%d\n", 1)

	assert.Equal(t, []string{"jsonrpc2: protocol error: bad frame"}, rec.warnings)
	assert.Equal(t, []string{"jsonrpc2: --> request #1"}, rec.debugs)
}
