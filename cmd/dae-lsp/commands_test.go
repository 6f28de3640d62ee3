package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStdioConflictsWithWebSocket(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--stdio", "--ws", "127.0.0.1:0"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		stdioFlag, wsAddr = false, ""
	})

	err := rootCmd.Execute()
	assert.ErrorContains(t, err, "none of the others can be")
}
