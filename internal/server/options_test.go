package server

import (
	"testing"

	"daelsp/internal/config"
	"daelsp/internal/dae"

	"github.com/stretchr/testify/assert"
)

func TestConnectionOptionsAlwaysSetLogger(t *testing.T) {
	s := New(dae.Language{}, config.Default())
	assert.Len(t, s.connectionOptions(), 1)

	s.Debug = true
	assert.Len(t, s.connectionOptions(), 2)
}
