package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckResolvesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	rules := filepath.Join(dir, "rules.dae")
	routing := filepath.Join(dir, "routing.dae")
	require.NoError(t, os.WriteFile(rules, []byte("rule cn { match: dip(geoip:cn) }\n"), 0o644))
	require.NoError(t, os.WriteFile(routing, []byte("routing {\n  rule(cn) -> direct\n  fallback: direct\n}\n"), 0o644))

	var out bytes.Buffer
	errors, err := check(&out, []string{rules, routing})
	require.NoError(t, err)
	assert.Zero(t, errors)
	assert.Empty(t, out.String())
}

func TestCheckReportsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.dae")
	require.NoError(t, os.WriteFile(path, []byte("routing {\n  dip(1.1.1.1) -> nowhere\n  fallback: direct\n}\n"), 0o644))

	var out bytes.Buffer
	errors, err := check(&out, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, errors)
	assert.Contains(t, out.String(), path+":2:19: error: ")
	assert.Contains(t, out.String(), "[unresolved-reference]")
}

func TestCheckMissingFile(t *testing.T) {
	_, err := check(&bytes.Buffer{}, []string{filepath.Join(t.TempDir(), "missing.dae")})
	assert.Error(t, err)
}
