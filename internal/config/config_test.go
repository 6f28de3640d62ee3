package config

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Debounce())
	assert.Equal(t, []string{"**/*.dae"}, cfg.Include)
	assert.Equal(t, 8, cfg.MaxConcurrentReads)
	assert.True(t, cfg.Scan)
}

func TestLoadInitializationOptions(t *testing.T) {
	var opts any
	require.NoError(t, json.Unmarshal([]byte(`{"debounceMs": 50, "watch": true}`), &opts))

	cfg, err := Load(opts)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
	assert.True(t, cfg.Watch)
	// untouched fields keep their defaults
	assert.Equal(t, []string{"**/*.dae"}, cfg.Include)
}

func TestPrecedence(t *testing.T) {
	file, err := LoadFromYAML(strings.NewReader("debounceMs: 500\ncache: true\ninclude: ['conf/*.dae']\n"))
	require.NoError(t, err)
	assert.True(t, file.Cache)

	cfg, err := LoadOnto(file, map[string]any{"debounceMs": 100})
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.DebounceMS)
	assert.True(t, cfg.Cache)
	assert.Equal(t, []string{"conf/*.dae"}, cfg.Include)
}

func TestEmptyYAML(t *testing.T) {
	cfg, err := LoadFromYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		opts map[string]any
	}{
		{"negative debounce", map[string]any{"debounceMs": -1}},
		{"no readers", map[string]any{"maxConcurrentReads": 0}},
		{"bad glob", map[string]any{"include": []string{"[a-"}}},
		{"no include", map[string]any{"include": []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestMalformedOptions(t *testing.T) {
	_, err := Load(map[string]any{"debounceMs": "soon"})
	assert.Error(t, err)
}
