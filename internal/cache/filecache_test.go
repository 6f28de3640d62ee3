package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"daelsp/internal/analysis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

func openCache(t *testing.T) (*Filecache, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	fc, err := NewFilecache(path)
	require.NoError(t, err)
	t.Cleanup(func() { fc.Close() })
	return fc, path
}

func entry() Entry {
	return Entry{
		Path:    "/work/config.dae",
		URI:     "file:///work/config.dae",
		ModTime: 1700000000,
		Size:    120,
		Symbols: []analysis.Symbol{
			{
				Name:  "proxy",
				Kind:  "group",
				Start: 10,
				End:   15,
				Range: protocol.Range{
					Start: protocol.Position{Line: 1, Character: 2},
					End:   protocol.Position{Line: 1, Character: 7},
				},
				Detail:    "policy: min",
				Container: "group",
			},
			{Name: "cn", Kind: "rule", Start: 30, End: 32},
		},
	}
}

func TestPutGet(t *testing.T) {
	fc, _ := openCache(t)
	require.NoError(t, fc.Put(entry()))

	got, err := fc.Get("/work/config.dae")
	require.NoError(t, err)
	want := entry()
	for i := range want.Symbols {
		want.Symbols[i].URI = want.URI
	}
	assert.Equal(t, want, got)

	_, err = fc.Get("/work/missing.dae")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFresh(t *testing.T) {
	fc, _ := openCache(t)
	require.NoError(t, fc.Put(entry()))

	syms, ok := fc.Fresh("/work/config.dae", 1700000000, 120)
	assert.True(t, ok)
	assert.Len(t, syms, 2)

	_, ok = fc.Fresh("/work/config.dae", 1700000001, 120)
	assert.False(t, ok)
	_, ok = fc.Fresh("/work/config.dae", 1700000000, 121)
	assert.False(t, ok)
}

func TestPutReplaces(t *testing.T) {
	fc, _ := openCache(t)
	require.NoError(t, fc.Put(entry()))

	e := entry()
	e.ModTime++
	e.Symbols = e.Symbols[:1]
	require.NoError(t, fc.Put(e))

	got, err := fc.Get(e.Path)
	require.NoError(t, err)
	assert.Len(t, got.Symbols, 1)
	assert.Equal(t, e.ModTime, got.ModTime)
}

func TestDeleteAndPaths(t *testing.T) {
	fc, _ := openCache(t)
	require.NoError(t, fc.Put(entry()))
	other := entry()
	other.Path = "/work/a.dae"
	require.NoError(t, fc.Put(other))

	paths, err := fc.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/a.dae", "/work/config.dae"}, paths)

	require.NoError(t, fc.Delete("/work/a.dae"))
	paths, err = fc.Paths()
	require.NoError(t, err)
	assert.Equal(t, []string{"/work/config.dae"}, paths)
}

func TestReopenKeepsEntries(t *testing.T) {
	fc, path := openCache(t)
	require.NoError(t, fc.Put(entry()))
	require.NoError(t, fc.Close())

	again, err := NewFilecache(path)
	require.NoError(t, err)
	defer again.Close()
	_, ok := again.Fresh("/work/config.dae", 1700000000, 120)
	assert.True(t, ok)
}

func TestStateDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	dir, err := StateDir("dae-lsp")
	require.NoError(t, err)
	assert.DirExists(t, dir)
}

func TestSharedFileConcurrentWriters(t *testing.T) {
	first, path := openCache(t)
	second, err := NewFilecache(path)
	require.NoError(t, err)
	defer second.Close()

	var timeout int64
	require.NoError(t, second.db.QueryRow("PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, busyTimeout.Milliseconds(), timeout)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for w, fc := range []*Filecache{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				e := entry()
				e.Path = fmt.Sprintf("/work/%d/%d.dae", w, i)
				errs <- fc.Put(e)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	paths, err := first.Paths()
	require.NoError(t, err)
	assert.Len(t, paths, 100)
}
