package resolver

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURIRoundTrip(t *testing.T) {
	path := filepath.Join(string(filepath.Separator), "etc", "dae", "my config.dae")
	uri := URIFromPath(path)
	assert.Equal(t, "file:///etc/dae/my%20config.dae", filepath.ToSlash(uri))

	back, err := PathFromURI(uri)
	require.NoError(t, err)
	assert.Equal(t, path, back)

	_, err = PathFromURI("untitled:Untitled-1")
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	r := New([]string{"/work", "/work/nested"}, []string{"**/*.dae"}, nil)

	f, err := r.Resolve("file:///work/nested/a.dae")
	require.NoError(t, err)
	assert.Equal(t, "/work/nested", f.Root)
	assert.Equal(t, "a.dae", f.RelativePath)

	f, err = r.Resolve("conf/b.dae")
	require.NoError(t, err)
	assert.Equal(t, "/work/conf/b.dae", f.AbsolutePath)
	assert.Equal(t, "/work", f.Root)

	f, err = r.Resolve("/elsewhere/c.dae")
	require.NoError(t, err)
	assert.Empty(t, f.Root)
	assert.False(t, r.Match(f))
}

func TestMatch(t *testing.T) {
	r := New([]string{"/work"}, []string{"**/*.dae"}, []string{"vendor/**"})

	tests := []struct {
		path string
		want bool
	}{
		{"/work/config.dae", true},
		{"/work/a/b/rules.dae", true},
		{"/work/readme.md", false},
		{"/work/vendor/x.dae", false},
	}
	for _, tt := range tests {
		f, err := r.Resolve(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r.Match(f), tt.path)
	}
}

func TestIgnoreDir(t *testing.T) {
	assert.True(t, IgnoreDir("/work/.git"))
	assert.False(t, IgnoreDir("/work/conf"))
	assert.False(t, IgnoreDir("."))
}
