// Package resolver maps between document URIs and file paths and decides
// which workspace files belong to the index.
package resolver

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

type File struct {
	URI          string
	AbsolutePath string
	// RelativePath is relative to the workspace root containing the file,
	// with forward slashes.
	RelativePath string
	Root         string
}

// Resolver knows the workspace roots and the include/exclude globs.
type Resolver struct {
	primary string
	roots   []string
	include []string
	exclude []string
}

// New returns a resolver for the given root directories. Longer roots are
// preferred when folders nest.
func New(roots []string, include, exclude []string) *Resolver {
	cleaned := make([]string, 0, len(roots))
	for _, r := range roots {
		cleaned = append(cleaned, filepath.Clean(r))
	}
	r := &Resolver{include: include, exclude: exclude}
	if len(cleaned) > 0 {
		r.primary = cleaned[0]
	}
	sort.SliceStable(cleaned, func(i, j int) bool { return len(cleaned[i]) > len(cleaned[j]) })
	r.roots = cleaned
	return r
}

func (r *Resolver) Roots() []string { return append([]string(nil), r.roots...) }

// PathFromURI converts a file:// URI to a local path.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported uri scheme %q", u.Scheme)
	}
	return filepath.Clean(filepath.FromSlash(u.Path)), nil
}

// URIFromPath converts an absolute path to a file:// URI.
func URIFromPath(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(filepath.Clean(path)),
	}
	return u.String()
}

// Resolve accepts a URI or a path, relative paths being taken against the
// first root.
func (r *Resolver) Resolve(base string) (File, error) {
	var path string
	if strings.HasPrefix(base, "file:") {
		p, err := PathFromURI(base)
		if err != nil {
			return File{}, err
		}
		path = p
	} else if filepath.IsAbs(base) {
		path = filepath.Clean(base)
	} else {
		if r.primary == "" {
			return File{}, fmt.Errorf("relative path %q without a workspace root", base)
		}
		path = filepath.Join(r.primary, base)
	}

	f := File{URI: URIFromPath(path), AbsolutePath: path}
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		f.Root = root
		f.RelativePath = filepath.ToSlash(rel)
		break
	}
	return f, nil
}

// Match reports whether the file is inside a root, matches an include glob
// and no exclude glob.
func (r *Resolver) Match(f File) bool {
	if f.Root == "" {
		return false
	}
	included := false
	for _, pattern := range r.include {
		if ok, _ := doublestar.Match(pattern, f.RelativePath); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, pattern := range r.exclude {
		if ok, _ := doublestar.Match(pattern, f.RelativePath); ok {
			return false
		}
	}
	return true
}

// IgnoreDir reports whether a directory is skipped while scanning: hidden
// directories are never descended into.
func IgnoreDir(path string) bool {
	base := filepath.Base(path)
	return len(base) > 1 && strings.HasPrefix(base, ".")
}
