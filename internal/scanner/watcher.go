package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"daelsp/internal/resolver"

	"github.com/fsnotify/fsnotify"
	protocol "github.com/tliron/glsp/protocol_3_16"
)

// Watch reports changes to matching files under the roots of r until ctx is
// done. New directories are watched as they appear.
func Watch(ctx context.Context, r *resolver.Resolver, onChange func(protocol.FileEvent)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	addTree := func(root string) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if path != root && resolver.IgnoreDir(path) {
				return fs.SkipDir
			}
			if err := w.Add(path); err != nil {
				log.Warningf("watch %s: %s", path, err.Error())
			}
			return nil
		})
	}
	for _, root := range r.Roots() {
		addTree(root)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warningf("watcher: %s", err.Error())
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Create) {
					if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
						if !resolver.IgnoreDir(ev.Name) {
							addTree(ev.Name)
						}
						continue
					}
				}
				f, err := r.Resolve(ev.Name)
				if err != nil || !r.Match(f) {
					continue
				}
				var typ protocol.UInteger
				switch {
				case ev.Has(fsnotify.Create):
					typ = protocol.FileChangeTypeCreated
				case ev.Has(fsnotify.Write):
					typ = protocol.FileChangeTypeChanged
				case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
					typ = protocol.FileChangeTypeDeleted
				default:
					continue
				}
				onChange(protocol.FileEvent{URI: f.URI, Type: typ})
			}
		}
	}()
	return nil
}
