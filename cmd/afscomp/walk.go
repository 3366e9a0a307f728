package main

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/afscomp/afscomp/internal/times"
	"github.com/afscomp/afscomp/internal/xattr"
)

// hasXattr reports whether path has an extended attribute named name,
// the callback scan.CheckCompressible needs to probe for a
// pre-existing decmpfs/resource-fork xattr without internal/scan
// itself depending on internal/xattr's *os.File-based API.
func hasXattr(path, name string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	_, err = xattr.Get(f, name)
	if err != nil {
		if errors.Is(err, xattr.ErrNotPresent) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// resetterTracker hands out one times.Resetter per directory,
// pre-counting that directory's immediate non-directory entries so
// the Resetter's refcount is right the first time it's requested,
// regardless of which of its siblings is visited first.
//
// Grounded on times.go's Resetter doc comment: the walker that
// discovers a directory's N entries owns creating it with that count.
// scan.Walk visits files one at a time with no "directory finished"
// hook, so this tracker substitutes a one-time os.ReadDir per
// directory for the count scan.Walk itself doesn't provide.
type resetterTracker struct {
	mu        sync.Mutex
	resetters map[string]*times.Resetter
}

func newResetterTracker() *resetterTracker {
	return &resetterTracker{resetters: make(map[string]*times.Resetter)}
}

func (t *resetterTracker) forPath(path string) (*times.Resetter, error) {
	dir := filepath.Dir(path)
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.resetters[dir]; ok {
		return r, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	r, err := times.NewResetter(dir, n)
	if err != nil {
		return nil, err
	}
	t.resetters[dir] = r
	return r, nil
}
