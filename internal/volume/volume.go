// Package volume caches, per filesystem device, whether that volume
// supports decmpfs compression and where a scratch tempdir on that
// same device lives (cross-device renames aren't atomic, so a
// tempfile used to stage a compressed replacement must share the
// target's device).
//
// Grounded on original_source/crates/applesauce/src/volumes.rs
// (the DashMap<device, VolumeInfo> cache with its double-checked
// get-or-insert) and tmpdir_paths.rs (the per-device TempDir map).
// Ported to a plain map guarded by a single mutex, held across the
// whole get-or-insert, as the Go stand-in for the Rust crate's
// entry-or-insert.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

const tempPrefix = "afscomp_tmp"

type volumeInfo struct {
	supportsCompression bool
	isZFS               bool
	tempDir             string // "" if supportsCompression is false
}

// Cache tracks per-device compression support and scratch directories.
// A Cache is safe for concurrent use by multiple pipeline workers.
type Cache struct {
	mu    sync.Mutex
	infos map[uint64]*volumeInfo

	// detect reports whether the volume containing path supports
	// decmpfs compression. Overridable so tests can run without a
	// real compression-capable filesystem (SPEC_FULL.md §10.4).
	detect func(path string) (bool, error)
	// detectZFS reports whether the volume containing path is backed
	// by ZFS. Overridable for the same reason as detect.
	detectZFS func(path string) (bool, error)
}

// New constructs a Cache using the platform's real compression-support
// detector.
func New() *Cache {
	return &Cache{infos: make(map[uint64]*volumeInfo), detect: supportsCompression, detectZFS: IsZFS}
}

// NewWithDetector constructs a Cache using a caller-supplied detector,
// for tests that want to force compression support on or off
// regardless of the filesystem actually backing the test tempdir.
func NewWithDetector(detect func(path string) (bool, error)) *Cache {
	return &Cache{infos: make(map[uint64]*volumeInfo), detect: detect, detectZFS: IsZFS}
}

// SupportsCompression reports whether the volume containing path
// (whose device is dev) supports decmpfs compression, creating and
// caching a scratch tempdir on that volume the first time it's seen.
func (c *Cache) SupportsCompression(path string, dev uint64) (bool, error) {
	info, err := c.getOrInsert(path, dev)
	if err != nil {
		return false, err
	}
	return info.supportsCompression, nil
}

// IsZFS reports whether the volume containing path (whose device is
// dev) is backed by ZFS. Checked ahead of SupportsCompression: ZFS may
// report decmpfs-compatible volume capabilities but silently
// decompresses before committing data, so it's rejected on its own
// terms rather than folded into the generic FsNotSupported case.
func (c *Cache) IsZFS(path string, dev uint64) (bool, error) {
	info, err := c.getOrInsert(path, dev)
	if err != nil {
		return false, err
	}
	return info.isZFS, nil
}

// TempFile returns a new, empty file on the same volume as path,
// suitable for staging a compressed replacement before an atomic
// rename over the original.
func (c *Cache) TempFile(path string, dev uint64) (*os.File, error) {
	info, err := c.getOrInsert(path, dev)
	if err != nil {
		return nil, err
	}
	if !info.supportsCompression {
		return nil, fmt.Errorf("volume: %s: volume does not support compression", path)
	}
	pattern := tempPrefix + "_" + filepath.Base(path) + "_*"
	return os.CreateTemp(info.tempDir, pattern)
}

// TempDir returns the scratch directory this cache created on path's
// volume, for callers (internal/pipeline's writer stage) that stage a
// replacement file via github.com/google/renameio.TempFile themselves
// rather than through this cache's own TempFile helper.
func (c *Cache) TempDir(path string, dev uint64) (string, error) {
	info, err := c.getOrInsert(path, dev)
	if err != nil {
		return "", err
	}
	if !info.supportsCompression {
		return "", fmt.Errorf("volume: %s: volume does not support compression", path)
	}
	return info.tempDir, nil
}

// Close removes every scratch tempdir this cache created. Registered
// with afscomp.RegisterAtExit so a run that submits no files for a
// given volume (or exits early via an interrupt) doesn't leave an
// empty afscomp_tmp* directory behind.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var firstErr error
	for dev, info := range c.infos {
		if info.tempDir == "" {
			continue
		}
		if err := os.RemoveAll(info.tempDir); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.infos, dev)
	}
	return firstErr
}

// IsTempDir reports whether path is one of this cache's own scratch
// directories, so a directory walk doesn't recurse into its own
// staging area.
func (c *Cache) IsTempDir(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, info := range c.infos {
		if info.tempDir == path {
			return true
		}
	}
	return false
}

// DeviceOf extracts the device number CheckCompressible/SupportsCompression
// key their cache by, from a stat result obtained via os.Lstat or
// os.FileInfo passed through a directory walk.
func DeviceOf(fi os.FileInfo) (uint64, error) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, fmt.Errorf("volume: %s: not a unix stat result", fi.Name())
	}
	return uint64(st.Dev), nil
}

func (c *Cache) getOrInsert(path string, dev uint64) (*volumeInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if info, ok := c.infos[dev]; ok {
		return info, nil
	}

	dir := path
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		dir = filepath.Dir(path)
	}

	supports, err := c.detect(dir)
	if err != nil {
		return nil, err
	}
	isZFS, err := c.detectZFS(dir)
	if err != nil {
		return nil, err
	}

	info := &volumeInfo{supportsCompression: supports, isZFS: isZFS}
	if supports {
		tempDir, err := os.MkdirTemp(dir, tempPrefix)
		if err != nil {
			return nil, err
		}
		info.tempDir = tempDir
	}
	c.infos[dev] = info
	return info, nil
}
