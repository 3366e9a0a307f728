// Package times saves a file's metadata before compression rewrites
// it via a tempfile-plus-rename, and restores that metadata onto the
// replacement afterward, in the order SPEC_FULL.md §4.9 specifies:
// mode first, then owner and BSD flags, then mtime/atime last (times
// must be restored last since chmod/chown both bump a file's ctime,
// and on some filesystems touch atime).
//
// Grounded on original_source/crates/applesauce/src/times.rs, which
// uses Darwin's getattrlist/setattrlist to additionally preserve
// creation time and "added time" — attributes with no portable POSIX
// equivalent. This port keeps only the portable subset (mode, owner,
// mtime, atime, and BSD flags where supported); creation time and
// added time are not preserved. The platform-specific pieces (the
// atime stat field and BSD flag access) live in the build-tagged
// stat_*.go helpers.
package times

import (
	"errors"
	"log"
	"os"
	"sync"
	"syscall"
	"time"
)

// Saved holds the subset of a file's metadata this package knows how
// to restore.
type Saved struct {
	Mode       os.FileMode
	UID, GID   int
	Flags      uint32
	ModTime    time.Time
	AccessTime time.Time
}

// Save captures path's current metadata.
func Save(path string) (Saved, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Saved{}, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return Saved{}, errNotUnixStat(path)
	}
	flags, err := getFlags(path)
	if err != nil {
		return Saved{}, err
	}
	return Saved{
		Mode:       fi.Mode(),
		UID:        int(st.Uid),
		GID:        int(st.Gid),
		Flags:      flags,
		ModTime:    fi.ModTime(),
		AccessTime: statAccessTime(st),
	}, nil
}

// Restore applies saved metadata to path, in mode, then
// owner/flags, then mtime/atime order.
func Restore(path string, saved Saved) error {
	if err := RestoreModeOwner(path, saved); err != nil {
		return err
	}
	if err := SetFlags(path, saved.Flags); err != nil {
		return err
	}
	return RestoreTimes(path, saved)
}

// RestoreModeOwner applies just saved's mode and owner, the portable
// subset of what the original's fcopyfile(COPYFILE_SECURITY) call
// copies; BSD flags and timestamps are restored separately (SetFlags,
// RestoreTimes) so the writer stage can interleave the COMPRESSED flag
// toggle and the final atomic rename between them. Restoring the owner
// is best-effort: a permission error from chown is ignored.
func RestoreModeOwner(path string, saved Saved) error {
	if err := os.Chmod(path, saved.Mode); err != nil {
		return err
	}
	if err := os.Chown(path, saved.UID, saved.GID); err != nil && !errors.Is(err, os.ErrPermission) {
		return err
	}
	return nil
}

// SetFlags sets path's BSD file flags directly, a no-op off Darwin.
func SetFlags(path string, flags uint32) error {
	return setFlags(path, flags)
}

// RestoreTimes applies just saved's mtime/atime, the last step of
// SPEC_FULL.md §4.9's restore ordering.
func RestoreTimes(path string, saved Saved) error {
	return os.Chtimes(path, saved.AccessTime, saved.ModTime)
}

// Resetter restores a directory's mtime once every entry discovered in
// it has finished flowing through the pipeline, undoing the mtime
// bump each rename-over-original inside it otherwise causes.
//
// Grounded on times.rs's Resetter, which is Arc-shared into every
// sibling file's Context and restores the directory's times in its
// Drop impl, once the last clone goes out of scope. Go has no
// destructors or refcounted Drop, so this port makes the refcount
// explicit: the walker that discovers a directory's N entries calls
// NewResetter(dir, N), and each entry's pipeline completion (success,
// skip, or failure) calls Release exactly once; the Nth Release runs
// the restore.
type Resetter struct {
	path  string
	saved Saved

	mu      sync.Mutex
	pending int
	ran     bool
}

// NewResetter captures dirPath's current metadata for later restore,
// releasing it automatically once Release has been called pending
// times (one per entry the walker found directly inside dirPath).
func NewResetter(dirPath string, pending int) (*Resetter, error) {
	saved, err := Save(dirPath)
	if err != nil {
		return nil, err
	}
	return &Resetter{path: dirPath, saved: saved, pending: pending}, nil
}

// Release counts down one entry's completion. Once every pending
// entry has been released, the directory's saved mtime/atime is
// restored. Safe for concurrent use by multiple pipeline workers.
func (r *Resetter) Release() error {
	r.mu.Lock()
	r.pending--
	run := r.pending <= 0 && !r.ran
	if run {
		r.ran = true
	}
	r.mu.Unlock()
	if !run {
		return nil
	}
	if err := os.Chtimes(r.path, r.saved.AccessTime, r.saved.ModTime); err != nil {
		log.Printf("times: resetting %s: %v", r.path, err)
		return err
	}
	return nil
}

func errNotUnixStat(path string) error {
	return &os.PathError{Op: "stat", Path: path, Err: os.ErrInvalid}
}
