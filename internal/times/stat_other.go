//go:build !darwin

package times

import (
	"syscall"
	"time"
)

func statAccessTime(st *syscall.Stat_t) time.Time {
	return time.Unix(st.Atim.Sec, st.Atim.Nsec)
}

// getFlags/setFlags are no-ops off Darwin: BSD file flags (chflags(2))
// have no Linux equivalent.
func getFlags(path string) (uint32, error) { return 0, nil }

func setFlags(path string, flags uint32) error { return nil }

// CompressedFlag has no meaning off Darwin; kept so callers can treat
// it uniformly across platforms.
const CompressedFlag = 0
