//go:build unix

package app

import (
	"golang.org/x/sys/unix"

	"servlite/pkg/logger"
)

// raiseFileLimit lifts the soft RLIMIT_NOFILE to the hard cap so the
// accept loops are not starved of descriptors under load.
func raiseFileLimit() {
	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		logger.Warn("rlimit_read_failed", "error", err)
		return
	}
	if lim.Cur >= lim.Max {
		return
	}
	lim.Cur = lim.Max
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		logger.Warn("rlimit_raise_failed", "error", err)
		return
	}
	logger.Debug("rlimit_raised", "nofile", lim.Cur)
}
