// Package liveness implements the process liveness watcher (C3): it
// detects termination of the observed process without reaping or
// signalling it.
package liveness

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Watcher reports whether the observed process has exited. It never sends
// a signal and never reaps the process; it only observes.
type Watcher struct {
	pid       int32
	pidfd     int
	havePidfd bool
	shmPath   string
}

// New opens a pidfd for pid, the Linux mechanism that signals hang-up when
// the process exits. If pidfd_open is unavailable (older kernel, permission
// denied), the Watcher falls back to checking for the presence of the
// process's shared-memory region on every HasExited call.
func New(pid int32, shmPath string) *Watcher {
	fd, err := unix.PidfdOpen(int(pid), 0)
	if err != nil {
		return &Watcher{pid: pid, pidfd: -1, havePidfd: false, shmPath: shmPath}
	}
	return &Watcher{pid: pid, pidfd: fd, havePidfd: true, shmPath: shmPath}
}

// Close releases the pidfd, if one was opened.
func (w *Watcher) Close() error {
	if w.havePidfd && w.pidfd >= 0 {
		err := unix.Close(w.pidfd)
		w.pidfd = -1
		return err
	}
	return nil
}

// HasExited is a non-blocking poll: it returns true once the process has
// terminated. With a live pidfd this polls for POLLIN, which a pidfd
// reports on process exit. Without one, it falls back to statting the
// shared-memory region: its disappearance is the signal the producer has
// torn down.
func (w *Watcher) HasExited() bool {
	if w.havePidfd {
		fds := []unix.PollFd{{Fd: int32(w.pidfd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, 0)
		if err != nil {
			return true
		}
		if n > 0 && fds[0].Revents&unix.POLLIN != 0 {
			return true
		}
		return false
	}

	_, err := os.Stat(w.shmPath)
	return err != nil
}

// DefaultSHMPath returns the filesystem path the shared-memory reader
// would use for pid, the fallback presence check target.
func DefaultSHMPath(pid int32) string {
	return fmt.Sprintf("/dev/shm/fex-%d-stats", pid)
}
