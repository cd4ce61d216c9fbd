package liveness

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHasExitedFalseForLiveProcess(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	w := New(int32(cmd.Process.Pid), DefaultSHMPath(int32(cmd.Process.Pid)))
	defer w.Close()

	require.False(t, w.HasExited())
}

func TestHasExitedTrueAfterProcessExits(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := int32(cmd.Process.Pid)

	w := New(pid, DefaultSHMPath(pid))
	defer w.Close()

	require.NoError(t, cmd.Wait())

	require.Eventually(t, func() bool {
		return w.HasExited()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultSHMPath(t *testing.T) {
	require.Equal(t, "/dev/shm/fex-1234-stats", DefaultSHMPath(1234))
}

func TestFallbackWatcherWithoutPidfd(t *testing.T) {
	w := &Watcher{pid: 99999999, havePidfd: false, shmPath: "/nonexistent/path"}
	require.True(t, w.HasExited())
}
