package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/srodi/felix/internal/fex/types"
	"github.com/srodi/felix/internal/obslog"
)

// failingSink errors on every WriteFrame call and counts how many times
// it was actually invoked, so a test can assert the sink stops being
// driven after its first failure.
type failingSink struct {
	calls int
}

func (f *failingSink) WriteFrame(types.ComputedFrame) error {
	f.calls++
	return errors.New("disk full")
}

// writeFakeRegion drops a minimal, valid producer region for pid into the
// real /dev/shm, the same tmpfs the shared-memory reader opens in
// production; no path injection is needed since the target process's own
// pid drives the path.
func writeFakeRegion(t *testing.T, pid int32) {
	t.Helper()
	buf := make([]byte, types.HeaderSize)
	buf[0] = types.StatsVersion
	buf[1] = byte(types.AppTypeLinux64)
	binary.LittleEndian.PutUint16(buf[2:4], types.ThreadStatsSize)
	copy(buf[4:52], "FEX-test")
	binary.LittleEndian.PutUint32(buf[52:56], 0)
	binary.LittleEndian.PutUint32(buf[56:60], uint32(len(buf)))

	path := "/dev/shm/fex-" + strconv.FormatInt(int64(pid), 10) + "-stats"
	require.NoError(t, os.WriteFile(path, buf, 0o600))
	t.Cleanup(func() { os.Remove(path) })
}

func TestLiveSourceOpenAndFirstFrame(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()
	pid := int32(cmd.Process.Pid)

	writeFakeRegion(t, pid)

	ls, err := Open(pid, Config{SamplePeriod: 10 * time.Millisecond})
	require.NoError(t, err)
	defer ls.Close()

	require.True(t, ls.IsLive())
	require.Equal(t, pid, ls.Metadata().PID)
	require.Equal(t, "FEX-test", ls.Metadata().FEXVersion)

	frame, ok := ls.NextFrame()
	require.True(t, ok)
	require.Equal(t, 0, frame.ThreadsSampled)
	require.Equal(t, StateRunning, ls.State())
}

func TestLiveSourceNotDueReturnsFalse(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()
	pid := int32(cmd.Process.Pid)

	writeFakeRegion(t, pid)

	ls, err := Open(pid, Config{SamplePeriod: 500 * time.Millisecond})
	require.NoError(t, err)
	defer ls.Close()

	_, ok := ls.NextFrame()
	require.True(t, ok)

	_, ok = ls.NextFrame()
	require.False(t, ok)
}

func TestLiveSourceDetectsTargetExit(t *testing.T) {
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := int32(cmd.Process.Pid)

	writeFakeRegion(t, pid)

	ls, err := Open(pid, Config{SamplePeriod: 10 * time.Millisecond})
	require.NoError(t, err)
	defer ls.Close()

	require.NoError(t, cmd.Wait())

	require.Eventually(t, func() bool {
		_, ok := ls.NextFrame()
		return !ok && ls.State() == StateTargetExited
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLiveSourceDisablesSinkAfterFirstWriteError(t *testing.T) {
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()
	pid := int32(cmd.Process.Pid)

	writeFakeRegion(t, pid)

	sink := &failingSink{}
	var logs bytes.Buffer
	logger := obslog.New(&logs, obslog.WithLevel(slog.LevelInfo))

	ls, err := Open(pid, Config{SamplePeriod: 10 * time.Millisecond, Sink: sink, Logger: logger})
	require.NoError(t, err)
	defer ls.Close()

	_, ok := ls.NextFrame()
	require.True(t, ok)
	require.Equal(t, 1, sink.calls)
	require.Equal(t, 1, strings.Count(logs.String(), "recording write failed"))

	// Sampling keeps running; the disabled sink is never retried.
	time.Sleep(20 * time.Millisecond)
	_, ok = ls.NextFrame()
	require.True(t, ok)
	require.Equal(t, StateRunning, ls.State())
	require.Equal(t, 1, sink.calls)
	require.Equal(t, 1, strings.Count(logs.String(), "recording write failed"))
}
