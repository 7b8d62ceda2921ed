package sdnotify

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"restreamer/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func receive(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNotifier_without_systemd_is_noop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	n := New(logger.Discard())

	assert.Zero(t, n.WatchdogInterval())
	n.Ready()
	n.Heartbeat()
	n.Stopping()
}

func TestNotifier_ready_and_stopping(t *testing.T) {
	conn := listen(t)
	n := New(logger.Discard())

	n.Ready()
	assert.Equal(t, "READY=1", receive(t, conn))
	n.Stopping()
	assert.Equal(t, "STOPPING=1", receive(t, conn))
}

func TestNotifier_heartbeat_with_watchdog(t *testing.T) {
	conn := listen(t)
	t.Setenv("WATCHDOG_USEC", "30000000")
	t.Setenv("WATCHDOG_PID", strconv.Itoa(os.Getpid()))

	n := New(logger.Discard())
	require.Equal(t, 30*time.Second, n.WatchdogInterval())

	n.Heartbeat()
	assert.Equal(t, "WATCHDOG=1", receive(t, conn))
}
