package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"restreamer/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Resolve reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvServiceTimes, EnvServiceBuffer, EnvTimezone, EnvPytzTimezone, EnvSleepTime,
		EnvInputURL, EnvFFmpegParams, EnvPipelineCommand, EnvShutdownGrace,
		EnvStatusAddr, EnvLogLevel, EnvLogFormat,
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvServiceTimes, "6|18:00|88,7|09:00|88")
	t.Setenv(EnvServiceBuffer, "2")
	t.Setenv(EnvTimezone, "US/Eastern")
	t.Setenv(EnvSleepTime, "5")
	t.Setenv(EnvInputURL, "https://example.com/live")
	t.Setenv(EnvFFmpegParams, "-c copy -f flv rtmp://localhost/live")
}

func TestResolve_env(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)

	s, err := Resolve("")
	require.NoError(t, err)

	assert.Equal(t, 2, s.ServiceBuffer)
	assert.Equal(t, "US/Eastern", s.Timezone)
	assert.Equal(t, 5*time.Second, s.PollInterval())
	assert.Equal(t, 2*time.Second, s.ShutdownGraceDuration())
	assert.Equal(t, ":9102", s.StatusAddr)

	sched, err := s.Schedule()
	require.NoError(t, err)
	assert.Equal(t, 2, sched.Len())
}

func TestResolve_pytz_fallback(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)
	require.NoError(t, os.Unsetenv(EnvTimezone))
	t.Setenv(EnvPytzTimezone, "Europe/Berlin")

	s, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", s.Timezone)
}

func TestResolve_file_then_env(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "restreamer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_times: "7|10:45|60"
service_buffer: 5
timezone: UTC
sleep_time: 3
input_url: https://example.com/file
status_addr: ""
`), 0o600))
	t.Setenv(EnvSleepTime, "7")

	s, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "7|10:45|60", s.ServiceTimes)
	assert.Equal(t, 5, s.ServiceBuffer)
	assert.Equal(t, 7, s.SleepTime, "environment overrides the file")
	assert.Equal(t, "", s.StatusAddr, "file may disable the status server")
}

func TestResolve_status_addr_can_be_disabled_by_env(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)
	t.Setenv(EnvStatusAddr, "")

	s, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "", s.StatusAddr)
}

func TestResolve_errors(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-integer buffer", EnvServiceBuffer, "two"},
		{"non-integer sleep", EnvSleepTime, "5s"},
		{"zero sleep", EnvSleepTime, "0"},
		{"negative buffer", EnvServiceBuffer, "-1"},
		{"negative grace", EnvShutdownGrace, "-3"},
		{"bad log format", EnvLogFormat, "xml"},
		{"bad schedule", EnvServiceTimes, "6|18-00|88"},
		{"bad timezone", EnvTimezone, "Nowhere/Special"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			setValidEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Resolve("")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestResolve_schedule_error_is_identifiable(t *testing.T) {
	clearEnv(t)
	setValidEnv(t)
	t.Setenv(EnvServiceTimes, "6|23:30|60")

	_, err := Resolve("")
	require.Error(t, err)
	assert.ErrorIs(t, err, schedule.ErrInvalidSchedule)
}

func TestResolve_missing_required(t *testing.T) {
	clearEnv(t)

	_, err := Resolve("")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), EnvServiceTimes)
	assert.Contains(t, err.Error(), EnvInputURL)
}

func TestRead_skips_validation(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServiceTimes, "6|18:00|88")

	s, err := Read("")
	require.NoError(t, err)
	assert.Empty(t, s.InputURL)
	assert.Error(t, s.Validate())

	sched, err := s.Schedule()
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Len())
}

func TestResolve_missing_file(t *testing.T) {
	clearEnv(t)
	_, err := Resolve(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_dotenv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SERVICE_TIMES=1|08:00|30\n"), 0o600))

	require.NoError(t, Load(path))
	t.Cleanup(func() { _ = os.Unsetenv(EnvServiceTimes) })
	assert.Equal(t, "1|08:00|30", GetEnv(EnvServiceTimes, ""))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("RESTREAMER_TEST_KEY", "")
	assert.Equal(t, "fallback", GetEnv("RESTREAMER_TEST_KEY", "fallback"))
	t.Setenv("RESTREAMER_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnv("RESTREAMER_TEST_KEY", "fallback"))
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("https://example.com/live")
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint("https://example.com/live"))
	assert.NotEqual(t, fp, Fingerprint("https://example.com/other"))
}
