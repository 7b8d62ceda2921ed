package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"restreamer/internal/schedule"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variable names.
const (
	EnvServiceTimes    = "SERVICE_TIMES"
	EnvServiceBuffer   = "SERVICE_BUFFER"
	EnvTimezone        = "TIMEZONE"
	EnvPytzTimezone    = "PYTZ_TIMEZONE" // accepted for older deployments
	EnvSleepTime       = "SLEEP_TIME"
	EnvInputURL        = "INPUT_URL"
	EnvFFmpegParams    = "FFMPEG_PARAMS"
	EnvPipelineCommand = "PIPELINE_COMMAND"
	EnvShutdownGrace   = "SHUTDOWN_GRACE"
	EnvStatusAddr      = "STATUS_ADDR"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvConfigFile      = "CONFIG_FILE"
)

// Settings is the complete runtime configuration.
type Settings struct {
	ServiceTimes    string `yaml:"service_times"`
	ServiceBuffer   int    `yaml:"service_buffer"` // minutes
	Timezone        string `yaml:"timezone"`
	SleepTime       int    `yaml:"sleep_time"` // seconds between ticks
	InputURL        string `yaml:"input_url"`
	FFmpegParams    string `yaml:"ffmpeg_params"`
	PipelineCommand string `yaml:"pipeline_command"`
	ShutdownGrace   int    `yaml:"shutdown_grace"` // seconds
	StatusAddr      string `yaml:"status_addr"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

// Defaults returns the settings used when nothing else is configured.
func Defaults() Settings {
	return Settings{
		Timezone:      "UTC",
		SleepTime:     10,
		ShutdownGrace: 2,
		StatusAddr:    ":9102",
		LogLevel:      "info",
		LogFormat:     "json",
	}
}

// Load reads .env files into the process environment. If a file does not
// exist, Load returns an error but callers can ignore it and use system env
// or defaults. With no paths, ".env" is used.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Read builds Settings from defaults, then the YAML file at path (if path
// is non-empty), then environment variables. The result is not validated.
func Read(path string) (Settings, error) {
	s := Defaults()
	if path != "" {
		if err := s.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}
	if err := s.applyEnv(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Resolve is Read followed by Validate.
func Resolve(path string) (Settings, error) {
	s, err := Read(path)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, s); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return nil
}

func (s *Settings) applyEnv() error {
	s.ServiceTimes = GetEnv(EnvServiceTimes, s.ServiceTimes)
	s.Timezone = GetEnv(EnvTimezone, GetEnv(EnvPytzTimezone, s.Timezone))
	s.InputURL = GetEnv(EnvInputURL, s.InputURL)
	s.FFmpegParams = GetEnv(EnvFFmpegParams, s.FFmpegParams)
	s.PipelineCommand = GetEnv(EnvPipelineCommand, s.PipelineCommand)
	s.LogLevel = GetEnv(EnvLogLevel, s.LogLevel)
	s.LogFormat = GetEnv(EnvLogFormat, s.LogFormat)
	if v, ok := os.LookupEnv(EnvStatusAddr); ok {
		s.StatusAddr = v // empty disables the status server
	}

	for _, f := range []struct {
		key string
		dst *int
	}{
		{EnvServiceBuffer, &s.ServiceBuffer},
		{EnvSleepTime, &s.SleepTime},
		{EnvShutdownGrace, &s.ShutdownGrace},
	} {
		n, err := getEnvIntStrict(f.key, *f.dst)
		if err != nil {
			return err
		}
		*f.dst = n
	}
	return nil
}

// Validate checks every field and parses the schedule once to surface
// schedule errors before the event loop starts.
func (s Settings) Validate() error {
	var errs []error
	if strings.TrimSpace(s.ServiceTimes) == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvServiceTimes))
	}
	if s.ServiceBuffer < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", EnvServiceBuffer, s.ServiceBuffer))
	}
	if s.SleepTime <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0, got %d", EnvSleepTime, s.SleepTime))
	}
	if s.ShutdownGrace < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", EnvShutdownGrace, s.ShutdownGrace))
	}
	if strings.TrimSpace(s.InputURL) == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvInputURL))
	}
	if f := strings.ToLower(s.LogFormat); f != "json" && f != "text" {
		errs = append(errs, fmt.Errorf("%s must be json or text, got %q", EnvLogFormat, s.LogFormat))
	}
	if len(errs) == 0 {
		if _, err := s.Schedule(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Schedule parses ServiceTimes with the configured buffer and timezone.
func (s Settings) Schedule() (schedule.Schedule, error) {
	return schedule.Parse(s.ServiceTimes, s.ServiceBuffer, s.Timezone)
}

// PollInterval is the delay between event loop ticks.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.SleepTime) * time.Second
}

// ShutdownGraceDuration is the wait after terminating the pipeline.
func (s Settings) ShutdownGraceDuration() time.Duration {
	return time.Duration(s.ShutdownGrace) * time.Second
}

// GetEnv returns the value of the environment variable named by key, or fallback
// if the variable is unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// getEnvIntStrict is like GetEnv for integers, but a set value that does not
// parse is an error instead of a silent fallback.
func getEnvIntStrict(key string, fallback int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, key, s)
	}
	return n, nil
}

// Fingerprint returns the hex SHA-256 of a secret-bearing value so it can be
// logged for comparison without revealing it.
func Fingerprint(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
