package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration sourced from environment variables.
type Config struct {
	ListenAddr       string
	SampleInterval   time.Duration
	AllowedOrigins   []string
	EnablePrometheus bool
	EnablePprof      bool
	LogLevel         slog.Level
	ProcRoot         string
	EtcRoot          string
	// ClockTicks overrides USER_HZ; 0 means detect via sysconf.
	ClockTicks int64
	WS         WebsocketConfig
	Proc       ProcConfig
}

// WebsocketConfig captures tunables for WebSocket handling.
type WebsocketConfig struct {
	MaxClients   int
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

// ProcConfig contains settings for the process scanner feature.
type ProcConfig struct {
	Enable       bool
	ScanInterval time.Duration
	MaxPIDs      int
}

// Load parses configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:       ":8080",
		SampleInterval:   time.Second,
		AllowedOrigins:   []string{"*"},
		EnablePrometheus: false,
		EnablePprof:      false,
		LogLevel:         slog.LevelInfo,
		ProcRoot:         "/proc",
		EtcRoot:          "/etc",
		WS: WebsocketConfig{
			MaxClients:   1024,
			WriteTimeout: 3 * time.Second,
			ReadTimeout:  30 * time.Second,
		},
		Proc: ProcConfig{
			Enable:       true,
			ScanInterval: 2 * time.Second,
			MaxPIDs:      5000,
		},
	}

	if value := lookup("APP_LISTEN_ADDR"); value != "" {
		cfg.ListenAddr = value
	}

	if err := positiveDuration("APP_SAMPLE_INTERVAL", &cfg.SampleInterval); err != nil {
		return Config{}, err
	}

	if value := lookup("APP_ALLOWED_ORIGINS"); value != "" {
		origins := splitAndTrim(value, ",")
		if len(origins) == 0 {
			return Config{}, fmt.Errorf("APP_ALLOWED_ORIGINS must not be empty")
		}
		cfg.AllowedOrigins = origins
	}

	if err := boolean("APP_ENABLE_PROMETHEUS", &cfg.EnablePrometheus); err != nil {
		return Config{}, err
	}
	if err := boolean("APP_ENABLE_PPROF", &cfg.EnablePprof); err != nil {
		return Config{}, err
	}

	if value := lookup("APP_LOG_LEVEL"); value != "" {
		level, err := parseLogLevel(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}

	if value := lookup("APP_PROC_ROOT"); value != "" {
		cfg.ProcRoot = value
	}
	if value := lookup("APP_ETC_ROOT"); value != "" {
		cfg.EtcRoot = value
	}

	if value := lookup("APP_CLOCK_TICKS"); value != "" {
		hz, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("parse APP_CLOCK_TICKS: %w", err)
		}
		if hz < 0 {
			return Config{}, fmt.Errorf("APP_CLOCK_TICKS must be >= 0")
		}
		cfg.ClockTicks = hz
	}

	if err := positiveInt("APP_WS_MAX_CLIENTS", &cfg.WS.MaxClients); err != nil {
		return Config{}, err
	}
	if err := positiveDuration("APP_WS_WRITE_TIMEOUT", &cfg.WS.WriteTimeout); err != nil {
		return Config{}, err
	}
	if err := positiveDuration("APP_WS_READ_TIMEOUT", &cfg.WS.ReadTimeout); err != nil {
		return Config{}, err
	}

	if err := boolean("APP_PROC_ENABLE", &cfg.Proc.Enable); err != nil {
		return Config{}, err
	}
	if err := positiveDuration("APP_PROC_SCAN_INTERVAL", &cfg.Proc.ScanInterval); err != nil {
		return Config{}, err
	}
	if err := positiveInt("APP_PROC_MAX_PIDS", &cfg.Proc.MaxPIDs); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func lookup(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func positiveDuration(key string, dst *time.Duration) error {
	value := lookup(key)
	if value == "" {
		return nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if duration <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = duration
	return nil
}

func positiveInt(key string, dst *int) error {
	value := lookup(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("%s must be > 0", key)
	}
	*dst = parsed
	return nil
}

func boolean(key string, dst *bool) error {
	value := lookup(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func splitAndTrim(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseLogLevel(input string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported log level %q", input)
	}
}
