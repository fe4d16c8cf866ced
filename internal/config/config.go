// Package config resolves controller settings from SMA_* environment
// variables. main loads .env via godotenv before calling Load, so a project
// .env file and real environment variables both work.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Settings is the resolved process configuration.
type Settings struct {
	BuildAddr   string        // SMA_BUILD_ADDR   websocket address of the build
	AvatarID    string        // SMA_AVATAR_ID    avatar to create and drive
	StepTimeout time.Duration // SMA_STEP_TIMEOUT per-step round-trip deadline
	DataDir     string        // SMA_DATA_DIR     root for store, run logs and monitor output
	LogLevel    string        // SMA_LOG_LEVEL    debug/info/warn/error
	MetricsAddr string        // SMA_METRICS_ADDR listen address for /metrics; empty disables
	MaxSteps    int           // SMA_MAX_STEPS    default per-task step ceiling
	MassCutoff  float64       // SMA_MASS_CUTOFF  collision mass treated as heavy
}

// Load reads the environment and fills in defaults for anything unset.
func Load() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		BuildAddr:   getString("SMA_BUILD_ADDR", "ws://127.0.0.1:1071"),
		AvatarID:    getString("SMA_AVATAR_ID", "a"),
		StepTimeout: getDuration("SMA_STEP_TIMEOUT", 15*time.Second),
		DataDir:     getString("SMA_DATA_DIR", filepath.Join(home, ".cache", "sma")),
		LogLevel:    getString("SMA_LOG_LEVEL", "info"),
		MetricsAddr: getString("SMA_METRICS_ADDR", ""),
		MaxSteps:    getInt("SMA_MAX_STEPS", 200),
		MassCutoff:  getFloat("SMA_MASS_CUTOFF", 90),
	}
}

// StoreDir is the LevelDB directory under the data dir.
func (s Settings) StoreDir() string { return filepath.Join(s.DataDir, "store") }

// RunLogDir is the per-run JSONL directory under the data dir.
func (s Settings) RunLogDir() string { return filepath.Join(s.DataDir, "runs") }

// MonitorPath is the anomaly JSONL file under the data dir.
func (s Settings) MonitorPath() string { return filepath.Join(s.DataDir, "monitor.jsonl") }

// LogPath is the structured log file under the data dir.
func (s Settings) LogPath() string { return filepath.Join(s.DataDir, "sma.log") }

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
