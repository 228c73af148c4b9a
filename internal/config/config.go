// Package config loads the pipeline configuration: per-stream buffer sizing,
// synchronization windows, and the addresses of the ambient services. The
// calibration artifact is loaded separately by internal/calib.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment-variable overrides,
// e.g. FUSEVIZ_LISTEN_ADDR.
const EnvPrefix = "FUSEVIZ_"

// Config is the full pipeline configuration. Durations are YAML strings like
// "100ms" so the file stays human-editable.
type Config struct {
	// CalibrationPath points at the LiDAR→camera calibration YAML. Required;
	// the pipeline refuses to start without it.
	CalibrationPath string `koanf:"calibration_path"`

	// BufferCapacity is the per-stream ring size in samples.
	BufferCapacity int `koanf:"buffer_capacity"`

	// Per-stream staleness thresholds.
	PointCloudStaleness string `koanf:"pointcloud_staleness"`
	DetectionStaleness  string `koanf:"detection_staleness"`
	ImageStaleness      string `koanf:"image_staleness"`

	// MaxSkew is the maximum per-stream deviation from the trigger
	// timestamp for a synchronization attempt to succeed.
	MaxSkew string `koanf:"max_skew"`

	// FailureWarnThreshold is the consecutive-failure count that emits a
	// stale-pipeline warning.
	FailureWarnThreshold int `koanf:"failure_warn_threshold"`

	// ListenAddr serves the visualiser WebSocket and /metrics.
	ListenAddr string `koanf:"listen_addr"`

	// FrameLogPath enables the SQLite fusion log when non-empty.
	FrameLogPath string `koanf:"frame_log_path"`

	// Synthetic runs the pipeline against generated sensor streams instead
	// of live drivers.
	Synthetic bool `koanf:"synthetic"`
}

// Default returns the configuration used when no file or env overrides are
// present.
func Default() *Config {
	return &Config{
		BufferCapacity:       8,
		PointCloudStaleness:  "150ms",
		DetectionStaleness:   "100ms",
		ImageStaleness:       "80ms",
		MaxSkew:              "100ms",
		FailureWarnThreshold: 50,
		ListenAddr:           "localhost:8180",
	}
}

// Load builds a Config by layering defaults, an optional YAML file, and
// FUSEVIZ_-prefixed environment variables (low to high precedence).
func Load(path string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, err
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv loads using the file named by FUSEVIZ_CONFIG, if set.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvPrefix + "CONFIG"))
}

// Validate checks durations parse and thresholds are sane.
func (c *Config) Validate() error {
	for name, v := range map[string]string{
		"pointcloud_staleness": c.PointCloudStaleness,
		"detection_staleness":  c.DetectionStaleness,
		"image_staleness":      c.ImageStaleness,
		"max_skew":             c.MaxSkew,
	} {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.BufferCapacity < 0 {
		return fmt.Errorf("buffer_capacity must be non-negative, got %d", c.BufferCapacity)
	}
	if c.FailureWarnThreshold < 0 {
		return fmt.Errorf("failure_warn_threshold must be non-negative, got %d", c.FailureWarnThreshold)
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must not be empty")
	}
	return nil
}

// duration parses v, falling back to def on empty or invalid input. Validate
// has already rejected invalid values on the load path.
func duration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// GetPointCloudStaleness returns the parsed point-cloud staleness threshold.
func (c *Config) GetPointCloudStaleness() time.Duration {
	return duration(c.PointCloudStaleness, 150*time.Millisecond)
}

// GetDetectionStaleness returns the parsed detection staleness threshold.
func (c *Config) GetDetectionStaleness() time.Duration {
	return duration(c.DetectionStaleness, 100*time.Millisecond)
}

// GetImageStaleness returns the parsed image staleness threshold.
func (c *Config) GetImageStaleness() time.Duration {
	return duration(c.ImageStaleness, 80*time.Millisecond)
}

// GetMaxSkew returns the parsed maximum synchronization skew.
func (c *Config) GetMaxSkew() time.Duration {
	return duration(c.MaxSkew, 100*time.Millisecond)
}
