// Package config loads the recallme configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/andresmejia3/recallme/internal/detector"
	"github.com/andresmejia3/recallme/internal/speech"
)

const (
	// DefaultBaseDir is the configuration directory under the user's home
	DefaultBaseDir = ".recallme"
	// DefaultConfigFile is the default configuration filename
	DefaultConfigFile = "config.yaml"

	DefaultListen = "127.0.0.1:8765"
	DefaultDBURL  = "postgres://localhost:5432/recallme"
)

// Config is the full configuration. Every field has a default.
type Config struct {
	// Listen is the bridge WebSocket address
	Listen string `yaml:"listen,omitempty"`

	// DB is the PostgreSQL connection string for the gallery
	DB string `yaml:"db,omitempty"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level,omitempty"`

	Face Face `yaml:"face,omitempty"`
	TTS  TTS  `yaml:"tts,omitempty"`
}

// Face configures the face localizer.
type Face struct {
	// CascadePath is a pigo cascade file. Empty disables detection.
	CascadePath      string  `yaml:"cascade_path,omitempty"`
	MinFaceRatio     float64 `yaml:"min_face_ratio,omitempty"`
	ShiftFactor      float64 `yaml:"shift_factor,omitempty"`
	ScaleFactor      float64 `yaml:"scale_factor,omitempty"`
	IoUThreshold     float64 `yaml:"iou_threshold,omitempty"`
	QualityThreshold float32 `yaml:"quality_threshold,omitempty"`
}

// TTS configures the speech synthesizer.
type TTS struct {
	Command  string  `yaml:"command,omitempty"`
	Language string  `yaml:"language,omitempty"`
	Rate     float64 `yaml:"rate,omitempty"`
	Pitch    float64 `yaml:"pitch,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	d := detector.DefaultOptions()
	return &Config{
		Listen:   DefaultListen,
		LogLevel: "info",
		Face: Face{
			MinFaceRatio:     d.MinFaceRatio,
			ShiftFactor:      d.ShiftFactor,
			ScaleFactor:      d.ScaleFactor,
			IoUThreshold:     d.IoUThreshold,
			QualityThreshold: d.QualityThreshold,
		},
		TTS: TTS{
			Command:  speech.DefaultCommand,
			Language: speech.DefaultLanguage,
			Rate:     speech.DefaultSpeechRate,
			Pitch:    speech.DefaultPitch,
		},
	}
}

// DefaultPath returns ~/.recallme/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultBaseDir, DefaultConfigFile), nil
}

// Load reads the file at path over the defaults. An empty path means
// DefaultPath, which may be missing; an explicit path must exist. The
// environment is applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.merge(&file)
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// merge copies the keys set in f over c.
func (c *Config) merge(f *Config) {
	set(&c.Listen, f.Listen)
	set(&c.DB, f.DB)
	set(&c.LogLevel, f.LogLevel)

	set(&c.Face.CascadePath, f.Face.CascadePath)
	set(&c.Face.MinFaceRatio, f.Face.MinFaceRatio)
	set(&c.Face.ShiftFactor, f.Face.ShiftFactor)
	set(&c.Face.ScaleFactor, f.Face.ScaleFactor)
	set(&c.Face.IoUThreshold, f.Face.IoUThreshold)
	set(&c.Face.QualityThreshold, f.Face.QualityThreshold)

	set(&c.TTS.Command, f.TTS.Command)
	set(&c.TTS.Language, f.TTS.Language)
	set(&c.TTS.Rate, f.TTS.Rate)
	set(&c.TTS.Pitch, f.TTS.Pitch)
}

func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

// applyEnv builds the database URL from POSTGRES_* variables when the file
// did not set one.
func (c *Config) applyEnv(getenv func(string) string) {
	if c.DB != "" {
		return
	}
	if host := getenv("POSTGRES_HOST"); host != "" {
		user := getenv("POSTGRES_USER")
		pass := getenv("POSTGRES_PASSWORD")
		name := getenv("POSTGRES_DB")
		port := getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		c.DB = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
		return
	}
	// Fallback to local default if no env vars are present
	c.DB = DefaultDBURL
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Face.MinFaceRatio <= 0 || c.Face.MinFaceRatio > 1 {
		return fmt.Errorf("face.min_face_ratio must be in (0, 1], got %g", c.Face.MinFaceRatio)
	}
	if c.Face.ScaleFactor <= 1 {
		return fmt.Errorf("face.scale_factor must be > 1, got %g", c.Face.ScaleFactor)
	}
	if c.TTS.Rate <= 0 || c.TTS.Pitch <= 0 {
		return fmt.Errorf("tts.rate and tts.pitch must be positive")
	}
	return nil
}

// DetectorOptions converts the face section for the localizer.
func (c *Config) DetectorOptions() detector.Options {
	return detector.Options{
		MinFaceRatio:     c.Face.MinFaceRatio,
		ShiftFactor:      c.Face.ShiftFactor,
		ScaleFactor:      c.Face.ScaleFactor,
		IoUThreshold:     c.Face.IoUThreshold,
		QualityThreshold: c.Face.QualityThreshold,
	}
}

// TTSConfig converts the tts section for the speech service.
func (c *Config) TTSConfig() speech.TTSConfig {
	return speech.TTSConfig{
		Language: c.TTS.Language,
		Rate:     c.TTS.Rate,
		Pitch:    c.TTS.Pitch,
	}
}

// ParseLevel maps a log_level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}
