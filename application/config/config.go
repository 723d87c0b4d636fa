// Package config loads the host configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/reglet-dev/exthost/domain/entities"
	"gopkg.in/yaml.v3"
)

// validate is a package-level singleton for better performance.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the contents of exthost.yaml. Zero values are filled from
// Default before validation.
type Config struct {
	// WorkDir is the parent of every extension's private work directory.
	WorkDir string `yaml:"work_dir" json:"work_dir" validate:"required"`

	// GrantsFile holds the granted capability set.
	GrantsFile string `yaml:"grants_file" json:"grants_file" validate:"required"`

	// CacheCapacity is the compilation cache weight budget in bytes.
	CacheCapacity int64 `yaml:"cache_capacity" json:"cache_capacity" validate:"gt=0"`

	EpochInterval      time.Duration `yaml:"epoch_interval" json:"epoch_interval" validate:"gte=1ms"`
	EpochDeadlineTicks uint64        `yaml:"epoch_deadline_ticks" json:"epoch_deadline_ticks" validate:"gt=0"`

	SupportedVersions entities.VersionRange `yaml:"supported_versions" json:"supported_versions"`

	// MetricsAddr enables the Prometheus endpoint when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty" validate:"omitempty,hostname_port"`

	// WatchGrants reloads granted capabilities when the grants file changes.
	WatchGrants bool `yaml:"watch_grants" json:"watch_grants"`

	// Settings are served to extensions through get_settings, keyed by
	// category and then by key.
	Settings map[string]map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`

	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" json:"log_format" validate:"oneof=text json"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	base := defaultBaseDir()
	return Config{
		WorkDir:            filepath.Join(base, "work"),
		GrantsFile:         filepath.Join(base, "grants.yaml"),
		CacheCapacity:      32 << 20,
		EpochInterval:      100 * time.Millisecond,
		EpochDeadlineTicks: 100,
		SupportedVersions: entities.VersionRange{
			Min: entities.NewSemanticVersion(0, 1, 0),
			Max: entities.NewSemanticVersion(1, 0, 0),
		},
		WatchGrants: true,
		LogLevel:    "info",
		LogFormat:   "text",
	}
}

// DefaultPath is where Load looks when no config path is given.
func DefaultPath() string {
	return filepath.Join(defaultBaseDir(), "exthost.yaml")
}

func defaultBaseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "exthost")
	}
	return filepath.Join(dir, "exthost")
}

// Load reads path over the defaults. A missing file yields Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data, cfg, filepath.Dir(path))
}

// Parse decodes data over base. Relative paths resolve against dir.
func Parse(data []byte, base Config, dir string) (Config, error) {
	cfg := base
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.WorkDir = resolve(dir, expandHome(cfg.WorkDir))
	cfg.GrantsFile = resolve(dir, expandHome(cfg.GrantsFile))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and that the supported range is ordered.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.SupportedVersions.Max.Less(c.SupportedVersions.Min) {
		return fmt.Errorf("config validation failed: supported_versions max %s is below min %s",
			c.SupportedVersions.Max, c.SupportedVersions.Min)
	}
	return nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) || dir == "" {
		return p
	}
	return filepath.Join(dir, p)
}
