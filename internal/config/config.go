package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the credentials in the config file,
// so the file itself never has to contain them.
const (
	EnvUsername = "TIMEPOOL_USERNAME"
	EnvPassword = "TIMEPOOL_PASSWORD"
)

// PortalConfig describes the TimePool portal endpoints and credentials.
type PortalConfig struct {
	// BaseURL is the portal origin, e.g. "https://timepool.boras.se".
	BaseURL string `yaml:"base_url" json:"base_url"`
	// LoginPath is the form login page path.
	LoginPath string `yaml:"login_path" json:"login_path"`
	// SchedulePath is the mobile schedule page path.
	SchedulePath string `yaml:"schedule_path" json:"schedule_path"`

	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// HasCredentials reports whether both credential fields are set.
func (p PortalConfig) HasCredentials() bool {
	return p.Username != "" && p.Password != ""
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the calendar feed.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone the portal's times are interpreted in
	// (e.g. "Europe/Stockholm").
	Timezone string `yaml:"timezone" json:"timezone"`

	// ScrapeCron is a cron-style schedule string for the periodic scrape
	// (e.g. "0 6 * * *" for daily at 06:00).
	ScrapeCron string `yaml:"scrape_cron" json:"scrape_cron"`

	// RetentionDays is how long shifts that no longer appear in fresh
	// scrapes are kept in the persisted calendar.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// DataDir holds the canonical calendar document and its snapshots.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	Portal PortalConfig `yaml:"portal" json:"portal"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        "127.0.0.1:8000",
		Timezone:      "Europe/Stockholm",
		ScrapeCron:    "0 6 * * *",
		RetentionDays: 90,
		DataDir:       "./data",
		Portal: PortalConfig{
			BaseURL:      "https://timepool.boras.se",
			LoginPath:    "/TimePoolWeb/Mobile/Login.aspx",
			SchedulePath: "/TimePoolWeb/Mobile/Schedule.aspx",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.ScrapeCron == "" {
		c.ScrapeCron = d.ScrapeCron
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = d.RetentionDays
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Portal.BaseURL == "" {
		c.Portal.BaseURL = d.Portal.BaseURL
	}
	if c.Portal.LoginPath == "" {
		c.Portal.LoginPath = d.Portal.LoginPath
	}
	if c.Portal.SchedulePath == "" {
		c.Portal.SchedulePath = d.Portal.SchedulePath
	}
}

// Location resolves the configured timezone, falling back to time.Local
// when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Retention returns the retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshaled and normalized.
//   - TIMEPOOL_USERNAME / TIMEPOOL_PASSWORD override the file's
//     credentials when set.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.applyEnv()

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		c.Portal.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		c.Portal.Password = v
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file may carry
//     portal credentials.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".shiftcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
