package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Port            string   `yaml:"port" toml:"port"`
	DBDriver        string   `yaml:"db_driver" toml:"db_driver"`
	DBDSN           string   `yaml:"db_dsn" toml:"db_dsn"`
	Secret          string   `yaml:"secret" toml:"secret"`
	SessionTTL      string   `yaml:"session_ttl" toml:"session_ttl"`
	UploadDir       string   `yaml:"upload_dir" toml:"upload_dir"`
	MaxUploadBytes  int64    `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	StaticDir       string   `yaml:"static_dir" toml:"static_dir"`
	SuperAdmins     []string `yaml:"super_admins" toml:"super_admins"`
	RequireInvite   *bool    `yaml:"require_invite" toml:"require_invite"`
	LogLevel        string   `yaml:"log_level" toml:"log_level"`
	JanitorInterval string   `yaml:"janitor_interval" toml:"janitor_interval"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	requireInvite := true
	return &Config{
		Port:            "8080",
		DBDriver:        "sqlite3",
		DBDSN:           "social.db",
		Secret:          "change-me-in-config",
		SessionTTL:      "168h",
		UploadDir:       "uploads/",
		MaxUploadBytes:  10 * 1024 * 1024, // 10MB
		RequireInvite:   &requireInvite,
		LogLevel:        "info",
		JanitorInterval: "10m",
	}
}

// Load reads a YAML or TOML file (chosen by extension), fills defaults for
// anything left unset and applies environment overrides.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var config Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
		}
	}

	config.fillDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// LoadOrDefault is Load, except that a missing file yields Default with the
// environment applied. fromFile reports whether filename was read. Any other
// error is returned.
func LoadOrDefault(filename string) (cfg *Config, fromFile bool, err error) {
	cfg, err = Load(filename)
	if err == nil {
		return cfg, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	cfg = Default()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, false, nil
}

func (c *Config) fillDefaults() {
	def := Default()
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.DBDriver == "" {
		c.DBDriver = def.DBDriver
	}
	if c.DBDSN == "" {
		c.DBDSN = def.DBDSN
	}
	if c.Secret == "" {
		c.Secret = def.Secret
	}
	if c.SessionTTL == "" {
		c.SessionTTL = def.SessionTTL
	}
	if c.UploadDir == "" {
		c.UploadDir = def.UploadDir
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = def.MaxUploadBytes
	}
	if c.RequireInvite == nil {
		c.RequireInvite = def.RequireInvite
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.JanitorInterval == "" {
		c.JanitorInterval = def.JanitorInterval
	}
}

// ApplyEnv overrides file values with PORT and SOCIAL_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("SOCIAL_DB_DRIVER"); v != "" {
		c.DBDriver = v
	}
	if v := os.Getenv("SOCIAL_DB_DSN"); v != "" {
		c.DBDSN = v
	}
	if v := os.Getenv("SOCIAL_SECRET"); v != "" {
		c.Secret = v
	}
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if _, err := time.ParseDuration(c.SessionTTL); err != nil {
		return fmt.Errorf("invalid session_ttl: %w", err)
	}
	if _, err := time.ParseDuration(c.JanitorInterval); err != nil {
		return fmt.Errorf("invalid janitor_interval: %w", err)
	}
	return nil
}

func (c *Config) SessionLifetime() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

func (c *Config) JanitorEvery() time.Duration {
	d, err := time.ParseDuration(c.JanitorInterval)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

func (c *Config) InviteRequired() bool {
	return c.RequireInvite == nil || *c.RequireInvite
}

// IsSuperAdmin reports whether username is listed in super_admins.
func (c *Config) IsSuperAdmin(username string) bool {
	for _, name := range c.SuperAdmins {
		if name == username {
			return true
		}
	}
	return false
}
