// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"avobot-go/internal/apperr"
	"avobot-go/internal/recipe"
)

const (
	defaultSnapshotsDir     = "snapshots"
	defaultReconnectDelayMs = 3000
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Session holds the credentials and identity used against the exchange.
type Session struct {
	APIKey       string `yaml:"api_key"`
	Team         string `yaml:"team"`
	Host         string `yaml:"host"`
	Species      string `yaml:"species"`
	SnapshotsDir string `yaml:"snapshots_dir"`
}

// Catalog points at the local recipe catalog and its alias table.
type Catalog struct {
	Path    string         `yaml:"path"`
	Aliases []recipe.Alias `yaml:"aliases"`
}

// Auto optionally starts auto-production as soon as the session is up.
type Auto struct {
	Product      string `yaml:"product"`
	Premium      bool   `yaml:"premium"`
	IntervalSecs int    `yaml:"interval_secs"`
}

// Reconnect tunes the single retry performed after a dropped connection.
type Reconnect struct {
	DelayMs int `yaml:"delay_ms"`
}

// Journal configures where fills are appended.
type Journal struct {
	FillsPath string `yaml:"fills_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App       `yaml:"app"`
	Session   Session   `yaml:"session"`
	Catalog   Catalog   `yaml:"catalog"`
	Auto      Auto      `yaml:"auto"`
	Reconnect Reconnect `yaml:"reconnect"`
	Journal   Journal   `yaml:"journal"`
}

// Load reads a YAML file from disk, applies .env/environment overrides and defaults, and validates the session.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperr.Configuration("open config: %v", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, apperr.Configuration("decode yaml: %v", err)
	}

	_ = godotenv.Load() // best-effort
	config.applyEnv()
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the fields a session cannot start without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Session.APIKey) == "" {
		return apperr.Configuration("api key cannot be blank")
	}
	if strings.TrimSpace(c.Session.Team) == "" {
		return apperr.Configuration("team cannot be blank")
	}
	if strings.TrimSpace(c.Session.Host) == "" {
		return apperr.Configuration("host cannot be blank")
	}
	if c.Auto.Product != "" && c.Auto.IntervalSecs <= 0 {
		return apperr.Configuration("auto.interval_secs must be positive when auto.product is set")
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BOT_API_KEY"); v != "" {
		c.Session.APIKey = v
	}
	if v := os.Getenv("BOT_HOST"); v != "" {
		c.Session.Host = v
	}
	if v := os.Getenv("BOT_TEAM"); v != "" {
		c.Session.Team = v
	}
}

func (c *Config) applyDefaults() {
	c.Session.Species = strings.TrimSpace(c.Session.Species)
	if strings.TrimSpace(c.Session.SnapshotsDir) == "" {
		c.Session.SnapshotsDir = defaultSnapshotsDir
	}
	if c.Reconnect.DelayMs <= 0 {
		c.Reconnect.DelayMs = defaultReconnectDelayMs
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
}
