package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Planner struct {
		OrganizationID         string  `yaml:"organization_id"`
		Timezone               string  `yaml:"timezone"`
		PixelsPerMinute        float64 `yaml:"pixels_per_minute"`
		DefaultDurationMinutes int     `yaml:"default_duration_minutes"`
	} `yaml:"planner"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	API struct {
		Enabled         bool    `yaml:"enabled"`
		Port            int     `yaml:"port"`
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
		RateLimitRPS    float64 `yaml:"rate_limit_rps"`
		RateLimitBurst  int     `yaml:"rate_limit_burst"`
	} `yaml:"api"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	ResourcesConfigPath    string `yaml:"resources_config_path"`
	ResourcesReloadSeconds int    `yaml:"resources_reload_seconds"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/planner.db"
	}
	if cfg.Planner.OrganizationID == "" {
		return nil, fmt.Errorf("planner.organization_id is required")
	}
	if _, err = cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location resolves the organization timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := c.Planner.Timezone
	if tz == "" {
		tz = "Europe/Vilnius"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("planner.timezone %q: %w", tz, err)
	}
	return loc, nil
}

func (c *Config) PixelsPerMinute() float64 {
	if c.Planner.PixelsPerMinute <= 0 {
		return 2
	}
	return c.Planner.PixelsPerMinute
}

func (c *Config) DefaultDuration() time.Duration {
	if c.Planner.DefaultDurationMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Planner.DefaultDurationMinutes) * time.Minute
}

func (c *Config) CacheTTL() time.Duration {
	if c.API.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}

func (c *Config) APIPort() int {
	if c.API.Port <= 0 {
		return 8080
	}
	return c.API.Port
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) ResourcesPath() string {
	if c.ResourcesConfigPath == "" {
		return "configs/resources.yaml"
	}
	return c.ResourcesConfigPath
}

func (c *Config) ResourcesReloadInterval() time.Duration {
	if c.ResourcesReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ResourcesReloadSeconds) * time.Second
}
