package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AppSettings struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"log_level"`
}

type BackendSettings struct {
	URL             string `yaml:"url"`
	MediaURL        string `yaml:"media_url"`
	TimeoutSec      int    `yaml:"timeout_sec"`
	ReadyTimeoutSec int    `yaml:"ready_timeout_sec"`
}

type ResultsSettings struct {
	MinSimilarity float64 `yaml:"min_similarity"`
}

type CropperSettings struct {
	MaxDimension   int `yaml:"max_dimension"`
	DedupThreshold int `yaml:"dedup_threshold"`
}

type ReportSettings struct {
	DBPath string `yaml:"db_path"`
}

type AppConfig struct {
	App     AppSettings     `yaml:"app"`
	Backend BackendSettings `yaml:"backend"`
	Results ResultsSettings `yaml:"results"`
	Cropper CropperSettings `yaml:"cropper"`
	Report  ReportSettings  `yaml:"report"`
}

func (c *AppConfig) BackendTimeout() time.Duration {
	return time.Duration(c.Backend.TimeoutSec) * time.Second
}

func (c *AppConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.Backend.ReadyTimeoutSec) * time.Second
}

// LoadConfig reads the app and backend YAML files and merges them into a
// single AppConfig. Missing files are skipped so the service can run on
// defaults alone.
func LoadConfig(appYaml, backendYaml string) (*AppConfig, error) {
	cfg := &AppConfig{}

	for _, path := range []string{appYaml, backendYaml} {
		if path == "" {
			continue
		}
		if err := loadYAML(path, cfg); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no files are present.
func Default() *AppConfig {
	cfg := &AppConfig{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.App.Host == "" {
		cfg.App.Host = "127.0.0.1"
	}
	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:5000/api"
	}
	if cfg.Backend.MediaURL == "" {
		cfg.Backend.MediaURL = "http://localhost:5000/processed"
	}
	if cfg.Backend.TimeoutSec == 0 {
		cfg.Backend.TimeoutSec = 300
	}
	if cfg.Backend.ReadyTimeoutSec == 0 {
		cfg.Backend.ReadyTimeoutSec = 60
	}
	if cfg.Cropper.MaxDimension == 0 {
		cfg.Cropper.MaxDimension = 512
	}
	if cfg.Cropper.DedupThreshold == 0 {
		cfg.Cropper.DedupThreshold = 6
	}
	if cfg.Report.DBPath == "" {
		cfg.Report.DBPath = "data/reid-report.db"
	}
}

func (c *AppConfig) Validate() error {
	if c.Results.MinSimilarity < 0 || c.Results.MinSimilarity > 1 {
		return fmt.Errorf("results.min_similarity must be between 0 and 1, got %g", c.Results.MinSimilarity)
	}
	if c.App.Port < 1 || c.App.Port > 65535 {
		return fmt.Errorf("app.port out of range: %d", c.App.Port)
	}
	if c.Cropper.DedupThreshold < 0 || c.Cropper.DedupThreshold > 64 {
		return fmt.Errorf("cropper.dedup_threshold must be between 0 and 64, got %d", c.Cropper.DedupThreshold)
	}
	return nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
