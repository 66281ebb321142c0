// Package config loads the service configuration from YAML with sane
// defaults. Secrets (provider credentials, API keys) are never read from
// the file; they come from environment variables so the file can be
// committed.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AlfonsoCifuentes/riskmap-vision/utils"
)

// Config holds the riskmap-vision service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Imagery ImageryConfig `yaml:"imagery"`
	Vision  VisionConfig  `yaml:"vision"`
	Damage  DamageConfig  `yaml:"damage"`
	Mosaic  MosaicConfig  `yaml:"mosaic"`
	Batch   BatchConfig   `yaml:"batch"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"` // socket.io listen address, e.g. ":5005"
}

type ImageryConfig struct {
	SentinelBaseURL string `yaml:"sentinel_base_url"`
	SentinelToken   string `yaml:"sentinel_token_url"`
	TileMapBaseURL  string `yaml:"tilemap_base_url"`
	CacheDir        string `yaml:"cache_dir"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	Width           int    `yaml:"width"`
	Height          int    `yaml:"height"`
}

type VisionConfig struct {
	ModelPath      string  `yaml:"model_path"`
	ClassTablePath string  `yaml:"class_table_path"`
	MinConfidence  float64 `yaml:"min_confidence"`
}

type DamageConfig struct {
	ModelDir string `yaml:"model_dir"`
}

type MosaicConfig struct {
	TileSize    int `yaml:"tile_size"`
	Concurrency int `yaml:"concurrency"`
}

type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// Secrets carries the credential material read from the environment.
type Secrets struct {
	SentinelClientID     string
	SentinelClientSecret string
	TileMapAPIKey        string
	GeminiAPIKey         string
}

// Load reads configuration from a YAML file. A missing file yields the
// default config and no error; a malformed file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadSecrets reads credentials from the environment. Empty values are
// allowed; a provider without credentials is simply marked unavailable and
// the fallback chain skips it.
func LoadSecrets() Secrets {
	return Secrets{
		SentinelClientID:     utils.GetEnv("SENTINEL_CLIENT_ID", ""),
		SentinelClientSecret: utils.GetEnv("SENTINEL_CLIENT_SECRET", ""),
		TileMapAPIKey:        utils.GetEnv("TILEMAP_API_KEY", ""),
		GeminiAPIKey:         utils.GetEnv("GEMINI_API_KEY", ""),
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5005"
	}
	if cfg.Imagery.SentinelBaseURL == "" {
		cfg.Imagery.SentinelBaseURL = "https://services.sentinel-hub.com"
	}
	if cfg.Imagery.SentinelToken == "" {
		cfg.Imagery.SentinelToken = "https://services.sentinel-hub.com/oauth/token"
	}
	if cfg.Imagery.TileMapBaseURL == "" {
		cfg.Imagery.TileMapBaseURL = "https://api.maptiler.com"
	}
	if cfg.Imagery.CacheDir == "" {
		cfg.Imagery.CacheDir = "storage/image_cache"
	}
	if cfg.Imagery.TimeoutSeconds <= 0 {
		cfg.Imagery.TimeoutSeconds = 30
	}
	if cfg.Imagery.Width <= 0 {
		cfg.Imagery.Width = 512
	}
	if cfg.Imagery.Height <= 0 {
		cfg.Imagery.Height = 512
	}
	if cfg.Vision.ClassTablePath == "" {
		cfg.Vision.ClassTablePath = "storage/classes.json"
	}
	if cfg.Vision.MinConfidence <= 0 {
		cfg.Vision.MinConfidence = 0.25
	}
	if cfg.Damage.ModelDir == "" {
		cfg.Damage.ModelDir = "storage/damage_model"
	}
	if cfg.Mosaic.TileSize <= 0 {
		cfg.Mosaic.TileSize = 512
	}
	if cfg.Mosaic.Concurrency <= 0 {
		cfg.Mosaic.Concurrency = 4
	}
	if cfg.Batch.Workers <= 0 {
		cfg.Batch.Workers = 4
	}
}
