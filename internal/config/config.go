// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	// StorageDir is the repository-local directory name reserved for
	// persisted state. Excluded from every scan.
	StorageDir string `json:"storage_dir"`

	LogLevel string `json:"log_level"` // debug, info, warn, error

	Cache struct {
		Size int `json:"size"`
	} `json:"cache"`

	Compression struct {
		MinSize int `json:"min_size"`
		Level   int `json:"level"` // 1=fastest, 3=best
	} `json:"compression"`
}

func Default() *Config {
	cfg := &Config{
		StorageDir: ".arca",
		LogLevel:   "info",
	}
	cfg.Cache.Size = 1000
	cfg.Compression.MinSize = 1024
	cfg.Compression.Level = 2
	return cfg
}

// Path returns the config file location, or "" when only defaults apply.
func Path() string {
	return os.Getenv("ARCA_CONFIG")
}

// Load reads a JSON config file and fills unset fields with defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.StorageDir == "" {
		cfg.StorageDir = def.StorageDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = def.Cache.Size
	}
	if cfg.Compression.MinSize == 0 {
		cfg.Compression.MinSize = def.Compression.MinSize
	}
	if cfg.Compression.Level == 0 {
		cfg.Compression.Level = def.Compression.Level
	}
}
