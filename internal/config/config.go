package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/theviolentghost/StudySync-sub000/internal/constants"
	"github.com/theviolentghost/StudySync-sub000/internal/structures"
)

// Load loads the configuration from a TOML file.
func Load(path string) (*structures.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a TOML file.
func Save(cfg *structures.Config, path string) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the default configuration.
func Default() *structures.Config {
	return &structures.Config{
		MaxConcurrentDownloads: constants.DefaultDownloadConcurrency,
		MaxCacheSize:           1024, // 1GB
		ResolverBaseURL:        "http://localhost:4000",
		DefaultVolume:          0.7,
		SeekSeconds:            constants.DefaultSeekSeconds,
	}
}
