package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/automigrate/pkg/similarity"
)

// Config is the automigrate.yaml project configuration. Every field has a
// working default so a config file is optional.
type Config struct {
	Database struct {
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`

	// MigrationsDir is the plan file root, one subdirectory per app.
	MigrationsDir string `yaml:"migrations_dir"`
	// ModelsFile is the declared-models snapshot to diff against.
	ModelsFile string `yaml:"models"`

	Similarity struct {
		RenameThreshold float64 `yaml:"rename_threshold"`
		TypeDampening   float64 `yaml:"type_dampening"`
	} `yaml:"similarity"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Backend = "postgres"
	cfg.MigrationsDir = "migrations"
	cfg.ModelsFile = "models.yaml"
	cfg.Similarity.RenameThreshold = similarity.DefaultRenameThreshold
	cfg.Similarity.TypeDampening = similarity.DefaultTypeDampening
	return cfg
}

// LoadConfig reads the config file at path, falling back to defaults when the
// file does not exist. Omitted fields keep their defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Similarity.RenameThreshold <= 0 {
		cfg.Similarity.RenameThreshold = similarity.DefaultRenameThreshold
	}
	if cfg.Similarity.TypeDampening <= 0 {
		cfg.Similarity.TypeDampening = similarity.DefaultTypeDampening
	}
	return cfg, nil
}

// SimilarityConfig converts the config's similarity section.
func (c *Config) SimilarityConfig() similarity.Config {
	return similarity.Config{
		RenameThreshold: c.Similarity.RenameThreshold,
		TypeDampening:   c.Similarity.TypeDampening,
	}
}
