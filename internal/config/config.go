package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Catalog CatalogConfig `yaml:"catalog" mapstructure:"catalog"`
	NER     NERConfig     `yaml:"ner" mapstructure:"ner"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the article database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// CatalogConfig configures the municipality gazetteer.
type CatalogConfig struct {
	Version            string `yaml:"version" mapstructure:"version"`
	DataDir            string `yaml:"data_dir" mapstructure:"data_dir"`
	PrimarySource      string `yaml:"primary_source" mapstructure:"primary_source"`
	SourcesFile        string `yaml:"sources_file" mapstructure:"sources_file"`
	MinimumRecordCount int    `yaml:"minimum_record_count" mapstructure:"minimum_record_count"`
	EnsureComplete     bool   `yaml:"ensure_complete" mapstructure:"ensure_complete"`
	MemoryTTLMinutes   int    `yaml:"memory_ttl_minutes" mapstructure:"memory_ttl_minutes"`
	RequestsPerSecond  int    `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// NERConfig configures the optional named-entity recognition service.
type NERConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Key     string `yaml:"key" mapstructure:"key"`
}

// BatchConfig configures batch enrichment runs.
type BatchConfig struct {
	MaxConcurrentArticles int `yaml:"max_concurrent_articles" mapstructure:"max_concurrent_articles"`
	MaxRetries            int `yaml:"max_retries" mapstructure:"max_retries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields required by the given run mode. Modes map to
// commands: "enrich" and "batch" need a reachable store, "catalog" only
// needs gazetteer settings.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkStore := func() {
		switch c.Store.Driver {
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required")
			}
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required")
			}
		default:
			problems = append(problems, "store.driver must be sqlite or postgres")
		}
	}
	checkCatalog := func() {
		if c.Catalog.Version == "" {
			problems = append(problems, "catalog.version is required")
		}
		if c.Catalog.DataDir == "" {
			problems = append(problems, "catalog.data_dir is required")
		}
		if c.Catalog.MinimumRecordCount < 0 {
			problems = append(problems, "catalog.minimum_record_count must be >= 0")
		}
	}

	switch mode {
	case "catalog":
		checkCatalog()
	case "enrich":
		checkCatalog()
	case "batch", "report":
		checkCatalog()
		checkStore()
		if c.Batch.MaxConcurrentArticles < 1 || c.Batch.MaxConcurrentArticles > 50 {
			problems = append(problems, "batch.max_concurrent_articles must be between 1 and 50")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SENTINELA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "sentinela.db")
	v.SetDefault("catalog.version", "2024-01")
	v.SetDefault("catalog.data_dir", "data")
	v.SetDefault("catalog.primary_source", "ibge")
	v.SetDefault("catalog.minimum_record_count", 5000)
	v.SetDefault("catalog.ensure_complete", true)
	v.SetDefault("catalog.memory_ttl_minutes", 60)
	v.SetDefault("catalog.requests_per_second", 2)
	v.SetDefault("batch.max_concurrent_articles", 5)
	v.SetDefault("batch.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
