// Package config loads runtime configuration from defaults, an optional
// YAML file and KORPUS_* environment variables, in that precedence order.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration of the indexer.
type Config struct {
	Dump      DumpConfig      `mapstructure:"dump"`
	Annotator AnnotatorConfig `mapstructure:"annotator"`
	Index     IndexConfig     `mapstructure:"index"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Log       LogConfig       `mapstructure:"log"`
}

// DumpConfig locates the article dump.
type DumpConfig struct {
	Path string `mapstructure:"path"`
}

// AnnotatorConfig configures the linguistic annotation service.
type AnnotatorConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// Language is an ISO 639-1 code; it also selects the casing rule of
	// the quality filter.
	Language string `mapstructure:"language"`
	// ChunkBudget is the per-request character limit.
	ChunkBudget int `mapstructure:"chunk_budget"`
	// TimeoutSeconds bounds a single annotation call. Zero means no
	// timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// IndexConfig configures the sentence sink. DSN selects the backend:
// an http(s) URL targets a search cluster, anything else is a local
// database file path.
type IndexConfig struct {
	DSN           string `mapstructure:"dsn"`
	Name          string `mapstructure:"name"`
	ForceRecreate bool   `mapstructure:"force_recreate"`
}

// CacheConfig configures the resumable title cache.
type CacheConfig struct {
	Path  string `mapstructure:"path"`
	Clear bool   `mapstructure:"clear"`
}

// PipelineConfig tunes the run.
type PipelineConfig struct {
	Target              int     `mapstructure:"target"`
	Workers             int     `mapstructure:"workers"`
	BatchSize           int     `mapstructure:"batch_size"`
	CheckpointEvery     int     `mapstructure:"checkpoint_every"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
}

// QualityConfig points at an optional sentence-rule override file.
type QualityConfig struct {
	RulesFile string `mapstructure:"rules_file"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load builds a Config from defaults, the YAML file at path (optional,
// empty path skips it) and KORPUS_* environment variables. Callers apply
// their own overrides and then run Validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("KORPUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dump.path", "")

	v.SetDefault("annotator.base_url", "http://localhost:8070")
	v.SetDefault("annotator.language", "de")
	v.SetDefault("annotator.chunk_budget", 50000)
	v.SetDefault("annotator.timeout_seconds", 0)

	v.SetDefault("index.dsn", "http://localhost:9200")
	v.SetDefault("index.name", "wiki_sentences")
	v.SetDefault("index.force_recreate", false)

	v.SetDefault("cache.path", "korpus-cache.json")
	v.SetDefault("cache.clear", false)

	v.SetDefault("pipeline.target", 100)
	v.SetDefault("pipeline.workers", 2)
	v.SetDefault("pipeline.batch_size", 256)
	v.SetDefault("pipeline.checkpoint_every", 50)
	v.SetDefault("pipeline.similarity_threshold", 0.9)

	v.SetDefault("quality.rules_file", "")

	v.SetDefault("log.level", "info")
}

// Validate checks the configuration for values the pipeline cannot run
// with.
func (c *Config) Validate() error {
	if c.Dump.Path == "" {
		return fmt.Errorf("dump.path is required")
	}
	if c.Annotator.BaseURL == "" {
		return fmt.Errorf("annotator.base_url is required")
	}
	if c.Annotator.ChunkBudget < 1 {
		return fmt.Errorf("annotator.chunk_budget must be at least 1")
	}
	if c.Index.DSN == "" {
		return fmt.Errorf("index.dsn is required")
	}
	if c.Index.Name == "" {
		return fmt.Errorf("index.name is required")
	}
	if c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required")
	}
	if c.Pipeline.Target < 1 {
		return fmt.Errorf("pipeline.target must be at least 1")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Pipeline.BatchSize < 1 {
		return fmt.Errorf("pipeline.batch_size must be at least 1")
	}
	if c.Pipeline.SimilarityThreshold <= 0 || c.Pipeline.SimilarityThreshold > 1 {
		return fmt.Errorf("pipeline.similarity_threshold must be in (0, 1]")
	}
	return nil
}

// ElasticDSN reports whether the sink DSN targets a search cluster over
// HTTP rather than a local database file.
func (c *Config) ElasticDSN() bool {
	return strings.HasPrefix(c.Index.DSN, "http://") || strings.HasPrefix(c.Index.DSN, "https://")
}
