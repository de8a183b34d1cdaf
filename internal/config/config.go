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
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Match   MatchConfig   `yaml:"match" mapstructure:"match"`
	Author  AuthorConfig  `yaml:"author" mapstructure:"author"`
	Release ReleaseConfig `yaml:"release" mapstructure:"release"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	DLQ     DLQConfig     `yaml:"dlq" mapstructure:"dlq"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
}

// StoreConfig configures the database backend. The engine allocates ids in
// process, so a database has one writer at a time: ingest, replay,
// merge-papers, split-author, reviews resolve and dlq retry take a writer
// lock (a Postgres advisory lock, or a lock file beside the SQLite
// database) and fail when another process holds it. Readers need no lock.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MatchConfig configures paper matching.
type MatchConfig struct {
	// TitleSimilarity is the minimum levenshtein similarity of squashed
	// titles for a fuzzy paper match. 1.0 requires an exact squashed match.
	TitleSimilarity        float64 `yaml:"title_similarity" mapstructure:"title_similarity"`
	SharedNamespaceAuthors bool    `yaml:"shared_namespace_authors" mapstructure:"shared_namespace_authors"`
}

// AuthorConfig configures author reconciliation.
type AuthorConfig struct {
	NameSimilarity float64 `yaml:"name_similarity" mapstructure:"name_similarity"`
}

// ReleaseConfig configures release folding.
type ReleaseConfig struct {
	DateToleranceDays int `yaml:"date_tolerance_days" mapstructure:"date_tolerance_days"`
}

// BatchConfig configures file ingestion.
type BatchConfig struct {
	DecodeWorkers    int     `yaml:"decode_workers" mapstructure:"decode_workers"`
	MaxRecordsPerSec float64 `yaml:"max_records_per_sec" mapstructure:"max_records_per_sec"`
	HistoryDir       string  `yaml:"history_dir" mapstructure:"history_dir"`
	CommitAttempts   int     `yaml:"commit_attempts" mapstructure:"commit_attempts"`
	// BreakerThreshold consecutive storage failures pause commits for
	// BreakerCooldownSecs.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// DLQConfig configures the dead letter queue.
type DLQConfig struct {
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffSecs int `yaml:"backoff_secs" mapstructure:"backoff_secs"`
}

// ServerConfig configures the read-only query API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIBMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "bibmerge.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("match.title_similarity", 1.0)
	v.SetDefault("match.shared_namespace_authors", false)
	v.SetDefault("author.name_similarity", 1.0)
	v.SetDefault("release.date_tolerance_days", 0)
	v.SetDefault("batch.decode_workers", 4)
	v.SetDefault("batch.max_records_per_sec", 0)
	v.SetDefault("batch.history_dir", "history")
	v.SetDefault("batch.commit_attempts", 3)
	v.SetDefault("batch.breaker_threshold", 5)
	v.SetDefault("batch.breaker_cooldown_secs", 30)
	v.SetDefault("dlq.max_retries", 3)
	v.SetDefault("dlq.backoff_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})

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

// Validate checks the settings a command mode depends on. Mode is one of
// "ingest", "query" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Match.TitleSimilarity <= 0 || c.Match.TitleSimilarity > 1 {
		errs = append(errs, "match.title_similarity must be in (0, 1]")
	}
	if c.Author.NameSimilarity <= 0 || c.Author.NameSimilarity > 1 {
		errs = append(errs, "author.name_similarity must be in (0, 1]")
	}
	if c.Release.DateToleranceDays < 0 {
		errs = append(errs, "release.date_tolerance_days must be >= 0")
	}

	switch mode {
	case "query":
	case "ingest":
		if c.Batch.DecodeWorkers < 1 || c.Batch.DecodeWorkers > 64 {
			errs = append(errs, "batch.decode_workers must be between 1 and 64")
		}
		if c.Batch.MaxRecordsPerSec < 0 {
			errs = append(errs, "batch.max_records_per_sec must be >= 0")
		}
		if c.DLQ.MaxRetries < 0 {
			errs = append(errs, "dlq.max_retries must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
