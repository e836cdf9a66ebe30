// Package config loads server configuration from a .env file, an optional
// YAML file and AUTOANALYSIS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/autolog/autoanalysis/internal/apperr"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = fmt.Errorf("%w: invalid server port", apperr.ErrValidation)
	ErrInvalidBatchSize   = fmt.Errorf("%w: batch size must be positive", apperr.ErrValidation)
	ErrInvalidWorkers     = fmt.Errorf("%w: job workers must be positive", apperr.ErrValidation)
	ErrInvalidWireFormat  = fmt.Errorf("%w: analyzer wire format must be json or cbor", apperr.ErrValidation)
	ErrInvalidDriver      = fmt.Errorf("%w: database driver must be postgres or memory", apperr.ErrValidation)
	ErrInvalidCallTimeout = fmt.Errorf("%w: analyzer call timeout must be positive", apperr.ErrValidation)
)

const (
	defaultPort      = 8080
	maxPort          = 65535
	defaultBatchSize = 100
	defaultWorkers   = 4
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Analyzer AnalyzerConfig `mapstructure:"analyzer"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	Pattern  PatternConfig  `mapstructure:"pattern"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

type ServerConfig struct {
	Port      int    `mapstructure:"port"`
	GinMode   string `mapstructure:"gin_mode"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

type AnalyzerConfig struct {
	CallTimeout          time.Duration `mapstructure:"call_timeout"`
	WireFormat           string        `mapstructure:"wire_format"`
	CompressionThreshold int           `mapstructure:"compression_threshold"`
	DescriptorTTL        time.Duration `mapstructure:"descriptor_ttl"`
	SweepInterval        time.Duration `mapstructure:"sweep_interval"`
	PreferHigherPriority bool          `mapstructure:"prefer_higher_priority"`
}

type IndexingConfig struct {
	BatchSize      int           `mapstructure:"batch_size"`
	StatusTTL      time.Duration `mapstructure:"status_ttl"`
	StatusCapacity int           `mapstructure:"status_capacity"`
}

type PatternConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type JobsConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// Load reads configuration. A missing .env or config file is not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("autoanalysis")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("AUTOANALYSIS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.jwt_secret", "")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=reportportal port=5432 sslmode=disable")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.file", "")

	v.SetDefault("analyzer.call_timeout", "2m")
	v.SetDefault("analyzer.wire_format", "json")
	v.SetDefault("analyzer.compression_threshold", 64*1024)
	v.SetDefault("analyzer.descriptor_ttl", "2m")
	v.SetDefault("analyzer.sweep_interval", "30s")
	v.SetDefault("analyzer.prefer_higher_priority", false)

	v.SetDefault("indexing.batch_size", defaultBatchSize)
	v.SetDefault("indexing.status_ttl", "30m")
	v.SetDefault("indexing.status_capacity", 500)

	v.SetDefault("pattern.batch_size", defaultBatchSize)

	v.SetDefault("jobs.workers", defaultWorkers)
	v.SetDefault("jobs.queue_size", 100)
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Server.Port)
	}
	if cfg.Indexing.BatchSize <= 0 {
		return fmt.Errorf("%w: indexing %d", ErrInvalidBatchSize, cfg.Indexing.BatchSize)
	}
	if cfg.Pattern.BatchSize <= 0 {
		return fmt.Errorf("%w: pattern %d", ErrInvalidBatchSize, cfg.Pattern.BatchSize)
	}
	if cfg.Jobs.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, cfg.Jobs.Workers)
	}
	if cfg.Analyzer.CallTimeout <= 0 {
		return ErrInvalidCallTimeout
	}
	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, cfg.Database.Driver)
	}
	switch cfg.Analyzer.WireFormat {
	case "json", "cbor":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidWireFormat, cfg.Analyzer.WireFormat)
	}
	return nil
}
