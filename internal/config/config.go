package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Artifacts ArtifactsConfig `yaml:"artifacts" mapstructure:"artifacts"`
	Dataset   DatasetConfig   `yaml:"dataset" mapstructure:"dataset"`
	Model     ModelConfig     `yaml:"model" mapstructure:"model"`
	Ranking   RankingConfig   `yaml:"ranking" mapstructure:"ranking"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Startup   StartupConfig   `yaml:"startup" mapstructure:"startup"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ArtifactsConfig locates the three startup artifacts.
type ArtifactsConfig struct {
	ModelPath    string `yaml:"model_path" mapstructure:"model_path"`
	DatasetPath  string `yaml:"dataset_path" mapstructure:"dataset_path"`
	FeaturesPath string `yaml:"features_path" mapstructure:"features_path"`
}

// DatasetConfig tunes how the dataset location is read.
type DatasetConfig struct {
	Table     string `yaml:"table" mapstructure:"table"`         // SQLite / Postgres sources
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"` // delimited text sources
}

// ModelConfig configures the remote scorer. When Endpoint is empty the
// model artifact at ArtifactsConfig.ModelPath is evaluated in process.
type ModelConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// RankingConfig configures the ranking endpoint.
type RankingConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int      `yaml:"rate_burst" mapstructure:"rate_burst"`
	Metrics        bool     `yaml:"metrics" mapstructure:"metrics"`
}

// StartupConfig controls what happens when an artifact fails to load.
type StartupConfig struct {
	FailFast bool `yaml:"fail_fast" mapstructure:"fail_fast"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PREDICTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("artifacts.model_path", "random_forest_model.json")
	v.SetDefault("artifacts.dataset_path", "random_service_dataset.csv")
	v.SetDefault("artifacts.features_path", "model_features.json")
	v.SetDefault("dataset.table", "services")
	v.SetDefault("dataset.delimiter", ",")
	v.SetDefault("model.endpoint", "")
	v.SetDefault("model.timeout_secs", 10)
	v.SetDefault("model.max_attempts", 3)
	v.SetDefault("ranking.top_k", 5)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.metrics", true)
	v.SetDefault("startup.fail_fast", true)
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

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if c.Artifacts.ModelPath == "" && c.Model.Endpoint == "" {
		errs = append(errs, "artifacts.model_path is required when model.endpoint is empty")
	}
	if c.Artifacts.DatasetPath == "" {
		errs = append(errs, "artifacts.dataset_path is required")
	}
	if c.Artifacts.FeaturesPath == "" {
		errs = append(errs, "artifacts.features_path is required")
	}
	if d := c.Dataset.Delimiter; len([]rune(d)) > 1 && d != `\t` && d != "tab" {
		errs = append(errs, "dataset.delimiter must be a single character, \\t or tab")
	}
	if c.Ranking.TopK <= 0 {
		errs = append(errs, "ranking.top_k must be > 0")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server.rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		errs = append(errs, "server.rate_burst must be > 0 when rate_limit is set")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
