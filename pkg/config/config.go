package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level configuration struct for the application.
// It holds settings for logging, the API, the model store, and the
// analysis components. Tags are used by Viper to map YAML keys to
// struct fields.
type Config struct {
	LogLevel string         `mapstructure:"log_level"`
	APIPort  string         `mapstructure:"api_port"`
	ModelDir string         `mapstructure:"model_dir"`
	FeedDir  string         `mapstructure:"feed_dir"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

// AnalysisConfig holds the tunables for the analysis components.
type AnalysisConfig struct {
	// Density clustering.
	Eps        float64 `mapstructure:"eps"`
	MinSamples int     `mapstructure:"min_samples"`

	// Anomaly detection.
	Contamination float64 `mapstructure:"contamination"`
	Trees         int     `mapstructure:"trees"`
	SampleSize    int     `mapstructure:"sample_size"`

	// Target prediction.
	PredictionTrees int `mapstructure:"prediction_trees"`

	// Campaign correlation.
	CampaignTimespanDays int `mapstructure:"campaign_timespan_days"`
	CampaignMinAttacks   int `mapstructure:"campaign_min_attacks"`

	// Seed for every stochastic fit; fixed so repeated runs on identical
	// input reproduce identical results.
	Seed int64 `mapstructure:"seed"`

	// Interval between periodic re-analysis runs (Go duration string).
	RunInterval string `mapstructure:"run_interval"`
}

// LoadConfig reads the configuration from a YAML file (e.g., config.yaml) and
// environment variables. It uses Viper for robust configuration management,
// allowing for defaults and environment variable overrides.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/threatlens/")

	// Set default values
	v.SetDefault("log_level", "info")
	v.SetDefault("api_port", "8080")
	v.SetDefault("model_dir", "models")
	v.SetDefault("feed_dir", "feeds")
	v.SetDefault("analysis.eps", 0.5)
	v.SetDefault("analysis.min_samples", 5)
	v.SetDefault("analysis.contamination", 0.05)
	v.SetDefault("analysis.trees", 100)
	v.SetDefault("analysis.sample_size", 256)
	v.SetDefault("analysis.prediction_trees", 100)
	v.SetDefault("analysis.campaign_timespan_days", 30)
	v.SetDefault("analysis.campaign_min_attacks", 5)
	v.SetDefault("analysis.seed", 42)
	v.SetDefault("analysis.run_interval", "1h")

	// Read environment variables with the THREATLENS_ prefix
	v.SetEnvPrefix("THREATLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read configuration file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: defaults and environment variables apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
