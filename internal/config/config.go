package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Funnel     FunnelConfig     `mapstructure:"funnel"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		EngagementEvents string `mapstructure:"engagement_events"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// FunnelConfig holds the tunables of the recommendation funnel and the
// user-similarity engine.
type FunnelConfig struct {
	Teams []string `mapstructure:"teams"`

	// Similarity engine.
	TopContent        int `mapstructure:"top_content"`
	SimilarUsers      int `mapstructure:"similar_users"`
	MaxEngagementRows int `mapstructure:"max_engagement_rows"`

	// Candidate generation.
	CandidateLimit             int     `mapstructure:"candidate_limit"`
	RecommendationLength       int     `mapstructure:"recommendation_length"`
	MaxCollaborativeCandidates int     `mapstructure:"max_collaborative_candidates"`
	ANNSimilarityThreshold     float64 `mapstructure:"ann_similarity_threshold"`

	// Filtering.
	RandomFilterKeep float64 `mapstructure:"random_filter_keep"`
	LinearThreshold  float64 `mapstructure:"linear_threshold"`

	// Seeds arriving as fractions in [0, 1] are rescaled by this factor,
	// exactly once, at the controller boundary.
	SeedScale float64 `mapstructure:"seed_scale"`

	ResultsTTL time.Duration `mapstructure:"results_ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        string `mapstructure:"port"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.max_connections", 25)
	viper.SetDefault("database.max_idle_time", "15m")
	viper.SetDefault("database.max_lifetime", "1h")
	viper.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topics.engagement_events", "engagement-events")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Funnel defaults
	viper.SetDefault("funnel.teams", []string{"static", "alpha", "charlie"})
	viper.SetDefault("funnel.top_content", 251)
	viper.SetDefault("funnel.similar_users", 20)
	viper.SetDefault("funnel.max_engagement_rows", 100000)
	viper.SetDefault("funnel.candidate_limit", 500)
	viper.SetDefault("funnel.recommendation_length", 1000)
	viper.SetDefault("funnel.max_collaborative_candidates", 725)
	viper.SetDefault("funnel.ann_similarity_threshold", 0.9)
	viper.SetDefault("funnel.random_filter_keep", 0.1)
	viper.SetDefault("funnel.linear_threshold", 0.5)
	viper.SetDefault("funnel.seed_scale", 1000000)
	viper.SetDefault("funnel.results_ttl", "15m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.port", "9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors.allowed_origins", []string{"*"})
	viper.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors.allowed_headers", []string{"*"})
}
