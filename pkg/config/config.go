package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Analysis  AnalysisConfig  `json:"analysis"`
	Numbering NumberingConfig `json:"numbering"`
	Messaging MessagingConfig `json:"messaging"`
	Metrics   MetricsConfig   `json:"metrics"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"text"`
}

// AnalysisConfig holds the tone-analysis scheduler settings
type AnalysisConfig struct {
	Workers         int           `json:"workers" env:"ANALYSIS_WORKERS" default:"4"`
	QueueSize       int           `json:"queue_size" env:"ANALYSIS_QUEUE_SIZE" default:"64"`
	DownloadTimeout time.Duration `json:"download_timeout" env:"ANALYSIS_DOWNLOAD_TIMEOUT" default:"30s"`
	PollGrace       time.Duration `json:"poll_grace" env:"ANALYSIS_POLL_GRACE" default:"100ms"`
	AwaitTimeout    time.Duration `json:"await_timeout" env:"ANALYSIS_AWAIT_TIMEOUT" default:"5s"`
}

// NumberingConfig holds numbering-plan settings
type NumberingConfig struct {
	CountryCode  string `json:"country_code" env:"NUMBERING_COUNTRY_CODE" default:"1"`
	TargetLength int    `json:"target_length" env:"NUMBERING_TARGET_LENGTH" default:"10"`
}

// MessagingConfig holds the optional AMQP publisher settings
type MessagingConfig struct {
	AMQPURL   string `json:"amqp_url" env:"AMQP_URL"`
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"tone_results"`
}

// Enabled reports whether an AMQP broker is configured.
func (m MessagingConfig) Enabled() bool {
	return m.AMQPURL != ""
}

// MetricsConfig holds the prometheus exposition settings
type MetricsConfig struct {
	Enabled    bool   `json:"enabled" env:"METRICS_ENABLED" default:"false"`
	ListenAddr string `json:"listen_addr" env:"METRICS_LISTEN_ADDR" default:":9090"`
}

// Load reads configuration from the environment, with .env support.
func Load(logger *logrus.Logger) (*Config, error) {
	// A missing .env file is fine; the environment may be set directly.
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env file")
	}

	config := &Config{}

	config.Logging.Level = getEnv("LOG_LEVEL", "info")
	config.Logging.Format = getEnv("LOG_FORMAT", "text")

	var err error
	config.Analysis.Workers, err = getEnvInt("ANALYSIS_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	config.Analysis.QueueSize, err = getEnvInt("ANALYSIS_QUEUE_SIZE", 64)
	if err != nil {
		return nil, err
	}
	config.Analysis.DownloadTimeout, err = getEnvDuration("ANALYSIS_DOWNLOAD_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	config.Analysis.PollGrace, err = getEnvDuration("ANALYSIS_POLL_GRACE", 100*time.Millisecond)
	if err != nil {
		return nil, err
	}
	config.Analysis.AwaitTimeout, err = getEnvDuration("ANALYSIS_AWAIT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, err
	}
	if config.Analysis.Workers <= 0 {
		return nil, fmt.Errorf("ANALYSIS_WORKERS must be positive, got %d", config.Analysis.Workers)
	}

	config.Numbering.CountryCode = getEnv("NUMBERING_COUNTRY_CODE", "1")
	config.Numbering.TargetLength, err = getEnvInt("NUMBERING_TARGET_LENGTH", 10)
	if err != nil {
		return nil, err
	}
	if config.Numbering.TargetLength < 4 {
		return nil, fmt.Errorf("NUMBERING_TARGET_LENGTH must be at least 4, got %d", config.Numbering.TargetLength)
	}

	config.Messaging.AMQPURL = getEnv("AMQP_URL", "")
	config.Messaging.QueueName = getEnv("AMQP_QUEUE_NAME", "tone_results")

	config.Metrics.Enabled = getEnvBool("METRICS_ENABLED", false)
	config.Metrics.ListenAddr = getEnv("METRICS_LISTEN_ADDR", ":9090")

	return config, nil
}

// ApplyLogging configures the logger from the loaded config.
func (c *Config) ApplyLogging(logger *logrus.Logger) {
	level, err := logrus.ParseLevel(c.Logging.Level)
	if err != nil {
		logger.WithField("level", c.Logging.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q", key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q", key, value)
	}
	return parsed, nil
}
