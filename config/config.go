// Package config loads trainwatch configuration from YAML with CLI
// overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pengKiina/trainwatch/internal/search"
)

// CLIConfig captures CLI-provided options for starting the service.
type CLIConfig struct {
	Addr         string
	LogFile      string
	ScanInterval time.Duration
	ConfigPath   string
}

// ParseFlags reads CLI parameters.
func ParseFlags() CLIConfig {
	addr := flag.String("addr", "", "HTTP listen address (optional override)")
	logFile := flag.String("log-file", "", "Training log file to watch (optional override)")
	scanInterval := flag.Duration("scan-interval", 0, "Monitor scan interval (optional override)")
	configPath := flag.String("config", "", "Path to YAML config file")

	flag.Parse()

	return CLIConfig{
		Addr:         *addr,
		LogFile:      *logFile,
		ScanInterval: *scanInterval,
		ConfigPath:   strings.TrimSpace(*configPath),
	}
}

// Storage backends.
const (
	StorageBackendFile  = "file"
	StorageBackendMinIO = "minio"
)

// Config models the YAML configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Watch   WatchConfig   `yaml:"watch"`
	Storage StorageConfig `yaml:"storage"`
	Kafka   KafkaSettings `yaml:"kafka"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// WatchConfig names the training log to follow and how often to rescan it.
type WatchConfig struct {
	LogFile  string `yaml:"logFile"`
	Interval string `yaml:"interval"`
}

// StorageConfig selects and configures the progress archive backend.
type StorageConfig struct {
	Backend    string      `yaml:"backend"`
	ArchiveDir string      `yaml:"archiveDir"`
	MinIO      MinIOConfig `yaml:"minio"`
}

// MinIOConfig holds object-storage settings for the minio backend.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	UseSSL    bool   `yaml:"useSSL"`
	Prefix    string `yaml:"prefix"`
}

// SearchConfig pins preset conditions that every search must satisfy in
// addition to the caller's own.
type SearchConfig struct {
	PresetConditions []search.FieldCondition `yaml:"presetConditions"`
}

// KafkaSettings configures optional publishing of observed records.
type KafkaSettings struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	BatchSize      int      `yaml:"batchSize"`
	BatchTimeout   string   `yaml:"batchTimeout"`
	RequireAllAcks bool     `yaml:"requireAllAcks"`
}

// KafkaBatchTimeout returns the configured batch timeout or fallback.
func (k *KafkaSettings) KafkaBatchTimeout(fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(k.BatchTimeout)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}

// Load parses a YAML configuration file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = ":8083"
	}
	if strings.TrimSpace(c.Watch.LogFile) == "" {
		c.Watch.LogFile = "train.log"
	}
	if strings.TrimSpace(c.Watch.Interval) == "" {
		c.Watch.Interval = "5s"
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = StorageBackendFile
	}
	if strings.TrimSpace(c.Storage.ArchiveDir) == "" {
		c.Storage.ArchiveDir = "archive"
	}
	if strings.TrimSpace(c.Storage.MinIO.Prefix) == "" {
		c.Storage.MinIO.Prefix = "progress"
	}
	c.Kafka.applyDefaults()
}

func (k *KafkaSettings) applyDefaults() {
	if strings.TrimSpace(k.Topic) == "" {
		k.Topic = "training-progress"
	}
	if k.BatchSize == 0 {
		k.BatchSize = 100
	}
	if strings.TrimSpace(k.BatchTimeout) == "" {
		k.BatchTimeout = "1s"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendFile, StorageBackendMinIO:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka is enabled but no brokers are configured")
	}
	if _, err := search.CompileAll(c.Search.PresetConditions); err != nil {
		return fmt.Errorf("invalid preset search condition: %w", err)
	}
	return nil
}

// ScanInterval returns the configured watch interval or fallback.
func (c *Config) ScanInterval(fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(c.Watch.Interval)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return d, nil
}
