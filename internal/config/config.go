package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Cache    CacheConfig    `yaml:"cache"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	URL string `yaml:"url"`
	// WorkerCount is the number of parallel intake workers in the
	// worker process.
	WorkerCount int `yaml:"worker_count"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// CacheConfig selects the windowed-state backend. An empty Dir runs
// badger fully in memory (state lost on restart).
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// DedupConfig parameterizes the storage and alert dedup policies.
type DedupConfig struct {
	StorageWindowSeconds       float64 `yaml:"storage_window_seconds"`
	AlertWindowSeconds         float64 `yaml:"alert_window_seconds"`
	StorageSpatialThreshold    float64 `yaml:"storage_spatial_threshold"`
	AlertSpatialThreshold      float64 `yaml:"alert_spatial_threshold"`
	StorageConfidenceThreshold float64 `yaml:"storage_confidence_threshold"`
	AlertConfidenceImprovement float64 `yaml:"alert_confidence_improvement"`
	MaxAlertsPerKeyPerHour     int     `yaml:"max_alerts_per_key_per_hour"`
	RecentListCapacity         int     `yaml:"recent_list_capacity"`
	// AlertCheckAfterDuplicate controls whether the alert check still
	// runs when the storage check marked the event a duplicate. The
	// source system ran it unconditionally; kept configurable pending
	// product confirmation.
	AlertCheckAfterDuplicate *bool `yaml:"alert_check_after_duplicate"`
	CacheOpTimeoutMS         int   `yaml:"cache_op_timeout_ms"`
}

func (d DedupConfig) AlertAfterDuplicate() bool {
	if d.AlertCheckAfterDuplicate == nil {
		return true
	}
	return *d.AlertCheckAfterDuplicate
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	return cfg, nil
}

// Default returns a config with all defaults applied, for tests and
// embedded use without a config file.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.WorkerCount == 0 {
		cfg.NATS.WorkerCount = 4
	}
	if cfg.Dedup.StorageWindowSeconds == 0 {
		cfg.Dedup.StorageWindowSeconds = 300
	}
	if cfg.Dedup.AlertWindowSeconds == 0 {
		cfg.Dedup.AlertWindowSeconds = 30
	}
	if cfg.Dedup.StorageSpatialThreshold == 0 {
		cfg.Dedup.StorageSpatialThreshold = 0.70
	}
	if cfg.Dedup.AlertSpatialThreshold == 0 {
		cfg.Dedup.AlertSpatialThreshold = 0.50
	}
	if cfg.Dedup.StorageConfidenceThreshold == 0 {
		cfg.Dedup.StorageConfidenceThreshold = 0.02
	}
	if cfg.Dedup.AlertConfidenceImprovement == 0 {
		cfg.Dedup.AlertConfidenceImprovement = 0.05
	}
	if cfg.Dedup.MaxAlertsPerKeyPerHour == 0 {
		cfg.Dedup.MaxAlertsPerKeyPerHour = 20
	}
	if cfg.Dedup.RecentListCapacity == 0 {
		cfg.Dedup.RecentListCapacity = 20
	}
	if cfg.Dedup.CacheOpTimeoutMS == 0 {
		cfg.Dedup.CacheOpTimeoutMS = 50
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SN_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SN_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SN_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SN_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SN_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SN_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SN_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SN_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SN_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SN_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SN_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SN_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("SN_MAX_ALERTS_PER_KEY_PER_HOUR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.MaxAlertsPerKeyPerHour = n
		}
	}
}
