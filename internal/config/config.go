package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendDisk  = "disk"
	BackendMinio = "minio"
)

// Environment variables that override values from the file, so secrets
// do not have to live in config.yaml.
const (
	EnvMinioAccessKey = "REGISTRY_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "REGISTRY_MINIO_SECRET_KEY"
	EnvSettingsDSN    = "REGISTRY_SETTINGS_DSN"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type StorageConfig struct {
	Backend              string        `yaml:"backend"`
	DataDir              string        `yaml:"dataDir"`
	Minio                MinioConfig   `yaml:"minio"`
	PackagesDir          string        `yaml:"packagesDir"`
	CachePackageSeconds  int           `yaml:"cachePackageSeconds"`
	CacheMetadataSeconds int           `yaml:"cacheMetadataSeconds"`
	RedirectTarballs     bool          `yaml:"redirectTarballs"`
	RedirectTTL          time.Duration `yaml:"redirectTTL"`
	Index                IndexConfig   `yaml:"index"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// IndexConfig selects the local index provider. When SettingsDSN is set the
// index lives in the settings database under KeyName; otherwise it is a
// JSON object in the package store.
type IndexConfig struct {
	SettingsDSN string `yaml:"settingsDSN"`
	KeyName     string `yaml:"keyName"`
}

type AuthConfig struct {
	Tokens []string `yaml:"tokens"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used for anything the file leaves out.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Storage: StorageConfig{
			Backend:     BackendDisk,
			DataDir:     "./data",
			PackagesDir: "packages",
			Minio:       MinioConfig{Endpoint: "127.0.0.1:9000"},
			RedirectTTL: 15 * time.Minute,
			Index:       IndexConfig{KeyName: "registry-db"},
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3},
	}
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse applies data over the defaults, then environment overrides, and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvMinioAccessKey); v != "" {
		c.Storage.Minio.AccessKey = v
	}
	if v := os.Getenv(EnvMinioSecretKey); v != "" {
		c.Storage.Minio.SecretKey = v
	}
	if v := os.Getenv(EnvSettingsDSN); v != "" {
		c.Storage.Index.SettingsDSN = v
	}
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendDisk:
		if c.Storage.DataDir == "" {
			return errors.New("storage.dataDir is required for the disk backend")
		}
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" {
			return errors.New("storage.minio.endpoint is required for the minio backend")
		}
		if c.Storage.Minio.Bucket == "" {
			return errors.New("storage.minio.bucket is required for the minio backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Storage.RedirectTarballs && c.Storage.Backend != BackendMinio {
		return errors.New("storage.redirectTarballs needs a backend that can sign URLs")
	}

	if c.Storage.CachePackageSeconds < 0 || c.Storage.CacheMetadataSeconds < 0 {
		return errors.New("cache durations must not be negative")
	}

	if len(c.Auth.Tokens) == 0 {
		return fmt.Errorf("no auth tokens configured")
	}

	return nil
}
