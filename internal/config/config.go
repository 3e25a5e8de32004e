// Package config provides layered configuration loading for the Imaginarium
// service. Defaults are merged with IMAGINARIUM_-prefixed environment
// variables via koanf, then validated with go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// envPrefix namespaces all environment variables read by Load.
const envPrefix = "IMAGINARIUM_"

// Config holds the merged runtime configuration for the Imaginarium service.
// Precedence (lowest → highest): defaults → environment.
type Config struct {
	Addr           string        `koanf:"addr" validate:"required,ip_port"`
	PublicURL      string        `koanf:"public_url" validate:"required,url"`
	DataDir        string        `koanf:"data_dir" validate:"required,safe_path"`
	JWTSecret      string        `koanf:"jwt_secret" validate:"required,min=16"`
	MetricsToken   string        `koanf:"metrics_token"`
	MinTTL         int           `koanf:"min_ttl" validate:"required,min=1"`
	MaxTTL         int           `koanf:"max_ttl" validate:"required"`
	AccessTokenTTL time.Duration `koanf:"access_token_ttl" validate:"required"`
	SweepInterval  time.Duration `koanf:"sweep_interval" validate:"required"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes" validate:"required,min=1"`
	Storage        string        `koanf:"storage" validate:"required,oneof=fs minio"`
	MinioEndpoint  string        `koanf:"minio_endpoint" validate:"required_if=Storage minio"`
	MinioAccessKey string        `koanf:"minio_access_key" validate:"required_if=Storage minio"`
	MinioSecretKey string        `koanf:"minio_secret_key" validate:"required_if=Storage minio"`
	MinioBucket    string        `koanf:"minio_bucket" validate:"required_if=Storage minio"`
	MinioUseSSL    bool          `koanf:"minio_use_ssl"`
}

// DefaultAppConfig is the baseline configuration before any overrides.
var DefaultAppConfig = Config{
	Addr:           ":8080",
	PublicURL:      "http://localhost:8080",
	DataDir:        "./data",
	JWTSecret:      "imaginarium-dev-secret-change-me",
	MinTTL:         300,
	MaxTTL:         30000,
	AccessTokenTTL: 24 * time.Hour,
	SweepInterval:  5 * time.Minute,
	MaxUploadBytes: 10 << 20, // 10 MiB
	Storage:        "fs",
	MinioBucket:    "images",
}

// Loader seams, swappable in tests.
var (
	defaultLoader = func(k *koanf.Koanf) error {
		return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
	}
	envLoader = func(k *koanf.Koanf) error {
		return k.Load(env.Provider(".", env.Opt{
			Prefix: envPrefix,
			TransformFunc: func(key, value string) (string, any) {
				return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
			},
		}), nil)
	}
	registerValidators = func(v *validator.Validate) error {
		if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
			return err
		}
		return v.RegisterValidation("safe_path", validSafePath)
	}
)

// Load merges defaults with environment variables and validates the result.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SQLiteDSN returns the DSN for the index database inside DataDir, with the
// pragmas the store layer depends on (WAL, foreign keys for link cascades,
// busy timeout, full sync for crash-safe reclaim commits).
func (c *Config) SQLiteDSN() string {
	path := filepath.Join(c.DataDir, "imaginarium.db")
	return "file:" + path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
}

// validate runs struct validation plus cross-field checks.
func (c *Config) validate() error {
	v := validator.New()
	if err := registerValidators(v); err != nil {
		return err
	}
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.MinTTL > c.MaxTTL {
		return errors.New("min_ttl must be less than max_ttl")
	}
	return nil
}

// validIPPort accepts "host:port" or ":port" with a numeric port in range.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n > 0 && n <= 65535
}

// validSafePath rejects empty, root, and traversal-prone data directories.
func validSafePath(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" || p == "." || strings.Trim(p, "/") == "" {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
