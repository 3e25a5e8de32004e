package config

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"
	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.EqualValues(t, DefaultAppConfig, *cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("IMAGINARIUM_ADDR", "127.0.0.1:9090")
	t.Setenv("IMAGINARIUM_PUBLIC_URL", "https://img.example.com")
	t.Setenv("IMAGINARIUM_MIN_TTL", "60")
	t.Setenv("IMAGINARIUM_MAX_TTL", "600")
	t.Setenv("IMAGINARIUM_SWEEP_INTERVAL", "1m")
	t.Setenv("IMAGINARIUM_MAX_UPLOAD_BYTES", "1048576")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr)
	assert.Equal(t, "https://img.example.com", cfg.PublicURL)
	assert.Equal(t, 60, cfg.MinTTL)
	assert.Equal(t, 600, cfg.MaxTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
}

func TestValidDataDirs(t *testing.T) {
	valid := []string{
		"data",
		"/var/lib/imaginarium",
		"./data",
		"relative/path/to/data",
	}
	for _, p := range valid {
		t.Setenv("IMAGINARIUM_DATA_DIR", p)
		cfg, err := Load()
		if err != nil {
			t.Errorf("expected valid path %q, got error: %v", p, err)
			continue
		}
		if cfg.DataDir != p {
			t.Errorf("expected DataDir %q, got %q", p, cfg.DataDir)
		}
	}
}

func TestInvalidDataDirs(t *testing.T) {
	invalid := []string{
		"",
		".",
		"/",
		"//",
		"../data",
		"data/..",
		"data/../../../etc",
	}
	for _, p := range invalid {
		t.Setenv("IMAGINARIUM_DATA_DIR", p)
		if _, err := Load(); err == nil {
			t.Errorf("expected error for invalid path %q, got nil", p)
		}
	}
}

func TestTTLCrossCheck(t *testing.T) {
	t.Setenv("IMAGINARIUM_MIN_TTL", "500")
	t.Setenv("IMAGINARIUM_MAX_TTL", "400")
	_, err := Load()
	assert.EqualError(t, err, "min_ttl must be less than max_ttl")
}

func TestJWTSecretLength(t *testing.T) {
	t.Setenv("IMAGINARIUM_JWT_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for short jwt secret")
	}
}

func TestMinioStorageRequiresCredentials(t *testing.T) {
	t.Setenv("IMAGINARIUM_STORAGE", "minio")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for minio storage without endpoint")
	}
	t.Setenv("IMAGINARIUM_MINIO_ENDPOINT", "minio.local:9000")
	t.Setenv("IMAGINARIUM_MINIO_ACCESS_KEY", "access")
	t.Setenv("IMAGINARIUM_MINIO_SECRET_KEY", "secret")
	t.Setenv("IMAGINARIUM_MINIO_BUCKET", "images")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	assert.Equal(t, "minio", cfg.Storage)
	assert.Equal(t, "minio.local:9000", cfg.MinioEndpoint)
}

func TestUnknownStorageRejected(t *testing.T) {
	t.Setenv("IMAGINARIUM_STORAGE", "s3")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown storage backend")
	}
}

func TestValidIPPort(t *testing.T) {
	type sample struct {
		Addr string `validate:"ip_port"`
	}

	v := validator.New()
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		t.Fatalf("register validation: %v", err)
	}

	tests := []struct {
		name  string
		addr  string
		valid bool
	}{
		{name: "empty", addr: "", valid: false},
		{name: "missing_port", addr: "127.0.0.1", valid: false},
		{name: "just_colon_port", addr: ":8080", valid: true},
		{name: "loopback_ipv4", addr: "127.0.0.1:8080", valid: true},
		{name: "ipv6_loopback", addr: "[::1]:8080", valid: true},
		{name: "unbracketed_ipv6", addr: "::1:8080", valid: false},
		{name: "hostname_not_ip", addr: "localhost:8080", valid: false},
		{name: "non_numeric_port", addr: "127.0.0.1:http", valid: false},
		{name: "port_zero", addr: "127.0.0.1:0", valid: false},
		{name: "port_max_valid", addr: "127.0.0.1:65535", valid: true},
		{name: "port_overflow", addr: "127.0.0.1:65536", valid: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Struct(sample{Addr: tc.addr})
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSQLiteDSN(t *testing.T) {
	cfg := &Config{DataDir: "/var/lib/imaginarium"}
	dsn := cfg.SQLiteDSN()
	assert.Contains(t, dsn, "file:/var/lib/imaginarium/imaginarium.db")
	assert.Contains(t, dsn, "_journal_mode=WAL")
	assert.Contains(t, dsn, "_foreign_keys=on")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_synchronous=FULL")
}

func TestLoaderFailuresSurface(t *testing.T) {
	origDefault := defaultLoader
	defaultLoader = func(*koanf.Koanf) error { return errors.New("boom") }
	_, err := Load()
	defaultLoader = origDefault
	assert.ErrorContains(t, err, "load defaults")

	origEnv := envLoader
	envLoader = func(*koanf.Koanf) error { return errors.New("boom") }
	_, err = Load()
	envLoader = origEnv
	assert.ErrorContains(t, err, "load environment")
}
