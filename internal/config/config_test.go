package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.HTTPAddr != ":8080" || cfg.CacheDriver != CacheMemory {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Retention != 7*24*time.Hour {
		t.Errorf("expected 7 day retention, got %v", cfg.Retention)
	}
	if cfg.BreakerOpenPeriod != 10*time.Second {
		t.Errorf("expected 10s breaker period, got %v", cfg.BreakerOpenPeriod)
	}
	if err := cfg.Reconcile().Validate(); err != nil {
		t.Errorf("expected default reconcile config to be valid: %v", err)
	}
	if err := cfg.Cache().Validate(); err != nil {
		t.Errorf("expected default cache config to be valid: %v", err)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CACHE_DRIVER", CacheRedis)
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_TIMEOUT", "2s")
	t.Setenv("RECONCILE_FLUSH", "@every 1m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis().Addr != "redis:6379" || cfg.Redis().ReadTimeout != 2*time.Second {
		t.Errorf("unexpected redis config %+v", cfg.Redis())
	}
	if cfg.Reconcile().FlushSpec != "@every 1m" {
		t.Errorf("unexpected flush spec %q", cfg.Reconcile().FlushSpec)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "FILES_DRIVER=s3\nS3_ENDPOINT=minio:9000\nS3_BUCKET=attachments\nS3_SECRET_KEY=hunter2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	// godotenv sets process variables; clear them when the test ends
	for _, key := range []string{"FILES_DRIVER", "S3_ENDPOINT", "S3_BUCKET", "S3_SECRET_KEY"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	files := cfg.Files()
	if files.Driver != "s3" || files.S3.Endpoint != "minio:9000" || files.S3.Bucket != "attachments" {
		t.Errorf("unexpected files config %+v", files)
	}
	if strings.Contains(cfg.String(), "hunter2") {
		t.Error("expected secret to be masked")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		return *cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown cache driver", mutate: func(c *Config) { c.CacheDriver = "memcached" }},
		{name: "redis without address", mutate: func(c *Config) { c.CacheDriver = CacheRedis; c.RedisAddr = "" }},
		{name: "unknown db driver", mutate: func(c *Config) { c.DBDriver = "mysql" }},
		{name: "s3 without bucket", mutate: func(c *Config) { c.FilesDriver = "s3"; c.S3Endpoint = "minio:9000" }},
		{name: "short retention", mutate: func(c *Config) { c.Retention = time.Minute }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !IsValidationError(err) {
				t.Errorf("expected validation.Errors, got %T", err)
			}
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := Config{LogLevel: "debug", LogFormat: "console"}
	logger, err := cfg.Logger()
	if err != nil {
		t.Fatalf("Logger failed: %v", err)
	}
	if !logger.Core().Enabled(-1) {
		t.Error("expected debug level to be enabled")
	}

	if _, err := (Config{LogLevel: "loud"}).Logger(); err == nil {
		t.Error("expected unknown level to fail")
	}
}
