package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/goliatone/go-community-cache/cache"
	"github.com/goliatone/go-community-cache/internal/filestore"
	"github.com/goliatone/go-community-cache/internal/persistence"
	"github.com/goliatone/go-community-cache/reconcile"
)

// Cache drivers.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the process configuration, read from the environment.
type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	CacheDriver       string        `mapstructure:"CACHE_DRIVER"`
	CacheCapacity     int           `mapstructure:"CACHE_CAPACITY"`
	RedisAddr         string        `mapstructure:"REDIS_ADDR"`
	RedisDB           int           `mapstructure:"REDIS_DB"`
	RedisPassword     string        `mapstructure:"REDIS_PASSWORD"`
	RedisPoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	RedisTimeout      time.Duration `mapstructure:"REDIS_TIMEOUT"`
	BreakerEnabled    bool          `mapstructure:"BREAKER_ENABLED"`
	BreakerFailures   uint32        `mapstructure:"BREAKER_FAILURES"`
	BreakerOpenPeriod time.Duration `mapstructure:"BREAKER_OPEN_PERIOD"`

	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBDSN          string `mapstructure:"DB_DSN"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`

	FilesDriver string `mapstructure:"FILES_DRIVER"`
	FilesRoot   string `mapstructure:"FILES_ROOT"`
	S3Endpoint  string `mapstructure:"S3_ENDPOINT"`
	S3Region    string `mapstructure:"S3_REGION"`
	S3Bucket    string `mapstructure:"S3_BUCKET"`
	S3AccessKey string `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey string `mapstructure:"S3_SECRET_KEY"`
	S3UseSSL    bool   `mapstructure:"S3_USE_SSL"`
	S3PathStyle bool   `mapstructure:"S3_PATH_STYLE"`

	SchedulerEnabled bool          `mapstructure:"SCHEDULER_ENABLED"`
	FlushSpec        string        `mapstructure:"RECONCILE_FLUSH"`
	ResetSpec        string        `mapstructure:"RECONCILE_RESET"`
	PurgeSpec        string        `mapstructure:"RECONCILE_PURGE"`
	Retention        time.Duration `mapstructure:"RECONCILE_RETENTION"`
}

var defaults = map[string]any{
	"HTTP_ADDR":           ":8080",
	"LOG_LEVEL":           "info",
	"LOG_FORMAT":          "json",
	"CACHE_DRIVER":        CacheMemory,
	"CACHE_CAPACITY":      10000,
	"REDIS_ADDR":          "",
	"REDIS_DB":            0,
	"REDIS_PASSWORD":      "",
	"REDIS_POOL_SIZE":     0,
	"REDIS_TIMEOUT":       "500ms",
	"BREAKER_ENABLED":     true,
	"BREAKER_FAILURES":    5,
	"BREAKER_OPEN_PERIOD": "10s",
	"DB_DRIVER":           persistence.DriverSQLite,
	"DB_DSN":              "file:community.db?cache=shared",
	"DB_MAX_OPEN_CONNS":   10,
	"FILES_DRIVER":        filestore.DriverLocal,
	"FILES_ROOT":          "./files",
	"S3_ENDPOINT":         "",
	"S3_REGION":           "",
	"S3_BUCKET":           "",
	"S3_ACCESS_KEY":       "",
	"S3_SECRET_KEY":       "",
	"S3_USE_SSL":          false,
	"S3_PATH_STYLE":       true,
	"SCHEDULER_ENABLED":   true,
	"RECONCILE_FLUSH":     "@every 10m",
	"RECONCILE_RESET":     "0 0 * * *",
	"RECONCILE_PURGE":     "0 4 * * *",
	"RECONCILE_RETENTION": "168h",
}

// Load reads envFile when it exists, then the environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and the combinations that depend on drivers.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.HTTPAddr, validation.Required),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LogFormat, validation.In("json", "console")),
		validation.Field(&c.CacheDriver, validation.Required, validation.In(CacheMemory, CacheRedis)),
		validation.Field(&c.CacheCapacity, validation.Min(1)),
		validation.Field(&c.RedisAddr, validation.When(c.CacheDriver == CacheRedis, validation.Required)),
		validation.Field(&c.RedisDB, validation.Min(0)),
		validation.Field(&c.BreakerFailures, validation.When(c.BreakerEnabled, validation.Required)),
		validation.Field(&c.BreakerOpenPeriod, validation.When(c.BreakerEnabled, validation.Required)),
		validation.Field(&c.DBDriver, validation.Required, validation.In(persistence.DriverPostgres, persistence.DriverSQLite)),
		validation.Field(&c.DBDSN, validation.Required),
		validation.Field(&c.FilesDriver, validation.Required, validation.In(filestore.DriverLocal, filestore.DriverS3)),
		validation.Field(&c.FilesRoot, validation.When(c.FilesDriver == filestore.DriverLocal, validation.Required)),
		validation.Field(&c.S3Endpoint, validation.When(c.FilesDriver == filestore.DriverS3, validation.Required)),
		validation.Field(&c.S3Bucket, validation.When(c.FilesDriver == filestore.DriverS3, validation.Required)),
		validation.Field(&c.FlushSpec, validation.Required),
		validation.Field(&c.ResetSpec, validation.Required),
		validation.Field(&c.PurgeSpec, validation.Required),
		validation.Field(&c.Retention, validation.Required, validation.Min(time.Hour)),
	)
}

// Cache returns the in-process store configuration.
func (c Config) Cache() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Capacity = c.CacheCapacity
	return cfg
}

// Redis returns the Redis connection configuration.
func (c Config) Redis() cache.RedisConfig {
	return cache.RedisConfig{
		Addr:         c.RedisAddr,
		DB:           c.RedisDB,
		Password:     c.RedisPassword,
		PoolSize:     c.RedisPoolSize,
		DialTimeout:  c.RedisTimeout,
		ReadTimeout:  c.RedisTimeout,
		WriteTimeout: c.RedisTimeout,
	}
}

// Breaker returns the circuit breaker configuration.
func (c Config) Breaker() cache.BreakerConfig {
	cfg := cache.DefaultBreakerConfig()
	cfg.ConsecutiveFailures = c.BreakerFailures
	cfg.Timeout = c.BreakerOpenPeriod
	return cfg
}

// Database returns the durable store configuration.
func (c Config) Database() persistence.Config {
	return persistence.Config{
		Driver:       c.DBDriver,
		DSN:          c.DBDSN,
		MaxOpenConns: c.DBMaxOpenConns,
		MaxIdleConns: c.DBMaxOpenConns,
	}
}

// Files returns the attachment storage configuration.
func (c Config) Files() filestore.Config {
	return filestore.Config{
		Driver: c.FilesDriver,
		Root:   c.FilesRoot,
		S3: filestore.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			Bucket:    c.S3Bucket,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			UseSSL:    c.S3UseSSL,
			PathStyle: c.S3PathStyle,
		},
	}
}

// Reconcile returns the scheduler configuration.
func (c Config) Reconcile() reconcile.Config {
	cfg := reconcile.DefaultConfig()
	cfg.FlushSpec = c.FlushSpec
	cfg.ResetSpec = c.ResetSpec
	cfg.PurgeSpec = c.PurgeSpec
	cfg.Retention = c.Retention
	return cfg
}

// Logger builds the process logger.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	if strings.EqualFold(c.LogFormat, "console") {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// String prints the configuration with secrets masked.
func (c Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return "(empty)"
		}
		return "********"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "http=%s log=%s/%s ", c.HTTPAddr, c.LogLevel, c.LogFormat)
	fmt.Fprintf(&sb, "cache=%s redis=%s redis_password=%s breaker=%v ", c.CacheDriver, c.RedisAddr, mask(c.RedisPassword), c.BreakerEnabled)
	fmt.Fprintf(&sb, "db=%s files=%s s3=%s/%s s3_secret=%s ", c.DBDriver, c.FilesDriver, c.S3Endpoint, c.S3Bucket, mask(c.S3SecretKey))
	fmt.Fprintf(&sb, "scheduler=%v retention=%s", c.SchedulerEnabled, c.Retention)
	return sb.String()
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var verrs validation.Errors
	return errors.As(err, &verrs)
}
