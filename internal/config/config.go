package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveMinio  = "minio"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	ExportWorkers  int           `mapstructure:"EXPORT_WORKERS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	ArchiveBackend string `mapstructure:"ARCHIVE_BACKEND"`
	MinioEndpoint  string `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `mapstructure:"MINIO_SECRET_KEY"`
	MinioBucket    string `mapstructure:"MINIO_BUCKET"`
	MinioUseSSL    bool   `mapstructure:"MINIO_USE_SSL"`

	TracingEnabled    bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter   string  `mapstructure:"TRACING_EXPORTER"`
	TracingSampleRate float64 `mapstructure:"TRACING_SAMPLE_RATE"`

	OrgName string `mapstructure:"ORG_NAME"`
	OrgOID  string `mapstructure:"ORG_OID"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

var keys = []string{
	"PORT", "ENV", "EXPORT_WORKERS", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"ARCHIVE_BACKEND", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_BUCKET", "MINIO_USE_SSL",
	"TRACING_ENABLED", "TRACING_EXPORTER", "TRACING_SAMPLE_RATE",
	"ORG_NAME", "ORG_OID",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads .env (when present) and the environment. It does not validate.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("EXPORT_WORKERS", 0)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "50M")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("ARCHIVE_BACKEND", ArchiveNone)
	v.SetDefault("MINIO_BUCKET", "qrda-exports")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("TRACING_EXPORTER", "stdout")
	v.SetDefault("TRACING_SAMPLE_RATE", 1.0)
	v.SetDefault("ORG_NAME", "QRDA Export Service")
	v.SetDefault("ORG_OID", "2.16.840.1.113883.3.1")
	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ArchiveBackend = strings.ToLower(strings.TrimSpace(cfg.ArchiveBackend))
	cfg.TracingExporter = strings.ToLower(strings.TrimSpace(cfg.TracingExporter))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// AuthEnabled reports whether bearer tokens are required on /api.
func (c *Config) AuthEnabled() bool {
	return c.AuthSigningKey != ""
}

// HistoryEnabled reports whether export runs are recorded in Postgres.
func (c *Config) HistoryEnabled() bool {
	return c.DatabaseURL != ""
}

var sizePattern = regexp.MustCompile(`(?i)^\d+\s*(k|kb|m|mb|g|gb)?$`)

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.ExportWorkers < 0 {
		return fmt.Errorf("EXPORT_WORKERS must be >= 0, got %d", c.ExportWorkers)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if !sizePattern.MatchString(strings.TrimSpace(c.BodyLimit)) {
		return fmt.Errorf("BODY_LIMIT %q is not a size like 50M", c.BodyLimit)
	}

	if !c.AuthEnabled() && (c.AuthIssuer != "" || c.AuthAudience != "") {
		return fmt.Errorf("AUTH_ISSUER and AUTH_AUDIENCE require AUTH_SIGNING_KEY")
	}
	if c.AuthEnabled() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes for HS256")
	}
	if !c.AuthEnabled() && c.Env == "production" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required in production")
	}

	if c.HistoryEnabled() && c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}

	switch c.ArchiveBackend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required when ARCHIVE_BACKEND=minio")
		}
		if c.MinioAccessKey == "" || c.MinioSecretKey == "" {
			return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when ARCHIVE_BACKEND=minio")
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be \"none\", \"memory\", or \"minio\", got %q", c.ArchiveBackend)
	}

	if c.TracingEnabled && c.TracingExporter != "stdout" && c.TracingExporter != "none" {
		return fmt.Errorf("TRACING_EXPORTER must be \"stdout\" or \"none\", got %q", c.TracingExporter)
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be within [0, 1], got %v", c.TracingSampleRate)
	}

	if c.OrgOID == "" {
		return fmt.Errorf("ORG_OID must not be empty")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}
