package config

import (
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/quatton/qhook/pkg/db"
	"github.com/quatton/qhook/pkg/kv"
	"github.com/quatton/qhook/pkg/qapi/utils"
	"github.com/quatton/qhook/pkg/qart"
)

// Job store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type EnvConfig struct {
	Port        string `envconfig:"PORT" default:"3000"`
	BaseURL     string `envconfig:"BASE_URL" default:"http://localhost:3000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	ScriptsConfig    string        `envconfig:"SCRIPTS_CONFIG"`
	ScriptsBaseDir   string        `envconfig:"SCRIPTS_BASE_DIR"`
	MaxConcurrent    int64         `envconfig:"MAX_CONCURRENT" default:"5"`
	AdmissionTimeout time.Duration `envconfig:"ADMISSION_TIMEOUT" default:"30s"`
	ExecutionTimeout time.Duration `envconfig:"EXECUTION_TIMEOUT" default:"5m"`

	Workers      int           `envconfig:"WORKERS" default:"4"`
	JobRetention time.Duration `envconfig:"JOB_RETENTION" default:"168h"`
	StoreBackend string        `envconfig:"STORE_BACKEND" default:"memory"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"qhook"`
	DBPassword string `envconfig:"DB_PASSWORD" default:"password"`
	DBName     string `envconfig:"DB_NAME" default:"qhook"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"qhook-artifacts"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	S3UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`

	TrustProxy bool   `envconfig:"TRUST_PROXY" default:"false"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat  string `envconfig:"LOG_FORMAT" default:"text"`
}

func ValidateEnv() (*EnvConfig, error) {
	if utils.IsDev() {
		if err := godotenv.Load(); err != nil {
			log.Println("ℹ No .env file found")
		} else {
			log.Println("✓ Loaded .env file")
		}
	}

	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *EnvConfig) Validate() error {
	var errors []string

	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		errors = append(errors, "  ❌ PORT must be a number between 1 and 65535")
	}

	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		errors = append(errors, "  ❌ BASE_URL must be a valid URL")
	}

	if c.MaxConcurrent < 1 {
		errors = append(errors, "  ❌ MAX_CONCURRENT must be at least 1")
	}
	if c.AdmissionTimeout <= 0 {
		errors = append(errors, "  ❌ ADMISSION_TIMEOUT must be positive")
	}
	if c.ExecutionTimeout <= 0 {
		errors = append(errors, "  ❌ EXECUTION_TIMEOUT must be positive")
	}
	if c.Workers < 1 {
		errors = append(errors, "  ❌ WORKERS must be at least 1")
	}
	if c.JobRetention <= 0 {
		errors = append(errors, "  ❌ JOB_RETENTION must be positive")
	}

	switch c.StoreBackend {
	case BackendMemory, BackendPostgres:
	case BackendRedis:
		if c.RedisAddr == "" {
			errors = append(errors, "  ❌ REDIS_ADDR is required when STORE_BACKEND is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("  ❌ STORE_BACKEND must be one of memory, redis, postgres (got %q)", c.StoreBackend))
	}

	if utils.IsProd() && c.StoreBackend == BackendPostgres && c.DBPassword == "password" {
		errors = append(errors, "  ❌ DB_PASSWORD must be changed from the default in production")
	}

	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "") {
		errors = append(errors, "  ❌ S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, "  ❌ LOG_FORMAT must be text or json")
	}

	if len(errors) > 0 {
		return fmt.Errorf("environment validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

// ArtifactsEnabled reports whether job output is uploaded to S3.
func (c *EnvConfig) ArtifactsEnabled() bool {
	return c.S3Endpoint != ""
}

func (c *EnvConfig) DBConfig() db.Config {
	return db.Config{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Database: c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

func (c *EnvConfig) ValkeyConfig() kv.ValkeyConfig {
	return kv.ValkeyConfig{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *EnvConfig) S3Config() qart.S3Config {
	return qart.S3Config{
		Endpoint:  c.S3Endpoint,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Bucket:    c.S3Bucket,
		Region:    c.S3Region,
		UseSSL:    c.S3UseSSL,
	}
}

func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *EnvConfig) Print(fmtr func(string, ...interface{})) {
	fmtr("📋 Configuration:\n")
	fmtr("  Environment: %s\n", c.Environment)
	fmtr("  Port: %s\n", c.Port)
	fmtr("  Base URL: %s\n", c.BaseURL)
	if c.ScriptsConfig != "" {
		fmtr("  Scripts config: %s\n", c.ScriptsConfig)
	} else {
		fmtr("  Scripts config: <search qhook.yaml, qhook.yml, qhook.json>\n")
	}
	fmtr("  Limits: %d concurrent per script, admission %s, execution %s\n",
		c.MaxConcurrent, c.AdmissionTimeout, c.ExecutionTimeout)
	fmtr("  Jobs: %d workers, %s backend, retention %s\n", c.Workers, c.StoreBackend, c.JobRetention)

	switch c.StoreBackend {
	case BackendRedis:
		fmtr("  Redis: %s/%d (password %s)\n", c.RedisAddr, c.RedisDB, MaskSecret(c.RedisPassword))
	case BackendPostgres:
		fmtr("  Database: %s@%s:%d/%s (sslmode=%s)\n", c.DBUser, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
		if c.RedisAddr != "" {
			fmtr("  Queue: redis %s/%d\n", c.RedisAddr, c.RedisDB)
		} else {
			fmtr("  Queue: in-process\n")
		}
	}

	if c.ArtifactsEnabled() {
		fmtr("  Artifacts: ✓ Enabled (%s/%s)\n", c.S3Endpoint, c.S3Bucket)
		fmtr("    Access Key: %s\n", MaskSecret(c.S3AccessKey))
		fmtr("    Secret Key: %s\n", MaskSecret(c.S3SecretKey))
	} else {
		fmtr("  Artifacts: ✗ Disabled\n")
	}

	if c.TrustProxy {
		fmtr("  Trust proxy: ✓ client address taken from X-Forwarded-For\n")
	}
}
