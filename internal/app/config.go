package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/catalog-service/pkg/httpmiddleware"
)

// Upload backends.
const (
	BackendDisk  = "disk"
	BackendMinio = "minio"
)

// Config holds the complete application configuration, loadable from
// environment variables (CATALOG_ prefix), a .env file, flags, or YAML config
// files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (CATALOG_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Uploads     UploadsConfig
	Minio       MinioConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// UploadsConfig controls where product images are stored and how large a
// create request may be.
type UploadsConfig struct {
	Backend   string `default:"disk" usage:"Image storage backend: disk or minio"`
	Dir       string `default:"uploads" usage:"Directory for the disk backend"`
	URLPrefix string `default:"/uploads" usage:"Path prefix under which images are served" flag:"uploads-url-prefix"`
	MaxBytes  int64  `default:"33554432" usage:"Maximum create request body size in bytes" flag:"uploads-max-bytes"`
	MaxFiles  int    `default:"10" usage:"Maximum images per product, 0 for no limit" flag:"uploads-max-files"`
}

// MinioConfig is used when Uploads.Backend is minio.
type MinioConfig struct {
	Endpoint  string `usage:"S3-compatible endpoint, host:port"`
	AccessKey string `usage:"Access key" flag:"minio-access-key"`
	SecretKey string `usage:"Secret key" flag:"minio-secret-key"`
	Bucket    string `default:"product-images" usage:"Bucket for product images"`
	Secure    bool   `default:"false" usage:"Use TLS"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// TrustedProxies may set X-Forwarded-For; other peers are limited by
	// their connection address.
	TrustedProxies []string `usage:"CIDRs or addresses of trusted reverse proxies" flag:"trusted-proxies"`
}

// CORSConfig controls Cross-Origin Resource Sharing for storefront clients.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from a .env file, environment variables,
// YAML config files and flags, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "CATALOG",
		Files:     []string{"config.yaml", "/etc/catalog/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set CATALOG_DATABASE_URL or DATABASE_URL")
	}
	switch c.Uploads.Backend {
	case BackendDisk:
		if c.Uploads.Dir == "" {
			return errors.New("uploads dir is required for the disk backend")
		}
	case BackendMinio:
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return errors.New("minio endpoint and bucket are required for the minio backend")
		}
	default:
		return errors.Errorf("unknown uploads backend %q", c.Uploads.Backend)
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads max bytes must be positive")
	}
	if _, err := httpmiddleware.ParseTrustedProxies(c.RateLimit.TrustedProxies); err != nil {
		return errors.Wrap(err, "rate limit")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CATALOG_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
