package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port          string `env:"PORT"            envDefault:"8000"`
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"524288000"`
	TempDir       string `env:"TEMP_DIR"        envDefault:""`
	FrontendURL   string `env:"FRONTEND_URL"    envDefault:"http://localhost:5173"`
	CORSOrigin    string `env:"CORS_ORIGIN"     envDefault:"https://pose-annotator.onrender.com"`

	DBType         string `env:"DB_TYPE"         envDefault:"sqlite"`
	DBPath         string `env:"DB_PATH"         envDefault:"./poseannotator.db"`
	DBHost         string `env:"DB_HOST"         envDefault:"localhost"`
	DBPort         int    `env:"DB_PORT"         envDefault:"5432"`
	DBUser         string `env:"DB_USER"         envDefault:"poseannotator"`
	DBPassword     string `env:"DB_PASSWORD"     envDefault:"poseannotator_dev"`
	DBName         string `env:"DB_NAME"         envDefault:"poseannotator"`
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"./migrations"`

	StorageType string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageDir  string `env:"STORAGE_DIR"  envDefault:"./data"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET"    envDefault:"pose-annotator"`
	S3Region    string `env:"S3_REGION"    envDefault:"auto"`
	S3UseSSL    bool   `env:"S3_USE_SSL"   envDefault:"true"`

	MaxRenderHeight int `env:"MAX_RENDER_HEIGHT" envDefault:"720"`
	JPEGQuality     int `env:"JPEG_QUALITY"      envDefault:"85"`
	CacheMaxEntries int `env:"CACHE_MAX_ENTRIES" envDefault:"0"`

	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"poseannotator.events"`

	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads the optional .env file at path, then parses the environment.
// Variables already set in the environment take precedence over .env.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBType {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DB_TYPE: %s", c.DBType)
	}
	switch c.StorageType {
	case "local":
	case "s3":
		if c.S3Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when STORAGE_TYPE=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE: %s", c.StorageType)
	}
	if c.MaxRenderHeight <= 0 {
		return fmt.Errorf("MAX_RENDER_HEIGHT must be positive, got %d", c.MaxRenderHeight)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be within 1..100, got %d", c.JPEGQuality)
	}
	return nil
}
