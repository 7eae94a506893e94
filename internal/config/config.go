package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port          int           `yaml:"port"`
		ReadTimeout   time.Duration `yaml:"readTimeout"`
		WriteTimeout  time.Duration `yaml:"writeTimeout"`
		SecureCookies bool          `yaml:"secureCookies"`
		TrustProxy    bool          `yaml:"trustProxy"`
		CORSOrigins   []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Database struct {
		Driver      string `yaml:"driver"` // mysql | postgres | none
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Name        string `yaml:"name"`
		SSLMode     string `yaml:"sslMode"`
		AutoMigrate bool   `yaml:"autoMigrate"`
	} `yaml:"database"`

	Storage struct {
		Driver string `yaml:"driver"` // local | minio
		Dir    string `yaml:"dir"`
		Minio  struct {
			Endpoint   string `yaml:"endpoint"`
			AccessKey  string `yaml:"accessKey"`
			SecretKey  string `yaml:"secretKey"`
			BucketName string `yaml:"bucketName"`
			Region     string `yaml:"region"`
			UseSSL     bool   `yaml:"useSSL"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Session struct {
		Driver     string        `yaml:"driver"` // memory | redis
		CookieName string        `yaml:"cookieName"`
		TTL        time.Duration `yaml:"ttl"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"session"`

	Inference struct {
		Driver  string        `yaml:"driver"` // http | openai | gemini
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Model   string        `yaml:"model"`
		APIKey  string        `yaml:"apiKey"`
	} `yaml:"inference"`

	Security struct {
		EncryptionKey     string `yaml:"encryptionKey"`
		RateLimitSeconds  int    `yaml:"rateLimitSeconds"`
		MaxUploadBytes    int64  `yaml:"maxUploadBytes"`
		DisclaimerVersion string `yaml:"disclaimerVersion"`
		IPRequestsPerSec  int    `yaml:"ipRequestsPerSecond"`
		IPBurst           int    `yaml:"ipBurst"`
	} `yaml:"security"`
}

// Load baca file config.yaml, .env kalau ada, lalu override dari environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// jalan pakai default + env saja
	default:
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setString(&c.Security.EncryptionKey, "APP_ENCRYPTION_KEY")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASS")
	setString(&c.Inference.URL, "INFERENCE_URL")
	setString(&c.Session.Redis.Addr, "REDIS_ADDR")

	switch c.Inference.Driver {
	case "openai":
		setString(&c.Inference.APIKey, "OPENAI_API_KEY")
	case "gemini":
		setString(&c.Inference.APIKey, "GEMINI_API_KEY")
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// must outlive the inference timeout
		c.Server.WriteTimeout = 45 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Port == 0 {
		switch c.Database.Driver {
		case "postgres":
			c.Database.Port = 5432
		default:
			c.Database.Port = 3306
		}
	}
	if c.Database.Host == "" {
		c.Database.Host = "localhost"
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "biodb"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "uploads"
	}
	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "biosight_session"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Inference.Driver == "" {
		c.Inference.Driver = "http"
	}
	if c.Inference.URL == "" {
		c.Inference.URL = "http://localhost:8000/analyze"
	}
	if c.Inference.Timeout == 0 {
		c.Inference.Timeout = 30 * time.Second
	}
	if c.Security.RateLimitSeconds == 0 {
		c.Security.RateLimitSeconds = 10
	}
	if c.Security.MaxUploadBytes == 0 {
		c.Security.MaxUploadBytes = 10 * 1024 * 1024
	}
	if c.Security.DisclaimerVersion == "" {
		c.Security.DisclaimerVersion = "1.0.0"
	}
	if c.Security.IPRequestsPerSec == 0 {
		c.Security.IPRequestsPerSec = 5
	}
	if c.Security.IPBurst == 0 {
		c.Security.IPBurst = 20
	}
}

// Validate checks values that have no safe default.
func (c *Config) Validate() error {
	if len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryptionKey must be at least 32 bytes (set APP_ENCRYPTION_KEY)")
	}
	switch c.Database.Driver {
	case "mysql", "postgres", "none":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "minio":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Session.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown session driver %q", c.Session.Driver)
	}
	switch c.Inference.Driver {
	case "http":
	case "openai", "gemini":
		if c.Inference.APIKey == "" {
			return fmt.Errorf("inference.apiKey is required for driver %q", c.Inference.Driver)
		}
	default:
		return fmt.Errorf("unknown inference driver %q", c.Inference.Driver)
	}
	return nil
}

// RateLimitWindow returns the per-session cooldown between analyses.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.Security.RateLimitSeconds) * time.Second
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
