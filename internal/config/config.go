// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. Values come from the environment,
// optionally seeded from a .env file.
type Config struct {
	Server struct {
		Host            string
		Port            int
		ShutdownTimeout time.Duration
		CORSOrigin      string
	}
	Database struct {
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}
	// Store is the whatsmeow device store (credential blobs).
	Store struct {
		Dialect string
		DSN     string
	}
	JWT struct {
		Secret string
	}
	Logging struct {
		Level string
		Path  string
	}
	Media struct {
		Dir         string
		MaxUploadMB int64
	}
	Dispatch struct {
		DefaultDelay         time.Duration
		ReconnectDelay       time.Duration
		MaxReconnectAttempts int
	}
	AMQP struct {
		URL      string
		Exchange string
	}
	Redis struct {
		URL     string
		Channel string
	}
	RateLimit struct {
		Requests int
		Window   time.Duration
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, bool, error) {
	fromFile := godotenv.Load() == nil

	cfg := Default()

	cfg.Server.Host = getString("SERVER_HOST", cfg.Server.Host)
	cfg.Server.CORSOrigin = getString("CORS_ORIGIN", cfg.Server.CORSOrigin)

	var err error
	if cfg.Server.Port, err = getInt("PORT", cfg.Server.Port); err != nil {
		return nil, fromFile, err
	}
	if cfg.Server.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout); err != nil {
		return nil, fromFile, err
	}

	cfg.Database.Host = getString("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getString("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getString("DB_USER", cfg.Database.User)
	cfg.Database.Password = getString("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getString("DB_NAME", cfg.Database.Name)
	cfg.Database.SSLMode = getString("DB_SSLMODE", cfg.Database.SSLMode)

	cfg.Store.Dialect = getString("WA_STORE_DIALECT", cfg.Store.Dialect)
	cfg.Store.DSN = getString("WA_STORE_DSN", "")
	if cfg.Store.DSN == "" {
		if cfg.Store.Dialect == "postgres" {
			cfg.Store.DSN = cfg.DatabaseDSN()
		} else {
			cfg.Store.DSN = "file:sessions/whatsapp.db?_foreign_keys=on"
		}
	}

	cfg.JWT.Secret = getString("JWT_SECRET", cfg.JWT.Secret)
	cfg.Logging.Level = getString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Path = getString("LOG_PATH", cfg.Logging.Path)

	cfg.Media.Dir = getString("UPLOAD_DIR", cfg.Media.Dir)
	maxMB, err := getInt("UPLOAD_MAX_MB", int(cfg.Media.MaxUploadMB))
	if err != nil {
		return nil, fromFile, err
	}
	cfg.Media.MaxUploadMB = int64(maxMB)

	if cfg.Dispatch.DefaultDelay, err = getMillis("DISPATCH_DELAY_MS", cfg.Dispatch.DefaultDelay); err != nil {
		return nil, fromFile, err
	}
	if cfg.Dispatch.ReconnectDelay, err = getMillis("RECONNECT_DELAY_MS", cfg.Dispatch.ReconnectDelay); err != nil {
		return nil, fromFile, err
	}
	if cfg.Dispatch.MaxReconnectAttempts, err = getInt("RECONNECT_MAX_ATTEMPTS", cfg.Dispatch.MaxReconnectAttempts); err != nil {
		return nil, fromFile, err
	}

	cfg.AMQP.URL = getString("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getString("AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.Redis.URL = getString("REDIS_URL", cfg.Redis.URL)
	cfg.Redis.Channel = getString("REDIS_CHANNEL", cfg.Redis.Channel)

	if cfg.RateLimit.Requests, err = getInt("RATE_LIMIT_REQUESTS", cfg.RateLimit.Requests); err != nil {
		return nil, fromFile, err
	}
	if cfg.RateLimit.Window, err = getDuration("RATE_LIMIT_WINDOW", cfg.RateLimit.Window); err != nil {
		return nil, fromFile, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fromFile, err
	}
	return cfg, fromFile, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 3000
	cfg.Server.ShutdownTimeout = 15 * time.Second
	cfg.Server.CORSOrigin = "http://localhost:5173"
	cfg.Database.Host = "localhost"
	cfg.Database.Port = "5432"
	cfg.Database.User = "postgres"
	cfg.Database.Name = "whazaaa"
	cfg.Database.SSLMode = "disable"
	cfg.Store.Dialect = "sqlite3"
	cfg.JWT.Secret = "change-me"
	cfg.Logging.Level = "info"
	cfg.Logging.Path = "logs/server.log"
	cfg.Media.Dir = "uploads"
	cfg.Media.MaxUploadMB = 10
	cfg.Dispatch.DefaultDelay = 5 * time.Second
	cfg.Dispatch.ReconnectDelay = 5 * time.Second
	cfg.Dispatch.MaxReconnectAttempts = 10
	cfg.AMQP.Exchange = "whazaaa.events"
	cfg.Redis.Channel = "whazaaa:events"
	cfg.RateLimit.Requests = 100
	cfg.RateLimit.Window = 15 * time.Minute
	return cfg
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid PORT %d", c.Server.Port))
	}
	switch c.Store.Dialect {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported WA_STORE_DIALECT %q", c.Store.Dialect))
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must not be empty"))
	}
	if c.Media.MaxUploadMB <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_MB must be positive"))
	}
	if c.Dispatch.DefaultDelay < 0 || c.Dispatch.ReconnectDelay < 0 {
		errs = append(errs, errors.New("dispatch delays must not be negative"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit requests and window must be positive"))
	}
	return errors.Join(errs...)
}

// DatabaseDSN builds the lib/pq connection URL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Name, c.Database.SSLMode,
	)
}

// Address is the HTTP listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getMillis reads a plain integer number of milliseconds.
func getMillis(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(n) * time.Millisecond, nil
}
