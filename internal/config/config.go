// Package config loads the service configuration from an optional YAML file
// with environment variable overrides. Environment always wins so deployments
// can keep secrets out of files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration of the service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Logging       LoggingConfig       `yaml:"logging"`
	Auth          AuthConfig          `yaml:"auth"`
	Push          PushConfig          `yaml:"push"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the persistence backend. An empty DSN runs the
// service on the in-memory stores.
type DatabaseConfig struct {
	DSN          string        `yaml:"dsn"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	ConnLifetime time.Duration `yaml:"conn_lifetime"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePrefix string `yaml:"file_prefix"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type PushConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"api_key"`
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

type NotificationsConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Default returns the configuration used when no file or environment is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
			ConnLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Notifications: NotificationsConfig{
			RetentionDays: 90,
			SweepSchedule: "0 3 * * *",
		},
	}
}

// Load reads the configuration. A .env file is loaded first if present, then
// the YAML file at path (skipped when path is empty or missing), then
// environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("auth.jwt_secret (or QUICKGIG_JWT_SECRET) is required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "QUICKGIG_HOST")
	setInt(&cfg.Server.Port, "QUICKGIG_PORT")
	setString(&cfg.Database.DSN, "QUICKGIG_DATABASE_DSN")
	setString(&cfg.Logging.Level, "QUICKGIG_LOG_LEVEL")
	setString(&cfg.Logging.Format, "QUICKGIG_LOG_FORMAT")
	setString(&cfg.Auth.JWTSecret, "QUICKGIG_JWT_SECRET")
	setString(&cfg.Push.Endpoint, "QUICKGIG_PUSH_ENDPOINT")
	setString(&cfg.Push.APIKey, "QUICKGIG_PUSH_API_KEY")
	setInt(&cfg.Notifications.RetentionDays, "QUICKGIG_NOTIFICATION_RETENTION_DAYS")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}
