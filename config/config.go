// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config carries everything the server and worker binaries need.
type Config struct {
	AppAddr        string        `mapstructure:"APP_ADDR"`
	AppEnv         string        `mapstructure:"APP_ENV"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	APILimitMax        int           `mapstructure:"API_LIMIT_MAX"`
	APILimitWindow     time.Duration `mapstructure:"API_LIMIT_WINDOW"`
	BookingLimitMax    int           `mapstructure:"BOOKING_LIMIT_MAX"`
	BookingLimitWindow time.Duration `mapstructure:"BOOKING_LIMIT_WINDOW"`
	LimitAlgorithm     string        `mapstructure:"LIMIT_ALGORITHM"`

	JobPollInterval time.Duration `mapstructure:"JOB_POLL_INTERVAL"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUser     string `mapstructure:"SMTP_USER"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`
	SMTPFromName string `mapstructure:"SMTP_FROM_NAME"`

	PushBaseURL string `mapstructure:"PUSH_BASE_URL"`
	PushAppID   string `mapstructure:"PUSH_APP_ID"`
	PushKey     string `mapstructure:"PUSH_KEY"`
	PushSecret  string `mapstructure:"PUSH_SECRET"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is merged in first when present.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, errors.New("config: failed to load .env")
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ADDR", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DB_HOST", "127.0.0.1")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "clinio")
	v.SetDefault("DB_NAME", "clinio")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("API_LIMIT_MAX", 100)
	v.SetDefault("API_LIMIT_WINDOW", "15m")
	v.SetDefault("BOOKING_LIMIT_MAX", 10)
	v.SetDefault("BOOKING_LIMIT_WINDOW", "1h")
	v.SetDefault("LIMIT_ALGORITHM", "fixed")
	v.SetDefault("JOB_POLL_INTERVAL", "1s")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM_NAME", "Clinio")

	keys := []string{
		"APP_ADDR", "APP_ENV", "LOG_LEVEL", "REQUEST_TIMEOUT",
		"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
		"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE",
		"API_LIMIT_MAX", "API_LIMIT_WINDOW",
		"BOOKING_LIMIT_MAX", "BOOKING_LIMIT_WINDOW", "LIMIT_ALGORITHM",
		"JOB_POLL_INTERVAL",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_FROM", "SMTP_FROM_NAME",
		"PUSH_BASE_URL", "PUSH_APP_ID", "PUSH_KEY", "PUSH_SECRET",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unable to decode: %w", err)
	}
	return &cfg, nil
}

// DSN returns the lib/pq connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// String renders the configuration with secrets masked.
func (c *Config) String() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  AppAddr: %s\n", c.AppAddr))
	sb.WriteString(fmt.Sprintf("  AppEnv: %s\n", c.AppEnv))
	sb.WriteString(fmt.Sprintf("  LogLevel: %s\n", c.LogLevel))
	sb.WriteString(fmt.Sprintf("  RequestTimeout: %s\n", c.RequestTimeout))
	sb.WriteString(fmt.Sprintf("  RedisAddr: %s\n", c.RedisAddr))
	sb.WriteString("  RedisPassword: " + mask(c.RedisPassword) + "\n")
	sb.WriteString(fmt.Sprintf("  RedisDB: %d\n", c.RedisDB))
	sb.WriteString(fmt.Sprintf("  DBHost: %s\n", c.DBHost))
	sb.WriteString(fmt.Sprintf("  DBPort: %d\n", c.DBPort))
	sb.WriteString(fmt.Sprintf("  DBUser: %s\n", c.DBUser))
	sb.WriteString("  DBPassword: " + mask(c.DBPassword) + "\n")
	sb.WriteString(fmt.Sprintf("  DBName: %s\n", c.DBName))
	sb.WriteString(fmt.Sprintf("  APILimit: %d per %s\n", c.APILimitMax, c.APILimitWindow))
	sb.WriteString(fmt.Sprintf("  BookingLimit: %d per %s\n", c.BookingLimitMax, c.BookingLimitWindow))
	sb.WriteString(fmt.Sprintf("  LimitAlgorithm: %s\n", c.LimitAlgorithm))
	sb.WriteString(fmt.Sprintf("  JobPollInterval: %s\n", c.JobPollInterval))
	sb.WriteString(fmt.Sprintf("  SMTPHost: %s:%d\n", c.SMTPHost, c.SMTPPort))
	sb.WriteString("  SMTPPassword: " + mask(c.SMTPPassword) + "\n")
	sb.WriteString(fmt.Sprintf("  PushBaseURL: %s\n", c.PushBaseURL))
	sb.WriteString("  PushSecret: " + mask(c.PushSecret) + "\n")
	return sb.String()
}

func mask(s string) string {
	if s == "" {
		return "(empty)"
	}
	return "********"
}
