package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// SMS configuration
	SMS SMSConfig

	// Reminder dispatch configuration
	Reminder ReminderConfig

	// Ledger mutation configuration
	Ledger LedgerConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" logs messages, "production" sends through the HTTP gateway
	APIURL   string
	Username string
	Password string
	SenderID string
	Timeout  time.Duration
}

// ReminderConfig bounds the bulk notification batcher
type ReminderConfig struct {
	Workers      int
	MaxAttempts  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	MaxBatchSize int
}

// LedgerConfig holds payment mutation settings
type LedgerConfig struct {
	MaxConflictRetries int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds the configuration from the current environment without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			APIURL:   getEnv("SMS_API_URL", ""),
			Username: getEnv("SMS_USERNAME", ""),
			Password: getEnv("SMS_PASSWORD", ""),
			SenderID: getEnv("SMS_SENDER_ID", "TOURDK"),
			Timeout:  time.Duration(getEnvAsInt("SMS_TIMEOUT_SECONDS", 10)) * time.Second,
		},
		Reminder: ReminderConfig{
			Workers:      getEnvAsInt("REMINDER_WORKERS", 8),
			MaxAttempts:  getEnvAsInt("REMINDER_MAX_ATTEMPTS", 3),
			BaseBackoff:  getEnvAsDuration("REMINDER_BASE_BACKOFF_MS", 200*time.Millisecond),
			MaxBackoff:   getEnvAsDuration("REMINDER_MAX_BACKOFF_MS", 5*time.Second),
			MaxBatchSize: getEnvAsInt("REMINDER_MAX_BATCH", 500),
		},
		Ledger: LedgerConfig{
			MaxConflictRetries: getEnvAsInt("LEDGER_MAX_CONFLICT_RETRIES", 3),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	switch c.SMS.Mode {
	case "dev":
	case "production":
		if c.SMS.APIURL == "" {
			return fmt.Errorf("SMS_API_URL is required in production mode")
		}
		if c.SMS.Username == "" {
			return fmt.Errorf("SMS_USERNAME is required in production mode")
		}
		if c.SMS.Password == "" {
			return fmt.Errorf("SMS_PASSWORD is required in production mode")
		}
	default:
		return fmt.Errorf("invalid SMS_MODE: %s (must be 'dev' or 'production')", c.SMS.Mode)
	}

	if c.Reminder.Workers < 1 {
		return fmt.Errorf("REMINDER_WORKERS must be at least 1")
	}
	if c.Reminder.MaxAttempts < 1 {
		return fmt.Errorf("REMINDER_MAX_ATTEMPTS must be at least 1")
	}
	if c.Reminder.MaxBatchSize < 1 {
		return fmt.Errorf("REMINDER_MAX_BATCH must be at least 1")
	}
	if c.Reminder.MaxBackoff < c.Reminder.BaseBackoff {
		return fmt.Errorf("REMINDER_MAX_BACKOFF_MS must not be below REMINDER_BASE_BACKOFF_MS")
	}
	if c.Ledger.MaxConflictRetries < 0 {
		return fmt.Errorf("LEDGER_MAX_CONFLICT_RETRIES must not be negative")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration reads a millisecond count
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	ms, err := strconv.Atoi(valueStr)
	if err != nil || ms < 0 {
		log.Printf("Invalid millisecond value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return time.Duration(ms) * time.Millisecond
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
