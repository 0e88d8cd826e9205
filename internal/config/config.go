package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	DynamoDB  DynamoDBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Link      LinkConfig
	Sweep     SweepConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type RedisConfig struct {
	Endpoint string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret     string
	SessionCookie string
}

type LinkConfig struct {
	VerifyExpiry  time.Duration
	TelegramBot   string
	WhatsAppPhone string
	BotKeyHash    string
}

type SweepConfig struct {
	Enabled  bool
	Schedule string
}

type RateLimitConfig struct {
	StartMax    int
	StartWindow time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "us-east-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "NotilinkTable"),
		},
		Redis: RedisConfig{
			Endpoint: getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
			SessionCookie: getEnv("AUTH_SESSION_COOKIE", "session_token"),
		},
		Link: LinkConfig{
			VerifyExpiry:  getEnvAsDuration("LINK_VERIFY_EXPIRY", 5*time.Minute),
			TelegramBot:   getEnv("LINK_TELEGRAM_BOT", "notilink_bot"),
			WhatsAppPhone: getEnv("LINK_WHATSAPP_PHONE", ""),
			BotKeyHash:    getEnv("LINK_BOT_KEY_HASH", ""),
		},
		Sweep: SweepConfig{
			Enabled:  getEnvAsBool("SWEEP_ENABLED", false),
			Schedule: getEnv("SWEEP_SCHEDULE", "*/5 * * * *"),
		},
		RateLimit: RateLimitConfig{
			StartMax:    getEnvAsInt("RATE_LIMIT_START_MAX", 5),
			StartWindow: getEnvAsDuration("RATE_LIMIT_START_WINDOW", time.Minute),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET environment variable is required")
	}

	if len(cfg.Auth.JWTSecret) < 32 {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be at least 32 bytes (256 bits)")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
