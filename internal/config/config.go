// Package config reads application configuration from the environment,
// loading a local .env file first when one exists.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/wrenfield/starling/internal/backup"
)

// Config holds application configuration.
type Config struct {
	Port         string
	DatabasePath string
	LogLevel     string

	JWTSecret string
	TokenTTL  time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	ReminderHour    int

	SnapshotTTL time.Duration

	Backup backup.Config
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is applied first; a
// missing file is not an error.
func Load() *Config {
	_ = godotenv.Load()

	dbPath := getEnv("STARLING_DB_PATH", "starling.db")

	return &Config{
		Port:         getEnv("STARLING_PORT", "8080"),
		DatabasePath: dbPath,
		LogLevel:     getEnv("STARLING_LOG_LEVEL", "info"),

		JWTSecret: getEnv("STARLING_JWT_SECRET", ""),
		TokenTTL:  getDuration("STARLING_TOKEN_TTL", 30*24*time.Hour),

		VAPIDPublicKey:  getEnv("STARLING_VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("STARLING_VAPID_PRIVATE_KEY", ""),
		ReminderHour:    getInt("STARLING_REMINDER_HOUR", 16),

		SnapshotTTL: getDuration("STARLING_SNAPSHOT_TTL", 30*time.Second),

		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  getEnv("STARLING_S3_ENDPOINT", ""),
				Bucket:    getEnv("STARLING_S3_BUCKET", ""),
				Region:    getEnv("STARLING_S3_REGION", "auto"),
				AccessKey: getEnv("STARLING_S3_ACCESS_KEY", ""),
				SecretKey: getEnv("STARLING_S3_SECRET_KEY", ""),
			},
			DBPath:        dbPath,
			Passphrase:    getEnv("STARLING_BACKUP_PASSPHRASE", ""),
			ScheduleHour:  getInt("STARLING_BACKUP_HOUR", 3),
			RetentionDays: getInt("STARLING_BACKUP_RETENTION_DAYS", 30),
		},
	}
}

// getEnv reads an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
