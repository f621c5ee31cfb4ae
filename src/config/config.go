package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	SettingsPath string
	BackupDir    string
	LogLevel     string

	// Security settings
	JWTSecret         string
	SessionExpiry     time.Duration
	PasscodeHash      string
	MaxImportBytes    int64

	// Write queue / connection behavior
	WriteQueueCapacity  int
	DBConnectRetries    int
	DBConnectRetryDelay time.Duration
	ShutdownDrainWait   time.Duration
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found. Relying on OS environment variables.")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getRequiredEnv("JWT_SECRET")

	maxImportBytesStr := getEnv("MAX_IMPORT_BYTES", "10485760") // 10MB default
	maxImportBytes, err := strconv.ParseInt(maxImportBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_IMPORT_BYTES format '%s'. Using default 10MB. Error: %v", maxImportBytesStr, err)
		maxImportBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8202"),
		DatabasePath: getEnv("DATABASE_PATH", "./habios.db"),
		SettingsPath: getEnv("SETTINGS_PATH", "./habios-settings.json"),
		BackupDir:    getEnv("BACKUP_DIR", "./backups"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		JWTSecret:      jwtSecret,
		SessionExpiry:  getEnvAsDuration("SESSION_EXPIRY", 12*time.Hour),
		PasscodeHash:   getEnv("PASSCODE_HASH", ""),
		MaxImportBytes: maxImportBytes,

		WriteQueueCapacity:  getEnvAsInt("WRITE_QUEUE_CAPACITY", 1000),
		DBConnectRetries:    getEnvAsInt("DB_CONNECT_RETRIES", 5),
		DBConnectRetryDelay: getEnvAsDuration("DB_CONNECT_RETRY_DELAY", 500*time.Millisecond),
		ShutdownDrainWait:   getEnvAsDuration("SHUTDOWN_DRAIN_TIMEOUT", 10*time.Second),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath)
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getRequiredEnv retrieves an environment variable or terminates the application if not set.
func getRequiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || strings.TrimSpace(value) == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set or is empty. Application cannot start securely.", key)
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
