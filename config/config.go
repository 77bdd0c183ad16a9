package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	DBMaxOpenConns   int
	DBConnectRetries int
	// TxTimeout bounds every enrollment transaction.
	TxTimeout time.Duration

	JWTSecret string
	JWTExpiry int // в часах

	RedisAddr      string // пусто = без кэша
	RosterCacheTTL time.Duration

	LogLevel  string
	LogFormat string

	SeedAdmin     bool
	AdminPassword string
}

// Load reads the environment, after applying a .env file when one exists.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnvAsInt("DB_PORT", 5432),
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBName:           getEnv("DB_NAME", "student_grades"),
		DBSSLMode:        getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns:   getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
		DBConnectRetries: getEnvAsInt("DB_CONNECT_RETRIES", 5),
		TxTimeout:        getEnvAsDuration("TX_TIMEOUT", 10*time.Second),
		JWTSecret:        getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTExpiry:        getEnvAsInt("JWT_EXPIRY", 24),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RosterCacheTTL:   getEnvAsDuration("ROSTER_CACHE_TTL", 5*time.Minute),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		SeedAdmin:        getEnvAsBool("SEED_ADMIN", false),
		AdminPassword:    getEnv("ADMIN_PASSWORD", "admin123"),
	}
}

// PostgresDSN builds the key/value connection string understood by both
// lib/pq and pgx.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
