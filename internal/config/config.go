package config

import (
	"os"
	"strconv"
	"time"
)

// Store backends understood by repository.Open.
const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort  string
	APIPrefix   string
	LogLevel    string
	SwaggerHost string

	StoreBackend string
	JSONDBPath   string
	MySQLDSN     string
	RedisAddr    string
	RedisDB      int
	RedisPass    string
	UserCache    bool

	// JWTSecret may be empty, in which case a random key is generated at startup.
	JWTSecret      string
	TokenTTL       time.Duration
	PasswordHasher string

	SuperuserName     string
	SuperuserPassword string
	SuperuserEmail    string
}

// Load builds Config from environment with sensible defaults.
func Load() *Config {
	return &Config{
		ServerPort:  getEnv("SERVER_PORT", "8181"),
		APIPrefix:   getEnv("API_PREFIX", "/api/kytos/core"),
		LogLevel:    getEnv("LOG_LEVEL", "INFO"),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),

		StoreBackend: getEnv("STORE_BACKEND", BackendMemory),
		JSONDBPath:   getEnv("JSONDB_PATH", "./db"),
		MySQLDSN:     getEnv("MYSQL_DSN", "user:password@tcp(localhost:3306)/app?charset=utf8mb4&parseTime=True&loc=Local"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		UserCache:    getEnvBool("USER_CACHE", false),

		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       getEnvDuration("TOKEN_TTL", 180*time.Minute),
		PasswordHasher: getEnv("PASSWORD_HASHER", "argon2"),

		SuperuserName:     getEnv("SUPERUSER_NAME", "admin"),
		SuperuserPassword: os.Getenv("SUPERUSER_PASSWORD"),
		SuperuserEmail:    getEnv("SUPERUSER_EMAIL", "admin@localhost"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}
