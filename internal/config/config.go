package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultJWTSecret is only fit for local development.
const DefaultJWTSecret = "your-secret-key-change-in-production"

var ErrDefaultJWTSecret = errors.New("JWT_SECRET must be set when LOG_MODE is production")

// Config holds settings for the profile service (cmd/server).
type Config struct {
	ServerAddress string
	LogMode       string
	JWTSecret     string
	JWTExpiration time.Duration

	// ProfileStore selects the backing store: "sqlite", "postgres" or "mongo".
	ProfileStore string
	SQLitePath   string
	DatabaseURL  string
	MongoURI     string
	MongoDB      string

	// RedisURL enables the shared session revocation list when set.
	RedisURL string

	FirebaseProjectID       string
	FirebaseCredentialsJSON string

	SendGridAPIKey   string
	SupportFromEmail string
	SupportToEmail   string

	RequestTimeout time.Duration
}

// ClientConfig holds settings for the kisanctl shell.
type ClientConfig struct {
	ServerURL       string
	DataDir         string
	DefaultLanguage string
	LogMode         string
	RequestTimeout  time.Duration
}

func Load() *Config {
	loadDotEnv()
	return &Config{
		ServerAddress:           getEnv("SERVER_ADDRESS", ":8080"),
		LogMode:                 getEnv("LOG_MODE", "development"),
		JWTSecret:               getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiration:           getDuration("JWT_EXPIRATION", 24*time.Hour),
		ProfileStore:            strings.ToLower(getEnv("PROFILE_STORE", "sqlite")),
		SQLitePath:              getEnv("SQLITE_PATH", "kisanai.db"),
		DatabaseURL:             getEnv("DATABASE_URL", ""),
		MongoURI:                getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:                 getEnv("MONGO_DB", "kisanai"),
		RedisURL:                getEnv("REDIS_URL", ""),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsJSON: getEnv("FIREBASE_CREDENTIALS_JSON", ""),
		SendGridAPIKey:          getEnv("SENDGRID_API_KEY", ""),
		SupportFromEmail:        getEnv("SUPPORT_FROM_EMAIL", ""),
		SupportToEmail:          getEnv("SUPPORT_TO_EMAIL", ""),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

// UsesDefaultJWTSecret reports whether tokens would be signed with the
// built-in secret.
func (c *Config) UsesDefaultJWTSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

// Validate refuses settings a production server must not start with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogMode) {
	case "prod", "production":
		if c.UsesDefaultJWTSecret() {
			return ErrDefaultJWTSecret
		}
	}
	return nil
}

func LoadClient() *ClientConfig {
	loadDotEnv()
	return &ClientConfig{
		ServerURL:       strings.TrimRight(getEnv("KISANAI_SERVER_URL", "http://localhost:8080"), "/"),
		DataDir:         getEnv("KISANAI_DATA_DIR", defaultDataDir()),
		DefaultLanguage: getEnv("KISANAI_DEFAULT_LANGUAGE", "en"),
		LogMode:         getEnv("KISANAI_LOG_MODE", "silent"),
		RequestTimeout:  getDuration("KISANAI_REQUEST_TIMEOUT", 15*time.Second),
	}
}

// loadDotEnv reads .env when present; a missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir + string(os.PathSeparator) + "kisanai"
	}
	return ".kisanai"
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	// Bare integers are seconds.
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
