package config // package config loads application configuration from environment variables

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Lock store backends selectable through LOCK_STORE.
const (
	LockStoreMySQL = "mysql"
	LockStoreRedis = "redis"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env       string // application environment (e.g. "dev", "prod")
	Port      string // HTTP port to listen on
	DBUser    string // database username
	DBPass    string // database password (optional)
	DBHost    string // database host address
	DBPort    string // database port number
	DBName    string // database name
	JWTSecret string // secret used to verify JWTs
	LogLevel  string // debug, info, warn or error
	LockStore string // mysql (default) or redis
	// RabbitMQURL enables booking event publishing and the payment consumer
	// when non-empty.
	RabbitMQURL string
	// WebhookTokenHash is the bcrypt hash of the shared token payment
	// providers send in X-Webhook-Token.  Empty disables the webhook.
	WebhookTokenHash string
	AutoMigrate      bool // create tables on startup
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:              must("APP_ENV"),
		Port:             must("APP_PORT"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"),
		DBHost:           must("DB_HOST"),
		DBPort:           must("DB_PORT"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		LockStore:        lockStore(envStr("LOCK_STORE", LockStoreMySQL)),
		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		WebhookTokenHash: os.Getenv("PAYMENT_WEBHOOK_TOKEN_HASH"),
		AutoMigrate:      envBool("DB_AUTO_MIGRATE", true),
	}
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named) without overriding variables already set.  Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func lockStore(v string) string {
	switch strings.ToLower(v) {
	case LockStoreRedis:
		return LockStoreRedis
	case LockStoreMySQL:
		return LockStoreMySQL
	}
	log.Fatalf("invalid LOCK_STORE %q (want mysql or redis)", v)
	return ""
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}
