package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	HTTPAddr             string
	DBDriver             string
	DatabaseURL          string
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	JWTSecret string

	AppEnv    string
	LogLevel  string
	LogPretty bool

	WorkerConcurrency     int
	WorkerPollInterval    time.Duration
	TaskVisibilityTimeout time.Duration

	ReminderSchedule  string
	PurgeSchedule     string
	ReconcileSchedule string
	RetentionDays     int
}

// Production reports whether the deployment runs in production mode.
// Purge and the daily reminder cadence are only active there.
func (c Config) Production() bool {
	return c.AppEnv == EnvProduction
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:             getenv("HTTP_ADDR", ":8080"),
		DBDriver:             strings.ToLower(getenv("DB_DRIVER", "postgres")),
		DatabaseURL:          getenv("DATABASE_URL", ""),
		CORSAllowCredentials: getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		JWTSecret:            getenv("JWT_SECRET", ""),
		AppEnv:               strings.ToLower(getenv("APP_ENV", "development")),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		LogPretty:            getenv("LOG_PRETTY", "false") == "true",
		PurgeSchedule:        getenv("PURGE_SCHEDULE", "0 2 * * *"),
		ReconcileSchedule:    getenv("RECONCILE_SCHEDULE", "@every 10m"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("missing env: DATABASE_URL")
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	defaultReminder := "@every 1m"
	if cfg.Production() {
		defaultReminder = "@midnight"
	}
	cfg.ReminderSchedule = getenv("REMINDER_SCHEDULE", defaultReminder)

	var err error
	if cfg.WorkerConcurrency, err = getenvInt("WORKER_CONCURRENCY", 1); err != nil {
		return cfg, err
	}
	if cfg.RetentionDays, err = getenvInt("RETENTION_DAYS", 30); err != nil {
		return cfg, err
	}
	if cfg.WorkerPollInterval, err = getenvDuration("WORKER_POLL_INTERVAL", 800*time.Millisecond); err != nil {
		return cfg, err
	}
	if cfg.TaskVisibilityTimeout, err = getenvDuration("TASK_VISIBILITY_TIMEOUT", 5*time.Minute); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) (int, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}
