package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIPort string

	GraderMode        string // "mock" or "http"
	GraderURL         string
	GraderAPIKey      string
	GraderTimeout     time.Duration
	MockGraderLatency time.Duration

	MaxConcurrentGrading  int
	GradingMaxRetries     int
	GradingRetryBaseDelay time.Duration
	GradingRetryMaxDelay  time.Duration

	JobRetention           time.Duration // 0 keeps jobs for the process lifetime
	RetentionSweepInterval time.Duration

	ArchiveDriver string // "none", "pgx" or "sqlite3"
	ArchiveDSN    string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	RedisAddr        string // empty disables job events
	RedisPassword    string
	RedisDB          int
	JobEventsChannel string
	JobStatusTTL     time.Duration

	LogMode     string
	LogLevel    string
	OTelEnabled bool
}

var AppConfig *Config

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	AppConfig = FromEnv()
	return AppConfig
}

// FromEnv reads the configuration from the process environment only.
func FromEnv() *Config {
	cfg := &Config{
		APIPort:                getEnv("API_PORT", "8080"),
		GraderMode:             getEnv("GRADER_MODE", "mock"),
		GraderURL:              getEnv("GRADER_URL", ""),
		GraderAPIKey:           getEnv("GRADER_API_KEY", ""),
		GraderTimeout:          getEnvAsDuration("GRADER_TIMEOUT", 60*time.Second),
		MockGraderLatency:      getEnvAsDuration("MOCK_GRADER_LATENCY", 500*time.Millisecond),
		MaxConcurrentGrading:   getEnvAsInt("MAX_CONCURRENT_GRADING", 5),
		GradingMaxRetries:      getEnvAsInt("GRADING_MAX_RETRIES", 3),
		GradingRetryBaseDelay:  getEnvAsDuration("GRADING_RETRY_BASE_DELAY", time.Second),
		GradingRetryMaxDelay:   getEnvAsDuration("GRADING_RETRY_MAX_DELAY", 30*time.Second),
		JobRetention:           getEnvAsDuration("JOB_RETENTION", 0),
		RetentionSweepInterval: getEnvAsDuration("RETENTION_SWEEP_INTERVAL", 5*time.Minute),
		ArchiveDriver:          getEnv("ARCHIVE_DRIVER", "none"),
		ArchiveDSN:             getEnv("ARCHIVE_DSN", ""),
		DBHost:                 getEnv("DB_HOST", "localhost"),
		DBPort:                 getEnv("DB_PORT", "5432"),
		DBUser:                 getEnv("DB_USER", "user"),
		DBPassword:             getEnv("DB_PASSWORD", "password"),
		DBName:                 getEnv("DB_NAME", "grading_db"),
		DBSslMode:              getEnv("DB_SSLMODE", "disable"),
		RedisAddr:              getEnv("REDIS_ADDR", ""),
		RedisPassword:          getEnv("REDIS_PASSWORD", ""),
		RedisDB:                getEnvAsInt("REDIS_DB", 0),
		JobEventsChannel:       getEnv("JOB_EVENTS_CHANNEL", "grading_job_events"),
		JobStatusTTL:           getEnvAsDuration("JOB_STATUS_TTL", 24*time.Hour),
		LogMode:                getEnv("LOG_MODE", "text"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		OTelEnabled:            getEnvAsBool("OTEL_ENABLED", false),
	}

	if strings.EqualFold(cfg.LogMode, "otel") && !cfg.OTelEnabled {
		log.Println("WARN: LOG_MODE=otel needs OTEL_ENABLED=true, falling back to text logs")
		cfg.LogMode = "text"
	}

	if cfg.ArchiveDriver == "pgx" && cfg.ArchiveDSN == "" {
		cfg.ArchiveDSN = "host=" + cfg.DBHost +
			" port=" + cfg.DBPort +
			" user=" + cfg.DBUser +
			" password=" + cfg.DBPassword +
			" dbname=" + cfg.DBName +
			" sslmode=" + cfg.DBSslMode
	}
	return cfg
}

// getEnv treats an empty value the same as an unset one.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("WARN: invalid duration %q for %s, using %s", valueStr, key, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
