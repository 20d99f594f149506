package config

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"GRADER_TIMEOUT", "GRADING_MAX_RETRIES", "JOB_EVENTS_CHANNEL", "JOB_STATUS_TTL", "MAX_CONCURRENT_GRADING", "JOB_RETENTION"} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()

	assert.Equal(t, cfg.GraderTimeout, 60*time.Second)
	assert.Equal(t, cfg.GradingMaxRetries, 3)
	assert.Equal(t, cfg.JobEventsChannel, "grading_job_events")
	assert.Equal(t, cfg.JobStatusTTL, 24*time.Hour)
	assert.Equal(t, cfg.MaxConcurrentGrading, 5)
	assert.Equal(t, cfg.JobRetention, time.Duration(0))
}

func TestEmptyValueFallsBackToDefault(t *testing.T) {
	t.Setenv("JOB_EVENTS_CHANNEL", "")
	t.Setenv("API_PORT", "")
	t.Setenv("GRADER_MODE", "")

	cfg := FromEnv()
	assert.Equal(t, cfg.JobEventsChannel, "grading_job_events")
	assert.Equal(t, cfg.APIPort, "8080")
	assert.Equal(t, cfg.GraderMode, "mock")
}

func TestOTelLogModeRequiresSDK(t *testing.T) {
	t.Setenv("LOG_MODE", "otel")
	t.Setenv("OTEL_ENABLED", "false")
	assert.Equal(t, FromEnv().LogMode, "text")

	t.Setenv("OTEL_ENABLED", "true")
	assert.Equal(t, FromEnv().LogMode, "otel")
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_GRADING", "12")
	t.Setenv("GRADER_TIMEOUT", "15s")
	t.Setenv("GRADING_RETRY_BASE_DELAY", "2")
	t.Setenv("JOB_RETENTION", "bogus")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("ARCHIVE_DRIVER", "pgx")
	t.Setenv("ARCHIVE_DSN", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "user")
	t.Setenv("DB_PASSWORD", "password")
	t.Setenv("DB_NAME", "grades")
	t.Setenv("DB_SSLMODE", "disable")

	cfg := FromEnv()
	assert.Equal(t, cfg.MaxConcurrentGrading, 12)
	assert.Equal(t, cfg.GraderTimeout, 15*time.Second)
	assert.Equal(t, cfg.GradingRetryBaseDelay, 2*time.Second)
	assert.Equal(t, cfg.JobRetention, time.Duration(0))
	assert.Assert(t, cfg.OTelEnabled)
	assert.Equal(t, cfg.ArchiveDSN, "host=db port=5432 user=user password=password dbname=grades sslmode=disable")
}
