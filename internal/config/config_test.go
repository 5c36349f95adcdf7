package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("NATS_URL", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Empty(t, cfg.App.NatsURL)
	assert.Equal(t, 2000, cfg.Pipeline.MaxTokensPerChunk)
	assert.Equal(t, 12000, cfg.Pipeline.MaxSourceChars)
	assert.Equal(t, 180*time.Second, cfg.Pipeline.NotesTimeout)
	assert.Equal(t, 0.6, cfg.Pipeline.MinAlphaRatio)
	assert.Equal(t, 4, cfg.Pipeline.JobWorkers)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_DURATION", "2m")
	t.Setenv("T_SECONDS", "45")
	t.Setenv("T_BAD", "soon")
	t.Setenv("T_FLOAT", "0.25")
	t.Setenv("T_BOOL", "true")

	assert.Equal(t, 2*time.Minute, getEnvAsDuration("T_DURATION", time.Second))
	assert.Equal(t, 45*time.Second, getEnvAsDuration("T_SECONDS", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("T_BAD", time.Second))
	assert.Equal(t, time.Second, getEnvAsDuration("T_UNSET_DURATION", time.Second))
	assert.Equal(t, 0.25, getEnvAsFloat("T_FLOAT", 1))
	assert.True(t, getEnvAsBool("T_BOOL", false))
	assert.Equal(t, 7, getEnvAsInt("T_BAD", 7))
}
