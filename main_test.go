package main

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfigPerNodeModels(t *testing.T) {
	t.Setenv("MODEL", "claude-sonnet-4-5")
	t.Setenv("PLANNER_MODEL", "gemini-2.5-flash")
	t.Setenv("WRITER_MAX_TOKENS", "4096")

	var cfg AppConfig
	require.NoError(t, envconfig.Process("", &cfg))

	assert.Equal(t, "gemini-2.5-flash", cfg.Planner.Model)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Optimiser.Model)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Reviewer.Model)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Writer.Model)
	assert.Equal(t, 4096, cfg.Writer.MaxTokens)
	assert.Equal(t, 1024, cfg.Planner.MaxTokens)
}

func TestAppConfigDefaults(t *testing.T) {
	var cfg AppConfig
	require.NoError(t, envconfig.Process("", &cfg))

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Planner.Model)
	assert.InDelta(t, 0.3, cfg.Reviewer.Temperature, 1e-6)
	assert.Equal(t, 40, cfg.Engine.MaxSteps)
	assert.Equal(t, 500*time.Millisecond, cfg.LLM.Backoff)
}
