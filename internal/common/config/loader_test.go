// internal/common/config/loader_test.go
package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "gemini-2.0-flash", cfg.APIs.GenAI.Model)
	assert.Equal(t, "api", cfg.Sources.Cases)

	assert.Equal(t, 5, cfg.Scoring.BatchSize)
	assert.Equal(t, 3, cfg.Scoring.MaxRetries)
	assert.Equal(t, 3, cfg.Scoring.ParallelThreshold)
	assert.Equal(t, 4, cfg.Scoring.PoolSize)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	var cfg Config
	cfg.Scoring.BatchSize = 8
	cfg.Server.Port = 9090
	applyDefaults(&cfg)

	assert.Equal(t, 8, cfg.Scoring.BatchSize)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateConfig_SourceSwitch(t *testing.T) {
	var cfg Config
	applyDefaults(&cfg)
	cfg.APIs.Fox.BaseURL = "https://fox.example.com"
	require.NoError(t, validateConfig(&cfg))

	cfg.Sources.Cases = "postgres"
	require.NoError(t, validateConfig(&cfg))

	cfg.Sources.Cases = "csv"
	assert.Error(t, validateConfig(&cfg))
}
