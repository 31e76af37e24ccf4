package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  publicURL: http://quiz.local:9090
redis:
  addr: localhost:6379
  ttl: 30m
quiz:
  questionSet: finals
scoring:
  unansweredPenalty: 20
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://quiz.local:9090", cfg.Server.PublicURL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "finals", cfg.Quiz.QuestionSet)
	assert.Equal(t, "1h", cfg.Quiz.PlayerIdleTimeout)
	assert.Equal(t, 20, cfg.Scoring.UnansweredPenalty)
	assert.Equal(t, 40, cfg.Scoring.CorrectFloor)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadRejectsBrokenScoringCurve(t *testing.T) {
	path := writeConfig(t, `
scoring:
  partialMax: 60
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestTTLDuration(t *testing.T) {
	assert.Equal(t, 30*time.Minute, TTLDuration("30m", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("soon", time.Minute))
}
