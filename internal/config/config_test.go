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

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "workout-completions", cfg.Kafka.Topic)
	assert.Equal(t, "gamification-events", cfg.Kafka.EventsTopic)
	assert.Equal(t, []int{7, 30, 100}, cfg.Gamification.Milestones)
	assert.Equal(t, int64(500), cfg.Gamification.MilestoneBonus[30])
	assert.True(t, cfg.Reconcile.Enabled)

	loc, err := cfg.Gamification.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("GAMIFICATION_DB_PASSWORD", "hunter2")
	path := writeConfig(t, `
server:
  port: 9090
storage:
  driver: memory
postgres:
  password: ${GAMIFICATION_DB_PASSWORD}
gamification:
  timezone: America/New_York
  milestones: [3, 7]
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, []int{3, 7}, cfg.Gamification.Milestones)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "storage:\n  driver: sqlite\n"},
		{"bad timezone", "gamification:\n  timezone: Mars/Olympus\n"},
		{"bad currency", "gamification:\n  rank_currency: Lax-Credit\n"},
		{"jwt without secret", "auth:\n  mode: jwt\n"},
		{"leaderboard max below default", "gamification:\n  leaderboard_limit: 50\n  leaderboard_max: 20\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
