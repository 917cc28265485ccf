package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"party-arena/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("ADMIN_TOKEN", "s3cret")
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	t.Setenv("RATE_LIMIT_RPS", "-4")

	cfg := ServerFromEnv()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, DefaultServer().ShutdownTimeout, cfg.ShutdownTimeout, "invalid durations keep the default")
	assert.Equal(t, DefaultServer().RequestsPerSec, cfg.RequestsPerSec, "non-positive rates keep the default")
}

func TestRoomFromEnv(t *testing.T) {
	t.Setenv("TICK_RATE", "60")
	t.Setenv("COUNTDOWN_SECONDS", "0")
	t.Setenv("CHAIN_ROOMS", "false")
	t.Setenv("SUCCESSOR_TIMEOUT", "2s")

	cfg := RoomFromEnv()
	assert.Equal(t, 60, cfg.TickRate)
	assert.Zero(t, cfg.CountdownSeconds, "zero countdown is a valid override")
	assert.False(t, cfg.Chain)
	assert.Equal(t, 2*time.Second, cfg.SuccessorTimeout)
	assert.Equal(t, DefaultRoom().IdleGraceSeconds, cfg.IdleGraceSeconds)
}

func TestPersistenceFromEnv(t *testing.T) {
	t.Setenv("SQLITE_PATH", "")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")

	cfg := PersistenceFromEnv()
	assert.Empty(t, cfg.SQLitePath, "an explicitly empty path disables SQLite")
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "events.jsonl", cfg.JournalPath)
}

func TestLoadTuningDefaults(t *testing.T) {
	tuning, err := LoadTuning("")
	require.NoError(t, err)
	assert.Equal(t, DefaultTuningFile(), tuning)
}

func TestLoadTuningOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "modes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modes:
  harvest:
    cols: 6
    matchSeconds: 60
  soccer:
    goalsToWin: 5
hazards:
  maxActive: 8
physics:
  friction: 0.85
`), 0o644))

	tuning, err := LoadTuning(path)
	require.NoError(t, err)

	assert.Equal(t, 6, tuning.Modes.Harvest.Cols)
	assert.Equal(t, 60.0, tuning.Modes.Harvest.MatchSeconds)
	assert.Equal(t, game.DefaultHarvest().Rows, tuning.Modes.Harvest.Rows, "omitted keys keep defaults")
	assert.Equal(t, 5, tuning.Modes.Soccer.GoalsToWin)
	assert.Equal(t, 8, tuning.Hazards.MaxActive)
	assert.Equal(t, 0.85, tuning.Physics.Friction)
	assert.Equal(t, game.DefaultDynamite(), tuning.Modes.Dynamite)
}

func TestLoadTuningRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "modes:\n  harvest:\n    colz: 6\n"},
		{"bad player bounds", "modes:\n  dynamite:\n    minPlayers: 5\n    maxPlayers: 3\n"},
		{"bad friction", "physics:\n  friction: 1.5\n"},
		{"not yaml", "modes: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "modes.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			tuning, err := LoadTuning(path)
			assert.Error(t, err)
			assert.Equal(t, DefaultTuningFile(), tuning, "errors fall back to defaults")
		})
	}

	_, err := LoadTuning(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestGameRoomConfig(t *testing.T) {
	cfg := AppConfig{
		Room:   DefaultRoom(),
		Tuning: DefaultTuningFile(),
	}
	cfg.Room.MaxHazards = 5
	cfg.Tuning.Physics.Friction = 0.8

	rc := cfg.GameRoomConfig()
	assert.Equal(t, 5, rc.Hazards.MaxActive)
	assert.Equal(t, 0.8, rc.Physics.Friction)
	assert.Equal(t, game.DefaultRoomConfig().TickRate, rc.TickRate)
	assert.Equal(t, game.DefaultHazards().ShrinkStep, rc.Hazards.ShrinkStep)
}
