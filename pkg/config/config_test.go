package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunkerwars/engine/pkg/config"
	"github.com/bunkerwars/engine/pkg/ledger"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":3000", cfg.Engine.Addr)
	assert.Equal(t, "./data", cfg.Engine.DataDir)
	assert.Equal(t, ledger.DefaultRules(), cfg.Rules())
	assert.Equal(t, "@every 2s", cfg.Scheduler.Spec)
	assert.Equal(t, 100*cfg.Game.EmissionPerRound, cfg.Reserve.Initial)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  addr: ":9000"
game:
  round_duration: 5m
  min_join: 50
reserve:
  initial: 777
`), 0o644))

	t.Setenv("GAME_MIN_JOIN", "2000")
	t.Setenv("ADDR", ":8080")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8080", cfg.Engine.Addr, "env wins over file")
	assert.Equal(t, 5*time.Minute, cfg.Game.RoundDuration, "file wins over default")
	assert.Equal(t, uint64(2000), cfg.Game.MinJoin)
	assert.Equal(t, uint64(777), cfg.Reserve.Initial)
	assert.Equal(t, uint32(3), cfg.Game.GraceFactor, "untouched fields default")
}

func TestLoad_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("game: [not a map"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestValidate_RejectsBadParameters(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*config.Config)
	}{
		{"zero duration", func(c *config.Config) { c.Game.RoundDuration = 0 }},
		{"zero grace", func(c *config.Config) { c.Game.GraceFactor = 0 }},
		{"zero min join", func(c *config.Config) { c.Game.MinJoin = 0 }},
		{"emission over ceiling", func(c *config.Config) { c.Game.EmissionPerRound = ledger.MaxAmount + 1 }},
		{"zero cleanup batch", func(c *config.Config) { c.Game.MaxCleanupBatch = 0 }},
		{"empty action tag", func(c *config.Config) { c.Game.ActionTag = "" }},
		{"reserve over ceiling", func(c *config.Config) { c.Reserve.Initial = ledger.MaxAmount + 1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
			require.NoError(t, err)
			tc.mut(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
