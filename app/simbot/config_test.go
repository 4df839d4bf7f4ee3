package simbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestLoadConfig_Defaults tests the out-of-the-box setup against a dev
// engine.
func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Targets)
	assert.Equal(t, 8, cfg.Players)
	assert.Equal(t, 2*time.Second, cfg.Tick)
	assert.True(t, cfg.Drive)
	assert.Equal(t, uint64(100_000), cfg.Fund)
	assert.Zero(t, cfg.MalformedRate)
	assert.Equal(t, "bunkerwars/act/v1", cfg.ActionTag)
	assert.Equal(t, "admin", cfg.AdminUser)
	assert.Equal(t, "oracle", cfg.OracleUser)
}

// TestLoadConfig_Env tests the environment overrides, including target list
// parsing with stray whitespace.
func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SIMBOT_TARGET", " http://a:3000 , http://b:3000,")
	t.Setenv("SIMBOT_PLAYERS", "32")
	t.Setenv("SIMBOT_TICK", "250ms")
	t.Setenv("SIMBOT_ROUNDS", "5")
	t.Setenv("SIMBOT_SEED", "1234")
	t.Setenv("SIMBOT_MALFORMED_RATE", "15")
	t.Setenv("SIMBOT_DRIVE", "false")
	t.Setenv("PROOF_SECRET", "shared-with-engine")

	cfg := LoadConfig()

	assert.Equal(t, []string{"http://a:3000", "http://b:3000"}, cfg.Targets)
	assert.Equal(t, 32, cfg.Players)
	assert.Equal(t, 250*time.Millisecond, cfg.Tick)
	assert.Equal(t, 5, cfg.Rounds)
	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, 15, cfg.MalformedRate)
	assert.False(t, cfg.Drive)
	assert.Equal(t, "shared-with-engine", cfg.ProofSecret)
}
