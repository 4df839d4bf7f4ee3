// Package config loads rules.yaml and applies environment overrides. Every
// field has a default; a missing file yields a fully usable dev config.
// Secrets never live in the file, only in the environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/utils"
)

type Config struct {
	Engine struct {
		DataDir string `yaml:"data_dir"`
		Addr    string `yaml:"addr"`
		DevMode bool   `yaml:"dev_mode"`
	} `yaml:"engine"`
	Game struct {
		RoundDuration    time.Duration `yaml:"round_duration"`
		GraceFactor      uint32        `yaml:"grace_factor"`
		MinJoin          uint64        `yaml:"min_join"`
		EmissionPerRound uint64        `yaml:"emission_per_round"`
		ActionTag        string        `yaml:"action_tag"`
		MaxCleanupBatch  int           `yaml:"max_cleanup_batch"`
	} `yaml:"game"`
	Scheduler struct {
		Spec     string `yaml:"spec"`
		AutoOpen bool   `yaml:"auto_open"`
	} `yaml:"scheduler"`
	Reserve struct {
		Initial uint64 `yaml:"initial"`
	} `yaml:"reserve"`
	Proofs struct {
		Secret    string   `yaml:"secret"`
		Endpoints []string `yaml:"endpoints"`
	} `yaml:"proofs"`
}

// Load reads the YAML file at path (or ENGINE_CONFIG when path is empty),
// then applies environment overrides and defaults. A missing file is fine.
func Load(path string) (*Config, error) {
	if path == "" {
		path = utils.Env("ENGINE_CONFIG", "rules.yaml")
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENGINE_DATA_DIR"); v != "" {
		c.Engine.DataDir = v
	}
	if v := os.Getenv("ADDR"); v != "" {
		c.Engine.Addr = v
	}
	if v := os.Getenv("ENGINE_DEV_MODE"); v == "true" || v == "1" {
		c.Engine.DevMode = true
	}
	if v := os.Getenv("GAME_ROUND_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Game.RoundDuration = d
		}
	}
	if v := utils.EnvInt("GAME_GRACE_FACTOR", 0); v > 0 {
		c.Game.GraceFactor = uint32(v)
	}
	if v := utils.EnvUint64("GAME_MIN_JOIN", 0); v > 0 {
		c.Game.MinJoin = v
	}
	if v := utils.EnvUint64("GAME_EMISSION_PER_ROUND", 0); v > 0 {
		c.Game.EmissionPerRound = v
	}
	if v := os.Getenv("GAME_ACTION_TAG"); v != "" {
		c.Game.ActionTag = v
	}
	if v := utils.EnvInt("GAME_MAX_CLEANUP_BATCH", 0); v > 0 {
		c.Game.MaxCleanupBatch = v
	}
	if v := os.Getenv("CRON_SPEC"); v != "" {
		c.Scheduler.Spec = v
	}
	if v := os.Getenv("SCHEDULER_AUTO_OPEN"); v == "true" || v == "1" {
		c.Scheduler.AutoOpen = true
	}
	if v := utils.EnvUint64("RESERVE_INITIAL", 0); v > 0 {
		c.Reserve.Initial = v
	}
	if v := os.Getenv("PROOF_SECRET"); v != "" {
		c.Proofs.Secret = v
	}
}

func (c *Config) applyDefaults() {
	if c.Engine.DataDir == "" {
		c.Engine.DataDir = "./data"
	}
	if c.Engine.Addr == "" {
		c.Engine.Addr = ":3000"
	}
	def := ledger.DefaultRules()
	if c.Game.RoundDuration == 0 {
		c.Game.RoundDuration = def.RoundDuration
	}
	if c.Game.GraceFactor == 0 {
		c.Game.GraceFactor = def.GraceFactor
	}
	if c.Game.MinJoin == 0 {
		c.Game.MinJoin = def.MinJoin
	}
	if c.Game.EmissionPerRound == 0 {
		c.Game.EmissionPerRound = def.EmissionPerRound
	}
	if c.Game.ActionTag == "" {
		c.Game.ActionTag = def.ActionTag
	}
	if c.Game.MaxCleanupBatch == 0 {
		c.Game.MaxCleanupBatch = def.MaxCleanupBatch
	}
	if c.Scheduler.Spec == "" {
		c.Scheduler.Spec = "@every 2s"
	}
	if c.Reserve.Initial == 0 {
		c.Reserve.Initial = 100 * c.Game.EmissionPerRound
	}
}

// Validate rejects parameter combinations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Game.RoundDuration <= 0 {
		return fmt.Errorf("game.round_duration must be positive")
	}
	if c.Game.GraceFactor < 1 {
		return fmt.Errorf("game.grace_factor must be at least 1")
	}
	if c.Game.MinJoin == 0 {
		return fmt.Errorf("game.min_join must be positive")
	}
	if c.Game.EmissionPerRound > ledger.MaxAmount {
		return fmt.Errorf("game.emission_per_round exceeds the amount ceiling")
	}
	if c.Game.MaxCleanupBatch < 1 {
		return fmt.Errorf("game.max_cleanup_batch must be at least 1")
	}
	if c.Game.ActionTag == "" {
		return fmt.Errorf("game.action_tag is required")
	}
	if c.Reserve.Initial > ledger.MaxAmount {
		return fmt.Errorf("reserve.initial exceeds the amount ceiling")
	}
	return nil
}

// Rules converts the game section into the engine's parameter block.
func (c *Config) Rules() ledger.Rules {
	return ledger.Rules{
		RoundDuration:    c.Game.RoundDuration,
		GraceFactor:      c.Game.GraceFactor,
		MinJoin:          c.Game.MinJoin,
		EmissionPerRound: c.Game.EmissionPerRound,
		ActionTag:        c.Game.ActionTag,
		MaxCleanupBatch:  c.Game.MaxCleanupBatch,
	}
}
