package simbot

import (
	"strings"
	"time"

	"github.com/bunkerwars/engine/pkg/utils"
)

// Config is simbot's environment-driven setup. Credentials and the proof
// secret must match the engine under test; everything else shapes traffic.
type Config struct {
	// Targets are the engine base URLs, comma-separated in SIMBOT_TARGET.
	Targets []string
	// Players is the roster size.
	Players int
	// Workers caps concurrent bot moves per tick. Zero means one per player.
	Workers int
	// Tick is the pause between decision passes.
	Tick time.Duration
	// Rounds stops the run after that many resolved rounds. Zero runs until
	// the process is signalled. Only honored in drive mode.
	Rounds int
	// Seed makes the whole run reproducible. Zero picks a wall-clock seed.
	Seed int64
	// MalformedRate is the percentage of actions sent with a proof that
	// does not match the request body, to exercise binding rejections.
	MalformedRate int
	// Fund is the faucet credit per player at boot.
	Fund uint64
	// Drive makes simbot play oracle and admin too: open rounds, resolve
	// them with random totals, clean up the wreckage.
	Drive bool

	ActionTag   string
	ProofSecret string

	AdminUser  string
	AdminPass  string
	OracleUser string
	OraclePass string
}

// LoadConfig reads the environment. Defaults point at a dev engine on
// localhost with its stock credentials.
func LoadConfig() Config {
	var targets []string
	for _, t := range strings.Split(utils.Env("SIMBOT_TARGET", "http://localhost:3000"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}

	drive := utils.Env("SIMBOT_DRIVE", "true")

	return Config{
		Targets:       targets,
		Players:       utils.EnvInt("SIMBOT_PLAYERS", 8),
		Workers:       utils.EnvInt("SIMBOT_WORKERS", 0),
		Tick:          utils.EnvDuration("SIMBOT_TICK", 2*time.Second),
		Rounds:        utils.EnvInt("SIMBOT_ROUNDS", 0),
		Seed:          int64(utils.EnvUint64("SIMBOT_SEED", 0)),
		MalformedRate: utils.EnvInt("SIMBOT_MALFORMED_RATE", 0),
		Fund:          utils.EnvUint64("SIMBOT_FUND", 100_000),
		Drive:         drive == "true" || drive == "1",

		ActionTag:   utils.Env("GAME_ACTION_TAG", "bunkerwars/act/v1"),
		ProofSecret: utils.Env("PROOF_SECRET", "dev-insecure-secret"),

		AdminUser:  utils.Env("ADMIN_USER", "admin"),
		AdminPass:  utils.Env("ADMIN_PASSWORD", "admin"),
		OracleUser: utils.Env("ORACLE_USER", "oracle"),
		OraclePass: utils.Env("ORACLE_PASSWORD", "oracle"),
	}
}
