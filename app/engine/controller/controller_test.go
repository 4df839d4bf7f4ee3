package controller

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bunkerwars/engine/app/engine/types"
	"github.com/bunkerwars/engine/pkg/config"
	"github.com/bunkerwars/engine/pkg/custody"
	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/reserve"
	"github.com/bunkerwars/engine/pkg/resources"
)

// fakeClock drives the engine's view of time so tests can close rounds
// without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_756_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// testEnv is a full engine wired to an httptest server: memory custodian,
// static proof verifier, in-proc bus, no redis, no persistence.
type testEnv struct {
	t      *testing.T
	app    *types.App
	ctrl   *Controller
	srv    *httptest.Server
	clock  *fakeClock
	prover *proofs.Static
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	t.Setenv("ENGINE_JWT_SECRET", "controller-test-secret")
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "admin-pass")
	t.Setenv("ORACLE_USER", "oracle")
	t.Setenv("ORACLE_PASSWORD", "oracle-pass")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "rules.yaml"))
	require.NoError(t, err)
	cfg.Engine.DevMode = true
	cfg.Game.RoundDuration = time.Minute
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := zaptest.NewLogger(t)
	clock := newFakeClock()
	vault := custody.NewMemory()
	prover := proofs.NewStatic("controller-test-proofs")
	pool := reserve.NewMemory(cfg.Reserve.Initial)
	bus := events.NewBus(events.DefaultBusCapacity, nil, logger)
	t.Cleanup(bus.Close)

	eng, err := ledger.New(cfg.Rules(), nil, ledger.Deps{
		Custodian: vault,
		Verifier:  prover,
		Resources: resources.NewMemory(),
		Reserve:   pool,
		Logger:    logger,
		Events:    bus.Publish,
		Now:       clock.Now,
	})
	require.NoError(t, err)

	app := &types.App{
		Config:    cfg,
		Engine:    eng,
		Bus:       bus,
		Custodian: vault,
		Faucet:    vault,
		Reserve:   pool,
		Logger:    logger,
	}
	ctrl := NewController(app)
	router, err := ctrl.NewRouter()
	require.NoError(t, err)
	srv := httptest.NewServer(WithCORS(router))
	t.Cleanup(srv.Close)

	return &testEnv{t: t, app: app, ctrl: ctrl, srv: srv, clock: clock, prover: prover}
}

// request issues one HTTP call and returns the raw response plus body bytes.
func (e *testEnv) request(method, path, token string, body any) (*http.Response, []byte) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	require.NoError(e.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(e.t, err)
	return resp, out.Bytes()
}

// postJSON posts body and decodes the response into out when out is non-nil.
func (e *testEnv) postJSON(path, token string, body, out any) int {
	e.t.Helper()
	resp, raw := e.request(http.MethodPost, path, token, body)
	if out != nil && len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (e *testEnv) getJSON(path, token string, out any) int {
	e.t.Helper()
	resp, raw := e.request(http.MethodGet, path, token, nil)
	if out != nil && len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, out), "body: %s", raw)
	}
	return resp.StatusCode
}

func (e *testEnv) login(user, pass string) string {
	e.t.Helper()
	var out struct {
		Token string `json:"token"`
	}
	status := e.postJSON("/api/auth/login", "", map[string]string{"username": user, "password": pass}, &out)
	require.Equal(e.t, http.StatusOK, status)
	require.NotEmpty(e.t, out.Token)
	return out.Token
}

func (e *testEnv) adminToken() string  { return e.login("admin", "admin-pass") }
func (e *testEnv) oracleToken() string { return e.login("oracle", "oracle-pass") }

// playerToken mints a player-scoped token through the admin endpoint.
func (e *testEnv) playerToken(adminTok, name string) string {
	e.t.Helper()
	var out struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	status := e.postJSON("/api/auth/token", adminTok, map[string]string{"player": name}, &out)
	require.Equal(e.t, http.StatusOK, status)
	require.Equal(e.t, RolePlayer, out.Role)
	return out.Token
}

func (e *testEnv) fund(adminTok, player string, amount uint64) {
	e.t.Helper()
	status := e.postJSON("/api/faucet", adminTok, map[string]any{"player": player, "amount": amount}, nil)
	require.Equal(e.t, http.StatusOK, status)
}

// actBody builds a sealed action with a proof the static verifier accepts.
func (e *testEnv) actBody(player string, round uint64, target uint8, stake uint64) map[string]any {
	signals := proofs.Signals{
		Tag:    e.app.Config.Game.ActionTag,
		Player: player,
		Round:  round,
		Stake:  stake,
		Target: target,
	}
	return map[string]any{
		"round":  round,
		"target": target,
		"stake":  stake,
		"proof":  base64.StdEncoding.EncodeToString(e.prover.Prove(signals)),
	}
}

func TestAuth_Middleware(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	playerTok := env.playerToken(adminTok, "alice")

	t.Run("missing token yields 401", func(t *testing.T) {
		status := env.getJSON("/api/status", "", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("garbage token yields 401", func(t *testing.T) {
		status := env.getJSON("/api/status", "not-a-jwt", nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("token signed with another secret yields 401", func(t *testing.T) {
		other := &Controller{JWTSecret: []byte("some-other-secret")}
		forged, err := other.IssueToken("alice", RolePlayer, time.Hour)
		require.NoError(t, err)
		status := env.getJSON("/api/status", forged, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong role yields 403", func(t *testing.T) {
		status := env.postJSON("/api/rounds/open", playerTok, nil, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status = env.postJSON("/api/players/join", env.oracleToken(),
			map[string]any{"bunker": 1, "amount": 1000}, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status = env.postJSON("/api/faucet", env.oracleToken(),
			map[string]any{"player": "x", "amount": 1}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("token accepted via query parameter", func(t *testing.T) {
		status := env.getJSON("/api/status?token="+playerTok, "", nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("token accepted via session cookie", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/status", nil)
		require.NoError(t, err)
		req.AddCookie(&http.Cookie{Name: "bw_session", Value: playerTok})
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestAuth_Login(t *testing.T) {
	env := newTestEnv(t)

	t.Run("unknown user rejected", func(t *testing.T) {
		status := env.postJSON("/api/auth/login", "",
			map[string]string{"username": "nobody", "password": "admin-pass"}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		status := env.postJSON("/api/auth/login", "",
			map[string]string{"username": "admin", "password": "wrong"}, nil)
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("valid login returns token role and cookie", func(t *testing.T) {
		resp, raw := env.request(http.MethodPost, "/api/auth/login", "",
			map[string]string{"username": "oracle", "password": "oracle-pass"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		}
		require.NoError(t, json.Unmarshal(raw, &out))
		assert.NotEmpty(t, out.Token)
		assert.Equal(t, RoleOracle, out.Role)

		var session *http.Cookie
		for _, ck := range resp.Cookies() {
			if ck.Name == "bw_session" {
				session = ck
			}
		}
		require.NotNil(t, session, "login should set the session cookie")
		assert.True(t, session.HttpOnly)
		assert.Equal(t, out.Token, session.Value)
	})

	t.Run("logout clears the cookie", func(t *testing.T) {
		resp, _ := env.request(http.MethodPost, "/api/auth/logout", "", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		for _, ck := range resp.Cookies() {
			if ck.Name == "bw_session" {
				assert.Empty(t, ck.Value)
				assert.Negative(t, ck.MaxAge)
			}
		}
	})
}

func TestAuth_MintToken(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()

	t.Run("minted oracle token carries the role", func(t *testing.T) {
		var out struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		}
		status := env.postJSON("/api/auth/token", adminTok,
			map[string]string{"player": "backup-oracle", "role": "oracle"}, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, RoleOracle, out.Role)

		// Oracle-only route: role check passes, engine then rejects the
		// cleanup because bunker 1 is alive.
		status = env.postJSON("/api/cleanup", out.Token, map[string]any{"bunker": 1}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("admin role cannot be minted", func(t *testing.T) {
		status := env.postJSON("/api/auth/token", adminTok,
			map[string]string{"player": "eve", "role": "admin"}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("role defaults to player", func(t *testing.T) {
		var out struct {
			Role string `json:"role"`
		}
		status := env.postJSON("/api/auth/token", adminTok, map[string]string{"player": "carol"}, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, RolePlayer, out.Role)
	})
}

func TestAuth_RegisterDevGate(t *testing.T) {
	t.Run("dev mode mints player tokens", func(t *testing.T) {
		env := newTestEnv(t)
		var out struct {
			Token string `json:"token"`
			Role  string `json:"role"`
		}
		status := env.postJSON("/api/auth/register", "", map[string]string{"player": "dave"}, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, RolePlayer, out.Role)

		status = env.getJSON("/api/players/me", out.Token, nil)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("disabled outside dev mode", func(t *testing.T) {
		env := newTestEnv(t, func(cfg *config.Config) { cfg.Engine.DevMode = false })
		status := env.postJSON("/api/auth/register", "", map[string]string{"player": "dave"}, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("player name required", func(t *testing.T) {
		env := newTestEnv(t)
		status := env.postJSON("/api/auth/register", "", map[string]string{}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

// TestGameFlow drives a full round over HTTP: faucet, join, open, act,
// close, resolve, exit. The emission split and payout figures are exact.
func TestGameFlow(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	oracleTok := env.oracleToken()
	aliceTok := env.playerToken(adminTok, "alice")

	env.fund(adminTok, "alice", 10_000)

	t.Run("join stakes a position", func(t *testing.T) {
		var view ledger.PlayerView
		status := env.postJSON("/api/players/join", aliceTok,
			map[string]any{"bunker": 2, "amount": 5000}, &view)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint8(2), view.Bunker)
		assert.Equal(t, uint64(5000), view.Nominal)
		assert.Equal(t, uint64(5000), view.Claim)
	})

	t.Run("me reports record and wallet", func(t *testing.T) {
		var out struct {
			Player *ledger.PlayerView `json:"player"`
			Wallet uint64             `json:"wallet"`
		}
		status := env.getJSON("/api/players/me", aliceTok, &out)
		require.Equal(t, http.StatusOK, status)
		require.NotNil(t, out.Player)
		assert.Equal(t, uint8(2), out.Player.Bunker)
		assert.Equal(t, uint64(5000), out.Wallet)
	})

	t.Run("admin opens the first round", func(t *testing.T) {
		var round ledger.RoundView
		status := env.postJSON("/api/rounds/open", adminTok, nil, &round)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(1), round.Number)
		assert.Equal(t, "open", round.State)
	})

	t.Run("action accepted with a bound proof", func(t *testing.T) {
		var out struct {
			Status string `json:"status"`
			Round  uint64 `json:"round"`
		}
		status := env.postJSON("/api/actions", aliceTok, env.actBody("alice", 1, 3, 2000), &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "accepted", out.Status)
		assert.Equal(t, uint64(1), out.Round)
	})

	t.Run("second action in the round conflicts", func(t *testing.T) {
		status := env.postJSON("/api/actions", aliceTok, env.actBody("alice", 1, 4, 100), nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("resolve before close conflicts", func(t *testing.T) {
		status := env.postJSON("/api/rounds/resolve", oracleTok, map[string]any{
			"round":    1,
			"attacks":  []uint64{0, 1000, 0, 0, 0},
			"defenses": []uint64{0, 0, 0, 0, 0},
		}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	env.clock.Advance(61 * time.Second)

	t.Run("oracle resolves the closed round", func(t *testing.T) {
		var audit ledger.AuditEntry
		status := env.postJSON("/api/rounds/resolve", oracleTok, map[string]any{
			"round":    1,
			"attacks":  []uint64{0, 1000, 0, 0, 0},
			"defenses": []uint64{0, 0, 0, 0, 0},
		}, &audit)
		require.Equal(t, http.StatusOK, status)

		assert.Equal(t, uint64(1), audit.Round)
		assert.Equal(t, uint64(1000), audit.Damages[1])
		assert.Empty(t, audit.Destroyed)
		// Default emission splits six ways; only bunker 2 has members, so
		// its single share lands and the other five spoil.
		assert.Equal(t, uint64(6_000_000), audit.Withdrawn)
		assert.Equal(t, uint64(1_000_000), audit.Shares[1])
		assert.Equal(t, uint64(5_000_000), audit.Spoiled)
		assert.Zero(t, audit.Dust)
	})

	t.Run("double resolve conflicts", func(t *testing.T) {
		status := env.postJSON("/api/rounds/resolve", oracleTok, map[string]any{
			"round":    1,
			"attacks":  []uint64{0, 0, 0, 0, 0},
			"defenses": []uint64{0, 0, 0, 0, 0},
		}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("audit is queryable", func(t *testing.T) {
		var audit ledger.AuditEntry
		status := env.getJSON("/api/rounds/1/audit", aliceTok, &audit)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(1000), audit.Damages[1])
	})

	t.Run("status shows the resolved round and reduced reserve", func(t *testing.T) {
		var out struct {
			Status  ledger.StatusView   `json:"status"`
			Bunkers []ledger.BunkerView `json:"bunkers"`
			Reserve uint64              `json:"reserve"`
		}
		status := env.getJSON("/api/status", aliceTok, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "active", out.Status.Phase)
		require.NotNil(t, out.Status.Round)
		assert.Equal(t, "resolved", out.Status.Round.State)
		assert.Len(t, out.Bunkers, 5)
		// 5000 staked, minus 1000 damage, plus the emission share.
		assert.Equal(t, uint64(1_004_000), out.Bunkers[1].Custody)
		assert.Equal(t, env.app.Config.Reserve.Initial-6_000_000, out.Reserve)
	})

	t.Run("exit pays the whole vault to the last member", func(t *testing.T) {
		var out struct {
			Paid   uint64 `json:"paid"`
			Wallet uint64 `json:"wallet"`
		}
		status := env.postJSON("/api/players/exit", aliceTok, nil, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(1_004_000), out.Paid)
		assert.Equal(t, uint64(1_009_000), out.Wallet)
	})
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	oracleTok := env.oracleToken()
	aliceTok := env.playerToken(adminTok, "alice")
	env.fund(adminTok, "alice", 100_000)

	t.Run("schema violation yields 400", func(t *testing.T) {
		status := env.postJSON("/api/players/join", aliceTok,
			map[string]any{"bunker": 9, "amount": 5000}, nil)
		assert.Equal(t, http.StatusBadRequest, status)

		status = env.postJSON("/api/players/join", aliceTok,
			map[string]any{"bunker": 2, "amount": 5000, "extra": true}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("validation failure yields 400", func(t *testing.T) {
		// Schema admits amount 500, the join minimum does not.
		status := env.postJSON("/api/players/join", aliceTok,
			map[string]any{"bunker": 2, "amount": 500}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("empty wallet yields 400", func(t *testing.T) {
		bobTok := env.playerToken(adminTok, "bob")
		status := env.postJSON("/api/players/join", bobTok,
			map[string]any{"bunker": 2, "amount": 5000}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown round yields 404", func(t *testing.T) {
		status := env.getJSON("/api/rounds/7", aliceTok, nil)
		assert.Equal(t, http.StatusNotFound, status)

		status = env.getJSON("/api/rounds/7/audit", aliceTok, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("state violation yields 409", func(t *testing.T) {
		// No round was ever opened; resolving is a phase error.
		status := env.postJSON("/api/rounds/resolve", oracleTok, map[string]any{
			"round":    1,
			"attacks":  []uint64{0, 0, 0, 0, 0},
			"defenses": []uint64{0, 0, 0, 0, 0},
		}, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("oversized body yields 400", func(t *testing.T) {
		huge := map[string]any{"bunker": 2, "amount": 5000, "pad": string(bytes.Repeat([]byte("x"), 70_000))}
		status := env.postJSON("/api/players/join", aliceTok, huge, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("non-base64 proof yields 400", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.postJSON("/api/players/join", aliceTok,
			map[string]any{"bunker": 2, "amount": 5000}, nil))
		var round ledger.RoundView
		require.Equal(t, http.StatusOK, env.postJSON("/api/rounds/open", adminTok, nil, &round))

		status := env.postJSON("/api/actions", aliceTok, map[string]any{
			"round": round.Number, "target": 3, "stake": 100, "proof": "!!not base64!!",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("forged proof yields 400", func(t *testing.T) {
		// Valid base64, wrong HMAC.
		body := env.actBody("alice", 1, 3, 100)
		body["proof"] = base64.StdEncoding.EncodeToString([]byte("forged"))
		status := env.postJSON("/api/actions", aliceTok, body, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("proof bound to another stake yields 400", func(t *testing.T) {
		body := env.actBody("alice", 1, 3, 100)
		body["stake"] = 200
		status := env.postJSON("/api/actions", aliceTok, body, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("relocate to non-adjacent bunker yields 400", func(t *testing.T) {
		status := env.postJSON("/api/players/relocate", aliceTok, map[string]any{"target": 5}, nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestEmergencyHalt(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	aliceTok := env.playerToken(adminTok, "alice")
	env.fund(adminTok, "alice", 10_000)

	require.Equal(t, http.StatusOK, env.postJSON("/api/players/join", aliceTok,
		map[string]any{"bunker": 1, "amount": 2000}, nil))
	require.Equal(t, http.StatusOK, env.postJSON("/api/rounds/open", adminTok, nil, nil))

	// Round closes at +60s; grace is duration x factor (3m) beyond that.
	env.clock.Advance(2 * time.Minute)

	t.Run("rejected inside the grace window", func(t *testing.T) {
		status := env.postJSON("/api/halt/emergency", aliceTok, nil, nil)
		assert.Equal(t, http.StatusConflict, status)
	})

	env.clock.Advance(3 * time.Minute)

	t.Run("any principal may halt after grace", func(t *testing.T) {
		var out ledger.StatusView
		status := env.postJSON("/api/halt/emergency", aliceTok, nil, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "halted", out.Phase)
		assert.Contains(t, out.HaltReason, "emergency")
	})

	t.Run("exit still works after the halt", func(t *testing.T) {
		var out struct {
			Paid uint64 `json:"paid"`
		}
		status := env.postJSON("/api/players/exit", aliceTok, nil, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(2000), out.Paid)
	})
}

func TestAdminHalt(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()

	var out ledger.StatusView
	status := env.postJSON("/api/halt", adminTok, map[string]string{"reason": "maintenance"}, &out)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "halted", out.Phase)
	assert.Equal(t, "maintenance", out.HaltReason)

	// Halting twice is a state error.
	status = env.postJSON("/api/halt", adminTok, nil, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestFaucet(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()

	t.Run("credits accumulate", func(t *testing.T) {
		var out struct {
			Player string `json:"player"`
			Wallet uint64 `json:"wallet"`
		}
		status := env.postJSON("/api/faucet", adminTok, map[string]any{"player": "alice", "amount": 300}, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(300), out.Wallet)

		status = env.postJSON("/api/faucet", adminTok, map[string]any{"player": "alice", "amount": 200}, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, uint64(500), out.Wallet)
	})

	t.Run("unavailable without the memory custodian", func(t *testing.T) {
		env.app.Faucet = nil
		defer func() { env.app.Faucet = env.app.Custodian.(*custody.Memory) }()
		status := env.postJSON("/api/faucet", adminTok, map[string]any{"player": "alice", "amount": 1}, nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})
}

func TestRecentEvents(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	aliceTok := env.playerToken(adminTok, "alice")
	env.fund(adminTok, "alice", 10_000)
	require.Equal(t, http.StatusOK, env.postJSON("/api/players/join", aliceTok,
		map[string]any{"bunker": 4, "amount": 1500}, nil))

	t.Run("join shows up in the tail", func(t *testing.T) {
		var out struct {
			Events []events.Event `json:"events"`
			Count  int            `json:"count"`
		}
		status := env.getJSON("/api/events/recent", aliceTok, &out)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, len(out.Events), out.Count)
		require.NotEmpty(t, out.Events)

		last := out.Events[len(out.Events)-1]
		assert.Equal(t, events.TypePlayerJoined, last.Type)
		assert.Equal(t, "alice", last.Data["player"])
	})

	t.Run("limit bounds enforced", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.getJSON("/api/events/recent?limit=0", aliceTok, nil))
		assert.Equal(t, http.StatusBadRequest, env.getJSON("/api/events/recent?limit=2000", aliceTok, nil))
		assert.Equal(t, http.StatusBadRequest, env.getJSON("/api/events/recent?limit=abc", aliceTok, nil))
		assert.Equal(t, http.StatusOK, env.getJSON("/api/events/recent?limit=1", aliceTok, nil))
	})
}

func TestPublicSurface(t *testing.T) {
	env := newTestEnv(t)

	t.Run("health needs no auth", func(t *testing.T) {
		var out struct {
			Status string `json:"status"`
			Phase  string `json:"phase"`
		}
		status := env.getJSON("/health", "", &out)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "ok", out.Status)
		assert.Equal(t, "setup", out.Phase)
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/api/status", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:5173")
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	})

	t.Run("websocket unavailable without redis", func(t *testing.T) {
		status := env.getJSON("/api/ws", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})
}

func TestQuerySurface(t *testing.T) {
	env := newTestEnv(t)
	adminTok := env.adminToken()
	aliceTok := env.playerToken(adminTok, "alice")
	env.fund(adminTok, "alice", 10_000)
	require.Equal(t, http.StatusOK, env.postJSON("/api/players/join", aliceTok,
		map[string]any{"bunker": 3, "amount": 2500}, nil))

	t.Run("bunker list and single bunker agree", func(t *testing.T) {
		var all []ledger.BunkerView
		require.Equal(t, http.StatusOK, env.getJSON("/api/bunkers", aliceTok, &all))
		require.Len(t, all, 5)
		assert.Equal(t, uint64(2500), all[2].Custody)
		assert.Equal(t, 1, all[2].Members)

		var one ledger.BunkerView
		require.Equal(t, http.StatusOK, env.getJSON("/api/bunkers/3", aliceTok, &one))
		assert.Equal(t, all[2], one)
	})

	t.Run("bad bunker id rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.getJSON("/api/bunkers/abc", aliceTok, nil))
		assert.Equal(t, http.StatusBadRequest, env.getJSON("/api/bunkers/6", aliceTok, nil))
	})

	t.Run("current round 404s before the first open", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.getJSON("/api/rounds/current", aliceTok, nil))
	})

	t.Run("current round resolves after open", func(t *testing.T) {
		require.Equal(t, http.StatusOK, env.postJSON("/api/rounds/open", adminTok, nil, nil))
		var round ledger.RoundView
		require.Equal(t, http.StatusOK, env.getJSON("/api/rounds/current", aliceTok, &round))
		assert.Equal(t, uint64(1), round.Number)
		assert.Equal(t, "open", round.State)
	})

	t.Run("me without a position returns null player", func(t *testing.T) {
		bobTok := env.playerToken(adminTok, "bob")
		var out struct {
			Player *ledger.PlayerView `json:"player"`
		}
		status := env.getJSON("/api/players/me", bobTok, &out)
		require.Equal(t, http.StatusOK, status)
		assert.Nil(t, out.Player)
	})
}
