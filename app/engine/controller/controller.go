package controller

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/app/engine/types"
	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/protocol"
	"github.com/bunkerwars/engine/pkg/utils"
)

// Operator roles. Players are plain token subjects with RolePlayer.
const (
	RolePlayer = "player"
	RoleOracle = "oracle"
	RoleAdmin  = "admin"
)

type Controller struct {
	App       *types.App
	JWTSecret []byte
	Users     map[string]types.User
	DevMode   bool
}

// NewController returns a new controller. Operator credentials come from the
// environment; *_PASSWORD accepts plaintext or a bcrypt hash.
func NewController(app *types.App) *Controller {
	jwtSecret := []byte(utils.Env("ENGINE_JWT_SECRET", "change-me-please"))
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	oracleUser := utils.Env("ORACLE_USER", "oracle")
	oraclePass := utils.Env("ORACLE_PASSWORD", "oracle")

	adminHash, _ := utils.HashOrRead(adminPass)
	oracleHash, _ := utils.HashOrRead(oraclePass)

	users := map[string]types.User{
		adminUser:  {Username: adminUser, Hash: adminHash, Role: RoleAdmin},
		oracleUser: {Username: oracleUser, Hash: oracleHash, Role: RoleOracle},
	}

	return &Controller{
		App:       app,
		JWTSecret: jwtSecret,
		Users:     users,
		DevMode:   app.Config.Engine.DevMode,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Auth
	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)
	r.Handle("/api/auth/token", c.Require(RoleAdmin, http.HandlerFunc(c.HandleMintToken))).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/register", c.HandleRegister).Methods(http.MethodPost)

	// Game state
	r.Handle("/api/status", c.RequireAuth(http.HandlerFunc(c.HandleStatus))).Methods(http.MethodGet)
	r.Handle("/api/bunkers", c.RequireAuth(http.HandlerFunc(c.HandleBunkers))).Methods(http.MethodGet)
	r.Handle("/api/bunkers/{id}", c.RequireAuth(http.HandlerFunc(c.HandleBunker))).Methods(http.MethodGet)
	r.Handle("/api/rounds/current", c.RequireAuth(http.HandlerFunc(c.HandleCurrentRound))).Methods(http.MethodGet)
	r.Handle("/api/rounds/{n:[0-9]+}", c.RequireAuth(http.HandlerFunc(c.HandleRound))).Methods(http.MethodGet)
	r.Handle("/api/rounds/{n:[0-9]+}/audit", c.RequireAuth(http.HandlerFunc(c.HandleAudit))).Methods(http.MethodGet)
	r.Handle("/api/events/recent", c.RequireAuth(http.HandlerFunc(c.HandleRecentEvents))).Methods(http.MethodGet)

	// Player operations
	r.Handle("/api/players/me", c.Require(RolePlayer, http.HandlerFunc(c.HandleMe))).Methods(http.MethodGet)
	r.Handle("/api/players/join", c.Require(RolePlayer, http.HandlerFunc(c.HandleJoin))).Methods(http.MethodPost)
	r.Handle("/api/players/topup", c.Require(RolePlayer, http.HandlerFunc(c.HandleTopUp))).Methods(http.MethodPost)
	r.Handle("/api/players/relocate", c.Require(RolePlayer, http.HandlerFunc(c.HandleRelocate))).Methods(http.MethodPost)
	r.Handle("/api/players/exit", c.Require(RolePlayer, http.HandlerFunc(c.HandleExit))).Methods(http.MethodPost)
	r.Handle("/api/actions", c.Require(RolePlayer, http.HandlerFunc(c.HandleSubmitAction))).Methods(http.MethodPost)

	// Oracle operations
	r.Handle("/api/rounds/resolve", c.Require(RoleOracle, http.HandlerFunc(c.HandleResolve))).Methods(http.MethodPost)
	r.Handle("/api/cleanup", c.Require(RoleOracle, http.HandlerFunc(c.HandleCleanup))).Methods(http.MethodPost)

	// Admin operations
	r.Handle("/api/rounds/open", c.Require(RoleAdmin, http.HandlerFunc(c.HandleOpenRound))).Methods(http.MethodPost)
	r.Handle("/api/halt", c.Require(RoleAdmin, http.HandlerFunc(c.HandleHalt))).Methods(http.MethodPost)
	r.Handle("/api/faucet", c.Require(RoleAdmin, http.HandlerFunc(c.HandleFaucet))).Methods(http.MethodPost)

	// Anyone authenticated may pull the cord once the grace window elapses.
	r.Handle("/api/halt/emergency", c.RequireAuth(http.HandlerFunc(c.HandleEmergencyHalt))).Methods(http.MethodPost)

	// WebSocket endpoint for real-time events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// classify maps an engine error class to its transport status.
func classify(err error) int {
	switch {
	case errors.Is(err, protocol.ErrSchema), errors.Is(err, ledger.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (c *Controller) fail(w http.ResponseWriter, err error) {
	status := classify(err)
	if status == http.StatusInternalServerError {
		c.App.Logger.Error("request failed", zap.Error(err))
	}
	respondError(w, status, err.Error())
}

// decode caps, schema-validates, and unmarshals a mutating request body.
// On failure it has already written the response.
func (c *Controller) decode(w http.ResponseWriter, r *http.Request, kind string, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, protocol.MaxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "body unreadable or too large")
		return false
	}
	if err := protocol.Validate(kind, body); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}
