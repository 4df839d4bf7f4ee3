package controller

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/bunkerwars/engine/pkg/protocol"
)

const (
	sessionCookie = "bw_session"
	tokenTTL      = 24 * time.Hour
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	Subject string
	Role    string
}

type ctxKey int

const principalKey ctxKey = iota

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the authenticated caller set by the middleware.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// IssueToken signs an HS256 bearer token for subject with the given role.
func (c *Controller) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	})
	return token.SignedString(c.JWTSecret)
}

func (c *Controller) parseToken(raw string) (Principal, bool) {
	tok, err := jwt.Parse(raw,
		func(t *jwt.Token) (any, error) { return c.JWTSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !tok.Valid {
		return Principal{}, false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, false
	}
	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return Principal{}, false
	}
	return Principal{Subject: sub, Role: role}, true
}

// authenticate accepts Authorization: Bearer, the session cookie, or a token
// query parameter (websocket clients cannot set headers).
func (c *Controller) authenticate(r *http.Request) (Principal, bool) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return c.parseToken(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil {
		return c.parseToken(cookie.Value)
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return c.parseToken(q)
	}
	return Principal{}, false
}

// RequireAuth admits any authenticated principal.
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return c.Require("", next)
}

// Require admits principals with the given role; empty role means any.
func (c *Controller) Require(role string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := c.authenticate(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if role != "" && p.Role != role {
			respondError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// IssueSession issues a session cookie alongside the bearer token.
func (c *Controller) IssueSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   os.Getenv("ENVIRONMENT") == "production",
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(tokenTTL.Seconds()),
	})
}

// HandleLogin authenticates an operator (admin or oracle) by password.
func (c *Controller) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "bad json")
		return
	}
	u, ok := c.Users[in.Username]
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword(u.Hash, []byte(in.Password)); err != nil {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := c.IssueToken(u.Username, u.Role, tokenTTL)
	if err != nil {
		c.fail(w, err)
		return
	}
	c.IssueSession(w, token)
	respondJSON(w, http.StatusOK, map[string]string{"token": token, "role": u.Role})
}

// HandleLogout clears the session cookie.
func (c *Controller) HandleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}

// HandleMintToken lets the admin mint scoped player and oracle tokens.
func (c *Controller) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	var req protocol.TokenRequest
	if !c.decode(w, r, protocol.KindToken, &req) {
		return
	}
	role := req.Role
	if role == "" {
		role = RolePlayer
	}

	token, err := c.IssueToken(req.Player, role, tokenTTL)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"player": req.Player,
		"role":   role,
	})
}

// HandleRegister is the dev-mode self-serve token mint.
func (c *Controller) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !c.DevMode {
		respondError(w, http.StatusForbidden, "registration disabled")
		return
	}
	var in struct {
		Player string `json:"player"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Player == "" {
		respondError(w, http.StatusBadRequest, "player is required")
		return
	}

	token, err := c.IssueToken(in.Player, RolePlayer, tokenTTL)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token, "player": in.Player, "role": RolePlayer})
}
