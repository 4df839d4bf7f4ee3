package proofs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bunkerwars/engine/pkg/utils"
)

const verifyPath = "/verify"

// HTTP calls a sidecar verifier service. It wraps the transport in a
// token-bucket rate limit and a per-endpoint circuit-breaker, failing over
// across endpoints when one is down or misbehaving.
type HTTP struct {
	endpoints []string
	client    *http.Client

	// token-bucket
	tokens      int64
	maxTokens   int64
	refillEvery time.Duration
	lastRefill  atomic.Value // time.Time

	// circuit-breaker
	mu       sync.Mutex
	failures map[string]int
	opened   map[string]time.Time

	breakerThreshold int
	breakerCooldown  time.Duration
}

// Opts is the set of options for a new HTTP verifier client.
type Opts struct {
	Endpoints       []string
	Timeout         time.Duration
	RPS             int
	Burst           int
	BreakerFailures int
	BreakerCooldown time.Duration
	HTTPClient      *http.Client
}

// NewHTTP creates a sidecar verifier client with the given options.
func NewHTTP(o Opts) *HTTP {
	if o.RPS <= 0 {
		o.RPS = 50
	}
	if o.Burst <= 0 {
		o.Burst = 100
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.BreakerFailures <= 0 {
		o.BreakerFailures = 3
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = 5 * time.Second
	}

	client := o.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: o.Timeout}
	} else if client.Timeout == 0 {
		client.Timeout = o.Timeout
	}

	c := &HTTP{
		endpoints:        utils.Dedup(o.Endpoints),
		client:           client,
		maxTokens:        int64(o.Burst),
		refillEvery:      time.Second / time.Duration(o.RPS),
		failures:         map[string]int{},
		opened:           map[string]time.Time{},
		breakerThreshold: o.BreakerFailures,
		breakerCooldown:  o.BreakerCooldown,
	}
	c.tokens = c.maxTokens
	c.lastRefill.Store(time.Now())
	return c
}

var _ Verifier = (*HTTP)(nil)

type verifyRequest struct {
	Proof   string  `json:"proof"`
	Signals Signals `json:"signals"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

// Verify posts the proof and signal vector to a sidecar endpoint. Transport
// and server failures surface as errors; a definitive "invalid" from the
// sidecar is (false, nil).
func (c *HTTP) Verify(ctx context.Context, proof []byte, signals Signals) (bool, error) {
	if len(c.endpoints) == 0 {
		return false, fmt.Errorf("no verifier endpoints configured")
	}

	payload := verifyRequest{
		Proof:   base64.StdEncoding.EncodeToString(proof),
		Signals: signals,
	}

	var lastErr error
	for i := 0; i < len(c.endpoints); i++ {
		ep := c.endpoints[i%len(c.endpoints)]
		// Skip endpoints whose breaker is OPEN.
		if c.isOpen(ep) {
			continue
		}

		c.acquire()

		b, mErr := json.Marshal(payload)
		if mErr != nil {
			return false, mErr
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, ep+verifyPath, bytes.NewReader(b))
		if reqErr != nil {
			return false, reqErr
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			c.noteFailure(ep)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("verifier %d", resp.StatusCode)
			c.noteFailure(ep)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}
		if resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("verifier http %d", resp.StatusCode)
			_ = utils.DrainAndClose(resp.Body)
			continue
		}

		var out verifyResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			_ = utils.DrainAndClose(resp.Body)
			lastErr = err
			continue
		}
		if cerr := utils.DrainAndClose(resp.Body); cerr != nil {
			return false, cerr
		}
		return out.Valid, nil
	}

	return false, lastErr
}

// refill refills the token-bucket with new tokens if necessary.
func (c *HTTP) refill() {
	last := c.lastRefill.Load().(time.Time)
	now := time.Now()
	if now.Sub(last) >= c.refillEvery {
		if atomic.LoadInt64(&c.tokens) < c.maxTokens {
			atomic.AddInt64(&c.tokens, 1)
		}
		c.lastRefill.Store(now)
	}
}

// acquire acquires a token from the token-bucket, blocking if necessary.
func (c *HTTP) acquire() {
	for {
		c.refill()
		if atomic.LoadInt64(&c.tokens) > 0 {
			atomic.AddInt64(&c.tokens, -1)
			return
		}
		time.Sleep(c.refillEvery / 2)
	}
}

// isOpen returns true if the endpoint's breaker is in the OPEN state.
func (c *HTTP) isOpen(ep string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	until, ok := c.opened[ep]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(c.opened, ep)
		c.failures[ep] = 0
		return false
	}
	return true
}

// noteFailure marks an endpoint as failed and opens the breaker once the
// failure count crosses the threshold.
func (c *HTTP) noteFailure(ep string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[ep]++
	if c.failures[ep] >= c.breakerThreshold {
		c.opened[ep] = time.Now().Add(c.breakerCooldown)
	}
}
