// Package auth gates destructive operations behind the event's deletion
// secret.
package auth

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/susu3304/falta1/internal/model"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var cost = bcrypt.DefaultCost

const (
	idleTTL    = 10 * time.Minute
	pruneAbove = 1024
)

// HashSecret returns the bcrypt hash stored for an event's deletion secret.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", &model.ValidationError{Field: "password", Reason: "must not be empty"}
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(h), nil
}

// Checker verifies credentials and limits failed attempts per target.
// Only failures consume the budget.
type Checker struct {
	mu      sync.Mutex
	targets map[string]*target
	limit   rate.Limit
	burst   int
}

type target struct {
	// mu serializes Verify per target so the budget check and the charge
	// for a failure happen together.
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewChecker allows perMinute failed attempts per target, refilled evenly.
func NewChecker(perMinute int) *Checker {
	if perMinute <= 0 {
		perMinute = 5
	}
	return &Checker{
		targets: make(map[string]*target),
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

// Verify checks credential against hash. It returns model.ErrRateLimited
// when the target has exhausted its failed attempts and
// model.ErrUnauthorized on mismatch.
func (c *Checker) Verify(targetKey, hash, credential string) error {
	t := c.lookup(targetKey)
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limiter.Tokens() < 1 {
		return model.ErrRateLimited
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential))
	if err == nil {
		return nil
	}
	t.limiter.Allow()
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return model.ErrUnauthorized
	}
	return fmt.Errorf("%w: %v", model.ErrUnauthorized, err)
}

func (c *Checker) lookup(key string) *target {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.targets) > pruneAbove {
		for k, t := range c.targets {
			if now.Sub(t.lastSeen) > idleTTL {
				delete(c.targets, k)
			}
		}
	}

	t, ok := c.targets[key]
	if !ok {
		t = &target{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.targets[key] = t
	}
	t.lastSeen = now
	return t
}
