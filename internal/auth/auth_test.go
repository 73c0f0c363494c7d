package auth

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/susu3304/falta1/internal/model"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	cost = bcrypt.MinCost
}

func TestHashSecret(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", h)

	_, err = HashSecret("")
	assert.True(t, model.IsValidation(err))
}

func TestVerify(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	c := NewChecker(3)

	assert.NoError(t, c.Verify("event:1", h, "s3cret"))
	assert.ErrorIs(t, c.Verify("event:1", h, "wrong"), model.ErrUnauthorized)
}

func TestVerifyRateLimitsFailures(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	c := NewChecker(2)

	assert.ErrorIs(t, c.Verify("event:1", h, "a"), model.ErrUnauthorized)
	assert.ErrorIs(t, c.Verify("event:1", h, "b"), model.ErrUnauthorized)
	// Budget spent: even the right secret is refused for now.
	assert.ErrorIs(t, c.Verify("event:1", h, "s3cret"), model.ErrRateLimited)

	// Other targets are unaffected.
	assert.NoError(t, c.Verify("event:2", h, "s3cret"))
}

func TestSuccessDoesNotConsumeBudget(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	c := NewChecker(1)

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Verify("event:1", h, "s3cret"))
	}
	assert.ErrorIs(t, c.Verify("event:1", h, "x"), model.ErrUnauthorized)
	assert.ErrorIs(t, c.Verify("event:1", h, "x"), model.ErrRateLimited)
}

func TestConcurrentFailuresStayWithinBudget(t *testing.T) {
	h, err := HashSecret("s3cret")
	require.NoError(t, err)
	c := NewChecker(3)

	const attempts = 20
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.Verify("event:1", h, "wrong")
		}()
	}
	wg.Wait()
	close(errs)

	unauthorized, limited := 0, 0
	for err := range errs {
		switch {
		case errors.Is(err, model.ErrUnauthorized):
			unauthorized++
		case errors.Is(err, model.ErrRateLimited):
			limited++
		}
	}
	assert.Equal(t, 3, unauthorized)
	assert.Equal(t, attempts-3, limited)
}
