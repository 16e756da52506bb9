package onboarding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenLifetime is how long a token is reused. The service issues
// tokens valid for an hour; one minute is kept as margin.
const DefaultTokenLifetime = 59 * time.Minute

const (
	flightToken   = "token"
	flightRefresh = "refresh"
)

var errFlightCancelled = errors.New("token refresh cancelled")

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// TokenCache holds at most one bearer token and fetches a new one through its
// Authenticator when the current one is missing or expired. At most one
// authentication is in flight at a time; concurrent callers share its result.
type TokenCache struct {
	auth     Authenticator
	clock    Clock
	lifetime time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	current *cachedToken

	group singleflight.Group
}

// NewTokenCache creates an empty cache. A nil clock means SystemClock.
func NewTokenCache(auth Authenticator, clock Clock, logger *zap.Logger) *TokenCache {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenCache{
		auth:     auth,
		clock:    clock,
		lifetime: DefaultTokenLifetime,
		logger:   logger,
	}
}

// Token returns a usable bearer token, authenticating when needed.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	return c.fetch(ctx, false)
}

// Refresh authenticates even if the cached token has not expired yet, e.g.
// after the service rejected it. On failure the cache is left as it was.
func (c *TokenCache) Refresh(ctx context.Context) (string, error) {
	return c.fetch(ctx, true)
}

// Clear discards the cached token.
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.current = nil
	c.mu.Unlock()
}

func (c *TokenCache) cached() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current != nil && c.clock.Now().Before(c.current.expiresAt) {
		return c.current.value, true
	}
	return "", false
}

func (c *TokenCache) fetch(ctx context.Context, force bool) (string, error) {
	for {
		if !force {
			if token, ok := c.cached(); ok {
				c.logger.Debug("Using cached access token")
				return token, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		key := flightToken
		if force {
			key = flightRefresh
		}
		ch := c.group.DoChan(key, func() (interface{}, error) {
			return c.authenticate(ctx, force)
		})

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			if res.Err == nil {
				return res.Val.(string), nil
			}
			// The flight belonged to a caller that has since been cancelled.
			if errors.Is(res.Err, errFlightCancelled) {
				if err := ctx.Err(); err != nil {
					return "", err
				}
				continue
			}
			return "", res.Err
		}
	}
}

// authenticate runs inside a single flight and stores the new token unless
// the requesting context was cancelled meanwhile.
func (c *TokenCache) authenticate(ctx context.Context, force bool) (string, error) {
	if !force {
		if token, ok := c.cached(); ok {
			return token, nil
		}
	}

	c.logger.Info("Access token expired or not available, authenticating")
	token, err := c.auth.Authenticate(ctx)
	if ctx.Err() != nil {
		return "", errFlightCancelled
	}
	if err != nil {
		c.logger.Error("Failed to authenticate", zap.Error(err))
		return "", err
	}
	if token == "" {
		return "", fmt.Errorf("authenticator returned an empty token")
	}

	expiresAt := c.clock.Now().Add(c.lifetime)
	c.mu.Lock()
	c.current = &cachedToken{value: token, expiresAt: expiresAt}
	c.mu.Unlock()

	c.logger.Info("Successfully authenticated and cached access token",
		zap.Duration("expires_in", c.lifetime),
		zap.Time("expires_at", expiresAt))

	return token, nil
}
