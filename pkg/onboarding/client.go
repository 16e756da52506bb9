// Package onboarding provides a client for importing entities into the Occtoo
// onboarding (ingestion) service.
//
// A data provider authenticates with its id and secret and receives a bearer
// token that is valid for an hour. The Client caches that token and reuses it
// across imports, refreshing it shortly before it would expire. Every batch is
// validated locally before anything is sent:
//   - entity keys must be present and unique within the batch
//   - an entity must not repeat a property id for the same language
//
// Imports that the service rejects for authorization reasons (401, 403) fail
// with an *AuthorizationError. Any other status is returned as an
// ImportOutcome, leaving soft failures for the caller to inspect.
package onboarding

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/natserract/onboarding/pkg/config"
	httpclient "github.com/natserract/onboarding/pkg/http"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Client is the main client for importing entities. It is safe for concurrent use.
type Client struct {
	config        *config.Config
	httpClient    *httpclient.Client
	authenticator Authenticator
	tokenCache    *TokenCache
	submitter     *Submitter
	logger        *zap.Logger

	refreshOnUnauthorized bool
}

// Option customizes a Client.
type Option func(*clientOptions)

type clientOptions struct {
	httpClient            *httpclient.Client
	authenticator         Authenticator
	clock                 Clock
	refreshOnUnauthorized *bool
}

// WithTransport makes the Client use hc instead of building its own transport.
func WithTransport(hc *httpclient.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

// WithAuthenticator replaces the credential-based authenticator.
func WithAuthenticator(a Authenticator) Option {
	return func(o *clientOptions) { o.authenticator = a }
}

// WithClock sets the clock used for token expiry.
func WithClock(c Clock) Option {
	return func(o *clientOptions) { o.clock = c }
}

// WithRefreshOnUnauthorized overrides config.Config.RefreshOnUnauthorized.
// When enabled, an import using the cached token that is rejected with 401 or
// 403 forces one token refresh and is retried once.
func WithRefreshOnUnauthorized(enabled bool) Option {
	return func(o *clientOptions) { o.refreshOnUnauthorized = &enabled }
}

// ImportOption customizes a single import call.
type ImportOption func(*importOptions)

type importOptions struct {
	correlationID *uuid.UUID
}

// WithCorrelationID attaches id to the request so it can be traced through the
// service logs.
func WithCorrelationID(id uuid.UUID) ImportOption {
	return func(o *importOptions) { o.correlationID = &id }
}

// NewClient creates a new Client with default production logger
func NewClient(cfg *config.Config, opts ...Option) *Client {
	logger, _ := zap.NewProduction()
	return NewClientWithLogger(cfg, logger, opts...)
}

// NewClientWithLogger creates a new Client with a custom logger
func NewClientWithLogger(cfg *config.Config, logger *zap.Logger, opts ...Option) *Client {
	o := clientOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	hc := o.httpClient
	if hc == nil {
		hc = httpclient.NewClientWithLogger(logger,
			httpclient.WithTimeout(cfg.RequestTimeout),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithRateLimit(cfg.RateLimit),
		)
	}

	auth := o.authenticator
	if auth == nil {
		auth = NewProviderAuthenticator(cfg.BaseURI, Credential{
			ProviderID:     cfg.ProviderID,
			ProviderSecret: cfg.ProviderSecret,
		}, hc, logger)
	}

	refresh := cfg.RefreshOnUnauthorized
	if o.refreshOnUnauthorized != nil {
		refresh = *o.refreshOnUnauthorized
	}

	return &Client{
		config:                cfg,
		httpClient:            hc,
		authenticator:         auth,
		tokenCache:            NewTokenCache(auth, o.clock, logger),
		submitter:             NewSubmitter(cfg.BaseURI, hc, logger),
		logger:                logger,
		refreshOnUnauthorized: refresh,
	}
}

// Import validates entities and imports them into dataSource using the cached
// token. It blocks until ImportAsync delivers its result.
func (c *Client) Import(ctx context.Context, dataSource string, entities []*DynamicEntity, opts ...ImportOption) (*ImportOutcome, error) {
	res := <-c.ImportAsync(ctx, dataSource, entities, opts...)
	return res.Outcome, res.Err
}

// ImportAsync runs Import on its own goroutine. The channel receives exactly
// one result.
func (c *Client) ImportAsync(ctx context.Context, dataSource string, entities []*DynamicEntity, opts ...ImportOption) <-chan ImportResult {
	return c.async(func() (*ImportOutcome, error) {
		return c.importCached(ctx, dataSource, entities, opts)
	})
}

// ImportWithToken is like Import but uses the caller's token and never touches
// the token cache.
func (c *Client) ImportWithToken(ctx context.Context, dataSource string, entities []*DynamicEntity, token string, opts ...ImportOption) (*ImportOutcome, error) {
	res := <-c.ImportWithTokenAsync(ctx, dataSource, entities, token, opts...)
	return res.Outcome, res.Err
}

// ImportWithTokenAsync runs ImportWithToken on its own goroutine.
func (c *Client) ImportWithTokenAsync(ctx context.Context, dataSource string, entities []*DynamicEntity, token string, opts ...ImportOption) <-chan ImportResult {
	return c.async(func() (*ImportOutcome, error) {
		valid, err := c.prepare(ctx, dataSource, entities)
		if err != nil {
			return nil, err
		}
		return c.submitter.Submit(ctx, dataSource, valid, token, buildImportOptions(opts).correlationID)
	})
}

// ImportBatches imports several batches into dataSource concurrently, at most
// config.MaxConcurrency at a time. Outcomes are returned in batch order; a
// failed batch leaves a nil outcome and contributes a *BatchError to the
// joined error.
func (c *Client) ImportBatches(ctx context.Context, dataSource string, batches [][]*DynamicEntity, opts ...ImportOption) ([]*ImportOutcome, error) {
	maxGoroutines := c.config.MaxConcurrency
	if maxGoroutines <= 0 {
		maxGoroutines = 1
	}

	outcomes := make([]*ImportOutcome, len(batches))
	p := pool.New().WithMaxGoroutines(maxGoroutines).WithErrors().WithContext(ctx)
	for i, batch := range batches {
		p.Go(func(ctx context.Context) error {
			outcome, err := c.Import(ctx, dataSource, batch, opts...)
			if err != nil {
				c.logger.Error("Failed to import batch",
					zap.String("data_source", dataSource),
					zap.Int("batch", i),
					zap.Error(err))
				return &BatchError{Index: i, Err: err}
			}
			outcomes[i] = outcome
			return nil
		})
	}

	err := p.Wait()
	return outcomes, err
}

// Token returns the cached access token, authenticating when it is missing or
// expired.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokenCache.Token(ctx)
}

// Authenticate fetches a fresh token without reading or updating the cache.
// Useful for callers that manage tokens themselves and use ImportWithToken.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return c.authenticator.Authenticate(ctx)
}

// Close discards the cached token and releases idle connections.
func (c *Client) Close() error {
	c.tokenCache.Clear()
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) importCached(ctx context.Context, dataSource string, entities []*DynamicEntity, opts []ImportOption) (*ImportOutcome, error) {
	valid, err := c.prepare(ctx, dataSource, entities)
	if err != nil {
		return nil, err
	}
	importOpts := buildImportOptions(opts)

	token, err := c.tokenCache.Token(ctx)
	if err != nil {
		return nil, err
	}

	outcome, err := c.submitter.Submit(ctx, dataSource, valid, token, importOpts.correlationID)
	var authzErr *AuthorizationError
	if err == nil || !c.refreshOnUnauthorized || !errors.As(err, &authzErr) {
		return outcome, err
	}

	c.logger.Warn("Import rejected with cached token, refreshing token and retrying once",
		zap.String("data_source", dataSource),
		zap.Int("status_code", authzErr.StatusCode))
	token, err = c.tokenCache.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	return c.submitter.Submit(ctx, dataSource, valid, token, importOpts.correlationID)
}

// prepare validates arguments and payload, checking for cancellation on both
// sides of the validation.
func (c *Client) prepare(ctx context.Context, dataSource string, entities []*DynamicEntity) ([]*DynamicEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	valid, err := Validate(dataSource, entities)
	if err != nil {
		c.logger.Warn("Rejected import batch", zap.String("data_source", dataSource), zap.Error(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return valid, nil
}

func (c *Client) async(fn func() (*ImportOutcome, error)) <-chan ImportResult {
	ch := make(chan ImportResult, 1)
	go func() {
		defer close(ch)
		outcome, err := fn()
		ch <- ImportResult{Outcome: outcome, Err: err}
	}()
	return ch
}

func buildImportOptions(opts []ImportOption) importOptions {
	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
