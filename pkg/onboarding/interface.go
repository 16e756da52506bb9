package onboarding

import "context"

// OnboardingClient defines the interface for onboarding service operations
type OnboardingClient interface {
	// Import validates entities and imports them using the cached token
	Import(ctx context.Context, dataSource string, entities []*DynamicEntity, opts ...ImportOption) (*ImportOutcome, error)

	// ImportAsync is the non-blocking form of Import
	ImportAsync(ctx context.Context, dataSource string, entities []*DynamicEntity, opts ...ImportOption) <-chan ImportResult

	// ImportWithToken imports using a caller-supplied token, bypassing the cache
	ImportWithToken(ctx context.Context, dataSource string, entities []*DynamicEntity, token string, opts ...ImportOption) (*ImportOutcome, error)

	// ImportWithTokenAsync is the non-blocking form of ImportWithToken
	ImportWithTokenAsync(ctx context.Context, dataSource string, entities []*DynamicEntity, token string, opts ...ImportOption) <-chan ImportResult

	// ImportBatches imports several batches concurrently
	ImportBatches(ctx context.Context, dataSource string, batches [][]*DynamicEntity, opts ...ImportOption) ([]*ImportOutcome, error)

	// Token returns a valid cached access token
	Token(ctx context.Context) (string, error)

	// Authenticate retrieves a fresh access token
	Authenticate(ctx context.Context) (string, error)

	Close() error
}

var _ OnboardingClient = (*Client)(nil)
