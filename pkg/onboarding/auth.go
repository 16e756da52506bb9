package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	httpclient "github.com/natserract/onboarding/pkg/http"
	"go.uber.org/zap"
)

// Authenticator exchanges data provider credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context) (string, error)
}

// ProviderAuthenticator authenticates a data provider against the ingestion
// service token endpoint. It makes exactly one request per call.
type ProviderAuthenticator struct {
	baseURI    string
	credential Credential
	httpClient *httpclient.Client
	logger     *zap.Logger
}

// NewProviderAuthenticator creates an authenticator for the given credential.
func NewProviderAuthenticator(baseURI string, credential Credential, httpClient *httpclient.Client, logger *zap.Logger) *ProviderAuthenticator {
	return &ProviderAuthenticator{
		baseURI:    baseURI,
		credential: credential,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Authenticate retrieves a new access token
func (a *ProviderAuthenticator) Authenticate(ctx context.Context) (string, error) {
	url, err := httpclient.BuildURL(a.baseURI, []string{"dataProviders", "tokens"}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	a.logger.Info("Authenticating data provider",
		zap.String("url", url),
		zap.String("provider_id", a.credential.ProviderID))

	authReq := tokenRequest{
		ID:     a.credential.ProviderID,
		Secret: a.credential.ProviderSecret,
	}

	resp, err := a.httpClient.Post(ctx, url, nil, authReq)
	if err != nil {
		if ctx.Err() == nil {
			a.logger.Error("Authentication request failed", zap.Error(err), zap.String("url", url))
		}
		return "", fmt.Errorf("authentication request failed: %w", err)
	}

	if !resp.IsSuccess() {
		a.logger.Error("Authentication failed", zap.Int("status_code", resp.StatusCode))
		return "", &AuthenticationError{StatusCode: resp.StatusCode}
	}

	var authResp tokenResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		a.logger.Error("Failed to parse authentication response", zap.Error(err))
		return "", &DeserializationError{Operation: "authentication", StatusCode: resp.StatusCode, Reason: resp.Reason, Err: err}
	}
	if authResp.Result.AccessToken == "" {
		a.logger.Error("Authentication response did not contain an access token")
		return "", &DeserializationError{
			Operation:  "authentication",
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
			Err:        errors.New("missing result.accessToken"),
		}
	}

	a.logger.Info("Successfully authenticated", zap.String("provider_id", a.credential.ProviderID))

	return authResp.Result.AccessToken, nil
}
