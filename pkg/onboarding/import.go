package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	httpclient "github.com/natserract/onboarding/pkg/http"
	"go.uber.org/zap"
)

// Submitter posts validated batches to the import endpoint.
type Submitter struct {
	baseURI    string
	httpClient *httpclient.Client
	logger     *zap.Logger
}

// NewSubmitter creates a Submitter that talks to baseURI.
func NewSubmitter(baseURI string, httpClient *httpclient.Client, logger *zap.Logger) *Submitter {
	return &Submitter{
		baseURI:    baseURI,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit sends entities to the data source using token. A nil correlationID is
// omitted from the request; any non-nil value, uuid.Nil included, is sent.
//
// 401 and 403 produce an *AuthorizationError. Every other status is returned as
// an ImportOutcome so callers can inspect soft failures themselves.
func (s *Submitter) Submit(
	ctx context.Context,
	dataSource string,
	entities []*DynamicEntity,
	token string,
	correlationID *uuid.UUID,
) (*ImportOutcome, error) {
	if err := checkDataSource(dataSource); err != nil {
		return nil, err
	}

	query := map[string]string{}
	if correlationID != nil {
		query["correlationId"] = correlationID.String()
	}
	endpoint, err := httpclient.BuildURL(s.baseURI, []string{"import", url.PathEscape(dataSource)}, query)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}

	s.logger.Debug("Submitting import batch",
		zap.String("endpoint", endpoint),
		zap.String("data_source", dataSource),
		zap.Int("entities", len(entities)))

	resp, err := s.httpClient.Post(ctx, endpoint, headers, importRequest{Entities: entities})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Import request failed", zap.Error(err), zap.String("endpoint", endpoint))
		}
		return nil, fmt.Errorf("import request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		s.logger.Error("Import rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("data_source", dataSource))
		return nil, &AuthorizationError{StatusCode: resp.StatusCode, Reason: resp.Reason}
	}

	result, err := decodeBatchResult(resp.Body)
	if err != nil {
		s.logger.Error("Failed to parse import response",
			zap.Int("status_code", resp.StatusCode),
			zap.Error(err))
		return nil, &DeserializationError{
			Operation:  "import",
			StatusCode: resp.StatusCode,
			Reason:     resp.Reason,
			Err:        err,
		}
	}

	outcome := &ImportOutcome{
		StatusCode: resp.StatusCode,
		Message:    resp.Reason,
		Result:     result,
	}

	if outcome.Succeeded() {
		s.logger.Info("Successfully submitted import batch",
			zap.String("data_source", dataSource),
			zap.Int("status_code", resp.StatusCode),
			zap.Int("entities", len(entities)))
	} else {
		s.logger.Warn("Import batch not accepted",
			zap.String("data_source", dataSource),
			zap.Int("status_code", resp.StatusCode),
			zap.String("reason", resp.Reason))
	}

	return outcome, nil
}

// decodeBatchResult returns nil for an empty body.
func decodeBatchResult(body []byte) (*ImportBatchResult, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var result ImportBatchResult
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return nil, err
	}
	result.Raw = json.RawMessage(trimmed)
	return &result, nil
}
