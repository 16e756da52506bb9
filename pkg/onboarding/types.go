package onboarding

import (
	"encoding/json"
	"fmt"
)

// DynamicEntity is one keyed record of an import batch.
type DynamicEntity struct {
	Key        string            `json:"Key"`
	Properties []DynamicProperty `json:"Properties"`
}

// DynamicProperty is a named, optionally language-qualified attribute of an
// entity. An empty Language means the value is language-neutral.
type DynamicProperty struct {
	ID       string `json:"Id"`
	Language string `json:"Language,omitempty"`
	Value    any    `json:"Value"`
}

// Credential identifies a data provider against the ingestion service.
type Credential struct {
	ProviderID     string
	ProviderSecret string
}

// String implements fmt.Stringer without revealing the secret.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{ProviderID: %q, ProviderSecret: <redacted>}", c.ProviderID)
}

// ImportBatchResult is the service's answer to an import request. Only the
// commonly returned fields are decoded; Raw holds the full body.
type ImportBatchResult struct {
	BatchID string          `json:"batchId"`
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

// ImportOutcome carries the HTTP status, its reason phrase and the decoded
// result of an import call. Result is nil when the service sent no body.
type ImportOutcome struct {
	StatusCode int
	Message    string
	Result     *ImportBatchResult
}

// Succeeded reports whether the service accepted the batch (2xx).
func (o *ImportOutcome) Succeeded() bool {
	return o.StatusCode >= 200 && o.StatusCode < 300
}

// ImportResult is delivered by the asynchronous import variants.
type ImportResult struct {
	Outcome *ImportOutcome
	Err     error
}

type tokenRequest struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

type tokenResponse struct {
	Result struct {
		AccessToken string `json:"accessToken"`
	} `json:"result"`
}

type importRequest struct {
	Entities []*DynamicEntity `json:"Entities"`
}
