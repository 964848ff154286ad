// Package nationalregistry fetches a person's registered identity (name,
// address, children, spouse) from the national registry HTTP API.
package nationalregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"formflow/internal/externaldata"
)

// ProviderID keys this provider's result in an application's external data.
const ProviderID = "nationalRegistry"

// Provider is an HTTP client against the national registry API.
type Provider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New constructs the provider. timeout bounds individual lookups under the
// orchestrator's round deadline.
func New(baseURL, apiKey string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// ID implements externaldata.Provider.
func (p *Provider) ID() string { return ProviderID }

// Fetch looks up the applicant's registry entry.
func (p *Provider) Fetch(ctx context.Context, req externaldata.Request) (any, error) {
	url := fmt.Sprintf("%s/api/v1/persons/%s", p.baseURL, req.Applicant.String())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	httpReq.Header.Set("X-Api-Key", p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("national registry lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("national registry: person %s not found", req.Applicant)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("national registry: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	return payload, nil
}
