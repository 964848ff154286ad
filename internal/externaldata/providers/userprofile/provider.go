// Package userprofile fetches the applicant's service-portal profile
// (email, phone, bank details) used to prefill contact fields.
package userprofile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"formflow/internal/externaldata"
)

// ProviderID keys this provider's result in an application's external data.
const ProviderID = "userProfile"

// Provider is an HTTP client against the user profile service.
type Provider struct {
	baseURL string
	client  *http.Client
}

// New constructs the provider.
func New(baseURL string, timeout time.Duration) *Provider {
	return &Provider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// ID implements externaldata.Provider.
func (p *Provider) ID() string { return ProviderID }

// Fetch looks up the applicant's profile. A missing profile is not an
// error: the applicant simply has not registered one, and dependent fields
// stay unprefilled.
func (p *Provider) Fetch(ctx context.Context, req externaldata.Request) (any, error) {
	url := fmt.Sprintf("%s/api/v1/profiles/%s", p.baseURL, req.Applicant.String())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("user profile lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return map[string]any{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user profile: unexpected status %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	return payload, nil
}
