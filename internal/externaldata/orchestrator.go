package externaldata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"formflow/internal/platform/metrics"
	"formflow/pkg/requestcontext"
)

// fetchTimeout bounds one round of provider calls; a slow registry must not
// hold an application update hostage.
const fetchTimeout = 15 * time.Second

// Orchestrator runs a template's providers in parallel and normalizes every
// outcome into a Result. Provider failures never fail the round: they are
// recorded with StatusFailure so downstream conditions read them as absent.
type Orchestrator struct {
	logger    *slog.Logger
	metrics   *metrics.Metrics
	providers map[string]Provider
}

// NewOrchestrator registers the given providers. Duplicate ids are a wiring
// bug and fail construction.
func NewOrchestrator(logger *slog.Logger, m *metrics.Metrics, providers ...Provider) (*Orchestrator, error) {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if _, exists := byID[p.ID()]; exists {
			return nil, fmt.Errorf("provider %s already registered", p.ID())
		}
		byID[p.ID()] = p
	}
	return &Orchestrator{logger: logger, metrics: m, providers: byID}, nil
}

// Fetch runs the named providers concurrently and returns one Result per
// id, keyed by provider id. Every requested id yields an entry; unknown ids
// and provider errors produce failure entries.
func (o *Orchestrator) Fetch(ctx context.Context, req Request, providerIDs []string) Set {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	fetchedAt := requestcontext.Now(ctx)

	results := make(Set, len(providerIDs))

	// Unknown ids resolve before any goroutine starts, so only the fetch
	// goroutines write the map and they all do it under the lock.
	providers := make([]Provider, 0, len(providerIDs))
	for _, providerID := range providerIDs {
		provider, ok := o.providers[providerID]
		if !ok {
			results[providerID] = Result{Status: StatusFailure, Reason: "unknown provider", Date: fetchedAt}
			o.metrics.RecordExternalFetch(providerID, string(StatusFailure))
			continue
		}
		providers = append(providers, provider)
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, provider := range providers {
		g.Go(func() error {
			data, err := provider.Fetch(ctx, req)

			result := Result{Status: StatusSuccess, Data: data, Date: fetchedAt}
			if err != nil {
				o.logger.WarnContext(ctx, "external data fetch failed",
					"provider", provider.ID(),
					"application_id", req.ApplicationID.String(),
					"error", err,
				)
				result = Result{Status: StatusFailure, Reason: err.Error(), Date: fetchedAt}
			}
			o.metrics.RecordExternalFetch(provider.ID(), string(result.Status))

			mu.Lock()
			results[provider.ID()] = result
			mu.Unlock()
			return nil
		})
	}

	// Failures are folded into results; the group never reports an error.
	_ = g.Wait()
	return results
}
