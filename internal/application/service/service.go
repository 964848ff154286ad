// Package service orchestrates the application lifecycle: creation, scoped
// reads, answer updates, lifecycle events, external data and delegation
// claims. It is the only layer that combines the template registry, the
// state machine, validation and persistence.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"formflow/internal/application/delegation"
	"formflow/internal/application/store"
	"formflow/internal/audit"
	extdata "formflow/internal/externaldata"
	"formflow/internal/platform/kafka"
	"formflow/internal/platform/metrics"
	"formflow/internal/template"
	"formflow/internal/validation"
	dErrors "formflow/pkg/domain-errors"
	"formflow/pkg/platform/sentinel"
)

// NotificationsTopic carries outbound notifications (approval requests,
// decisions) for the message dispatch service to deliver.
const NotificationsTopic = "notifications"

// ValidationFailure carries the field-level detail of a rejected answer
// update. Transport layers surface Detail verbatim so clients can attach
// the message to the offending widget.
type ValidationFailure struct {
	Detail *validation.Error
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Detail.Path, e.Detail.Message)
}

// Fetcher gathers external data from the named providers. Satisfied by
// externaldata.Orchestrator; tests substitute stubs.
type Fetcher interface {
	Fetch(ctx context.Context, req extdata.Request, providerIDs []string) extdata.Set
}

// Service implements the application operations.
type Service struct {
	store       store.Store
	templates   *template.Registry
	external    Fetcher
	delegations delegation.TokenStore
	audit       *audit.Publisher
	notifier    *kafka.Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// Config wires the service's collaborators. Audit, notifier and metrics
// may be nil; they degrade to no-ops.
type Config struct {
	Store       store.Store
	Templates   *template.Registry
	External    Fetcher
	Delegations delegation.TokenStore
	Audit       *audit.Publisher
	Notifier    *kafka.Publisher
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// New constructs the service.
func New(cfg Config) *Service {
	return &Service{
		store:       cfg.Store,
		templates:   cfg.Templates,
		external:    cfg.External,
		delegations: cfg.Delegations,
		audit:       cfg.Audit,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		tracer:      otel.Tracer("formflow/application/service"),
	}
}

func wrapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "application not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "application already exists")
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "failed to "+op, err)
	}
}

// truncateToMicros keeps timestamps comparable across the JSONB round trip.
func truncateToMicros(t time.Time) time.Time {
	return t.Truncate(time.Microsecond)
}
