// Package audit captures the compliance trail of the application system:
// who moved which application through which lifecycle step, and who touched
// its answers. Events flow through Kafka so retention and fan-out stay
// outside this service.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"formflow/internal/platform/kafka"
	id "formflow/pkg/domain"
)

// Topic carries every audit event; consumers route on the category field.
const Topic = "application-lifecycle"

// Category classifies audit events by their primary purpose.
type Category string

const (
	// CategoryCompliance covers events with legal significance: lifecycle
	// transitions, assignments, rejections. Long retention.
	CategoryCompliance Category = "compliance"

	// CategoryOperations covers routine visibility events: answer updates,
	// external data fetches. Shorter retention, may be sampled.
	CategoryOperations Category = "operations"
)

// Actions recorded on events.
const (
	ActionTransition        = "transition"
	ActionTransitionDenied  = "transition_denied"
	ActionAnswersUpdated    = "answers_updated"
	ActionUpdateDenied      = "answers_update_denied"
	ActionCreated           = "created"
	ActionAssigneeClaimed   = "assignee_claimed"
	ActionExternalDataFetch = "external_data_fetched"
)

// Event is one audit record. Actor identity is stored as a SHA-256 hash:
// the trail must be traceable without holding raw national ids.
type Event struct {
	Category      Category  `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
	ApplicationID string    `json:"applicationId"`
	Template      string    `json:"template"`
	ActorHash     string    `json:"actorHash"`
	Role          string    `json:"role,omitempty"`
	Action        string    `json:"action"`
	Event         string    `json:"event,omitempty"`
	FromState     string    `json:"fromState,omitempty"`
	ToState       string    `json:"toState,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	RequestID     string    `json:"requestId,omitempty"`
	ClientIP      string    `json:"clientIp,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
}

// HashActor produces the stable pseudonymous actor reference.
func HashActor(actor id.NationalID) string {
	sum := sha256.Sum256([]byte(actor))
	return hex.EncodeToString(sum[:])
}

// Publisher emits audit events. A nil publisher drops them, which keeps
// local development and unit tests free of Kafka.
type Publisher struct {
	producer *kafka.Publisher
	logger   *slog.Logger
}

// NewPublisher wraps a Kafka producer. producer may be nil.
func NewPublisher(producer *kafka.Publisher, logger *slog.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// Emit publishes one event, keyed by application id so one application's
// trail stays ordered within a partition. Emission failures are logged,
// never propagated: audit must not fail the business operation.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil || p.producer == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "marshal audit event", "error", err)
		return
	}
	if err := p.producer.Publish(ctx, Topic, []byte(event.ApplicationID), payload); err != nil {
		p.logger.ErrorContext(ctx, "publish audit event",
			"error", fmt.Errorf("audit emit: %w", err),
			"action", event.Action,
			"application_id", event.ApplicationID,
		)
	}
}
