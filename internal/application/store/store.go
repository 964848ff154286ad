// Package store persists the application aggregate. The PostgreSQL store
// is the production backend; the in-memory store backs unit tests and
// local development without a database.
package store

import (
	"context"

	"formflow/internal/application/models"
	id "formflow/pkg/domain"
)

// Store is the persistence port for applications. Implementations return
// sentinel errors (sentinel.ErrNotFound, sentinel.ErrConflict); services
// translate them into domain errors.
type Store interface {
	// Create persists a new application. An existing id is a conflict.
	Create(ctx context.Context, app *models.Application) error
	// Get loads one application by id.
	Get(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	// Update replaces the stored aggregate wholesale. The server-side
	// state is authoritative; concurrent updates resolve last-write-wins.
	Update(ctx context.Context, app *models.Application) error
	// ListByActor returns every application the actor applied for or is
	// assigned to, most recently modified first.
	ListByActor(ctx context.Context, actor id.NationalID) ([]*models.Application, error)
}

var (
	_ Store = (*InMemory)(nil)
	_ Store = (*Postgres)(nil)
)
