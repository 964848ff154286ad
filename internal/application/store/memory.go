package store

import (
	"context"
	"sort"
	"sync"

	"formflow/internal/application/models"
	id "formflow/pkg/domain"
	"formflow/pkg/platform/sentinel"
)

// InMemory is a map-backed Store. Every read and write clones, so callers
// never alias the stored aggregate.
type InMemory struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]*models.Application
}

// NewInMemory constructs an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{apps: make(map[id.ApplicationID]*models.Application)}
}

func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *InMemory) Update(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) ListByActor(_ context.Context, actor id.NationalID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.apps {
		if app.Applicant == actor || app.IsAssignee(actor) {
			out = append(out, app.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ModifiedAt.After(out[j].ModifiedAt)
	})
	return out, nil
}
