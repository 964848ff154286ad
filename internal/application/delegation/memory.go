package delegation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	id "formflow/pkg/domain"
	"formflow/pkg/platform/sentinel"
)

// InMemory is a map-backed TokenStore for tests and Redis-less deployments.
type InMemory struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  func() time.Time
	tokens map[id.ApplicationID]memoryToken
}

type memoryToken struct {
	hash      []byte
	expiresAt time.Time
	used      bool
}

var _ TokenStore = (*InMemory)(nil)

// NewInMemory constructs an in-memory token store.
func NewInMemory(ttl time.Duration) *InMemory {
	return &InMemory{
		ttl:    ttl,
		clock:  time.Now,
		tokens: make(map[id.ApplicationID]memoryToken),
	}
}

func (s *InMemory) Issue(_ context.Context, appID id.ApplicationID) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		return "", fmt.Errorf("hash delegation token: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[appID] = memoryToken{hash: hash, expiresAt: s.clock().Add(s.ttl)}
	return token, nil
}

func (s *InMemory) Claim(_ context.Context, appID id.ApplicationID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[appID]
	if !ok || s.clock().After(entry.expiresAt) {
		delete(s.tokens, appID)
		return sentinel.ErrExpired
	}
	if entry.used {
		return sentinel.ErrAlreadyUsed
	}
	if bcrypt.CompareHashAndPassword(entry.hash, []byte(token)) != nil {
		return sentinel.ErrNotFound
	}
	entry.used = true
	s.tokens[appID] = entry
	return nil
}
