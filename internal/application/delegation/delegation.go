// Package delegation issues and redeems the single-use tokens that let an
// assignee (other parent, employer) claim their part of an application.
// Tokens travel out of band (the notification pipeline); only a bcrypt
// hash is ever stored.
package delegation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	id "formflow/pkg/domain"
)

const tokenBytes = 32

// TokenStore issues and redeems delegation tokens. Implementations return
// sentinel.ErrExpired when no live token exists for the application,
// sentinel.ErrAlreadyUsed when it was already claimed, and
// sentinel.ErrNotFound when the presented token does not match.
type TokenStore interface {
	// Issue creates a fresh single-use token for the application,
	// replacing any outstanding one.
	Issue(ctx context.Context, appID id.ApplicationID) (string, error)
	// Claim redeems a token. A successful claim consumes it; further
	// claims see ErrAlreadyUsed until the entry's TTL lapses.
	Claim(ctx context.Context, appID id.ApplicationID, token string) error
}

func newToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate delegation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
