// Package identity resolves bearer credentials and user summaries from the identity provider.
package identity

import (
	"context"
	"errors"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrInactive          = errors.New("identity is not active")
)

// Identity is an authenticated principal.
type Identity struct {
	UserID int64
	Active bool
}

// Provider validates a bearer credential.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
}

// Directory resolves display summaries for identities.
type Directory interface {
	Users(ctx context.Context, ids []int64) (map[int64]models.UserSummary, error)
}

// Resolve authenticates credential and rejects inactive identities.
func Resolve(ctx context.Context, p Provider, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, ErrInvalidCredential
	}
	id, err := p.Authenticate(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	if !id.Active {
		return Identity{}, ErrInactive
	}
	return id, nil
}

// StaticDirectory answers with ID-only summaries. It backs deployments without a user service.
type StaticDirectory struct{}

func (StaticDirectory) Users(_ context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	out := make(map[int64]models.UserSummary, len(ids))
	for _, id := range ids {
		out[id] = models.UserSummary{ID: id}
	}
	return out, nil
}
