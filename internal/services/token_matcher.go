package services

import (
	"context"
	"errors"
	"strings"

	"github.com/charlesng35/rosterinvites/internal/models"
)

// TokenMatcher resolves an out-of-band token to an invitation addressed to
// the caller. It never writes; responding still goes through ResponseCoordinator.
type TokenMatcher struct {
	store *InvitationStore
}

// NewTokenMatcher constructs a TokenMatcher.
func NewTokenMatcher(store *InvitationStore) (*TokenMatcher, error) {
	if store == nil {
		return nil, errors.New("token matcher: store is required")
	}
	return &TokenMatcher{store: store}, nil
}

// Resolve returns the invitation for token whatever its status, or
// ErrInvitationNotFound, or ErrInvitationForbidden when the token belongs to
// another recipient.
func (m *TokenMatcher) Resolve(ctx context.Context, token, recipientID string) (*models.Invitation, error) {
	inv, err := m.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if inv.RecipientID != strings.TrimSpace(recipientID) {
		return nil, ErrInvitationForbidden
	}
	return inv, nil
}
