package services

import (
	"context"
	"errors"
	"time"

	"github.com/charlesng35/rosterinvites/internal/models"
)

// PendingInvitationView is a pending invitation annotated for display.
// Expired items stay listed but cannot be accepted.
type PendingInvitationView struct {
	models.Invitation
	DaysRemaining int  `json:"days_remaining"`
	Expired       bool `json:"expired"`
	CanAccept     bool `json:"can_accept"`
	CanDecline    bool `json:"can_decline"`
}

// HistoryInvitationView is a settled invitation.
type HistoryInvitationView struct {
	models.Invitation
	GrantCompleted bool `json:"grant_completed"`
	GrantPending   bool `json:"grant_pending"`
}

// InvitationListView partitions a recipient's invitations.
type InvitationListView struct {
	Pending []PendingInvitationView `json:"pending"`
	History []HistoryInvitationView `json:"history"`
}

// InvitationListPresenter builds the recipient-facing list view.
type InvitationListPresenter struct {
	store *InvitationStore
}

// NewInvitationListPresenter constructs an InvitationListPresenter.
func NewInvitationListPresenter(store *InvitationStore) (*InvitationListPresenter, error) {
	if store == nil {
		return nil, errors.New("invitation presenter: store is required")
	}
	return &InvitationListPresenter{store: store}, nil
}

// BuildView reads the recipient's invitations and splits them into pending
// and history, preserving newest-first order within each.
func (p *InvitationListPresenter) BuildView(ctx context.Context, recipientID string, now time.Time) (*InvitationListView, error) {
	invitations, err := p.store.ListForRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return partitionInvitations(invitations, now), nil
}

func partitionInvitations(invitations []models.Invitation, now time.Time) *InvitationListView {
	view := &InvitationListView{
		Pending: make([]PendingInvitationView, 0, len(invitations)),
		History: make([]HistoryInvitationView, 0, len(invitations)),
	}

	for _, inv := range invitations {
		if inv.Status == models.StatusPending {
			expired := IsExpired(&inv, now)
			view.Pending = append(view.Pending, PendingInvitationView{
				Invitation:    inv,
				DaysRemaining: DaysRemaining(&inv, now),
				Expired:       expired,
				CanAccept:     !expired,
				CanDecline:    true,
			})
			continue
		}

		accepted := inv.Status == models.StatusAccepted
		view.History = append(view.History, HistoryInvitationView{
			Invitation:     inv,
			GrantCompleted: accepted && inv.GrantedAt != nil,
			GrantPending:   accepted && inv.GrantedAt == nil,
		})
	}
	return view
}
