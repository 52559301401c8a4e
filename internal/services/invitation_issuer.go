package services

import (
	"context"
	"errors"

	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/metrics"
)

// IssueInvitationInput captures a sender's request to invite a recipient.
// RecipientEmail is optional and only used for out-of-band delivery.
type IssueInvitationInput struct {
	Sender         Actor
	RecipientID    string
	RecipientEmail string
	Kind           models.InvitationKind
	Subject        models.SubjectRef
}

// IssuedInvitation is returned to the sender only. Token is never exposed elsewhere.
type IssuedInvitation struct {
	Invitation *models.Invitation `json:"invitation"`
	Token      string             `json:"token"`
	Link       string             `json:"link"`
	EmailSent  bool               `json:"email_sent"`
}

// InvitationIssuer validates the subject, stores the invitation and sends the link.
type InvitationIssuer struct {
	store    *InvitationStore
	grants   *GrantRegistry
	notifier *InvitationNotifier
}

// NewInvitationIssuer constructs an InvitationIssuer. notifier may be nil.
func NewInvitationIssuer(store *InvitationStore, grants *GrantRegistry, notifier *InvitationNotifier) (*InvitationIssuer, error) {
	if store == nil {
		return nil, errors.New("invitation issuer: store is required")
	}
	if grants == nil {
		return nil, errors.New("invitation issuer: grant registry is required")
	}
	if notifier == nil {
		notifier = NewInvitationNotifier(nil, "")
	}
	return &InvitationIssuer{store: store, grants: grants, notifier: notifier}, nil
}

// Issue creates a pending invitation.
func (i *InvitationIssuer) Issue(ctx context.Context, input IssueInvitationInput) (*IssuedInvitation, error) {
	ctx = ensureContext(ctx)

	create, err := normaliseCreateInput(CreateInvitationInput{
		SenderID:          input.Sender.ID,
		SenderDisplayName: input.Sender.DisplayName,
		RecipientID:       input.RecipientID,
		Kind:              input.Kind,
		Subject:           input.Subject,
	})
	if err != nil {
		return nil, err
	}

	attrs, err := i.grants.Describe(ctx, create.Kind, create.Subject)
	if err != nil {
		return nil, err
	}
	create.Attributes = attrs

	inv, token, err := i.store.Create(ctx, create)
	if err != nil {
		return nil, err
	}
	metrics.InvitationsCreated.WithLabelValues(string(inv.Kind)).Inc()

	link := i.notifier.Link(token)
	return &IssuedInvitation{
		Invitation: inv,
		Token:      token,
		Link:       link,
		EmailSent:  i.notifier.Notify(ctx, inv, input.RecipientEmail, link),
	}, nil
}
