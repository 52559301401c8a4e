package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/logger"
	"github.com/charlesng35/rosterinvites/pkg/mail"
)

// InvitationNotifier hands the out-of-band link to the mail transport.
type InvitationNotifier struct {
	mailer  mail.Mailer
	baseURL string
	log     *zap.Logger
}

// NewInvitationNotifier constructs a notifier. A nil mailer disables delivery
// while links are still composed.
func NewInvitationNotifier(mailer mail.Mailer, baseURL string) *InvitationNotifier {
	return &InvitationNotifier{
		mailer:  mailer,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		log:     logger.WithModule("invitation_notifier"),
	}
}

// Link composes the link carrying the token.
func (n *InvitationNotifier) Link(token string) string {
	if n.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s?token=%s", n.baseURL, url.QueryEscape(token))
}

// Notify emails the link to the recipient and reports whether it was handed
// to the transport. Delivery failures are logged, never returned.
func (n *InvitationNotifier) Notify(ctx context.Context, inv *models.Invitation, email, link string) bool {
	email = strings.TrimSpace(email)
	if n.mailer == nil || email == "" {
		return false
	}

	msg := mail.Message{
		To:      []string{email},
		Subject: invitationSubject(inv),
		Body:    invitationBody(inv, link),
	}
	if err := n.mailer.Send(ensureContext(ctx), msg); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			n.log.Warn("invitation email failed",
				zap.String("invitation_id", inv.ID),
				zap.String("kind", string(inv.Kind)),
				zap.Error(err),
			)
		}
		return false
	}
	return true
}

func invitationSubject(inv *models.Invitation) string {
	switch inv.Kind {
	case models.KindTrial:
		return fmt.Sprintf("%s invited you to a trial", inv.SenderDisplayName)
	default:
		return fmt.Sprintf("%s invited you to join their coaching staff", inv.SenderDisplayName)
	}
}

func invitationBody(inv *models.Invitation, link string) string {
	var offer string
	switch inv.Kind {
	case models.KindTrial:
		offer = fmt.Sprintf("attend the trial session %v", attributeOr(inv, "session_title", inv.SubjectID))
		if startsAt, ok := inv.Attributes["starts_at"]; ok {
			offer += fmt.Sprintf(" starting %v", startsAt)
		}
	default:
		offer = fmt.Sprintf("join %v as %s", attributeOr(inv, "team_name", inv.SubjectID), strings.ReplaceAll(inv.SubjectRole, "_", " "))
	}

	return fmt.Sprintf("Hello,\n\n%s has invited you to %s.\n\nUse the following link to respond before %s:\n%s\n\nIf you did not expect this email, you can ignore it.\n",
		inv.SenderDisplayName, offer, inv.ExpiresAt.Format("Mon, 02 Jan 2006 15:04 MST"), link)
}

func attributeOr(inv *models.Invitation, key, fallback string) any {
	if value, ok := inv.Attributes[key]; ok && value != nil && value != "" {
		return value
	}
	return fallback
}
