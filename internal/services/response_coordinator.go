package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/rosterinvites/internal/models"
	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
	"github.com/charlesng35/rosterinvites/pkg/logger"
	"github.com/charlesng35/rosterinvites/pkg/metrics"
)

// Decision is a recipient's answer to an invitation.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

func (d Decision) target() (models.InvitationStatus, bool) {
	switch d {
	case DecisionAccept:
		return models.StatusAccepted, true
	case DecisionDecline:
		return models.StatusRejected, true
	default:
		return "", false
	}
}

// CoordinatorOption customises ResponseCoordinator behaviour.
type CoordinatorOption func(*ResponseCoordinator)

// WithCoordinatorClock injects a custom clock primarily for testing.
func WithCoordinatorClock(clock func() time.Time) CoordinatorOption {
	return func(c *ResponseCoordinator) {
		if clock != nil {
			c.now = utcClock(clock)
		}
	}
}

// ResponseCoordinator applies accept and decline decisions and runs the
// grant side effect after a successful accept.
type ResponseCoordinator struct {
	store  *InvitationStore
	grants *GrantRegistry
	now    func() time.Time
	log    *zap.Logger
}

// NewResponseCoordinator constructs a ResponseCoordinator.
func NewResponseCoordinator(store *InvitationStore, grants *GrantRegistry, opts ...CoordinatorOption) (*ResponseCoordinator, error) {
	if store == nil {
		return nil, errors.New("response coordinator: store is required")
	}
	if grants == nil {
		return nil, errors.New("response coordinator: grant registry is required")
	}

	coordinator := &ResponseCoordinator{
		store:  store,
		grants: grants,
		now:    utcClock(time.Now),
		log:    logger.WithModule("invitations"),
	}
	for _, opt := range opts {
		opt(coordinator)
	}
	return coordinator, nil
}

// Respond records the recipient's decision. A settled invitation yields
// ErrAlreadyResponded. When an accept commits but the grant fails, the
// accepted invitation is returned together with ErrGrantExecutionFailed.
func (c *ResponseCoordinator) Respond(ctx context.Context, id, actorID string, decision Decision) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	next, ok := decision.target()
	if !ok {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown decision %q", decision))
	}

	inv, err := c.store.FindByID(ctx, id)
	if err != nil {
		c.recordResponse("", decision, err)
		return nil, err
	}
	if inv.RecipientID != actorID {
		c.recordResponse(inv.Kind, decision, ErrInvitationForbidden)
		return nil, ErrInvitationForbidden
	}
	if decision == DecisionAccept && inv.Status == models.StatusPending && IsExpired(inv, c.now()) {
		c.recordResponse(inv.Kind, decision, ErrInvitationExpired)
		return nil, ErrInvitationExpired
	}

	updated, err := c.store.Transition(ctx, inv.ID, models.StatusPending, next)
	var committed *TransitionCommittedError
	if errors.As(err, &committed) {
		updated, err = committed.Apply(inv), nil
	}
	if err != nil {
		if errors.Is(err, ErrInvitationConflict) {
			err = ErrAlreadyResponded.WithInternal(err)
		}
		c.recordResponse(inv.Kind, decision, err)
		return nil, err
	}
	c.recordResponse(updated.Kind, decision, nil)

	if next != models.StatusAccepted {
		return updated, nil
	}

	if err := c.applyGrant(ctx, updated); err != nil {
		return updated, err
	}
	return updated, nil
}

// RetryGrant re-runs only the grant side effect of an accepted invitation
// whose grant has not been recorded. The status is never touched.
func (c *ResponseCoordinator) RetryGrant(ctx context.Context, id string, actor Actor) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	inv, err := c.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.RecipientID != actor.ID && !actor.IsAdmin() {
		return nil, ErrInvitationForbidden
	}
	if inv.Status != models.StatusAccepted || inv.GrantedAt != nil {
		return inv, ErrGrantNotApplicable
	}

	if err := c.applyGrant(ctx, inv); err != nil {
		return inv, err
	}
	return inv, nil
}

// Get returns an invitation visible to its recipient, its sender or an admin.
func (c *ResponseCoordinator) Get(ctx context.Context, id string, actor Actor) (*models.Invitation, error) {
	inv, err := c.store.FindByID(ensureContext(ctx), id)
	if err != nil {
		return nil, err
	}
	if inv.RecipientID != actor.ID && inv.SenderID != actor.ID && !actor.IsAdmin() {
		return nil, ErrInvitationForbidden
	}
	return inv, nil
}

// ReconcileGrants retries the grant for accepted invitations that were
// responded to before the cutoff and never marked granted. It returns how
// many were granted.
func (c *ResponseCoordinator) ReconcileGrants(ctx context.Context, acceptedBefore time.Time, limit int) (int, error) {
	ctx = ensureContext(ctx)

	pending, err := c.store.ListUngranted(ctx, acceptedBefore, limit)
	if err != nil {
		return 0, err
	}

	var (
		granted int
		errs    error
	)
	for i := range pending {
		if err := c.applyGrant(ctx, &pending[i]); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("invitation %s: %w", pending[i].ID, err))
			continue
		}
		granted++
	}
	return granted, errs
}

func (c *ResponseCoordinator) applyGrant(ctx context.Context, inv *models.Invitation) error {
	if err := c.grants.Grant(ctx, inv); err != nil {
		metrics.GrantFailures.WithLabelValues(string(inv.Kind)).Inc()
		c.log.Warn("grant execution failed",
			zap.String("invitation_id", inv.ID),
			zap.String("kind", string(inv.Kind)),
			zap.Error(err),
		)
		if recErr := c.store.RecordGrantFailure(ctx, inv.ID, c.now()); recErr != nil {
			c.log.Warn("grant failure not recorded",
				zap.String("invitation_id", inv.ID),
				zap.Error(recErr),
			)
		}
		return ErrGrantExecutionFailed.WithInternal(err)
	}

	at := c.now()
	marked, err := c.store.MarkGranted(ctx, inv.ID, at)
	if err != nil {
		c.log.Warn("grant applied but not recorded",
			zap.String("invitation_id", inv.ID),
			zap.Error(err),
		)
		return ErrGrantExecutionFailed.WithInternal(err)
	}
	if marked {
		inv.GrantedAt = &at
	}
	return nil
}

func (c *ResponseCoordinator) recordResponse(kind models.InvitationKind, decision Decision, err error) {
	outcome := "applied"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyResponded):
		outcome = "already_responded"
	case errors.Is(err, ErrInvitationExpired):
		outcome = "expired"
	case errors.Is(err, ErrInvitationForbidden):
		outcome = "forbidden"
	case errors.Is(err, ErrInvitationNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}

	metrics.InvitationResponses.WithLabelValues(string(kind), string(decision), outcome).Inc()
	if outcome == "error" {
		c.log.Error("invitation response failed",
			zap.String("kind", string(kind)),
			zap.String("decision", string(decision)),
			zap.Error(err),
		)
	}
}
