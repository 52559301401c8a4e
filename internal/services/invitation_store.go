package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/crypto"
	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
	"github.com/charlesng35/rosterinvites/pkg/logger"
)

const (
	// DefaultValidityWindow is how long an invitation stays acceptable after creation.
	DefaultValidityWindow = 7 * day
	defaultTokenBytes     = 32
)

// StoreOption customises InvitationStore behaviour.
type StoreOption func(*InvitationStore)

// WithValidityWindow overrides the invitation lifetime.
func WithValidityWindow(d time.Duration) StoreOption {
	return func(s *InvitationStore) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithTokenBytes adjusts the random token length in bytes.
func WithTokenBytes(size int) StoreOption {
	return func(s *InvitationStore) {
		if size >= crypto.MinTokenBytes {
			s.tokenBytes = size
		}
	}
}

// WithStoreClock injects a custom clock primarily for testing.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *InvitationStore) {
		if clock != nil {
			s.now = utcClock(clock)
		}
	}
}

// CreateInvitationInput describes a new offer. Attributes is a display
// snapshot of the subject captured at creation.
type CreateInvitationInput struct {
	SenderID          string
	SenderDisplayName string
	RecipientID       string
	Kind              models.InvitationKind
	Subject           models.SubjectRef
	Attributes        map[string]any
}

// InvitationStore is the durable collection of invitations. Transition and
// MarkGranted are its only mutations and both are single conditional writes.
type InvitationStore struct {
	db         *gorm.DB
	window     time.Duration
	tokenBytes int
	now        func() time.Time
	log        *zap.Logger
}

// NewInvitationStore constructs an InvitationStore backed by gorm.
func NewInvitationStore(db *gorm.DB, opts ...StoreOption) (*InvitationStore, error) {
	if db == nil {
		return nil, errors.New("invitation store: db is required")
	}

	store := &InvitationStore{
		db:         db,
		window:     DefaultValidityWindow,
		tokenBytes: defaultTokenBytes,
		now:        utcClock(time.Now),
		log:        logger.WithModule("invitation_store"),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// ValidityWindow returns the configured invitation lifetime.
func (s *InvitationStore) ValidityWindow() time.Duration {
	return s.window
}

// Create persists a pending invitation and returns it along with the raw
// token. Only the token's hash is stored.
func (s *InvitationStore) Create(ctx context.Context, input CreateInvitationInput) (*models.Invitation, string, error) {
	ctx = ensureContext(ctx)

	input, err := normaliseCreateInput(input)
	if err != nil {
		return nil, "", err
	}

	rawToken, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return nil, "", fmt.Errorf("invitation store: generate token: %w", err)
	}

	now := s.now()
	inv := &models.Invitation{
		BaseModel:         models.BaseModel{CreatedAt: now, UpdatedAt: now},
		Kind:              input.Kind,
		SenderID:          input.SenderID,
		SenderDisplayName: input.SenderDisplayName,
		RecipientID:       input.RecipientID,
		SubjectID:         input.Subject.ID,
		SubjectRole:       input.Subject.Role,
		Status:            models.StatusPending,
		TokenHash:         crypto.HashToken(rawToken),
		ExpiresAt:         now.Add(s.window),
	}
	if len(input.Attributes) > 0 {
		inv.Attributes = datatypes.JSONMap(input.Attributes)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Model(&models.Invitation{}).
			Where("recipient_id = ? AND kind = ? AND subject_id = ? AND subject_role = ?",
				inv.RecipientID, inv.Kind, inv.SubjectID, inv.SubjectRole).
			Where("status = ? AND expires_at > ?", models.StatusPending, now).
			Count(&live).Error; err != nil {
			return fmt.Errorf("check pending: %w", err)
		}
		if live > 0 {
			return ErrInvitationAlreadyPending
		}
		return tx.Create(inv).Error
	})
	if err != nil {
		if errors.Is(err, ErrInvitationAlreadyPending) {
			return nil, "", err
		}
		return nil, "", fmt.Errorf("invitation store: create: %w", err)
	}

	s.log.Info("invitation created",
		zap.String("invitation_id", inv.ID),
		zap.String("kind", string(inv.Kind)),
		zap.String("recipient_id", inv.RecipientID),
	)
	return inv, rawToken, nil
}

// ListForRecipient returns every invitation addressed to the recipient, newest first.
func (s *InvitationStore) ListForRecipient(ctx context.Context, recipientID string) ([]models.Invitation, error) {
	return s.listBy(ensureContext(ctx), "recipient_id", recipientID)
}

// ListForSender returns every invitation issued by the sender, newest first.
func (s *InvitationStore) ListForSender(ctx context.Context, senderID string) ([]models.Invitation, error) {
	return s.listBy(ensureContext(ctx), "sender_id", senderID)
}

func (s *InvitationStore) listBy(ctx context.Context, column, value string) ([]models.Invitation, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return []models.Invitation{}, nil
	}

	var invitations []models.Invitation
	if err := s.db.WithContext(ctx).
		Where(column+" = ?", value).
		Order("created_at DESC").
		Order("id DESC").
		Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation store: list by %s: %w", column, err)
	}
	return invitations, nil
}

// FindByToken looks up the invitation minted with the raw token.
func (s *InvitationStore) FindByToken(ctx context.Context, token string) (*models.Invitation, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationNotFound
	}
	return s.findOne(ensureContext(ctx), "token_hash = ?", crypto.HashToken(token))
}

// FindByID loads a single invitation.
func (s *InvitationStore) FindByID(ctx context.Context, id string) (*models.Invitation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvitationNotFound
	}
	return s.findOne(ensureContext(ctx), "id = ?", id)
}

func (s *InvitationStore) findOne(ctx context.Context, query string, arg any) (*models.Invitation, error) {
	var inv models.Invitation
	if err := s.db.WithContext(ctx).Where(query, arg).First(&inv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("invitation store: find: %w", err)
	}
	return &inv, nil
}

// TransitionCommittedError reports that the status change was written but the
// invitation could not be read back afterwards.
type TransitionCommittedError struct {
	Status models.InvitationStatus
	At     time.Time
	Err    error
}

func (e *TransitionCommittedError) Error() string {
	return fmt.Sprintf("invitation store: transition to %s committed, reload failed: %v", e.Status, e.Err)
}

func (e *TransitionCommittedError) Unwrap() error { return e.Err }

// Apply copies the written values onto a record read before the transition.
func (e *TransitionCommittedError) Apply(inv *models.Invitation) *models.Invitation {
	out := *inv
	at := e.At
	out.Status = e.Status
	out.RespondedAt = &at
	out.UpdatedAt = at
	return &out
}

// Transition moves an invitation from expected to next in one conditional
// UPDATE. Status and responded_at are written together. An accept also
// requires the invitation to be unexpired at write time. When no row
// matches, the current record is reloaded only to classify the failure.
func (s *InvitationStore) Transition(ctx context.Context, id string, expected, next models.InvitationStatus) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	if !next.Terminal() || expected == next {
		return nil, apperrors.NewValidation(fmt.Sprintf("invalid transition %s -> %s", expected, next))
	}

	now := s.now()
	query := s.db.WithContext(ctx).
		Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, expected)
	if next == models.StatusAccepted {
		query = query.Where("expires_at > ?", now)
	}

	result := query.Updates(map[string]any{
		"status":       next,
		"responded_at": now,
		"updated_at":   now,
	})
	if result.Error != nil {
		return nil, fmt.Errorf("invitation store: transition: %w", result.Error)
	}

	current, err := s.FindByID(ctx, id)
	if err != nil {
		if result.RowsAffected > 0 {
			s.log.Warn("invitation transitioned but reload failed",
				zap.String("invitation_id", id),
				zap.String("status", string(next)),
				zap.Error(err),
			)
			return nil, &TransitionCommittedError{Status: next, At: now, Err: err}
		}
		return nil, err
	}

	if result.RowsAffected == 0 {
		if current.Status != expected {
			return current, ErrInvitationConflict
		}
		return current, ErrInvitationExpired
	}

	s.log.Info("invitation transitioned",
		zap.String("invitation_id", id),
		zap.String("kind", string(current.Kind)),
		zap.String("status", string(next)),
	)
	return current, nil
}

// MarkGranted records that the grant side effect has been applied. It only
// touches accepted invitations that have not been marked yet and reports
// whether this call did the marking.
func (s *InvitationStore) MarkGranted(ctx context.Context, id string, at time.Time) (bool, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Invitation{}).
		Where("id = ? AND status = ? AND granted_at IS NULL", id, models.StatusAccepted).
		Updates(map[string]any{
			"granted_at": at.UTC(),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("invitation store: mark granted: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// CountExpiredPending counts pending invitations whose window has closed.
func (s *InvitationStore) CountExpiredPending(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	if err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Invitation{}).
		Where("status = ? AND expires_at <= ?", models.StatusPending, now.UTC()).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("invitation store: count expired: %w", err)
	}
	return count, nil
}

// RecordGrantFailure notes a failed grant attempt so the reconcile job can
// rotate past invitations whose grant keeps failing.
func (s *InvitationStore) RecordGrantFailure(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	if err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Invitation{}).
		Where("id = ? AND granted_at IS NULL", id).
		Updates(map[string]any{
			"grant_attempts":        gorm.Expr("grant_attempts + ?", 1),
			"last_grant_attempt_at": at,
		}).Error; err != nil {
		return fmt.Errorf("invitation store: record grant failure: %w", err)
	}
	return nil
}

// ListUngranted returns accepted invitations responded to before the cutoff
// whose grant has not been recorded. Invitations attempted after the cutoff
// are skipped. Never attempted invitations come first, then the least
// recently attempted, so permanently failing grants cannot starve the batch.
func (s *InvitationStore) ListUngranted(ctx context.Context, acceptedBefore time.Time, limit int) ([]models.Invitation, error) {
	cutoff := acceptedBefore.UTC()
	query := s.db.WithContext(ensureContext(ctx)).
		Where("status = ? AND granted_at IS NULL AND responded_at <= ?", models.StatusAccepted, cutoff).
		Where("last_grant_attempt_at IS NULL OR last_grant_attempt_at <= ?", cutoff).
		Order("CASE WHEN last_grant_attempt_at IS NULL THEN 0 ELSE 1 END").
		Order("last_grant_attempt_at ASC").
		Order("responded_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var invitations []models.Invitation
	if err := query.Find(&invitations).Error; err != nil {
		return nil, fmt.Errorf("invitation store: list ungranted: %w", err)
	}
	return invitations, nil
}

func normaliseCreateInput(input CreateInvitationInput) (CreateInvitationInput, error) {
	input.SenderID = strings.TrimSpace(input.SenderID)
	input.SenderDisplayName = strings.TrimSpace(input.SenderDisplayName)
	input.RecipientID = strings.TrimSpace(input.RecipientID)
	input.Subject.ID = strings.TrimSpace(input.Subject.ID)
	input.Subject.Role = strings.ToLower(strings.TrimSpace(input.Subject.Role))

	switch {
	case input.SenderID == "":
		return input, apperrors.NewValidation("sender is required")
	case input.RecipientID == "":
		return input, apperrors.NewValidation("recipient_id is required")
	case input.RecipientID == input.SenderID:
		return input, apperrors.NewValidation("cannot invite yourself")
	case !input.Kind.Valid():
		return input, apperrors.NewValidation(fmt.Sprintf("unsupported invitation kind %q", input.Kind))
	case input.Subject.ID == "":
		return input, apperrors.NewValidation("subject_id is required")
	case input.Kind == models.KindTeamRole && input.Subject.Role == "":
		return input, apperrors.NewValidation("subject_role is required for team_role invitations")
	case input.Kind == models.KindTrial && input.Subject.Role != "":
		return input, apperrors.NewValidation("subject_role is not used by trial invitations")
	}

	if input.SenderDisplayName == "" {
		input.SenderDisplayName = input.SenderID
	}
	return input, nil
}
