package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/models"
	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
)

// TrialAttendanceGrant confirms an accepting player for a trial session.
type TrialAttendanceGrant struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTrialAttendanceGrant constructs the trial grant executor.
func NewTrialAttendanceGrant(db *gorm.DB, clock func() time.Time) (*TrialAttendanceGrant, error) {
	if db == nil {
		return nil, errors.New("trial attendance grant: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &TrialAttendanceGrant{db: db, now: utcClock(clock)}, nil
}

// Describe checks the trial session exists.
func (g *TrialAttendanceGrant) Describe(ctx context.Context, subject models.SubjectRef) (map[string]any, error) {
	var session models.TrialSession
	if err := g.db.WithContext(ctx).First(&session, "id = ?", strings.TrimSpace(subject.ID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewValidation("trial session not found")
		}
		return nil, fmt.Errorf("trial attendance grant: load session: %w", err)
	}

	attrs := map[string]any{
		"session_title": session.Title,
		"team_id":       session.TeamID,
	}
	if session.Location != "" {
		attrs["location"] = session.Location
	}
	if !session.StartsAt.IsZero() {
		attrs["starts_at"] = session.StartsAt.UTC().Format(time.RFC3339)
	}
	return attrs, nil
}

// Grant records the attendance confirmation. An existing confirmation counts as success.
func (g *TrialAttendanceGrant) Grant(ctx context.Context, req GrantRequest) error {
	attendance := &models.TrialAttendance{
		SessionID:    req.Subject.ID,
		UserID:       req.RecipientID,
		InvitationID: req.InvitationID,
		ConfirmedAt:  g.now(),
	}
	if err := g.db.WithContext(ctx).Create(attendance).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil
		}
		return fmt.Errorf("trial attendance grant: confirm: %w", err)
	}
	return nil
}
