package services

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
)

var (
	// ErrValidation rejects malformed create input before any record is written.
	ErrValidation = apperrors.ErrValidation
	// ErrInvitationNotFound indicates no invitation matches the id or token.
	ErrInvitationNotFound = apperrors.New("INVITATION_NOT_FOUND", "Invitation not found", http.StatusNotFound)
	// ErrInvitationForbidden indicates the caller is not a party to the invitation.
	ErrInvitationForbidden = apperrors.New("INVITATION_FORBIDDEN", "Invitation belongs to another recipient", http.StatusForbidden)
	// ErrInvitationExpired indicates an accept was attempted past the expiry.
	ErrInvitationExpired = apperrors.New("INVITATION_EXPIRED", "Invitation has expired", http.StatusGone)
	// ErrInvitationConflict is returned by the store when the invitation was not in the expected status.
	ErrInvitationConflict = apperrors.New("INVITATION_CONFLICT", "Invitation is no longer pending", http.StatusConflict)
	// ErrAlreadyResponded is the benign outcome of responding to a settled invitation.
	ErrAlreadyResponded = apperrors.New("INVITATION_ALREADY_RESPONDED", "Invitation has already been responded to", http.StatusConflict)
	// ErrGrantExecutionFailed signals the accept committed but the grant side effect did not.
	ErrGrantExecutionFailed = apperrors.New("GRANT_EXECUTION_FAILED", "Invitation accepted but access could not be granted", http.StatusBadGateway)
	// ErrInvitationAlreadyPending rejects a second live invitation for the same recipient and subject.
	ErrInvitationAlreadyPending = apperrors.New("INVITATION_ALREADY_PENDING", "Recipient already has a pending invitation for this subject", http.StatusConflict)
	// ErrGrantNotApplicable indicates there is no outstanding grant to retry.
	ErrGrantNotApplicable = apperrors.New("GRANT_NOT_APPLICABLE", "Invitation has no outstanding grant", http.StatusConflict)
)

// isUniqueConstraintError detects database uniqueness constraint violations across vendors.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil && pgErr.Code == "23505" {
		return true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil && myErr.Number == 1062 {
		return true
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "unique") ||
		strings.Contains(lower, "duplicate")
}
