package models

import (
	"time"

	"gorm.io/datatypes"
)

// InvitationKind tags the type of offer an invitation carries.
type InvitationKind string

const (
	// KindTeamRole offers a coaching staff role on a team.
	KindTeamRole InvitationKind = "team_role"
	// KindTrial invites a player to attend a trial session.
	KindTrial InvitationKind = "trial"
)

// Valid reports whether the kind is one of the known offer types.
func (k InvitationKind) Valid() bool {
	switch k {
	case KindTeamRole, KindTrial:
		return true
	default:
		return false
	}
}

// InvitationStatus is the lifecycle state of an invitation. Only
// pending -> accepted and pending -> rejected are legal; both are terminal.
type InvitationStatus string

const (
	StatusPending  InvitationStatus = "pending"
	StatusAccepted InvitationStatus = "accepted"
	StatusRejected InvitationStatus = "rejected"
)

// Terminal reports whether no further transition is permitted.
func (s InvitationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// SubjectRef identifies the thing being offered: a team plus staff role, or
// a trial session (Role empty).
type SubjectRef struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
}

// Invitation is a single time-bounded offer from a sender to a recipient.
type Invitation struct {
	BaseModel

	Kind              InvitationKind    `gorm:"type:varchar(32);not null;index" json:"kind"`
	SenderID          string            `gorm:"type:varchar(64);not null;index" json:"sender_id"`
	SenderDisplayName string            `gorm:"type:varchar(255)" json:"sender_display_name"`
	RecipientID       string            `gorm:"type:varchar(64);not null;index" json:"recipient_id"`
	SubjectID         string            `gorm:"type:varchar(64);not null;index" json:"subject_id"`
	SubjectRole       string            `gorm:"type:varchar(64)" json:"subject_role,omitempty"`
	Status            InvitationStatus  `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	TokenHash         string            `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	Attributes        datatypes.JSONMap `json:"attributes,omitempty"`
	ExpiresAt         time.Time         `gorm:"not null;index" json:"expires_at"`
	RespondedAt       *time.Time        `json:"responded_at,omitempty"`
	GrantedAt         *time.Time        `json:"granted_at,omitempty"`

	// GrantAttempts counts failed grant executions; the reconcile job retries
	// the least recently attempted invitations first.
	GrantAttempts      int        `gorm:"not null;default:0" json:"grant_attempts,omitempty"`
	LastGrantAttemptAt *time.Time `gorm:"index" json:"last_grant_attempt_at,omitempty"`
}

// Subject returns the offered subject reference.
func (i *Invitation) Subject() SubjectRef {
	return SubjectRef{ID: i.SubjectID, Role: i.SubjectRole}
}
