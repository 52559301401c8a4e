package models

import "time"

// TrialSession is a scheduled tryout a team invites players to.
type TrialSession struct {
	BaseModel

	TeamID   string    `gorm:"type:varchar(36);index" json:"team_id"`
	Title    string    `gorm:"not null" json:"title"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
}

// TrialAttendance confirms a player for a trial session.
type TrialAttendance struct {
	BaseModel

	SessionID    string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_trial_attendance_player" json:"session_id"`
	UserID       string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_trial_attendance_player" json:"user_id"`
	InvitationID string    `gorm:"type:varchar(36);index" json:"invitation_id"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}
