package models

// Team is owned by the surrounding roster application; the invitation engine
// only reads it to validate team_role offers.
type Team struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`
}

// TeamStaff records a coach holding a role on a team.
type TeamStaff struct {
	BaseModel

	TeamID       string `gorm:"type:varchar(36);not null;uniqueIndex:idx_team_staff_member" json:"team_id"`
	UserID       string `gorm:"type:varchar(64);not null;uniqueIndex:idx_team_staff_member" json:"user_id"`
	Role         string `gorm:"type:varchar(64);not null" json:"role"`
	InvitationID string `gorm:"type:varchar(36);index" json:"invitation_id"`
}

// TableName keeps the staff table name singular-collective.
func (TeamStaff) TableName() string {
	return "team_staff"
}
