package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/rosterinvites/internal/models"
	apperrors "github.com/charlesng35/rosterinvites/pkg/errors"
)

// StaffRoles lists the coaching roles a team_role invitation may offer.
var StaffRoles = []string{
	"head_coach",
	"assistant_coach",
	"goalkeeper_coach",
	"fitness_coach",
	"analyst",
}

// TeamStaffGrant adds an accepting coach to a team's staff.
type TeamStaffGrant struct {
	db *gorm.DB
}

// NewTeamStaffGrant constructs the team_role grant executor.
func NewTeamStaffGrant(db *gorm.DB) (*TeamStaffGrant, error) {
	if db == nil {
		return nil, errors.New("team staff grant: db is required")
	}
	return &TeamStaffGrant{db: db}, nil
}

// Describe checks the team exists and the role is a known staff role.
func (g *TeamStaffGrant) Describe(ctx context.Context, subject models.SubjectRef) (map[string]any, error) {
	role := strings.ToLower(strings.TrimSpace(subject.Role))
	if !containsString(StaffRoles, role) {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown staff role %q", subject.Role))
	}

	var team models.Team
	if err := g.db.WithContext(ctx).First(&team, "id = ?", strings.TrimSpace(subject.ID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewValidation("team not found")
		}
		return nil, fmt.Errorf("team staff grant: load team: %w", err)
	}

	return map[string]any{
		"team_name": team.Name,
		"role":      role,
	}, nil
}

// Grant inserts the staff membership. A coach already on the team takes the
// offered role, so accepting a new role on the same team is not a no-op.
func (g *TeamStaffGrant) Grant(ctx context.Context, req GrantRequest) error {
	member := &models.TeamStaff{
		TeamID:       req.Subject.ID,
		UserID:       req.RecipientID,
		Role:         strings.ToLower(strings.TrimSpace(req.Subject.Role)),
		InvitationID: req.InvitationID,
	}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "invitation_id", "updated_at"}),
		}).
		Create(member).Error
	if err != nil {
		return fmt.Errorf("team staff grant: add member: %w", err)
	}
	return nil
}
