package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Team{},
		&models.TeamStaff{},
		&models.TrialSession{},
		&models.TrialAttendance{},
		&models.Invitation{},
	)
}
