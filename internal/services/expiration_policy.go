package services

import (
	"time"

	"github.com/charlesng35/rosterinvites/internal/models"
)

const day = 24 * time.Hour

// IsExpired reports whether now has reached the invitation's expiry.
func IsExpired(inv *models.Invitation, now time.Time) bool {
	return !now.Before(inv.ExpiresAt)
}

// DaysRemaining returns the whole days left before expiry, rounded up and never negative.
func DaysRemaining(inv *models.Invitation, now time.Time) int {
	remaining := inv.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}

	days := int(remaining / day)
	if remaining%day != 0 {
		days++
	}
	return days
}
