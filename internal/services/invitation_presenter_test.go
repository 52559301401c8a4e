package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/rosterinvites/internal/models"
)

func TestBuildViewPartitionsEveryInvitation(t *testing.T) {
	f := newInvitationFixture(t)
	presenter, err := NewInvitationListPresenter(f.store)
	require.NoError(t, err)

	accepted, _ := f.trialInvite(t, "player-1")
	f.clock.Advance(time.Hour)
	declined, _ := f.teamInvite(t, "player-1")
	f.clock.Advance(time.Hour)
	pending, _, err := f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:    "coach-other",
		RecipientID: "player-1",
		Kind:        models.KindTeamRole,
		Subject:     models.SubjectRef{ID: f.team.ID, Role: "analyst"},
	})
	require.NoError(t, err)

	_, err = f.coordinator.Respond(context.Background(), accepted.ID, "player-1", DecisionAccept)
	require.NoError(t, err)
	_, err = f.coordinator.Respond(context.Background(), declined.ID, "player-1", DecisionDecline)
	require.NoError(t, err)

	all, err := f.store.ListForRecipient(context.Background(), "player-1")
	require.NoError(t, err)

	view, err := presenter.BuildView(context.Background(), "player-1", f.clock.Now())
	require.NoError(t, err)
	require.Len(t, view.Pending, 1)
	require.Len(t, view.History, 2)
	require.Equal(t, len(all), len(view.Pending)+len(view.History))

	seen := make(map[string]int)
	for _, item := range view.Pending {
		require.Equal(t, models.StatusPending, item.Status)
		seen[item.ID]++
	}
	for _, item := range view.History {
		require.True(t, item.Status.Terminal())
		seen[item.ID]++
	}
	for _, inv := range all {
		require.Equal(t, 1, seen[inv.ID], "invitation %s must appear exactly once", inv.ID)
	}

	require.Equal(t, pending.ID, view.Pending[0].ID)
	require.Equal(t, 7, view.Pending[0].DaysRemaining)
	require.True(t, view.Pending[0].CanAccept)

	require.Equal(t, declined.ID, view.History[0].ID)
	require.False(t, view.History[0].GrantCompleted)
	require.Equal(t, accepted.ID, view.History[1].ID)
	require.True(t, view.History[1].GrantCompleted)
}

func TestBuildViewMarksExpiredPendingNonActionable(t *testing.T) {
	f := newInvitationFixture(t)
	presenter, err := NewInvitationListPresenter(f.store)
	require.NoError(t, err)

	f.teamInvite(t, "coach-recipient")

	view, err := presenter.BuildView(context.Background(), "coach-recipient", f.clock.Now().Add(6*day))
	require.NoError(t, err)
	require.Len(t, view.Pending, 1)
	require.False(t, view.Pending[0].Expired)
	require.Equal(t, 1, view.Pending[0].DaysRemaining)

	view, err = presenter.BuildView(context.Background(), "coach-recipient", f.clock.Now().Add(7*day))
	require.NoError(t, err)
	item := view.Pending[0]
	require.True(t, item.Expired)
	require.Zero(t, item.DaysRemaining)
	require.False(t, item.CanAccept)
	require.True(t, item.CanDecline)
	require.Empty(t, view.History)
}

func TestBuildViewEmpty(t *testing.T) {
	f := newInvitationFixture(t)
	presenter, err := NewInvitationListPresenter(f.store)
	require.NoError(t, err)

	view, err := presenter.BuildView(context.Background(), "nobody", f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, view.Pending)
	require.NotNil(t, view.History)
	require.Empty(t, view.Pending)
	require.Empty(t, view.History)
}
