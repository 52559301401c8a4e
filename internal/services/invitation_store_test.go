package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/crypto"
)

func TestInvitationStoreCreate(t *testing.T) {
	f := newInvitationFixture(t)

	inv, token, err := f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:    "coach-sender",
		RecipientID: "coach-recipient",
		Kind:        models.KindTeamRole,
		Subject:     models.SubjectRef{ID: f.team.ID, Role: " Assistant_Coach "},
		Attributes:  map[string]any{"team_name": f.team.Name},
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, inv.ID)

	require.Equal(t, models.StatusPending, inv.Status)
	require.Equal(t, "assistant_coach", inv.SubjectRole)
	require.Equal(t, "coach-sender", inv.SenderDisplayName)
	require.Nil(t, inv.RespondedAt)
	require.True(t, inv.CreatedAt.Equal(f.clock.Now()))
	require.True(t, inv.ExpiresAt.Equal(f.clock.Now().Add(DefaultValidityWindow)))

	stored := f.reload(t, inv.ID)
	require.Equal(t, crypto.HashToken(token), stored.TokenHash)
	require.NotEqual(t, token, stored.TokenHash)
	require.Equal(t, f.team.Name, stored.Attributes["team_name"])
}

func TestInvitationStoreCreateMintsDistinctTokens(t *testing.T) {
	f := newInvitationFixture(t)

	_, first := f.teamInvite(t, "coach-a")
	_, second := f.teamInvite(t, "coach-b")
	require.NotEqual(t, first, second)
}

func TestInvitationStoreCreateValidation(t *testing.T) {
	f := newInvitationFixture(t)

	cases := map[string]CreateInvitationInput{
		"missing recipient": {SenderID: "s", Kind: models.KindTrial, Subject: models.SubjectRef{ID: "x"}},
		"self invite":       {SenderID: "s", RecipientID: "s", Kind: models.KindTrial, Subject: models.SubjectRef{ID: "x"}},
		"unknown kind":      {SenderID: "s", RecipientID: "r", Kind: "tryout", Subject: models.SubjectRef{ID: "x"}},
		"missing subject":   {SenderID: "s", RecipientID: "r", Kind: models.KindTrial},
		"team without role": {SenderID: "s", RecipientID: "r", Kind: models.KindTeamRole, Subject: models.SubjectRef{ID: "x"}},
		"trial with role":   {SenderID: "s", RecipientID: "r", Kind: models.KindTrial, Subject: models.SubjectRef{ID: "x", Role: "analyst"}},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := f.store.Create(context.Background(), input)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&models.Invitation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestInvitationStoreRejectsDuplicatePending(t *testing.T) {
	f := newInvitationFixture(t)
	f.teamInvite(t, "coach-recipient")

	_, _, err := f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:    "another-coach",
		RecipientID: "coach-recipient",
		Kind:        models.KindTeamRole,
		Subject:     models.SubjectRef{ID: f.team.ID, Role: "assistant_coach"},
	})
	require.ErrorIs(t, err, ErrInvitationAlreadyPending)

	// A different role on the same team is a different offer.
	_, _, err = f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:    "another-coach",
		RecipientID: "coach-recipient",
		Kind:        models.KindTeamRole,
		Subject:     models.SubjectRef{ID: f.team.ID, Role: "analyst"},
	})
	require.NoError(t, err)

	// Once the first offer expires it may be re-issued.
	f.clock.Advance(DefaultValidityWindow)
	f.teamInvite(t, "coach-recipient")
}

func TestInvitationStoreListForRecipientNewestFirst(t *testing.T) {
	f := newInvitationFixture(t)

	first, _ := f.teamInvite(t, "player-1")
	f.clock.Advance(time.Hour)
	second, _ := f.trialInvite(t, "player-1")
	f.clock.Advance(time.Hour)
	f.trialInvite(t, "player-2")

	list, err := f.store.ListForRecipient(context.Background(), "player-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, first.ID, list[1].ID)

	empty, err := f.store.ListForRecipient(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, empty)

	sent, err := f.store.ListForSender(context.Background(), "coach-sender")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, first.ID, sent[0].ID)
}

func TestInvitationStoreFindByToken(t *testing.T) {
	f := newInvitationFixture(t)
	inv, token := f.teamInvite(t, "coach-recipient")

	found, err := f.store.FindByToken(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, inv.ID, found.ID)

	_, err = f.store.FindByToken(context.Background(), "unknown-token")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.store.FindByToken(context.Background(), " ")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.store.FindByToken(context.Background(), crypto.HashToken(token))
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationStoreTransitionExactlyOnce(t *testing.T) {
	f := newInvitationFixture(t)
	inv, _ := f.teamInvite(t, "coach-recipient")

	f.clock.Advance(time.Hour)
	updated, err := f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)
	require.Equal(t, models.StatusAccepted, updated.Status)
	require.NotNil(t, updated.RespondedAt)
	require.True(t, updated.RespondedAt.Equal(f.clock.Now()))

	f.clock.Advance(time.Hour)
	current, err := f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusRejected)
	require.ErrorIs(t, err, ErrInvitationConflict)
	require.Equal(t, models.StatusAccepted, current.Status)

	stored := f.reload(t, inv.ID)
	require.Equal(t, models.StatusAccepted, stored.Status)
	require.True(t, stored.RespondedAt.Equal(*updated.RespondedAt))
}

func TestInvitationStoreTransitionRefusesExpiredAccept(t *testing.T) {
	f := newInvitationFixture(t)
	inv, _ := f.teamInvite(t, "coach-recipient")

	f.clock.Advance(DefaultValidityWindow)
	_, err := f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusAccepted)
	require.ErrorIs(t, err, ErrInvitationExpired)

	stored := f.reload(t, inv.ID)
	require.Equal(t, models.StatusPending, stored.Status)
	require.Nil(t, stored.RespondedAt)

	declined, err := f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusRejected)
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, declined.Status)
}

func TestInvitationStoreTransitionErrors(t *testing.T) {
	f := newInvitationFixture(t)
	inv, _ := f.teamInvite(t, "coach-recipient")

	_, err := f.store.Transition(context.Background(), "missing", models.StatusPending, models.StatusAccepted)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusPending)
	require.ErrorIs(t, err, ErrValidation)
}

func TestInvitationStoreMarkGranted(t *testing.T) {
	f := newInvitationFixture(t)
	inv, _ := f.teamInvite(t, "coach-recipient")

	marked, err := f.store.MarkGranted(context.Background(), inv.ID, f.clock.Now())
	require.NoError(t, err)
	require.False(t, marked, "pending invitations cannot be granted")

	_, err = f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)

	marked, err = f.store.MarkGranted(context.Background(), inv.ID, f.clock.Now())
	require.NoError(t, err)
	require.True(t, marked)

	marked, err = f.store.MarkGranted(context.Background(), inv.ID, f.clock.Now())
	require.NoError(t, err)
	require.False(t, marked)

	require.NotNil(t, f.reload(t, inv.ID).GrantedAt)
}

func TestInvitationStoreMaintenanceQueries(t *testing.T) {
	f := newInvitationFixture(t)
	stale, _ := f.teamInvite(t, "coach-a")
	accepted, _ := f.trialInvite(t, "player-a")

	_, err := f.store.Transition(context.Background(), accepted.ID, models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)

	f.clock.Advance(DefaultValidityWindow + time.Hour)
	f.trialInvite(t, "player-b")

	count, err := f.store.CountExpiredPending(context.Background(), f.clock.Now())
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	ungranted, err := f.store.ListUngranted(context.Background(), f.clock.Now(), 10)
	require.NoError(t, err)
	require.Len(t, ungranted, 1)
	require.Equal(t, accepted.ID, ungranted[0].ID)

	none, err := f.store.ListUngranted(context.Background(), accepted.CreatedAt.Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Empty(t, none)

	require.Equal(t, models.StatusPending, f.reload(t, stale.ID).Status)
}

func TestInvitationStoreRecordGrantFailureDefersRetry(t *testing.T) {
	f := newInvitationFixture(t)
	inv, _ := f.trialInvite(t, "player-a")
	_, err := f.store.Transition(context.Background(), inv.ID, models.StatusPending, models.StatusAccepted)
	require.NoError(t, err)

	attemptedAt := f.clock.Now().Add(time.Hour)
	require.NoError(t, f.store.RecordGrantFailure(context.Background(), inv.ID, attemptedAt))

	stored := f.reload(t, inv.ID)
	require.Equal(t, 1, stored.GrantAttempts)
	require.True(t, stored.LastGrantAttemptAt.Equal(attemptedAt))

	deferred, err := f.store.ListUngranted(context.Background(), f.clock.Now(), 10)
	require.NoError(t, err)
	require.Empty(t, deferred)

	due, err := f.store.ListUngranted(context.Background(), attemptedAt, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, inv.ID, due[0].ID)
}
