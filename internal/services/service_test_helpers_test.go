package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/database/testutil"
	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/mail"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type invitationFixture struct {
	db          *gorm.DB
	clock       *testClock
	store       *InvitationStore
	grants      *GrantRegistry
	coordinator *ResponseCoordinator
	team        *models.Team
	session     *models.TrialSession
}

func newInvitationFixture(t *testing.T, opts ...testutil.TestDBOption) *invitationFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, append([]testutil.TestDBOption{testutil.WithAutoMigrate()}, opts...)...)
	clock := newTestClock()

	team := &models.Team{Name: "Riverside FC"}
	require.NoError(t, db.Create(team).Error)
	session := &models.TrialSession{
		TeamID:   team.ID,
		Title:    "U18 open trial",
		Location: "Pitch 2",
		StartsAt: clock.Now().Add(10 * day),
	}
	require.NoError(t, db.Create(session).Error)

	store, err := NewInvitationStore(db, WithStoreClock(clock.Now))
	require.NoError(t, err)

	grants, err := NewDefaultGrantRegistry(db, clock.Now)
	require.NoError(t, err)

	return &invitationFixture{
		db:          db,
		clock:       clock,
		store:       store,
		grants:      grants,
		coordinator: newCoordinator(t, store, grants, clock),
		team:        team,
		session:     session,
	}
}

func newCoordinator(t *testing.T, store *InvitationStore, grants *GrantRegistry, clock *testClock) *ResponseCoordinator {
	t.Helper()
	coordinator, err := NewResponseCoordinator(store, grants, WithCoordinatorClock(clock.Now))
	require.NoError(t, err)
	return coordinator
}

func (f *invitationFixture) teamInvite(t *testing.T, recipientID string) (*models.Invitation, string) {
	t.Helper()
	inv, token, err := f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:          "coach-sender",
		SenderDisplayName: "Sam Sender",
		RecipientID:       recipientID,
		Kind:              models.KindTeamRole,
		Subject:           models.SubjectRef{ID: f.team.ID, Role: "assistant_coach"},
	})
	require.NoError(t, err)
	return inv, token
}

func (f *invitationFixture) trialInvite(t *testing.T, recipientID string) (*models.Invitation, string) {
	t.Helper()
	inv, token, err := f.store.Create(context.Background(), CreateInvitationInput{
		SenderID:    f.team.ID,
		RecipientID: recipientID,
		Kind:        models.KindTrial,
		Subject:     models.SubjectRef{ID: f.session.ID},
	})
	require.NoError(t, err)
	return inv, token
}

func (f *invitationFixture) reload(t *testing.T, id string) *models.Invitation {
	t.Helper()
	var inv models.Invitation
	require.NoError(t, f.db.First(&inv, "id = ?", id).Error)
	return &inv
}

type failingGrant struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (g *failingGrant) Describe(context.Context, models.SubjectRef) (map[string]any, error) {
	return map[string]any{}, nil
}

func (g *failingGrant) Grant(context.Context, GrantRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.err
}

func (g *failingGrant) heal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = nil
}

var errRosterUnavailable = errors.New("roster service unavailable")

type recordingMailer struct {
	messages []mail.Message
	err      error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}
