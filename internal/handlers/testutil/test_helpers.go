package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/api"
	"github.com/charlesng35/rosterinvites/internal/app"
	iauth "github.com/charlesng35/rosterinvites/internal/auth"
	sharedtestutil "github.com/charlesng35/rosterinvites/internal/database/testutil"
	"github.com/charlesng35/rosterinvites/internal/middleware"
	"github.com/charlesng35/rosterinvites/internal/models"
	"github.com/charlesng35/rosterinvites/pkg/mail"
	"github.com/charlesng35/rosterinvites/pkg/response"
)

// Clock is a manually advanced clock shared by every service in the Env.
type Clock struct {
	mu      sync.Mutex
	current time.Time
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Mailer records outgoing messages instead of sending them.
type Mailer struct {
	mu       sync.Mutex
	Messages []mail.Message
}

// Send stores the message.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.Messages...)
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Clock  *Clock
	Mailer *Mailer
	Config *app.Config
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: 24 * 30 * time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Invitations: app.InvitationConfig{
			ValidityWindow: 7 * 24 * time.Hour,
			TokenBytes:     32,
			BaseURL:        "https://roster.example.com/invitations",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	clock := &Clock{current: time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)}
	mailer := &Mailer{}

	router, _, err := api.NewRouter(db, jwtSvc, cfg, middleware.NewMemoryRateStore(),
		api.WithClock(clock.Now),
		api.WithMailer(mailer),
	)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Clock:  clock,
		Mailer: mailer,
		Config: cfg,
	}
}

// Token mints a bearer token for the given user.
func (e *Env) Token(userID, name, role string) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Name: name, Role: role})
	require.NoError(e.T, err)
	return token
}

// SeedTeam inserts a team invitations can target.
func (e *Env) SeedTeam(name string) *models.Team {
	e.T.Helper()
	team := &models.Team{Name: name}
	require.NoError(e.T, e.DB.Create(team).Error)
	return team
}

// SeedTrialSession inserts a trial session for the given team.
func (e *Env) SeedTrialSession(teamID, title string) *models.TrialSession {
	e.T.Helper()
	session := &models.TrialSession{
		TeamID:   teamID,
		Title:    title,
		Location: "Main pitch",
		StartsAt: e.Clock.Now().Add(72 * time.Hour),
	}
	require.NoError(e.T, e.DB.Create(session).Error)
	return session
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
