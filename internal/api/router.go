package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/app"
	iauth "github.com/charlesng35/rosterinvites/internal/auth"
	"github.com/charlesng35/rosterinvites/internal/handlers"
	"github.com/charlesng35/rosterinvites/internal/middleware"
	"github.com/charlesng35/rosterinvites/internal/services"
	"github.com/charlesng35/rosterinvites/pkg/mail"
)

// Option customises router construction.
type Option func(*routerOptions)

type routerOptions struct {
	clock  func() time.Time
	mailer mail.Mailer
}

// WithClock overrides the clock used by every invitation service. Tests use it
// to move past expiry without sleeping.
func WithClock(clock func() time.Time) Option {
	return func(o *routerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithMailer sets the mailer used to deliver invitation links.
func WithMailer(m mail.Mailer) Option {
	return func(o *routerOptions) {
		o.mailer = m
	}
}

// Services bundles the invitation components built for the router so the
// server can reuse them for background jobs.
type Services struct {
	Store       *services.InvitationStore
	Coordinator *services.ResponseCoordinator
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, rateStore middleware.RateStore, opts ...Option) (*gin.Engine, *Services, error) {
	if db == nil {
		return nil, nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, nil, fmt.Errorf("config must be provided")
	}
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore()
	}

	options := routerOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}

	svc, handler, err := buildInvitationHandler(db, cfg, options)
	if err != nil {
		return nil, nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowedOrigins...))
	if cfg.RateLimit.Requests > 0 && cfg.RateLimit.Window > 0 {
		r.Use(middleware.RateLimit(rateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	// Health endpoint (public)
	r.GET("/health", handlers.Health(db))

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	registerInvitationRoutes(api, handler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, svc, nil
}

func buildInvitationHandler(db *gorm.DB, cfg *app.Config, options routerOptions) (*Services, *handlers.InvitationHandler, error) {
	storeOpts := []services.StoreOption{services.WithStoreClock(options.clock)}
	if cfg.Invitations.ValidityWindow > 0 {
		storeOpts = append(storeOpts, services.WithValidityWindow(cfg.Invitations.ValidityWindow))
	}
	if cfg.Invitations.TokenBytes > 0 {
		storeOpts = append(storeOpts, services.WithTokenBytes(cfg.Invitations.TokenBytes))
	}

	store, err := services.NewInvitationStore(db, storeOpts...)
	if err != nil {
		return nil, nil, err
	}

	grants, err := services.NewDefaultGrantRegistry(db, options.clock)
	if err != nil {
		return nil, nil, err
	}

	coordinator, err := services.NewResponseCoordinator(store, grants, services.WithCoordinatorClock(options.clock))
	if err != nil {
		return nil, nil, err
	}

	notifier := services.NewInvitationNotifier(options.mailer, cfg.Invitations.BaseURL)
	issuer, err := services.NewInvitationIssuer(store, grants, notifier)
	if err != nil {
		return nil, nil, err
	}

	presenter, err := services.NewInvitationListPresenter(store)
	if err != nil {
		return nil, nil, err
	}

	matcher, err := services.NewTokenMatcher(store)
	if err != nil {
		return nil, nil, err
	}

	handler := handlers.NewInvitationHandler(issuer, store, presenter, matcher, coordinator, options.clock)
	return &Services{Store: store, Coordinator: coordinator}, handler, nil
}
