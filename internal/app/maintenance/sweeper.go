package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/rosterinvites/pkg/logger"
	"github.com/charlesng35/rosterinvites/pkg/metrics"
)

const (
	defaultExpirySpec    = "@hourly"
	defaultReconcileSpec = "@every 15m"
	defaultGrace         = 5 * time.Minute
	defaultBatchSize     = 100
)

// ExpiryCounter reports pending invitations whose window has closed.
type ExpiryCounter interface {
	CountExpiredPending(ctx context.Context, now time.Time) (int64, error)
}

// GrantReconciler re-runs grants for accepted invitations that never completed.
type GrantReconciler interface {
	ReconcileGrants(ctx context.Context, acceptedBefore time.Time, limit int) (int, error)
}

// Sweeper runs periodic invitation housekeeping. Expiry is derived at read time,
// so the expiry job only publishes a gauge; it never rewrites invitation state.
type Sweeper struct {
	expiry     ExpiryCounter
	reconciler GrantReconciler
	cron       *cron.Cron
	now        func() time.Time
	log        *zap.Logger

	expirySchedule    string
	reconcileSchedule string
	grace             time.Duration
	batchSize         int
}

// Option customises the Sweeper.
type Option func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used when evaluating expiry and grace periods.
func WithNow(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpirySchedule overrides the cron specification for the expiry gauge refresh.
func WithExpirySchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.expirySchedule = spec
		}
	}
}

// WithReconcileSchedule overrides the cron specification for grant reconciliation.
func WithReconcileSchedule(spec string) Option {
	return func(s *Sweeper) {
		if spec != "" {
			s.reconcileSchedule = spec
		}
	}
}

// WithGrace sets how long an accepted invitation may stay ungranted before it is retried.
func WithGrace(d time.Duration) Option {
	return func(s *Sweeper) {
		if d >= 0 {
			s.grace = d
		}
	}
}

// WithBatchSize caps how many invitations one reconcile pass handles.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// NewSweeper constructs a Sweeper. A nil dependency disables the corresponding job.
func NewSweeper(expiry ExpiryCounter, reconciler GrantReconciler, opts ...Option) *Sweeper {
	s := &Sweeper{
		expiry:            expiry,
		reconciler:        reconciler,
		now:               time.Now,
		expirySchedule:    defaultExpirySpec,
		reconcileSchedule: defaultReconcileSpec,
		grace:             defaultGrace,
		batchSize:         defaultBatchSize,
		log:               logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the enabled jobs and launches the scheduler when at least one exists.
func (s *Sweeper) Start() error {
	if s.expiry == nil && s.reconciler == nil {
		return nil
	}

	if s.expiry != nil {
		if _, err := s.cron.AddFunc(s.expirySchedule, func() {
			if err := s.refreshExpired(context.Background()); err != nil {
				s.log.Warn("expired invitation count failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if s.reconciler != nil {
		if _, err := s.cron.AddFunc(s.reconcileSchedule, func() {
			if err := s.reconcile(context.Background()); err != nil {
				s.log.Warn("grant reconcile failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Sweeper) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every configured job sequentially.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	if s.expiry != nil {
		errs = multierr.Append(errs, s.refreshExpired(ctx))
	}
	if s.reconciler != nil {
		errs = multierr.Append(errs, s.reconcile(ctx))
	}
	return errs
}

func (s *Sweeper) refreshExpired(ctx context.Context) error {
	count, err := s.expiry.CountExpiredPending(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	metrics.ExpiredPendingInvitations.Set(float64(count))
	return nil
}

func (s *Sweeper) reconcile(ctx context.Context) error {
	cutoff := s.now().UTC().Add(-s.grace)
	healed, err := s.reconciler.ReconcileGrants(ctx, cutoff, s.batchSize)
	if healed > 0 {
		s.log.Info("reconciled grants", zap.Int("count", healed))
	}
	if err != nil {
		return fmt.Errorf("maintenance: reconcile grants: %w", err)
	}
	return nil
}
