package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/rosterinvites/internal/api"
	"github.com/charlesng35/rosterinvites/internal/app"
	"github.com/charlesng35/rosterinvites/internal/app/maintenance"
	iauth "github.com/charlesng35/rosterinvites/internal/auth"
	"github.com/charlesng35/rosterinvites/internal/cache"
	"github.com/charlesng35/rosterinvites/internal/database"
	"github.com/charlesng35/rosterinvites/internal/middleware"
	"github.com/charlesng35/rosterinvites/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Cache     cache.Store
	Sweeper   *maintenance.Sweeper
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, counters, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		redisStore, redisErr := cache.NewRedisStore(ctx, cfg.Cache.RedisClientConfig())
		if redisErr != nil {
			log.Warn("redis unavailable; falling back to in-process counters", zap.Error(redisErr))
		} else {
			stack.Cache = redisStore
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}
	if stack.Cache == nil {
		stack.Cache = cache.NewMemoryStore(time.Minute)
	}
	stack.RateStore = middleware.NewCacheRateStore(stack.Cache)

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	var invitations *api.Services
	stack.Router, invitations, err = api.NewRouter(stack.DB, jwtSvc, cfg, stack.RateStore, api.WithMailer(mailer))
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	sweeperOpts := []maintenance.Option{
		maintenance.WithExpirySchedule(cfg.Maintenance.ExpirySchedule),
		maintenance.WithReconcileSchedule(cfg.Maintenance.GrantReconcile.Schedule),
		maintenance.WithGrace(cfg.Maintenance.GrantReconcile.Grace),
		maintenance.WithBatchSize(cfg.Maintenance.GrantReconcile.BatchSize),
	}
	var reconciler maintenance.GrantReconciler
	if cfg.Maintenance.GrantReconcile.Enabled {
		reconciler = invitations.Coordinator
	}
	stack.Sweeper = maintenance.NewSweeper(invitations.Store, reconciler, sweeperOpts...)
	if err := stack.Sweeper.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Sweeper != nil {
		<-s.Sweeper.Stop().Done()
		if err := s.Sweeper.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown pass failed", zap.Error(err))
		}
	}

	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			log.Warn("cache shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config, log *zap.Logger) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
