package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/scry-assess/internal/api"
	"github.com/phrazzld/scry-assess/internal/config"
	"github.com/phrazzld/scry-assess/internal/domain/mastery"
	"github.com/phrazzld/scry-assess/internal/domain/session"
	"github.com/phrazzld/scry-assess/internal/domain/srs"
	"github.com/phrazzld/scry-assess/internal/events"
	"github.com/phrazzld/scry-assess/internal/platform/postgres"
	"github.com/phrazzld/scry-assess/internal/platform/redis"
	"github.com/phrazzld/scry-assess/internal/service/assessment"
	"github.com/phrazzld/scry-assess/internal/service/auth"
	"github.com/phrazzld/scry-assess/internal/service/cardsync"
	"github.com/phrazzld/scry-assess/internal/service/review"
	"github.com/phrazzld/scry-assess/internal/service/userlock"
	"github.com/phrazzld/scry-assess/internal/store"
	goredis "github.com/redis/go-redis/v9"
)

// application holds the shared dependencies of the server and releases them
// on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  *goredis.Client

	jwtService auth.JWTService
	assessment assessment.Service
	reviews    review.Service
	sync       cardsync.Service
}

// newApplication wires stores, domain engines and services. db must already
// be connected and migrated.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	scale, err := config.LoadScoringScale(cfg.Engine.ScoringScalePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoring scale: %w", err)
	}

	emitter := events.NewInMemoryEventEmitter(logger)
	var locker userlock.Locker = userlock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		app.redis, err = redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		locker = redis.NewLocker(app.redis, time.Duration(cfg.Redis.LockTTLSeconds)*time.Second, logger)
		emitter.RegisterHandler(redis.NewPublisher(app.redis, cfg.Redis.EventChannel, logger))
		logger.Info("redis locking and event publishing enabled", slog.String("addr", cfg.Redis.Addr))
	}

	tx := store.NewSQLTransactor(db)
	cards := postgres.NewPostgresCardStore(db, logger)
	catalog := postgres.NewPostgresCatalogStore(db, logger)
	scheduler := srs.NewServiceWithParams(srsParams(cfg))

	app.assessment = assessment.NewService(assessment.Deps{
		Tx:        tx,
		Sessions:  postgres.NewPostgresSessionStore(db, logger),
		Masteries: postgres.NewPostgresMasteryStore(db, logger),
		Cards:     cards,
		Catalog:   catalog,
		Engine:    session.NewEngine(sessionParams(cfg.Engine)),
		Model:     mastery.NewModel(masteryParams(cfg.Engine)),
		Scheduler: scheduler,
		Scale:     scale,
		Locker:    locker,
		Events:    emitter,
	}, logger)

	app.reviews = review.NewService(review.Deps{
		Tx:        tx,
		Cards:     cards,
		Catalog:   catalog,
		Scheduler: scheduler,
		Events:    emitter,
		MaxBatch:  cfg.Engine.MaxSyncBatch,
	}, logger)

	app.sync = cardsync.NewService(cardsync.Deps{
		Tx:       tx,
		Cards:    cards,
		Catalog:  catalog,
		Locker:   locker,
		MaxBatch: cfg.Engine.MaxSyncBatch,
	}, logger)

	logger.Info("application initialized",
		slog.String("schedule_location", cfg.Engine.Location),
		slog.Int("session_timeout_minutes", cfg.Engine.TimeoutMinutes))
	return app, nil
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()
	if err := app.serve(ctx, app.handler()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (app *application) handler() http.Handler {
	sessions := api.NewSessionHandler(app.assessment, app.config.Engine.TimeoutMinutes, app.logger)
	cards := api.NewCardHandler(app.reviews, app.sync, app.logger)
	return newRouter(app.logger, app.jwtService, sessions, cards)
}

// cleanup releases external connections.
func (app *application) cleanup() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", slog.String("error", err.Error()))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}
	app.logger.Info("application shutdown completed")
}

func masteryParams(cfg config.EngineConfig) *mastery.Params {
	p := mastery.NewDefaultParams()
	if cfg.AlphaMax > 0 {
		p.AlphaMax = cfg.AlphaMax
	}
	if cfg.AlphaMin > 0 {
		p.AlphaMin = cfg.AlphaMin
	}
	if cfg.MasteryK > 0 {
		p.ConfidenceK = cfg.MasteryK
	}
	return p
}

func sessionParams(cfg config.EngineConfig) *session.Params {
	p := session.NewDefaultParams()
	p.Diagnostic = modeDefaults(cfg.Diagnostic, p.Diagnostic)
	p.Practice = modeDefaults(cfg.Practice, p.Practice)
	if cfg.WeakThreshold > 0 {
		p.WeakThreshold = cfg.WeakThreshold
	}
	p.MaxConsecutiveWrong = cfg.MaxConsecutiveWrong
	return p
}

func modeDefaults(cfg config.ModeConfig, fallback session.ModeDefaults) session.ModeDefaults {
	if cfg.MaxQuestions <= 0 {
		return fallback
	}
	return session.ModeDefaults{
		MaxQuestions:     cfg.MaxQuestions,
		MinQuestions:     cfg.MinQuestions,
		TargetConfidence: cfg.TargetConfidence,
	}
}

func srsParams(cfg *config.Config) *srs.Params {
	return srs.NewParams(srs.ParamsConfig{Location: cfg.ScheduleLocation()})
}
