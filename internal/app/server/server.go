package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"siteadmin/internal/domain/audit"
	"siteadmin/internal/domain/payroll"
	"siteadmin/internal/domain/payslip"
	"siteadmin/internal/platform/cache"
	"siteadmin/internal/platform/config"
	"siteadmin/internal/platform/db"
	"siteadmin/internal/platform/email"
	"siteadmin/internal/platform/events"
	"siteadmin/internal/platform/jobs"
	"siteadmin/internal/platform/logging"
	"siteadmin/internal/platform/metrics"
	"siteadmin/internal/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

type eventPublisher interface {
	payroll.EventPublisher
	Close() error
}

type App struct {
	Config  config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Events  eventPublisher
	Metrics *metrics.Collector
	Router  http.Handler
}

// New connects every backing service and builds the router. Close releases
// what New opened.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app := &App{Config: cfg, DB: pool, Metrics: metrics.New()}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	app.Redis, err = cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, rate cache and idempotency disabled")
		app.Redis = nil
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		app.Events = events.NewKafkaPublisher(brokers, cfg.KafkaTopicPayroll)
	} else {
		app.Events = events.Noop{}
	}

	store := payroll.NewStore(pool)
	var rates payroll.RateResolver = payroll.NewStoreResolver(store)
	if app.Redis != nil {
		rates = payroll.NewCachedResolver(rates, app.Redis, cfg.RateCacheTTL)
	}

	service := payroll.NewService(payroll.Dependencies{
		Store: store,
		Rates: rates,
		Renderer: payslip.NewRenderer(payslip.Issuer{
			Name:           cfg.IssuerName,
			RUT:            cfg.IssuerRUT,
			Address:        cfg.IssuerAddress,
			Representative: cfg.IssuerRepresentative,
		}),
		Mailer:    email.New(cfg),
		Events:    app.Events,
		Metrics:   app.Metrics,
		EmailFrom: cfg.EmailFrom,
	})

	var idem *middleware.IdempotencyStore
	if app.Redis != nil {
		idem = middleware.NewIdempotencyStore(app.Redis)
	}

	app.Router = NewRouter(cfg, RouterDeps{
		Payroll:     service,
		Audit:       audit.New(pool),
		Jobs:        jobs.New(pool),
		Idempotency: idem,
		Metrics:     app.Metrics,
		Ready:       pool.Ping,
	})
	return app, nil
}

func (a *App) Close() {
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			log.Warn().Err(err).Msg("event publisher close failed")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			log.Warn().Err(err).Msg("redis close failed")
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Serve listens until ctx is cancelled, then drains in-flight requests.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.Config.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", a.Config.Addr).Msg("payroll server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.Environment)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.Serve(ctx)
}
