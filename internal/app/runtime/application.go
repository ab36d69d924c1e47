// Package runtime wires configuration, storage and the HTTP server into a
// runnable process.
package runtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	app "github.com/R3E-Network/raffle_engine/internal/app"
	"github.com/R3E-Network/raffle_engine/internal/app/httpapi"
	"github.com/R3E-Network/raffle_engine/internal/app/metrics"
	"github.com/R3E-Network/raffle_engine/internal/app/services/rounds"
	"github.com/R3E-Network/raffle_engine/internal/app/storage/postgres"
	redisstore "github.com/R3E-Network/raffle_engine/internal/app/storage/redis"
	"github.com/R3E-Network/raffle_engine/internal/config"
	"github.com/R3E-Network/raffle_engine/internal/middleware"
	"github.com/R3E-Network/raffle_engine/pkg/logger"
)

// Application wires core dependencies and manages the process lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	db         *sqlx.DB
	rdb        *redis.Client
}

// NewApplication constructs an application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	params := config.DefaultRaffleParams()
	if cfg.RaffleConfigPath != "" {
		params, err = config.LoadRaffleParamsFromPath(cfg.RaffleConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load raffle params: %w", err)
		}
	}

	stores := app.Stores{}
	var db *sqlx.DB
	if cfg.Database.DSN != "" {
		db, err = openDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(db); err != nil {
				db.Close()
				return nil, err
			}
		}
		stores.Rounds = postgres.New(db)
		log.Info("using postgres store")
	} else {
		log.Warn("DATABASE_DSN not set; using in-memory store")
	}

	deps := app.Dependencies{
		WatchdogInterval: time.Duration(cfg.WatchdogIntervalSeconds) * time.Second,
	}

	clock := rounds.NewIntervalClock(time.Now().UTC(),
		time.Duration(params.BlockIntervalSeconds)*time.Second)
	deps.Clock = clock

	switch cfg.Entropy.Source {
	case "beacon":
		if cfg.Entropy.BeaconURL == "" {
			return nil, fmt.Errorf("ENTROPY_BEACON_URL is required for the beacon source")
		}
		deps.Entropy = rounds.NewBeaconSource(cfg.Entropy.BeaconURL,
			time.Duration(cfg.Entropy.HTTPTimeout)*time.Second)
		log.WithField("beacon_url", cfg.Entropy.BeaconURL).Info("using beacon entropy source")
	default:
		deps.Entropy = rounds.NewHashChainSource(cfg.Entropy.ChainSeed, clock)
		log.Warn("using hash-chain entropy source; not suitable for production draws")
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		deps.Publisher = redisstore.NewSnapshotPublisher(rdb)
		log.WithField("addr", cfg.Redis.Addr).Info("snapshot mirroring enabled")
	}

	application, err := app.New(stores, deps, params, log)
	if err != nil {
		return nil, err
	}

	opts := httpapi.Options{
		DrawLimiter: middleware.NewRateLimiter(5, 10),
	}
	if cfg.Auth.JWTSecret != "" {
		opts.OperatorAuth = middleware.NewOperatorAuth(cfg.Auth.JWTSecret, log)
	} else {
		log.Warn("OPERATOR_JWT_SECRET not set; operator endpoints are unauthenticated")
	}

	handler := httpapi.NewHandler(application, opts)
	cors := middleware.NewCORSMiddleware([]string{"*"})
	root := http.NewServeMux()
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", cors.Handler(handler))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      metrics.InstrumentHandler(root),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		db:         db,
		rdb:        rdb,
	}, nil
}

// Run starts the services and the HTTP server, blocking until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, services and connections.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(a.cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis connection")
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

func openDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
