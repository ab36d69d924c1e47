package app

import (
	"context"
	"fmt"
	"time"

	"github.com/R3E-Network/raffle_engine/internal/app/services/rounds"
	"github.com/R3E-Network/raffle_engine/internal/app/storage/memory"
	"github.com/R3E-Network/raffle_engine/internal/app/system"
	"github.com/R3E-Network/raffle_engine/internal/config"
	"github.com/R3E-Network/raffle_engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Rounds rounds.Store
}

// Dependencies carries the environment-facing collaborators of the engine.
type Dependencies struct {
	// Clock is the logical height source. Nil defaults to a wall-time
	// interval clock started at construction.
	Clock rounds.BlockClock
	// Entropy resolves draw randomness. Nil defaults to the development
	// hash-chain source keyed by the configured seed.
	Entropy rounds.EntropySource
	// Custodian holds participant value. Nil defaults to the in-process
	// accounting custodian.
	Custodian rounds.Custodian
	// Publisher mirrors snapshots for polling clients. Optional.
	Publisher rounds.SnapshotPublisher
	// WatchdogInterval is the scan period for the round watchdog. Zero
	// disables the watchdog.
	WatchdogInterval time.Duration
}

// Application ties the engine's services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Rounds   *rounds.Service
	Watchdog *rounds.Watchdog
}

// New builds a fully initialised application with the provided stores and
// protocol parameters.
func New(stores Stores, deps Dependencies, params config.RaffleParams, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("raffle params: %w", err)
	}

	if stores.Rounds == nil {
		stores.Rounds = memory.New()
	}
	if deps.Clock == nil {
		deps.Clock = rounds.NewIntervalClock(time.Now().UTC(),
			time.Duration(params.BlockIntervalSeconds)*time.Second)
	}
	if deps.Entropy == nil {
		deps.Entropy = rounds.NewHashChainSource("dev-entropy", deps.Clock)
	}

	opts := []rounds.Option{}
	if deps.Custodian != nil {
		opts = append(opts, rounds.WithCustodian(deps.Custodian))
	}
	if deps.Publisher != nil {
		opts = append(opts, rounds.WithSnapshotPublisher(deps.Publisher))
	}

	roundService := rounds.New(stores.Rounds, deps.Clock, deps.Entropy, params, log, opts...)

	manager := system.NewManager()
	if err := manager.Register(system.NoopService{ServiceName: "rounds"}); err != nil {
		return nil, fmt.Errorf("register rounds service: %w", err)
	}

	appl := &Application{
		manager: manager,
		log:     log,
		Rounds:  roundService,
	}

	if deps.WatchdogInterval > 0 {
		appl.Watchdog = rounds.NewWatchdog(roundService, deps.WatchdogInterval, log)
		if err := manager.Register(watchdogService{appl.Watchdog}); err != nil {
			return nil, fmt.Errorf("register watchdog: %w", err)
		}
	}

	return appl, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services and opens the first round if none
// exists.
func (a *Application) Start(ctx context.Context) error {
	if _, err := a.Rounds.EnsureCurrentRound(ctx); err != nil {
		return fmt.Errorf("open initial round: %w", err)
	}
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

// watchdogService adapts the watchdog to the lifecycle interface.
type watchdogService struct {
	w *rounds.Watchdog
}

func (s watchdogService) Name() string { return "watchdog" }

func (s watchdogService) Start(context.Context) error {
	s.w.Start()
	return nil
}

func (s watchdogService) Stop(context.Context) error {
	s.w.Stop()
	return nil
}
