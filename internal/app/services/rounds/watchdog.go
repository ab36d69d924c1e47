package rounds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
	"github.com/R3E-Network/raffle_engine/pkg/logger"
)

// StuckRound describes a round whose draw window closed before execution.
// Such a round holds participant funds until an operator cancels it.
type StuckRound struct {
	RoundID     uint64 `json:"round_id"`
	WindowEnd   uint64 `json:"window_end"`
	BlockHeight uint64 `json:"block_height"`
	Pool        uint64 `json:"pool"`
}

// Watchdog periodically scans the current round for conditions that need
// attention: an ACTIVE round whose timer expired without a draw request, a
// DRAWING round whose window expired, and a WAITING round that already has
// quorum. It never mutates draw state itself; expiry recovery is an operator
// decision.
type Watchdog struct {
	svc  *Service
	cron *cron.Cron
	log  *logger.Logger
}

// NewWatchdog constructs a watchdog scanning at the given interval.
func NewWatchdog(svc *Service, interval time.Duration, log *logger.Logger) *Watchdog {
	if log == nil {
		log = logger.NewDefault("watchdog")
	}
	w := &Watchdog{
		svc:  svc,
		cron: cron.New(),
		log:  log,
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := w.cron.AddFunc(spec, w.scan); err != nil {
		// Only reachable with a malformed interval.
		log.WithError(err).Fatal("invalid watchdog schedule")
	}
	return w
}

// Start begins the periodic scan.
func (w *Watchdog) Start() {
	w.cron.Start()
	w.log.Info("watchdog started")
}

// Stop halts the scan and waits for a running pass to finish.
func (w *Watchdog) Stop() {
	ctx := w.cron.Stop()
	<-ctx.Done()
	w.log.Info("watchdog stopped")
}

func (w *Watchdog) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	current, err := w.svc.currentRound(ctx)
	if err != nil {
		if !errors.Is(err, round.ErrRoundNotFound) {
			w.log.WithError(err).Warn("watchdog scan failed")
		}
		return
	}

	switch current.Phase {
	case round.PhaseWaiting:
		// Activation normally rides on the deposit path; this catches a
		// round left waiting after a crash between deposit and activation.
		if w.svc.quorumReached(ctx, current.ID) {
			if _, err := w.svc.Activate(ctx, current.ID); err != nil {
				w.log.WithError(err).WithField("round_id", current.ID).Warn("watchdog activation failed")
			}
		}
	case round.PhaseActive:
		if current.TimerExpired(w.svc.now()) {
			_, err := w.svc.RequestDraw(ctx, current.ID)
			switch {
			case err == nil:
				w.log.WithField("round_id", current.ID).Info("watchdog requested draw")
			case round.Retryable(err) || errors.Is(err, round.ErrAlreadyRequested):
			default:
				w.log.WithError(err).WithField("round_id", current.ID).Warn("watchdog draw request failed")
			}
		}
	case round.PhaseDrawing:
		stuck, err := w.svc.Stuck(ctx)
		if err != nil {
			w.log.WithError(err).Warn("watchdog stuck scan failed")
			return
		}
		for _, sr := range stuck {
			w.log.WithField("round_id", sr.RoundID).
				WithField("window_end", sr.WindowEnd).
				WithField("block_height", sr.BlockHeight).
				WithField("pool", sr.Pool).
				Error("draw window expired, round requires operator cancellation")
		}
		if len(stuck) == 0 {
			// Window still open; try to execute.
			if _, err := w.svc.ExecuteDraw(ctx, current.ID); err != nil && !round.Retryable(err) {
				w.log.WithError(err).WithField("round_id", current.ID).Warn("watchdog draw execution failed")
			}
		}
	}
}

// Stuck lists rounds in DRAWING whose execution window has closed.
func (s *Service) Stuck(ctx context.Context) ([]StuckRound, error) {
	rounds, err := s.store.ListRounds(ctx, 0)
	if err != nil {
		return nil, err
	}
	height := s.clock.Height()
	var stuck []StuckRound
	for _, r := range rounds {
		if r.Phase != round.PhaseDrawing {
			continue
		}
		req, err := s.store.GetDrawRequest(ctx, r.ID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		if req.Expired(height) {
			stuck = append(stuck, StuckRound{
				RoundID:     r.ID,
				WindowEnd:   req.WindowEnd,
				BlockHeight: height,
				Pool:        r.Pool,
			})
		}
	}
	return stuck, nil
}
