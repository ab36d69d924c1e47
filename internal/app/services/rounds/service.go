// Package rounds implements the raffle round engine: escrow intake, round
// activation, ticket accounting, the two-phase commit/reveal draw, payout
// splitting and cancellation refunds.
//
// The engine is a single-writer state machine. At most one round is in a
// non-terminal phase at any time, and every mutating operation is serialized
// behind one lock; read-only queries are served from snapshots without it.
package rounds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/payout"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
	"github.com/R3E-Network/raffle_engine/internal/app/metrics"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
	"github.com/R3E-Network/raffle_engine/internal/config"
	"github.com/R3E-Network/raffle_engine/pkg/logger"
)

// Store bundles the persistence interfaces the engine mutates.
type Store interface {
	storage.RoundStore
	storage.EscrowStore
	storage.TicketStore
	storage.DrawStore
	storage.RefundStore
	storage.PayoutStore
}

// SnapshotPublisher mirrors round snapshots for polling clients. Publishing
// is best effort; a publish failure never fails the operation.
type SnapshotPublisher interface {
	Publish(ctx context.Context, snap round.Snapshot) error
}

// DrawResult is the outcome of an executed draw.
type DrawResult struct {
	RoundID uint64 `json:"round_id"`
	Winner  string `json:"winner"`
	Prize   uint64 `json:"prize"`
	Index   uint64 `json:"index"`
}

// Service is the round engine. All phase mutation goes through it.
type Service struct {
	mu sync.Mutex

	store     Store
	clock     BlockClock
	entropy   EntropySource
	custodian Custodian
	params    config.RaffleParams
	publisher SnapshotPublisher
	log       *logger.Logger
	now       func() time.Time
}

// Option customises service construction.
type Option func(*Service)

// WithCustodian replaces the default in-process custodian.
func WithCustodian(c Custodian) Option {
	return func(s *Service) { s.custodian = c }
}

// WithSnapshotPublisher attaches a snapshot mirror.
func WithSnapshotPublisher(p SnapshotPublisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithNowFunc overrides the wall clock, for tests.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New constructs the round engine.
func New(store Store, clock BlockClock, entropy EntropySource, params config.RaffleParams, log *logger.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewDefault("rounds")
	}
	s := &Service{
		store:     store,
		clock:     clock,
		entropy:   entropy,
		custodian: NewAccountingCustodian(),
		params:    params,
		log:       log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params returns the protocol parameters the engine runs with.
func (s *Service) Params() config.RaffleParams { return s.params }

// EnsureCurrentRound returns the current round, creating the first WAITING
// round if none exists yet.
func (s *Service) EnsureCurrentRound(ctx context.Context) (round.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.GetCurrentRound(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return s.newWaitingRound(ctx)
	}
	if err != nil {
		return round.Round{}, err
	}
	if current.Phase.Terminal() {
		return s.newWaitingRound(ctx)
	}
	return current, nil
}

// Deposit places value into escrow while the round is WAITING. Tickets are
// awarded 1:1 with the amount. When the deposit brings the round to two
// distinct participants the round activates.
func (s *Service) Deposit(ctx context.Context, participantID string, amount uint64) (ticket.TicketReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentRound(ctx)
	if err != nil {
		return ticket.TicketReceipt{}, err
	}
	if current.Phase != round.PhaseWaiting {
		return ticket.TicketReceipt{}, fmt.Errorf("%w: deposit requires WAITING, round %d is %s",
			round.ErrInvalidPhaseTransition, current.ID, current.Phase)
	}
	if err := s.checkAmount(ctx, current, participantID, amount); err != nil {
		return ticket.TicketReceipt{}, err
	}

	// Custody is part of the transaction boundary: no ticket exists unless
	// the value is held.
	if err := s.custodian.Hold(ctx, participantID, amount); err != nil {
		return ticket.TicketReceipt{}, fmt.Errorf("custody hold: %w", err)
	}

	dep, err := s.store.GetEscrowDeposit(ctx, current.ID, participantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.compensate(ctx, participantID, amount)
		return ticket.TicketReceipt{}, err
	}
	dep.RoundID = current.ID
	dep.ParticipantID = participantID
	dep.Amount += amount
	dep.Tickets += amount
	if _, err := s.store.UpsertEscrowDeposit(ctx, dep); err != nil {
		s.compensate(ctx, participantID, amount)
		return ticket.TicketReceipt{}, err
	}

	current, err = s.bumpVersion(ctx, current)
	if err != nil {
		return ticket.TicketReceipt{}, err
	}
	metrics.RecordDeposit(amount)
	s.log.WithField("round_id", current.ID).
		WithField("participant_id", participantID).
		WithField("amount", amount).
		Info("escrow deposit accepted")

	// Activation is opportunistic: the escrow feed drives WAITING -> ACTIVE.
	if s.quorumReached(ctx, current.ID) {
		if _, err := s.activateLocked(ctx, current.ID); err != nil {
			s.log.WithError(err).WithField("round_id", current.ID).Warn("auto-activation failed")
		}
	}

	s.publishSnapshot(ctx, current.ID)
	return ticket.TicketReceipt{
		ID:            uuid.NewString(),
		RoundID:       current.ID,
		ParticipantID: participantID,
		Amount:        amount,
		Tickets:       amount,
		TotalTickets:  dep.Tickets,
		Escrowed:      true,
		IssuedAt:      s.now().UTC(),
	}, nil
}

// Withdraw returns a participant's full escrow deposit. Legal only while the
// round is WAITING; there is no fee and no partial withdrawal.
func (s *Service) Withdraw(ctx context.Context, participantID string) (ticket.RefundReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentRound(ctx)
	if err != nil {
		return ticket.RefundReceipt{}, err
	}
	if current.Phase != round.PhaseWaiting {
		return ticket.RefundReceipt{}, fmt.Errorf("%w: withdraw requires WAITING, round %d is %s",
			round.ErrInvalidPhaseTransition, current.ID, current.Phase)
	}

	dep, err := s.store.GetEscrowDeposit(ctx, current.ID, participantID)
	if errors.Is(err, storage.ErrNotFound) {
		return ticket.RefundReceipt{}, round.ErrNothingToWithdraw
	}
	if err != nil {
		return ticket.RefundReceipt{}, err
	}

	if err := s.custodian.Refund(ctx, participantID, dep.Amount); err != nil {
		return ticket.RefundReceipt{}, fmt.Errorf("custody refund: %w", err)
	}
	if err := s.store.DeleteEscrowDeposit(ctx, current.ID, participantID); err != nil {
		return ticket.RefundReceipt{}, err
	}
	if _, err := s.bumpVersion(ctx, current); err != nil {
		return ticket.RefundReceipt{}, err
	}

	metrics.RecordWithdrawal(dep.Amount)
	s.log.WithField("round_id", current.ID).
		WithField("participant_id", participantID).
		WithField("amount", dep.Amount).
		Info("escrow deposit withdrawn")
	s.publishSnapshot(ctx, current.ID)

	return ticket.RefundReceipt{
		ID:            uuid.NewString(),
		RoundID:       current.ID,
		ParticipantID: participantID,
		Amount:        dep.Amount,
		IssuedAt:      s.now().UTC(),
	}, nil
}

// AddTickets buys tickets in an ACTIVE round. It is the same add-value
// operation as Deposit, gated on the other side of activation.
func (s *Service) AddTickets(ctx context.Context, participantID string, amount uint64) (ticket.TicketReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.currentRound(ctx)
	if err != nil {
		return ticket.TicketReceipt{}, err
	}
	if current.Phase != round.PhaseActive {
		return ticket.TicketReceipt{}, fmt.Errorf("%w: ticket purchase requires ACTIVE, round %d is %s",
			round.ErrInvalidPhaseTransition, current.ID, current.Phase)
	}
	if err := s.checkAmount(ctx, current, participantID, amount); err != nil {
		return ticket.TicketReceipt{}, err
	}

	if err := s.custodian.Hold(ctx, participantID, amount); err != nil {
		return ticket.TicketReceipt{}, fmt.Errorf("custody hold: %w", err)
	}

	pos, err := s.store.GetPosition(ctx, current.ID, participantID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.compensate(ctx, participantID, amount)
		return ticket.TicketReceipt{}, err
	}
	pos.RoundID = current.ID
	pos.ParticipantID = participantID
	pos.Tickets += amount
	pos.Amount += amount
	if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
		s.compensate(ctx, participantID, amount)
		return ticket.TicketReceipt{}, err
	}

	current.TotalTickets += amount
	current.Pool += amount
	current, err = s.bumpVersion(ctx, current)
	if err != nil {
		return ticket.TicketReceipt{}, err
	}

	positions, err := s.store.ListPositions(ctx, current.ID)
	if err != nil {
		return ticket.TicketReceipt{}, err
	}
	if err := verifyLedger(current, positions); err != nil {
		s.log.WithError(err).WithField("round_id", current.ID).Error("ledger check failed")
		return ticket.TicketReceipt{}, err
	}

	metrics.RecordTicketPurchase(amount)
	s.log.WithField("round_id", current.ID).
		WithField("participant_id", participantID).
		WithField("tickets", amount).
		Info("tickets added")
	s.publishSnapshot(ctx, current.ID)

	return ticket.TicketReceipt{
		ID:            uuid.NewString(),
		RoundID:       current.ID,
		ParticipantID: participantID,
		Amount:        amount,
		Tickets:       amount,
		TotalTickets:  pos.Tickets,
		IssuedAt:      s.now().UTC(),
	}, nil
}

// Activate moves a WAITING round to ACTIVE, migrating every escrow deposit
// 1:1 into an active ticket position. It fails with InsufficientParticipants
// below two distinct depositors; the protocol seed deposit does not count
// toward that quorum.
func (s *Service) Activate(ctx context.Context, roundID uint64) (round.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activateLocked(ctx, roundID)
}

func (s *Service) activateLocked(ctx context.Context, roundID uint64) (round.Round, error) {
	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return round.Round{}, err
	}
	if r.Phase != round.PhaseWaiting {
		return round.Round{}, fmt.Errorf("%w: activate requires WAITING, round %d is %s",
			round.ErrInvalidPhaseTransition, r.ID, r.Phase)
	}

	deposits, err := s.store.ListEscrowDeposits(ctx, r.ID)
	if err != nil {
		return round.Round{}, err
	}
	if countQuorum(deposits, s.params.SeedParticipantID) < 2 {
		return round.Round{}, round.ErrInsufficientParticipants
	}

	var totalTickets, pool uint64
	for _, dep := range deposits {
		pos := ticket.Position{
			RoundID:       r.ID,
			ParticipantID: dep.ParticipantID,
			Tickets:       dep.Tickets,
			Amount:        dep.Amount,
		}
		if _, err := s.store.UpsertPosition(ctx, pos); err != nil {
			return round.Round{}, fmt.Errorf("migrate escrow for %s: %w", dep.ParticipantID, err)
		}
		totalTickets += dep.Tickets
		pool += dep.Amount
	}
	if err := s.store.ClearEscrow(ctx, r.ID); err != nil {
		return round.Round{}, err
	}

	r.Phase = round.PhaseActive
	r.EndTime = s.now().UTC().Add(time.Duration(s.params.RoundDurationSeconds) * time.Second)
	r.TotalTickets = totalTickets
	r.Pool = pool
	r, err = s.bumpVersion(ctx, r)
	if err != nil {
		return round.Round{}, err
	}

	positions, err := s.store.ListPositions(ctx, r.ID)
	if err != nil {
		return round.Round{}, err
	}
	if err := verifyLedger(r, positions); err != nil {
		return round.Round{}, err
	}

	metrics.RecordActivation(len(deposits), pool)
	s.log.WithField("round_id", r.ID).
		WithField("participants", len(deposits)).
		WithField("pool", pool).
		WithField("end_time", r.EndTime).
		Info("round activated")
	s.publishSnapshot(ctx, r.ID)
	return r, nil
}

// RequestDraw is the commit half of the draw. It is permissionless: any
// caller may trigger it once the round timer has expired. It commits the
// round to entropy that becomes determinable only after the confirmation
// delay, and opens a bounded execution window.
func (s *Service) RequestDraw(ctx context.Context, roundID uint64) (round.DrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return round.DrawRequest{}, err
	}
	if r.Phase != round.PhaseActive {
		if r.Phase == round.PhaseDrawing {
			return round.DrawRequest{}, round.ErrAlreadyRequested
		}
		return round.DrawRequest{}, fmt.Errorf("%w: draw request requires ACTIVE, round %d is %s",
			round.ErrInvalidPhaseTransition, r.ID, r.Phase)
	}
	if !r.TimerExpired(s.now().UTC()) {
		return round.DrawRequest{}, fmt.Errorf("%w: round %d timer has not expired", round.ErrDrawNotReady, r.ID)
	}
	if r.TotalTickets < s.params.MinTicketsToDraw {
		return round.DrawRequest{}, round.ErrNoTicketsToDraw
	}

	height := s.clock.Height()
	req := round.DrawRequest{
		RoundID:     r.ID,
		RequestedAt: height,
		WindowStart: height + s.params.ConfirmationDelay,
		WindowEnd:   height + s.params.ConfirmationDelay + s.params.DrawWindow,
		CreatedAt:   s.now().UTC(),
	}
	if _, err := s.store.CreateDrawRequest(ctx, req); err != nil {
		return round.DrawRequest{}, err
	}

	r.Phase = round.PhaseDrawing
	if _, err := s.bumpVersion(ctx, r); err != nil {
		return round.DrawRequest{}, err
	}

	metrics.RecordDrawRequested()
	s.log.WithField("round_id", r.ID).
		WithField("requested_at_block", req.RequestedAt).
		WithField("window_start", req.WindowStart).
		WithField("window_end", req.WindowEnd).
		Info("draw requested")
	s.publishSnapshot(ctx, r.ID)
	return req, nil
}

// ExecuteDraw is the reveal half of the draw. It consumes the entropy fixed
// at the committed height, selects the winner over cumulative ticket ranges,
// splits the pool and finalizes the round. An expired window is terminal:
// the draw is never rerun with fresh entropy.
func (s *Service) ExecuteDraw(ctx context.Context, roundID uint64) (DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return DrawResult{}, err
	}
	if r.Phase != round.PhaseDrawing {
		return DrawResult{}, fmt.Errorf("%w: draw execution requires DRAWING, round %d is %s",
			round.ErrInvalidPhaseTransition, r.ID, r.Phase)
	}

	req, err := s.store.GetDrawRequest(ctx, r.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return DrawResult{}, round.ErrDrawNotRequested
	}
	if err != nil {
		return DrawResult{}, err
	}

	height := s.clock.Height()
	if height < req.WindowStart {
		return DrawResult{}, fmt.Errorf("%w: block %d, executable from %d", round.ErrDrawNotReady, height, req.WindowStart)
	}
	if req.Expired(height) {
		metrics.RecordDrawExpired()
		return DrawResult{}, fmt.Errorf("%w: block %d, window closed at %d", round.ErrDrawWindowExpired, height, req.WindowEnd)
	}

	// Entropy is read for the committed window start, not the current
	// height, so the value is the one nobody could know at request time.
	entropy, err := s.entropy.EntropyAt(ctx, req.WindowStart)
	if err != nil {
		if errors.Is(err, round.ErrRandomnessUnavailable) {
			return DrawResult{}, err
		}
		return DrawResult{}, fmt.Errorf("%w: %v", round.ErrRandomnessUnavailable, err)
	}

	positions, err := s.store.ListPositions(ctx, r.ID)
	if err != nil {
		return DrawResult{}, err
	}
	winner, index, err := SelectWinner(positions, entropy)
	if err != nil {
		return DrawResult{}, fmt.Errorf("select winner: %w", err)
	}

	dist := splitPool(r.ID, r.Pool, winner.ParticipantID, s.params.Shares)

	req.Entropy = entropy
	if _, err := s.store.UpdateDrawRequest(ctx, req); err != nil {
		return DrawResult{}, err
	}
	if _, err := s.store.CreateDistribution(ctx, dist); err != nil {
		return DrawResult{}, err
	}
	if err := s.settle(ctx, dist); err != nil {
		return DrawResult{}, err
	}

	r.Phase = round.PhaseComplete
	r.Winner = winner.ParticipantID
	r.WinnerPrize = dist.Prize
	if r, err = s.bumpVersion(ctx, r); err != nil {
		return DrawResult{}, err
	}

	metrics.RecordDrawExecuted(dist.Prize)
	s.log.WithField("round_id", r.ID).
		WithField("winner", winner.ParticipantID).
		WithField("prize", dist.Prize).
		WithField("index", index).
		Info("draw executed")
	s.publishSnapshot(ctx, r.ID)

	if _, err := s.rolloverLocked(ctx, dist.NextSeed); err != nil {
		s.log.WithError(err).Warn("next round rollover failed")
	}

	return DrawResult{RoundID: r.ID, Winner: winner.ParticipantID, Prize: dist.Prize, Index: index}, nil
}

// Cancel refunds every recorded deposit and ticket position in full and
// moves the round to CANCELLED. The refund batch is idempotent per
// participant and safe to retry after a partial failure: already-recorded
// refunds are skipped and the phase only flips once every refund is on
// record.
func (s *Service) Cancel(ctx context.Context, roundID uint64, reason string) (ticket.RefundBatchReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return ticket.RefundBatchReceipt{}, err
	}
	if r.Phase.Terminal() {
		return ticket.RefundBatchReceipt{}, fmt.Errorf("%w: round %d already %s",
			round.ErrInvalidPhaseTransition, r.ID, r.Phase)
	}

	deposits, err := s.store.ListEscrowDeposits(ctx, r.ID)
	if err != nil {
		return ticket.RefundBatchReceipt{}, err
	}
	positions, err := s.store.ListPositions(ctx, r.ID)
	if err != nil {
		return ticket.RefundBatchReceipt{}, err
	}

	type owed struct {
		participantID string
		amount        uint64
	}
	refundables := make([]owed, 0, len(deposits)+len(positions))
	for _, dep := range deposits {
		refundables = append(refundables, owed{dep.ParticipantID, dep.Amount})
	}
	for _, pos := range positions {
		refundables = append(refundables, owed{pos.ParticipantID, pos.Amount})
	}

	var total uint64
	refunded := 0
	for _, o := range refundables {
		if _, err := s.store.GetRefund(ctx, r.ID, o.participantID); err == nil {
			// Already refunded in a previous attempt.
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			return ticket.RefundBatchReceipt{}, err
		}
		if err := s.custodian.Refund(ctx, o.participantID, o.amount); err != nil {
			return ticket.RefundBatchReceipt{}, fmt.Errorf("refund %s: %w", o.participantID, err)
		}
		if _, err := s.store.CreateRefund(ctx, ticket.Refund{
			ID:            uuid.NewString(),
			RoundID:       r.ID,
			ParticipantID: o.participantID,
			Amount:        o.amount,
			Reason:        reason,
			RefundedAt:    s.now().UTC(),
		}); err != nil {
			return ticket.RefundBatchReceipt{}, err
		}
		refunded++
	}

	refunds, err := s.store.ListRefunds(ctx, r.ID)
	if err != nil {
		return ticket.RefundBatchReceipt{}, err
	}
	for _, ref := range refunds {
		total += ref.Amount
	}

	r.Phase = round.PhaseCancelled
	r.CancelReason = reason
	if r, err = s.bumpVersion(ctx, r); err != nil {
		return ticket.RefundBatchReceipt{}, err
	}

	metrics.RecordCancellation(len(refunds), total)
	s.log.WithField("round_id", r.ID).
		WithField("reason", reason).
		WithField("participants", len(refunds)).
		WithField("refunded", total).
		Warn("round cancelled, all participants refunded")
	s.publishSnapshot(ctx, r.ID)

	if _, err := s.rolloverLocked(ctx, 0); err != nil {
		s.log.WithError(err).Warn("next round rollover failed")
	}

	return ticket.RefundBatchReceipt{
		ID:            uuid.NewString(),
		RoundID:       r.ID,
		Reason:        reason,
		Participants:  len(refunds),
		TotalRefunded: total,
		IssuedAt:      s.now().UTC(),
	}, nil
}

// Snapshot returns the read-only view of a round.
func (s *Service) Snapshot(ctx context.Context, roundID uint64) (round.Snapshot, error) {
	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return round.Snapshot{}, err
	}
	return s.buildSnapshot(ctx, r)
}

// CurrentSnapshot returns the read-only view of the current round.
func (s *Service) CurrentSnapshot(ctx context.Context) (round.Snapshot, error) {
	r, err := s.currentRound(ctx)
	if err != nil {
		return round.Snapshot{}, err
	}
	return s.buildSnapshot(ctx, r)
}

// ListRounds returns recent rounds, newest first.
func (s *Service) ListRounds(ctx context.Context, limit int) ([]round.Round, error) {
	return s.store.ListRounds(ctx, limit)
}

// Distribution returns the payout split of a completed round.
func (s *Service) Distribution(ctx context.Context, roundID uint64) (payout.Distribution, error) {
	dist, err := s.store.GetDistribution(ctx, roundID)
	if errors.Is(err, storage.ErrNotFound) {
		return payout.Distribution{}, round.ErrRoundNotFound
	}
	return dist, err
}

// DrawRequest returns the draw request of a round, if one was made.
func (s *Service) DrawRequest(ctx context.Context, roundID uint64) (round.DrawRequest, error) {
	req, err := s.store.GetDrawRequest(ctx, roundID)
	if errors.Is(err, storage.ErrNotFound) {
		return round.DrawRequest{}, round.ErrDrawNotRequested
	}
	return req, err
}

// Weight returns a participant's display-only win probability in a round.
func (s *Service) Weight(ctx context.Context, roundID uint64, participantID string) (float64, error) {
	positions, err := s.store.ListPositions(ctx, roundID)
	if err != nil {
		return 0, err
	}
	return WeightOf(positions, participantID), nil
}

// Clock exposes the logical clock, for the watchdog and handlers.
func (s *Service) Clock() BlockClock { return s.clock }

// internal helpers -----------------------------------------------------------

func (s *Service) currentRound(ctx context.Context) (round.Round, error) {
	r, err := s.store.GetCurrentRound(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return round.Round{}, round.ErrRoundNotFound
	}
	return r, err
}

func (s *Service) getRound(ctx context.Context, id uint64) (round.Round, error) {
	r, err := s.store.GetRound(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return round.Round{}, round.ErrRoundNotFound
	}
	return r, err
}

func (s *Service) bumpVersion(ctx context.Context, r round.Round) (round.Round, error) {
	r.Version++
	return s.store.UpdateRound(ctx, r)
}

func (s *Service) checkAmount(ctx context.Context, r round.Round, participantID string, amount uint64) error {
	if amount < s.params.MinDeposit {
		return fmt.Errorf("%w: %d is below minimum %d", round.ErrBelowMinimumDeposit, amount, s.params.MinDeposit)
	}
	deposits, err := s.store.ListEscrowDeposits(ctx, r.ID)
	if err != nil {
		return err
	}
	positions, err := s.store.ListPositions(ctx, r.ID)
	if err != nil {
		return err
	}
	held := heldTickets(deposits, positions, participantID)
	if held+amount > s.params.MaxTicketsPerWallet {
		return fmt.Errorf("%w: %d held + %d requested exceeds ceiling %d",
			round.ErrTicketLimitExceeded, held, amount, s.params.MaxTicketsPerWallet)
	}
	return nil
}

func (s *Service) quorumReached(ctx context.Context, roundID uint64) bool {
	deposits, err := s.store.ListEscrowDeposits(ctx, roundID)
	if err != nil {
		return false
	}
	return countQuorum(deposits, s.params.SeedParticipantID) >= 2
}

// countQuorum counts distinct depositors, excluding the protocol seed
// account. A participant depositing twice counts once.
func countQuorum(deposits []ticket.EscrowDeposit, seedID string) int {
	count := 0
	for _, dep := range deposits {
		if dep.ParticipantID == seedID {
			continue
		}
		count++
	}
	return count
}

// settle pays out every non-seed share. The seed share stays in custody and
// becomes the next round's escrow deposit.
func (s *Service) settle(ctx context.Context, dist payout.Distribution) error {
	payments := []struct {
		recipient string
		amount    uint64
	}{
		{dist.Winner, dist.Prize},
		{s.params.BurnAccount, dist.Burn},
		{s.params.TreasuryAccount, dist.Treasury},
		{s.params.DeveloperAccount, dist.Developer},
	}
	for _, p := range payments {
		if p.amount == 0 {
			continue
		}
		if err := s.custodian.Pay(ctx, p.recipient, p.amount); err != nil {
			return fmt.Errorf("pay %s: %w", p.recipient, err)
		}
	}
	return nil
}

// rolloverLocked creates the next WAITING round, optionally pre-seeded with
// the protocol deposit carried over from the finalized pool.
func (s *Service) rolloverLocked(ctx context.Context, seed uint64) (round.Round, error) {
	next, err := s.newWaitingRound(ctx)
	if err != nil {
		return round.Round{}, err
	}
	if seed == 0 {
		return next, nil
	}

	// The seed value never left custody, so it is escrowed directly.
	if _, err := s.store.UpsertEscrowDeposit(ctx, ticket.EscrowDeposit{
		RoundID:       next.ID,
		ParticipantID: s.params.SeedParticipantID,
		Amount:        seed,
		Tickets:       seed,
		DepositedAt:   s.now().UTC(),
	}); err != nil {
		return round.Round{}, err
	}
	next, err = s.bumpVersion(ctx, next)
	if err != nil {
		return round.Round{}, err
	}
	s.log.WithField("round_id", next.ID).WithField("seed", seed).Info("next round seeded")
	return next, nil
}

func (s *Service) newWaitingRound(ctx context.Context) (round.Round, error) {
	r, err := s.store.CreateRound(ctx, round.Round{Phase: round.PhaseWaiting, Version: 1})
	if err != nil {
		return round.Round{}, err
	}
	metrics.RecordRoundOpened()
	s.log.WithField("round_id", r.ID).Info("round opened")
	return r, nil
}

func (s *Service) buildSnapshot(ctx context.Context, r round.Round) (round.Snapshot, error) {
	count := 0
	if r.Phase == round.PhaseWaiting {
		deposits, err := s.store.ListEscrowDeposits(ctx, r.ID)
		if err != nil {
			return round.Snapshot{}, err
		}
		count = len(deposits)
	} else {
		positions, err := s.store.ListPositions(ctx, r.ID)
		if err != nil {
			return round.Snapshot{}, err
		}
		count = len(positions)
	}
	return round.Snapshot{
		RoundID:          r.ID,
		Phase:            r.Phase,
		Version:          r.Version,
		EndTime:          r.EndTime,
		TotalTickets:     r.TotalTickets,
		Pool:             r.Pool,
		ParticipantCount: count,
		Winner:           r.Winner,
		WinnerPrize:      r.WinnerPrize,
	}, nil
}

func (s *Service) publishSnapshot(ctx context.Context, roundID uint64) {
	if s.publisher == nil {
		return
	}
	r, err := s.getRound(ctx, roundID)
	if err != nil {
		return
	}
	snap, err := s.buildSnapshot(ctx, r)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, snap); err != nil {
		s.log.WithError(err).Debug("snapshot publish failed")
	}
}

func (s *Service) compensate(ctx context.Context, participantID string, amount uint64) {
	if err := s.custodian.Refund(ctx, participantID, amount); err != nil {
		s.log.WithError(err).WithField("participant_id", participantID).
			Error("custody compensation failed")
	}
}
