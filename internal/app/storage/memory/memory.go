// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended for
// tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/payout"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
)

type escrowKey struct {
	roundID       uint64
	participantID string
}

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu            sync.RWMutex
	nextRoundID   uint64
	rounds        map[uint64]round.Round
	escrow        map[escrowKey]ticket.EscrowDeposit
	escrowOrder   map[uint64][]string
	positions     map[escrowKey]ticket.Position
	positionOrder map[uint64][]string
	draws         map[uint64]round.DrawRequest
	refunds       map[escrowKey]ticket.Refund
	refundOrder   map[uint64][]string
	distributions map[uint64]payout.Distribution
}

var _ storage.RoundStore = (*Store)(nil)
var _ storage.EscrowStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)
var _ storage.DrawStore = (*Store)(nil)
var _ storage.RefundStore = (*Store)(nil)
var _ storage.PayoutStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextRoundID:   1,
		rounds:        make(map[uint64]round.Round),
		escrow:        make(map[escrowKey]ticket.EscrowDeposit),
		escrowOrder:   make(map[uint64][]string),
		positions:     make(map[escrowKey]ticket.Position),
		positionOrder: make(map[uint64][]string),
		draws:         make(map[uint64]round.DrawRequest),
		refunds:       make(map[escrowKey]ticket.Refund),
		refundOrder:   make(map[uint64][]string),
		distributions: make(map[uint64]payout.Distribution),
	}
}

// RoundStore implementation --------------------------------------------------

func (s *Store) CreateRound(_ context.Context, r round.Round) (round.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextRoundID
	s.nextRoundID++

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	s.rounds[r.ID] = r
	return r, nil
}

func (s *Store) UpdateRound(_ context.Context, r round.Round) (round.Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.rounds[r.ID]
	if !ok {
		return round.Round{}, storage.ErrNotFound
	}

	r.CreatedAt = original.CreatedAt
	r.UpdatedAt = time.Now().UTC()

	s.rounds[r.ID] = r
	return r, nil
}

func (s *Store) GetRound(_ context.Context, id uint64) (round.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rounds[id]
	if !ok {
		return round.Round{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetCurrentRound(_ context.Context) (round.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.rounds) == 0 {
		return round.Round{}, storage.ErrNotFound
	}
	var current round.Round
	for _, r := range s.rounds {
		if r.ID > current.ID {
			current = r
		}
	}
	return current, nil
}

func (s *Store) ListRounds(_ context.Context, limit int) ([]round.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]round.Round, 0, len(s.rounds))
	for _, r := range s.rounds {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID > result[j].ID })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// EscrowStore implementation -------------------------------------------------

func (s *Store) UpsertEscrowDeposit(_ context.Context, dep ticket.EscrowDeposit) (ticket.EscrowDeposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escrowKey{dep.RoundID, dep.ParticipantID}
	if _, exists := s.escrow[key]; !exists {
		s.escrowOrder[dep.RoundID] = append(s.escrowOrder[dep.RoundID], dep.ParticipantID)
		if dep.DepositedAt.IsZero() {
			dep.DepositedAt = time.Now().UTC()
		}
	}
	s.escrow[key] = dep
	return dep, nil
}

func (s *Store) GetEscrowDeposit(_ context.Context, roundID uint64, participantID string) (ticket.EscrowDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dep, ok := s.escrow[escrowKey{roundID, participantID}]
	if !ok {
		return ticket.EscrowDeposit{}, storage.ErrNotFound
	}
	return dep, nil
}

func (s *Store) ListEscrowDeposits(_ context.Context, roundID uint64) ([]ticket.EscrowDeposit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := s.escrowOrder[roundID]
	result := make([]ticket.EscrowDeposit, 0, len(order))
	for _, pid := range order {
		if dep, ok := s.escrow[escrowKey{roundID, pid}]; ok {
			result = append(result, dep)
		}
	}
	return result, nil
}

func (s *Store) DeleteEscrowDeposit(_ context.Context, roundID uint64, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escrowKey{roundID, participantID}
	if _, ok := s.escrow[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.escrow, key)
	order := s.escrowOrder[roundID]
	for i, pid := range order {
		if pid == participantID {
			s.escrowOrder[roundID] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) ClearEscrow(_ context.Context, roundID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pid := range s.escrowOrder[roundID] {
		delete(s.escrow, escrowKey{roundID, pid})
	}
	delete(s.escrowOrder, roundID)
	return nil
}

// TicketStore implementation -------------------------------------------------

func (s *Store) UpsertPosition(_ context.Context, pos ticket.Position) (ticket.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escrowKey{pos.RoundID, pos.ParticipantID}
	now := time.Now().UTC()
	if existing, exists := s.positions[key]; exists {
		pos.Index = existing.Index
		pos.CreatedAt = existing.CreatedAt
	} else {
		pos.Index = len(s.positionOrder[pos.RoundID])
		pos.CreatedAt = now
		s.positionOrder[pos.RoundID] = append(s.positionOrder[pos.RoundID], pos.ParticipantID)
	}
	pos.UpdatedAt = now
	s.positions[key] = pos
	return pos, nil
}

func (s *Store) GetPosition(_ context.Context, roundID uint64, participantID string) (ticket.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.positions[escrowKey{roundID, participantID}]
	if !ok {
		return ticket.Position{}, storage.ErrNotFound
	}
	return pos, nil
}

func (s *Store) ListPositions(_ context.Context, roundID uint64) ([]ticket.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := s.positionOrder[roundID]
	result := make([]ticket.Position, 0, len(order))
	for _, pid := range order {
		if pos, ok := s.positions[escrowKey{roundID, pid}]; ok {
			result = append(result, pos)
		}
	}
	return result, nil
}

// DrawStore implementation ---------------------------------------------------

func (s *Store) CreateDrawRequest(_ context.Context, req round.DrawRequest) (round.DrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.draws[req.RoundID]; exists {
		return round.DrawRequest{}, round.ErrAlreadyRequested
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	s.draws[req.RoundID] = req
	return req, nil
}

func (s *Store) GetDrawRequest(_ context.Context, roundID uint64) (round.DrawRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.draws[roundID]
	if !ok {
		return round.DrawRequest{}, storage.ErrNotFound
	}
	req.Entropy = append([]byte(nil), req.Entropy...)
	return req, nil
}

func (s *Store) UpdateDrawRequest(_ context.Context, req round.DrawRequest) (round.DrawRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.draws[req.RoundID]; !ok {
		return round.DrawRequest{}, storage.ErrNotFound
	}
	req.Entropy = append([]byte(nil), req.Entropy...)
	s.draws[req.RoundID] = req
	return req, nil
}

// RefundStore implementation -------------------------------------------------

func (s *Store) CreateRefund(_ context.Context, ref ticket.Refund) (ticket.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := escrowKey{ref.RoundID, ref.ParticipantID}
	if _, exists := s.refunds[key]; exists {
		return s.refunds[key], nil
	}
	if ref.RefundedAt.IsZero() {
		ref.RefundedAt = time.Now().UTC()
	}
	s.refunds[key] = ref
	s.refundOrder[ref.RoundID] = append(s.refundOrder[ref.RoundID], ref.ParticipantID)
	return ref, nil
}

func (s *Store) GetRefund(_ context.Context, roundID uint64, participantID string) (ticket.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, ok := s.refunds[escrowKey{roundID, participantID}]
	if !ok {
		return ticket.Refund{}, storage.ErrNotFound
	}
	return ref, nil
}

func (s *Store) ListRefunds(_ context.Context, roundID uint64) ([]ticket.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order := s.refundOrder[roundID]
	result := make([]ticket.Refund, 0, len(order))
	for _, pid := range order {
		if ref, ok := s.refunds[escrowKey{roundID, pid}]; ok {
			result = append(result, ref)
		}
	}
	return result, nil
}

// PayoutStore implementation -------------------------------------------------

func (s *Store) CreateDistribution(_ context.Context, dist payout.Distribution) (payout.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dist.CreatedAt.IsZero() {
		dist.CreatedAt = time.Now().UTC()
	}
	s.distributions[dist.RoundID] = dist
	return dist, nil
}

func (s *Store) GetDistribution(_ context.Context, roundID uint64) (payout.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dist, ok := s.distributions[roundID]
	if !ok {
		return payout.Distribution{}, storage.ErrNotFound
	}
	return dist, nil
}
