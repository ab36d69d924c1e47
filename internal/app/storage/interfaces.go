package storage

import (
	"context"
	"errors"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/payout"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
)

// ErrNotFound is returned by stores when a record does not exist. Services
// translate it into the domain error taxonomy.
var ErrNotFound = errors.New("storage: not found")

// RoundStore persists round records. Rounds are returned by value; callers
// never share a live reference with the store.
type RoundStore interface {
	// CreateRound assigns the next id in the sequence and persists the round.
	CreateRound(ctx context.Context, r round.Round) (round.Round, error)
	UpdateRound(ctx context.Context, r round.Round) (round.Round, error)
	GetRound(ctx context.Context, id uint64) (round.Round, error)
	// GetCurrentRound returns the highest-id round.
	GetCurrentRound(ctx context.Context) (round.Round, error)
	ListRounds(ctx context.Context, limit int) ([]round.Round, error)
}

// EscrowStore persists pre-activation deposits.
type EscrowStore interface {
	UpsertEscrowDeposit(ctx context.Context, dep ticket.EscrowDeposit) (ticket.EscrowDeposit, error)
	GetEscrowDeposit(ctx context.Context, roundID uint64, participantID string) (ticket.EscrowDeposit, error)
	// ListEscrowDeposits returns deposits in insertion order.
	ListEscrowDeposits(ctx context.Context, roundID uint64) ([]ticket.EscrowDeposit, error)
	DeleteEscrowDeposit(ctx context.Context, roundID uint64, participantID string) error
	ClearEscrow(ctx context.Context, roundID uint64) error
}

// TicketStore persists active ticket positions.
type TicketStore interface {
	UpsertPosition(ctx context.Context, pos ticket.Position) (ticket.Position, error)
	GetPosition(ctx context.Context, roundID uint64, participantID string) (ticket.Position, error)
	// ListPositions returns positions ordered by insertion index. This order
	// is the stable range assignment used by winner selection.
	ListPositions(ctx context.Context, roundID uint64) ([]ticket.Position, error)
}

// DrawStore persists draw requests, at most one per round.
type DrawStore interface {
	CreateDrawRequest(ctx context.Context, req round.DrawRequest) (round.DrawRequest, error)
	GetDrawRequest(ctx context.Context, roundID uint64) (round.DrawRequest, error)
	UpdateDrawRequest(ctx context.Context, req round.DrawRequest) (round.DrawRequest, error)
}

// RefundStore persists refund records. One record per (round, participant);
// presence marks that participant's refund as already paid.
type RefundStore interface {
	CreateRefund(ctx context.Context, ref ticket.Refund) (ticket.Refund, error)
	GetRefund(ctx context.Context, roundID uint64, participantID string) (ticket.Refund, error)
	ListRefunds(ctx context.Context, roundID uint64) ([]ticket.Refund, error)
}

// PayoutStore persists finalization distributions.
type PayoutStore interface {
	CreateDistribution(ctx context.Context, dist payout.Distribution) (payout.Distribution, error)
	GetDistribution(ctx context.Context, roundID uint64) (payout.Distribution, error)
}
