// Package ticket defines ticket positions, escrow deposits and receipts.
package ticket

import "time"

// Position is a participant's ticket holding in an active round. Positions
// are kept in insertion order; Index is the stable ordering used for
// cumulative range assignment during winner selection.
type Position struct {
	RoundID       uint64    `json:"round_id"`
	ParticipantID string    `json:"participant_id"`
	Tickets       uint64    `json:"tickets"`
	Amount        uint64    `json:"amount"`
	Index         int       `json:"index"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EscrowDeposit is a pre-activation holding. It exists only while the round
// is WAITING and is either migrated 1:1 into a Position on activation or
// refunded in full.
type EscrowDeposit struct {
	RoundID       uint64    `json:"round_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        uint64    `json:"amount"`
	Tickets       uint64    `json:"tickets"`
	DepositedAt   time.Time `json:"deposited_at"`
}

// Refund records one participant's completed refund during cancellation.
// Its existence is what makes the refund batch idempotent per participant.
type Refund struct {
	ID            string    `json:"id"`
	RoundID       uint64    `json:"round_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        uint64    `json:"amount"`
	Reason        string    `json:"reason"`
	RefundedAt    time.Time `json:"refunded_at"`
}

// TicketReceipt acknowledges a deposit or ticket purchase.
type TicketReceipt struct {
	ID            string    `json:"id"`
	RoundID       uint64    `json:"round_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        uint64    `json:"amount"`
	Tickets       uint64    `json:"tickets"`
	TotalTickets  uint64    `json:"total_tickets"`
	Escrowed      bool      `json:"escrowed"`
	IssuedAt      time.Time `json:"issued_at"`
}

// RefundReceipt acknowledges a single escrow withdrawal.
type RefundReceipt struct {
	ID            string    `json:"id"`
	RoundID       uint64    `json:"round_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        uint64    `json:"amount"`
	IssuedAt      time.Time `json:"issued_at"`
}

// RefundBatchReceipt acknowledges a full-round cancellation refund.
type RefundBatchReceipt struct {
	ID            string    `json:"id"`
	RoundID       uint64    `json:"round_id"`
	Reason        string    `json:"reason"`
	Participants  int       `json:"participants"`
	TotalRefunded uint64    `json:"total_refunded"`
	IssuedAt      time.Time `json:"issued_at"`
}
