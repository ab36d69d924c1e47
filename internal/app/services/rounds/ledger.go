package rounds

import (
	"fmt"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
)

// verifyLedger checks the conservation invariants after a ledger mutation:
// the sum of position tickets equals the round's active total, and the sum of
// contributed amounts equals the active pool.
func verifyLedger(r round.Round, positions []ticket.Position) error {
	var tickets, amount uint64
	for _, pos := range positions {
		tickets += pos.Tickets
		amount += pos.Amount
	}
	if tickets != r.TotalTickets {
		return fmt.Errorf("ledger invariant violated: positions sum to %d tickets, round records %d", tickets, r.TotalTickets)
	}
	if amount != r.Pool {
		return fmt.Errorf("ledger invariant violated: positions sum to %d value, pool records %d", amount, r.Pool)
	}
	return nil
}

// heldTickets returns the tickets a participant already holds in the round,
// counting both pending escrow and active positions. The per-wallet ceiling
// applies to the combined holding.
func heldTickets(escrow []ticket.EscrowDeposit, positions []ticket.Position, participantID string) uint64 {
	var held uint64
	for _, dep := range escrow {
		if dep.ParticipantID == participantID {
			held += dep.Tickets
		}
	}
	for _, pos := range positions {
		if pos.ParticipantID == participantID {
			held += pos.Tickets
		}
	}
	return held
}
