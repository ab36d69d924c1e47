package rounds

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
)

// SelectWinner maps entropy onto the cumulative ticket ranges of the
// positions, in their stable insertion order. Participant i owns the
// half-open range [sum(tickets[0..i)), sum(tickets[0..i])); the participant
// whose range contains entropy mod total wins. Integer ranges give exactly
// proportional probability with no floating point involved.
//
// The function is pure: the same positions and entropy always yield the same
// winner, so a draw is reproducible from ledger history alone.
func SelectWinner(positions []ticket.Position, entropy []byte) (ticket.Position, uint64, error) {
	if len(positions) == 0 {
		return ticket.Position{}, 0, fmt.Errorf("no positions to select from")
	}
	if len(entropy) == 0 {
		return ticket.Position{}, 0, fmt.Errorf("empty entropy")
	}

	prefix := make([]uint64, len(positions))
	var total uint64
	for i, pos := range positions {
		total += pos.Tickets
		prefix[i] = total
	}
	if total == 0 {
		return ticket.Position{}, 0, fmt.Errorf("zero total tickets")
	}

	r := indexFromEntropy(entropy, total)

	// First prefix sum strictly greater than r owns the range containing r.
	i := sort.Search(len(prefix), func(i int) bool { return prefix[i] > r })
	return positions[i], r, nil
}

// indexFromEntropy reduces the full entropy value modulo the ticket total.
func indexFromEntropy(entropy []byte, total uint64) uint64 {
	v := new(big.Int).SetBytes(entropy)
	return v.Mod(v, new(big.Int).SetUint64(total)).Uint64()
}

// WeightOf returns a participant's win probability as a display-only float.
// Selection never uses this value.
func WeightOf(positions []ticket.Position, participantID string) float64 {
	var total, own uint64
	for _, pos := range positions {
		total += pos.Tickets
		if pos.ParticipantID == participantID {
			own = pos.Tickets
		}
	}
	if total == 0 {
		return 0
	}
	return float64(own) / float64(total)
}
