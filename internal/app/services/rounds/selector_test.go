package rounds

import (
	"context"
	"testing"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
)

func positions(tickets ...uint64) []ticket.Position {
	out := make([]ticket.Position, len(tickets))
	for i, n := range tickets {
		out[i] = ticket.Position{
			ParticipantID: string(rune('a' + i)),
			Tickets:       n,
			Index:         i,
		}
	}
	return out
}

func TestSelectWinnerRanges(t *testing.T) {
	// a holds [0,10), b holds [10,40).
	pos := positions(10, 30)
	pos[0].ParticipantID = "a"
	pos[1].ParticipantID = "b"

	cases := []struct {
		entropy []byte
		want    string
		index   uint64
	}{
		{[]byte{0}, "a", 0},
		{[]byte{9}, "a", 9},
		{[]byte{10}, "b", 10},
		{[]byte{25}, "b", 25},
		{[]byte{39}, "b", 39},
		{[]byte{40}, "a", 0},  // wraps mod 40
		{[]byte{65}, "b", 25}, // 65 mod 40 = 25
	}
	for _, tc := range cases {
		winner, index, err := SelectWinner(pos, tc.entropy)
		if err != nil {
			t.Fatalf("entropy %v: %v", tc.entropy, err)
		}
		if winner.ParticipantID != tc.want || index != tc.index {
			t.Fatalf("entropy %v: got %s at %d, want %s at %d",
				tc.entropy, winner.ParticipantID, index, tc.want, tc.index)
		}
	}
}

func TestSelectWinnerLargeEntropy(t *testing.T) {
	pos := positions(10, 30)

	// 32 bytes of entropy must reduce over the full value, not a truncation.
	entropy := make([]byte, 32)
	for i := range entropy {
		entropy[i] = 0xff
	}
	if _, _, err := SelectWinner(pos, entropy); err != nil {
		t.Fatalf("large entropy: %v", err)
	}
}

func TestSelectWinnerErrors(t *testing.T) {
	if _, _, err := SelectWinner(nil, []byte{1}); err == nil {
		t.Fatal("expected error for no positions")
	}
	if _, _, err := SelectWinner(positions(10), nil); err == nil {
		t.Fatal("expected error for empty entropy")
	}
	if _, _, err := SelectWinner(positions(0, 0), []byte{1}); err == nil {
		t.Fatal("expected error for zero total tickets")
	}
}

func TestSelectWinnerZeroTicketPositionNeverWins(t *testing.T) {
	pos := positions(0, 1)
	for b := 0; b < 64; b++ {
		winner, _, err := SelectWinner(pos, []byte{byte(b)})
		if err != nil {
			t.Fatalf("entropy %d: %v", b, err)
		}
		if winner.Tickets == 0 {
			t.Fatalf("zero-ticket position won at entropy %d", b)
		}
	}
}

func TestSelectWinnerProportionality(t *testing.T) {
	// a:b = 1:3. Over a uniform sweep of entropies the win counts must match
	// the ticket ratio exactly, because selection is entropy mod total.
	pos := positions(10, 30)
	counts := map[string]int{}

	clock := NewManualClock(1 << 20)
	source := NewHashChainSource("proportionality", clock)
	for height := uint64(0); height < 4000; height++ {
		entropy, err := source.EntropyAt(context.Background(), height)
		if err != nil {
			t.Fatalf("entropy at %d: %v", height, err)
		}
		winner, _, err := SelectWinner(pos, entropy)
		if err != nil {
			t.Fatalf("select at %d: %v", height, err)
		}
		counts[winner.ParticipantID]++
	}

	total := counts["a"] + counts["b"]
	if total != 4000 {
		t.Fatalf("expected 4000 draws, got %d", total)
	}
	share := float64(counts["a"]) / float64(total)
	// Expected 0.25; allow generous slack for the pseudo-random sweep.
	if share < 0.20 || share > 0.30 {
		t.Fatalf("a won %.3f of draws, expected about 0.25", share)
	}
}

func TestWeightOf(t *testing.T) {
	pos := positions(10, 30)
	if w := WeightOf(pos, pos[0].ParticipantID); w != 0.25 {
		t.Fatalf("expected weight 0.25, got %v", w)
	}
	if w := WeightOf(pos, "stranger"); w != 0 {
		t.Fatalf("expected 0 for unknown participant, got %v", w)
	}
	if w := WeightOf(nil, "anyone"); w != 0 {
		t.Fatalf("expected 0 for empty round, got %v", w)
	}
}
