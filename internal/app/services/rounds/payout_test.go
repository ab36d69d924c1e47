package rounds

import (
	"testing"

	"github.com/R3E-Network/raffle_engine/internal/config"
)

func TestSplitPoolConservesValue(t *testing.T) {
	shares := config.DefaultRaffleParams().Shares

	for _, pool := range []uint64{0, 1, 7, 40, 99, 100, 12345, 1<<40 + 3} {
		dist := splitPool(7, pool, "winner", shares)
		if dist.Total() != pool {
			t.Fatalf("pool %d: shares sum to %d", pool, dist.Total())
		}
		if dist.Prize != pool*8000/10000 {
			t.Fatalf("pool %d: prize %d", pool, dist.Prize)
		}
	}
}

func TestSplitPoolRemainderGoesToTreasury(t *testing.T) {
	shares := config.DefaultRaffleParams().Shares

	// 99 * 500 / 10000 truncates to 4 for each 5% share; 99*8000/10000 = 79.
	dist := splitPool(1, 99, "w", shares)
	if dist.Prize != 79 || dist.Burn != 4 || dist.Developer != 4 || dist.NextSeed != 4 {
		t.Fatalf("unexpected split: %+v", dist)
	}
	// Treasury absorbs its own 4 plus the truncation remainder.
	if dist.Treasury != 99-79-4-4-4 {
		t.Fatalf("treasury %d should absorb the remainder", dist.Treasury)
	}
	if dist.Total() != 99 {
		t.Fatalf("split must conserve the pool, got %d", dist.Total())
	}
}

func TestSplitPoolCustomShares(t *testing.T) {
	shares := config.PayoutShares{WinnerBps: 10000}
	dist := splitPool(1, 40, "w", shares)
	if dist.Prize != 40 || dist.Treasury != 0 || dist.NextSeed != 0 {
		t.Fatalf("winner-take-all split wrong: %+v", dist)
	}
}
