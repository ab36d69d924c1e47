package rounds

import (
	"time"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/payout"
	"github.com/R3E-Network/raffle_engine/internal/config"
)

// splitPool computes the finalization split of a pool. Each share is the
// truncated basis-point fraction; the treasury absorbs whatever truncation
// leaves over, so the shares always sum to exactly the pool.
func splitPool(roundID uint64, pool uint64, winner string, shares config.PayoutShares) payout.Distribution {
	prize := pool * shares.WinnerBps / 10000
	burn := pool * shares.BurnBps / 10000
	developer := pool * shares.DeveloperBps / 10000
	seed := pool * shares.SeedBps / 10000
	treasury := pool - prize - burn - developer - seed

	return payout.Distribution{
		RoundID:   roundID,
		Pool:      pool,
		Winner:    winner,
		Prize:     prize,
		Burn:      burn,
		Treasury:  treasury,
		Developer: developer,
		NextSeed:  seed,
		CreatedAt: time.Now().UTC(),
	}
}
