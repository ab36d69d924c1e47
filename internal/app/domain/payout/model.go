// Package payout defines the finalization split of a round's pool.
package payout

import "time"

// Distribution is the exact split of a finalized pool. All amounts sum to
// the pool; truncation remainder is folded into the treasury amount.
type Distribution struct {
	RoundID   uint64    `json:"round_id"`
	Pool      uint64    `json:"pool"`
	Winner    string    `json:"winner"`
	Prize     uint64    `json:"prize"`
	Burn      uint64    `json:"burn"`
	Treasury  uint64    `json:"treasury"`
	Developer uint64    `json:"developer"`
	NextSeed  uint64    `json:"next_seed"`
	CreatedAt time.Time `json:"created_at"`
}

// Total returns the sum of all shares. It always equals Pool.
func (d Distribution) Total() uint64 {
	return d.Prize + d.Burn + d.Treasury + d.Developer + d.NextSeed
}
