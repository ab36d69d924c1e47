package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PayoutShares defines how a finalized pool is split, in basis points.
// The five shares must sum to exactly 10000; integer truncation remainder is
// assigned to the treasury share.
type PayoutShares struct {
	WinnerBps    uint64 `yaml:"winner_bps"`
	BurnBps      uint64 `yaml:"burn_bps"`
	TreasuryBps  uint64 `yaml:"treasury_bps"`
	DeveloperBps uint64 `yaml:"developer_bps"`
	SeedBps      uint64 `yaml:"seed_bps"`
}

// Total returns the sum of all shares.
func (s PayoutShares) Total() uint64 {
	return s.WinnerBps + s.BurnBps + s.TreasuryBps + s.DeveloperBps + s.SeedBps
}

// RaffleParams holds the protocol configuration for the round engine. Ticket
// limits and purchase minimums are configuration, not code constants.
type RaffleParams struct {
	// RoundDurationSeconds is the active window between activation and the
	// round timer expiring.
	RoundDurationSeconds int64 `yaml:"round_duration_seconds"`

	// MinDeposit is the smallest accepted deposit or ticket purchase.
	MinDeposit uint64 `yaml:"min_deposit"`

	// MaxTicketsPerWallet caps tickets held by one participant per round.
	MaxTicketsPerWallet uint64 `yaml:"max_tickets_per_wallet"`

	// MinTicketsToDraw is the smallest ticket total a draw may be requested
	// against.
	MinTicketsToDraw uint64 `yaml:"min_tickets_to_draw"`

	// ConfirmationDelay (K) is the number of blocks between a draw request
	// and the earliest executable block.
	ConfirmationDelay uint64 `yaml:"confirmation_delay"`

	// DrawWindow (W) is the number of blocks the execution window stays open
	// after the confirmation delay elapses.
	DrawWindow uint64 `yaml:"draw_window"`

	// BlockIntervalSeconds converts wall time into logical block height.
	BlockIntervalSeconds int64 `yaml:"block_interval_seconds"`

	Shares PayoutShares `yaml:"shares"`

	// SeedParticipantID is the protocol-owned participant credited with the
	// next-round seed share.
	SeedParticipantID string `yaml:"seed_participant_id"`

	// BurnAccount, TreasuryAccount and DeveloperAccount receive the fixed
	// protocol shares on finalization.
	BurnAccount      string `yaml:"burn_account"`
	TreasuryAccount  string `yaml:"treasury_account"`
	DeveloperAccount string `yaml:"developer_account"`
}

// DefaultRaffleParams returns the built-in protocol parameters.
func DefaultRaffleParams() RaffleParams {
	return RaffleParams{
		RoundDurationSeconds: 3600,
		MinDeposit:           5,
		MaxTicketsPerWallet:  150,
		MinTicketsToDraw:     1,
		ConfirmationDelay:    3,
		DrawWindow:           64,
		BlockIntervalSeconds: 15,
		Shares: PayoutShares{
			WinnerBps:    8000,
			BurnBps:      500,
			TreasuryBps:  500,
			DeveloperBps: 500,
			SeedBps:      500,
		},
		SeedParticipantID: "protocol:seed",
		BurnAccount:       "protocol:burn",
		TreasuryAccount:   "protocol:treasury",
		DeveloperAccount:  "protocol:developer",
	}
}

// LoadRaffleParams loads protocol parameters from config/raffle.yaml.
func LoadRaffleParams() (RaffleParams, error) {
	return LoadRaffleParamsFromPath(filepath.Join("config", "raffle.yaml"))
}

// LoadRaffleParamsFromPath loads protocol parameters from a specific file.
func LoadRaffleParamsFromPath(path string) (RaffleParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RaffleParams{}, fmt.Errorf("read raffle config: %w", err)
	}

	params := DefaultRaffleParams()
	if err := yaml.Unmarshal(data, &params); err != nil {
		return RaffleParams{}, fmt.Errorf("parse raffle config: %w", err)
	}
	if err := params.Validate(); err != nil {
		return RaffleParams{}, err
	}
	return params, nil
}

// LoadRaffleParamsOrDefault loads protocol parameters, falling back to the
// defaults when no file is present.
func LoadRaffleParamsOrDefault(path string) RaffleParams {
	if path == "" {
		return DefaultRaffleParams()
	}
	params, err := LoadRaffleParamsFromPath(path)
	if err != nil {
		return DefaultRaffleParams()
	}
	return params
}

// Validate checks parameter consistency.
func (p RaffleParams) Validate() error {
	if p.RoundDurationSeconds <= 0 {
		return fmt.Errorf("round_duration_seconds must be positive")
	}
	if p.MinDeposit == 0 {
		return fmt.Errorf("min_deposit must be positive")
	}
	if p.MaxTicketsPerWallet < p.MinDeposit {
		return fmt.Errorf("max_tickets_per_wallet must be at least min_deposit")
	}
	if p.DrawWindow == 0 {
		return fmt.Errorf("draw_window must be positive")
	}
	if p.BlockIntervalSeconds <= 0 {
		return fmt.Errorf("block_interval_seconds must be positive")
	}
	if total := p.Shares.Total(); total != 10000 {
		return fmt.Errorf("payout shares must sum to 10000 basis points, got %d", total)
	}
	if p.SeedParticipantID == "" {
		return fmt.Errorf("seed_participant_id is required")
	}
	return nil
}
