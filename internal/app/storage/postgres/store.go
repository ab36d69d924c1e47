// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/payout"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.RoundStore = (*Store)(nil)
var _ storage.EscrowStore = (*Store)(nil)
var _ storage.TicketStore = (*Store)(nil)
var _ storage.DrawStore = (*Store)(nil)
var _ storage.RefundStore = (*Store)(nil)
var _ storage.PayoutStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// row types carry the db tags so domain structs stay free of them.

type roundRow struct {
	ID           uint64       `db:"id"`
	Phase        string       `db:"phase"`
	Version      uint64       `db:"version"`
	EndTime      sql.NullTime `db:"end_time"`
	TotalTickets uint64       `db:"total_tickets"`
	Pool         uint64       `db:"pool"`
	Winner       string       `db:"winner"`
	WinnerPrize  uint64       `db:"winner_prize"`
	CancelReason string       `db:"cancel_reason"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r roundRow) domain() round.Round {
	out := round.Round{
		ID:           r.ID,
		Phase:        round.Phase(r.Phase),
		Version:      r.Version,
		TotalTickets: r.TotalTickets,
		Pool:         r.Pool,
		Winner:       r.Winner,
		WinnerPrize:  r.WinnerPrize,
		CancelReason: r.CancelReason,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.EndTime.Valid {
		out.EndTime = r.EndTime.Time
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// --- RoundStore -------------------------------------------------------------

func (s *Store) CreateRound(ctx context.Context, r round.Round) (round.Round, error) {
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO rounds (phase, version, end_time, total_tickets, pool, winner, winner_prize, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, string(r.Phase), r.Version, nullTime(r.EndTime), r.TotalTickets, r.Pool,
		r.Winner, r.WinnerPrize, r.CancelReason, r.CreatedAt, r.UpdatedAt).Scan(&r.ID)
	if err != nil {
		return round.Round{}, err
	}
	return r, nil
}

func (s *Store) UpdateRound(ctx context.Context, r round.Round) (round.Round, error) {
	r.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE rounds
		SET phase = $2, version = $3, end_time = $4, total_tickets = $5, pool = $6,
		    winner = $7, winner_prize = $8, cancel_reason = $9, updated_at = $10
		WHERE id = $1
	`, r.ID, string(r.Phase), r.Version, nullTime(r.EndTime), r.TotalTickets, r.Pool,
		r.Winner, r.WinnerPrize, r.CancelReason, r.UpdatedAt)
	if err != nil {
		return round.Round{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return round.Round{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetRound(ctx context.Context, id uint64) (round.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phase, version, end_time, total_tickets, pool, winner, winner_prize, cancel_reason, created_at, updated_at
		FROM rounds
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Round{}, storage.ErrNotFound
	}
	if err != nil {
		return round.Round{}, err
	}
	return row.domain(), nil
}

func (s *Store) GetCurrentRound(ctx context.Context) (round.Round, error) {
	var row roundRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, phase, version, end_time, total_tickets, pool, winner, winner_prize, cancel_reason, created_at, updated_at
		FROM rounds
		ORDER BY id DESC
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return round.Round{}, storage.ErrNotFound
	}
	if err != nil {
		return round.Round{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListRounds(ctx context.Context, limit int) ([]round.Round, error) {
	query := `
		SELECT id, phase, version, end_time, total_tickets, pool, winner, winner_prize, cancel_reason, created_at, updated_at
		FROM rounds
		ORDER BY id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var rows []roundRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]round.Round, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

// --- EscrowStore ------------------------------------------------------------

type escrowRow struct {
	RoundID       uint64    `db:"round_id"`
	ParticipantID string    `db:"participant_id"`
	Amount        uint64    `db:"amount"`
	Tickets       uint64    `db:"tickets"`
	DepositedAt   time.Time `db:"deposited_at"`
}

func (e escrowRow) domain() ticket.EscrowDeposit {
	return ticket.EscrowDeposit{
		RoundID:       e.RoundID,
		ParticipantID: e.ParticipantID,
		Amount:        e.Amount,
		Tickets:       e.Tickets,
		DepositedAt:   e.DepositedAt,
	}
}

func (s *Store) UpsertEscrowDeposit(ctx context.Context, dep ticket.EscrowDeposit) (ticket.EscrowDeposit, error) {
	if dep.DepositedAt.IsZero() {
		dep.DepositedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO escrow_deposits (round_id, participant_id, amount, tickets, deposited_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (round_id, participant_id)
		DO UPDATE SET amount = EXCLUDED.amount, tickets = EXCLUDED.tickets
	`, dep.RoundID, dep.ParticipantID, dep.Amount, dep.Tickets, dep.DepositedAt)
	if err != nil {
		return ticket.EscrowDeposit{}, err
	}
	return dep, nil
}

func (s *Store) GetEscrowDeposit(ctx context.Context, roundID uint64, participantID string) (ticket.EscrowDeposit, error) {
	var row escrowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT round_id, participant_id, amount, tickets, deposited_at
		FROM escrow_deposits
		WHERE round_id = $1 AND participant_id = $2
	`, roundID, participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return ticket.EscrowDeposit{}, storage.ErrNotFound
	}
	if err != nil {
		return ticket.EscrowDeposit{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListEscrowDeposits(ctx context.Context, roundID uint64) ([]ticket.EscrowDeposit, error) {
	var rows []escrowRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT round_id, participant_id, amount, tickets, deposited_at
		FROM escrow_deposits
		WHERE round_id = $1
		ORDER BY deposited_at, participant_id
	`, roundID)
	if err != nil {
		return nil, err
	}
	out := make([]ticket.EscrowDeposit, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

func (s *Store) DeleteEscrowDeposit(ctx context.Context, roundID uint64, participantID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM escrow_deposits
		WHERE round_id = $1 AND participant_id = $2
	`, roundID, participantID)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ClearEscrow(ctx context.Context, roundID uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM escrow_deposits WHERE round_id = $1`, roundID)
	return err
}

// --- TicketStore ------------------------------------------------------------

type positionRow struct {
	RoundID       uint64    `db:"round_id"`
	ParticipantID string    `db:"participant_id"`
	Tickets       uint64    `db:"tickets"`
	Amount        uint64    `db:"amount"`
	Index         int       `db:"position_index"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (p positionRow) domain() ticket.Position {
	return ticket.Position{
		RoundID:       p.RoundID,
		ParticipantID: p.ParticipantID,
		Tickets:       p.Tickets,
		Amount:        p.Amount,
		Index:         p.Index,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (s *Store) UpsertPosition(ctx context.Context, pos ticket.Position) (ticket.Position, error) {
	now := time.Now().UTC()

	// New positions take the next index in the round so the cumulative
	// range order stays stable across updates.
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO positions (round_id, participant_id, tickets, amount, position_index, created_at, updated_at)
		VALUES ($1, $2, $3, $4,
			(SELECT COALESCE(MAX(position_index) + 1, 0) FROM positions WHERE round_id = $1),
			$5, $5)
		ON CONFLICT (round_id, participant_id)
		DO UPDATE SET tickets = EXCLUDED.tickets, amount = EXCLUDED.amount, updated_at = EXCLUDED.updated_at
		RETURNING position_index, created_at
	`, pos.RoundID, pos.ParticipantID, pos.Tickets, pos.Amount, now).Scan(&pos.Index, &pos.CreatedAt)
	if err != nil {
		return ticket.Position{}, err
	}
	pos.UpdatedAt = now
	return pos, nil
}

func (s *Store) GetPosition(ctx context.Context, roundID uint64, participantID string) (ticket.Position, error) {
	var row positionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT round_id, participant_id, tickets, amount, position_index, created_at, updated_at
		FROM positions
		WHERE round_id = $1 AND participant_id = $2
	`, roundID, participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return ticket.Position{}, storage.ErrNotFound
	}
	if err != nil {
		return ticket.Position{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListPositions(ctx context.Context, roundID uint64) ([]ticket.Position, error) {
	var rows []positionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT round_id, participant_id, tickets, amount, position_index, created_at, updated_at
		FROM positions
		WHERE round_id = $1
		ORDER BY position_index
	`, roundID)
	if err != nil {
		return nil, err
	}
	out := make([]ticket.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

// --- DrawStore --------------------------------------------------------------

type drawRow struct {
	RoundID     uint64    `db:"round_id"`
	RequestedAt uint64    `db:"requested_at_block"`
	WindowStart uint64    `db:"window_start"`
	WindowEnd   uint64    `db:"window_end"`
	Entropy     []byte    `db:"entropy"`
	CreatedAt   time.Time `db:"created_at"`
}

func (d drawRow) domain() round.DrawRequest {
	return round.DrawRequest{
		RoundID:     d.RoundID,
		RequestedAt: d.RequestedAt,
		WindowStart: d.WindowStart,
		WindowEnd:   d.WindowEnd,
		Entropy:     d.Entropy,
		CreatedAt:   d.CreatedAt,
	}
}

func (s *Store) CreateDrawRequest(ctx context.Context, req round.DrawRequest) (round.DrawRequest, error) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO draw_requests (round_id, requested_at_block, window_start, window_end, entropy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (round_id) DO NOTHING
	`, req.RoundID, req.RequestedAt, req.WindowStart, req.WindowEnd, req.Entropy, req.CreatedAt)
	if err != nil {
		return round.DrawRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return round.DrawRequest{}, round.ErrAlreadyRequested
	}
	return req, nil
}

func (s *Store) GetDrawRequest(ctx context.Context, roundID uint64) (round.DrawRequest, error) {
	var row drawRow
	err := s.db.GetContext(ctx, &row, `
		SELECT round_id, requested_at_block, window_start, window_end, entropy, created_at
		FROM draw_requests
		WHERE round_id = $1
	`, roundID)
	if errors.Is(err, sql.ErrNoRows) {
		return round.DrawRequest{}, storage.ErrNotFound
	}
	if err != nil {
		return round.DrawRequest{}, err
	}
	return row.domain(), nil
}

func (s *Store) UpdateDrawRequest(ctx context.Context, req round.DrawRequest) (round.DrawRequest, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE draw_requests
		SET entropy = $2
		WHERE round_id = $1
	`, req.RoundID, req.Entropy)
	if err != nil {
		return round.DrawRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return round.DrawRequest{}, storage.ErrNotFound
	}
	return req, nil
}

// --- RefundStore ------------------------------------------------------------

type refundRow struct {
	ID            string    `db:"id"`
	RoundID       uint64    `db:"round_id"`
	ParticipantID string    `db:"participant_id"`
	Amount        uint64    `db:"amount"`
	Reason        string    `db:"reason"`
	RefundedAt    time.Time `db:"refunded_at"`
}

func (r refundRow) domain() ticket.Refund {
	return ticket.Refund{
		ID:            r.ID,
		RoundID:       r.RoundID,
		ParticipantID: r.ParticipantID,
		Amount:        r.Amount,
		Reason:        r.Reason,
		RefundedAt:    r.RefundedAt,
	}
}

func (s *Store) CreateRefund(ctx context.Context, ref ticket.Refund) (ticket.Refund, error) {
	if ref.ID == "" {
		ref.ID = uuid.NewString()
	}
	if ref.RefundedAt.IsZero() {
		ref.RefundedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO refunds (id, round_id, participant_id, amount, reason, refunded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (round_id, participant_id) DO NOTHING
	`, ref.ID, ref.RoundID, ref.ParticipantID, ref.Amount, ref.Reason, ref.RefundedAt)
	if err != nil {
		return ticket.Refund{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Already refunded; return the existing record.
		return s.GetRefund(ctx, ref.RoundID, ref.ParticipantID)
	}
	return ref, nil
}

func (s *Store) GetRefund(ctx context.Context, roundID uint64, participantID string) (ticket.Refund, error) {
	var row refundRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, round_id, participant_id, amount, reason, refunded_at
		FROM refunds
		WHERE round_id = $1 AND participant_id = $2
	`, roundID, participantID)
	if errors.Is(err, sql.ErrNoRows) {
		return ticket.Refund{}, storage.ErrNotFound
	}
	if err != nil {
		return ticket.Refund{}, err
	}
	return row.domain(), nil
}

func (s *Store) ListRefunds(ctx context.Context, roundID uint64) ([]ticket.Refund, error) {
	var rows []refundRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, round_id, participant_id, amount, reason, refunded_at
		FROM refunds
		WHERE round_id = $1
		ORDER BY refunded_at, participant_id
	`, roundID)
	if err != nil {
		return nil, err
	}
	out := make([]ticket.Refund, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.domain())
	}
	return out, nil
}

// --- PayoutStore ------------------------------------------------------------

type distributionRow struct {
	RoundID   uint64    `db:"round_id"`
	Pool      uint64    `db:"pool"`
	Winner    string    `db:"winner"`
	Prize     uint64    `db:"prize"`
	Burn      uint64    `db:"burn"`
	Treasury  uint64    `db:"treasury"`
	Developer uint64    `db:"developer"`
	NextSeed  uint64    `db:"next_seed"`
	CreatedAt time.Time `db:"created_at"`
}

func (d distributionRow) domain() payout.Distribution {
	return payout.Distribution{
		RoundID:   d.RoundID,
		Pool:      d.Pool,
		Winner:    d.Winner,
		Prize:     d.Prize,
		Burn:      d.Burn,
		Treasury:  d.Treasury,
		Developer: d.Developer,
		NextSeed:  d.NextSeed,
		CreatedAt: d.CreatedAt,
	}
}

func (s *Store) CreateDistribution(ctx context.Context, dist payout.Distribution) (payout.Distribution, error) {
	if dist.CreatedAt.IsZero() {
		dist.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distributions (round_id, pool, winner, prize, burn, treasury, developer, next_seed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, dist.RoundID, dist.Pool, dist.Winner, dist.Prize, dist.Burn, dist.Treasury, dist.Developer, dist.NextSeed, dist.CreatedAt)
	if err != nil {
		return payout.Distribution{}, err
	}
	return dist, nil
}

func (s *Store) GetDistribution(ctx context.Context, roundID uint64) (payout.Distribution, error) {
	var row distributionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT round_id, pool, winner, prize, burn, treasury, developer, next_seed, created_at
		FROM distributions
		WHERE round_id = $1
	`, roundID)
	if errors.Is(err, sql.ErrNoRows) {
		return payout.Distribution{}, storage.ErrNotFound
	}
	if err != nil {
		return payout.Distribution{}, err
	}
	return row.domain(), nil
}
