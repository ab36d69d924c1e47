package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetRoundMapsNoRows(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM rounds").
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.GetRound(context.Background(), 7)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetRoundScansRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .* FROM rounds").
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "phase", "version", "end_time", "total_tickets", "pool",
			"winner", "winner_prize", "cancel_reason", "created_at", "updated_at",
		}).AddRow(3, "ACTIVE", 5, now.Add(time.Hour), 40, 40, "", 0, "", now, now))

	r, err := store.GetRound(context.Background(), 3)
	if err != nil {
		t.Fatalf("get round: %v", err)
	}
	if r.ID != 3 || r.Phase != round.PhaseActive || r.TotalTickets != 40 {
		t.Fatalf("unexpected round: %+v", r)
	}
	if r.EndTime.IsZero() {
		t.Fatal("end_time lost in scan")
	}
}

func TestUpdateRoundNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE rounds").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateRound(context.Background(), round.Round{ID: 42})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateDrawRequestConflict(t *testing.T) {
	store, mock := newMockStore(t)

	// ON CONFLICT DO NOTHING reports zero rows for a duplicate.
	mock.ExpectExec("INSERT INTO draw_requests").
		WillReturnResult(sqlmock.NewResult(0, 0))

	req := round.DrawRequest{RoundID: 1, RequestedAt: 100, WindowStart: 103, WindowEnd: 167}
	_, err := store.CreateDrawRequest(context.Background(), req)
	if !errors.Is(err, round.ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
}
