package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
	"github.com/R3E-Network/raffle_engine/internal/app/storage"
)

func TestRoundSequence(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.GetCurrentRound(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	first, err := store.CreateRound(ctx, round.Round{Phase: round.PhaseWaiting, Version: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, _ := store.CreateRound(ctx, round.Round{Phase: round.PhaseWaiting, Version: 1})
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("ids must be sequential, got %d and %d", first.ID, second.ID)
	}

	current, err := store.GetCurrentRound(ctx)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if current.ID != second.ID {
		t.Fatalf("current should be the highest id, got %d", current.ID)
	}

	first.Phase = round.PhaseActive
	if _, err := store.UpdateRound(ctx, first); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetRound(ctx, first.ID)
	if got.Phase != round.PhaseActive {
		t.Fatalf("update not persisted: %+v", got)
	}

	if _, err := store.UpdateRound(ctx, round.Round{ID: 99}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown round, got %v", err)
	}

	list, err := store.ListRounds(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Fatalf("expected newest round first with limit, got %+v", list)
	}
	all, _ := store.ListRounds(ctx, 0)
	if len(all) != 2 {
		t.Fatalf("limit 0 should list everything, got %d", len(all))
	}
}

func TestEscrowInsertionOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, pid := range []string{"c", "a", "b"} {
		if _, err := store.UpsertEscrowDeposit(ctx, ticket.EscrowDeposit{
			RoundID: 1, ParticipantID: pid, Amount: 10, Tickets: 10,
		}); err != nil {
			t.Fatalf("upsert %s: %v", pid, err)
		}
	}

	// Updating an existing deposit must not change its slot.
	if _, err := store.UpsertEscrowDeposit(ctx, ticket.EscrowDeposit{
		RoundID: 1, ParticipantID: "c", Amount: 25, Tickets: 25,
	}); err != nil {
		t.Fatalf("update c: %v", err)
	}

	deposits, err := store.ListEscrowDeposits(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(deposits) != 3 {
		t.Fatalf("expected 3 deposits, got %d", len(deposits))
	}
	for i, want := range []string{"c", "a", "b"} {
		if deposits[i].ParticipantID != want {
			t.Fatalf("slot %d: got %s, want %s", i, deposits[i].ParticipantID, want)
		}
	}
	if deposits[0].Amount != 25 {
		t.Fatalf("update lost: %+v", deposits[0])
	}

	if err := store.DeleteEscrowDeposit(ctx, 1, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteEscrowDeposit(ctx, 1, "a"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}

	if err := store.ClearEscrow(ctx, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	deposits, _ = store.ListEscrowDeposits(ctx, 1)
	if len(deposits) != 0 {
		t.Fatalf("expected empty escrow after clear, got %d", len(deposits))
	}
}

func TestPositionIndexIsStable(t *testing.T) {
	store := New()
	ctx := context.Background()

	a, _ := store.UpsertPosition(ctx, ticket.Position{RoundID: 1, ParticipantID: "a", Tickets: 10, Amount: 10})
	b, _ := store.UpsertPosition(ctx, ticket.Position{RoundID: 1, ParticipantID: "b", Tickets: 20, Amount: 20})
	if a.Index != 0 || b.Index != 1 {
		t.Fatalf("expected indexes 0 and 1, got %d and %d", a.Index, b.Index)
	}

	// Growing a position keeps its index.
	a2, _ := store.UpsertPosition(ctx, ticket.Position{RoundID: 1, ParticipantID: "a", Tickets: 50, Amount: 50})
	if a2.Index != 0 {
		t.Fatalf("index changed on update: %d", a2.Index)
	}

	list, _ := store.ListPositions(ctx, 1)
	if len(list) != 2 || list[0].ParticipantID != "a" || list[1].ParticipantID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if list[0].Tickets != 50 {
		t.Fatalf("update lost: %+v", list[0])
	}

	if _, err := store.GetPosition(ctx, 1, "zz"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDrawRequestSingleton(t *testing.T) {
	store := New()
	ctx := context.Background()

	req := round.DrawRequest{RoundID: 1, RequestedAt: 100, WindowStart: 103, WindowEnd: 167}
	if _, err := store.CreateDrawRequest(ctx, req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateDrawRequest(ctx, req); !errors.Is(err, round.ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}

	req.Entropy = []byte{1, 2, 3}
	if _, err := store.UpdateDrawRequest(ctx, req); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := store.GetDrawRequest(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Entropy) != 3 {
		t.Fatalf("entropy not persisted: %+v", got)
	}

	if _, err := store.GetDrawRequest(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefundIdempotence(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, err := store.CreateRefund(ctx, ticket.Refund{ID: "r1", RoundID: 1, ParticipantID: "a", Amount: 10})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Second create for the same participant returns the original record.
	second, err := store.CreateRefund(ctx, ticket.Refund{ID: "r2", RoundID: 1, ParticipantID: "a", Amount: 10})
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("duplicate refund created: %s vs %s", second.ID, first.ID)
	}

	refunds, _ := store.ListRefunds(ctx, 1)
	if len(refunds) != 1 {
		t.Fatalf("expected single refund record, got %d", len(refunds))
	}
}
