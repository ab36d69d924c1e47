package rounds

import (
	"context"
	"testing"
	"time"

	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/ticket"
)

func TestWatchdogRequestsDrawAfterTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := activateRound(t, f)

	w := NewWatchdog(f.svc, time.Minute, nil)

	// Timer still running: scan must leave the round alone.
	w.scan()
	snap, err := f.svc.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseActive {
		t.Fatalf("round left ACTIVE early, got %s", snap.Phase)
	}

	f.advanceTime(601 * time.Second)
	w.scan()

	snap, err = f.svc.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseDrawing {
		t.Fatalf("expected DRAWING after scan, got %s", snap.Phase)
	}
	if _, err := f.svc.DrawRequest(ctx, id); err != nil {
		t.Fatalf("draw request not recorded: %v", err)
	}

	// A second scan must tolerate the existing request.
	w.scan()
}

func TestWatchdogActivatesRoundLeftWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Simulate a crash between escrow persistence and activation: deposits
	// exist in the store but the round is still WAITING.
	snap, err := f.svc.CurrentSnapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	for _, d := range []ticket.EscrowDeposit{
		{RoundID: snap.RoundID, ParticipantID: "alice", Amount: 10, Tickets: 10},
		{RoundID: snap.RoundID, ParticipantID: "bob", Amount: 30, Tickets: 30},
	} {
		if err := f.custodian.Hold(ctx, d.ParticipantID, d.Amount); err != nil {
			t.Fatalf("hold: %v", err)
		}
		if _, err := f.store.UpsertEscrowDeposit(ctx, d); err != nil {
			t.Fatalf("seed escrow: %v", err)
		}
	}

	w := NewWatchdog(f.svc, time.Minute, nil)
	w.scan()

	snap, err = f.svc.Snapshot(ctx, snap.RoundID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseActive {
		t.Fatalf("expected ACTIVE after scan, got %s", snap.Phase)
	}
}

func TestWatchdogExecutesDrawInsideWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := activateRound(t, f)

	f.advanceTime(601 * time.Second)
	req, err := f.svc.RequestDraw(ctx, id)
	if err != nil {
		t.Fatalf("request draw: %v", err)
	}

	w := NewWatchdog(f.svc, time.Minute, nil)

	// Before the window opens the scan retries silently.
	w.scan()
	snap, err := f.svc.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseDrawing {
		t.Fatalf("draw executed before window opened, phase %s", snap.Phase)
	}

	f.clock.Set(req.WindowStart)
	w.scan()

	snap, err = f.svc.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseComplete {
		t.Fatalf("expected COMPLETE after scan, got %s", snap.Phase)
	}
}

func TestWatchdogNeverDrawsExpiredWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := activateRound(t, f)

	f.advanceTime(601 * time.Second)
	req, err := f.svc.RequestDraw(ctx, id)
	if err != nil {
		t.Fatalf("request draw: %v", err)
	}
	f.clock.Set(req.WindowEnd + 1)

	w := NewWatchdog(f.svc, time.Minute, nil)
	w.scan()

	// Expiry is terminal for the draw: the watchdog reports, never executes.
	snap, err := f.svc.Snapshot(ctx, id)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Phase != round.PhaseDrawing {
		t.Fatalf("expired round must stay DRAWING, got %s", snap.Phase)
	}

	stuck, err := f.svc.Stuck(ctx)
	if err != nil {
		t.Fatalf("stuck: %v", err)
	}
	if len(stuck) != 1 || stuck[0].RoundID != id {
		t.Fatalf("expected round %d reported stuck, got %+v", id, stuck)
	}
}

func TestWatchdogStartStop(t *testing.T) {
	f := newFixture(t)
	w := NewWatchdog(f.svc, time.Hour, nil)
	w.Start()
	w.Stop()
}
