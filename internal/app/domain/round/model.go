// Package round defines the raffle round lifecycle model.
package round

import "time"

// Phase is the lifecycle phase of a round. The only legal forward path is
// WAITING -> ACTIVE -> DRAWING -> COMPLETE; CANCELLED is reachable from any
// non-terminal phase by operator action.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING"
	PhaseActive    Phase = "ACTIVE"
	PhaseDrawing   Phase = "DRAWING"
	PhaseComplete  Phase = "COMPLETE"
	PhaseCancelled Phase = "CANCELLED"
)

// Terminal reports whether the phase is final. Terminal rounds are archival
// and never mutated again.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseCancelled
}

// CanTransition reports whether moving from p to next is a legal transition.
func (p Phase) CanTransition(next Phase) bool {
	switch p {
	case PhaseWaiting:
		return next == PhaseActive || next == PhaseCancelled
	case PhaseActive:
		return next == PhaseDrawing || next == PhaseCancelled
	case PhaseDrawing:
		return next == PhaseComplete || next == PhaseCancelled
	default:
		return false
	}
}

// Round is the authoritative record of a raffle round. IDs are a monotonic
// sequence and are never reused. Version increases on every mutation so
// polling clients can detect missed transitions.
type Round struct {
	ID           uint64    `json:"round_id"`
	Phase        Phase     `json:"phase"`
	Version      uint64    `json:"version"`
	EndTime      time.Time `json:"end_time,omitempty"`
	TotalTickets uint64    `json:"total_tickets"`
	Pool         uint64    `json:"pool"`
	Winner       string    `json:"winner,omitempty"`
	WinnerPrize  uint64    `json:"winner_prize,omitempty"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TimerExpired reports whether the active window has elapsed at the given
// instant. It is a pure query; the transition to DRAWING only happens through
// a draw request.
func (r Round) TimerExpired(now time.Time) bool {
	return r.Phase == PhaseActive && !r.EndTime.IsZero() && !now.Before(r.EndTime)
}

// DrawRequest records the commit half of the two-phase draw. At most one
// exists per round, ever.
type DrawRequest struct {
	RoundID     uint64    `json:"round_id"`
	RequestedAt uint64    `json:"requested_at_block"`
	WindowStart uint64    `json:"window_start"`
	WindowEnd   uint64    `json:"window_end"`
	Entropy     []byte    `json:"entropy,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Executable reports whether the draw may execute at the given height.
func (d DrawRequest) Executable(height uint64) bool {
	return height >= d.WindowStart && height <= d.WindowEnd
}

// Expired reports whether the execution window has closed at the given height.
func (d DrawRequest) Expired(height uint64) bool {
	return height > d.WindowEnd
}

// Snapshot is the read-only view served to polling clients.
type Snapshot struct {
	RoundID          uint64    `json:"round_id"`
	Phase            Phase     `json:"phase"`
	Version          uint64    `json:"version"`
	EndTime          time.Time `json:"end_time,omitempty"`
	TotalTickets     uint64    `json:"total_tickets"`
	Pool             uint64    `json:"pool"`
	ParticipantCount int       `json:"participant_count"`
	Winner           string    `json:"winner,omitempty"`
	WinnerPrize      uint64    `json:"winner_prize,omitempty"`
}
