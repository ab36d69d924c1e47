package round

import "errors"

var (
	// ErrRoundNotFound indicates the round id does not exist.
	ErrRoundNotFound = errors.New("round: round not found")

	// ErrInvalidPhaseTransition indicates an operation illegal in the
	// round's current phase. State is left unchanged.
	ErrInvalidPhaseTransition = errors.New("round: invalid phase transition")

	// ErrInsufficientParticipants indicates activation was attempted with
	// fewer than two distinct escrow participants.
	ErrInsufficientParticipants = errors.New("round: insufficient participants")

	// ErrTicketLimitExceeded indicates a deposit or purchase would push a
	// wallet past the per-round ticket ceiling. Nothing is deposited.
	ErrTicketLimitExceeded = errors.New("round: ticket limit exceeded")

	// ErrBelowMinimumDeposit indicates the amount is under the configured
	// minimum per deposit.
	ErrBelowMinimumDeposit = errors.New("round: below minimum deposit")

	// ErrNothingToWithdraw indicates a withdrawal by a participant with no
	// escrow deposit on record.
	ErrNothingToWithdraw = errors.New("round: nothing to withdraw")

	// ErrNoTicketsToDraw indicates a draw request against a round whose
	// ticket total is under the configured minimum. Such a round is
	// cancelled, not drawn.
	ErrNoTicketsToDraw = errors.New("round: no tickets to draw")

	// ErrAlreadyRequested indicates a second draw request on the same round.
	// The first request's window is unaffected.
	ErrAlreadyRequested = errors.New("round: draw already requested")

	// ErrDrawNotRequested indicates draw execution without a prior request.
	ErrDrawNotRequested = errors.New("round: draw not requested")

	// ErrDrawNotReady indicates the confirmation delay has not elapsed.
	// Callers may retry later.
	ErrDrawNotReady = errors.New("round: draw not ready")

	// ErrDrawWindowExpired indicates the execution window closed before the
	// draw ran. The round is dead until an operator cancels it; the draw is
	// never retried with fresh entropy.
	ErrDrawWindowExpired = errors.New("round: draw window expired")

	// ErrRandomnessUnavailable indicates the entropy source cannot yet
	// resolve a value for the committed height. Callers may retry later.
	ErrRandomnessUnavailable = errors.New("round: randomness unavailable")
)

// Retryable reports whether the error denotes a transient condition the
// caller may simply retry, as opposed to a round that is dead or a request
// that was invalid.
func Retryable(err error) bool {
	return errors.Is(err, ErrDrawNotReady) || errors.Is(err, ErrRandomnessUnavailable)
}
