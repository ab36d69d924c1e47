package rounds

import (
	"context"
	"fmt"
	"sync"
)

// Custodian is the value-custody primitive the engine consumes. A transfer
// failure is part of the operation's transaction boundary: a deposit that
// cannot be custodied must not create a ticket.
type Custodian interface {
	// Hold takes custody of a participant's deposit.
	Hold(ctx context.Context, participantID string, amount uint64) error
	// Refund returns held value to a participant.
	Refund(ctx context.Context, participantID string, amount uint64) error
	// Pay releases held value to a recipient.
	Pay(ctx context.Context, recipientID string, amount uint64) error
}

// AccountingCustodian is an in-process custodian that tracks the held pot.
// It enforces that value can never leave custody beyond what was put in.
type AccountingCustodian struct {
	mu   sync.Mutex
	held uint64
	out  map[string]uint64
}

// NewAccountingCustodian constructs an empty custodian.
func NewAccountingCustodian() *AccountingCustodian {
	return &AccountingCustodian{out: make(map[string]uint64)}
}

// Hold records custody of the amount.
func (c *AccountingCustodian) Hold(_ context.Context, _ string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.held += amount
	return nil
}

// Refund releases the amount back to the participant.
func (c *AccountingCustodian) Refund(ctx context.Context, participantID string, amount uint64) error {
	return c.release(participantID, amount)
}

// Pay releases the amount to the recipient.
func (c *AccountingCustodian) Pay(ctx context.Context, recipientID string, amount uint64) error {
	return c.release(recipientID, amount)
}

func (c *AccountingCustodian) release(recipient string, amount uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if amount > c.held {
		return fmt.Errorf("custody underflow: release %d exceeds held %d", amount, c.held)
	}
	c.held -= amount
	c.out[recipient] += amount
	return nil
}

// Held returns the value currently in custody.
func (c *AccountingCustodian) Held() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// PaidTo returns the total released to a recipient.
func (c *AccountingCustodian) PaidTo(recipient string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out[recipient]
}
