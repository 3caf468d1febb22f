package ledger

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrExceedsBankCap is matched by *ExceedsBankCapError.
	ErrExceedsBankCap = errors.New("exceeds bank cap")
	// ErrCapacityUnderflow is returned when a release is larger than the
	// capacity in use. It indicates price drift between deposit and
	// withdrawal and aborts the operation.
	ErrCapacityUnderflow = errors.New("capacity underflow")
)

// ExceedsBankCapError reports a reservation larger than the remaining capacity.
type ExceedsBankCapError struct {
	Attempted *uint256.Int
	Remaining *uint256.Int
}

func (e *ExceedsBankCapError) Error() string {
	return fmt.Sprintf("exceeds bank cap: attempted %s usd6, remaining %s usd6", e.Attempted.Dec(), e.Remaining.Dec())
}

// Is makes errors.Is(err, ErrExceedsBankCap) match.
func (e *ExceedsBankCapError) Is(target error) bool {
	return target == ErrExceedsBankCap
}

// CapacityLedger tracks the USD6 value currently held against a fixed cap.
type CapacityLedger struct {
	bankCap *uint256.Int
	used    *uint256.Int
}

// NewCapacityLedger creates an empty ledger bounded by bankCap.
func NewCapacityLedger(bankCap *uint256.Int) *CapacityLedger {
	return &CapacityLedger{
		bankCap: new(uint256.Int).Set(bankCap),
		used:    new(uint256.Int),
	}
}

// Cap returns the immutable bank cap.
func (c *CapacityLedger) Cap() *uint256.Int {
	return new(uint256.Int).Set(c.bankCap)
}

// Used returns the capacity in use.
func (c *CapacityLedger) Used() *uint256.Int {
	return new(uint256.Int).Set(c.used)
}

// Remaining returns cap - used. Used never exceeds the cap through Reserve,
// so the subtraction cannot wrap.
func (c *CapacityLedger) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(c.bankCap, c.used)
}

// Reserve adds usd6 to the capacity in use.
func (c *CapacityLedger) Reserve(usd6 *uint256.Int) (Undo, error) {
	remaining := c.Remaining()
	if usd6.Gt(remaining) {
		return nil, &ExceedsBankCapError{
			Attempted: new(uint256.Int).Set(usd6),
			Remaining: remaining,
		}
	}
	prev := new(uint256.Int).Set(c.used)
	c.used.Add(c.used, usd6)
	return func() { c.used.Set(prev) }, nil
}

// Release subtracts usd6 from the capacity in use.
func (c *CapacityLedger) Release(usd6 *uint256.Int) (Undo, error) {
	next, underflow := new(uint256.Int).SubOverflow(c.used, usd6)
	if underflow {
		return nil, fmt.Errorf("%w: release %s usd6 with %s usd6 in use", ErrCapacityUnderflow, usd6.Dec(), c.used.Dec())
	}
	prev := new(uint256.Int).Set(c.used)
	c.used.Set(next)
	return func() { c.used.Set(prev) }, nil
}
