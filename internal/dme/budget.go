package dme

import "fmt"

// DefaultMaxErrors is the number of external failures a run tolerates.
const DefaultMaxErrors = 3

// ErrorBudget counts external failures across a run. It is not safe for
// concurrent use.
type ErrorBudget struct {
	max   int
	count int
}

// NewErrorBudget returns a budget allowing max-1 failures; the max-th
// failure exhausts it. max <= 0 never exhausts.
func NewErrorBudget(max int) *ErrorBudget {
	return &ErrorBudget{max: max}
}

// Record counts err and returns ErrBudgetExhausted, wrapping err, once the
// count reaches the maximum. A nil err is not counted.
func (b *ErrorBudget) Record(err error) error {
	if err == nil {
		return nil
	}
	b.count++
	if b.max > 0 && b.count >= b.max {
		return fmt.Errorf("%w after %d errors: %w", ErrBudgetExhausted, b.count, err)
	}
	return nil
}

// Count returns the failures recorded so far.
func (b *ErrorBudget) Count() int {
	return b.count
}

// Max returns the configured maximum.
func (b *ErrorBudget) Max() int {
	return b.max
}
