package dme

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparseableResponse is returned when the client output carries no
	// recognised status or an unknown result code.
	ErrUnparseableResponse = errors.New("unparseable registration response")
	// ErrBudgetExhausted is returned by ErrorBudget.Record once the run has
	// seen too many failures.
	ErrBudgetExhausted = errors.New("registration error budget exhausted")
	// ErrCommandUnavailable means the client binary could not be started.
	ErrCommandUnavailable = errors.New("registration command unavailable")
)

// resultCauses are the result codes the client documents.
var resultCauses = map[int]string{
	0: "Authentication error",
	1: "Error reading file references from the properties file",
	2: "Invalid user input",
	3: "No input files to process",
	4: "Failed to process collection",
	5: "Failed to process data file",
}

// RegistrationError is a FAILED response with a known result code, or a
// client process that failed after printing a success status.
type RegistrationError struct {
	Code      int // CLI_<n>; -1 when the process failed without a code
	Cause     string
	Output    string
	Retryable bool
}

func (e *RegistrationError) Error() string {
	if e.Code < 0 {
		return "registration failed: " + e.Cause
	}
	return fmt.Sprintf("registration failed: CLI_%d: %s", e.Code, e.Cause)
}

func newRegistrationError(code int, output string) *RegistrationError {
	return &RegistrationError{
		Code:   code,
		Cause:  resultCauses[code],
		Output: output,
		// Bad properties and bad input fail the same way on every attempt.
		Retryable: code != 1 && code != 2,
	}
}

// IsRetryable reports whether err is an external failure that could succeed
// on a later attempt. Configuration errors are not retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re *RegistrationError
	if errors.As(err, &re) {
		return re.Retryable
	}
	if errors.Is(err, ErrCommandUnavailable) || errors.Is(err, ErrBudgetExhausted) {
		return false
	}
	return true
}
