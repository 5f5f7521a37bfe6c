package cmd

import "fmt"

// Process exit codes with meaning to the host runtime. Any other non-zero
// exit is an internal error the host treats as a plain failure.
const (
	// ExitBlock tells the host the proposed operation (or session stop)
	// was refused; stderr carries the reason.
	ExitBlock = 2

	// ExitPersist tells the host that loop state could not be made
	// durable, so the iteration count may be stale.
	ExitPersist = 3
)

// ExitCodeError signals a specific process exit code through the error
// return chain.
type ExitCodeError struct {
	Code int
}

// NewExitCodeError creates an ExitCodeError with the given code.
func NewExitCodeError(code int) *ExitCodeError {
	return &ExitCodeError{Code: code}
}

// Error implements the error interface.
func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}
