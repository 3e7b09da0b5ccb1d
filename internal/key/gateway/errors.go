package gateway

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy for directory calls.
type Category string

const (
	// CategoryTimeout: the directory did not answer within the call budget.
	CategoryTimeout Category = "timeout"
	// CategoryOutage: transport failure, 5xx, or open circuit.
	CategoryOutage Category = "outage"
	// CategoryRejected: the directory refused the operation (4xx).
	CategoryRejected Category = "rejected"
	// CategoryBadData: the response could not be understood.
	CategoryBadData Category = "bad_data"
)

// Error wraps a directory failure with its category. The engine treats every
// category the same way; the category feeds logs, metrics and the failure
// code recorded on the key.
type Error struct {
	Category   Category
	Call       string
	StatusCode int
	Message    string
	Underlying error
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("directory %s [%s]: %s: %v", e.Call, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("directory %s [%s]: %s", e.Call, e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func NewError(category Category, call, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Call:       call,
		Message:    message,
		Underlying: underlying,
	}
}

// CategoryOf extracts the category from err. Errors that did not come from
// the adapter are reported as outages.
func CategoryOf(err error) Category {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Category
	}
	return CategoryOutage
}

// IsRetryable reports whether a later retry could succeed.
func IsRetryable(err error) bool {
	c := CategoryOf(err)
	return c == CategoryTimeout || c == CategoryOutage
}

var ErrCircuitOpen = errors.New("circuit open")
