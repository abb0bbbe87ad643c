package simlog

import "fmt"

// NewError creates a new error with a message. A thin sentinel/wrap
// pair rather than an error-stack library: there is nothing here a
// library would simplify — both functions are a single fmt.Errorf
// call.
func NewError(msg string) error {
	return fmt.Errorf("%s", msg)
}

// WrapError wraps err with additional context, or builds a bare error
// from msg if err is nil.
func WrapError(err error, msg string) error {
	if err == nil {
		return fmt.Errorf("%s", msg)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
