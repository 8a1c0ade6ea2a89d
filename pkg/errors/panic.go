package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic turns the value returned by recover() into a fatal ErrInternal with the
// goroutine stack attached. It returns nil when nothing was recovered.
func RecoverPanic(r interface{}) error {
	if r == nil {
		return nil
	}

	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("panic: %v", r)
	}
	return ErrInternal.
		WithCause(cause).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}
