package connectivity

import "fmt"

// ErrServiceNotFound is returned when Call targets an operation with no
// route and no local handler.
type ErrServiceNotFound struct {
	Service string
}

func (e *ErrServiceNotFound) Error() string {
	return fmt.Sprintf("connectivity: unknown operation: %s", e.Service)
}

// ErrNoFactory is returned by SetRoute when the route's strategy has no
// registered TransportFactory.
type ErrNoFactory struct {
	Service  string
	Strategy string
}

func (e *ErrNoFactory) Error() string {
	return fmt.Sprintf("connectivity: no transport factory for strategy %q (service %s)", e.Strategy, e.Service)
}

// ErrFactoryFailed is returned by SetRoute when a TransportFactory cannot
// build a handler.
type ErrFactoryFailed struct {
	Service  string
	Strategy string
	Endpoint string
	Cause    error
}

func (e *ErrFactoryFailed) Error() string {
	return fmt.Sprintf("connectivity: factory %q failed for service %s (endpoint %s): %v",
		e.Strategy, e.Service, e.Endpoint, e.Cause)
}

func (e *ErrFactoryFailed) Unwrap() error { return e.Cause }

// ErrPanic wraps a panic recovered by the Recovery middleware.
type ErrPanic struct {
	Value any
}

func (e *ErrPanic) Error() string {
	return "connectivity: handler panicked"
}

// ErrInvalidPayload is returned by handlers whose payload does not decode
// or misses required fields.
type ErrInvalidPayload struct {
	Service string
	Cause   error
}

func (e *ErrInvalidPayload) Error() string {
	return fmt.Sprintf("connectivity: %s: invalid payload: %v", e.Service, e.Cause)
}

func (e *ErrInvalidPayload) Unwrap() error { return e.Cause }
