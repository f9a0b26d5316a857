package toolproxy

import "fmt"

// InvalidToolError is returned when a client declaration cannot be proxied.
type InvalidToolError struct {
	Name   string
	Reason string
	Err    error
}

func (e *InvalidToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("toolproxy: invalid tool %q: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("toolproxy: invalid tool %q: %s", e.Name, e.Reason)
}

func (e *InvalidToolError) Unwrap() error { return e.Err }

// ArgumentError is returned when call arguments do not satisfy the schema.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("toolproxy: %s: invalid arguments: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }
