package dispatch

import "fmt"

// GatewayError reports a failed call to a push gateway. It is always scoped to a
// single chunk: callers skip the chunk and carry on with the rest.
type GatewayError struct {
	// Op names the gateway operation, e.g. "submit" or "receipts".
	Op string
	// StatusCode is the HTTP status returned by the gateway, if any.
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
