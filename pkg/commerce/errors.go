package commerce

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound is returned when the backend has no such product.
	ErrProductNotFound = errors.New("product not found")

	// ErrOrderNotFound is returned when the backend has no such order.
	ErrOrderNotFound = errors.New("order not found")

	// ErrUnavailable is returned when the backend cannot be reached or
	// answers with a server error. Callers treat this as an infrastructure
	// fault, not a negative business answer.
	ErrUnavailable = errors.New("commerce backend unavailable")
)

// APIError carries a non-2xx backend response that is not one of the
// sentinel cases above.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}
