package artifact

import "errors"

var (
	// ErrNotFound is returned when no payload is stored for an agent.
	ErrNotFound = errors.New("payload not found")
	// ErrQuotaExceeded is returned when saving would exceed the store's byte budget.
	ErrQuotaExceeded = errors.New("payload store quota exceeded")
)
