package decision

import "errors"

var (
	ErrNotFound     = errors.New("decision not found")
	ErrInvalidState = errors.New("operation not allowed in current decision state")
	// ErrStaleState means a compare-and-set found the row in another state.
	ErrStaleState      = errors.New("decision state changed concurrently")
	ErrNoScore         = errors.New("decision has no risk score")
	ErrDuplicateActive = errors.New("requisition already has an active decision")
	ErrAdapterFailure  = errors.New("erp adapter call failed")
	ErrValidation      = errors.New("validation failed")
)
