package sends

import "errors"

var (
	// ErrSendNotFound indicates no send row matched the lookup.
	ErrSendNotFound = errors.New("sends: send not found")
	// ErrMissingTarget indicates a send was created with neither a
	// member nor a lead reference.
	ErrMissingTarget = errors.New("sends: target required")
)
