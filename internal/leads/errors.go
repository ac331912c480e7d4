package leads

import "errors"

var (
	ErrLeadNotFound     = errors.New("leads: lead not found")
	ErrMissingCompanyID = errors.New("leads: company id is required")
	ErrMissingContact   = errors.New("leads: contact is required")
)
