package members

import "errors"

var (
	ErrMemberNotFound     = errors.New("members: member not found")
	ErrMembershipNotFound = errors.New("members: membership not found")
)
