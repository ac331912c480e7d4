package playbooks

import "errors"

var (
	// ErrPlaybookNotFound indicates the playbook does not exist or belongs to another company.
	ErrPlaybookNotFound = errors.New("playbooks: playbook not found")
)
