package leads

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Contact types a lead can be captured with.
const (
	ContactTypeEmail = "email"
	ContactTypePhone = "phone"
)

// Lead represents a pre-purchase contact captured for a company.
type Lead struct {
	ID          uuid.UUID `json:"id"`
	CompanyID   string    `json:"company_id"`
	Name        string    `json:"name"`
	Contact     string    `json:"contact"`
	ContactType string    `json:"contact_type"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	CompanyID   string `json:"-"`
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	ContactType string `json:"contact_type"`
	Source      string `json:"source"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.CompanyID) == "" {
		return ErrMissingCompanyID
	}
	if strings.TrimSpace(r.Contact) == "" {
		return ErrMissingContact
	}
	return nil
}
