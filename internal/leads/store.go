package leads

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists leads in the relational database.
type Store struct {
	db DB
}

// NewStore initializes a store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("leads: db required")
	}
	return &Store{db: db}
}

// Create inserts a new row.
func (s *Store) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, company_id, name, contact, contact_type, source)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRow(ctx, query,
		id,
		req.CompanyID,
		req.Name,
		req.Contact,
		req.ContactType,
		req.Source,
	).Scan(&createdAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}

	return &Lead{
		ID:          id,
		CompanyID:   req.CompanyID,
		Name:        req.Name,
		Contact:     req.Contact,
		ContactType: req.ContactType,
		Source:      req.Source,
		CreatedAt:   createdAt,
	}, nil
}

// GetByID fetches a lead by id.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	query := `
		SELECT id, company_id, name, contact, contact_type, source, created_at
		FROM leads
		WHERE id = $1
	`
	row := s.db.QueryRow(ctx, query, id)
	var lead Lead
	if err := row.Scan(
		&lead.ID,
		&lead.CompanyID,
		&lead.Name,
		&lead.Contact,
		&lead.ContactType,
		&lead.Source,
		&lead.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return &lead, nil
}

// ListByCompany returns every lead for a company, oldest first.
func (s *Store) ListByCompany(ctx context.Context, companyID string) ([]Lead, error) {
	query := `
		SELECT id, company_id, name, contact, contact_type, source, created_at
		FROM leads
		WHERE company_id = $1
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("leads: list by company: %w", err)
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(
			&lead.ID,
			&lead.CompanyID,
			&lead.Name,
			&lead.Contact,
			&lead.ContactType,
			&lead.Source,
			&lead.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("leads: scan lead: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list by company: %w", err)
	}
	return out, nil
}
