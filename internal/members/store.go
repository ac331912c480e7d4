package members

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

// Store persists members and memberships in Postgres.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		panic("members: db required")
	}
	return &Store{db: db}
}

// UpsertMember inserts a member keyed on (company_id, external_user_id),
// returning the existing row untouched when already present.
func (s *Store) UpsertMember(ctx context.Context, companyID, externalUserID, email, firstName, lastName string) (*Member, error) {
	id := uuid.New()
	query := `
		INSERT INTO members (id, company_id, external_user_id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (company_id, external_user_id)
		DO UPDATE SET external_user_id = EXCLUDED.external_user_id
		RETURNING id, email, first_name, last_name, created_at
	`
	m := Member{CompanyID: companyID, ExternalUserID: externalUserID}
	if err := s.db.QueryRow(ctx, query, id, companyID, externalUserID, email, firstName, lastName).
		Scan(&m.ID, &m.Email, &m.FirstName, &m.LastName, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("members: upsert member: %w", err)
	}
	return &m, nil
}

// FindByExternalUserID fetches a member by platform user id, memberships included.
func (s *Store) FindByExternalUserID(ctx context.Context, companyID, externalUserID string) (*Member, error) {
	query := `
		SELECT id, company_id, external_user_id, email, first_name, last_name, created_at
		FROM members
		WHERE company_id = $1 AND external_user_id = $2
	`
	var m Member
	if err := s.db.QueryRow(ctx, query, companyID, externalUserID).Scan(
		&m.ID, &m.CompanyID, &m.ExternalUserID, &m.Email, &m.FirstName, &m.LastName, &m.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("members: find by external user id: %w", err)
	}
	memberships, err := s.membershipsFor(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return nil, err
	}
	m.Memberships = memberships[m.ID]
	return &m, nil
}

// GetByID fetches a member with memberships loaded.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Member, error) {
	query := `
		SELECT id, company_id, external_user_id, email, first_name, last_name, created_at
		FROM members
		WHERE id = $1
	`
	var m Member
	if err := s.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.CompanyID, &m.ExternalUserID, &m.Email, &m.FirstName, &m.LastName, &m.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("members: get by id: %w", err)
	}
	memberships, err := s.membershipsFor(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return nil, err
	}
	m.Memberships = memberships[m.ID]
	return &m, nil
}

// ListWithMemberships returns the company's members that hold at least one
// membership, with memberships loaded oldest-started first.
func (s *Store) ListWithMemberships(ctx context.Context, companyID string) ([]Member, error) {
	query := `
		SELECT DISTINCT m.id, m.company_id, m.external_user_id, m.email, m.first_name, m.last_name, m.created_at
		FROM members m
		JOIN memberships ms ON ms.member_id = m.id
		WHERE m.company_id = $1
		ORDER BY m.created_at
	`
	rows, err := s.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("members: list with memberships: %w", err)
	}
	defer rows.Close()

	var out []Member
	var ids []uuid.UUID
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.ExternalUserID, &m.Email, &m.FirstName, &m.LastName, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("members: scan member: %w", err)
		}
		out = append(out, m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members: list with memberships: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}

	memberships, err := s.membershipsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Memberships = memberships[out[i].ID]
	}
	return out, nil
}

func (s *Store) membershipsFor(ctx context.Context, memberIDs []uuid.UUID) (map[uuid.UUID][]Membership, error) {
	query := `
		SELECT id, company_id, member_id, external_membership_id, product_id, plan_id, status, started_at, canceled_at
		FROM memberships
		WHERE member_id = ANY($1)
		ORDER BY started_at
	`
	rows, err := s.db.Query(ctx, query, memberIDs)
	if err != nil {
		return nil, fmt.Errorf("members: list memberships: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]Membership)
	for rows.Next() {
		var ms Membership
		if err := rows.Scan(&ms.ID, &ms.CompanyID, &ms.MemberID, &ms.ExternalMembershipID, &ms.ProductID, &ms.PlanID, &ms.Status, &ms.StartedAt, &ms.CanceledAt); err != nil {
			return nil, fmt.Errorf("members: scan membership: %w", err)
		}
		out[ms.MemberID] = append(out[ms.MemberID], ms)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("members: list memberships: %w", err)
	}
	return out, nil
}

// UpsertMembership inserts or updates a membership keyed on its external id.
// Only status is refreshed on conflict; start time and plan are preserved.
func (s *Store) UpsertMembership(ctx context.Context, ms *Membership) error {
	if ms.ID == uuid.Nil {
		ms.ID = uuid.New()
	}
	if ms.StartedAt.IsZero() {
		ms.StartedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO memberships (id, company_id, member_id, external_membership_id, product_id, plan_id, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (external_membership_id)
		DO UPDATE SET status = EXCLUDED.status
		RETURNING id, member_id, started_at
	`
	if err := s.db.QueryRow(ctx, query,
		ms.ID, ms.CompanyID, ms.MemberID, ms.ExternalMembershipID, ms.ProductID, ms.PlanID, ms.Status, ms.StartedAt,
	).Scan(&ms.ID, &ms.MemberID, &ms.StartedAt); err != nil {
		return fmt.Errorf("members: upsert membership: %w", err)
	}
	return nil
}

// UpdateMembershipStatus sets status (and cancellation time, when non-nil)
// on the membership with the given external id.
func (s *Store) UpdateMembershipStatus(ctx context.Context, externalMembershipID, status string, canceledAt *time.Time) error {
	query := `
		UPDATE memberships
		SET status = $2, canceled_at = COALESCE($3, canceled_at)
		WHERE external_membership_id = $1
	`
	ct, err := s.db.Exec(ctx, query, externalMembershipID, status, canceledAt)
	if err != nil {
		return fmt.Errorf("members: update membership status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
