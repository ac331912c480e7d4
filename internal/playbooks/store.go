package playbooks

import (
	"context"
	"fmt"

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

// Store persists playbooks, steps and templates in Postgres.
type Store struct {
	db DB
}

func NewStore(db DB) *Store {
	if db == nil {
		panic("playbooks: db required")
	}
	return &Store{db: db}
}

// ListEnabled returns enabled playbooks with their steps and templates,
// steps ordered ascending. companyID narrows the result when non-empty.
func (s *Store) ListEnabled(ctx context.Context, companyID string) ([]Playbook, error) {
	query := `
		SELECT id, company_id, name, description, type, enabled, target_rules, created_at
		FROM playbooks
		WHERE enabled = TRUE AND ($1 = '' OR company_id = $1)
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("playbooks: list enabled: %w", err)
	}
	defer rows.Close()

	var books []Playbook
	var ids []uuid.UUID
	for rows.Next() {
		var p Playbook
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Description, &p.Type, &p.Enabled, &p.TargetRules, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("playbooks: scan playbook: %w", err)
		}
		books = append(books, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("playbooks: list enabled: %w", err)
	}
	if len(books) == 0 {
		return nil, nil
	}

	steps, err := s.stepsForPlaybooks(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range books {
		books[i].Steps = steps[books[i].ID]
	}
	return books, nil
}

// ListEnabledByType returns enabled playbooks of one type for a company.
func (s *Store) ListEnabledByType(ctx context.Context, companyID, playbookType string) ([]Playbook, error) {
	all, err := s.ListEnabled(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var filtered []Playbook
	for _, p := range all {
		if p.Type == playbookType {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

func (s *Store) stepsForPlaybooks(ctx context.Context, playbookIDs []uuid.UUID) (map[uuid.UUID][]Step, error) {
	query := `
		SELECT s.id, s.playbook_id, s.step_order, s.delay_minutes, s.channel,
		       t.id, t.name, t.tone, t.body, t.cta_label, t.cta_path
		FROM playbook_steps s
		JOIN message_templates t ON t.id = s.template_id
		WHERE s.playbook_id = ANY($1)
		ORDER BY s.playbook_id, s.step_order
	`
	rows, err := s.db.Query(ctx, query, playbookIDs)
	if err != nil {
		return nil, fmt.Errorf("playbooks: list steps: %w", err)
	}
	defer rows.Close()

	steps := make(map[uuid.UUID][]Step)
	for rows.Next() {
		var st Step
		if err := rows.Scan(
			&st.ID, &st.PlaybookID, &st.Order, &st.DelayMinutes, &st.Channel,
			&st.Template.ID, &st.Template.Name, &st.Template.Tone, &st.Template.Body,
			&st.Template.CTALabel, &st.Template.CTAPath,
		); err != nil {
			return nil, fmt.Errorf("playbooks: scan step: %w", err)
		}
		steps[st.PlaybookID] = append(steps[st.PlaybookID], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("playbooks: list steps: %w", err)
	}
	return steps, nil
}

// CountByCompany reports how many playbooks a company has, enabled or not.
func (s *Store) CountByCompany(ctx context.Context, companyID string) (int, error) {
	var count int
	query := `SELECT count(*) FROM playbooks WHERE company_id = $1`
	if err := s.db.QueryRow(ctx, query, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("playbooks: count by company: %w", err)
	}
	return count, nil
}

// Create inserts a playbook with its steps and templates.
func (s *Store) Create(ctx context.Context, p *Playbook) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	rules := p.TargetRules
	if len(rules) == 0 {
		rules = []byte("{}")
	}
	query := `
		INSERT INTO playbooks (id, company_id, name, description, type, enabled, target_rules)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := s.db.QueryRow(ctx, query,
		p.ID, p.CompanyID, p.Name, p.Description, p.Type, p.Enabled, rules,
	).Scan(&p.CreatedAt); err != nil {
		return fmt.Errorf("playbooks: insert playbook: %w", err)
	}

	for i := range p.Steps {
		st := &p.Steps[i]
		st.PlaybookID = p.ID
		if st.ID == uuid.Nil {
			st.ID = uuid.New()
		}
		if st.Template.ID == uuid.Nil {
			st.Template.ID = uuid.New()
		}
		tmpl := `
			INSERT INTO message_templates (id, name, tone, body, cta_label, cta_path)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := s.db.Exec(ctx, tmpl,
			st.Template.ID, st.Template.Name, st.Template.Tone, st.Template.Body,
			st.Template.CTALabel, st.Template.CTAPath,
		); err != nil {
			return fmt.Errorf("playbooks: insert template: %w", err)
		}
		stepQ := `
			INSERT INTO playbook_steps (id, playbook_id, step_order, delay_minutes, channel, template_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		if _, err := s.db.Exec(ctx, stepQ,
			st.ID, p.ID, st.Order, st.DelayMinutes, st.Channel, st.Template.ID,
		); err != nil {
			return fmt.Errorf("playbooks: insert step: %w", err)
		}
	}
	return nil
}

// SetEnabled toggles whether the scheduler considers a playbook.
func (s *Store) SetEnabled(ctx context.Context, companyID string, id uuid.UUID, enabled bool) error {
	query := `UPDATE playbooks SET enabled = $3, updated_at = now() WHERE id = $1 AND company_id = $2`
	ct, err := s.db.Exec(ctx, query, id, companyID, enabled)
	if err != nil {
		return fmt.Errorf("playbooks: set enabled: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrPlaybookNotFound
	}
	return nil
}
