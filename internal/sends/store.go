package sends

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

// Store persists playbook sends.
type Store struct {
	db DB
}

// NewStore initializes a store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("sends: db required")
	}
	return &Store{db: db}
}

const sendColumns = `
	id, company_id, playbook_id, step_id, member_id, lead_id,
	channel, content, cta_label, cta_path, status, scheduled_for,
	sent_at, clicked_at, external_id, last_error, created_at
`

// CreateQueued inserts a queued send unless an active send (queued or
// sent) already exists for the same playbook, step and target. The
// partial unique index on playbook_sends makes concurrent inserts for
// the same target resolve to a single winner. Returns whether the row
// was inserted.
func (s *Store) CreateQueued(ctx context.Context, send *Send) (bool, error) {
	if send.MemberID == nil && send.LeadID == nil {
		return false, ErrMissingTarget
	}
	if send.ID == uuid.Nil {
		send.ID = uuid.New()
	}
	if send.Status == "" {
		send.Status = StatusQueued
	}

	query := `
		INSERT INTO playbook_sends
			(id, company_id, playbook_id, step_id, member_id, lead_id,
			 channel, content, cta_label, cta_path, status, scheduled_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query,
		send.ID,
		send.CompanyID,
		send.PlaybookID,
		send.StepID,
		send.MemberID,
		send.LeadID,
		send.Channel,
		send.Content,
		send.CTALabel,
		send.CTAPath,
		send.Status,
		send.ScheduledFor,
	)
	if err != nil {
		return false, fmt.Errorf("sends: insert queued: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get fetches a send by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Send, error) {
	query := `SELECT ` + sendColumns + ` FROM playbook_sends WHERE id = $1`
	send, err := scanSend(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSendNotFound
		}
		return nil, fmt.Errorf("sends: select: %w", err)
	}
	return send, nil
}

// FindStepSend returns the send for a given playbook step and target,
// or ErrSendNotFound. Skipped and failed sends are ignored so a step
// can be re-attempted after a skip.
func (s *Store) FindStepSend(ctx context.Context, playbookID, stepID uuid.UUID, target TargetRef) (*Send, error) {
	query := `
		SELECT ` + sendColumns + `
		FROM playbook_sends
		WHERE playbook_id = $1
		  AND step_id = $2
		  AND coalesce(member_id, lead_id) = coalesce($3, $4)
		  AND status IN ('queued', 'sent')
		ORDER BY created_at DESC
		LIMIT 1
	`
	send, err := scanSend(s.db.QueryRow(ctx, query, playbookID, stepID, target.MemberID, target.LeadID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSendNotFound
		}
		return nil, fmt.Errorf("sends: find step send: %w", err)
	}
	return send, nil
}

// ListDue returns queued sends whose scheduled time has passed, oldest
// first, up to limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Send, error) {
	query := `
		SELECT ` + sendColumns + `
		FROM playbook_sends
		WHERE status = 'queued' AND scheduled_for <= $1
		ORDER BY scheduled_for
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("sends: list due: %w", err)
	}
	defer rows.Close()

	var out []Send
	for rows.Next() {
		send, err := scanSend(rows)
		if err != nil {
			return nil, fmt.Errorf("sends: scan due send: %w", err)
		}
		out = append(out, *send)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sends: list due: %w", err)
	}
	return out, nil
}

// MarkSent transitions a queued send to sent. A send already in a
// terminal status is left untouched.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time, externalID string) error {
	query := `
		UPDATE playbook_sends
		SET status = 'sent', sent_at = $2, external_id = $3
		WHERE id = $1 AND status = 'queued'
	`
	if _, err := s.db.Exec(ctx, query, id, sentAt, externalID); err != nil {
		return fmt.Errorf("sends: mark sent: %w", err)
	}
	return nil
}

// MarkFailed transitions a queued send to failed, recording the error.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE playbook_sends
		SET status = 'failed', last_error = $2
		WHERE id = $1 AND status = 'queued'
	`
	if _, err := s.db.Exec(ctx, query, id, lastError); err != nil {
		return fmt.Errorf("sends: mark failed: %w", err)
	}
	return nil
}

// MarkSkipped transitions a queued send to skipped, recording the reason.
func (s *Store) MarkSkipped(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE playbook_sends
		SET status = 'skipped', last_error = $2
		WHERE id = $1 AND status = 'queued'
	`
	if _, err := s.db.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("sends: mark skipped: %w", err)
	}
	return nil
}

// SetClicked records the first click on a sent message. Later clicks
// keep the original timestamp.
func (s *Store) SetClicked(ctx context.Context, id uuid.UUID, clickedAt time.Time) error {
	query := `
		UPDATE playbook_sends
		SET clicked_at = $2
		WHERE id = $1 AND status = 'sent' AND clicked_at IS NULL
	`
	if _, err := s.db.Exec(ctx, query, id, clickedAt); err != nil {
		return fmt.Errorf("sends: set clicked: %w", err)
	}
	return nil
}

// LatestClickedSend returns the member's most recently clicked sent
// message since the cutoff, or ErrSendNotFound.
func (s *Store) LatestClickedSend(ctx context.Context, companyID string, memberID uuid.UUID, since time.Time) (*Send, error) {
	query := `
		SELECT ` + sendColumns + `
		FROM playbook_sends
		WHERE company_id = $1
		  AND member_id = $2
		  AND status = 'sent'
		  AND clicked_at IS NOT NULL
		  AND clicked_at >= $3
		ORDER BY clicked_at DESC
		LIMIT 1
	`
	send, err := scanSend(s.db.QueryRow(ctx, query, companyID, memberID, since))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSendNotFound
		}
		return nil, fmt.Errorf("sends: latest clicked send: %w", err)
	}
	return send, nil
}

// HasRecentForPlaybookMember reports whether the member already has a
// send for the playbook created since the cutoff, in any status.
func (s *Store) HasRecentForPlaybookMember(ctx context.Context, playbookID, memberID uuid.UUID, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM playbook_sends
			WHERE playbook_id = $1 AND member_id = $2 AND created_at >= $3
		)
	`
	var exists bool
	if err := s.db.QueryRow(ctx, query, playbookID, memberID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("sends: has recent for playbook member: %w", err)
	}
	return exists, nil
}

func scanSend(row pgx.Row) (*Send, error) {
	var send Send
	if err := row.Scan(
		&send.ID,
		&send.CompanyID,
		&send.PlaybookID,
		&send.StepID,
		&send.MemberID,
		&send.LeadID,
		&send.Channel,
		&send.Content,
		&send.CTALabel,
		&send.CTAPath,
		&send.Status,
		&send.ScheduledFor,
		&send.SentAt,
		&send.ClickedAt,
		&send.ExternalID,
		&send.LastError,
		&send.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &send, nil
}
