package attribution

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

// Store persists conversions and serves revenue aggregates.
type Store struct {
	db DB
}

// NewStore initializes a store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("attribution: db required")
	}
	return &Store{db: db}
}

// Insert records a conversion unless its payment id was already seen.
// Returns whether the row was inserted; a webhook replay reports false.
func (s *Store) Insert(ctx context.Context, c *Conversion) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
		INSERT INTO conversions
			(id, company_id, member_id, membership_id, playbook_id, send_id,
			 payment_id, amount_cents, currency, attributed, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id) DO NOTHING
	`
	tag, err := s.db.Exec(ctx, query,
		c.ID,
		c.CompanyID,
		c.MemberID,
		c.MembershipID,
		c.PlaybookID,
		c.SendID,
		c.PaymentID,
		c.AmountCents,
		c.Currency,
		c.Attributed,
		c.OccurredAt,
	)
	if err != nil {
		return false, fmt.Errorf("attribution: insert conversion: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Summary aggregates a company's conversions between from and to.
func (s *Store) Summary(ctx context.Context, companyID string, from, to time.Time) (*RevenueSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE attributed),
			COALESCE(SUM(amount_cents), 0),
			COALESCE(SUM(amount_cents) FILTER (WHERE attributed), 0)
		FROM conversions
		WHERE company_id = $1 AND occurred_at >= $2 AND occurred_at < $3
	`
	summary := &RevenueSummary{CompanyID: companyID}
	if err := s.db.QueryRow(ctx, query, companyID, from, to).Scan(
		&summary.Conversions,
		&summary.AttributedConversions,
		&summary.TotalRevenueCents,
		&summary.AttributedRevenueCents,
	); err != nil {
		return nil, fmt.Errorf("attribution: revenue summary: %w", err)
	}
	return summary, nil
}

// StatsForPlaybook summarizes one playbook's sends, clicks and the
// conversions attributed to it.
func (s *Store) StatsForPlaybook(ctx context.Context, playbookID uuid.UUID) (*PlaybookStats, error) {
	stats := &PlaybookStats{PlaybookID: playbookID}

	sendQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE clicked_at IS NOT NULL)
		FROM playbook_sends
		WHERE playbook_id = $1
	`
	if err := s.db.QueryRow(ctx, sendQuery, playbookID).Scan(
		&stats.Sends,
		&stats.Sent,
		&stats.Clicked,
	); err != nil {
		return nil, fmt.Errorf("attribution: playbook send stats: %w", err)
	}

	convQuery := `
		SELECT COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM conversions
		WHERE playbook_id = $1 AND attributed
	`
	if err := s.db.QueryRow(ctx, convQuery, playbookID).Scan(
		&stats.Conversions,
		&stats.RevenueCents,
	); err != nil {
		return nil, fmt.Errorf("attribution: playbook conversion stats: %w", err)
	}

	return stats, nil
}
