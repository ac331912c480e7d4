package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrEventNotFound indicates no webhook event matched the lookup.
var ErrEventNotFound = errors.New("webhooks: event not found")

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists inbound webhook events.
type Store struct {
	db DB
}

// NewStore initializes a store backed by pgx.
func NewStore(db DB) *Store {
	if db == nil {
		panic("webhooks: db required")
	}
	return &Store{db: db}
}

// Insert records a new event in its unprocessed state.
func (s *Store) Insert(ctx context.Context, event *WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	query := `
		INSERT INTO webhook_events (id, company_id, type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING received_at
	`
	if err := s.db.QueryRow(ctx, query, event.ID, event.CompanyID, event.Type, event.Payload).
		Scan(&event.ReceivedAt); err != nil {
		return fmt.Errorf("webhooks: insert event: %w", err)
	}
	return nil
}

// Get fetches an event by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*WebhookEvent, error) {
	query := `
		SELECT id, company_id, type, payload, processed, processed_at, received_at
		FROM webhook_events
		WHERE id = $1
	`
	var event WebhookEvent
	if err := s.db.QueryRow(ctx, query, id).Scan(
		&event.ID,
		&event.CompanyID,
		&event.Type,
		&event.Payload,
		&event.Processed,
		&event.ProcessedAt,
		&event.ReceivedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("webhooks: select event: %w", err)
	}
	return &event, nil
}

// MarkProcessed flips the processed flag exactly once. Returns whether
// this call won; a replayed event reports false.
func (s *Store) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE webhook_events
		SET processed = TRUE, processed_at = $2
		WHERE id = $1 AND processed = FALSE
	`
	tag, err := s.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("webhooks: mark processed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
