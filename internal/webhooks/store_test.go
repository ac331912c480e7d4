package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStore(mock), mock
}

func TestInsertEventAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	event := &WebhookEvent{
		CompanyID: "biz_1",
		Type:      EventPaymentSucceeded,
		Payload:   []byte(`{"id": "pay_1"}`),
	}

	receivedAt := time.Now()
	mock.ExpectQuery("INSERT INTO webhook_events").
		WithArgs(pgxmock.AnyArg(), "biz_1", EventPaymentSucceeded, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"received_at"}).AddRow(receivedAt))

	require.NoError(t, store.Insert(context.Background(), event))
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, receivedAt, event.ReceivedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, company_id, type, payload").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "type", "payload", "processed", "processed_at", "received_at"}))

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessedWinsOnce(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	at := time.Now()
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE webhook_events").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := store.MarkProcessed(context.Background(), id, at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = store.MarkProcessed(context.Background(), id, at)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}
