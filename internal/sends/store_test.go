package sends

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

func TestCreateQueuedInserts(t *testing.T) {
	store, mock := newMockStore(t)

	memberID := uuid.New()
	send := &Send{
		CompanyID:    "biz_1",
		PlaybookID:   uuid.New(),
		StepID:       uuid.New(),
		MemberID:     &memberID,
		Channel:      ChannelPush,
		Content:      "Hey there",
		CTALabel:     "Join Now",
		CTAPath:      "/checkout/plan_pro",
		ScheduledFor: time.Now(),
	}

	mock.ExpectExec("INSERT INTO playbook_sends").
		WithArgs(pgxmock.AnyArg(), send.CompanyID, send.PlaybookID, send.StepID,
			send.MemberID, send.LeadID, send.Channel, send.Content, "Join Now", "/checkout/plan_pro",
			StatusQueued, send.ScheduledFor).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := store.CreateQueued(context.Background(), send)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.NotEqual(t, uuid.Nil, send.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueuedConflictIsNotAnError(t *testing.T) {
	store, mock := newMockStore(t)

	memberID := uuid.New()
	send := &Send{
		CompanyID:    "biz_1",
		PlaybookID:   uuid.New(),
		StepID:       uuid.New(),
		MemberID:     &memberID,
		Channel:      ChannelPush,
		Content:      "Hey there",
		ScheduledFor: time.Now(),
	}

	mock.ExpectExec("INSERT INTO playbook_sends").
		WithArgs(pgxmock.AnyArg(), send.CompanyID, send.PlaybookID, send.StepID,
			send.MemberID, send.LeadID, send.Channel, send.Content, send.CTALabel, send.CTAPath,
			StatusQueued, send.ScheduledFor).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := store.CreateQueued(context.Background(), send)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateQueuedRequiresTarget(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.CreateQueued(context.Background(), &Send{
		CompanyID:  "biz_1",
		PlaybookID: uuid.New(),
		StepID:     uuid.New(),
	})
	assert.ErrorIs(t, err, ErrMissingTarget)
}

func TestListDue(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	id := uuid.New()
	memberID := uuid.New()
	playbookID := uuid.New()
	stepID := uuid.New()

	rows := pgxmock.NewRows([]string{
		"id", "company_id", "playbook_id", "step_id", "member_id", "lead_id",
		"channel", "content", "cta_label", "cta_path", "status", "scheduled_for",
		"sent_at", "clicked_at", "external_id", "last_error", "created_at",
	}).AddRow(
		id, "biz_1", playbookID, stepID, &memberID, (*uuid.UUID)(nil),
		ChannelPush, "Hey there", "Join Now", "/checkout/plan_pro", StatusQueued, now.Add(-time.Minute),
		(*time.Time)(nil), (*time.Time)(nil), "", "", now.Add(-time.Hour),
	)

	mock.ExpectQuery("SELECT(.|\\s)*FROM playbook_sends").
		WithArgs(now, 100).
		WillReturnRows(rows)

	due, err := store.ListDue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
	assert.Equal(t, StatusQueued, due[0].Status)
	require.NotNil(t, due[0].MemberID)
	assert.Equal(t, memberID, *due[0].MemberID)
	assert.Equal(t, "Join Now", due[0].CTALabel)
	assert.Equal(t, "/checkout/plan_pro", due[0].CTAPath)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSentOnlyTouchesQueuedRows(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	sentAt := time.Now()

	mock.ExpectExec("UPDATE playbook_sends").
		WithArgs(id, sentAt, "ntf_123").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	// Already-terminal rows match zero rows; that is not an error.
	err := store.MarkSent(context.Background(), id, sentAt, "ntf_123")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT(.|\\s)*FROM playbook_sends").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := store.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrSendNotFound)
}

func TestHasRecentForPlaybookMember(t *testing.T) {
	store, mock := newMockStore(t)

	playbookID := uuid.New()
	memberID := uuid.New()
	since := time.Now().Add(-7 * 24 * time.Hour)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(playbookID, memberID, since).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	got, err := store.HasRecentForPlaybookMember(context.Background(), playbookID, memberID, since)
	require.NoError(t, err)
	assert.True(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
