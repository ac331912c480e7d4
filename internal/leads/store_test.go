package leads

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

func leadColumns() []string {
	return []string{"id", "company_id", "name", "contact", "contact_type", "source", "created_at"}
}

func TestCreateLead(t *testing.T) {
	store, mock := newMockStore(t)

	req := &CreateLeadRequest{
		CompanyID:   "biz_1",
		Name:        "Ada",
		Contact:     "ada@example.com",
		ContactType: ContactTypeEmail,
		Source:      "landing_page",
	}

	createdAt := time.Now()
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "biz_1", "Ada", "ada@example.com", ContactTypeEmail, "landing_page").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	lead, err := store.Create(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, lead.ID)
	assert.Equal(t, "biz_1", lead.CompanyID)
	assert.Equal(t, createdAt, lead.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateLeadRequiresContact(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Create(context.Background(), &CreateLeadRequest{CompanyID: "biz_1"})
	assert.ErrorIs(t, err, ErrMissingContact)
}

func TestGetByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, company_id, name, contact").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(leadColumns()))

	_, err := store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByCompany(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT id, company_id, name, contact").
		WithArgs("biz_1").
		WillReturnRows(pgxmock.NewRows(leadColumns()).
			AddRow(uuid.New(), "biz_1", "Ada", "ada@example.com", ContactTypeEmail, "landing_page", now.Add(-time.Hour)).
			AddRow(uuid.New(), "biz_1", "Grace", "grace@example.com", ContactTypeEmail, "referral", now))

	out, err := store.ListByCompany(context.Background(), "biz_1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Ada", out[0].Name)
	assert.Equal(t, "referral", out[1].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}
