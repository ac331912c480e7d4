package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revenueangel/automation-engine/internal/attribution"
	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

type fakePreviewer struct {
	count int
	err   error
}

func (f *fakePreviewer) PreviewAudience(_ context.Context, _, _ string, _ json.RawMessage) (int, error) {
	return f.count, f.err
}

type fakeStats struct {
	summary *attribution.RevenueSummary
	stats   *attribution.PlaybookStats
}

func (f *fakeStats) Summary(_ context.Context, companyID string, _, _ time.Time) (*attribution.RevenueSummary, error) {
	s := *f.summary
	s.CompanyID = companyID
	return &s, nil
}

func (f *fakeStats) StatsForPlaybook(_ context.Context, id uuid.UUID) (*attribution.PlaybookStats, error) {
	s := *f.stats
	s.PlaybookID = id
	return &s, nil
}

type fakeClicks struct {
	tracked []uuid.UUID
}

func (f *fakeClicks) TrackClick(_ context.Context, id uuid.UUID) {
	f.tracked = append(f.tracked, id)
}

type fakeIngestor struct {
	companyID string
	eventType string
	payload   json.RawMessage
	id        uuid.UUID
	err       error
}

func (f *fakeIngestor) Ingest(_ context.Context, companyID, eventType string, payload json.RawMessage) (uuid.UUID, error) {
	f.companyID = companyID
	f.eventType = eventType
	f.payload = payload
	return f.id, f.err
}

type fakeLeadCreator struct {
	created []*leads.CreateLeadRequest
	err     error
}

func (f *fakeLeadCreator) Create(_ context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.created = append(f.created, req)
	return &leads.Lead{
		ID:          uuid.New(),
		CompanyID:   req.CompanyID,
		Name:        req.Name,
		Contact:     req.Contact,
		ContactType: req.ContactType,
		Source:      req.Source,
	}, nil
}

type fakeSeeder struct {
	seeded []string
}

func (f *fakeSeeder) EnsureDefaults(_ context.Context, companyID string, _ *logging.Logger) error {
	f.seeded = append(f.seeded, companyID)
	return nil
}

func newTestRouter(clicks *fakeClicks) http.Handler {
	return newTestRouterWith(clicks, &fakeIngestor{id: uuid.New()}, &fakeSeeder{}, &fakeLeadCreator{})
}

func newTestRouterWith(clicks *fakeClicks, ingestor *fakeIngestor, seeder *fakeSeeder, leadCreator *fakeLeadCreator) http.Handler {
	return New(&Config{
		Logger:    logging.Default(),
		Previewer: &fakePreviewer{count: 42},
		Stats: &fakeStats{
			summary: &attribution.RevenueSummary{TotalRevenueCents: 10000, AttributedRevenueCents: 4000, Conversions: 5, AttributedConversions: 2},
			stats:   &attribution.PlaybookStats{Sends: 10, Sent: 8, Clicked: 3, Conversions: 1, RevenueCents: 2500},
		},
		Clicks:   clicks,
		Ingestor: ingestor,
		Leads:    leadCreator,
		Seeder:   seeder,
	})
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClickEndpoint(t *testing.T) {
	clicks := &fakeClicks{}
	router := newTestRouter(clicks)

	id := uuid.New()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sends/"+id.String()+"/click", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, clicks.tracked, 1)
	assert.Equal(t, id, clicks.tracked[0])
}

func TestClickEndpointRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sends/not-a-uuid/click", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAudiencePreview(t *testing.T) {
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"type": "nurture", "rules": {}}`)
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/audience-preview", body))

	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 42, got["audience_size"])
}

func TestRevenueSummary(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/biz_1/revenue-summary", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got attribution.RevenueSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "biz_1", got.CompanyID)
	assert.Equal(t, int64(10000), got.TotalRevenueCents)
	assert.Equal(t, 2, got.AttributedConversions)
}

func TestPlaybookStats(t *testing.T) {
	id := uuid.New()
	rec := httptest.NewRecorder()
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/playbooks/"+id.String()+"/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got attribution.PlaybookStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, id, got.PlaybookID)
	assert.Equal(t, 8, got.Sent)
}

func TestEventIngest(t *testing.T) {
	ingestor := &fakeIngestor{id: uuid.New()}
	router := newTestRouterWith(&fakeClicks{}, ingestor, &fakeSeeder{}, &fakeLeadCreator{})

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"type": "payment.succeeded", "payload": {"id": "pay_1"}}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/events", body))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "biz_1", ingestor.companyID)
	assert.Equal(t, "payment.succeeded", ingestor.eventType)
	assert.JSONEq(t, `{"id": "pay_1"}`, string(ingestor.payload))

	var got map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ingestor.id.String(), got["event_id"])
}

func TestEventIngestRequiresType(t *testing.T) {
	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"payload": {}}`)
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/events", body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventIngestAcceptsWhenEnqueueFails(t *testing.T) {
	ingestor := &fakeIngestor{id: uuid.New(), err: errors.New("queue unavailable")}
	router := newTestRouterWith(&fakeClicks{}, ingestor, &fakeSeeder{}, &fakeLeadCreator{})

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"type": "payment.succeeded", "payload": {}}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/events", body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSeedDefaultPlaybooks(t *testing.T) {
	seeder := &fakeSeeder{}
	router := newTestRouterWith(&fakeClicks{}, &fakeIngestor{id: uuid.New()}, seeder, &fakeLeadCreator{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/playbooks/defaults", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"biz_1"}, seeder.seeded)
}

func TestCaptureLead(t *testing.T) {
	creator := &fakeLeadCreator{}
	router := newTestRouterWith(&fakeClicks{}, &fakeIngestor{id: uuid.New()}, &fakeSeeder{}, creator)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"name": "Grace", "contact": "grace@example.com", "contact_type": "email", "source": "landing_page"}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/leads", body))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, creator.created, 1)
	assert.Equal(t, "biz_1", creator.created[0].CompanyID)
	assert.Equal(t, "grace@example.com", creator.created[0].Contact)

	var got leads.Lead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Grace", got.Name)
	assert.NotEqual(t, uuid.Nil, got.ID)
}

func TestCaptureLeadRequiresContact(t *testing.T) {
	creator := &fakeLeadCreator{}
	router := newTestRouterWith(&fakeClicks{}, &fakeIngestor{id: uuid.New()}, &fakeSeeder{}, creator)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/biz_1/leads", strings.NewReader(`{"name": "Grace"}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, creator.created)
}

func TestRevenueSummaryRejectsBadPeriod(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeClicks{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/biz_1/revenue-summary?from=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
