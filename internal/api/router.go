package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/revenueangel/automation-engine/internal/attribution"
	"github.com/revenueangel/automation-engine/internal/leads"
	"github.com/revenueangel/automation-engine/pkg/logging"
)

// AudiencePreviewer counts current rule matches without side effects.
type AudiencePreviewer interface {
	PreviewAudience(ctx context.Context, companyID, playbookType string, rules json.RawMessage) (int, error)
}

// StatsProvider serves revenue and playbook aggregates.
type StatsProvider interface {
	Summary(ctx context.Context, companyID string, from, to time.Time) (*attribution.RevenueSummary, error)
	StatsForPlaybook(ctx context.Context, playbookID uuid.UUID) (*attribution.PlaybookStats, error)
}

// ClickTracker records message clicks.
type ClickTracker interface {
	TrackClick(ctx context.Context, sendID uuid.UUID)
}

// EventIngestor accepts raw platform webhook events.
type EventIngestor interface {
	Ingest(ctx context.Context, companyID, eventType string, payload json.RawMessage) (uuid.UUID, error)
}

// LeadCreator captures pre-purchase contacts for nurture playbooks.
type LeadCreator interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
}

// PlaybookSeeder creates the stock playbooks for a company.
type PlaybookSeeder interface {
	EnsureDefaults(ctx context.Context, companyID string, logger *logging.Logger) error
}

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Previewer      AudiencePreviewer
	Stats          StatsProvider
	Clicks         ClickTracker
	Ingestor       EventIngestor
	Leads          LeadCreator
	Seeder         PlaybookSeeder
	MetricsHandler http.Handler
}

// New creates the ops/insights HTTP surface served by the worker
// process: health, metrics, click tracking and read-only aggregates.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Clicks != nil {
		r.Post("/sends/{sendID}/click", func(w http.ResponseWriter, req *http.Request) {
			id, err := uuid.Parse(chi.URLParam(req, "sendID"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid send id")
				return
			}
			cfg.Clicks.TrackClick(req.Context(), id)
			w.WriteHeader(http.StatusNoContent)
		})
	}

	if cfg.Ingestor != nil {
		r.Post("/companies/{companyID}/events", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Type    string          `json:"type"`
				Payload json.RawMessage `json:"payload"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Type == "" {
				writeError(w, http.StatusBadRequest, "event type is required")
				return
			}
			eventID, err := cfg.Ingestor.Ingest(req.Context(), chi.URLParam(req, "companyID"), body.Type, body.Payload)
			if err != nil && eventID == uuid.Nil {
				logger.Error("event ingest failed", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to store event")
				return
			}
			if err != nil {
				// Persisted but not enqueued; accept it and rely on replay.
				logger.Error("event enqueue failed", "event_id", eventID, "error", err)
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID.String()})
		})
	}

	if cfg.Leads != nil {
		r.Post("/companies/{companyID}/leads", func(w http.ResponseWriter, req *http.Request) {
			var body leads.CreateLeadRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			body.CompanyID = chi.URLParam(req, "companyID")
			lead, err := cfg.Leads.Create(req.Context(), &body)
			if err != nil {
				if errors.Is(err, leads.ErrMissingContact) || errors.Is(err, leads.ErrMissingCompanyID) {
					writeError(w, http.StatusBadRequest, err.Error())
					return
				}
				logger.Error("lead capture failed", "company_id", body.CompanyID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to create lead")
				return
			}
			writeJSON(w, http.StatusCreated, lead)
		})
	}

	if cfg.Seeder != nil {
		r.Post("/companies/{companyID}/playbooks/defaults", func(w http.ResponseWriter, req *http.Request) {
			companyID := chi.URLParam(req, "companyID")
			if err := cfg.Seeder.EnsureDefaults(req.Context(), companyID, logger); err != nil {
				logger.Error("default playbook seeding failed", "company_id", companyID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to seed playbooks")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}

	if cfg.Previewer != nil {
		r.Post("/companies/{companyID}/audience-preview", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Type  string          `json:"type"`
				Rules json.RawMessage `json:"rules"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			count, err := cfg.Previewer.PreviewAudience(req.Context(), chi.URLParam(req, "companyID"), body.Type, body.Rules)
			if err != nil {
				logger.Error("audience preview failed", "error", err)
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, map[string]int{"audience_size": count})
		})
	}

	if cfg.Stats != nil {
		r.Get("/companies/{companyID}/revenue-summary", func(w http.ResponseWriter, req *http.Request) {
			from, to, err := parsePeriod(req)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			summary, err := cfg.Stats.Summary(req.Context(), chi.URLParam(req, "companyID"), from, to)
			if err != nil {
				logger.Error("revenue summary failed", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to compute summary")
				return
			}
			writeJSON(w, http.StatusOK, summary)
		})

		r.Get("/playbooks/{playbookID}/stats", func(w http.ResponseWriter, req *http.Request) {
			id, err := uuid.Parse(chi.URLParam(req, "playbookID"))
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid playbook id")
				return
			}
			stats, err := cfg.Stats.StatsForPlaybook(req.Context(), id)
			if err != nil {
				logger.Error("playbook stats failed", "error", err)
				writeError(w, http.StatusInternalServerError, "failed to compute stats")
				return
			}
			writeJSON(w, http.StatusOK, stats)
		})
	}

	return r
}

func parsePeriod(req *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.AddDate(0, -1, 0)
	to := now

	if raw := req.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if raw := req.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
