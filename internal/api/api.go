// Package api serves pipeline health, Prometheus metrics and the run ledger
// over HTTP while a run is in progress.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/tdgen/internal/events"
	"github.com/kalambet/tdgen/internal/storage"
)

// Ledger is the read side of the run ledger.
type Ledger interface {
	GetRun(id string) (storage.Run, error)
	RecentRuns(limit int) ([]storage.Run, error)
	ListEvents(f storage.EventFilter) ([]events.Event, error)
}

type Deps struct {
	Ledger   Ledger
	Gatherer prometheus.Gatherer
	Token    string
}

// NewHandler returns the HTTP surface. /health is always open; the other
// routes require the bearer token when one is configured.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
		r.Get("/runs", handleListRuns(deps))
		r.Get("/runs/{id}", handleGetRun(deps))
		r.Get("/events", handleListEvents(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type runJSON struct {
	ID         string `json:"id"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at,omitempty"`
	Processed  int    `json:"processed"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Status     string `json:"status"`
}

func toRunJSON(r storage.Run) runJSON {
	out := runJSON{
		ID:        r.ID,
		StartedAt: r.StartedAt.Format(timeLayout),
		Processed: r.Processed,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Status:    r.Status,
	}
	if !r.FinishedAt.IsZero() {
		out.FinishedAt = r.FinishedAt.Format(timeLayout)
	}
	return out
}

type eventJSON struct {
	ID        string `json:"id"`
	RunID     string `json:"run_id"`
	Time      string `json:"time"`
	RecordID  string `json:"record"`
	Component string `json:"component"`
	Kind      string `json:"kind"`
	Outcome   string `json:"outcome"`
	Cause     string `json:"cause,omitempty"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		runs, err := deps.Ledger.RecentRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}

		out := make([]runJSON, 0, len(runs))
		for _, run := range runs {
			out = append(out, toRunJSON(run))
		}
		writeJSON(w, out)
	}
}

func handleGetRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		run, err := deps.Ledger.GetRun(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get run: %v", err)
			return
		}
		writeJSON(w, toRunJSON(run))
	}
}

func handleListEvents(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := storage.EventFilter{
			RecordID: q.Get("record"),
			Limit:    parseIntParam(r, "limit", 50, 500),
		}
		switch kind := events.Kind(q.Get("kind")); kind {
		case "", events.KindAccess, events.KindFailure:
			f.Kind = kind
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be %q or %q", events.KindAccess, events.KindFailure)
			return
		}

		evs, err := deps.Ledger.ListEvents(f)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list events: %v", err)
			return
		}

		out := make([]eventJSON, 0, len(evs))
		for _, ev := range evs {
			out = append(out, eventJSON{
				ID:        ev.ID,
				RunID:     ev.RunID,
				Time:      ev.Time.Format(timeLayout),
				RecordID:  ev.RecordID,
				Component: ev.Component,
				Kind:      string(ev.Kind),
				Outcome:   ev.Outcome,
				Cause:     ev.Cause,
			})
		}
		writeJSON(w, out)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
