package syncer

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/clearledger/karbonsync/internal/domain"
	"github.com/clearledger/karbonsync/internal/repository"
)

// Handler exposes the sync trigger as an HTTP endpoint.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHTTPHandler wraps the orchestrator with a POST endpoint.
func NewHTTPHandler(orchestrator *Orchestrator) http.Handler {
	return &Handler{orchestrator: orchestrator}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	opts := Options{Incremental: true, Trigger: domain.TriggerManual}

	if raw := strings.TrimSpace(r.URL.Query().Get("incremental")); raw != "" {
		incremental, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid incremental flag: %v", err), http.StatusBadRequest)
			return
		}
		opts.Incremental = incremental
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("trigger")); raw != "" {
		if raw != domain.TriggerManual && raw != domain.TriggerScheduled {
			http.Error(w, fmt.Sprintf("invalid trigger %q", raw), http.StatusBadRequest)
			return
		}
		opts.Trigger = raw
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("entities")); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			kind, ok := domain.ParseEntityKind(strings.TrimSpace(name))
			if !ok {
				http.Error(w, fmt.Sprintf("unknown entity kind %q", name), http.StatusBadRequest)
				return
			}
			opts.Kinds = append(opts.Kinds, kind)
		}
	}

	summary, err := h.orchestrator.Run(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// RunsHandler exposes the sync run audit trail.
type RunsHandler struct {
	runs repository.SyncRunRepository
}

// NewRunsHandler wraps the sync run repository with a GET endpoint.
func NewRunsHandler(runs repository.SyncRunRepository) http.Handler {
	return &RunsHandler{runs: runs}
}

func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	runs, err := h.runs.List(r.Context(), limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
