// Package api provides the HTTP surface of the risk engine: batch
// submission and status, plus the operational endpoints wired by Router.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/batch"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/events"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/store"
)

// Service handles batch submission and status queries. Calculation runs
// asynchronously; the submit handler only validates and hands off.
type Service struct {
	store         store.Store
	orchestrator  *batch.Orchestrator
	defaultBankID string
}

// NewService creates the HTTP service. defaultBankID, when non-empty, is
// used for submissions that carry no bank_id (single-tenant deployments).
func NewService(st store.Store, o *batch.Orchestrator, defaultBankID string) *Service {
	return &Service{store: st, orchestrator: o, defaultBankID: defaultBankID}
}

// --- Request/Response types ---

// SubmitBatchRequest is the JSON body for batch submission. Exposures are
// already parsed records; the engine does not read source files.
type SubmitBatchRequest struct {
	BankID    string              `json:"bank_id"`
	BatchID   string              `json:"batch_id"` // optional; generated when empty
	Exposures []model.RawExposure `json:"exposures"`
}

// SubmitBatchResponse acknowledges an accepted batch.
type SubmitBatchResponse struct {
	BatchID       string `json:"batch_id"`
	BankID        string `json:"bank_id"`
	Status        string `json:"status"`
	ExposureCount int    `json:"exposure_count"`
}

// --- HTTP Handlers ---

// SubmitBatch handles POST /api/v1/batches.
// Returns 202 immediately; the run is tracked via GET /api/v1/batches/{batchID}.
func (s *Service) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	bankID := req.BankID
	if bankID == "" {
		bankID = s.defaultBankID
	}
	if bankID == "" {
		writeError(w, "bank_id is required", http.StatusBadRequest)
		return
	}
	for _, e := range req.Exposures {
		if e.ID == "" {
			writeError(w, "every exposure needs an id", http.StatusBadRequest)
			return
		}
	}

	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.New().String()
	}

	// A used batch id — finished or in flight — is rejected up front; the
	// orchestrator enforces the same rule on creation.
	if _, err := s.store.GetBatch(r.Context(), batchID); err == nil {
		writeError(w, "batch id already used; submit with a new id", http.StatusConflict)
		return
	}

	// The run outlives the request: detach from the request context.
	go func() {
		if _, err := s.orchestrator.Run(context.Background(), bankID, batchID, req.Exposures); err != nil {
			slog.Error("batch run ended with error", "batch_id", batchID, "err", err)
		}
	}()

	slog.Info("batch accepted", "batch_id", batchID, "bank_id", bankID, "exposures", len(req.Exposures))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitBatchResponse{
		BatchID:       batchID,
		BankID:        bankID,
		Status:        string(model.BatchPending),
		ExposureCount: len(req.Exposures),
	})
}

// GetBatch handles GET /api/v1/batches/{batchID}.
func (s *Service) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	b, err := s.store.GetBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, "batch not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

// GetResults handles GET /api/v1/batches/{batchID}/results.
// Serves the write-once artifact of a completed batch.
func (s *Service) GetResults(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	result, err := s.store.GetResults(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, store.ErrResultsNotFound) {
			writeError(w, "no results for batch", http.StatusNotFound)
			return
		}
		writeError(w, "failed to load results", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Router assembles the full HTTP surface.
func Router(s *Service, hub *events.Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/batches", s.SubmitBatch)
		r.Get("/batches/{batchID}", s.GetBatch)
		r.Get("/batches/{batchID}/results", s.GetResults)
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
	})

	return r
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
