package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ragline/ragline/internal/evidence"
	"github.com/ragline/ragline/internal/generate"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/orchestrator"
	"github.com/ragline/ragline/internal/resolve"
	"github.com/ragline/ragline/internal/retrieval"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// queryHandler serves the pipeline endpoints.
type queryHandler struct {
	svc      AnswerService
	resolver CitationResolver
	logger   log.Logger
}

func newQueryHandler(svc AnswerService, resolver CitationResolver, logger log.Logger) *queryHandler {
	return &queryHandler{svc: svc, resolver: resolver, logger: logger}
}

func (h *queryHandler) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/query", h.query)
	mux.HandleFunc("POST /api/v1/citations/resolve", h.resolveCitation)
}

// queryRequest is the caller-facing query payload.
type queryRequest struct {
	Text      string            `json:"text"`
	SessionID string            `json:"sessionId,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "text is required", h.logger)
		return
	}

	answer, err := h.svc.Answer(r.Context(), orchestrator.Query{
		Text:      req.Text,
		SessionID: req.SessionID,
		Filters:   retrieval.Filters(req.Filters),
	})
	if err != nil {
		if errors.Is(err, generate.ErrGenerationFailed) {
			writeError(w, http.StatusServiceUnavailable, "generation_failed", "the model did not produce an answer", h.logger)
			return
		}
		h.logger.Error("answer pipeline failed", "request_id", RequestID(r.Context()), "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}

// resolveRequest carries the provenance bound to a citation back to the
// server. Provenance rides inside each citation in the query response, so
// resolution needs no server-side request state.
type resolveRequest struct {
	Provenance evidence.Provenance `json:"provenance"`
}

func (h *queryHandler) resolveCitation(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "resolution_unavailable", "no document store configured", h.logger)
		return
	}

	var req resolveRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}

	res, err := h.resolver.Resolve(r.Context(), req.Provenance)
	if err != nil {
		switch {
		case errors.Is(err, resolve.ErrMalformedProvenance):
			writeError(w, http.StatusBadRequest, "malformed_provenance", err.Error(), h.logger)
		case errors.Is(err, resolve.ErrNotFound):
			writeError(w, http.StatusNotFound, "document_not_found", "", h.logger)
		default:
			h.logger.Error("citation resolution failed", "request_id", RequestID(r.Context()), "error", err)
			writeError(w, http.StatusServiceUnavailable, "resolution_failed", "", h.logger)
		}
		return
	}

	writeJSON(w, http.StatusOK, res, h.logger)
}
