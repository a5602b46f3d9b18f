package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/passagekit/passage/internal/retriever"
)

type retrieveRequest struct {
	Query      string            `json:"query"`
	Collection string            `json:"collection,omitempty"`
	TopK       int               `json:"top_k,omitempty"`
	FinalK     int               `json:"final_k,omitempty"`
	Budget     int               `json:"budget,omitempty"`
	Filter     map[string]string `json:"filter,omitempty"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
			Kind:    string(retriever.KindInvalidInput),
			Message: "request body is not valid JSON",
		}})
		return
	}

	result, err := s.retriever.Retrieve(r.Context(), req.Query, retriever.Options{
		Collection: req.Collection,
		TopK:       req.TopK,
		FinalK:     req.FinalK,
		Budget:     req.Budget,
		Filter:     req.Filter,
	})
	if err != nil {
		s.writeRetrievalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReadiness reports whether the store behind the pool is usable.
// An open breaker or a failing health check returns 503 so load
// balancers stop routing retrieval traffic here.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	breaker := s.store.BreakerSnapshot()
	body := map[string]any{
		"breaker": breaker,
		"pool":    s.store.PoolStats(),
	}

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		body["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}

	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}

// writeRetrievalError maps the error taxonomy onto HTTP statuses. The
// wrapped cause goes to the log; the response carries a sanitized
// message only.
func (s *Server) writeRetrievalError(w http.ResponseWriter, err error) {
	var rerr *retriever.Error
	if !errors.As(err, &rerr) {
		s.logger.Error("retrieval failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
			Kind:    "internal",
			Message: "internal error",
		}})
		return
	}

	s.logger.Error("retrieval failed",
		"kind", string(rerr.Kind),
		"stage", string(rerr.Stage),
		"error", rerr.Err,
	)

	writeJSON(w, statusForKind(rerr.Kind), errorResponse{Error: errorBody{
		Kind:    string(rerr.Kind),
		Stage:   string(rerr.Stage),
		Message: publicMessage(rerr),
	}})
}

func statusForKind(kind retriever.Kind) int {
	switch kind {
	case retriever.KindInvalidInput:
		return http.StatusBadRequest
	case retriever.KindPoolExhausted, retriever.KindCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// publicMessage returns a response-safe message. Validation messages
// are our own text and safe to echo; everything else gets a canned
// message because wrapped causes can carry addresses and internals.
func publicMessage(e *retriever.Error) string {
	if e.Kind == retriever.KindInvalidInput && e.Stage == retriever.StageValidating {
		return e.Err.Error()
	}
	switch e.Kind {
	case retriever.KindInvalidInput:
		return "invalid input"
	case retriever.KindPoolExhausted:
		return "store connections exhausted"
	case retriever.KindCircuitOpen:
		return "store temporarily unavailable"
	case retriever.KindEmbeddingFailure:
		return "embedding failed"
	case retriever.KindRerankFailure:
		return "re-ranking failed"
	default:
		return "store operation failed"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
