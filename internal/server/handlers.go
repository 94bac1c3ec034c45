package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/serdar/relayd/internal/history"
	"github.com/serdar/relayd/internal/identity"
	"github.com/serdar/relayd/internal/logger"
	"github.com/serdar/relayd/internal/relay"
	"github.com/serdar/relayd/internal/stats"
)

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type relayResponse struct {
	Success        bool              `json:"success"`
	Request        relay.RequestEcho `json:"request"`
	Response       relay.Capture     `json:"response"`
	SavedToHistory bool              `json:"savedToHistory"`
	Duration       int64             `json:"duration"`
}

type paginationPayload struct {
	CurrentPage   int   `json:"currentPage"`
	TotalPages    int   `json:"totalPages"`
	TotalRequests int64 `json:"totalRequests"`
	Limit         int   `json:"limit"`
	HasNextPage   bool  `json:"hasNextPage"`
	HasPrevPage   bool  `json:"hasPrevPage"`
}

type historyPageResponse struct {
	Success    bool              `json:"success"`
	History    []history.Entry   `json:"history"`
	Pagination paginationPayload `json:"pagination"`
}

type historyEntryResponse struct {
	Success bool           `json:"success"`
	Request *history.Entry `json:"request"`
}

type messageResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DeletedCount *int64 `json:"deletedCount,omitempty"`
}

type statsResponse struct {
	Success bool `json:"success"`
	stats.Summary
}

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("relayd is up and running\n"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: time.Now().UTC()})
}

func (s *Server) handleRelay(w http.ResponseWriter, r *http.Request) {
	var spec relay.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Optional authentication: a bad token means no history, not a failure.
	ident := s.resolveIdentity(r)

	result, err := s.relay.Do(r.Context(), &spec, ident)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, relayResponse{
		Success:        true,
		Request:        result.Request,
		Response:       result.Response,
		SavedToHistory: result.SavedToHistory,
		Duration:       result.Duration.Milliseconds(),
	})
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	page := intQuery(r, "page", 1)
	limit := intQuery(r, "limit", history.DefaultLimit)

	result, err := s.store.Page(r.Context(), ident.ID, page, limit)
	if err != nil {
		logger.Errorf(r.Context(), "Failed to load history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")

		return
	}

	writeJSON(w, http.StatusOK, historyPageResponse{
		Success: true,
		History: result.Items,
		Pagination: paginationPayload{
			CurrentPage:   result.CurrentPage,
			TotalPages:    result.TotalPages,
			TotalRequests: result.TotalCount,
			Limit:         result.Limit,
			HasNextPage:   result.HasNext,
			HasPrevPage:   result.HasPrev,
		},
	})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	entry, err := s.store.GetOne(r.Context(), ident.ID, id)
	if errors.Is(err, history.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}

	if err != nil {
		logger.Errorf(r.Context(), "Failed to load history entry: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load history entry")

		return
	}

	writeJSON(w, http.StatusOK, historyEntryResponse{Success: true, Request: entry})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	deleted, err := s.store.DeleteOne(r.Context(), ident.ID, id)
	if err != nil {
		logger.Errorf(r.Context(), "Failed to delete history entry: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete history entry")

		return
	}

	if !deleted {
		writeError(w, http.StatusNotFound, "Request not found")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "Request deleted successfully"})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	count, err := s.store.DeleteAll(r.Context(), ident.ID)
	if err != nil {
		logger.Errorf(r.Context(), "Failed to clear history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to clear history")

		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Success:      true,
		Message:      "All request history cleared",
		DeletedCount: &count,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, ident *identity.Identity) {
	summary, err := s.stats.Summarize(r.Context(), ident.ID)
	if err != nil {
		logger.Errorf(r.Context(), "Failed to compute stats: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")

		return
	}

	writeJSON(w, http.StatusOK, statsResponse{Success: true, Summary: summary})
}

// entryID validates the path id, writing a 400 for malformed values so they
// are never mistaken for missing entries.
func entryID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if uuid.Validate(id) != nil {
		writeError(w, http.StatusBadRequest, "Invalid request ID")
		return "", false
	}

	return id, true
}

func intQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return value
}
