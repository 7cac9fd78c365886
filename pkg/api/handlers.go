package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/internal/metrics"
)

// BlacklistChecker reconciles the local, onchain, and last-submitted actor
// blacklist fingerprints. pkg/blacklist.Reconciler implements this.
type BlacklistChecker interface {
	CheckHash() (localHash, onchainHash, submittedHash, msg string, err error)
}

// Handler handles HTTP requests for the API.
type Handler struct {
	checker BlacklistChecker
	log     *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(checker BlacklistChecker, log *logger.Logger) *Handler {
	return &Handler{
		checker: checker,
		log:     log,
	}
}

// CheckHash handles POST /v1/blacklist/check_hash. An empty request body is
// accepted and treated as an empty object.
func (h *Handler) CheckHash(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > 0 {
		var req CheckHashRequest
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}

	if h.checker == nil {
		respondError(w, http.StatusServiceUnavailable, "blacklist reconciler not configured")
		return
	}

	local, onchain, submitted, msg, err := h.checker.CheckHash()
	if err != nil {
		h.log.Errorw("check_hash failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to reconcile blacklist hashes")
		return
	}

	metrics.BlacklistCheckInc(msg)

	respondJSON(w, http.StatusOK, CheckHashResponse{
		LocalHash:     local,
		OnchainHash:   onchain,
		SubmittedHash: submitted,
		Msg:           msg,
	})
}

// Health returns the health status of the API.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(encoded)
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	response := ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	respondJSON(w, status, response)
}
