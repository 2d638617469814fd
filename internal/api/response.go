package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ragline/ragline/internal/log"
)

// writeJSON writes a JSON response with the given status code.
// Encodes into a buffer first so headers are only sent after successful
// encoding; an encoding failure still gets a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, err, message string, logger log.Logger) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message}, logger)
}
