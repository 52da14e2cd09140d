// Package respond writes the JSON bodies every HTTP surface in the
// platform shares, so handlers do not each carry their own encoder
// wrapper.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes v with the given status. An encoding failure is logged
// rather than surfaced: the status line is already on the wire by then.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response body", "error", err)
	}
}

// Error writes the platform's {"error": message} body. Going through
// the encoder keeps messages that quote user input from corrupting the
// JSON.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
