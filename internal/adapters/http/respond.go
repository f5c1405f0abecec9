// Package http exposes the console's HTTP surface: the OAuth login flow,
// session introspection, CSRF token issuance, and the guild management API.
package http

import (
	"encoding/json"
	"net/http"
)

// writeJSON sends v as a JSON response body. Encoding failures after the
// header is written can only be logged by the caller; the status line is
// already on the wire.
func writeJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}
