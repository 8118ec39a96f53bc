package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes the gateway's JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// isPublic reports paths that skip auth and rate limiting.
func isPublic(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	switch r.URL.Path {
	case "/health", "/healthz", "/readyz", "/livez":
		return true
	}
	return false
}
