package handler

import (
	"encoding/json"
	"net/http"

	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// userKey extracts the caller's user key from the X-User-Key header. A blank
// header means the guest user.
func userKey(r *http.Request) string {
	return subs.NormalizeUser(r.Header.Get("X-User-Key"))
}
