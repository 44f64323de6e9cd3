package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// HandleHealthz reports whether the local store answers. A store that
// cannot be reached yields 503 so the failure is visible instead of hanging.
func HandleHealthz(ping func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := ping(r.Context()); err != nil {
			slog.Error("storage ping failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "storage unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
