package handler

import (
	"context"
	"net/http"

	"github.com/msomdec/tagbatch/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux. Routes that
// write or delete stored data require an ops token and are rate limited
// per client.
func RegisterRoutes(mux *http.ServeMux, ops *OpsHandler, auth *service.OpsAuth, ping func(context.Context) error) {
	limiter := NewRateLimiter(OpsRate, OpsBurst)
	protect := func(fn http.HandlerFunc) http.Handler {
		return limiter.Limit(RequireOpsToken(auth, fn))
	}

	mux.HandleFunc("GET /healthz", HandleHealthz(ping))
	mux.HandleFunc("GET /ops", ops.HandleOpsPage)
	mux.HandleFunc("GET /api/stores", ops.HandleCounts)
	mux.HandleFunc("GET /api/stores/stream", ops.HandleCountsStream)
	mux.HandleFunc("GET /api/session", ops.HandleSession)

	mux.Handle("POST /api/session/save", protect(ops.HandleSave))
	mux.Handle("POST /api/session/new", protect(ops.HandleNewBatch))
	mux.Handle("DELETE /api/session", protect(ops.HandleClearSession))
	mux.Handle("DELETE /api/data", protect(ops.HandleClearAll))
	mux.Handle("DELETE /api/images/{id}", protect(ops.HandleDeleteImage))
	mux.Handle("DELETE /api/groups/{id}", protect(ops.HandleDeleteGroup))
	mux.Handle("POST /api/evict", protect(ops.HandleEvict))
}
