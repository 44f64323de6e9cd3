package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/msomdec/tagbatch/internal/domain"
	"github.com/msomdec/tagbatch/internal/service"
	"github.com/msomdec/tagbatch/internal/view"
)

// Batch is the part of the in-memory session the ops routes touch.
type Batch interface {
	Snapshot() domain.Snapshot
	Reset()
}

// OpsHandler exposes the local store's ops surface.
type OpsHandler struct {
	batch    Batch
	coord    *service.Coordinator
	syncer   *service.SyncService
	hydrator *service.HydrationService
	evictor  *service.Evictor

	// StreamInterval is how often the counts stream re-renders.
	StreamInterval time.Duration
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(batch Batch, coord *service.Coordinator, syncer *service.SyncService,
	hydrator *service.HydrationService, evictor *service.Evictor) *OpsHandler {
	return &OpsHandler{
		batch:          batch,
		coord:          coord,
		syncer:         syncer,
		hydrator:       hydrator,
		evictor:        evictor,
		StreamInterval: 2 * time.Second,
	}
}

type sessionResponse struct {
	SessionID   string                  `json:"session_id"`
	Marketplace domain.Marketplace      `json:"marketplace"`
	State       string                  `json:"state"`
	Stored      bool                    `json:"stored"`
	Groups      int                     `json:"groups"`
	Images      int                     `json:"images"`
	Hydration   service.HydrationReport `json:"hydration"`
	Error       string                  `json:"error,omitempty"`
}

// HandleSession reports the current session and whether it is stored.
// GET /api/session
func (h *OpsHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	snap := h.batch.Snapshot()
	resp := sessionResponse{
		SessionID:   snap.SessionID,
		Marketplace: snap.Marketplace,
		State:       h.coord.State().String(),
		Groups:      len(snap.Groups),
		Images:      domain.CountImages(snap.Groups),
		Hydration:   h.coord.HydrationReport(),
	}
	if err := h.coord.Err(); err != nil {
		resp.Error = err.Error()
	}
	if snap.SessionID != "" {
		stored, err := h.hydrator.SessionExists(r.Context(), snap.SessionID)
		if err != nil {
			slog.Error("check session", "error", err)
			writeError(w, http.StatusInternalServerError, "storage error")
			return
		}
		resp.Stored = stored
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSave writes the session through immediately.
// POST /api/session/save
func (h *OpsHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	res, err := h.coord.ForceSave(r.Context())
	if err != nil {
		writeSaveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleNewBatch empties the session on purpose and saves that at once.
// POST /api/session/new
func (h *OpsHandler) HandleNewBatch(w http.ResponseWriter, r *http.Request) {
	res, err := h.coord.NewBatch(r.Context(), h.batch.Reset)
	if err != nil {
		writeSaveError(w, err)
		return
	}
	slog.Info("new batch started", "operator", OperatorFromContext(r.Context()))
	writeJSON(w, http.StatusOK, res)
}

func writeSaveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrWipeBlocked):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotReady):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("save session", "error", err)
		writeError(w, http.StatusInternalServerError, "save failed")
	}
}

// HandleClearSession deletes the stored copy of the current session.
// DELETE /api/session
func (h *OpsHandler) HandleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.ClearSessionData(r.Context()); err != nil {
		slog.Error("clear session", "error", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleClearAll wipes the whole local store.
// DELETE /api/data
func (h *OpsHandler) HandleClearAll(w http.ResponseWriter, r *http.Request) {
	if err := h.syncer.ClearAllData(r.Context()); err != nil {
		slog.Error("clear all", "error", err)
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}
	slog.Warn("local store wiped", "operator", OperatorFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteImage removes one stored image and its bytes.
// DELETE /api/images/{id}
func (h *OpsHandler) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, h.syncer.DeleteImage)
}

// HandleDeleteGroup removes one stored group and its images.
// DELETE /api/groups/{id}
func (h *OpsHandler) HandleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, h.syncer.DeleteGroup)
}

func (h *OpsHandler) deleteByID(w http.ResponseWriter, r *http.Request, del func(context.Context, string) error) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id")
		return
	}
	if err := del(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		slog.Error("delete record", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEvict applies the storage quota and expiry rules now.
// POST /api/evict
func (h *OpsHandler) HandleEvict(w http.ResponseWriter, r *http.Request) {
	res, err := h.evictor.Enforce(r.Context(), h.batch.Snapshot().SessionID)
	if err != nil {
		slog.Error("evict", "error", err)
		writeError(w, http.StatusInternalServerError, "eviction failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleCounts returns the per-store record counts.
// GET /api/stores
func (h *OpsHandler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.syncer.Counts(r.Context())
	if err != nil {
		slog.Error("count records", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// HandleOpsPage renders the ops dashboard.
// GET /ops
func (h *OpsHandler) HandleOpsPage(w http.ResponseWriter, r *http.Request) {
	counts, err := h.syncer.Counts(r.Context())
	if err != nil {
		slog.Error("count records", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	view.OpsPage(counts, h.coord.State().String()).Render(r.Context(), w)
}

// HandleCountsStream keeps the dashboard's counts table current over SSE
// until the client goes away.
// GET /api/stores/stream
func (h *OpsHandler) HandleCountsStream(w http.ResponseWriter, r *http.Request) {
	sse := datastar.NewSSE(w, r)
	ticker := time.NewTicker(h.StreamInterval)
	defer ticker.Stop()

	for {
		counts, err := h.syncer.Counts(r.Context())
		if err != nil {
			slog.Error("count records", "error", err)
			return
		}
		state := h.coord.State().String()
		if err := sse.PatchElementTempl(view.StoreCounts(counts, state)); err != nil {
			return
		}
		if err := sse.MarshalAndPatchSignals(map[string]any{"state": state, "images": counts.Images}); err != nil {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
