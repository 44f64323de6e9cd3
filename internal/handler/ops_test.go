package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/msomdec/tagbatch/internal/domain"
	"github.com/msomdec/tagbatch/internal/handler"
	"github.com/msomdec/tagbatch/internal/repository/sqlite"
	"github.com/msomdec/tagbatch/internal/service"
	"github.com/msomdec/tagbatch/internal/workspace"
)

type testEnv struct {
	db    *sqlite.DB
	ws    *workspace.Workspace
	coord *service.Coordinator
	ops   *handler.OpsHandler
	srv   *httptest.Server
	token string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnv(t, true)
}

// newEnv builds the ops server. With restored false the workspace never
// finishes its restore, so the coordinator stays short of sync.
func newEnv(t *testing.T, restored bool) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New DB: %v", err)
	}
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ws := workspace.New("")
	syncer := service.NewSyncService(db)
	hydrator := service.NewHydrationService(db)
	evictor := service.NewEvictor(db, 0, 0)
	coord := service.NewCoordinator(service.CoordinatorConfig{
		Container: ws,
		Hydrator:  hydrator,
		Syncer:    syncer,
		Evictor:   evictor,
		Debounce:  time.Hour,
	})
	t.Cleanup(func() { coord.Close(context.Background()) })

	coord.Start(ctx)
	if restored {
		if err := ws.MarkRestored("s1", domain.MarketplaceGeneric); err != nil {
			t.Fatalf("MarkRestored: %v", err)
		}
		select {
		case <-coord.Ready():
		case <-time.After(5 * time.Second):
			t.Fatal("coordinator not ready")
		}
	}

	auth := newTestAuth(t)
	token, err := auth.IssueToken("tester", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	ops := handler.NewOpsHandler(ws, coord, syncer, hydrator, evictor)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, ops, auth, db.SqlDB.PingContext)
	srv := httptest.NewServer(handler.SecurityHeaders(mux))
	t.Cleanup(srv.Close)

	return &testEnv{db: db, ws: ws, coord: coord, ops: ops, srv: srv, token: token}
}

func (e *testEnv) do(t *testing.T, method, path string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) addImages(t *testing.T, n int) []string {
	t.Helper()
	files := make([]domain.File, n)
	for i := range files {
		files[i] = domain.NewBytesFile("photo.jpg", "image/jpeg", []byte{byte(i), 9, 9})
	}
	ids, err := e.ws.AddFiles(files...)
	if err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	return ids
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return v
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodPost, "/api/session/save"},
		{http.MethodPost, "/api/session/new"},
		{http.MethodDelete, "/api/session"},
		{http.MethodDelete, "/api/data"},
		{http.MethodDelete, "/api/images/x"},
		{http.MethodDelete, "/api/groups/x"},
		{http.MethodPost, "/api/evict"},
	}
	for _, r := range routes {
		resp := env.do(t, r.method, r.path, false)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", r.method, r.path, resp.StatusCode)
		}
	}
}

func TestSaveAndCounts(t *testing.T) {
	env := newTestEnv(t)
	env.addImages(t, 2)

	resp := env.do(t, http.MethodPost, "/api/session/save", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	res := decode[service.SyncResult](t, resp)
	if res.SavedImages != 2 || res.BlobsWritten != 2 {
		t.Fatalf("unexpected save result %+v", res)
	}

	counts := decode[domain.StoreCounts](t, env.do(t, http.MethodGet, "/api/stores", false))
	if counts.Sessions != 1 || counts.Images != 2 || counts.Blobs != 2 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestHandleSession(t *testing.T) {
	env := newTestEnv(t)
	env.addImages(t, 1)

	body := decode[map[string]any](t, env.do(t, http.MethodGet, "/api/session", false))
	if body["session_id"] != "s1" || body["state"] != "sync_active" || body["stored"] != false {
		t.Fatalf("unexpected session body %v", body)
	}

	env.do(t, http.MethodPost, "/api/session/save", true)
	body = decode[map[string]any](t, env.do(t, http.MethodGet, "/api/session", false))
	if body["stored"] != true || body["images"] != float64(1) {
		t.Fatalf("expected stored session with 1 image, got %v", body)
	}
}

func TestNewBatch(t *testing.T) {
	env := newTestEnv(t)
	env.addImages(t, 5)
	env.do(t, http.MethodPost, "/api/session/save", true)

	resp := env.do(t, http.MethodPost, "/api/session/new", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if n := domain.CountImages(env.ws.Snapshot().Groups); n != 0 {
		t.Fatalf("expected empty workspace, got %d images", n)
	}
	counts, err := env.db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Images != 0 {
		t.Fatalf("expected stored images cleared, got %d", counts.Images)
	}
}

func TestNewBatch_BeforeHydration(t *testing.T) {
	env := newEnv(t, false)
	env.addImages(t, 2)

	resp := env.do(t, http.MethodPost, "/api/session/new", true)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if n := domain.CountImages(env.ws.Snapshot().Groups); n != 2 {
		t.Fatalf("expected workspace untouched, got %d images", n)
	}
}

func TestSave_RefusesSilentWipe(t *testing.T) {
	env := newTestEnv(t)
	env.addImages(t, 2)
	env.do(t, http.MethodPost, "/api/session/save", true)

	env.ws.Reset()
	resp := env.do(t, http.MethodPost, "/api/session/save", true)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestDeleteImageAndGroup(t *testing.T) {
	env := newTestEnv(t)
	ids := env.addImages(t, 2)
	env.do(t, http.MethodPost, "/api/session/save", true)

	if resp := env.do(t, http.MethodDelete, "/api/images/"+ids[0], true); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete image: expected 204, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/api/images/"+ids[0], true); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing image: expected 404, got %d", resp.StatusCode)
	}
	if resp := env.do(t, http.MethodDelete, "/api/groups/"+domain.UngroupedID, true); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete group: expected 204, got %d", resp.StatusCode)
	}

	counts, err := env.db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Images != 0 || counts.Groups != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
}

func TestClearSessionAndAll(t *testing.T) {
	env := newTestEnv(t)
	env.addImages(t, 1)
	env.do(t, http.MethodPost, "/api/session/save", true)

	if resp := env.do(t, http.MethodDelete, "/api/session", true); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear session: expected 204, got %d", resp.StatusCode)
	}
	if ok, _ := env.db.Sessions().Exists(context.Background(), "s1"); ok {
		t.Fatal("expected session cleared")
	}

	env.do(t, http.MethodPost, "/api/session/save", true)
	if resp := env.do(t, http.MethodDelete, "/api/data", true); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("clear all: expected 204, got %d", resp.StatusCode)
	}
	counts, err := env.db.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts != (domain.StoreCounts{}) {
		t.Fatalf("expected empty store, got %+v", counts)
	}
}

func TestEvictRoute(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/evict", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	res := decode[service.EvictionResult](t, resp)
	if len(res.Expired) != 0 || len(res.OverQuota) != 0 {
		t.Fatalf("expected nothing evicted, got %+v", res)
	}
}

func TestOpsPage(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/ops", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `id="store-counts"`) {
		t.Fatal("expected counts table on ops page")
	}
}

func TestCountsStream(t *testing.T) {
	env := newTestEnv(t)
	env.ops.StreamInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/stores/stream", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()
	env.ops.HandleCountsStream(w, req)

	body := w.Body.String()
	if !strings.Contains(body, "datastar-patch-elements") || !strings.Contains(body, "store-counts") {
		t.Fatalf("expected a counts patch event, got %q", body)
	}
	if !strings.Contains(body, "datastar-patch-signals") {
		t.Fatalf("expected a signals event, got %q", body)
	}
}
