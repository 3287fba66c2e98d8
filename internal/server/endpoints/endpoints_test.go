package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/pipeline"
	"github.com/broadsheet-archive/broadsheet/internal/providers"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// newTestHandler wires every endpoint onto a mux with real services behind
// it, the same way the server does at startup.
func newTestHandler(t *testing.T) (http.Handler, *svcctx.Services) {
	t.Helper()

	st, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	registry := providers.NewRegistry()
	registry.Reload(map[string]providers.Config{
		"mock": {Type: "mock", Enabled: true},
	}, "mock")

	backend := index.NewMemoryBackend(config.SearchCfg{MaxLimit: 100, SnippetRadius: 90})
	cfgFn := func() *config.Config { return config.DefaultConfig() }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svcs := &svcctx.Services{
		Store:        st,
		Blobs:        blobs,
		Registry:     registry,
		Orchestrator: pipeline.New(st, blobs, registry, backend, cfgFn, logger),
		Index:        backend,
		Logger:       logger,
	}

	mux := http.NewServeMux()
	reg := api.NewRegistry()
	for _, ep := range All() {
		reg.Register(ep)
	}
	reg.RegisterRoutes(mux, func(h http.HandlerFunc) http.HandlerFunc { return h })

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r.WithContext(svcctx.WithServices(r.Context(), svcs)))
	})
	return handler, svcs
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func seedEdition(t *testing.T, st *store.Store, id, newspaper string, status store.EditionStatus) *store.Edition {
	t.Helper()
	e := &store.Edition{
		ID:             id,
		NewspaperName:  newspaper,
		EditionDate:    "2024-03-15",
		ContentHash:    "hash-" + id,
		Status:         status,
		Stage:          store.StageQueued,
		ArchiveStatus:  store.ArchiveNotScheduled,
		StorageBackend: blob.PrimaryBackend,
		StorageKey:     blob.PDFKey(strings.Repeat("ab", 32)),
	}
	if err := st.CreateEdition(context.Background(), e); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}
	return e
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp HealthResponse
	decodeJSON(t, rec, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestStatus(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)

	rec := do(t, h, "GET", "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatusResponse
	decodeJSON(t, rec, &resp)
	if resp.Server != "ok" {
		t.Errorf("server = %q", resp.Server)
	}
	found := false
	for _, p := range resp.Providers {
		if p == "mock" {
			found = true
		}
	}
	if !found {
		t.Errorf("providers = %v, want mock listed", resp.Providers)
	}
	if resp.Editions != 1 {
		t.Errorf("editions = %d, want 1", resp.Editions)
	}
}

func TestUploadRejectsBadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	// Not multipart at all.
	rec := do(t, h, "POST", "/api/editions/upload", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	// Multipart form without the pdf file.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("newspaper_name", "Herald")
	mw.Close()
	req := httptest.NewRequest("POST", "/api/editions/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	var errResp ErrorResponse
	decodeJSON(t, rr, &errResp)
	if !strings.Contains(errResp.Error, "pdf file is required") {
		t.Errorf("error = %q", errResp.Error)
	}
}

func TestListEditions(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)
	seedEdition(t, svcs.Store, "ed-2", "Tribune", store.EditionReady)

	rec := do(t, h, "GET", "/api/editions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ListEditionsResponse
	decodeJSON(t, rec, &resp)
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}

	rec = do(t, h, "GET", "/api/editions?newspaper_name=Herald", nil)
	decodeJSON(t, rec, &resp)
	if resp.Count != 1 || resp.Editions[0].ID != "ed-1" {
		t.Errorf("filtered = %+v", resp.Editions)
	}
}

func TestGetEdition(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)

	rec := do(t, h, "GET", "/api/editions/ed-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var e store.Edition
	decodeJSON(t, rec, &e)
	if e.ID != "ed-1" || e.NewspaperName != "Herald" {
		t.Errorf("edition = %+v", e)
	}

	if rec := do(t, h, "GET", "/api/editions/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing edition: status = %d, want 404", rec.Code)
	}
}

func TestEditionStatus(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)

	rec := do(t, h, "GET", "/api/editions/ed-1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp EditionStatusResponse
	decodeJSON(t, rec, &resp)
	if resp.Edition == nil || resp.Edition.ID != "ed-1" {
		t.Errorf("edition = %+v", resp.Edition)
	}
	if resp.LatestRun != nil {
		t.Errorf("latest_run = %+v, want none", resp.LatestRun)
	}

	if rec := do(t, h, "GET", "/api/editions/nope/status", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing edition: status = %d, want 404", rec.Code)
	}
}

func TestProcessErrors(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)
	ctx := context.Background()

	if rec := do(t, h, "POST", "/api/editions/nope/process", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing edition: status = %d, want 404", rec.Code)
	}

	if err := svcs.Store.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if rec := do(t, h, "POST", "/api/editions/ed-1/process", nil); rec.Code != http.StatusConflict {
		t.Errorf("active run: status = %d, want 409", rec.Code)
	}
}

func TestCancelWithoutRun(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)

	rec := do(t, h, "POST", "/api/editions/ed-1/cancel", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestArchiveErrors(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionUploaded)

	if rec := do(t, h, "POST", "/api/editions/nope/archive", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing edition: status = %d, want 404", rec.Code)
	}
	// Only READY editions can be archived.
	if rec := do(t, h, "POST", "/api/editions/ed-1/archive", nil); rec.Code != http.StatusConflict {
		t.Errorf("non-ready edition: status = %d, want 409", rec.Code)
	}
}

func TestArchiveNow(t *testing.T) {
	h, svcs := newTestHandler(t)
	e := seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionReady)

	if err := svcs.Blobs.Put(blob.PrimaryBackend, e.StorageKey, []byte("pdf bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	rec := do(t, h, "POST", "/api/editions/ed-1/archive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp ArchiveResponse
	decodeJSON(t, rec, &resp)
	if resp.ArchiveStatus != string(store.ArchiveArchived) {
		t.Errorf("archive_status = %q", resp.ArchiveStatus)
	}
}

func TestPages(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionReady)

	rec := do(t, h, "GET", "/api/editions/ed-1/pages", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp PageMetricsResponse
	decodeJSON(t, rec, &resp)
	if resp.EditionID != "ed-1" || len(resp.Pages) != 0 {
		t.Errorf("resp = %+v", resp)
	}

	rec = do(t, h, "GET", "/api/editions/ed-1/pages/low-confidence?threshold=80", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("low-confidence: status = %d", rec.Code)
	}
}

func TestReOCRErrors(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionReady)

	if rec := do(t, h, "POST", "/api/editions/ed-1/pages/0/reocr", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("page 0: status = %d, want 400", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/editions/ed-1/pages/99/reocr", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing page: status = %d, want 404", rec.Code)
	}
}

func TestItems(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedEdition(t, svcs.Store, "ed-1", "Herald", store.EditionReady)

	rec := do(t, h, "GET", "/api/editions/ed-1/items", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp ListItemsResponse
	decodeJSON(t, rec, &resp)
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}

	if rec := do(t, h, "GET", "/api/items/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: status = %d, want 404", rec.Code)
	}

	rec = do(t, h, "GET", "/api/editions/ed-1/stories", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stories: status = %d", rec.Code)
	}
	var stories ListStoriesResponse
	decodeJSON(t, rec, &stories)
	if stories.Count != 0 {
		t.Errorf("stories count = %d, want 0", stories.Count)
	}
}

func seedSearchIndex(t *testing.T, backend index.Backend) {
	t.Helper()
	ctx := context.Background()

	herald := &store.Edition{ID: "ed-1", NewspaperName: "Herald", EditionDate: "2024-03-15"}
	err := backend.IndexEdition(ctx, herald, []*store.Item{
		{ID: "it-a", EditionID: "ed-1", PageNumber: 1, ItemType: store.ItemStory,
			Title: "Budget Debate Rages",
			Text:  "The budget debate continued late into the night."},
	})
	if err != nil {
		t.Fatalf("IndexEdition: %v", err)
	}
	tribune := &store.Edition{ID: "ed-2", NewspaperName: "Tribune", EditionDate: "2024-04-01"}
	err = backend.IndexEdition(ctx, tribune, []*store.Item{
		{ID: "it-b", EditionID: "ed-2", PageNumber: 1, ItemType: store.ItemStory,
			Title: "Harbor Expansion",
			Text:  "The port authority approved the expansion budget."},
	})
	if err != nil {
		t.Fatalf("IndexEdition: %v", err)
	}
}

func TestSearch(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedSearchIndex(t, svcs.Index)

	rec := do(t, h, "GET", "/api/search?q=budget", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp SearchResponse
	decodeJSON(t, rec, &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	// Missing query text is a client error.
	if rec := do(t, h, "GET", "/api/search", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("empty q: status = %d, want 400", rec.Code)
	}
}

func TestEditionSearchScoped(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedSearchIndex(t, svcs.Index)

	rec := do(t, h, "GET", "/api/editions/ed-2/search?q=budget", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp SearchResponse
	decodeJSON(t, rec, &resp)
	if resp.Total != 1 || resp.Results[0].ItemID != "it-b" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCategoryCRUD(t *testing.T) {
	h, _ := newTestHandler(t)

	// Name is required.
	if rec := do(t, h, "POST", "/api/categories", CategoryRequest{Keywords: []string{"x"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing name: status = %d, want 400", rec.Code)
	}

	rec := do(t, h, "POST", "/api/categories", CategoryRequest{
		Name: "Politics", Keywords: []string{"parliament", "senate"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}
	var cat store.Category
	decodeJSON(t, rec, &cat)
	if cat.ID == "" || !cat.Active {
		t.Errorf("category = %+v", cat)
	}

	rec = do(t, h, "GET", "/api/categories", nil)
	var cats []store.Category
	decodeJSON(t, rec, &cats)
	if len(cats) != 1 {
		t.Fatalf("list = %+v", cats)
	}

	rec = do(t, h, "PUT", "/api/categories/"+cat.ID, CategoryRequest{Name: "National Politics"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}
	var updated store.Category
	decodeJSON(t, rec, &updated)
	if updated.Name != "National Politics" {
		t.Errorf("name = %q", updated.Name)
	}
	if len(updated.Keywords) != 2 {
		t.Errorf("keywords = %v, want preserved", updated.Keywords)
	}

	if rec := do(t, h, "DELETE", "/api/categories/"+cat.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rec.Code)
	}
	if rec := do(t, h, "DELETE", "/api/categories/"+cat.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want 404", rec.Code)
	}
}

func TestSuggestCategories(t *testing.T) {
	h, _ := newTestHandler(t)

	if rec := do(t, h, "POST", "/api/categories/suggest", SuggestRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing text: status = %d, want 400", rec.Code)
	}

	rec := do(t, h, "POST", "/api/categories", CategoryRequest{
		Name: "Politics", Keywords: []string{"parliament"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}

	rec = do(t, h, "POST", "/api/categories/suggest", SuggestRequest{
		Text: "Parliament debated the motion.", Threshold: 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("suggest: status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestReclassifyEmpty(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, "POST", "/api/categories/reclassify", ReclassifyRequest{Threshold: 40})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSetItemCategoryValidation(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := do(t, h, "POST", "/api/items/it-1/categories", SetItemCategoryRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSavedSearchLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	// Name and query are both required.
	if rec := do(t, h, "POST", "/api/searches", SavedSearchRequest{Name: "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", rec.Code)
	}

	rec := do(t, h, "POST", "/api/searches", SavedSearchRequest{
		Name: "Budget watch", Query: "budget",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d: %s", rec.Code, rec.Body.String())
	}
	var ss store.SavedSearch
	decodeJSON(t, rec, &ss)
	if ss.ID == "" || !ss.Active {
		t.Errorf("saved search = %+v", ss)
	}

	rec = do(t, h, "GET", "/api/searches/"+ss.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = do(t, h, "PUT", "/api/searches/"+ss.ID, SavedSearchRequest{Query: "budget debate"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d", rec.Code)
	}
	var updated store.SavedSearch
	decodeJSON(t, rec, &updated)
	if updated.Query != "budget debate" || updated.Name != "Budget watch" {
		t.Errorf("updated = %+v", updated)
	}

	rec = do(t, h, "POST", "/api/searches/"+ss.ID+"/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status = %d: %s", rec.Code, rec.Body.String())
	}
	var refresh RefreshMatchesResponse
	decodeJSON(t, rec, &refresh)
	if refresh.SearchID != ss.ID || refresh.MatchCount != 0 {
		t.Errorf("refresh = %+v", refresh)
	}

	if rec := do(t, h, "DELETE", "/api/searches/"+ss.ID, nil); rec.Code != http.StatusOK {
		t.Errorf("delete: status = %d", rec.Code)
	}
	if rec := do(t, h, "GET", "/api/searches/"+ss.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestRefreshAllSearches(t *testing.T) {
	h, svcs := newTestHandler(t)
	seedSearchIndex(t, svcs.Index)

	rec := do(t, h, "POST", "/api/searches", SavedSearchRequest{
		Name: "Budget watch", Query: "budget",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rec.Code)
	}

	rec = do(t, h, "POST", "/api/searches/refresh", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res index.UpdateResult
	decodeJSON(t, rec, &res)
	if res.Updated != 1 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
}
