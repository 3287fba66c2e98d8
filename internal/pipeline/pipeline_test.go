package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/providers"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

func testOrchestrator(t *testing.T) (*Orchestrator, *store.Store, *blob.Store) {
	t.Helper()
	o, st, blobs, _ := testOrchestratorWith(t, nil)
	return o, st, blobs
}

func testOrchestratorWith(t *testing.T, mutate func(*config.Config)) (*Orchestrator, *store.Store, *blob.Store, index.Backend) {
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
	cfgFn := func() *config.Config {
		c := config.DefaultConfig()
		if mutate != nil {
			mutate(c)
		}
		return c
	}

	return New(st, blobs, registry, backend, cfgFn, nil), st, blobs, backend
}

// lowerMinChars keeps short synthetic pages on the native text path.
func lowerMinChars(c *config.Config) {
	c.Extract.MinCharsPerPage = 10
}

func seedEdition(t *testing.T, st *store.Store, status store.EditionStatus) *store.Edition {
	t.Helper()
	e := &store.Edition{
		ID:             "ed-1",
		NewspaperName:  "Herald",
		EditionDate:    "2024-03-15",
		ContentHash:    "hash-1",
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

func TestCancelNoActiveRun(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionUploaded)

	err := o.Cancel(context.Background(), "ed-1")
	if !errors.Is(err, ErrNoActiveRun) {
		t.Errorf("Cancel = %v, want ErrNoActiveRun", err)
	}
}

func TestCancelActiveRun(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionProcessing)
	ctx := context.Background()

	if err := st.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if err := o.Cancel(ctx, "ed-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	cancelled, err := st.CancelRequested(ctx, "ed-1")
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !cancelled {
		t.Error("expected cancel flag set")
	}
}

func TestProcessRejectsActiveRun(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionUploaded)
	ctx := context.Background()

	if err := st.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	_, err := o.Process(ctx, "ed-1", TriggerInitial)
	if !errors.Is(err, store.ErrRunActive) {
		t.Errorf("Process = %v, want ErrRunActive", err)
	}
}

func TestProcessRejectsBadStatus(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionProcessing)

	_, err := o.Process(context.Background(), "ed-1", TriggerInitial)
	if err == nil || !strings.Contains(err.Error(), "cannot be processed") {
		t.Errorf("Process = %v, want status rejection", err)
	}
}

func TestProcessMissingEdition(t *testing.T) {
	o, _, _ := testOrchestrator(t)

	_, err := o.Process(context.Background(), "nope", TriggerInitial)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Process = %v, want ErrNotFound", err)
	}
}

func TestScheduleArchive(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionReady)
	ctx := context.Background()

	if err := o.ScheduleArchive(ctx, "ed-1"); err != nil {
		t.Fatalf("ScheduleArchive: %v", err)
	}
	e, err := st.GetEdition(ctx, "ed-1")
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if e.ArchiveStatus != store.ArchiveScheduled {
		t.Errorf("archive_status = %q", e.ArchiveStatus)
	}
}

func TestScheduleArchiveRequiresReady(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionUploaded)

	if err := o.ScheduleArchive(context.Background(), "ed-1"); err == nil {
		t.Error("expected rejection for non-READY edition")
	}
}

func TestArchiveNow(t *testing.T) {
	o, st, blobs := testOrchestrator(t)
	e := seedEdition(t, st, store.EditionReady)
	ctx := context.Background()

	if err := blobs.Put(blob.PrimaryBackend, e.StorageKey, []byte("pdf bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	imgKey := blob.PageImageKey("ed-1", 1)
	if err := blobs.Put(blob.PrimaryBackend, imgKey, []byte("png bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := o.ArchiveNow(ctx, "ed-1"); err != nil {
		t.Fatalf("ArchiveNow: %v", err)
	}

	got, err := st.GetEdition(ctx, "ed-1")
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.ArchiveStatus != store.ArchiveArchived {
		t.Errorf("archive_status = %q", got.ArchiveStatus)
	}
	if got.Status != store.EditionArchived {
		t.Errorf("status = %q", got.Status)
	}
	if got.StorageBackend != "archive" {
		t.Errorf("storage_backend = %q", got.StorageBackend)
	}
	if !blobs.Exists("archive", e.StorageKey) {
		t.Error("PDF missing on archive backend")
	}
	if !blobs.Exists("archive", imgKey) {
		t.Error("page image missing on archive backend")
	}

	// A second archival attempt is rejected.
	if err := o.ArchiveNow(ctx, "ed-1"); err == nil {
		t.Error("expected rejection for already archived edition")
	}
}

func TestArchiveNowRequiresReady(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionUploaded)

	if err := o.ArchiveNow(context.Background(), "ed-1"); err == nil {
		t.Error("expected rejection for non-READY edition")
	}
}

func TestArchiveNowFailureIsRetryable(t *testing.T) {
	o, st, blobs := testOrchestrator(t)
	e := seedEdition(t, st, store.EditionReady)
	ctx := context.Background()

	// No PDF blob stored: the copy fails and the status records it.
	if err := o.ArchiveNow(ctx, "ed-1"); err == nil {
		t.Fatal("expected archival failure")
	}
	got, err := st.GetEdition(ctx, "ed-1")
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.ArchiveStatus != store.ArchiveFailed {
		t.Errorf("archive_status = %q", got.ArchiveStatus)
	}

	// After fixing the underlying problem the retry succeeds.
	if err := blobs.Put(blob.PrimaryBackend, e.StorageKey, []byte("pdf bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := o.ArchiveNow(ctx, "ed-1"); err != nil {
		t.Fatalf("retry: %v", err)
	}
	got, err = st.GetEdition(ctx, "ed-1")
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.ArchiveStatus != store.ArchiveArchived {
		t.Errorf("archive_status after retry = %q", got.ArchiveStatus)
	}
}

func TestReOCRRejectedWhileRunning(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionProcessing)
	ctx := context.Background()

	if err := st.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	_, err := o.ReOCRPage(ctx, "ed-1", 1)
	if !errors.Is(err, store.ErrRunActive) {
		t.Errorf("ReOCRPage = %v, want ErrRunActive", err)
	}
}

func TestReOCRMissingPage(t *testing.T) {
	o, st, _ := testOrchestrator(t)
	seedEdition(t, st, store.EditionReady)

	_, err := o.ReOCRPage(context.Background(), "ed-1", 99)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReOCRPage = %v, want ErrNotFound", err)
	}
}
