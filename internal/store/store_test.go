package store

import (
	"context"
	"errors"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEdition(id, hash string) *Edition {
	return &Edition{
		ID:             id,
		NewspaperName:  "The Morning Herald",
		EditionDate:    "2024-03-15",
		ContentHash:    hash,
		Status:         EditionUploaded,
		Stage:          StageQueued,
		ArchiveStatus:  ArchiveNotScheduled,
		StorageBackend: "local",
		StorageKey:     "sha256/ab/" + hash + ".pdf",
	}
}

func TestEditionCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := testEdition("ed-1", "abc123")
	if err := s.CreateEdition(ctx, e); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}

	got, err := s.GetEdition(ctx, "ed-1")
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.NewspaperName != "The Morning Herald" {
		t.Errorf("newspaper = %q", got.NewspaperName)
	}
	if got.Status != EditionUploaded {
		t.Errorf("status = %q, want UPLOADED", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	byHash, err := s.GetEditionByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetEditionByHash: %v", err)
	}
	if byHash.ID != "ed-1" {
		t.Errorf("id = %q", byHash.ID)
	}

	if _, err := s.GetEdition(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateEditionDuplicateHash(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateEdition(ctx, testEdition("ed-1", "samehash")); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}
	err := s.CreateEdition(ctx, testEdition("ed-2", "samehash"))
	if !errors.Is(err, ErrDuplicateEdition) {
		t.Errorf("expected ErrDuplicateEdition, got %v", err)
	}
}

func TestListEditionsFilters(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testEdition("ed-a", "hash-a")
	a.NewspaperName = "Herald"
	a.EditionDate = "2024-01-01"
	b := testEdition("ed-b", "hash-b")
	b.NewspaperName = "Tribune"
	b.EditionDate = "2024-02-01"
	for _, e := range []*Edition{a, b} {
		if err := s.CreateEdition(ctx, e); err != nil {
			t.Fatalf("CreateEdition: %v", err)
		}
	}
	if err := s.SetEditionStatus(ctx, "ed-b", EditionReady, StageDone); err != nil {
		t.Fatalf("SetEditionStatus: %v", err)
	}

	tests := []struct {
		name   string
		filter EditionFilter
		want   []string
	}{
		{"all", EditionFilter{}, []string{"ed-b", "ed-a"}},
		{"by newspaper", EditionFilter{NewspaperName: "Herald"}, []string{"ed-a"}},
		{"by status", EditionFilter{Status: EditionReady}, []string{"ed-b"}},
		{"by date range", EditionFilter{DateFrom: "2024-01-15"}, []string{"ed-b"}},
		{"limit", EditionFilter{Limit: 1}, []string{"ed-b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEditions(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListEditions: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d editions, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("editions[%d] = %q, want %q", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestAcquireReleaseRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateEdition(ctx, testEdition("ed-1", "h1")); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}

	if err := s.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if err := s.AcquireRun(ctx, "ed-1", "run-2"); !errors.Is(err, ErrRunActive) {
		t.Errorf("second acquire: expected ErrRunActive, got %v", err)
	}

	// Release by the wrong run id must not unlock.
	if err := s.ReleaseRun(ctx, "ed-1", "run-2"); err != nil {
		t.Fatalf("ReleaseRun: %v", err)
	}
	if err := s.AcquireRun(ctx, "ed-1", "run-3"); !errors.Is(err, ErrRunActive) {
		t.Errorf("expected lock still held, got %v", err)
	}

	if err := s.ReleaseRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("ReleaseRun: %v", err)
	}
	if err := s.AcquireRun(ctx, "ed-1", "run-3"); err != nil {
		t.Errorf("acquire after release: %v", err)
	}
}

func TestRequestCancel(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateEdition(ctx, testEdition("ed-1", "h1")); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}

	// No active run: request reports nothing to cancel.
	had, err := s.RequestCancel(ctx, "ed-1")
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if had {
		t.Error("expected no active run")
	}

	if err := s.AcquireRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	had, err = s.RequestCancel(ctx, "ed-1")
	if err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	if !had {
		t.Error("expected an active run")
	}

	cancelled, err := s.CancelRequested(ctx, "ed-1")
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if !cancelled {
		t.Error("expected cancel flag set")
	}

	// A fresh acquire clears the flag.
	if err := s.ReleaseRun(ctx, "ed-1", "run-1"); err != nil {
		t.Fatalf("ReleaseRun: %v", err)
	}
	if err := s.AcquireRun(ctx, "ed-1", "run-2"); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	cancelled, err = s.CancelRequested(ctx, "ed-1")
	if err != nil {
		t.Fatalf("CancelRequested: %v", err)
	}
	if cancelled {
		t.Error("expected cancel flag cleared by new run")
	}
}

func TestPageLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateEdition(ctx, testEdition("ed-1", "h1")); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}
	pages := []*Page{
		{ID: "p-1", EditionID: "ed-1", PageNumber: 1, Status: PagePending},
		{ID: "p-2", EditionID: "ed-1", PageNumber: 2, Status: PagePending},
	}
	if err := s.CreatePages(ctx, pages); err != nil {
		t.Fatalf("CreatePages: %v", err)
	}

	conf := 92
	pages[0].Status = PageDone
	pages[0].CharCount = 1200
	pages[0].OCRUsed = true
	pages[0].OCREngine = "openai/gpt-4o-mini"
	pages[0].OCRConfidence = &conf
	pages[0].ExtractedText = "front page text"
	if err := s.UpdatePage(ctx, pages[0]); err != nil {
		t.Fatalf("UpdatePage: %v", err)
	}

	got, err := s.GetPage(ctx, "ed-1", 1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if got.Status != PageDone || got.CharCount != 1200 {
		t.Errorf("page = %+v", got)
	}
	if got.OCRConfidence == nil || *got.OCRConfidence != 92 {
		t.Errorf("ocr_confidence = %v, want 92", got.OCRConfidence)
	}

	metrics, err := s.PageMetricsList(ctx, "ed-1")
	if err != nil {
		t.Fatalf("PageMetricsList: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want 2", len(metrics))
	}
	if !metrics[0].OCRUsed || metrics[1].OCRUsed {
		t.Errorf("ocr_used flags wrong: %+v", metrics)
	}

	if err := s.DeletePages(ctx, "ed-1"); err != nil {
		t.Fatalf("DeletePages: %v", err)
	}
	if _, err := s.GetPage(ctx, "ed-1", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIncrementProcessedPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.CreateEdition(ctx, testEdition("ed-1", "h1")); err != nil {
		t.Fatalf("CreateEdition: %v", err)
	}
	if err := s.SetEditionPageCounts(ctx, "ed-1", 3, 0); err != nil {
		t.Fatalf("SetEditionPageCounts: %v", err)
	}
	for want := 1; want <= 3; want++ {
		n, err := s.IncrementProcessedPages(ctx, "ed-1")
		if err != nil {
			t.Fatalf("IncrementProcessedPages: %v", err)
		}
		if n != want {
			t.Errorf("processed = %d, want %d", n, want)
		}
	}
}
