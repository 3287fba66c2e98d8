package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// buildPDF assembles a minimal PDF with one uncompressed content stream per
// page, computing the xref offsets as it writes.
func buildPDF(t *testing.T, pageTexts []string) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	addObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	// Object layout: 1 catalog, 2 pages, 3 font, then a page/content pair
	// per page.
	n := len(pageTexts)
	firstPage := 4
	kids := make([]string, n)
	for i := range kids {
		kids[i] = fmt.Sprintf("%d 0 R", firstPage+2*i)
	}
	addObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	addObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	addObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range pageTexts {
		pageObj := firstPage + 2*i
		contentObj := pageObj + 1
		addObj(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentObj))
		stream := fmt.Sprintf("BT\n/F1 10 Tf\n1 0 0 1 72 720 Tm\n(%s) Tj\nET", text)
		addObj(contentObj, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xrefOffset)
	return buf.Bytes()
}

func seedEditionWithPDF(t *testing.T, st *store.Store, blobs *blob.Store, pageTexts []string) *store.Edition {
	t.Helper()
	e := seedEdition(t, st, store.EditionUploaded)
	if err := blobs.Put(blob.PrimaryBackend, e.StorageKey, buildPDF(t, pageTexts)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	return e
}

// startTestRun registers a run the way Process does, so run can be driven
// synchronously.
func startTestRun(t *testing.T, st *store.Store, editionID string) *store.ExtractionRun {
	t.Helper()
	ctx := context.Background()
	run := &store.ExtractionRun{
		ID:        "run-1",
		EditionID: editionID,
		Version:   "dev",
		Trigger:   TriggerInitial,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := st.AcquireRun(ctx, editionID, run.ID); err != nil {
		t.Fatalf("AcquireRun: %v", err)
	}
	if err := st.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := st.SetEditionStatus(ctx, editionID, store.EditionProcessing, store.StageQueued); err != nil {
		t.Fatalf("SetEditionStatus: %v", err)
	}
	return run
}

func TestRunCompletesEdition(t *testing.T) {
	o, st, blobs, backend := testOrchestratorWith(t, lowerMinChars)
	e := seedEditionWithPDF(t, st, blobs, []string{
		"The county council approved the water project budget after a long debate.",
		"Tenders for the water project open next month, officials said.",
	})
	ctx := context.Background()
	run := startTestRun(t, st, e.ID)

	o.run(ctx, e, run)

	got, err := st.GetEdition(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.Status != store.EditionReady || got.Stage != store.StageDone {
		t.Errorf("edition = %s/%s, want READY/DONE (%s)", got.Status, got.Stage, got.LastError)
	}
	if got.TotalPages != 2 || got.ProcessedPages != 2 {
		t.Errorf("pages = %d/%d, want 2/2", got.ProcessedPages, got.TotalPages)
	}
	if got.ActiveRunID != "" {
		t.Errorf("active_run_id = %q, want released", got.ActiveRunID)
	}

	p1, err := st.GetPage(ctx, e.ID, 1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p1.Status != store.PageDone || p1.OCRUsed {
		t.Errorf("page 1 = %+v, want native DONE", p1)
	}
	if !strings.Contains(p1.ExtractedText, "water project") {
		t.Errorf("extracted_text = %q", p1.ExtractedText)
	}

	items, err := st.ListItems(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected segmented items")
	}

	latest, err := st.LatestRun(ctx, e.ID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if !latest.Success || latest.Status != store.RunCompleted {
		t.Errorf("run = %+v", latest)
	}
	if latest.Stats.PagesTotal != 2 || latest.Stats.PagesProcessed != 2 || latest.Stats.PagesFailed != 0 {
		t.Errorf("stats = %+v", latest.Stats)
	}
	if latest.Stats.ItemCount != len(items) {
		t.Errorf("item_count = %d, want %d", latest.Stats.ItemCount, len(items))
	}

	// The edition is searchable once the run finishes.
	_, total, err := backend.Search(ctx, index.Query{Text: "water project"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if total == 0 {
		t.Error("expected indexed items")
	}
}

func TestRunCancellationKeepsPartialState(t *testing.T) {
	o, st, blobs, _ := testOrchestratorWith(t, lowerMinChars)
	e := seedEditionWithPDF(t, st, blobs, []string{
		"First page of the cancelled edition.",
		"Second page of the cancelled edition.",
	})
	ctx := context.Background()
	run := startTestRun(t, st, e.ID)

	// The stop request lands before the page loop starts.
	if err := o.Cancel(ctx, e.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	o.run(ctx, e, run)

	got, err := st.GetEdition(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.Status != store.EditionCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if got.ProcessedPages != 0 {
		t.Errorf("processed_pages = %d, want frozen at 0", got.ProcessedPages)
	}
	if got.ActiveRunID != "" {
		t.Errorf("active_run_id = %q, want released", got.ActiveRunID)
	}

	// Unprocessed pages keep their PENDING rows; nothing is deleted.
	for page := 1; page <= 2; page++ {
		p, err := st.GetPage(ctx, e.ID, page)
		if err != nil {
			t.Fatalf("GetPage %d: %v", page, err)
		}
		if p.Status != store.PagePending || p.ExtractedText != "" {
			t.Errorf("page %d = %s %q, want PENDING and empty", page, p.Status, p.ExtractedText)
		}
	}

	latest, err := st.LatestRun(ctx, e.ID)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.Success || latest.Status != store.RunCancelled {
		t.Errorf("run = %+v", latest)
	}
}

func TestRunAutoArchive(t *testing.T) {
	o, st, blobs, _ := testOrchestratorWith(t, func(c *config.Config) {
		lowerMinChars(c)
		c.Archive.Auto = true
	})
	e := seedEditionWithPDF(t, st, blobs, []string{
		"A single page edition that archives itself after processing.",
	})
	ctx := context.Background()
	run := startTestRun(t, st, e.ID)

	o.run(ctx, e, run)

	got, err := st.GetEdition(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.ArchiveStatus != store.ArchiveArchived {
		t.Errorf("archive_status = %s, want ARCHIVED (%s)", got.ArchiveStatus, got.LastError)
	}
	if got.Status != store.EditionArchived || got.StorageBackend != "archive" {
		t.Errorf("edition = %s on %s, want ARCHIVED on archive", got.Status, got.StorageBackend)
	}
	if !blobs.Exists("archive", e.StorageKey) {
		t.Error("PDF missing on archive backend")
	}
}

func TestArchiveNowFromScheduled(t *testing.T) {
	o, st, blobs := testOrchestrator(t)
	e := seedEdition(t, st, store.EditionReady)
	ctx := context.Background()

	if err := blobs.Put(blob.PrimaryBackend, e.StorageKey, []byte("pdf bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := o.ScheduleArchive(ctx, e.ID); err != nil {
		t.Fatalf("ScheduleArchive: %v", err)
	}
	if err := o.ArchiveNow(ctx, e.ID); err != nil {
		t.Fatalf("ArchiveNow: %v", err)
	}
	got, err := st.GetEdition(ctx, e.ID)
	if err != nil {
		t.Fatalf("GetEdition: %v", err)
	}
	if got.ArchiveStatus != store.ArchiveArchived {
		t.Errorf("archive_status = %s, want ARCHIVED", got.ArchiveStatus)
	}
}

func TestReOCRRewritesOnlyTargetPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}

	o, st, blobs, _ := testOrchestratorWith(t, lowerMinChars)
	e := seedEditionWithPDF(t, st, blobs, []string{
		"First page text before the targeted rescan.",
		"Second page text that must stay as extracted.",
	})
	ctx := context.Background()
	run := startTestRun(t, st, e.ID)
	o.run(ctx, e, run)

	itemsBefore, err := st.ListItems(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	p2Before, err := st.GetPage(ctx, e.ID, 2)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}

	p1, err := o.ReOCRPage(ctx, e.ID, 1)
	if err != nil {
		t.Fatalf("ReOCRPage: %v", err)
	}
	if !p1.OCRUsed || p1.OCREngine != "mock" {
		t.Errorf("page 1 = %+v, want OCR by mock", p1)
	}
	if p1.OCRConfidence == nil || *p1.OCRConfidence != 85 {
		t.Errorf("confidence = %v, want 85", p1.OCRConfidence)
	}
	if p1.ExtractedText != "mock ocr text for page 1" {
		t.Errorf("extracted_text = %q", p1.ExtractedText)
	}
	if p1.ImageKey == "" {
		t.Error("expected a stored page image")
	}

	// Sibling pages and existing items are untouched.
	p2After, err := st.GetPage(ctx, e.ID, 2)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p2After.ExtractedText != p2Before.ExtractedText || p2After.OCRUsed {
		t.Errorf("page 2 mutated: %+v", p2After)
	}
	itemsAfter, err := st.ListItems(ctx, e.ID)
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(itemsAfter) != len(itemsBefore) {
		t.Fatalf("items changed: %d -> %d", len(itemsBefore), len(itemsAfter))
	}
	for i := range itemsAfter {
		if itemsAfter[i].ID != itemsBefore[i].ID || itemsAfter[i].Text != itemsBefore[i].Text {
			t.Errorf("item %d mutated: %+v", i, itemsAfter[i])
		}
	}
}
