// Package pipeline drives edition processing: the resumable state machine
// covering extraction, OCR, segmentation, classification, story grouping,
// and indexing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/classify"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/extract"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/layout"
	"github.com/broadsheet-archive/broadsheet/internal/providers"
	"github.com/broadsheet-archive/broadsheet/internal/stories"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/version"
)

// Run triggers recorded on ExtractionRun rows.
const (
	TriggerInitial   = "initial"
	TriggerReprocess = "reprocess"
	TriggerRetry     = "retry"
)

// ErrNoActiveRun rejects cancellation when nothing is running.
var ErrNoActiveRun = errors.New("edition has no active run")

// Orchestrator owns the per-edition processing state machine. Pages within
// one edition run sequentially; distinct editions may process concurrently.
type Orchestrator struct {
	st        *store.Store
	blobs     *blob.Store
	registry  *providers.Registry
	backend   index.Backend
	cfgFn     func() *config.Config
	logger    *slog.Logger

	// reocrMu serializes targeted re-OCR per (edition, page).
	reocrMu sync.Mutex
	reocr   map[string]*sync.Mutex
}

// New creates an orchestrator. cfgFn is called per run so configuration
// reloads take effect without restarting.
func New(st *store.Store, blobs *blob.Store, registry *providers.Registry, backend index.Backend, cfgFn func() *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		st:       st,
		blobs:    blobs,
		registry: registry,
		backend:  backend,
		cfgFn:    cfgFn,
		logger:   logger,
		reocr:    make(map[string]*sync.Mutex),
	}
}

// Process starts (or restarts) the full pipeline for an edition. It returns
// as soon as the run is registered; page work continues in the background.
// A second trigger while a run is active is rejected with ErrRunActive.
func (o *Orchestrator) Process(ctx context.Context, editionID, trigger string) (*store.ExtractionRun, error) {
	e, err := o.st.GetEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}
	switch e.Status {
	case store.EditionUploaded, store.EditionReady, store.EditionFailed, store.EditionCancelled:
	default:
		return nil, fmt.Errorf("edition %s cannot be processed from status %s", editionID, e.Status)
	}

	runID := uuid.New().String()
	if err := o.st.AcquireRun(ctx, editionID, runID); err != nil {
		return nil, err
	}

	reprocess := e.Status != store.EditionUploaded
	if reprocess {
		// Derived data is rebuilt from scratch; partial rows from the
		// previous run would otherwise leak into the new one.
		if err := o.discardDerived(ctx, editionID); err != nil {
			o.st.ReleaseRun(ctx, editionID, runID)
			return nil, err
		}
		if trigger == TriggerInitial {
			trigger = TriggerReprocess
		}
	}

	run := &store.ExtractionRun{
		ID:        runID,
		EditionID: editionID,
		Version:   version.GitRelease,
		Trigger:   trigger,
		Status:    store.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := o.st.CreateRun(ctx, run); err != nil {
		o.st.ReleaseRun(ctx, editionID, runID)
		return nil, err
	}
	if err := o.st.SetEditionStatus(ctx, editionID, store.EditionProcessing, store.StageQueued); err != nil {
		o.st.ReleaseRun(ctx, editionID, runID)
		return nil, err
	}

	o.logger.Info("processing started",
		"edition_id", editionID, "run_id", runID, "trigger", trigger)

	// The trigger request returns now; the run owns its own lifetime.
	go o.run(context.Background(), e, run)

	return run, nil
}

// discardDerived drops items, story groups, and pages before a reprocess.
func (o *Orchestrator) discardDerived(ctx context.Context, editionID string) error {
	if err := o.st.ReplaceItems(ctx, editionID, nil); err != nil {
		return fmt.Errorf("failed to discard items: %w", err)
	}
	if err := o.st.ReplaceStoryGroups(ctx, editionID, nil); err != nil {
		return fmt.Errorf("failed to discard story groups: %w", err)
	}
	if err := o.st.DeletePages(ctx, editionID); err != nil {
		return fmt.Errorf("failed to discard pages: %w", err)
	}
	if err := o.st.SetEditionPageCounts(ctx, editionID, 0, 0); err != nil {
		return err
	}
	return nil
}

// run executes the pipeline stages for one edition. Page-level failures are
// isolated; only edition-fatal conditions (unreadable PDF, zero usable
// pages) fail the whole run.
func (o *Orchestrator) run(ctx context.Context, e *store.Edition, run *store.ExtractionRun) {
	cfg := o.cfgFn()
	log := o.logger.With("edition_id", e.ID, "run_id", run.ID)
	started := time.Now()
	stats := store.RunStats{}

	fail := func(msg string, err error) {
		full := msg
		if err != nil {
			full = fmt.Sprintf("%s: %v", msg, err)
		}
		log.Error("processing failed", "error", full)
		stats.DurationMS = time.Since(started).Milliseconds()
		o.st.SetEditionFailed(ctx, e.ID, full)
		o.st.FinishRun(ctx, run.ID, false, store.RunFailed, stats, full)
		o.st.ReleaseRun(ctx, e.ID, run.ID)
	}

	pdfPath, err := o.blobs.Path(e.StorageBackend, e.StorageKey)
	if err != nil {
		fail("stored PDF is missing", err)
		return
	}
	doc, err := extract.OpenDocument(pdfPath)
	if err != nil {
		fail("unreadable PDF", err)
		return
	}
	total := doc.PageCount()
	if total == 0 {
		fail("PDF has zero pages", nil)
		return
	}
	stats.PagesTotal = total

	pages := make([]*store.Page, total)
	for i := range pages {
		pages[i] = &store.Page{
			ID:         uuid.New().String(),
			EditionID:  e.ID,
			PageNumber: i + 1,
			Status:     store.PagePending,
		}
	}
	if err := o.st.CreatePages(ctx, pages); err != nil {
		fail("failed to create page records", err)
		return
	}
	if err := o.st.SetEditionPageCounts(ctx, e.ID, total, 0); err != nil {
		fail("failed to record page count", err)
		return
	}
	o.st.SetEditionStage(ctx, e.ID, store.StageExtract)

	extractor := extract.New(cfg.Extract, o.blobs, o.registry, o.logger)
	results := make(map[int]*extract.Result, total)
	ocrStage := false

	for _, p := range pages {
		cancelled, err := o.st.CancelRequested(ctx, e.ID)
		if err != nil {
			log.Warn("cancellation check failed", "error", err)
		}
		if cancelled {
			o.finishCancelled(ctx, e.ID, run.ID, stats, started, log)
			return
		}

		o.st.SetPageStatus(ctx, p.ID, store.PageProcessing)
		res, perr := extractor.ProcessPage(ctx, doc, e.ID, p.PageNumber, false)
		if perr != nil {
			// One bad page never aborts its siblings.
			log.Warn("page failed", "page", p.PageNumber, "error", perr)
			p.Status = store.PageFailed
			p.ErrorMessage = perr.Error()
			o.st.UpdatePage(ctx, p)
			stats.PagesFailed++
		} else {
			p.Status = store.PageDone
			p.CharCount = res.CharCount
			p.OCRUsed = res.OCRUsed
			p.OCREngine = res.OCREngine
			p.OCRConfidence = res.OCRConfidence
			p.ImageKey = res.ImageKey
			p.ExtractedText = res.Text
			p.ErrorMessage = ""
			if err := o.st.UpdatePage(ctx, p); err != nil {
				log.Warn("failed to persist page", "page", p.PageNumber, "error", err)
			}
			results[p.PageNumber] = res
			stats.PagesProcessed++
			if res.OCRUsed && !ocrStage {
				ocrStage = true
				o.st.SetEditionStage(ctx, e.ID, store.StageOCR)
			}
			if p.PageNumber == 1 && res.ImageKey != "" {
				o.st.SetEditionCover(ctx, e.ID, res.ImageKey)
			}
		}
		o.st.IncrementProcessedPages(ctx, e.ID)
		o.st.UpdateRunStats(ctx, run.ID, stats)
	}

	if len(results) == 0 {
		fail("zero usable pages", nil)
		return
	}

	o.st.SetEditionStage(ctx, e.ID, store.StageLayout)
	items, err := o.segmentAndClassify(ctx, cfg, e, pages, results)
	if err != nil {
		fail("segmentation failed", err)
		return
	}
	stats.ItemCount = len(items)

	groups := stories.NewGrouper(cfg.Stories).Group(e.ID, items)
	if err := o.st.ReplaceStoryGroups(ctx, e.ID, groups); err != nil {
		fail("failed to persist story groups", err)
		return
	}

	o.st.SetEditionStage(ctx, e.ID, store.StageIndex)
	if err := o.backend.IndexEdition(ctx, e, items); err != nil {
		// Indexing errors do not fail the edition; the next reprocess or
		// index rebuild retries.
		log.Error("indexing failed", "error", err)
	}

	stats.DurationMS = time.Since(started).Milliseconds()
	o.st.SetEditionStatus(ctx, e.ID, store.EditionReady, store.StageDone)
	o.st.FinishRun(ctx, run.ID, true, store.RunCompleted, stats, "")
	o.st.ReleaseRun(ctx, e.ID, run.ID)
	log.Info("processing complete",
		"pages_ok", stats.PagesProcessed, "pages_failed", stats.PagesFailed,
		"items", stats.ItemCount, "duration_ms", stats.DurationMS)

	if cfg.Archive.Auto {
		// Two transitions: the edition is marked SCHEDULED first, then the
		// archival executes. A crash in between leaves a SCHEDULED edition
		// that "archive now" can pick up.
		if err := o.ScheduleArchive(ctx, e.ID); err != nil {
			log.Warn("automatic archive scheduling failed", "error", err)
		} else if err := o.ArchiveNow(ctx, e.ID); err != nil {
			log.Warn("automatic archival failed", "error", err)
		}
	}
}

// finishCancelled records a cooperative stop: partial data stays as-is.
func (o *Orchestrator) finishCancelled(ctx context.Context, editionID, runID string, stats store.RunStats, started time.Time, log *slog.Logger) {
	stats.DurationMS = time.Since(started).Milliseconds()
	o.st.SetEditionStatus(ctx, editionID, store.EditionCancelled, store.StageQueued)
	o.st.FinishRun(ctx, runID, false, store.RunCancelled, stats, "cancelled")
	o.st.ReleaseRun(ctx, editionID, runID)
	log.Info("processing cancelled", "pages_done", stats.PagesProcessed+stats.PagesFailed)
}

// segmentAndClassify turns extracted pages into enriched, persisted items.
func (o *Orchestrator) segmentAndClassify(ctx context.Context, cfg *config.Config, e *store.Edition, pages []*store.Page, results map[int]*extract.Result) ([]*store.Item, error) {
	segmenter := layout.NewSegmenter(cfg.Layout)
	cats, err := o.st.ListCategories(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}

	pageByNumber := make(map[int]*store.Page, len(pages))
	for _, p := range pages {
		pageByNumber[p.PageNumber] = p
	}

	var items []*store.Item
	for _, p := range pages {
		res, ok := results[p.PageNumber]
		if !ok {
			continue // failed page
		}
		for _, cand := range segmenter.SegmentPage(*res, p.PageNumber) {
			item := &store.Item{
				ID:         uuid.New().String(),
				EditionID:  e.ID,
				PageID:     pageByNumber[cand.PageNumber].ID,
				PageNumber: cand.PageNumber,
				ItemType:   cand.ItemType,
				Title:      cand.Title,
				Text:       cand.Text,
				Bounds:     cand.Bounds,
			}
			classify.EnrichItem(item)
			items = append(items, item)
		}
	}

	if err := o.st.ReplaceItems(ctx, e.ID, items); err != nil {
		return nil, fmt.Errorf("failed to persist items: %w", err)
	}
	for _, item := range items {
		if err := classify.AssignCategories(ctx, o.st, item, cats, cfg.Classify.CategoryThreshold); err != nil {
			o.logger.Warn("category assignment failed", "item_id", item.ID, "error", err)
		}
	}
	return items, nil
}

// Cancel requests cooperative cancellation of the active run. Rejected when
// no run is active.
func (o *Orchestrator) Cancel(ctx context.Context, editionID string) error {
	hadActive, err := o.st.RequestCancel(ctx, editionID)
	if err != nil {
		return err
	}
	if !hadActive {
		return ErrNoActiveRun
	}
	o.logger.Info("cancellation requested", "edition_id", editionID)
	return nil
}
