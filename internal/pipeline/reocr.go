package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/broadsheet-archive/broadsheet/internal/extract"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// ReOCRPage re-runs OCR for a single page, rewriting only that Page row.
// Items derived from the previous extraction are left untouched; a full
// reprocess is required to propagate the new text into segmentation.
// Rejected while a full run is active; concurrent re-OCR of the same page
// is serialized.
func (o *Orchestrator) ReOCRPage(ctx context.Context, editionID string, pageNumber int) (*store.Page, error) {
	e, err := o.st.GetEdition(ctx, editionID)
	if err != nil {
		return nil, err
	}
	if e.ActiveRunID != "" {
		return nil, store.ErrRunActive
	}

	p, err := o.st.GetPage(ctx, editionID, pageNumber)
	if err != nil {
		return nil, err
	}

	lock := o.pageLock(editionID, pageNumber)
	lock.Lock()
	defer lock.Unlock()

	pdfPath, err := o.blobs.Path(e.StorageBackend, e.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("stored PDF is missing: %w", err)
	}
	doc, err := extract.OpenDocument(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("unreadable PDF: %w", err)
	}

	cfg := o.cfgFn()
	extractor := extract.New(cfg.Extract, o.blobs, o.registry, o.logger)
	res, err := extractor.ProcessPage(ctx, doc, editionID, pageNumber, true)
	if err != nil {
		p.Status = store.PageFailed
		p.ErrorMessage = err.Error()
		o.st.UpdatePage(ctx, p)
		return nil, fmt.Errorf("re-OCR failed: %w", err)
	}

	p.Status = store.PageDone
	p.CharCount = res.CharCount
	p.OCRUsed = res.OCRUsed
	p.OCREngine = res.OCREngine
	p.OCRConfidence = res.OCRConfidence
	p.ImageKey = res.ImageKey
	p.ExtractedText = res.Text
	p.ErrorMessage = ""
	if err := o.st.UpdatePage(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist page: %w", err)
	}

	o.logger.Info("page re-OCR complete",
		"edition_id", editionID, "page", pageNumber,
		"engine", res.OCREngine, "confidence", res.OCRConfidence)
	return p, nil
}

func (o *Orchestrator) pageLock(editionID string, pageNumber int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", editionID, pageNumber)
	o.reocrMu.Lock()
	defer o.reocrMu.Unlock()
	if o.reocr[key] == nil {
		o.reocr[key] = &sync.Mutex{}
	}
	return o.reocr[key]
}
