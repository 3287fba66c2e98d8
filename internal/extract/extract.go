package extract

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/broadsheet-archive/broadsheet/internal/blob"
	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/providers"
)

// Result is the extraction outcome for one page.
type Result struct {
	Text          string
	CharCount     int
	Blocks        []Block
	OCRUsed       bool
	OCREngine     string
	OCRConfidence *int
	ImageKey      string
}

// Extractor runs native extraction with OCR fallback for one page at a time.
type Extractor struct {
	cfg      config.ExtractCfg
	blobs    *blob.Store
	registry *providers.Registry
	logger   *slog.Logger
}

// New creates a page extractor.
func New(cfg config.ExtractCfg, blobs *blob.Store, registry *providers.Registry, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{cfg: cfg, blobs: blobs, registry: registry, logger: logger}
}

// ProcessPage extracts one page of doc. The native text layer is tried
// first; when it yields fewer than the configured minimum characters, or
// forceOCR is set, the page is rendered and sent to the OCR provider.
func (x *Extractor) ProcessPage(ctx context.Context, doc *Document, editionID string, pageNum int, forceOCR bool) (*Result, error) {
	native := doc.NativePage(pageNum)
	res := &Result{
		Text:      native.Text,
		CharCount: utf8.RuneCountInString(native.Text),
		Blocks:    native.Blocks,
	}

	if !forceOCR && res.CharCount >= x.cfg.MinCharsPerPage {
		return res, nil
	}

	provider, err := x.registry.Default()
	if err != nil {
		return nil, fmt.Errorf("page %d needs OCR: %w", pageNum, err)
	}

	image, err := RenderPage(ctx, doc.Path(), pageNum, x.cfg.RenderDPI)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	imageKey := blob.PageImageKey(editionID, pageNum)
	if err := x.blobs.Put(blob.PrimaryBackend, imageKey, image); err != nil {
		return nil, fmt.Errorf("failed to store page image: %w", err)
	}
	res.ImageKey = imageKey

	x.logger.Debug("running OCR",
		"edition_id", editionID, "page", pageNum,
		"provider", provider.Name(), "native_chars", res.CharCount)

	ocr, err := provider.ProcessImage(ctx, image, pageNum)
	if err != nil {
		return nil, fmt.Errorf("OCR failed for page %d: %w", pageNum, err)
	}

	res.Text = ocr.Text
	res.CharCount = utf8.RuneCountInString(ocr.Text)
	res.OCRUsed = true
	res.OCREngine = ocr.Engine
	conf := ocr.Confidence
	res.OCRConfidence = &conf
	// OCR output has no layout metadata; the segmenter falls back to
	// text-only heuristics on these pages.
	res.Blocks = nil
	return res, nil
}
