package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// RenderPage renders a single PDF page to a PNG using pdftoppm
// (poppler-utils). pdftoppm rasterizes the page as displayed, which is what
// OCR needs; extracting embedded image objects instead would miss overlaid
// text and vector content.
func RenderPage(ctx context.Context, pdfPath string, pageNum, dpi int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	tmpDir, err := os.MkdirTemp("", "broadsheet-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if dpi <= 0 {
		dpi = 300
	}
	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", fmt.Sprint(pageNum),
		"-l", fmt.Sprint(pageNum),
		"-r", fmt.Sprint(dpi),
		pdfPath,
		prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm failed for page %d: %v: %s", pageNum, err, out)
	}

	// pdftoppm names output page-N.png with variable zero padding.
	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for page %d", pageNum)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered page: %w", err)
	}
	return data, nil
}
