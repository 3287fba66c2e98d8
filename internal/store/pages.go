package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var pageColumns = []string{
	"id", "edition_id", "page_number", "status", "char_count",
	"ocr_used", "ocr_engine", "ocr_confidence", "image_key",
	"extracted_text", "error_message", "updated_at",
}

func scanPage(row rowScanner) (*Page, error) {
	var p Page
	var ocrUsed int
	var conf sql.NullInt64
	var updated string
	err := row.Scan(
		&p.ID, &p.EditionID, &p.PageNumber, &p.Status, &p.CharCount,
		&ocrUsed, &p.OCREngine, &conf, &p.ImageKey,
		&p.ExtractedText, &p.ErrorMessage, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.OCRUsed = ocrUsed != 0
	if conf.Valid {
		c := int(conf.Int64)
		p.OCRConfidence = &c
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

// CreatePages bulk-inserts one PENDING page row per physical page.
func (s *Store) CreatePages(ctx context.Context, pages []*Page) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO pages
			(id, edition_id, page_number, status, char_count, ocr_used, ocr_engine,
			 ocr_confidence, image_key, extracted_text, error_message, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		ts := fmtTime(now())
		for _, p := range pages {
			var conf any
			if p.OCRConfidence != nil {
				conf = *p.OCRConfidence
			}
			if _, err := stmt.ExecContext(ctx,
				p.ID, p.EditionID, p.PageNumber, p.Status, p.CharCount,
				boolInt(p.OCRUsed), p.OCREngine, conf, p.ImageKey,
				p.ExtractedText, p.ErrorMessage, ts,
			); err != nil {
				return fmt.Errorf("failed to create page %d: %w", p.PageNumber, err)
			}
		}
		return nil
	})
}

// GetPage returns one page of an edition by page number.
func (s *Store) GetPage(ctx context.Context, editionID string, pageNumber int) (*Page, error) {
	query, args, err := s.sb.Select(pageColumns...).From("pages").
		Where(sq.Eq{"edition_id": editionID, "page_number": pageNumber}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanPage(s.db.QueryRowContext(ctx, query, args...))
}

// ListPages returns all pages of an edition in page order.
func (s *Store) ListPages(ctx context.Context, editionID string) ([]*Page, error) {
	query, args, err := s.sb.Select(pageColumns...).From("pages").
		Where(sq.Eq{"edition_id": editionID}).OrderBy("page_number").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var out []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdatePage rewrites all mutable fields of a page row.
func (s *Store) UpdatePage(ctx context.Context, p *Page) error {
	var conf any
	if p.OCRConfidence != nil {
		conf = *p.OCRConfidence
	}
	query, args, err := s.sb.Update("pages").SetMap(map[string]any{
		"status":         p.Status,
		"char_count":     p.CharCount,
		"ocr_used":       boolInt(p.OCRUsed),
		"ocr_engine":     p.OCREngine,
		"ocr_confidence": conf,
		"image_key":      p.ImageKey,
		"extracted_text": p.ExtractedText,
		"error_message":  p.ErrorMessage,
		"updated_at":     fmtTime(now()),
	}).Where(sq.Eq{"id": p.ID}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPageStatus updates only the status column.
func (s *Store) SetPageStatus(ctx context.Context, pageID string, status PageStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pages SET status = ?, updated_at = ? WHERE id = ?`,
		status, fmtTime(now()), pageID)
	return err
}

// DeletePages removes all page rows of an edition (reprocess recreates them).
func (s *Store) DeletePages(ctx context.Context, editionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE edition_id = ?`, editionID)
	return err
}

// PageMetrics is the per-page extraction summary used for heatmap rendering.
type PageMetrics struct {
	PageNumber    int    `json:"page_number"`
	Status        string `json:"status"`
	CharCount     int    `json:"char_count"`
	OCRUsed       bool   `json:"ocr_used"`
	OCREngine     string `json:"ocr_engine,omitempty"`
	OCRConfidence *int   `json:"ocr_confidence,omitempty"`
}

// PageMetricsList returns extraction metrics for every page of an edition.
func (s *Store) PageMetricsList(ctx context.Context, editionID string) ([]PageMetrics, error) {
	pages, err := s.ListPages(ctx, editionID)
	if err != nil {
		return nil, err
	}
	out := make([]PageMetrics, 0, len(pages))
	for _, p := range pages {
		out = append(out, PageMetrics{
			PageNumber:    p.PageNumber,
			Status:        string(p.Status),
			CharCount:     p.CharCount,
			OCRUsed:       p.OCRUsed,
			OCREngine:     p.OCREngine,
			OCRConfidence: p.OCRConfidence,
		})
	}
	return out, nil
}
