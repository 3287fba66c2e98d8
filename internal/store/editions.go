package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

var editionColumns = []string{
	"id", "newspaper_name", "edition_date", "content_hash",
	"total_pages", "processed_pages", "status", "stage", "archive_status",
	"storage_backend", "storage_key", "cover_image_key",
	"active_run_id", "cancel_requested", "last_error",
	"created_at", "updated_at",
}

func scanEdition(row rowScanner) (*Edition, error) {
	var e Edition
	var cancel int
	var created, updated string
	err := row.Scan(
		&e.ID, &e.NewspaperName, &e.EditionDate, &e.ContentHash,
		&e.TotalPages, &e.ProcessedPages, &e.Status, &e.Stage, &e.ArchiveStatus,
		&e.StorageBackend, &e.StorageKey, &e.CoverImageKey,
		&e.ActiveRunID, &cancel, &e.LastError,
		&created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	e.CancelRequested = cancel != 0
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return &e, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// CreateEdition inserts a new edition. Returns ErrDuplicateEdition when an
// edition with the same content hash already exists.
func (s *Store) CreateEdition(ctx context.Context, e *Edition) error {
	ts := now()
	e.CreatedAt = ts
	e.UpdatedAt = ts
	query, args, err := s.sb.Insert("editions").
		Columns(editionColumns...).
		Values(
			e.ID, e.NewspaperName, e.EditionDate, e.ContentHash,
			e.TotalPages, e.ProcessedPages, e.Status, e.Stage, e.ArchiveStatus,
			e.StorageBackend, e.StorageKey, e.CoverImageKey,
			e.ActiveRunID, boolInt(e.CancelRequested), e.LastError,
			fmtTime(ts), fmtTime(ts),
		).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: editions.content_hash") {
			return ErrDuplicateEdition
		}
		return fmt.Errorf("failed to create edition: %w", err)
	}
	return nil
}

// GetEdition returns an edition by id.
func (s *Store) GetEdition(ctx context.Context, id string) (*Edition, error) {
	query, args, err := s.sb.Select(editionColumns...).From("editions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanEdition(s.db.QueryRowContext(ctx, query, args...))
}

// GetEditionByHash returns the edition with the given content hash, if any.
func (s *Store) GetEditionByHash(ctx context.Context, hash string) (*Edition, error) {
	query, args, err := s.sb.Select(editionColumns...).From("editions").Where(sq.Eq{"content_hash": hash}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanEdition(s.db.QueryRowContext(ctx, query, args...))
}

// EditionFilter narrows ListEditions.
type EditionFilter struct {
	NewspaperName string
	Status        EditionStatus
	DateFrom      string // YYYY-MM-DD inclusive
	DateTo        string
	Skip          int
	Limit         int
}

// ListEditions returns editions, newest edition date first.
func (s *Store) ListEditions(ctx context.Context, f EditionFilter) ([]*Edition, error) {
	b := s.sb.Select(editionColumns...).From("editions").
		OrderBy("edition_date DESC", "created_at DESC")
	if f.NewspaperName != "" {
		b = b.Where(sq.Eq{"newspaper_name": f.NewspaperName})
	}
	if f.Status != "" {
		b = b.Where(sq.Eq{"status": f.Status})
	}
	if f.DateFrom != "" {
		b = b.Where("edition_date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		b = b.Where("edition_date <= ?", f.DateTo)
	}
	if f.Limit > 0 {
		b = b.Limit(uint64(f.Limit))
	}
	if f.Skip > 0 {
		b = b.Offset(uint64(f.Skip))
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list editions: %w", err)
	}
	defer rows.Close()

	var out []*Edition
	for rows.Next() {
		e, err := scanEdition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// updateEdition applies the given column updates plus updated_at.
func (s *Store) updateEdition(ctx context.Context, id string, set map[string]any) error {
	set["updated_at"] = fmtTime(now())
	query, args, err := s.sb.Update("editions").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update edition: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEditionStatus updates status and stage together.
func (s *Store) SetEditionStatus(ctx context.Context, id string, status EditionStatus, stage EditionStage) error {
	return s.updateEdition(ctx, id, map[string]any{"status": status, "stage": stage})
}

// SetEditionStage updates the pipeline stage only.
func (s *Store) SetEditionStage(ctx context.Context, id string, stage EditionStage) error {
	return s.updateEdition(ctx, id, map[string]any{"stage": stage})
}

// SetEditionFailed marks an edition FAILED with the fatal error message.
func (s *Store) SetEditionFailed(ctx context.Context, id string, lastError string) error {
	return s.updateEdition(ctx, id, map[string]any{
		"status":     EditionFailed,
		"last_error": lastError,
	})
}

// SetEditionPageCounts sets total and processed page counters.
func (s *Store) SetEditionPageCounts(ctx context.Context, id string, total, processed int) error {
	return s.updateEdition(ctx, id, map[string]any{
		"total_pages":     total,
		"processed_pages": processed,
	})
}

// IncrementProcessedPages bumps processed_pages by one and returns the new count.
func (s *Store) IncrementProcessedPages(ctx context.Context, id string) (int, error) {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE editions SET processed_pages = processed_pages + 1, updated_at = ? WHERE id = ?`,
		fmtTime(now()), id); err != nil {
		return 0, fmt.Errorf("failed to increment processed pages: %w", err)
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT processed_pages FROM editions WHERE id = ?`, id).Scan(&n)
	return n, err
}

// SetEditionCover records the cover image blob key.
func (s *Store) SetEditionCover(ctx context.Context, id, imageKey string) error {
	return s.updateEdition(ctx, id, map[string]any{"cover_image_key": imageKey})
}

// SetEditionStorage records which blob backend and key hold the edition PDF.
func (s *Store) SetEditionStorage(ctx context.Context, id, backend, key string) error {
	return s.updateEdition(ctx, id, map[string]any{
		"storage_backend": backend,
		"storage_key":     key,
	})
}

// SetArchiveStatus updates the archival state machine.
func (s *Store) SetArchiveStatus(ctx context.Context, id string, as ArchiveStatus) error {
	return s.updateEdition(ctx, id, map[string]any{"archive_status": as})
}

// AcquireRun performs the compare-and-set that enforces a single active run
// per edition: it only succeeds when no other run currently holds the lock.
func (s *Store) AcquireRun(ctx context.Context, editionID, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE editions SET active_run_id = ?, cancel_requested = 0, updated_at = ?
		 WHERE id = ? AND active_run_id = ''`,
		runID, fmtTime(now()), editionID)
	if err != nil {
		return fmt.Errorf("failed to acquire run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either the edition does not exist or a run is active.
		if _, err := s.GetEdition(ctx, editionID); err != nil {
			return err
		}
		return ErrRunActive
	}
	return nil
}

// ReleaseRun clears the active run lock, but only for the holder.
func (s *Store) ReleaseRun(ctx context.Context, editionID, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE editions SET active_run_id = '', updated_at = ? WHERE id = ? AND active_run_id = ?`,
		fmtTime(now()), editionID, runID)
	if err != nil {
		return fmt.Errorf("failed to release run: %w", err)
	}
	return nil
}

// RequestCancel sets the cooperative cancellation flag. It fails with
// ErrNotFound when the edition does not exist and reports whether a run was
// active to cancel.
func (s *Store) RequestCancel(ctx context.Context, editionID string) (bool, error) {
	e, err := s.GetEdition(ctx, editionID)
	if err != nil {
		return false, err
	}
	if e.ActiveRunID == "" {
		return false, nil
	}
	err = s.updateEdition(ctx, editionID, map[string]any{"cancel_requested": 1})
	return true, err
}

// CancelRequested reports whether cancellation has been requested.
func (s *Store) CancelRequested(ctx context.Context, editionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT cancel_requested FROM editions WHERE id = ?`, editionID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return n != 0, err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
