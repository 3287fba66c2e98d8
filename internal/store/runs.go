package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const runColumns = `id, edition_id, version, trigger_kind, success, status,
	started_at, finished_at, stats, error_message`

func scanRun(row rowScanner) (*ExtractionRun, error) {
	var r ExtractionRun
	var success int
	var started string
	var finished sql.NullString
	var stats string
	err := row.Scan(
		&r.ID, &r.EditionID, &r.Version, &r.Trigger, &success, &r.Status,
		&started, &finished, &stats, &r.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Success = success != 0
	r.StartedAt = parseTime(started)
	if finished.Valid {
		t := parseTime(finished.String)
		r.FinishedAt = &t
	}
	json.Unmarshal([]byte(stats), &r.Stats)
	return &r, nil
}

// CreateRun appends a new extraction run audit record.
func (s *Store) CreateRun(ctx context.Context, r *ExtractionRun) error {
	stats, _ := json.Marshal(r.Stats)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extraction_runs
		 (id, edition_id, version, trigger_kind, success, status, started_at, finished_at, stats, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		r.ID, r.EditionID, r.Version, r.Trigger, boolInt(r.Success), r.Status,
		fmtTime(r.StartedAt), string(stats), r.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to create extraction run: %w", err)
	}
	return nil
}

// FinishRun records the terminal state of a run. Prior runs are never touched.
func (s *Store) FinishRun(ctx context.Context, runID string, success bool, status RunStatus, stats RunStats, errorMessage string) error {
	blob, _ := json.Marshal(stats)
	res, err := s.db.ExecContext(ctx,
		`UPDATE extraction_runs SET success = ?, status = ?, finished_at = ?, stats = ?, error_message = ?
		 WHERE id = ?`,
		boolInt(success), status, fmtTime(now()), string(blob), errorMessage, runID)
	if err != nil {
		return fmt.Errorf("failed to finish extraction run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateRunStats rewrites the stats blob of a running run for progress queries.
func (s *Store) UpdateRunStats(ctx context.Context, runID string, stats RunStats) error {
	blob, _ := json.Marshal(stats)
	_, err := s.db.ExecContext(ctx,
		`UPDATE extraction_runs SET stats = ? WHERE id = ?`, string(blob), runID)
	return err
}

// LatestRun returns the most recent extraction run for an edition.
func (s *Store) LatestRun(ctx context.Context, editionID string) (*ExtractionRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs
		 WHERE edition_id = ? ORDER BY started_at DESC, id DESC LIMIT 1`, editionID)
	return scanRun(row)
}

// ListRuns returns all runs for an edition, newest first.
func (s *Store) ListRuns(ctx context.Context, editionID string) ([]*ExtractionRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM extraction_runs
		 WHERE edition_id = ? ORDER BY started_at DESC, id DESC`, editionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list extraction runs: %w", err)
	}
	defer rows.Close()

	var out []*ExtractionRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
