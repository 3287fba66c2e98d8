package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const searchColumns = `id, name, query, item_types, date_from, date_to,
	match_count, last_run, active, created_at`

func scanSearch(row rowScanner) (*SavedSearch, error) {
	var ss SavedSearch
	var itemTypes string
	var lastRun sql.NullString
	var active int
	var created string
	err := row.Scan(
		&ss.ID, &ss.Name, &ss.Query, &itemTypes, &ss.DateFrom, &ss.DateTo,
		&ss.MatchCount, &lastRun, &active, &created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal([]byte(itemTypes), &ss.ItemTypes)
	if lastRun.Valid {
		t := parseTime(lastRun.String)
		ss.LastRun = &t
	}
	ss.Active = active != 0
	ss.CreatedAt = parseTime(created)
	return &ss, nil
}

// CreateSavedSearch inserts a saved search.
func (s *Store) CreateSavedSearch(ctx context.Context, ss *SavedSearch) error {
	ss.CreatedAt = now()
	itemTypes, _ := json.Marshal(ss.ItemTypes)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saved_searches
		 (id, name, query, item_types, date_from, date_to, match_count, last_run, active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		ss.ID, ss.Name, ss.Query, string(itemTypes), ss.DateFrom, ss.DateTo,
		ss.MatchCount, boolInt(ss.Active), fmtTime(ss.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create saved search: %w", err)
	}
	return nil
}

// UpdateSavedSearch rewrites the query definition of a saved search.
func (s *Store) UpdateSavedSearch(ctx context.Context, ss *SavedSearch) error {
	itemTypes, _ := json.Marshal(ss.ItemTypes)
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_searches SET name = ?, query = ?, item_types = ?, date_from = ?, date_to = ?, active = ?
		 WHERE id = ?`,
		ss.Name, ss.Query, string(itemTypes), ss.DateFrom, ss.DateTo, boolInt(ss.Active), ss.ID)
	if err != nil {
		return fmt.Errorf("failed to update saved search: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSavedSearch removes a saved search.
func (s *Store) DeleteSavedSearch(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_searches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved search: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSavedSearch returns a saved search by id.
func (s *Store) GetSavedSearch(ctx context.Context, id string) (*SavedSearch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+searchColumns+` FROM saved_searches WHERE id = ?`, id)
	return scanSearch(row)
}

// ListSavedSearches returns saved searches; activeOnly filters to active ones.
func (s *Store) ListSavedSearches(ctx context.Context, activeOnly bool) ([]*SavedSearch, error) {
	query := `SELECT ` + searchColumns + ` FROM saved_searches ORDER BY name`
	if activeOnly {
		query = `SELECT ` + searchColumns + ` FROM saved_searches WHERE active = 1 ORDER BY name`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved searches: %w", err)
	}
	defer rows.Close()

	var out []*SavedSearch
	for rows.Next() {
		ss, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// RecordSearchMatches stores the recomputed match count and run time.
func (s *Store) RecordSearchMatches(ctx context.Context, id string, matchCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE saved_searches SET match_count = ?, last_run = ? WHERE id = ?`,
		matchCount, fmtTime(now()), id)
	if err != nil {
		return fmt.Errorf("failed to record search matches: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
