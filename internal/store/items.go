package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var itemColumns = []string{
	"id", "edition_id", "page_id", "page_number", "item_type", "subtype",
	"title", "text", "bounds", "entities", "structured_data", "created_at",
}

func scanItem(row rowScanner) (*Item, error) {
	var it Item
	var bounds, entities string
	var structured sql.NullString
	var created string
	err := row.Scan(
		&it.ID, &it.EditionID, &it.PageID, &it.PageNumber, &it.ItemType, &it.Subtype,
		&it.Title, &it.Text, &bounds, &entities, &structured, &created,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal([]byte(bounds), &it.Bounds)
	json.Unmarshal([]byte(entities), &it.Entities)
	if structured.Valid && structured.String != "" {
		it.StructuredData = json.RawMessage(structured.String)
	}
	it.CreatedAt = parseTime(created)
	return &it, nil
}

// ReplaceItems atomically replaces all items of an edition, as reprocessing
// must never leave a mix of old and new segmentations behind.
func (s *Store) ReplaceItems(ctx context.Context, editionID string, items []*Item) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE edition_id = ?`, editionID); err != nil {
			return fmt.Errorf("failed to delete prior items: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO items
			(id, edition_id, page_id, page_number, item_type, subtype, title, text,
			 bounds, entities, structured_data, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		ts := fmtTime(now())
		for _, it := range items {
			bounds, _ := json.Marshal(it.Bounds)
			entities, _ := json.Marshal(it.Entities)
			var structured any
			if len(it.StructuredData) > 0 {
				structured = string(it.StructuredData)
			}
			if _, err := stmt.ExecContext(ctx,
				it.ID, it.EditionID, it.PageID, it.PageNumber, it.ItemType, it.Subtype,
				it.Title, it.Text, string(bounds), string(entities), structured, ts,
			); err != nil {
				return fmt.Errorf("failed to insert item: %w", err)
			}
		}
		return nil
	})
}

// GetItem returns an item by id.
func (s *Store) GetItem(ctx context.Context, id string) (*Item, error) {
	query, args, err := s.sb.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	return scanItem(s.db.QueryRowContext(ctx, query, args...))
}

// ListItems returns all items of an edition in page order.
func (s *Store) ListItems(ctx context.Context, editionID string) ([]*Item, error) {
	query, args, err := s.sb.Select(itemColumns...).From("items").
		Where(sq.Eq{"edition_id": editionID}).
		OrderBy("page_number", "created_at").ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryItems(ctx, query, args)
}

// ListAllItems returns every item across editions (batch reclassification).
func (s *Store) ListAllItems(ctx context.Context) ([]*Item, error) {
	query, args, err := s.sb.Select(itemColumns...).From("items").
		OrderBy("edition_id", "page_number").ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryItems(ctx, query, args)
}

func (s *Store) queryItems(ctx context.Context, query string, args []any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountItems returns the number of items for an edition.
func (s *Store) CountItems(ctx context.Context, editionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE edition_id = ?`, editionID).Scan(&n)
	return n, err
}

// ReplaceStoryGroups atomically replaces the derived story groups of an edition.
func (s *Store) ReplaceStoryGroups(ctx context.Context, editionID string, groups []*StoryGroup) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM story_groups WHERE edition_id = ?`, editionID); err != nil {
			return fmt.Errorf("failed to delete prior story groups: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO story_groups
			(id, edition_id, title, pages, item_ids, excerpt, full_text)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, g := range groups {
			pages, _ := json.Marshal(g.Pages)
			itemIDs, _ := json.Marshal(g.ItemIDs)
			if _, err := stmt.ExecContext(ctx,
				g.ID, g.EditionID, g.Title, string(pages), string(itemIDs), g.Excerpt, g.FullText,
			); err != nil {
				return fmt.Errorf("failed to insert story group: %w", err)
			}
		}
		return nil
	})
}

// ListStoryGroups returns the story groups of an edition.
func (s *Store) ListStoryGroups(ctx context.Context, editionID string) ([]*StoryGroup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, edition_id, title, pages, item_ids, excerpt, full_text
		 FROM story_groups WHERE edition_id = ? ORDER BY id`, editionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list story groups: %w", err)
	}
	defer rows.Close()

	var out []*StoryGroup
	for rows.Next() {
		var g StoryGroup
		var pages, itemIDs string
		if err := rows.Scan(&g.ID, &g.EditionID, &g.Title, &pages, &itemIDs, &g.Excerpt, &g.FullText); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(pages), &g.Pages)
		json.Unmarshal([]byte(itemIDs), &g.ItemIDs)
		out = append(out, &g)
	}
	return out, rows.Err()
}
