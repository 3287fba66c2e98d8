package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CreateCategory inserts a new category.
func (s *Store) CreateCategory(ctx context.Context, c *Category) error {
	keywords, _ := json.Marshal(c.Keywords)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, color, keywords, active) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Color, string(keywords), boolInt(c.Active))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("category %q already exists", c.Name)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// UpdateCategory rewrites a category's mutable fields.
func (s *Store) UpdateCategory(ctx context.Context, c *Category) error {
	keywords, _ := json.Marshal(c.Keywords)
	res, err := s.db.ExecContext(ctx,
		`UPDATE categories SET name = ?, color = ?, keywords = ?, active = ? WHERE id = ?`,
		c.Name, c.Color, string(keywords), boolInt(c.Active), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category and its item associations.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetCategory returns a category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (*Category, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, color, keywords, active FROM categories WHERE id = ?`, id)
	return scanCategory(row)
}

func scanCategory(row rowScanner) (*Category, error) {
	var c Category
	var keywords string
	var active int
	if err := row.Scan(&c.ID, &c.Name, &c.Color, &keywords, &active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	json.Unmarshal([]byte(keywords), &c.Keywords)
	c.Active = active != 0
	return &c, nil
}

// ListCategories returns categories; activeOnly filters to active ones.
func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]*Category, error) {
	query := `SELECT id, name, color, keywords, active FROM categories ORDER BY name`
	if activeOnly {
		query = `SELECT id, name, color, keywords, active FROM categories WHERE active = 1 ORDER BY name`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetItemCategory upserts one item-category association.
func (s *Store) SetItemCategory(ctx context.Context, ic *ItemCategory) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_categories (item_id, category_id, confidence, source)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(item_id, category_id) DO UPDATE SET confidence = excluded.confidence, source = excluded.source`,
		ic.ItemID, ic.CategoryID, ic.Confidence, ic.Source)
	if err != nil {
		return fmt.Errorf("failed to set item category: %w", err)
	}
	return nil
}

// SetAutoItemCategory upserts an automatic assignment. A manual row for the
// same pair is left untouched; manual assignments only change through
// SetItemCategory or RemoveItemCategory.
func (s *Store) SetAutoItemCategory(ctx context.Context, itemID, categoryID string, confidence int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_categories (item_id, category_id, confidence, source)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(item_id, category_id) DO UPDATE SET confidence = excluded.confidence
		 WHERE item_categories.source != ?`,
		itemID, categoryID, confidence, CategoryAuto, CategoryManual)
	if err != nil {
		return fmt.Errorf("failed to set auto item category: %w", err)
	}
	return nil
}

// RemoveItemCategory deletes one association (manual removals included).
func (s *Store) RemoveItemCategory(ctx context.Context, itemID, categoryID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM item_categories WHERE item_id = ? AND category_id = ?`, itemID, categoryID)
	return err
}

// ClearAutoCategories removes the item's automatic assignments; manual
// assignments are preserved.
func (s *Store) ClearAutoCategories(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM item_categories WHERE item_id = ? AND source = ?`, itemID, CategoryAuto)
	return err
}

// ListItemCategories returns the associations for one item.
func (s *Store) ListItemCategories(ctx context.Context, itemID string) ([]*ItemCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_id, category_id, confidence, source FROM item_categories
		 WHERE item_id = ? ORDER BY confidence DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list item categories: %w", err)
	}
	defer rows.Close()

	var out []*ItemCategory
	for rows.Next() {
		var ic ItemCategory
		if err := rows.Scan(&ic.ItemID, &ic.CategoryID, &ic.Confidence, &ic.Source); err != nil {
			return nil, err
		}
		out = append(out, &ic)
	}
	return out, rows.Err()
}
