package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// ftsSchema is the FTS5 virtual table. Filter columns are unindexed; only
// title and body participate in full-text matching.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS items_fts USING fts5(
	item_id UNINDEXED,
	edition_id UNINDEXED,
	page_number UNINDEXED,
	item_type UNINDEXED,
	subtype UNINDEXED,
	newspaper_name UNINDEXED,
	edition_date UNINDEXED,
	title,
	body
);`

// FTSBackend indexes items in an SQLite FTS5 table that lives alongside the
// primary tables in the same database file.
type FTSBackend struct {
	db  *sql.DB
	cfg config.SearchCfg
}

// NewFTSBackend creates the FTS5 table if needed.
func NewFTSBackend(db *sql.DB, cfg config.SearchCfg) (*FTSBackend, error) {
	if _, err := db.Exec(ftsSchema); err != nil {
		return nil, fmt.Errorf("failed to create fts table: %w", err)
	}
	return &FTSBackend{db: db, cfg: cfg}, nil
}

// IndexEdition replaces all index rows for the edition.
func (f *FTSBackend) IndexEdition(ctx context.Context, edition *store.Edition, items []*store.Item) error {
	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM items_fts WHERE edition_id = ?`, edition.ID); err != nil {
		return fmt.Errorf("failed to clear index for edition: %w", err)
	}
	ins := `INSERT INTO items_fts
		(item_id, edition_id, page_number, item_type, subtype, newspaper_name, edition_date, title, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	for _, it := range items {
		d := newDocument(edition, it)
		if _, err := tx.ExecContext(ctx, ins,
			d.ItemID, d.EditionID, d.PageNumber, string(d.ItemType), string(d.Subtype),
			d.NewspaperName, d.EditionDate, d.Title, d.Body); err != nil {
			return fmt.Errorf("failed to index item %s: %w", it.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteEdition removes the edition's index rows.
func (f *FTSBackend) DeleteEdition(ctx context.Context, editionID string) error {
	_, err := f.db.ExecContext(ctx, `DELETE FROM items_fts WHERE edition_id = ?`, editionID)
	return err
}

// Search retrieves candidates via an FTS5 MATCH over the query tokens, then
// ranks them with the shared scorer so ordering agrees with the in-memory
// backend.
func (f *FTSBackend) Search(ctx context.Context, q Query) ([]*Result, int, error) {
	if err := q.validate(f.cfg.MaxLimit); err != nil {
		return nil, 0, err
	}
	match := ftsMatchExpr(q.Text)
	if match == "" {
		return nil, 0, fmt.Errorf("query has no searchable terms")
	}

	b := sq.Select("item_id", "edition_id", "page_number", "item_type", "subtype",
		"newspaper_name", "edition_date", "title", "body").
		From("items_fts").
		Where("items_fts MATCH ?", match)
	if q.EditionID != "" {
		b = b.Where(sq.Eq{"edition_id": q.EditionID})
	}
	if q.NewspaperName != "" {
		b = b.Where(sq.Eq{"newspaper_name": q.NewspaperName})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, 0, err
	}

	rows, err := f.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("fts query failed: %w", err)
	}
	defer rows.Close()

	var docs []document
	for rows.Next() {
		var d document
		var itemType, subtype string
		if err := rows.Scan(&d.ItemID, &d.EditionID, &d.PageNumber, &itemType, &subtype,
			&d.NewspaperName, &d.EditionDate, &d.Title, &d.Body); err != nil {
			return nil, 0, err
		}
		d.ItemType = store.ItemType(itemType)
		d.Subtype = store.Subtype(subtype)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	results, total := rankAndPage(docs, q, f.cfg.SnippetRadius)
	return results, total, nil
}

// ftsMatchExpr builds an OR-of-terms FTS5 match expression. Candidate
// retrieval is deliberately broad: any document containing at least one
// term is fetched, and the shared ranker decides the final order.
func ftsMatchExpr(text string) string {
	terms := tokenize(text)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		// Prefix match keeps recall aligned with the ranker's substring
		// scoring: "tender"* also fetches "tenders".
		quoted[i] = `"` + strings.ReplaceAll(t, `"`, ``) + `"*`
	}
	return strings.Join(quoted, " OR ")
}
