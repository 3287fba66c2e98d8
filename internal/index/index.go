// Package index maintains the full-text index over items and answers
// search queries.
//
// Two backends implement the same contract: an SQLite FTS5 table for the
// server, and an in-memory index for tests and ephemeral use. Ranking and
// snippet generation are shared Go code, so both backends order results
// identically: exact phrase and substring matches surface before weaker
// token matches, and every highlighted term present in a result's text
// appears in its snippet.
package index

import (
	"context"
	"fmt"

	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// Query is a search request. EditionID scopes the search to one edition;
// the remaining filters apply to global search.
type Query struct {
	Text          string           `json:"text"`
	EditionID     string           `json:"edition_id,omitempty"`
	ItemTypes     []store.ItemType `json:"item_types,omitempty"`
	Subtype       store.Subtype    `json:"subtype,omitempty"`
	NewspaperName string           `json:"newspaper_name,omitempty"`
	DateFrom      string           `json:"date_from,omitempty"` // YYYY-MM-DD
	DateTo        string           `json:"date_to,omitempty"`
	Skip          int              `json:"skip"`
	Limit         int              `json:"limit"`
}

// Result is one ranked search hit.
type Result struct {
	ItemID        string          `json:"item_id"`
	EditionID     string          `json:"edition_id"`
	PageNumber    int             `json:"page_number"`
	ItemType      store.ItemType  `json:"item_type"`
	Subtype       store.Subtype   `json:"subtype,omitempty"`
	NewspaperName string          `json:"newspaper_name"`
	EditionDate   string          `json:"edition_date"`
	Title         string          `json:"title,omitempty"`
	Snippet       string          `json:"snippet"`
	Highlights    []string        `json:"highlights,omitempty"`
	Score         float64         `json:"score"`
}

// Backend is the full-text index contract.
type Backend interface {
	// IndexEdition replaces the index entries for one edition.
	IndexEdition(ctx context.Context, edition *store.Edition, items []*store.Item) error
	// DeleteEdition removes an edition's entries.
	DeleteEdition(ctx context.Context, editionID string) error
	// Search returns the ranked page of results and the total match count.
	Search(ctx context.Context, q Query) ([]*Result, int, error)
}

// document is a backend-internal indexed item.
type document struct {
	ItemID        string
	EditionID     string
	PageNumber    int
	ItemType      store.ItemType
	Subtype       store.Subtype
	NewspaperName string
	EditionDate   string
	Title         string
	Body          string
}

// newDocument flattens an item into its indexed form. structured_data is
// rendered into the body so field values are searchable.
func newDocument(e *store.Edition, it *store.Item) document {
	body := it.Text
	if len(it.StructuredData) > 0 {
		body += "\n" + renderStructured(it.StructuredData)
	}
	return document{
		ItemID:        it.ID,
		EditionID:     e.ID,
		PageNumber:    it.PageNumber,
		ItemType:      it.ItemType,
		Subtype:       it.Subtype,
		NewspaperName: e.NewspaperName,
		EditionDate:   e.EditionDate,
		Title:         it.Title,
		Body:          body,
	}
}

// matchesFilters applies the non-text filters of q to a document.
func (d document) matchesFilters(q Query) bool {
	if q.EditionID != "" && d.EditionID != q.EditionID {
		return false
	}
	if len(q.ItemTypes) > 0 {
		found := false
		for _, t := range q.ItemTypes {
			if d.ItemType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Subtype != "" && d.Subtype != q.Subtype {
		return false
	}
	if q.NewspaperName != "" && d.NewspaperName != q.NewspaperName {
		return false
	}
	if q.DateFrom != "" && d.EditionDate < q.DateFrom {
		return false
	}
	if q.DateTo != "" && d.EditionDate > q.DateTo {
		return false
	}
	return true
}

// validate normalises pagination and rejects empty queries.
func (q *Query) validate(maxLimit int) error {
	if q.Text == "" {
		return fmt.Errorf("query text is required")
	}
	if q.Skip < 0 {
		q.Skip = 0
	}
	if q.Limit <= 0 || (maxLimit > 0 && q.Limit > maxLimit) {
		if maxLimit <= 0 {
			maxLimit = 100
		}
		q.Limit = maxLimit
	}
	return nil
}
