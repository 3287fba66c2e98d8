package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// Suggestion is a scored category match for a piece of text.
type Suggestion struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Confidence int    `json:"confidence"`
}

// ScoreCategory scores text against one category's keyword set, 0-100.
// Each matched keyword contributes; repeated hits raise confidence with
// diminishing returns so a single hammered keyword cannot max out alone.
func ScoreCategory(text string, c *store.Category) int {
	if len(c.Keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	score := 0
	for _, kw := range c.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		n := strings.Count(lower, kw)
		switch {
		case n >= 3:
			score += 40
		case n == 2:
			score += 30
		case n == 1:
			score += 20
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// SuggestCategories scores text against every active category and returns
// the matches at or above threshold, best first.
func SuggestCategories(ctx context.Context, st *store.Store, text string, threshold int) ([]Suggestion, error) {
	cats, err := st.ListCategories(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var out []Suggestion
	for _, c := range cats {
		if conf := ScoreCategory(text, c); conf >= threshold {
			out = append(out, Suggestion{CategoryID: c.ID, Name: c.Name, Confidence: conf})
		}
	}
	// Insertion sort; category counts are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Confidence > out[j-1].Confidence; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

// AssignCategories scores one item against the active categories and writes
// auto assignments for every match at or above threshold. Manual assignments
// are never touched here.
func AssignCategories(ctx context.Context, st *store.Store, item *store.Item, cats []*store.Category, threshold int) error {
	text := item.Title + "\n" + item.Text
	for _, c := range cats {
		conf := ScoreCategory(text, c)
		if conf < threshold {
			continue
		}
		if err := st.SetAutoItemCategory(ctx, item.ID, c.ID, conf); err != nil {
			return fmt.Errorf("failed to assign category %s: %w", c.Name, err)
		}
	}
	return nil
}

// ReclassifyResult summarises a batch reclassification.
type ReclassifyResult struct {
	ItemsProcessed int `json:"items_processed"`
	ItemsFailed    int `json:"items_failed"`
}

// ReclassifyAll rescans every stored item against the active categories.
// When clearAuto is set, existing auto assignments are dropped first; manual
// assignments survive either way. Per-item failures are logged and counted
// without aborting the batch.
func ReclassifyAll(ctx context.Context, st *store.Store, threshold int, clearAuto bool, logger *slog.Logger) (*ReclassifyResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cats, err := st.ListCategories(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	items, err := st.ListAllItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	res := &ReclassifyResult{}
	for _, item := range items {
		if clearAuto {
			if err := st.ClearAutoCategories(ctx, item.ID); err != nil {
				logger.Warn("failed to clear auto categories", "item_id", item.ID, "error", err)
				res.ItemsFailed++
				continue
			}
		}
		if err := AssignCategories(ctx, st, item, cats, threshold); err != nil {
			logger.Warn("failed to reclassify item", "item_id", item.ID, "error", err)
			res.ItemsFailed++
			continue
		}
		res.ItemsProcessed++
	}
	logger.Info("reclassification complete",
		"items_processed", res.ItemsProcessed, "items_failed", res.ItemsFailed, "clear_auto", clearAuto)
	return res, nil
}
