package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// UpdateResult summarises a bulk saved-search refresh.
type UpdateResult struct {
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// EvaluateSavedSearch recomputes one saved search's match count using the
// same search path user queries take, and records it.
func EvaluateSavedSearch(ctx context.Context, backend Backend, st *store.Store, ss *store.SavedSearch) (int, error) {
	q := Query{
		Text:      ss.Query,
		ItemTypes: ss.ItemTypes,
		DateFrom:  ss.DateFrom,
		DateTo:    ss.DateTo,
		Limit:     1,
	}
	_, total, err := backend.Search(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("search failed: %w", err)
	}
	if err := st.RecordSearchMatches(ctx, ss.ID, total); err != nil {
		return 0, fmt.Errorf("failed to record match count: %w", err)
	}
	return total, nil
}

// UpdateAllSearchMatches refreshes every active saved search. Each search is
// evaluated independently: one failure is recorded and the batch continues.
func UpdateAllSearchMatches(ctx context.Context, backend Backend, st *store.Store, logger *slog.Logger) (*UpdateResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	searches, err := st.ListSavedSearches(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved searches: %w", err)
	}

	res := &UpdateResult{}
	for _, ss := range searches {
		count, err := EvaluateSavedSearch(ctx, backend, st, ss)
		if err != nil {
			logger.Warn("saved search evaluation failed", "search_id", ss.ID, "name", ss.Name, "error", err)
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", ss.Name, err))
			continue
		}
		logger.Debug("saved search updated", "search_id", ss.ID, "matches", count)
		res.Updated++
	}
	logger.Info("saved search refresh complete", "updated", res.Updated, "failed", res.Failed)
	return res, nil
}
