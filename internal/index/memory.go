package index

import (
	"context"
	"sync"

	"github.com/broadsheet-archive/broadsheet/internal/config"
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// MemoryBackend is an in-process index with the same search contract as the
// FTS5 backend. Used in tests and for ephemeral deployments.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]document // edition id -> documents
	cfg  config.SearchCfg
}

// NewMemoryBackend creates an empty in-memory index.
func NewMemoryBackend(cfg config.SearchCfg) *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]document), cfg: cfg}
}

// IndexEdition replaces the edition's documents.
func (m *MemoryBackend) IndexEdition(_ context.Context, edition *store.Edition, items []*store.Item) error {
	docs := make([]document, 0, len(items))
	for _, it := range items {
		docs = append(docs, newDocument(edition, it))
	}
	m.mu.Lock()
	m.docs[edition.ID] = docs
	m.mu.Unlock()
	return nil
}

// DeleteEdition removes the edition's documents.
func (m *MemoryBackend) DeleteEdition(_ context.Context, editionID string) error {
	m.mu.Lock()
	delete(m.docs, editionID)
	m.mu.Unlock()
	return nil
}

// Search scans all documents and ranks them with the shared scorer.
func (m *MemoryBackend) Search(_ context.Context, q Query) ([]*Result, int, error) {
	if err := q.validate(m.cfg.MaxLimit); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	var all []document
	if q.EditionID != "" {
		all = append(all, m.docs[q.EditionID]...)
	} else {
		for _, docs := range m.docs {
			all = append(all, docs...)
		}
	}
	m.mu.RUnlock()

	results, total := rankAndPage(all, q, m.cfg.SnippetRadius)
	return results, total, nil
}
