package classify

import (
	"github.com/broadsheet-archive/broadsheet/internal/store"
)

// EnrichItem fills in the classifier-owned fields of a freshly segmented
// item: subtype for classifieds, pattern-extracted entities, and the
// subtype-specific structured record. Layout-owned fields (type, title,
// text, bounds) are left alone.
func EnrichItem(item *store.Item) {
	if item.ItemType == store.ItemClassified {
		item.Subtype = Subtype(item.Text)
	} else {
		item.Subtype = ""
	}
	item.Entities = ExtractEntities(item.Title + "\n" + item.Text)
	item.StructuredData = StructuredData(item.Subtype, item.Text, item.Entities)
}
