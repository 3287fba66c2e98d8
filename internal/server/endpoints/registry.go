package endpoints

import (
	"github.com/broadsheet-archive/broadsheet/internal/api"
)

// All returns all endpoint instances in registration order.
func All() []api.Endpoint {
	return []api.Endpoint{
		// System endpoints
		&HealthEndpoint{},
		&StatusEndpoint{},

		// Edition endpoints
		&UploadEndpoint{},
		&ListEditionsEndpoint{},
		&GetEditionEndpoint{},
		&EditionStatusEndpoint{},
		&ProcessEndpoint{},
		&ReprocessEndpoint{},
		&CancelEndpoint{},
		&ArchiveNowEndpoint{},

		// Page endpoints
		&ListPagesEndpoint{},
		&LowConfidencePagesEndpoint{},
		&ReOCRPageEndpoint{},

		// Item and story endpoints
		&ListItemsEndpoint{},
		&GetItemEndpoint{},
		&ListStoriesEndpoint{},

		// Search endpoints
		&GlobalSearchEndpoint{},
		&EditionSearchEndpoint{},

		// Saved search endpoints
		&CreateSavedSearchEndpoint{},
		&ListSavedSearchesEndpoint{},
		&GetSavedSearchEndpoint{},
		&UpdateSavedSearchEndpoint{},
		&DeleteSavedSearchEndpoint{},
		&RefreshSavedSearchEndpoint{},
		&RefreshAllSearchesEndpoint{},

		// Category endpoints
		&CreateCategoryEndpoint{},
		&ListCategoriesEndpoint{},
		&UpdateCategoryEndpoint{},
		&DeleteCategoryEndpoint{},
		&SuggestCategoriesEndpoint{},
		&ReclassifyEndpoint{},
		&SetItemCategoryEndpoint{},
		&RemoveItemCategoryEndpoint{},
	}
}
