package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// ListItemsResponse wraps an edition's items.
type ListItemsResponse struct {
	EditionID string        `json:"edition_id"`
	Items     []*store.Item `json:"items"`
	Count     int           `json:"count"`
}

// ListItemsEndpoint handles GET /api/editions/{id}/items.
type ListItemsEndpoint struct{}

var _ api.Endpoint = (*ListItemsEndpoint)(nil)

func (e *ListItemsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/items", e.handler
}

func (e *ListItemsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List an edition's segmented items
//	@Tags		items
//	@Produce	json
//	@Param		id	path		string	true	"Edition id"
//	@Success	200	{object}	ListItemsResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/editions/{id}/items [get]
func (e *ListItemsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	items, err := st.ListItems(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListItemsResponse{EditionID: editionID, Items: items, Count: len(items)})
}

func (e *ListItemsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "items <edition-id>",
		Short: "List an edition's items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListItemsResponse
			if err := client.Get(cmd.Context(), "/api/editions/"+args[0]+"/items", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetItemEndpoint handles GET /api/items/{id}.
type GetItemEndpoint struct{}

var _ api.Endpoint = (*GetItemEndpoint)(nil)

func (e *GetItemEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/items/{id}", e.handler
}

func (e *GetItemEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get one item with its category assignments
//	@Tags		items
//	@Produce	json
//	@Param		id	path		string	true	"Item id"
//	@Success	200	{object}	ItemDetailResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/items/{id} [get]
func (e *GetItemEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	item, err := st.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	cats, _ := st.ListItemCategories(r.Context(), item.ID)
	writeJSON(w, http.StatusOK, ItemDetailResponse{Item: item, Categories: cats})
}

// ItemDetailResponse pairs an item with its category assignments.
type ItemDetailResponse struct {
	Item       *store.Item           `json:"item"`
	Categories []*store.ItemCategory `json:"categories,omitempty"`
}

func (e *GetItemEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "item <item-id>",
		Short: "Show one item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ItemDetailResponse
			if err := client.Get(cmd.Context(), "/api/items/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// ListStoriesResponse wraps an edition's story groups.
type ListStoriesResponse struct {
	EditionID string              `json:"edition_id"`
	Stories   []*store.StoryGroup `json:"stories"`
	Count     int                 `json:"count"`
}

// ListStoriesEndpoint handles GET /api/editions/{id}/stories.
type ListStoriesEndpoint struct{}

var _ api.Endpoint = (*ListStoriesEndpoint)(nil)

func (e *ListStoriesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/stories", e.handler
}

func (e *ListStoriesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List an edition's cross-page story groups
//	@Tags		items
//	@Produce	json
//	@Param		id	path		string	true	"Edition id"
//	@Success	200	{object}	ListStoriesResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/editions/{id}/stories [get]
func (e *ListStoriesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	groups, err := st.ListStoryGroups(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListStoriesResponse{EditionID: editionID, Stories: groups, Count: len(groups)})
}

func (e *ListStoriesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "stories <edition-id>",
		Short: "List an edition's story groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListStoriesResponse
			if err := client.Get(cmd.Context(), "/api/editions/"+args[0]+"/stories", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
