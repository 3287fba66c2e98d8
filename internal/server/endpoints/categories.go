package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/classify"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// CategoryRequest is the create/update body for a category.
type CategoryRequest struct {
	Name     string   `json:"name"`
	Color    string   `json:"color,omitempty"`
	Keywords []string `json:"keywords"`
	Active   *bool    `json:"active,omitempty"`
}

// CreateCategoryEndpoint handles POST /api/categories.
type CreateCategoryEndpoint struct{}

var _ api.Endpoint = (*CreateCategoryEndpoint)(nil)

func (e *CreateCategoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/categories", e.handler
}

func (e *CreateCategoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Create a category
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CategoryRequest	true	"Category"
//	@Success	201	{object}	store.Category
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/categories [post]
func (e *CreateCategoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	c := &store.Category{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Color:    req.Color,
		Keywords: req.Keywords,
		Active:   true,
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	if err := st.CreateCategory(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (e *CreateCategoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var color string
	var keywords []string
	cmd := &cobra.Command{
		Use:   "category-create <name>",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.Category
			body := CategoryRequest{Name: args[0], Color: color, Keywords: keywords}
			if err := client.Post(cmd.Context(), "/api/categories", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "keywords for auto-classification")
	return cmd
}

// ListCategoriesEndpoint handles GET /api/categories.
type ListCategoriesEndpoint struct{}

var _ api.Endpoint = (*ListCategoriesEndpoint)(nil)

func (e *ListCategoriesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/categories", e.handler
}

func (e *ListCategoriesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List categories
//	@Tags		categories
//	@Produce	json
//	@Param		active	query		bool	false	"Only active categories"
//	@Success	200	{array}		store.Category
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/categories [get]
func (e *ListCategoriesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"
	cats, err := st.ListCategories(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (e *ListCategoriesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "category-list",
		Short: "List categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp []store.Category
			if err := client.Get(cmd.Context(), "/api/categories", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UpdateCategoryEndpoint handles PUT /api/categories/{id}.
type UpdateCategoryEndpoint struct{}

var _ api.Endpoint = (*UpdateCategoryEndpoint)(nil)

func (e *UpdateCategoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/categories/{id}", e.handler
}

func (e *UpdateCategoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Update a category
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string			true	"Category id"
//	@Param		body	body		CategoryRequest	true	"Category"
//	@Success	200	{object}	store.Category
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/categories/{id} [put]
func (e *UpdateCategoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	c, err := st.GetCategory(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "category not found")
		return
	}

	var req CategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		c.Name = req.Name
	}
	if req.Color != "" {
		c.Color = req.Color
	}
	if req.Keywords != nil {
		c.Keywords = req.Keywords
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	if err := st.UpdateCategory(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (e *UpdateCategoryEndpoint) Command(_ func() string) *cobra.Command {
	// Updates carry structured bodies; use the HTTP API directly.
	return nil
}

// DeleteCategoryEndpoint handles DELETE /api/categories/{id}.
type DeleteCategoryEndpoint struct{}

var _ api.Endpoint = (*DeleteCategoryEndpoint)(nil)

func (e *DeleteCategoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/categories/{id}", e.handler
}

func (e *DeleteCategoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete a category
//	@Tags		categories
//	@Produce	json
//	@Param		id	path		string	true	"Category id"
//	@Success	200	{object}	map[string]string
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/categories/{id} [delete]
func (e *DeleteCategoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if err := st.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteCategoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "category-delete <category-id>",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]string
			return client.Delete(cmd.Context(), "/api/categories/"+args[0], &resp)
		},
	}
}

// SuggestRequest is the body for category suggestion.
type SuggestRequest struct {
	Text      string `json:"text"`
	Threshold int    `json:"threshold,omitempty"`
}

// SuggestCategoriesEndpoint handles POST /api/categories/suggest.
type SuggestCategoriesEndpoint struct{}

var _ api.Endpoint = (*SuggestCategoriesEndpoint)(nil)

func (e *SuggestCategoriesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/categories/suggest", e.handler
}

func (e *SuggestCategoriesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Suggest categories for text
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SuggestRequest	true	"Text to score"
//	@Success	200	{array}		classify.Suggestion
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/categories/suggest [post]
func (e *SuggestCategoriesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SuggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	threshold := req.Threshold
	if threshold <= 0 {
		if mgr := svcctx.ConfigFrom(r.Context()); mgr != nil {
			threshold = mgr.Get().Classify.CategoryThreshold
		}
	}

	st := svcctx.StoreFrom(r.Context())
	suggestions, err := classify.SuggestCategories(r.Context(), st, req.Text, threshold)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (e *SuggestCategoriesEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// ReclassifyRequest is the body for batch reclassification.
type ReclassifyRequest struct {
	Threshold int  `json:"threshold,omitempty"`
	ClearAuto bool `json:"clear_auto"`
}

// ReclassifyEndpoint handles POST /api/categories/reclassify.
type ReclassifyEndpoint struct{}

var _ api.Endpoint = (*ReclassifyEndpoint)(nil)

func (e *ReclassifyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/categories/reclassify", e.handler
}

func (e *ReclassifyEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reclassify all items against current categories
//	@Description	Optionally clears auto assignments first; manual assignments are preserved.
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReclassifyRequest	false	"Options"
//	@Success		200	{object}	classify.ReclassifyResult
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/categories/reclassify [post]
func (e *ReclassifyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req ReclassifyRequest
	json.NewDecoder(r.Body).Decode(&req)

	threshold := req.Threshold
	if threshold <= 0 {
		if mgr := svcctx.ConfigFrom(r.Context()); mgr != nil {
			threshold = mgr.Get().Classify.CategoryThreshold
		}
	}

	st := svcctx.StoreFrom(r.Context())
	res, err := classify.ReclassifyAll(r.Context(), st, threshold, req.ClearAuto, svcctx.LoggerFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *ReclassifyEndpoint) Command(getServerURL func() string) *cobra.Command {
	var clearAuto bool
	cmd := &cobra.Command{
		Use:   "reclassify",
		Short: "Reclassify all items against current categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp classify.ReclassifyResult
			body := ReclassifyRequest{ClearAuto: clearAuto}
			if err := client.Post(cmd.Context(), "/api/categories/reclassify", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&clearAuto, "clear-auto", false, "drop existing auto assignments first")
	return cmd
}

// SetItemCategoryRequest is the body for a manual category assignment.
type SetItemCategoryRequest struct {
	CategoryID string `json:"category_id"`
	Confidence int    `json:"confidence,omitempty"`
}

// SetItemCategoryEndpoint handles POST /api/items/{id}/categories.
type SetItemCategoryEndpoint struct{}

var _ api.Endpoint = (*SetItemCategoryEndpoint)(nil)

func (e *SetItemCategoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/items/{id}/categories", e.handler
}

func (e *SetItemCategoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Manually assign a category to an item
//	@Tags		categories
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string					true	"Item id"
//	@Param		body	body		SetItemCategoryRequest	true	"Assignment"
//	@Success	200	{object}	store.ItemCategory
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/items/{id}/categories [post]
func (e *SetItemCategoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SetItemCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CategoryID == "" {
		writeError(w, http.StatusBadRequest, "category_id is required")
		return
	}
	confidence := req.Confidence
	if confidence <= 0 || confidence > 100 {
		confidence = 100
	}

	st := svcctx.StoreFrom(r.Context())
	ic := &store.ItemCategory{
		ItemID:     r.PathValue("id"),
		CategoryID: req.CategoryID,
		Confidence: confidence,
		Source:     store.CategoryManual,
	}
	if err := st.SetItemCategory(r.Context(), ic); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ic)
}

func (e *SetItemCategoryEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// RemoveItemCategoryEndpoint handles DELETE /api/items/{id}/categories/{category}.
type RemoveItemCategoryEndpoint struct{}

var _ api.Endpoint = (*RemoveItemCategoryEndpoint)(nil)

func (e *RemoveItemCategoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/items/{id}/categories/{category}", e.handler
}

func (e *RemoveItemCategoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Remove a category assignment from an item
//	@Tags		categories
//	@Produce	json
//	@Param		id			path		string	true	"Item id"
//	@Param		category	path		string	true	"Category id"
//	@Success	200	{object}	map[string]string
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/items/{id}/categories/{category} [delete]
func (e *RemoveItemCategoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if err := st.RemoveItemCategory(r.Context(), r.PathValue("id"), r.PathValue("category")); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (e *RemoveItemCategoryEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}
