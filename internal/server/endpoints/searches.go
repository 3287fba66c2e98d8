package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// SavedSearchRequest is the create/update body for a saved search.
type SavedSearchRequest struct {
	Name      string           `json:"name"`
	Query     string           `json:"query"`
	ItemTypes []store.ItemType `json:"item_types,omitempty"`
	DateFrom  string           `json:"date_from,omitempty"`
	DateTo    string           `json:"date_to,omitempty"`
	Active    *bool            `json:"active,omitempty"`
}

// CreateSavedSearchEndpoint handles POST /api/searches.
type CreateSavedSearchEndpoint struct{}

var _ api.Endpoint = (*CreateSavedSearchEndpoint)(nil)

func (e *CreateSavedSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/searches", e.handler
}

func (e *CreateSavedSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Create a saved search
//	@Tags		searches
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SavedSearchRequest	true	"Saved search"
//	@Success	201	{object}	store.SavedSearch
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/searches [post]
func (e *CreateSavedSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SavedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "name and query are required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	ss := &store.SavedSearch{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Query:     req.Query,
		ItemTypes: req.ItemTypes,
		DateFrom:  req.DateFrom,
		DateTo:    req.DateTo,
		Active:    true,
	}
	if req.Active != nil {
		ss.Active = *req.Active
	}
	if err := st.CreateSavedSearch(r.Context(), ss); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ss)
}

func (e *CreateSavedSearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "search-create <name>",
		Short: "Create a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.SavedSearch
			body := SavedSearchRequest{Name: args[0], Query: query}
			if err := client.Post(cmd.Context(), "/api/searches", body, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "search query text (required)")
	cmd.MarkFlagRequired("query")
	return cmd
}

// ListSavedSearchesEndpoint handles GET /api/searches.
type ListSavedSearchesEndpoint struct{}

var _ api.Endpoint = (*ListSavedSearchesEndpoint)(nil)

func (e *ListSavedSearchesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/searches", e.handler
}

func (e *ListSavedSearchesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List saved searches
//	@Tags		searches
//	@Produce	json
//	@Param		active	query		bool	false	"Only active searches"
//	@Success	200	{array}		store.SavedSearch
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/searches [get]
func (e *ListSavedSearchesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	activeOnly := r.URL.Query().Get("active") == "true"
	searches, err := st.ListSavedSearches(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, searches)
}

func (e *ListSavedSearchesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-list",
		Short: "List saved searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp []store.SavedSearch
			if err := client.Get(cmd.Context(), "/api/searches", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetSavedSearchEndpoint handles GET /api/searches/{id}.
type GetSavedSearchEndpoint struct{}

var _ api.Endpoint = (*GetSavedSearchEndpoint)(nil)

func (e *GetSavedSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/searches/{id}", e.handler
}

func (e *GetSavedSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get one saved search
//	@Tags		searches
//	@Produce	json
//	@Param		id	path		string	true	"Saved search id"
//	@Success	200	{object}	store.SavedSearch
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/searches/{id} [get]
func (e *GetSavedSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	ss, err := st.GetSavedSearch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "saved search not found")
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

func (e *GetSavedSearchEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// UpdateSavedSearchEndpoint handles PUT /api/searches/{id}.
type UpdateSavedSearchEndpoint struct{}

var _ api.Endpoint = (*UpdateSavedSearchEndpoint)(nil)

func (e *UpdateSavedSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/searches/{id}", e.handler
}

func (e *UpdateSavedSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Update a saved search
//	@Tags		searches
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Saved search id"
//	@Param		body	body		SavedSearchRequest	true	"Saved search"
//	@Success	200	{object}	store.SavedSearch
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/searches/{id} [put]
func (e *UpdateSavedSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	ss, err := st.GetSavedSearch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "saved search not found")
		return
	}

	var req SavedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name != "" {
		ss.Name = req.Name
	}
	if req.Query != "" {
		ss.Query = req.Query
	}
	if req.ItemTypes != nil {
		ss.ItemTypes = req.ItemTypes
	}
	if req.DateFrom != "" {
		ss.DateFrom = req.DateFrom
	}
	if req.DateTo != "" {
		ss.DateTo = req.DateTo
	}
	if req.Active != nil {
		ss.Active = *req.Active
	}
	if err := st.UpdateSavedSearch(r.Context(), ss); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ss)
}

func (e *UpdateSavedSearchEndpoint) Command(_ func() string) *cobra.Command {
	return nil
}

// DeleteSavedSearchEndpoint handles DELETE /api/searches/{id}.
type DeleteSavedSearchEndpoint struct{}

var _ api.Endpoint = (*DeleteSavedSearchEndpoint)(nil)

func (e *DeleteSavedSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/searches/{id}", e.handler
}

func (e *DeleteSavedSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Delete a saved search
//	@Tags		searches
//	@Produce	json
//	@Param		id	path		string	true	"Saved search id"
//	@Success	200	{object}	map[string]string
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/searches/{id} [delete]
func (e *DeleteSavedSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	if err := st.DeleteSavedSearch(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "saved search not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (e *DeleteSavedSearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-delete <search-id>",
		Short: "Delete a saved search",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]string
			return client.Delete(cmd.Context(), "/api/searches/"+args[0], &resp)
		},
	}
}

// RefreshMatchesResponse reports a single saved search refresh.
type RefreshMatchesResponse struct {
	SearchID   string `json:"search_id"`
	MatchCount int    `json:"match_count"`
}

// RefreshSavedSearchEndpoint handles POST /api/searches/{id}/refresh.
type RefreshSavedSearchEndpoint struct{}

var _ api.Endpoint = (*RefreshSavedSearchEndpoint)(nil)

func (e *RefreshSavedSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/searches/{id}/refresh", e.handler
}

func (e *RefreshSavedSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Recompute one saved search's match count
//	@Description	Runs the same search path used for user-facing queries.
//	@Tags			searches
//	@Produce		json
//	@Param			id	path		string	true	"Saved search id"
//	@Success		200	{object}	RefreshMatchesResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/searches/{id}/refresh [post]
func (e *RefreshSavedSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	backend := svcctx.IndexFrom(r.Context())

	ss, err := st.GetSavedSearch(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "saved search not found")
		return
	}
	count, err := index.EvaluateSavedSearch(r.Context(), backend, st, ss)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, RefreshMatchesResponse{SearchID: ss.ID, MatchCount: count})
}

func (e *RefreshSavedSearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-refresh <search-id>",
		Short: "Recompute one saved search's match count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp RefreshMatchesResponse
			if err := client.Post(cmd.Context(), "/api/searches/"+args[0]+"/refresh", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RefreshAllSearchesEndpoint handles POST /api/searches/refresh.
type RefreshAllSearchesEndpoint struct{}

var _ api.Endpoint = (*RefreshAllSearchesEndpoint)(nil)

func (e *RefreshAllSearchesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/searches/refresh", e.handler
}

func (e *RefreshAllSearchesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Recompute match counts for all active saved searches
//	@Description	Each search is evaluated independently; one failure does not abort the batch.
//	@Tags			searches
//	@Produce		json
//	@Success		200	{object}	index.UpdateResult
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/searches/refresh [post]
func (e *RefreshAllSearchesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	backend := svcctx.IndexFrom(r.Context())

	res, err := index.UpdateAllSearchMatches(r.Context(), backend, st, svcctx.LoggerFrom(r.Context()))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (e *RefreshAllSearchesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-refresh-all",
		Short: "Recompute match counts for all active saved searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp index.UpdateResult
			if err := client.Post(cmd.Context(), "/api/searches/refresh", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
