package endpoints

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/index"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// SearchResponse wraps a page of ranked search results.
type SearchResponse struct {
	Results []*index.Result `json:"results"`
	Total   int             `json:"total"`
	Skip    int             `json:"skip"`
	Limit   int             `json:"limit"`
}

// queryFromRequest parses the shared search query parameters.
func queryFromRequest(r *http.Request) index.Query {
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	var itemTypes []store.ItemType
	for _, t := range strings.Split(q.Get("item_types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			itemTypes = append(itemTypes, store.ItemType(t))
		}
	}

	return index.Query{
		Text:          q.Get("q"),
		ItemTypes:     itemTypes,
		Subtype:       store.Subtype(q.Get("subtype")),
		NewspaperName: q.Get("newspaper_name"),
		DateFrom:      q.Get("date_from"),
		DateTo:        q.Get("date_to"),
		Skip:          skip,
		Limit:         limit,
	}
}

func runSearch(w http.ResponseWriter, r *http.Request, q index.Query) {
	backend := svcctx.IndexFrom(r.Context())
	if backend == nil {
		writeError(w, http.StatusServiceUnavailable, "search index not initialized")
		return
	}
	results, total, err := backend.Search(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Total:   total,
		Skip:    q.Skip,
		Limit:   q.Limit,
	})
}

// GlobalSearchEndpoint handles GET /api/search.
type GlobalSearchEndpoint struct{}

var _ api.Endpoint = (*GlobalSearchEndpoint)(nil)

func (e *GlobalSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/search", e.handler
}

func (e *GlobalSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Search items across all editions
//	@Description	Exact phrase matches rank above token matches; snippets contain every highlighted term.
//	@Tags			search
//	@Produce		json
//	@Param			q				query		string	true	"Query text"
//	@Param			item_types		query		string	false	"Comma-separated item types"
//	@Param			subtype			query		string	false	"Classified subtype"
//	@Param			newspaper_name	query		string	false	"Filter by newspaper"
//	@Param			date_from		query		string	false	"Earliest edition date"
//	@Param			date_to			query		string	false	"Latest edition date"
//	@Param			skip			query		int		false	"Pagination offset"
//	@Param			limit			query		int		false	"Pagination limit"
//	@Success		200	{object}	SearchResponse
//	@Failure		400	{object}	ErrorResponse
//	@Router			/api/search [get]
func (e *GlobalSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	runSearch(w, r, queryFromRequest(r))
}

func (e *GlobalSearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var itemTypes, newspaper string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search items across all editions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("q", strings.Join(args, " "))
			if itemTypes != "" {
				params.Set("item_types", itemTypes)
			}
			if newspaper != "" {
				params.Set("newspaper_name", newspaper)
			}
			var resp SearchResponse
			if err := client.Get(cmd.Context(), "/api/search?"+params.Encode(), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&itemTypes, "types", "", "comma-separated item types (STORY,AD,CLASSIFIED)")
	cmd.Flags().StringVar(&newspaper, "newspaper", "", "filter by newspaper name")
	return cmd
}

// EditionSearchEndpoint handles GET /api/editions/{id}/search.
type EditionSearchEndpoint struct{}

var _ api.Endpoint = (*EditionSearchEndpoint)(nil)

func (e *EditionSearchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/search", e.handler
}

func (e *EditionSearchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Search items within one edition
//	@Tags		search
//	@Produce	json
//	@Param		id			path		string	true	"Edition id"
//	@Param		q			query		string	true	"Query text"
//	@Param		item_types	query		string	false	"Comma-separated item types"
//	@Param		subtype		query		string	false	"Classified subtype"
//	@Param		skip		query		int		false	"Pagination offset"
//	@Param		limit		query		int		false	"Pagination limit"
//	@Success	200	{object}	SearchResponse
//	@Failure	400	{object}	ErrorResponse
//	@Router		/api/editions/{id}/search [get]
func (e *EditionSearchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := queryFromRequest(r)
	q.EditionID = r.PathValue("id")
	// Newspaper/date filters are global-search concerns.
	q.NewspaperName = ""
	q.DateFrom = ""
	q.DateTo = ""
	runSearch(w, r, q)
}

func (e *EditionSearchEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "search-edition <edition-id> <query>",
		Short: "Search items within one edition",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			params := url.Values{}
			params.Set("q", strings.Join(args[1:], " "))
			var resp SearchResponse
			path := "/api/editions/" + args[0] + "/search?" + params.Encode()
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
