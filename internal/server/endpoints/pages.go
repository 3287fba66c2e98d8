package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// PageMetricsResponse wraps per-page extraction metrics.
type PageMetricsResponse struct {
	EditionID string              `json:"edition_id"`
	Pages     []store.PageMetrics `json:"pages"`
}

// ListPagesEndpoint handles GET /api/editions/{id}/pages.
type ListPagesEndpoint struct{}

var _ api.Endpoint = (*ListPagesEndpoint)(nil)

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Per-page extraction metrics for an edition
//	@Tags		pages
//	@Produce	json
//	@Param		id	path		string	true	"Edition id"
//	@Success	200	{object}	PageMetricsResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/editions/{id}/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	metrics, err := st.PageMetricsList(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PageMetricsResponse{EditionID: editionID, Pages: metrics})
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <edition-id>",
		Short: "Show per-page extraction metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PageMetricsResponse
			if err := client.Get(cmd.Context(), "/api/editions/"+args[0]+"/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// LowConfidencePagesEndpoint handles GET /api/editions/{id}/pages/low-confidence.
// Review tooling uses it to find pages worth a targeted re-OCR.
type LowConfidencePagesEndpoint struct{}

var _ api.Endpoint = (*LowConfidencePagesEndpoint)(nil)

func (e *LowConfidencePagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/pages/low-confidence", e.handler
}

func (e *LowConfidencePagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List OCR pages below a confidence threshold
//	@Tags		pages
//	@Produce	json
//	@Param		id			path		string	true	"Edition id"
//	@Param		threshold	query		int		false	"Confidence cutoff (default from config)"
//	@Success	200	{object}	PageMetricsResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/editions/{id}/pages/low-confidence [get]
func (e *LowConfidencePagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	threshold := 0
	if v := r.URL.Query().Get("threshold"); v != "" {
		threshold, _ = strconv.Atoi(v)
	}
	if threshold <= 0 {
		if mgr := svcctx.ConfigFrom(r.Context()); mgr != nil {
			threshold = mgr.Get().Extract.LowConfidenceThreshold
		}
	}
	if threshold <= 0 {
		threshold = 70
	}

	metrics, err := st.PageMetricsList(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var low []store.PageMetrics
	for _, m := range metrics {
		if m.OCRUsed && m.OCRConfidence != nil && *m.OCRConfidence < threshold {
			low = append(low, m)
		}
	}
	writeJSON(w, http.StatusOK, PageMetricsResponse{EditionID: editionID, Pages: low})
}

func (e *LowConfidencePagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var threshold int
	cmd := &cobra.Command{
		Use:   "low-confidence <edition-id>",
		Short: "List OCR pages below a confidence threshold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/editions/" + args[0] + "/pages/low-confidence"
			if threshold > 0 {
				path += "?threshold=" + strconv.Itoa(threshold)
			}
			var resp PageMetricsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().IntVar(&threshold, "threshold", 0, "confidence cutoff (default from server config)")
	return cmd
}

// ReOCRPageEndpoint handles POST /api/editions/{id}/pages/{page}/reocr.
type ReOCRPageEndpoint struct{}

var _ api.Endpoint = (*ReOCRPageEndpoint)(nil)

func (e *ReOCRPageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/{id}/pages/{page}/reocr", e.handler
}

func (e *ReOCRPageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Re-run OCR for a single page
//	@Description	Rewrites only the page row. Items built from the previous extraction are untouched until a full reprocess.
//	@Tags			pages
//	@Produce		json
//	@Param			id		path		string	true	"Edition id"
//	@Param			page	path		int		true	"Page number (1-based)"
//	@Success		200	{object}	store.Page
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/{id}/pages/{page}/reocr [post]
func (e *ReOCRPageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	editionID := r.PathValue("id")
	pageNumber, err := strconv.Atoi(r.PathValue("page"))
	if err != nil || pageNumber < 1 {
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}

	page, err := orch.ReOCRPage(r.Context(), editionID, pageNumber)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "edition or page not found")
		case errors.Is(err, store.ErrRunActive):
			writeError(w, http.StatusConflict, "a full run is active; re-OCR is rejected")
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (e *ReOCRPageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "reocr <edition-id> <page>",
		Short: "Re-run OCR for one page",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.Page
			path := "/api/editions/" + args[0] + "/pages/" + args[1] + "/reocr"
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
