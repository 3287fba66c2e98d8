package endpoints

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/ingest"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// UploadResponse is returned for a successful edition upload.
type UploadResponse struct {
	EditionID     string `json:"edition_id"`
	NewspaperName string `json:"newspaper_name"`
	EditionDate   string `json:"edition_date"`
	Status        string `json:"status"`
}

// UploadEndpoint handles POST /api/editions/upload with a multipart PDF.
type UploadEndpoint struct{}

var _ api.Endpoint = (*UploadEndpoint)(nil)

func (e *UploadEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/upload", e.handler
}

func (e *UploadEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Upload a newspaper edition PDF
//	@Description	Validates the PDF, rejects duplicates by content hash, and creates an UPLOADED edition. Processing is not started.
//	@Tags			editions
//	@Accept			mpfd
//	@Produce		json
//	@Param			pdf				formData	file	true	"Edition PDF"
//	@Param			newspaper_name	formData	string	true	"Newspaper name"
//	@Param			edition_date	formData	string	true	"Edition date (YYYY-MM-DD)"
//	@Success		201	{object}	UploadResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/upload [post]
func (e *UploadEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	const maxMemory = 200 << 20
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("pdf")
	if err != nil {
		writeError(w, http.StatusBadRequest, "pdf file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to read upload: %v", err))
		return
	}

	st := svcctx.StoreFrom(r.Context())
	blobs := svcctx.BlobsFrom(r.Context())
	if st == nil || blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "storage not initialized")
		return
	}

	edition, err := ingest.Ingest(r.Context(), st, blobs, ingest.Request{
		PDF:           data,
		NewspaperName: r.FormValue("newspaper_name"),
		EditionDate:   r.FormValue("edition_date"),
		Logger:        svcctx.LoggerFrom(r.Context()),
	})
	if err != nil {
		switch {
		case err == store.ErrDuplicateEdition:
			writeError(w, http.StatusConflict, "an edition with identical content already exists")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, UploadResponse{
		EditionID:     edition.ID,
		NewspaperName: edition.NewspaperName,
		EditionDate:   edition.EditionDate,
		Status:        string(edition.Status),
	})
}

func (e *UploadEndpoint) Command(getServerURL func() string) *cobra.Command {
	var name, date string
	cmd := &cobra.Command{
		Use:   "upload <pdf-path>",
		Short: "Upload an edition PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp UploadResponse
			fields := map[string]string{
				"newspaper_name": name,
				"edition_date":   date,
			}
			if err := client.UploadFile(cmd.Context(), "/api/editions/upload", args[0], fields, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&name, "newspaper", "", "newspaper name (required)")
	cmd.Flags().StringVar(&date, "date", "", "edition date YYYY-MM-DD (required)")
	cmd.MarkFlagRequired("newspaper")
	cmd.MarkFlagRequired("date")
	return cmd
}

// ListEditionsResponse wraps an edition listing.
type ListEditionsResponse struct {
	Editions []*store.Edition `json:"editions"`
	Count    int              `json:"count"`
}

// ListEditionsEndpoint handles GET /api/editions.
type ListEditionsEndpoint struct{}

var _ api.Endpoint = (*ListEditionsEndpoint)(nil)

func (e *ListEditionsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions", e.handler
}

func (e *ListEditionsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List editions
//	@Tags		editions
//	@Produce	json
//	@Param		newspaper_name	query		string	false	"Filter by newspaper"
//	@Param		status			query		string	false	"Filter by status"
//	@Param		date_from		query		string	false	"Earliest edition date"
//	@Param		date_to			query		string	false	"Latest edition date"
//	@Param		skip			query		int		false	"Pagination offset"
//	@Param		limit			query		int		false	"Pagination limit"
//	@Success	200	{object}	ListEditionsResponse
//	@Failure	500	{object}	ErrorResponse
//	@Router		/api/editions [get]
func (e *ListEditionsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	q := r.URL.Query()
	skip, _ := strconv.Atoi(q.Get("skip"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	editions, err := st.ListEditions(r.Context(), store.EditionFilter{
		NewspaperName: q.Get("newspaper_name"),
		Status:        store.EditionStatus(q.Get("status")),
		DateFrom:      q.Get("date_from"),
		DateTo:        q.Get("date_to"),
		Skip:          skip,
		Limit:         limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListEditionsResponse{Editions: editions, Count: len(editions)})
}

func (e *ListEditionsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var newspaper, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List editions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/editions?newspaper_name=" + newspaper + "&status=" + status
			var resp ListEditionsResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&newspaper, "newspaper", "", "filter by newspaper name")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	return cmd
}

// GetEditionEndpoint handles GET /api/editions/{id}.
type GetEditionEndpoint struct{}

var _ api.Endpoint = (*GetEditionEndpoint)(nil)

func (e *GetEditionEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}", e.handler
}

func (e *GetEditionEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get one edition
//	@Tags		editions
//	@Produce	json
//	@Param		id	path		string	true	"Edition id"
//	@Success	200	{object}	store.Edition
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/editions/{id} [get]
func (e *GetEditionEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	edition, err := st.GetEdition(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, edition)
}

func (e *GetEditionEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <edition-id>",
		Short: "Show one edition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp store.Edition
			if err := client.Get(cmd.Context(), "/api/editions/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
