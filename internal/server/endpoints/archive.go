package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// ArchiveResponse reports an archival outcome.
type ArchiveResponse struct {
	EditionID     string `json:"edition_id"`
	ArchiveStatus string `json:"archive_status"`
}

// ArchiveNowEndpoint handles POST /api/editions/{id}/archive. Also retries
// editions stuck in ARCHIVE_FAILED.
type ArchiveNowEndpoint struct{}

var _ api.Endpoint = (*ArchiveNowEndpoint)(nil)

func (e *ArchiveNowEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/{id}/archive", e.handler
}

func (e *ArchiveNowEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Archive an edition now
//	@Description	Copies the PDF and page assets to the archive backend and flips storage over.
//	@Tags			editions
//	@Produce		json
//	@Param			id	path		string	true	"Edition id"
//	@Success		200	{object}	ArchiveResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/{id}/archive [post]
func (e *ArchiveNowEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	if err := orch.ArchiveNow(r.Context(), editionID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "edition not found")
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	edition, err := st.GetEdition(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{
		EditionID:     editionID,
		ArchiveStatus: string(edition.ArchiveStatus),
	})
}

func (e *ArchiveNowEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <edition-id>",
		Short: "Archive an edition now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ArchiveResponse
			if err := client.Post(cmd.Context(), "/api/editions/"+args[0]+"/archive", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
