package endpoints

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/broadsheet-archive/broadsheet/internal/api"
	"github.com/broadsheet-archive/broadsheet/internal/pipeline"
	"github.com/broadsheet-archive/broadsheet/internal/store"
	"github.com/broadsheet-archive/broadsheet/internal/svcctx"
)

// ProcessResponse is returned when a run starts.
type ProcessResponse struct {
	EditionID string `json:"edition_id"`
	RunID     string `json:"run_id"`
	Trigger   string `json:"trigger"`
	Status    string `json:"status"`
}

// ProcessEndpoint handles POST /api/editions/{id}/process.
type ProcessEndpoint struct{}

var _ api.Endpoint = (*ProcessEndpoint)(nil)

func (e *ProcessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/{id}/process", e.handler
}

func (e *ProcessEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start processing an edition
//	@Description	Returns immediately; page work runs in the background. Rejected with 409 while another run is active.
//	@Tags			editions
//	@Produce		json
//	@Param			id	path		string	true	"Edition id"
//	@Success		202	{object}	ProcessResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/{id}/process [post]
func (e *ProcessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	startRun(w, r, pipeline.TriggerInitial)
}

func (e *ProcessEndpoint) Command(getServerURL func() string) *cobra.Command {
	return processCommand(getServerURL, "process", "Start processing an edition", "/process")
}

// ReprocessEndpoint handles POST /api/editions/{id}/reprocess.
type ReprocessEndpoint struct{}

var _ api.Endpoint = (*ReprocessEndpoint)(nil)

func (e *ReprocessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/{id}/reprocess", e.handler
}

func (e *ReprocessEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Reprocess an edition from scratch
//	@Description	Discards items, story groups, and pages, then reruns the whole pipeline.
//	@Tags			editions
//	@Produce		json
//	@Param			id	path		string	true	"Edition id"
//	@Success		202	{object}	ProcessResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/{id}/reprocess [post]
func (e *ReprocessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	startRun(w, r, pipeline.TriggerReprocess)
}

func (e *ReprocessEndpoint) Command(getServerURL func() string) *cobra.Command {
	return processCommand(getServerURL, "reprocess", "Reprocess an edition from scratch", "/reprocess")
}

// startRun is the shared process/reprocess handler body.
func startRun(w http.ResponseWriter, r *http.Request, trigger string) {
	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "orchestrator not initialized")
		return
	}
	editionID := r.PathValue("id")

	run, err := orch.Process(r.Context(), editionID, trigger)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "edition not found")
		case errors.Is(err, store.ErrRunActive):
			writeError(w, http.StatusConflict, "a run is already active for this edition")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ProcessResponse{
		EditionID: editionID,
		RunID:     run.ID,
		Trigger:   run.Trigger,
		Status:    string(store.EditionProcessing),
	})
}

func processCommand(getServerURL func() string, use, short, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <edition-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ProcessResponse
			if err := client.Post(cmd.Context(), "/api/editions/"+args[0]+suffix, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelEndpoint handles POST /api/editions/{id}/cancel.
type CancelEndpoint struct{}

var _ api.Endpoint = (*CancelEndpoint)(nil)

func (e *CancelEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/editions/{id}/cancel", e.handler
}

func (e *CancelEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel the active run
//	@Description	Cancellation is cooperative: the run stops before the next page and keeps partial data.
//	@Tags			editions
//	@Produce		json
//	@Param			id	path		string	true	"Edition id"
//	@Success		202	{object}	map[string]string
//	@Failure		409	{object}	ErrorResponse
//	@Router			/api/editions/{id}/cancel [post]
func (e *CancelEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	editionID := r.PathValue("id")

	if err := orch.Cancel(r.Context(), editionID); err != nil {
		if errors.Is(err, pipeline.ErrNoActiveRun) {
			writeError(w, http.StatusConflict, "edition has no active run")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"edition_id": editionID,
		"status":     "cancellation requested",
	})
}

func (e *CancelEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <edition-id>",
		Short: "Cancel an edition's active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp map[string]string
			if err := client.Post(cmd.Context(), "/api/editions/"+args[0]+"/cancel", nil, &resp); err != nil {
				return err
			}
			fmt.Println("cancellation requested")
			return nil
		},
	}
}

// EditionStatusResponse pairs an edition with its latest run.
type EditionStatusResponse struct {
	Edition   *store.Edition       `json:"edition"`
	LatestRun *store.ExtractionRun `json:"latest_run,omitempty"`
}

// EditionStatusEndpoint handles GET /api/editions/{id}/status.
type EditionStatusEndpoint struct{}

var _ api.Endpoint = (*EditionStatusEndpoint)(nil)

func (e *EditionStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/editions/{id}/status", e.handler
}

func (e *EditionStatusEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Edition progress and latest run stats
//	@Tags		editions
//	@Produce	json
//	@Param		id	path		string	true	"Edition id"
//	@Success	200	{object}	EditionStatusResponse
//	@Failure	404	{object}	ErrorResponse
//	@Router		/api/editions/{id}/status [get]
func (e *EditionStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	st := svcctx.StoreFrom(r.Context())
	editionID := r.PathValue("id")

	edition, err := st.GetEdition(r.Context(), editionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "edition not found")
		return
	}
	resp := EditionStatusResponse{Edition: edition}
	if run, err := st.LatestRun(r.Context(), editionID); err == nil {
		resp.LatestRun = run
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *EditionStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "edition-status <edition-id>",
		Short: "Show edition progress and latest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp EditionStatusResponse
			if err := client.Get(cmd.Context(), "/api/editions/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
