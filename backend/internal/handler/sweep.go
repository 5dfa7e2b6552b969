package handler

import (
	"net/http"

	"github.com/blogmedia/blogmedia/backend/internal/service"
	"github.com/blogmedia/blogmedia/shared/api"
	"github.com/blogmedia/blogmedia/shared/utils"
)

type sweepResponse struct {
	Deleted int                 `json:"deleted"`
	Report  service.SweepReport `json:"report"`
}

// RunSweep reaps files unreferenced for at least the requested hours.
// hours=0 reaps every orphan regardless of age.
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	var body api.SweepRequest
	if err := utils.DecodeValidate(r.Body, &body); err != nil {
		writeError(w, err)
		return
	}

	report, err := h.sweeper.SweepHours(r.Context(), *body.Hours)
	if err != nil {
		writeError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, sweepResponse{Deleted: report.FilesDeleted, Report: report})
}

func (h *Handler) LastSweep(w http.ResponseWriter, r *http.Request) {
	report, ok := h.sweeper.LastSweepReport()
	if !ok {
		http.Error(w, "No sweep has run yet", http.StatusNotFound)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}
