package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"smartai/internal/app/service"
	"smartai/internal/common"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxSubmissionBytes = 32 << 20

type GradingHandler struct {
	gradingService *service.GradingService
	logger         *slog.Logger
}

func NewGradingHandler(gs *service.GradingService, logger *slog.Logger) *GradingHandler {
	return &GradingHandler{gradingService: gs, logger: logger}
}

func (h *GradingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.submitJob)
	r.Get("/", h.listJobs)
	r.Route("/{jobID}", func(r chi.Router) {
		r.Get("/", h.getJob)
		r.Get("/results", h.getResults)
		r.Get("/export.csv", h.exportResults)
		r.Post("/cancel", h.cancelJob)
	})
}

func (h *GradingHandler) submitJob(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmissionBytes)).Decode(&req); err != nil {
		common.RespondWithMessage(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}
	defer r.Body.Close()

	job, err := h.gradingService.SubmitJob(r.Context(), req)
	if err != nil {
		h.logError(r, "submit grading job", err)
		common.RespondWithError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, job) // grading continues in the background
}

func (h *GradingHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			common.RespondWithMessage(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	jobs, err := h.gradingService.ListJobs(r.Context(), limit)
	if err != nil {
		h.logError(r, "list grading jobs", err)
		common.RespondWithError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

func (h *GradingHandler) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.gradingService.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		common.RespondWithError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, job)
}

func (h *GradingHandler) getResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.gradingService.GetResults(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.logError(r, "get grading results", err)
		common.RespondWithError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, res)
}

func (h *GradingHandler) exportResults(w http.ResponseWriter, r *http.Request) {
	res, err := h.gradingService.GetResults(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.logError(r, "export grading results", err)
		common.RespondWithError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+exportFilename(res)+`"`)
	w.WriteHeader(http.StatusOK)
	if err := writeResultsCSV(w, res); err != nil {
		h.logger.Error("failed to write csv export", "job_id", res.JobID, "error", err)
	}
}

func (h *GradingHandler) cancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.gradingService.CancelJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.logError(r, "cancel grading job", err)
		common.RespondWithError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, job)
}

// logError logs only server-side failures; client errors are answered and dropped.
func (h *GradingHandler) logError(r *http.Request, op string, err error) {
	if common.HTTPStatusFromError(err) < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(r.Context(), "request failed", "op", op, "path", r.URL.Path, "error", err)
}
