package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/multiviral/api/internal/service"
	"github.com/multiviral/api/pkg/response"
)

type JobHandler struct {
	jobs   *service.JobService
	export *service.ExportService
}

func NewJobHandler(jobs *service.JobService, export *service.ExportService) *JobHandler {
	return &JobHandler{
		jobs:   jobs,
		export: export,
	}
}

// Generate handles POST /api/generate/:jobId
// @Summary      Start content generation
// @Description  Start the pipeline for an uploaded or failed job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      202 {object} model.StartResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/generate/{jobId} [post]
func (h *JobHandler) Generate(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.jobs.Start(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
// @Summary      Get job status
// @Description  Current status, transcript, results and error of a job
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.JobStatusResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId} [get]
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.jobs.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// List handles GET /api/jobs
// @Summary      List jobs
// @Tags         Jobs
// @Produce      json
// @Success      200 {array} model.JobSummary
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs [get]
func (h *JobHandler) List(c *fiber.Ctx) error {
	result, err := h.jobs.List(c.UserContext())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Export handles POST /api/jobs/:jobId/export
// @Summary      Export job outputs
// @Description  Archive a completed job to object storage and return download links
// @Tags         Jobs
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.ExportResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Router       /api/jobs/{jobId}/export [post]
func (h *JobHandler) Export(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.export.Export(c.UserContext(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// jobError maps service errors onto response envelopes.
func jobError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrConflict):
		return response.Conflict(c, conflictMessage(err))
	default:
		return response.ServiceError(c, err.Error())
	}
}

// conflictMessage strips the sentinel prefix from a wrapped conflict.
func conflictMessage(err error) string {
	msg := err.Error()
	prefix := service.ErrConflict.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
