package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/briefwell/briefwell/pkg/services"
)

type APIHandlers struct {
	reportService *services.Report
}

func NewAPIHandlers(reportService *services.Report) *APIHandlers {
	return &APIHandlers{
		reportService: reportService,
	}
}

// RegisterRoutes wires all API routes onto the app.
func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	reports := app.Group("/reports")
	reports.Get("/", h.GetReports)
	reports.Post("/", h.CreateReport)
	reports.Get("/:id", h.GetReport)
	reports.Patch("/:id", h.UpdateReport)
	reports.Delete("/:id", h.DeleteReport)
	reports.Post("/:id/activate", h.ActivateReport)
	reports.Post("/:id/deactivate", h.DeactivateReport)
	reports.Post("/:id/run", h.RunReport)
	reports.Get("/:id/executions", h.GetExecutions)
	reports.Post("/:id/executions/:periodKey/resume", h.ResumeExecution)
	reports.Post("/:id/executions/:periodKey/resend", h.ResendExecution)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.reportService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetReports(c fiber.Ctx) error {
	reports, err := h.reportService.ListReports(c.Context(), c.Query("owner_id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"reports":     reports,
		"total_count": len(reports),
	})
}

func (h *APIHandlers) CreateReport(c fiber.Ctx) error {
	var req services.CreateReportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	created, err := h.reportService.CreateReport(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetReport(c fiber.Ctx) error {
	report, err := h.reportService.GetReport(c.Context(), c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) UpdateReport(c fiber.Ctx) error {
	var req services.UpdateReportRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	updated, err := h.reportService.UpdateReport(c.Context(), c.Params("id"), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteReport(c fiber.Ctx) error {
	id := c.Params("id")

	if _, err := h.reportService.GetReport(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	if err := h.reportService.DeleteReport(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ActivateReport(c fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *APIHandlers) DeactivateReport(c fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *APIHandlers) setActive(c fiber.Ctx, active bool) error {
	report, err := h.reportService.SetActive(c.Context(), c.Params("id"), active)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) RunReport(c fiber.Ctx) error {
	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	if err := h.reportService.RunNow(c.Context(), c.Params("id"), req.RequestedBy); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) GetExecutions(c fiber.Ctx) error {
	limit := 50

	if limitStr := c.Query("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return badRequest(c, "Invalid limit parameter")
		}

		limit = parsed
	}

	records, err := h.reportService.Executions(c.Context(), c.Params("id"), limit)
	if err != nil {
		return handleServiceError(c, err)
	}

	executions := make([]ExecutionResponse, 0, len(records))
	for _, record := range records {
		executions = append(executions, toExecutionResponse(record))
	}

	return c.JSON(fiber.Map{
		"executions":  executions,
		"total_count": len(executions),
	})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.reportService.Resume(c.Context(), c.Params("id"), c.Params("periodKey"), req.RequestedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

func (h *APIHandlers) ResendExecution(c fiber.Ctx) error {
	var req RunRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.reportService.Resend(c.Context(), c.Params("id"), c.Params("periodKey"), req.RequestedBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}
