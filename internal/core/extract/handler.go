package extract

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"leadengine/internal/core/export"
	"leadengine/internal/core/plan"
	"leadengine/internal/platform/store"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// ownerID identifies the calling user. Authentication lives upstream; the
// gateway injects the resolved user id.
func ownerID(c *fiber.Ctx) string {
	if id := c.Get("X-User-Id"); id != "" {
		return id
	}
	return "default"
}

func errJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"success": false, "error": err.Error()})
}

func mapErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return errJSON(c, fiber.StatusBadRequest, err)
	case errors.Is(err, store.ErrNotFound):
		return errJSON(c, fiber.StatusNotFound, err)
	case errors.Is(err, ErrNotRunning), errors.Is(err, ErrNotRestartable):
		return errJSON(c, fiber.StatusConflict, err)
	default:
		return errJSON(c, fiber.StatusInternalServerError, err)
	}
}

func (h *Handler) HandleCreateJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return errJSON(c, fiber.StatusBadRequest, errors.New("invalid body"))
	}
	job, err := h.svc.Create(c.Context(), ownerID(c), req)
	if err != nil {
		return mapErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "job": job})
}

func (h *Handler) HandleListJobs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	jobs, err := h.svc.List(c.Context(), ownerID(c), limit, offset)
	if err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "jobs": jobs})
}

func (h *Handler) HandleGetJob(c *fiber.Ctx) error {
	job, err := h.svc.Get(c.Context(), c.Params("jobId"), ownerID(c))
	if err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "job": job})
}

func (h *Handler) HandleCancelJob(c *fiber.Ctx) error {
	if err := h.svc.Cancel(c.Context(), c.Params("jobId"), ownerID(c)); err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "cancellation requested"})
}

func (h *Handler) HandleRestartJob(c *fiber.Ctx) error {
	if err := h.svc.Restart(c.Context(), c.Params("jobId"), ownerID(c)); err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "job restarted"})
}

func (h *Handler) HandleDeleteJob(c *fiber.Ctx) error {
	if err := h.svc.Delete(c.Context(), c.Params("jobId"), ownerID(c)); err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "job deleted"})
}

func (h *Handler) HandleListResults(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	jobID := c.Params("jobId")
	leads, total, err := h.svc.Leads(c.Context(), jobID, ownerID(c), limit, offset)
	if err != nil {
		return mapErr(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"job_id":  jobID,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"results": leads,
	})
}

// HandleExport streams the lead set in csv, json or xlsx. It never blocks on
// job completion; a failed or cancelled run exports its partial leads.
func (h *Handler) HandleExport(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return errJSON(c, fiber.StatusBadRequest, err)
	}
	jobID := c.Params("jobId")
	leads, err := h.svc.AllLeads(c.Context(), jobID, ownerID(c))
	if err != nil {
		return mapErr(c, err)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, leads); err != nil {
		return mapErr(c, err)
	}
	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=leads_%s.%s", jobID, format.Extension()))
	return c.Send(buf.Bytes())
}

func (h *Handler) HandleListCategories(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"success": true, "categories": plan.ValidCategories})
}
