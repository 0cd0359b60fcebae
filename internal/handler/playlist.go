package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/smartplaylist/api/internal/model"
	"github.com/smartplaylist/api/internal/service"
	"github.com/smartplaylist/api/internal/store"
	"github.com/smartplaylist/api/pkg/response"
)

type PlaylistHandler struct {
	service   *service.PlaylistService
	validator *validator.Validate
	maxCount  int
}

func NewPlaylistHandler(svc *service.PlaylistService, v *validator.Validate, maxCount int) *PlaylistHandler {
	if maxCount <= 0 {
		maxCount = 50
	}
	return &PlaylistHandler{
		service:   svc,
		validator: v,
		maxCount:  maxCount,
	}
}

// Create handles POST /api/playlists
func (h *PlaylistHandler) Create(c *fiber.Ctx) error {
	var req model.CreatePlaylistRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	// The count ceiling comes from pipeline.max_count, not a struct tag.
	if req.TargetCount != nil && *req.TargetCount > h.maxCount {
		return response.ValidationError(c, "Validation failed", map[string]string{"target_count": "max"})
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		return response.ServiceError(c, "Failed to submit playlist job")
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/playlists/:jobId/status
func (h *PlaylistHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/playlists/:jobId/result. Both succeeded and
// failed jobs answer 200 with the pipeline result.
func (h *PlaylistHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.UserContext(), jobID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrJobNotFound):
			return response.NotFound(c, "Job not found")
		case errors.Is(err, service.ErrJobNotFinished):
			status, _ := h.service.GetStatus(c.UserContext(), jobID)
			s := ""
			if status != nil {
				s = string(status.Status)
			}
			return response.JobNotFinished(c, s)
		case errors.Is(err, service.ErrJobTimedOut):
			return response.JobTimedOut(c, "Job exceeded its deadline; no result is available")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}
