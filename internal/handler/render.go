package handler

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/lyricmotion/api/internal/model"
	"github.com/lyricmotion/api/internal/service"
	"github.com/lyricmotion/api/pkg/response"
)

type RenderHandler struct {
	service   *service.RenderService
	outputDir string
}

func NewRenderHandler(svc *service.RenderService, outputDir string) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		outputDir: outputDir,
	}
}

// Submit handles POST /render (multipart/form-data)
func (h *RenderHandler) Submit(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.ValidationError(c, "Expected multipart form data", nil)
	}

	result, err := h.service.Submit(form)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return response.ValidationError(c, ve.Message, fiber.Map{"field": ve.Field})
		}
		log.Printf("Render submission failed: %v", err)
		return response.ServiceError(c, "Failed to create render job")
	}

	return response.Created(c, result)
}

// Status handles GET /render/:id/status
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, ok := h.service.GetStatus(jobID)
	if !ok {
		return response.NotFound(c, "Job not found")
	}
	return response.OK(c, result)
}

// Download handles GET /render/:id/download
func (h *RenderHandler) Download(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, ok := h.service.GetJob(jobID)
	if !ok {
		return response.NotFound(c, "Job not found")
	}
	if job.Status != model.JobStatusCompleted {
		return response.ValidationError(c, "Job is not completed", fiber.Map{"status": job.Status})
	}

	target, err := h.resolveOutputPath(job.OutputPath)
	if err != nil {
		log.Printf("Blocked download for job %s: output path %q escapes the output directory", jobID, job.OutputPath)
		return response.Forbidden(c, "Access denied")
	}
	if _, err := os.Stat(target); err != nil {
		return response.NotFound(c, "Output file not found")
	}

	return c.Download(target, "music-video-"+jobID+".mov")
}

// resolveOutputPath confines the stored output location to the configured
// output directory. The file is never opened when the check fails.
func (h *RenderHandler) resolveOutputPath(outputPath string) (string, error) {
	root, err := filepath.Abs(h.outputDir)
	if err != nil {
		return "", err
	}
	target, err := filepath.Abs(outputPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", os.ErrPermission
	}
	return target, nil
}
