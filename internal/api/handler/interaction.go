package handler

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/calebwren/rapport/internal/domain"
	"github.com/calebwren/rapport/internal/service"
	"github.com/calebwren/rapport/internal/storage"
)

// InteractionHandler handles audio submission and job status endpoints.
type InteractionHandler struct {
	jobs        *service.JobService
	objects     storage.ObjectStorage
	maxUploadMB int
	allowedExts map[string]bool
}

// NewInteractionHandler creates a new interaction handler.
// Parameters:
//   - jobs: job lifecycle service.
//   - objects: object storage for uploaded audio.
//   - maxUploadMB: upload size cap in megabytes.
//   - allowedExts: accepted audio file extensions (with leading dot).
// Returns:
//   - *InteractionHandler: initialized handler.
func NewInteractionHandler(jobs *service.JobService, objects storage.ObjectStorage, maxUploadMB int, allowedExts []string) *InteractionHandler {
	exts := make(map[string]bool, len(allowedExts))
	for _, e := range allowedExts {
		exts[strings.ToLower(e)] = true
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &InteractionHandler{
		jobs:        jobs,
		objects:     objects,
		maxUploadMB: maxUploadMB,
		allowedExts: exts,
	}
}

// Submit handles POST /api/v1/interactions. It validates the multipart
// submission, stores the audio and creates the workflow job. Validation
// failures are rejected here; no job row is created for them.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InteractionHandler) Submit(c *gin.Context) {
	userID := strings.TrimSpace(c.PostForm("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "user_id is required",
		})
		return
	}

	mode := domain.Mode(c.PostForm("mode"))
	if mode != domain.ModeLive && mode != domain.ModeRecap {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("mode must be %q or %q", domain.ModeLive, domain.ModeRecap),
		})
		return
	}

	variant := domain.Variant(c.DefaultPostForm("variant", string(domain.VariantMultiSource)))
	if variant != domain.VariantBasic && variant != domain.VariantMultiSource {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("variant must be %q or %q", domain.VariantBasic, domain.VariantMultiSource),
		})
		return
	}

	var enabled []domain.SourceTag
	if raw := strings.TrimSpace(c.PostForm("enabled_sources")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			tag, err := domain.ParseSourceTag(strings.TrimSpace(part))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error": err.Error(),
				})
				return
			}
			enabled = append(enabled, tag)
		}
	}

	file, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Audio file is required",
		})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !h.allowedExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Unsupported audio format %q", ext),
		})
		return
	}
	if file.Size > int64(h.maxUploadMB)<<20 {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("Audio exceeds the %d MB upload limit", h.maxUploadMB),
		})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read upload: " + err.Error(),
		})
		return
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	audioKey := "audio/" + uuid.NewString() + ext
	if err := h.objects.Upload(c.Request.Context(), audioKey, src, file.Size, contentType); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store audio: " + err.Error(),
		})
		return
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), service.SubmitInput{
		UserID:         userID,
		Mode:           mode,
		Variant:        variant,
		AudioKey:       audioKey,
		ContactName:    strings.TrimSpace(c.PostForm("contact_name")),
		EnabledSources: enabled,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":     job.ID,
		"status":     "pending",
		"status_url": "/api/v1/interactions/" + job.ID,
	})
}

// Get handles GET /api/v1/interactions/:id, returning the job snapshot.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InteractionHandler) Get(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, jobSnapshot(job))
}

// Cancel handles POST /api/v1/interactions/:id/cancel. Cancelling an
// already-terminal job is a no-op that returns the current state.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InteractionHandler) Cancel(c *gin.Context) {
	job, err := h.jobs.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusAccepted, jobSnapshot(job))
}

// ListByUser handles GET /api/v1/users/:user_id/interactions.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *InteractionHandler) ListByUser(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	jobs, err := h.jobs.ListUserJobs(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	items := make([]gin.H, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobSnapshot(&jobs[i]))
	}
	c.JSON(http.StatusOK, gin.H{
		"interactions": items,
		"total":        len(items),
	})
}

// jobSnapshot shapes a job row for status polling. Result appears only on
// SUCCESS, error only on ERROR; internal stage data never leaves the server.
func jobSnapshot(job *domain.Job) gin.H {
	out := gin.H{
		"job_id":     job.ID,
		"user_id":    job.UserID,
		"variant":    job.Variant,
		"stage":      job.Stage,
		"progress":   job.Progress,
		"created_at": job.CreatedAt,
	}
	if job.StartedAt != nil {
		out["started_at"] = job.StartedAt
	}
	if job.CompletedAt != nil {
		out["completed_at"] = job.CompletedAt
	}
	if job.Stage == domain.StageSuccess {
		out["result"] = job.Result
	}
	if job.Stage == domain.StageError {
		out["error"] = job.ErrorMessage
	}
	return out
}
