package routes

import (
	"errors"
	"net/http"

	"documind/internal/logger"
	"documind/internal/orchestrator"
	"documind/middleware"
	"documind/models"
	"documind/utils"

	"github.com/gin-gonic/gin"
)

type registerDocumentRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	RawText    string `json:"raw_text"`
}

// SetupTaskRoutes mounts the document and task API. submitLimit guards the
// endpoints that start work.
func SetupTaskRoutes(router *gin.Engine, manager *orchestrator.Manager, submitLimit gin.HandlerFunc) {
	api := router.Group("/api/v1")

	documents := api.Group("/documents")
	documents.POST("", registerDocument(manager))
	documents.DELETE("/:id/vectors", invalidateDocument(manager))

	tasks := api.Group("/tasks")
	if submitLimit != nil {
		tasks.POST("", submitLimit, submitTask(manager))
	} else {
		tasks.POST("", submitTask(manager))
	}
	tasks.GET("/:id", getTask(manager))
	tasks.GET("/:id/usage", getTaskUsage(manager))
}

func registerDocument(manager *orchestrator.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if err := manager.RegisterDocument(c.Request.Context(), req.DocumentID, req.RawText); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"document_id": req.DocumentID})
	}
}

func invalidateDocument(manager *orchestrator.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := manager.InvalidateDocument(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func submitTask(manager *orchestrator.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orchestrator.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		taskID, err := manager.Submit(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set("task_id", taskID)
		c.JSON(http.StatusAccepted, gin.H{
			"task_id": taskID,
			"status":  models.TaskPending,
		})
	}
}

func getTask(manager *orchestrator.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := manager.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func getTaskUsage(manager *orchestrator.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := manager.Usage(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		var in, out int
		for _, r := range records {
			in += r.InputTokens
			out += r.OutputTokens
		}
		c.JSON(http.StatusOK, gin.H{
			"task_id":       c.Param("id"),
			"usage":         records,
			"input_tokens":  in,
			"output_tokens": out,
		})
	}
}

func respondBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		utils.RespondWithTooLarge(c, tooLarge.Limit, 0)
		return
	}
	utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		utils.RespondWithError(c, http.StatusBadRequest, "invalid_request", err.Error(), nil)
	case errors.Is(err, models.ErrDocumentNotFound):
		utils.RespondWithError(c, http.StatusNotFound, "document_not_found", "Document not found", nil)
	case errors.Is(err, models.ErrTaskNotFound):
		utils.RespondWithError(c, http.StatusNotFound, "task_not_found", "Task not found", nil)
	default:
		logger.Error("Request failed",
			"request_id", middleware.GetRequestID(c),
			"path", c.FullPath(),
			"error", err,
		)
		utils.RespondWithInternalError(c, "Internal server error", nil)
	}
}
