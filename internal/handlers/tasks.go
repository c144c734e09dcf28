// Package handlers exposes the task API over HTTP.
package handlers

import (
	"errors"
	"net/http"

	"taskflow/backend/internal/middleware"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/repositories"
	"taskflow/backend/internal/services"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
	logger      *log.Logger
}

func NewTaskHandler(taskService services.TaskService, logger *log.Logger) *TaskHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &TaskHandler{taskService: taskService, logger: logger}
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	tasks, err := h.taskService.ListTasks(c.Request.Context())
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponses(tasks))
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	task, err := h.taskService.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var payload models.TaskCreate
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.invalidBody(c, err)
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), payload)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.NewTaskResponse(task))
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id := c.Param("id")
	if err := repositories.ValidateTaskID(id); err != nil {
		h.handleTaskError(c, err)
		return
	}

	var payload models.TaskUpdate
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.invalidBody(c, err)
		return
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), id, payload)
	if err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.NewTaskResponse(task))
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.handleTaskError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
		"id":      id,
	})
}

func (h *TaskHandler) invalidBody(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusUnprocessableEntity,
		middleware.ErrorBody("validation_error", "Request body must be a valid JSON object"))
}

func (h *TaskHandler) handleTaskError(c *gin.Context, err error) {
	_ = c.Error(err)

	var validationErr *models.ValidationError
	switch {
	case errors.Is(err, repositories.ErrInvalidTaskID):
		c.JSON(http.StatusBadRequest, middleware.ErrorBody("invalid_id", "Invalid task ID format"))
	case errors.Is(err, models.ErrNoFieldsToUpdate):
		c.JSON(http.StatusBadRequest, middleware.ErrorBody("no_fields_to_update", "No fields to update"))
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, middleware.ErrorBody("validation_error", validationErr.Error()))
	case errors.Is(err, repositories.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, middleware.ErrorBody("not_found", "Task not found"))
	default:
		h.logger.Error("task request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"request_id", middleware.GetRequestID(c),
			"err", err,
		)
		c.JSON(http.StatusInternalServerError, middleware.ErrorBody("internal_error", "Internal server error"))
	}
}
