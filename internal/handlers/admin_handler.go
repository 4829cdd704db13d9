package handlers

import (
	"errors"
	"net/http"
	"strings"

	"proof-host/internal/dto"
	"proof-host/internal/repository"
	"proof-host/internal/services"
	"proof-host/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminHandler operator endpoints: pause switch, task listing and attempt history
type AdminHandler struct {
	service *services.ProofService
	gate    *services.AdmissionGate
	store   repository.TaskRepository
	logger  *logrus.Logger
}

func NewAdminHandler(service *services.ProofService, store repository.TaskRepository, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{service: service, gate: service.Gate(), store: store, logger: logger}
}

// GetPause returns the admission gate state
// GET /admin/pause
func (h *AdminHandler) GetPause(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": envelopeOK, "paused": h.gate.IsPaused()})
}

// SetPause opens or closes the admission gate
// POST /admin/pause  {"paused": true}
func (h *AdminHandler) SetPause(c *gin.Context) {
	var req dto.V2PauseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Status: envelopeError, Error: "invalid_request", Message: err.Error()})
		return
	}
	changed := h.gate.SetPaused(req.Paused)
	h.logger.WithFields(logrus.Fields{
		"component": "admin",
		"paused":    req.Paused,
		"changed":   changed,
		"client_ip": c.ClientIP(),
	}).Info("🔧 Pause requested")
	c.JSON(http.StatusOK, gin.H{"status": envelopeOK, "paused": req.Paused, "changed": changed})
}

// ListTasks lists current task records by status
// GET /admin/tasks?status=registered,work_in_progress
func (h *AdminHandler) ListTasks(c *gin.Context) {
	statuses := []types.TaskStatus{types.TaskStatusRegistered, types.TaskStatusWorkInProgress}
	if raw := c.Query("status"); raw != "" {
		statuses = statuses[:0]
		for _, s := range strings.Split(raw, ",") {
			statuses = append(statuses, types.TaskStatus(strings.TrimSpace(s)))
		}
	}
	tasks, err := h.store.ListByStatus(c.Request.Context(), statuses...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Status: envelopeError, Error: "internal_error", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": envelopeOK, "count": len(tasks), "tasks": tasks})
}

// TaskHistory lists every attempt recorded for one proof request
// POST /admin/tasks/history  (v2 proof request body)
func (h *AdminHandler) TaskHistory(c *gin.Context) {
	var req dto.V2ProofRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Status: envelopeError, Error: "invalid_request", Message: err.Error()})
		return
	}
	ctx := c.Request.Context()
	outcomes, err := h.service.Query(ctx, types.SingleRequest(req))
	if err != nil {
		c.JSON(httpStatus(err), dto.ErrorResponse{Status: envelopeError, Error: errorCode(err), Message: err.Error()})
		return
	}
	outcome := outcomes[0]
	if outcome.Err != nil && !errors.Is(outcome.Err, types.ErrTaskNotFound) {
		c.JSON(httpStatus(outcome.Err), dto.ErrorResponse{Status: envelopeError, Error: errorCode(outcome.Err), Message: outcome.Err.Error()})
		return
	}

	attempts, err := h.service.History(ctx, outcome.Key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Status: envelopeError, Error: "internal_error", Message: err.Error()})
		return
	}
	if len(attempts) == 0 {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Status: envelopeError, Error: "task_not_found", Message: types.ErrTaskNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   envelopeOK,
		"task_key": outcome.Key.ID(),
		"count":    len(attempts),
		"attempts": attempts,
	})
}

// HealthCheckHandler
// GET /health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "proof-host",
	})
}
