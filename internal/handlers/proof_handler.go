package handlers

import (
	"context"
	"errors"
	"net/http"

	"proof-host/internal/clients"
	"proof-host/internal/dto"
	"proof-host/internal/metrics"
	"proof-host/internal/services"
	"proof-host/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ProofHandler serves the v2 and v3 proof APIs
type ProofHandler struct {
	service *services.ProofService
	logger  *logrus.Logger
}

// NewProofHandler creates a new proof handler
func NewProofHandler(service *services.ProofService, logger *logrus.Logger) *ProofHandler {
	return &ProofHandler{service: service, logger: logger}
}

// httpStatus maps an orchestration error to its HTTP status code
func httpStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrConfiguration), errors.Is(err, clients.ErrNetworkNotFound):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTaskNotFound), errors.Is(err, clients.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrBackpressure):
		return http.StatusTooManyRequests
	case errors.Is(err, types.ErrSystemPaused), errors.Is(err, types.ErrActorStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// errorCode is the machine-readable code of a batch-level error
func errorCode(err error) string {
	switch {
	case errors.Is(err, types.ErrConfiguration):
		return "invalid_request"
	case errors.Is(err, types.ErrSystemPaused):
		return "system_paused"
	case errors.Is(err, types.ErrBackpressure):
		return "backpressure"
	case errors.Is(err, types.ErrTaskNotFound):
		return "task_not_found"
	}
	return "internal_error"
}

func (h *ProofHandler) fail(c *gin.Context, endpoint string, err error) {
	code := errorCode(err)
	metrics.HostErrorCount.WithLabelValues(endpoint, code).Inc()
	h.logger.WithFields(logrus.Fields{
		"component": "proof_handler",
		"endpoint":  endpoint,
		"error":     err.Error(),
	}).Warn("❌ Request rejected")
	c.JSON(httpStatus(err), dto.ErrorResponse{Status: envelopeError, Error: code, Message: err.Error()})
}

func (h *ProofHandler) bind(c *gin.Context, endpoint string, req interface{}) bool {
	metrics.HostRequestCount.WithLabelValues(endpoint).Inc()
	if err := c.ShouldBindJSON(req); err != nil {
		h.fail(c, endpoint, types.NewConfigurationError("", err.Error()))
		return false
	}
	return true
}

// ============================================================================
// API v2 - one proof request per call
// ============================================================================

// SubmitV2 submits a single proof request
// POST /v2/proof
func (h *ProofHandler) SubmitV2(c *gin.Context) {
	const endpoint = "v2_proof"
	var req dto.V2ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Submit(c.Request.Context(), types.SingleRequest(req))
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	h.writeV2Status(c, endpoint, outcomes[0])
}

// StatusV2 reports the status of a single proof request without creating it
// POST /v2/proof/status
func (h *ProofHandler) StatusV2(c *gin.Context) {
	const endpoint = "v2_proof_status"
	var req dto.V2ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Query(c.Request.Context(), types.SingleRequest(req))
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	h.writeV2Status(c, endpoint, outcomes[0])
}

func (h *ProofHandler) writeV2Status(c *gin.Context, endpoint string, outcome services.TaskOutcome) {
	body := ToV2Status(outcome.Status(), outcome.Err)
	if outcome.Err != nil {
		metrics.HostErrorCount.WithLabelValues(endpoint, errTaskFailed).Inc()
		c.JSON(httpStatus(outcome.Err), body)
		return
	}
	body.ProofType = outcome.Request.ProofType
	c.JSON(http.StatusOK, body)
}

// CancelV2 cancels a single proof request
// POST /v2/proof/cancel
func (h *ProofHandler) CancelV2(c *gin.Context) {
	const endpoint = "v2_proof_cancel"
	var req dto.V2ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Cancel(c.Request.Context(), types.SingleRequest(req))
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	outcome := outcomes[0]
	body := ToV2CancelStatus(outcome.Status(), outcome.Err)
	if outcome.Err != nil {
		metrics.HostErrorCount.WithLabelValues(endpoint, errCancelFailed).Inc()
		c.JSON(httpStatus(outcome.Err), body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// ============================================================================
// API v3 - aggregation batches
// ============================================================================

// SubmitV3 submits every sub-request of an aggregation batch
// POST /v3/proof
func (h *ProofHandler) SubmitV3(c *gin.Context) {
	const endpoint = "v3_proof"
	var req dto.V3ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	c.JSON(http.StatusOK, h.v3Batch(endpoint, outcomes))
}

// StatusV3 reports every sub-request of a batch without creating tasks
// POST /v3/proof/status
func (h *ProofHandler) StatusV3(c *gin.Context) {
	const endpoint = "v3_proof_status"
	var req dto.V3ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Query(c.Request.Context(), req)
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	c.JSON(http.StatusOK, h.v3Batch(endpoint, outcomes))
}

func (h *ProofHandler) v3Batch(endpoint string, outcomes []services.TaskOutcome) dto.V3BatchStatus {
	batch := dto.V3BatchStatus{Status: envelopeOK, Tasks: make([]dto.V3Status, 0, len(outcomes))}
	for _, outcome := range outcomes {
		status := ToV3Status(outcome.Status(), outcome.Err)
		if outcome.Err != nil {
			metrics.HostErrorCount.WithLabelValues(endpoint, errTaskFailed).Inc()
		} else {
			status.TaskKey = outcome.Key.ID()
		}
		status.BlockNumber = outcome.Request.BlockNumber
		status.ProofType = outcome.Request.ProofType
		batch.Tasks = append(batch.Tasks, status)
	}
	return batch
}

// CancelV3 cancels every sub-request of a batch
// POST /v3/proof/cancel
func (h *ProofHandler) CancelV3(c *gin.Context) {
	const endpoint = "v3_proof_cancel"
	var req dto.V3ProofRequest
	if !h.bind(c, endpoint, &req) {
		return
	}
	outcomes, err := h.service.Cancel(c.Request.Context(), req)
	if err != nil {
		h.fail(c, endpoint, err)
		return
	}
	batch := dto.V3BatchCancelStatus{Status: envelopeOK, Tasks: make([]dto.V3CancelStatus, 0, len(outcomes))}
	for _, outcome := range outcomes {
		status := ToV3CancelStatus(outcome.Status(), outcome.Err)
		if outcome.Err != nil {
			metrics.HostErrorCount.WithLabelValues(endpoint, errCancelFailed).Inc()
		} else {
			status.TaskKey = outcome.Key.ID()
		}
		status.BlockNumber = outcome.Request.BlockNumber
		batch.Tasks = append(batch.Tasks, status)
	}
	c.JSON(http.StatusOK, batch)
}
