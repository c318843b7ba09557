package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openlibraryenvironment/dcb-service-sub000/internal/models"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/report"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/repository"
	"github.com/openlibraryenvironment/dcb-service-sub000/internal/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine   *workflow.Service
	requests *repository.PatronRequestRepository
	audit    *repository.AuditRepository
	exporter *report.Exporter
	logger   *zap.Logger
}

// NewHandlers creates a Handlers instance
func NewHandlers(
	engine *workflow.Service,
	requests *repository.PatronRequestRepository,
	audit *repository.AuditRepository,
	exporter *report.Exporter,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:   engine,
		requests: requests,
		audit:    audit,
		exporter: exporter,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SubmitRequestBody is the payload for creating a patron request.
type SubmitRequestBody struct {
	PatronHostLmsCode  string `json:"patron_host_lms_code" binding:"required"`
	PatronLocalID      string `json:"patron_local_id" binding:"required"`
	BibClusterID       string `json:"bib_cluster_id" binding:"required"`
	PickupLocationCode string `json:"pickup_location_code" binding:"required"`
	PickupHostLmsCode  string `json:"pickup_host_lms_code"`
	ActiveWorkflow     string `json:"active_workflow"`
	ExpeditedCheckout  bool   `json:"expedited_checkout"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// SubmitRequest handles POST /api/requests. The request is persisted in its
// submitted state and handed to the engine asynchronously; the response
// carries the id for polling progress.
func (h *Handlers) SubmitRequest(c *gin.Context) {
	var body SubmitRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	shape := body.ActiveWorkflow
	switch shape {
	case "":
		shape = models.WorkflowStandard
	case models.WorkflowStandard, models.WorkflowLocal, models.WorkflowPickupAnywhere:
	default:
		c.JSON(http.StatusBadRequest, Response{Error: fmt.Sprintf("unknown workflow shape %q", shape)})
		return
	}

	pr := &models.PatronRequest{
		ID:                 uuid.New(),
		PatronHostLmsCode:  body.PatronHostLmsCode,
		PatronLocalID:      body.PatronLocalID,
		BibClusterID:       body.BibClusterID,
		PickupLocationCode: body.PickupLocationCode,
		PickupHostLmsCode:  body.PickupHostLmsCode,
		ActiveWorkflow:     shape,
		ExpeditedCheckout:  body.ExpeditedCheckout,
		Status:             models.StatusSubmittedToDCB,
	}
	if err := h.requests.Save(c.Request.Context(), pr); err != nil {
		h.logger.Error("Failed to save patron request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to save request"})
		return
	}

	h.engine.Initiate(pr)

	c.JSON(http.StatusAccepted, Response{Success: true, Data: pr})
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	requests, err := h.requests.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to list patron requests", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to list requests"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	pr, err := h.requests.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load patron request", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to load request"})
		return
	}
	if pr == nil {
		c.JSON(http.StatusNotFound, Response{Error: "request not found"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pr})
}

// GetRequestAudit handles GET /api/requests/:id/audit
func (h *Handlers) GetRequestAudit(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	entries, err := h.audit.ListByPatronRequest(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to list audit entries", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to list audit entries"})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ProgressRequest handles POST /api/requests/:id/progress: an explicit
// trigger for one engine pass over the request.
func (h *Handlers) ProgressRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	pr, err := h.requests.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to load request"})
		return
	}
	if pr == nil {
		c.JSON(http.StatusNotFound, Response{Error: "request not found"})
		return
	}

	result, err := h.engine.ProgressAll(c.Request.Context(), pr)
	if err != nil {
		h.logger.Error("Progression failed",
			zap.String("patron_request_id", id.String()),
			zap.Error(err))
		c.JSON(http.StatusConflict, Response{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// TransitionBody names the transition to apply manually.
type TransitionBody struct {
	Name string `json:"name" binding:"required"`
}

// ApplyTransition handles POST /api/requests/:id/transition: applies one
// named transition if its guard admits the current state.
func (h *Handlers) ApplyTransition(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}
	h.applyNamed(c, id, body.Name, false)
}

// CancelRequest handles POST /api/requests/:id/cancel: the operator
// cancellation path. Finalisation follows automatically.
func (h *Handlers) CancelRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	h.applyNamed(c, id, "CancelPatronRequest", true)
}

func (h *Handlers) applyNamed(c *gin.Context, id uuid.UUID, name string, continueAfter bool) {
	transition, found := h.engine.TransitionByName(name)
	if !found {
		c.JSON(http.StatusBadRequest, Response{Error: fmt.Sprintf("unknown transition %q", name)})
		return
	}

	wctx, err := h.engine.AssembleContext(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, workflow.ErrRequestNotFound) {
			c.JSON(http.StatusNotFound, Response{Error: "request not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, Response{Error: "failed to assemble workflow context"})
		return
	}

	result, err := h.engine.ProgressUsing(c.Request.Context(), wctx, transition)
	if err != nil {
		c.JSON(http.StatusConflict, Response{Error: err.Error()})
		return
	}

	pr := result.PatronRequest
	if continueAfter {
		pr, err = h.engine.ProgressAll(c.Request.Context(), pr)
		if err != nil {
			c.JSON(http.StatusConflict, Response{Error: err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: pr})
}

// ListTransitions handles GET /api/transitions: the catalogue, for operator
// tooling.
func (h *Handlers) ListTransitions(c *gin.Context) {
	type transitionInfo struct {
		Name      string   `json:"name"`
		Sources   []string `json:"sources"`
		Target    string   `json:"target,omitempty"`
		Automatic bool     `json:"automatic"`
	}
	var out []transitionInfo
	for _, t := range h.engine.Transitions() {
		info := transitionInfo{Name: t.Name(), Automatic: t.AttemptAutomatically()}
		for _, s := range t.PossibleSourceStatus() {
			info.Sources = append(info.Sources, string(s))
		}
		if target, ok := t.TargetStatus(); ok {
			info.Target = string(target)
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: out})
}

// ExportRequests handles GET /api/reports/requests
func (h *Handlers) ExportRequests(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="patron_requests.xlsx"`)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.WriteRequestsReport(c.Request.Context(), c.Writer); err != nil {
		h.logger.Error("Failed to export requests report", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

// ExportRequestAudit handles GET /api/requests/:id/audit/export
func (h *Handlers) ExportRequestAudit(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="audit_%s.xlsx"`, id))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := h.exporter.WriteAuditReport(c.Request.Context(), id, c.Writer); err != nil {
		h.logger.Error("Failed to export audit report", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	}
}

func (h *Handlers) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: "invalid request id"})
		return uuid.Nil, false
	}
	return id, true
}
