// Package api exposes the eligibility evaluator, batch reconciliation and the
// compliance audit trail over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"itc-reconciliation-service/internal/models"
	"itc-reconciliation-service/internal/reconciler"
	"itc-reconciliation-service/pkg/errors"
	"itc-reconciliation-service/pkg/logger"
)

// Service is the part of the reconciliation service served over HTTP
type Service interface {
	CheckEligibility(ctx context.Context, invoice *models.Invoice) (*reconciler.EligibilityResult, error)
	Reconcile(ctx context.Context) (*reconciler.ReconciliationResult, error)
	Transactions(ctx context.Context) (*reconciler.TransactionView, error)
}

// CheckRecorder writes and lists compliance checks
type CheckRecorder interface {
	Record(ctx context.Context, check models.ComplianceCheck) (*models.ComplianceCheck, error)
	List(ctx context.Context) ([]*models.ComplianceCheck, error)
}

// HealthFunc reports whether the backing store is reachable
type HealthFunc func() error

// Handler serves the API routes
type Handler struct {
	service  Service
	recorder CheckRecorder
	health   HealthFunc
	logger   logger.Logger
}

// NewHandler creates a handler. health may be nil.
func NewHandler(service Service, recorder CheckRecorder, health HealthFunc, log logger.Logger) *Handler {
	return &Handler{
		service:  service,
		recorder: recorder,
		health:   health,
		logger:   logger.OrGlobal(log).WithComponent("api"),
	}
}

// invoiceRequest is the body of an eligibility request
type invoiceRequest struct {
	InvoiceNumber string          `json:"invoice_number"`
	SupplierGSTIN string          `json:"supplier_gstin"`
	InvoiceDate   models.Date     `json:"invoice_date"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	IGST          decimal.Decimal `json:"igst"`
}

func (r invoiceRequest) toInvoice() *models.Invoice {
	inv := models.NewInvoice(r.InvoiceNumber, r.SupplierGSTIN, r.CGST, r.SGST, r.IGST)
	inv.InvoiceDate = r.InvoiceDate
	return inv
}

// checkRequest is the body of a compliance check submission
type checkRequest struct {
	SupplierID string `json:"supplier_id" binding:"required"`
	CheckType  string `json:"check_type" binding:"required"`
	Status     string `json:"status" binding:"required"`
	Details    string `json:"details"`
}

// Register mounts the routes on the engine
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.Health)

	v1 := r.Group("/api/v1")
	v1.POST("/invoices/eligibility", h.CheckEligibility)
	v1.POST("/reconciliations", h.Reconcile)
	v1.GET("/transactions", h.ListTransactions)
	v1.GET("/compliance-checks", h.ListComplianceChecks)
	v1.POST("/compliance-checks", h.RecordComplianceCheck)
}

// Health reports whether the backing store is reachable
func (h *Handler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(); err != nil {
			h.logger.WithError(err).Warn("Health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CheckEligibility registers the invoice and returns its verdict. An
// ineligible invoice is a 200 with is_eligible false.
func (h *Handler) CheckEligibility(c *gin.Context) {
	var req invoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.service.CheckEligibility(c.Request.Context(), req.toInvoice())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(result))
}

// Reconcile runs a reconciliation over every stored invoice
func (h *Handler) Reconcile(c *gin.Context) {
	result, err := h.service.Reconcile(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(result))
}

// ListTransactions returns the reconciliation view and its summary tiles
func (h *Handler) ListTransactions(c *gin.Context) {
	view, err := h.service.Transactions(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(view))
}

// ListComplianceChecks returns the audit trail, oldest first
func (h *Handler) ListComplianceChecks(c *gin.Context) {
	checks, err := h.recorder.List(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	if checks == nil {
		checks = []*models.ComplianceCheck{}
	}

	c.JSON(http.StatusOK, NewSuccessResponse(checks))
}

// RecordComplianceCheck appends a check submitted by an external checker
func (h *Handler) RecordComplianceCheck(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	check, err := h.recorder.Record(c.Request.Context(), models.ComplianceCheck{
		SupplierID: models.NormalizeGSTIN(req.SupplierID),
		CheckType:  req.CheckType,
		Status:     req.Status,
		Details:    req.Details,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, NewSuccessResponse(check))
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, NewErrorResponse(
		string(errors.CategoryValidation), ErrCodeBadRequest, err.Error(), getRequestID(c)))
}

// handleError writes the response for a service error
func (h *Handler) handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	rerr, ok := errors.AsReconcilerError(err)
	if !ok {
		h.logger.WithError(err).Error("Unclassified service error")
		c.JSON(http.StatusInternalServerError, NewErrorResponse(
			string(errors.CategoryInternal), ErrCodeInternal, "An unexpected error occurred", getRequestID(c)))
		return
	}

	resp := NewErrorResponse(string(rerr.Category), string(rerr.Code), rerr.Message, getRequestID(c))
	resp.Error.Suggestion = rerr.Suggestion
	c.JSON(StatusFor(rerr.Category), resp)
}
