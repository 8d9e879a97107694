package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/edusuite/school-billing/internal/application/service"
	"github.com/edusuite/school-billing/internal/domain/entity"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	ledgerService     service.LedgerService
	paymentService    service.PaymentService
	adjustmentService service.AdjustmentService
	receiptService    service.ReceiptService
	logger            Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	ledgerService service.LedgerService,
	paymentService service.PaymentService,
	adjustmentService service.AdjustmentService,
	receiptService service.ReceiptService,
	logger Logger,
) *Handlers {
	return &Handlers{
		ledgerService:     ledgerService,
		paymentService:    paymentService,
		adjustmentService: adjustmentService,
		receiptService:    receiptService,
		logger:            logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateInvoiceRequest is the payload for POST /api/v1/invoices
type CreateInvoiceRequest struct {
	StudentID string        `json:"student_id" binding:"required"`
	Currency  string        `json:"currency" binding:"required"`
	DueDate   time.Time     `json:"due_date" binding:"required"`
	Lines     []LineRequest `json:"lines" binding:"required"`
}

// LineRequest is one priced item of a new invoice. Amounts travel as
// decimal strings; floats are rejected at the parse step.
type LineRequest struct {
	Description string `json:"description" binding:"required"`
	UnitAmount  string `json:"unit_amount" binding:"required"`
	Quantity    int64  `json:"quantity"`
	Discount    string `json:"discount"`
	TaxRate     string `json:"tax_rate"`
}

// RecordPaymentRequest is the payload for POST /api/v1/payments
type RecordPaymentRequest struct {
	InvoiceID int64  `json:"invoice_id" binding:"required"`
	PayerID   string `json:"payer_id" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Method    string `json:"method" binding:"required"`
}

// ValidatePaymentRequest is the payload for POST /api/v1/payments/:id/validate
type ValidatePaymentRequest struct {
	Validator string `json:"validator" binding:"required"`
}

// CancelPaymentRequest is the payload for POST /api/v1/payments/:id/cancel
type CancelPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// FileWaiverRequest is the payload for POST /api/v1/waivers
type FileWaiverRequest struct {
	InvoiceID       int64      `json:"invoice_id" binding:"required"`
	Kind            string     `json:"kind" binding:"required"`
	Reason          string     `json:"reason" binding:"required"`
	RequestedAmount string     `json:"requested_amount"`
	NewDueDate      *time.Time `json:"new_due_date,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

// DecideWaiverRequest is the payload for POST /api/v1/waivers/:id/decision
type DecideWaiverRequest struct {
	Approve       bool   `json:"approve"`
	GrantedAmount string `json:"granted_amount"`
	Reason        string `json:"reason"`
	DecidedBy     string `json:"decided_by" binding:"required"`
}

// ApplyDiscountRequest is the payload for POST /api/v1/invoices/:id/discounts
type ApplyDiscountRequest struct {
	DiscountIDs []int64 `json:"discount_ids" binding:"required"`
}

// AwardScholarshipRequest is the payload for POST /api/v1/scholarships
type AwardScholarshipRequest struct {
	StudentID   string     `json:"student_id" binding:"required"`
	Label       string     `json:"label" binding:"required"`
	Percentage  string     `json:"percentage"`
	FixedAmount string     `json:"fixed_amount"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CreateInvoice handles POST /api/v1/invoices
func (h *Handlers) CreateInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	in := service.CreateInvoiceInput{
		StudentID: req.StudentID,
		Currency:  req.Currency,
		DueDate:   req.DueDate,
	}
	for _, line := range req.Lines {
		unitAmount, err := parseDecimal(line.UnitAmount)
		if err != nil {
			h.badRequest(c, "invalid unit_amount", err)
			return
		}
		discount, err := parseOptionalDecimal(line.Discount)
		if err != nil {
			h.badRequest(c, "invalid discount", err)
			return
		}
		taxRate, err := parseOptionalDecimal(line.TaxRate)
		if err != nil {
			h.badRequest(c, "invalid tax_rate", err)
			return
		}
		quantity := line.Quantity
		if quantity == 0 {
			quantity = 1
		}
		in.Lines = append(in.Lines, service.LineInput{
			Description: line.Description,
			UnitAmount:  unitAmount,
			Quantity:    quantity,
			Discount:    discount,
			TaxRate:     taxRate,
		})
	}

	invoice, err := h.ledgerService.CreateInvoice(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, "failed to create invoice", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: invoice})
}

// GetInvoice handles GET /api/v1/invoices/:id
func (h *Handlers) GetInvoice(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.ledgerService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to get invoice", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// IssueInvoice handles POST /api/v1/invoices/:id/issue
func (h *Handlers) IssueInvoice(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.ledgerService.Issue(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to issue invoice", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// CancelInvoice handles POST /api/v1/invoices/:id/cancel
func (h *Handlers) CancelInvoice(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.ledgerService.Cancel(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to cancel invoice", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// ListInvoicePayments handles GET /api/v1/invoices/:id/payments
func (h *Handlers) ListInvoicePayments(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	payments, err := h.paymentService.ListForInvoice(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to list payments", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: payments})
}

// RecordPayment handles POST /api/v1/payments
func (h *Handlers) RecordPayment(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	amount, err := parseDecimal(req.Amount)
	if err != nil {
		h.badRequest(c, "invalid amount", err)
		return
	}
	method, err := entity.ParsePaymentMethod(req.Method)
	if err != nil {
		h.badRequest(c, "invalid method", err)
		return
	}

	payment, err := h.paymentService.RecordPayment(c.Request.Context(), service.RecordPaymentInput{
		InvoiceID: req.InvoiceID,
		PayerID:   req.PayerID,
		Amount:    amount,
		Method:    method,
	})
	if err != nil {
		h.serviceError(c, "failed to record payment", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: payment})
}

// GetPayment handles GET /api/v1/payments/:id
func (h *Handlers) GetPayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPayment(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to get payment", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// ValidatePayment handles POST /api/v1/payments/:id/validate
func (h *Handlers) ValidatePayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req ValidatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	payment, err := h.paymentService.Validate(c.Request.Context(), id, req.Validator)
	if err != nil {
		h.serviceError(c, "failed to validate payment", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// CancelPayment handles POST /api/v1/payments/:id/cancel
func (h *Handlers) CancelPayment(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req CancelPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	payment, err := h.paymentService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.serviceError(c, "failed to cancel payment", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// DownloadReceipt handles GET /api/v1/payments/:id/receipt
func (h *Handlers) DownloadReceipt(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	data, filename, err := h.receiptService.Download(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to download receipt", err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// FileWaiver handles POST /api/v1/waivers
func (h *Handlers) FileWaiver(c *gin.Context) {
	var req FileWaiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	kind, err := entity.ParseWaiverKind(req.Kind)
	if err != nil {
		h.badRequest(c, "invalid kind", err)
		return
	}
	requested, err := parseOptionalDecimal(req.RequestedAmount)
	if err != nil {
		h.badRequest(c, "invalid requested_amount", err)
		return
	}

	in := service.FileWaiverInput{
		InvoiceID:       req.InvoiceID,
		Kind:            kind,
		Reason:          req.Reason,
		RequestedAmount: requested,
		NewDueDate:      req.NewDueDate,
	}
	if req.ExpiresAt != nil {
		in.ExpiresAt = *req.ExpiresAt
	}

	waiver, err := h.adjustmentService.FileWaiver(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, "failed to file waiver", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: waiver})
}

// GetWaiver handles GET /api/v1/waivers/:id
func (h *Handlers) GetWaiver(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	waiver, err := h.adjustmentService.GetWaiver(c.Request.Context(), id)
	if err != nil {
		h.serviceError(c, "failed to get waiver", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: waiver})
}

// DecideWaiver handles POST /api/v1/waivers/:id/decision
func (h *Handlers) DecideWaiver(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req DecideWaiverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	granted, err := parseOptionalDecimal(req.GrantedAmount)
	if err != nil {
		h.badRequest(c, "invalid granted_amount", err)
		return
	}

	waiver, err := h.adjustmentService.DecideWaiver(c.Request.Context(), id, service.WaiverDecision{
		Approve:       req.Approve,
		GrantedAmount: granted,
		Reason:        req.Reason,
		DecidedBy:     req.DecidedBy,
	})
	if err != nil {
		h.serviceError(c, "failed to decide waiver", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: waiver})
}

// ApplyDiscount handles POST /api/v1/invoices/:id/discounts
func (h *Handlers) ApplyDiscount(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	invoice, err := h.adjustmentService.ApplyDiscount(c.Request.Context(), id, req.DiscountIDs)
	if err != nil {
		h.serviceError(c, "failed to apply discount", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// AwardScholarship handles POST /api/v1/scholarships
func (h *Handlers) AwardScholarship(c *gin.Context) {
	var req AwardScholarshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	percentage, err := parseOptionalDecimal(req.Percentage)
	if err != nil {
		h.badRequest(c, "invalid percentage", err)
		return
	}
	fixedAmount, err := parseOptionalDecimal(req.FixedAmount)
	if err != nil {
		h.badRequest(c, "invalid fixed_amount", err)
		return
	}

	scholarship, err := h.adjustmentService.AwardScholarship(c.Request.Context(), service.AwardScholarshipInput{
		StudentID:   req.StudentID,
		Label:       req.Label,
		Percentage:  percentage,
		FixedAmount: fixedAmount,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		h.serviceError(c, "failed to award scholarship", err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: scholarship})
}

// ApplyScholarship handles POST /api/v1/invoices/:id/scholarships/:scholarshipId
func (h *Handlers) ApplyScholarship(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}
	scholarshipID, ok := h.pathID(c, "scholarshipId")
	if !ok {
		return
	}

	invoice, err := h.adjustmentService.ApplyScholarship(c.Request.Context(), id, scholarshipID)
	if err != nil {
		h.serviceError(c, "failed to apply scholarship", err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: invoice})
}

// pathID parses a numeric path parameter, answering 400 itself on failure
func (h *Handlers) pathID(c *gin.Context, name string) (int64, bool) {
	idStr := c.Param(name)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.logger.Error("Invalid path parameter", "name", name, "value", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid " + name,
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// serviceError translates domain errors into HTTP status codes
func (h *Handlers) serviceError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(statusFromError(err), Response{
		Success: false,
		Error:   err.Error(),
	})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, entity.ErrOverpayment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrConcurrency):
		return http.StatusServiceUnavailable
	case errors.Is(err, entity.ErrSequenceExhausted):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// parseOptionalDecimal treats an empty string as zero
func parseOptionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
