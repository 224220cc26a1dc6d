package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/internal/services"
	"github.com/tourdesk/ledger-backend/pkg/receipt"
)

// PaymentHandler serves the booking ledger and its payments
type PaymentHandler struct {
	payments *services.PaymentService
	logger   *logrus.Logger
	now      func() time.Time
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

type addPaymentBody struct {
	Amount        *models.Money         `json:"amount" binding:"required"`
	PaymentMethod models.PaymentMethod  `json:"paymentMethod" binding:"required"`
	Note          *string               `json:"note"`
	Status        *models.PaymentStatus `json:"status"`
	PaymentDate   *time.Time            `json:"paymentDate"`
}

type updatePaymentBody struct {
	Amount        *models.Money         `json:"amount"`
	PaymentMethod *models.PaymentMethod `json:"paymentMethod"`
	Note          *string               `json:"note"`
	Status        *models.PaymentStatus `json:"status"`
	PaymentDate   *time.Time            `json:"paymentDate"`
}

type overrideStatusBody struct {
	Status *models.PaymentStatus `json:"status"`
}

// presentView hides operator attribution from non-admins
func presentView(actor models.Actor, view models.BookingView) models.BookingView {
	if actor.HasRole(models.RoleAdmin) {
		return view
	}
	return view.WithoutCreatedBy()
}

// GetBooking returns the ledger view of a booking
// GET /api/v1/tour-members/:id
func (h *PaymentHandler) GetBooking(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, err := h.payments.GetBooking(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, presentView(actor, view))
}

// AddPayment records a payment
// POST /api/v1/tour-members/:id/payments
func (h *PaymentHandler) AddPayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var body addPaymentBody
	if err := bindJSON(c, &body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, err := h.payments.AddPayment(c.Request.Context(), actor, bookingID, models.AddPaymentRequest{
		Amount:      *body.Amount,
		Method:      body.PaymentMethod,
		Note:        body.Note,
		Status:      body.Status,
		PaymentDate: body.PaymentDate,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusCreated, presentView(actor, view))
}

// UpdatePayment edits a payment
// PUT /api/v1/tour-members/:id/payments/:paymentId
func (h *PaymentHandler) UpdatePayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paymentID, err := parseUUIDParam(c, "paymentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var body updatePaymentBody
	if err := bindJSON(c, &body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, err := h.payments.UpdatePayment(c.Request.Context(), actor, bookingID, paymentID, models.UpdatePaymentRequest{
		Amount:      body.Amount,
		Method:      body.PaymentMethod,
		Note:        body.Note,
		Status:      body.Status,
		PaymentDate: body.PaymentDate,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, presentView(actor, view))
}

// DeletePayment removes a payment
// DELETE /api/v1/tour-members/:id/payments/:paymentId
func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paymentID, err := parseUUIDParam(c, "paymentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, err := h.payments.DeletePayment(c.Request.Context(), actor, bookingID, paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, presentView(actor, view))
}

// OverrideStatus sets or clears the FAILED override
// PATCH /api/v1/tour-members/:id/payment-status
func (h *PaymentHandler) OverrideStatus(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var body overrideStatusBody
	if err := bindJSON(c, &body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, err := h.payments.OverrideStatus(c.Request.Context(), actor, bookingID, body.Status)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, presentView(actor, view))
}

// ListAudits returns the payment audit trail of a booking
// GET /api/v1/tour-members/:id/payment-audits
func (h *PaymentHandler) ListAudits(c *gin.Context) {
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	audits, err := h.payments.ListAudits(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, audits)
}

// GetReceipt renders a PDF receipt for one payment
// GET /api/v1/tour-members/:id/payments/:paymentId/receipt
func (h *PaymentHandler) GetReceipt(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	paymentID, err := parseUUIDParam(c, "paymentId")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	view, payment, err := h.payments.GetPayment(c.Request.Context(), bookingID, paymentID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	data := receipt.Data{
		BookingID:    view.ID.String(),
		PaymentID:    payment.ID.String(),
		Customer:     view.Name,
		Mobile:       view.Contact(),
		PackageName:  view.TourPackage.PackageName,
		Amount:       payment.Amount.String(),
		Method:       string(payment.Method),
		Status:       string(payment.Status),
		PaymentDate:  payment.PaymentDate,
		TotalCost:    view.TotalCost.String(),
		TotalPaid:    view.TotalPaid.String(),
		Remaining:    view.Remaining.String(),
		LedgerStatus: string(view.PaymentStatus),
		GeneratedAt:  h.now(),
	}
	if payment.Note != nil {
		data.Note = *payment.Note
	}
	if payment.CreatedBy != nil && actor.HasRole(models.RoleAdmin) {
		data.RecordedBy = payment.CreatedBy.Email
	}

	pdf, filename, err := receipt.Render(data)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
