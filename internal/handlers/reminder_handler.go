package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/internal/services"
)

// ReminderHandler serves the payment reminder dashboard
type ReminderHandler struct {
	queries   *services.ReminderQueryService
	reminders *services.ReminderService
	notifier  *services.BulkNotifier
	logger    *logrus.Logger
}

// NewReminderHandler creates a new ReminderHandler
func NewReminderHandler(
	queries *services.ReminderQueryService,
	reminders *services.ReminderService,
	notifier *services.BulkNotifier,
	logger *logrus.Logger,
) *ReminderHandler {
	return &ReminderHandler{
		queries:   queries,
		reminders: reminders,
		notifier:  notifier,
		logger:    logger,
	}
}

type bulkSmsBody struct {
	MemberIDs []uuid.UUID `json:"memberIds" binding:"required,min=1"`
	Message   string      `json:"message" binding:"required"`
}

type individualSmsBody struct {
	MemberID uuid.UUID `json:"memberId" binding:"required"`
	Message  string    `json:"message" binding:"required"`
}

// ListCandidates returns bookings matching the reminder filter
// GET /api/v1/payment-reminders/tour-members/payment-reminders
func (h *ReminderHandler) ListCandidates(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	filter, err := parseReminderFilter(c)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	seq, err := h.queries.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	views := []models.BookingView{}
	for view := range seq {
		views = append(views, presentView(actor, view))
	}

	respondData(c, http.StatusOK, views)
}

// ListPackages returns the tour packages for the filter dropdown
// GET /api/v1/payment-reminders/tour-packages
func (h *ReminderHandler) ListPackages(c *gin.Context) {
	packages, err := h.queries.ListPackages(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondData(c, http.StatusOK, packages)
}

// SendBulk sends one message to many bookings. Mixed outcomes are a 200.
// POST /api/v1/payment-reminders/sms/bulk
func (h *ReminderHandler) SendBulk(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body bulkSmsBody
	if err := bindJSON(c, &body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	result, err := h.notifier.SendBulk(c.Request.Context(), actor, models.BulkSmsPayload{
		BookingIDs: body.MemberIDs,
		Message:    body.Message,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	sent := result.Counts[models.DispatchSent]
	c.JSON(http.StatusOK, gin.H{
		"success": !result.PartialFailure(),
		"message": fmt.Sprintf("Sent %d of %d reminders", sent, len(result.Outcomes)),
		"data":    result,
	})
}

// SendIndividual sends a reminder to a single booking
// POST /api/v1/payment-reminders/sms/individual
func (h *ReminderHandler) SendIndividual(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var body individualSmsBody
	if err := bindJSON(c, &body); err != nil {
		respondError(c, h.logger, err)
		return
	}

	outcome, err := h.notifier.SendIndividual(c.Request.Context(), actor, body.MemberID, body.Message)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Reminder sent"
	if outcome.Status != models.DispatchSent {
		message = "Reminder not sent: " + outcome.Error
	}
	c.JSON(http.StatusOK, gin.H{
		"success": outcome.Status == models.DispatchSent,
		"message": message,
		"data":    outcome,
	})
}

// RecordReminder records a reminder delivered outside the gateway
// PATCH /api/v1/payment-reminders/tour-members/:id/reminder
func (h *ReminderHandler) RecordReminder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	bookingID, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	stamp, err := h.reminders.RecordReminder(c.Request.Context(), actor, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	respondData(c, http.StatusOK, stamp)
}

// parseReminderFilter reads the dashboard's query parameters
func parseReminderFilter(c *gin.Context) (models.ReminderFilter, error) {
	filter := models.ReminderFilter{Search: strings.TrimSpace(c.Query("search"))}

	if raw := c.Query("tourPackageId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, models.ValidationError{Field: "tourPackageId", Msg: "must be a valid UUID", Err: err}
		}
		filter.TourPackageID = &id
	}

	if raw := c.Query("paymentStatus"); raw != "" {
		status, err := models.ParsePaymentStatus(raw)
		if err != nil {
			return filter, models.ValidationError{Field: "paymentStatus", Msg: fmt.Sprintf("unknown payment status %q", raw), Err: err}
		}
		filter.PaymentStatus = &status
	}

	if raw := c.Query("paymentType"); raw != "" {
		pt, err := models.ParsePaymentType(raw)
		if err != nil {
			return filter, err
		}
		filter.PaymentType = &pt
	}

	if raw := c.Query("dateFrom"); raw != "" {
		from, _, err := parseFilterTime(raw)
		if err != nil {
			return filter, models.ValidationError{Field: "dateFrom", Msg: "must be RFC3339 or YYYY-MM-DD", Err: err}
		}
		filter.DateFrom = &from
	}

	if raw := c.Query("dateTo"); raw != "" {
		to, dateOnly, err := parseFilterTime(raw)
		if err != nil {
			return filter, models.ValidationError{Field: "dateTo", Msg: "must be RFC3339 or YYYY-MM-DD", Err: err}
		}
		if dateOnly {
			// A bare date includes the whole day
			to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		filter.DateTo = &to
	}

	return filter, nil
}

// parseFilterTime accepts RFC3339 timestamps and bare dates, which are read as UTC midnight
func parseFilterTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
