package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/internal/utils"
)

// PaymentServiceConfig holds configuration for payment mutations
type PaymentServiceConfig struct {
	MaxConflictRetries int           // Retries after a lost race before surfacing a conflict
	RetryBackoff       time.Duration // Base wait between conflict retries
}

// DefaultPaymentServiceConfig returns default configuration
func DefaultPaymentServiceConfig() PaymentServiceConfig {
	return PaymentServiceConfig{
		MaxConflictRetries: 3,
		RetryBackoff:       20 * time.Millisecond,
	}
}

// PaymentService records, edits and removes payments. Every mutation
// re-derives the booking ledger in the same transaction.
type PaymentService struct {
	store  database.BookingStore
	locks  *keyedMutex
	config PaymentServiceConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(store database.BookingStore, config PaymentServiceConfig, logger *logrus.Logger) *PaymentService {
	return &PaymentService{
		store:  store,
		locks:  newKeyedMutex(),
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// ledgerMutation changes a locked booking and returns the audit entry describing it
type ledgerMutation func(ctx context.Context, tx database.LedgerTx, b *models.Booking) (*models.PaymentAudit, error)

// ============================================================================
// READS
// ============================================================================

// GetBooking returns the current view of a booking
func (s *PaymentService) GetBooking(ctx context.Context, bookingID uuid.UUID) (models.BookingView, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.BookingView{}, mapStoreError(err, bookingID, uuid.Nil)
	}
	return models.NewBookingView(b), nil
}

// GetPayment returns one payment of a booking together with the booking view
func (s *PaymentService) GetPayment(ctx context.Context, bookingID, paymentID uuid.UUID) (models.BookingView, models.Payment, error) {
	view, err := s.GetBooking(ctx, bookingID)
	if err != nil {
		return models.BookingView{}, models.Payment{}, err
	}
	i := view.FindPayment(paymentID)
	if i < 0 {
		return models.BookingView{}, models.Payment{}, models.NotFoundError{Resource: "payment", ID: paymentID.String()}
	}
	return view, view.Payments[i], nil
}

// ListAudits returns the payment audit trail of a booking
func (s *PaymentService) ListAudits(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	if _, err := s.store.GetBooking(ctx, bookingID); err != nil {
		return nil, mapStoreError(err, bookingID, uuid.Nil)
	}
	audits, err := s.store.ListAudits(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}

// ============================================================================
// MUTATIONS
// ============================================================================

// AddPayment appends a payment to the booking. Status defaults to PAID and
// the payment date to now.
func (s *PaymentService) AddPayment(ctx context.Context, actor models.Actor, bookingID uuid.UUID, req models.AddPaymentRequest) (models.BookingView, error) {
	if err := validateAmount(req.Amount); err != nil {
		return models.BookingView{}, err
	}
	method, err := models.ParsePaymentMethod(string(req.Method))
	if err != nil {
		return models.BookingView{}, err
	}
	status := models.PaymentStatusPaid
	if req.Status != nil {
		if status, err = models.ParsePaymentStatus(string(*req.Status)); err != nil {
			return models.BookingView{}, err
		}
	}
	paymentDate := s.now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	payment := models.Payment{
		ID:          uuid.New(),
		BookingID:   bookingID,
		Amount:      req.Amount,
		Method:      method,
		Status:      status,
		PaymentDate: paymentDate.UTC(),
		Note:        normalizeNote(req.Note),
		CreatedBy:   actor.CreatedBy(),
	}

	view, err := s.mutate(ctx, actor, bookingID, uuid.Nil, func(ctx context.Context, tx database.LedgerTx, b *models.Booking) (*models.PaymentAudit, error) {
		p := payment
		if err := tx.InsertPayment(ctx, &p); err != nil {
			return nil, err
		}
		b.Payments = append(b.Payments, p)

		return models.NewPaymentAudit(models.PaymentEventAdded, bookingID).
			SetPayment(p.ID).
			SetAmounts(nil, &p.Amount), nil
	})
	if err != nil {
		return models.BookingView{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"payment_id": payment.ID,
		"amount":     payment.Amount.String(),
		"status":     view.PaymentStatus,
		"actor_id":   actor.UserID,
	}).Info("Payment added")

	return view, nil
}

// UpdatePayment patches an existing payment of the booking
func (s *PaymentService) UpdatePayment(ctx context.Context, actor models.Actor, bookingID, paymentID uuid.UUID, req models.UpdatePaymentRequest) (models.BookingView, error) {
	if req.Amount != nil {
		if err := validateAmount(*req.Amount); err != nil {
			return models.BookingView{}, err
		}
	}
	var method *models.PaymentMethod
	if req.Method != nil {
		m, err := models.ParsePaymentMethod(string(*req.Method))
		if err != nil {
			return models.BookingView{}, err
		}
		method = &m
	}
	var status *models.PaymentStatus
	if req.Status != nil {
		st, err := models.ParsePaymentStatus(string(*req.Status))
		if err != nil {
			return models.BookingView{}, err
		}
		status = &st
	}

	view, err := s.mutate(ctx, actor, bookingID, paymentID, func(ctx context.Context, tx database.LedgerTx, b *models.Booking) (*models.PaymentAudit, error) {
		i := b.FindPayment(paymentID)
		if i < 0 {
			return nil, database.ErrPaymentNotFound
		}

		p := b.Payments[i]
		before := p.Amount
		if req.Amount != nil {
			p.Amount = *req.Amount
		}
		if method != nil {
			p.Method = *method
		}
		if status != nil {
			p.Status = *status
		}
		if req.PaymentDate != nil {
			p.PaymentDate = req.PaymentDate.UTC()
		}
		if req.Note != nil {
			p.Note = normalizeNote(req.Note)
		}

		if err := tx.UpdatePayment(ctx, &p); err != nil {
			return nil, err
		}
		b.Payments[i] = p

		return models.NewPaymentAudit(models.PaymentEventUpdated, bookingID).
			SetPayment(p.ID).
			SetAmounts(&before, &p.Amount), nil
	})
	if err != nil {
		return models.BookingView{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"payment_id": paymentID,
		"status":     view.PaymentStatus,
		"actor_id":   actor.UserID,
	}).Info("Payment updated")

	return view, nil
}

// DeletePayment removes a payment. The booking status may move backwards.
func (s *PaymentService) DeletePayment(ctx context.Context, actor models.Actor, bookingID, paymentID uuid.UUID) (models.BookingView, error) {
	view, err := s.mutate(ctx, actor, bookingID, paymentID, func(ctx context.Context, tx database.LedgerTx, b *models.Booking) (*models.PaymentAudit, error) {
		i := b.FindPayment(paymentID)
		if i < 0 {
			return nil, database.ErrPaymentNotFound
		}
		before := b.Payments[i].Amount

		if err := tx.DeletePayment(ctx, bookingID, paymentID); err != nil {
			return nil, err
		}
		b.Payments = slices.Delete(b.Payments, i, i+1)

		return models.NewPaymentAudit(models.PaymentEventDeleted, bookingID).
			SetPayment(paymentID).
			SetAmounts(&before, nil), nil
	})
	if err != nil {
		return models.BookingView{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"payment_id": paymentID,
		"status":     view.PaymentStatus,
		"actor_id":   actor.UserID,
	}).Info("Payment deleted")

	return view, nil
}

// OverrideStatus marks the booking FAILED administratively, or clears the
// mark when status is nil
func (s *PaymentService) OverrideStatus(ctx context.Context, actor models.Actor, bookingID uuid.UUID, status *models.PaymentStatus) (models.BookingView, error) {
	eventType := models.PaymentEventOverrideCleared
	if status != nil {
		if *status != models.PaymentStatusFailed {
			return models.BookingView{}, models.ValidationError{Field: "status", Msg: "only FAILED can be set administratively"}
		}
		eventType = models.PaymentEventStatusOverride
	}

	view, err := s.mutate(ctx, actor, bookingID, uuid.Nil, func(ctx context.Context, tx database.LedgerTx, b *models.Booking) (*models.PaymentAudit, error) {
		b.StatusOverride = nil
		if status != nil {
			override := *status
			b.StatusOverride = &override
		}
		return models.NewPaymentAudit(eventType, bookingID), nil
	})
	if err != nil {
		return models.BookingView{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"status":     view.PaymentStatus,
		"actor_id":   actor.UserID,
	}).Info("Payment status override changed")

	return view, nil
}

// mutate serializes mutations of one booking, runs fn in a ledger
// transaction and retries lost races a bounded number of times
func (s *PaymentService) mutate(ctx context.Context, actor models.Actor, bookingID, paymentID uuid.UUID, fn ledgerMutation) (models.BookingView, error) {
	unlock, err := s.locks.Lock(ctx, bookingID)
	if err != nil {
		return models.BookingView{}, err
	}
	defer unlock()

	deviceInfo := ""
	if actor.UserAgent != "" {
		deviceInfo = utils.ParseUserAgent(actor.UserAgent).String()
	}

	var booking *models.Booking
	for attempt := 0; ; attempt++ {
		err = s.store.InLedgerTx(ctx, func(tx database.LedgerTx) error {
			b, err := tx.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}

			audit, err := fn(ctx, tx, b)
			if err != nil {
				return err
			}

			ledger := recomputeLedger(b)
			if ledger.TotalPaid > models.MaxMoney {
				return models.ValidationError{Field: "amount", Msg: "total paid must not exceed " + models.MaxMoney.String()}
			}
			b.UpdatedAt = s.now()
			if err := tx.SaveLedger(ctx, b); err != nil {
				return err
			}

			audit.SetLedger(ledger).SetActor(actor, deviceInfo)
			if err := tx.AppendAudit(ctx, audit); err != nil {
				return err
			}

			booking = b
			return nil
		})
		if err == nil {
			return models.NewBookingView(booking), nil
		}
		if !errors.Is(err, database.ErrConcurrentUpdate) {
			return models.BookingView{}, mapStoreError(err, bookingID, paymentID)
		}
		if attempt >= s.config.MaxConflictRetries {
			s.logger.WithFields(logrus.Fields{
				"booking_id": bookingID,
				"attempt":    attempt + 1,
			}).Error("Ledger update conflict retries exhausted")
			return models.BookingView{}, models.ConflictError{Resource: "booking", Msg: "concurrent ledger update, retry the request", Err: err}
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"attempt":    attempt + 1,
		}).Warn("Ledger update conflict, retrying")

		select {
		case <-time.After(s.config.RetryBackoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return models.BookingView{}, fmt.Errorf("ledger update abandoned: %w", ctx.Err())
		}
	}
}

func validateAmount(amount models.Money) error {
	if amount <= 0 {
		return models.ValidationError{Field: "amount", Msg: "must be greater than 0"}
	}
	if amount > models.MaxMoney {
		return models.ValidationError{Field: "amount", Msg: "must not exceed " + models.MaxMoney.String()}
	}
	return nil
}

func normalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// mapStoreError turns store sentinels into the service error taxonomy
func mapStoreError(err error, bookingID, paymentID uuid.UUID) error {
	switch {
	case errors.Is(err, database.ErrBookingNotFound):
		return models.NotFoundError{Resource: "booking", ID: bookingID.String(), Err: err}
	case errors.Is(err, database.ErrPaymentNotFound):
		id := ""
		if paymentID != uuid.Nil {
			id = paymentID.String()
		}
		return models.NotFoundError{Resource: "payment", ID: id, Err: err}
	}
	return err
}
