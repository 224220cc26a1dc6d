package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/ledger-backend/internal/models"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrConcurrentUpdate marks a ledger transaction that lost a race and may be retried
	ErrConcurrentUpdate = errors.New("concurrent ledger update")
)

// BookingPrefilter holds the filter fields a store can evaluate itself.
// Search and payment date ranges are applied by the caller.
type BookingPrefilter struct {
	TourPackageID *uuid.UUID
	PaymentStatus *models.PaymentStatus
	PaymentType   *models.PaymentType
}

// PrefilterFrom extracts the store-evaluable part of a reminder filter
func PrefilterFrom(f models.ReminderFilter) BookingPrefilter {
	return BookingPrefilter{
		TourPackageID: f.TourPackageID,
		PaymentStatus: f.PaymentStatus,
		PaymentType:   f.PaymentType,
	}
}

// BookingStore is the persistence boundary for bookings, their payments and reminders
type BookingStore interface {
	// GetBooking loads a booking with payments in insertion order and its members
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)

	// ListBookings returns bookings ordered by last reminder (never reminded first)
	ListBookings(ctx context.Context, f BookingPrefilter) ([]*models.Booking, error)

	ListPackages(ctx context.Context) ([]models.TourPackage, error)

	// IncrementReminder bumps the reminder counter atomically and stamps the time
	IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) (models.ReminderStamp, error)

	// ListAudits returns a booking's payment audit trail, oldest first
	ListAudits(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error)

	// InLedgerTx runs fn in a transaction. Nothing fn writes is visible unless it returns nil.
	InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the write side of a single ledger mutation
type LedgerTx interface {
	// LockBooking loads the booking and holds it exclusively until the transaction ends
	LockBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	InsertPayment(ctx context.Context, p *models.Payment) error
	UpdatePayment(ctx context.Context, p *models.Payment) error
	DeletePayment(ctx context.Context, bookingID, paymentID uuid.UUID) error
	// SaveLedger persists the derived totals, status and override of b
	SaveLedger(ctx context.Context, b *models.Booking) error
	AppendAudit(ctx context.Context, a *models.PaymentAudit) error
}
