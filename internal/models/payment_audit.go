package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of ledger event
type PaymentEventType string

const (
	PaymentEventAdded           PaymentEventType = "payment_added"
	PaymentEventUpdated         PaymentEventType = "payment_updated"
	PaymentEventDeleted         PaymentEventType = "payment_deleted"
	PaymentEventStatusOverride  PaymentEventType = "status_override"
	PaymentEventOverrideCleared PaymentEventType = "status_override_cleared"
)

// PaymentAudit is an immutable audit entry written in the same transaction as the mutation
type PaymentAudit struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	BookingID uuid.UUID        `json:"booking_id" db:"booking_id"`
	PaymentID *uuid.UUID       `json:"payment_id,omitempty" db:"payment_id"`
	EventType PaymentEventType `json:"event_type" db:"event_type"`

	// Amount tracking
	AmountBefore *Money `json:"amount_before,omitempty" db:"amount_before"`
	AmountAfter  *Money `json:"amount_after,omitempty" db:"amount_after"`

	// Ledger after the mutation
	TotalPaid     Money         `json:"total_paid" db:"total_paid"`
	PaymentStatus PaymentStatus `json:"payment_status" db:"payment_status"`

	// Actor
	ActorID    *uuid.UUID `json:"actor_id,omitempty" db:"actor_id"`
	ActorEmail *string    `json:"actor_email,omitempty" db:"actor_email"`
	IPAddress  *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	DeviceInfo *string    `json:"device_info,omitempty" db:"device_info"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, bookingID uuid.UUID) *PaymentAudit {
	return &PaymentAudit{
		ID:        uuid.New(),
		BookingID: bookingID,
		EventType: eventType,
		CreatedAt: time.Now(),
	}
}

// SetPayment sets the payment the event refers to
func (pa *PaymentAudit) SetPayment(paymentID uuid.UUID) *PaymentAudit {
	pa.PaymentID = &paymentID
	return pa
}

// SetAmounts records the payment amount before and after. Either may be nil.
func (pa *PaymentAudit) SetAmounts(before, after *Money) *PaymentAudit {
	pa.AmountBefore = before
	pa.AmountAfter = after
	return pa
}

// SetLedger records the booking ledger after the mutation
func (pa *PaymentAudit) SetLedger(l Ledger) *PaymentAudit {
	pa.TotalPaid = l.TotalPaid
	pa.PaymentStatus = l.Status
	return pa
}

// SetActor records who performed the mutation and from where
func (pa *PaymentAudit) SetActor(actor Actor, deviceInfo string) *PaymentAudit {
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		pa.ActorID = &id
	}
	if actor.Email != "" {
		email := actor.Email
		pa.ActorEmail = &email
	}
	if actor.IPAddress != "" {
		ip := actor.IPAddress
		pa.IPAddress = &ip
	}
	if actor.UserAgent != "" {
		ua := actor.UserAgent
		pa.UserAgent = &ua
	}
	if deviceInfo != "" {
		pa.DeviceInfo = &deviceInfo
	}
	return pa
}
