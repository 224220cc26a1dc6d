package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaymentMethod represents how a payment was collected
type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "CASH"
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodCard       PaymentMethod = "CARD"
	PaymentMethodNetBanking PaymentMethod = "NET_BANKING"
	PaymentMethodCheque     PaymentMethod = "CHEQUE"
)

// PaymentStatus is shared by individual payments and the booking-level ledger
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPartial PaymentStatus = "PARTIAL"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// PaymentType is the agreed payment plan of a booking
type PaymentType string

const (
	PaymentTypeOneTime     PaymentType = "ONE_TIME"
	PaymentTypeInstallment PaymentType = "INSTALLMENT"
)

// ParsePaymentMethod validates a wire value. Unknown values are a ValidationError.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodCard, PaymentMethodNetBanking, PaymentMethodCheque:
		return m, nil
	}
	return "", ValidationError{Field: "paymentMethod", Msg: fmt.Sprintf("unknown payment method %q", s)}
}

// ParsePaymentStatus validates a wire value
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentStatusPending, PaymentStatusPartial, PaymentStatusPaid, PaymentStatusFailed:
		return st, nil
	}
	return "", ValidationError{Field: "status", Msg: fmt.Sprintf("unknown payment status %q", s)}
}

// ParsePaymentType validates a wire value
func ParsePaymentType(s string) (PaymentType, error) {
	switch pt := PaymentType(strings.ToUpper(strings.TrimSpace(s))); pt {
	case PaymentTypeOneTime, PaymentTypeInstallment:
		return pt, nil
	}
	return "", ValidationError{Field: "paymentType", Msg: fmt.Sprintf("unknown payment type %q", s)}
}

// UnmarshalJSON rejects unknown methods instead of storing them
func (m *PaymentMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return ValidationError{Field: "paymentMethod", Msg: "must be a string"}
	}
	v, err := ParsePaymentMethod(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// UnmarshalJSON rejects unknown statuses instead of storing them
func (s *PaymentStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return ValidationError{Field: "status", Msg: "must be a string"}
	}
	v, err := ParsePaymentStatus(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// CreatedBy identifies the operator who recorded a payment
type CreatedBy struct {
	ID    uuid.UUID `json:"id" db:"created_by_id"`
	Email string    `json:"email" db:"created_by_email"`
}

// Payment is a single recorded payment against a booking
type Payment struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	BookingID   uuid.UUID     `json:"tourMemberId" db:"booking_id"`
	Amount      Money         `json:"amount" db:"amount"`
	Method      PaymentMethod `json:"paymentMethod" db:"payment_method"`
	Status      PaymentStatus `json:"status" db:"status"`
	PaymentDate time.Time     `json:"paymentDate" db:"payment_date"`
	Note        *string       `json:"note,omitempty" db:"note"`
	CreatedBy   *CreatedBy    `json:"createdBy,omitempty" db:"-"`
	Seq         int64         `json:"-" db:"seq"`
}

// CountsTowardsTotal reports whether the payment contributes to the paid total
func (p Payment) CountsTowardsTotal() bool {
	return p.Status != PaymentStatusFailed
}

// AddPaymentRequest is the body for recording a new payment
type AddPaymentRequest struct {
	Amount      Money          `json:"amount"`
	Method      PaymentMethod  `json:"paymentMethod"`
	Note        *string        `json:"note,omitempty"`
	Status      *PaymentStatus `json:"status,omitempty"`
	PaymentDate *time.Time     `json:"paymentDate,omitempty"`
}

// UpdatePaymentRequest patches an existing payment. Nil fields are left unchanged.
type UpdatePaymentRequest struct {
	Amount      *Money         `json:"amount,omitempty"`
	Method      *PaymentMethod `json:"paymentMethod,omitempty"`
	Note        *string        `json:"note,omitempty"`
	Status      *PaymentStatus `json:"status,omitempty"`
	PaymentDate *time.Time     `json:"paymentDate,omitempty"`
}
