package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReminderFilter selects bookings that need a payment reminder
type ReminderFilter struct {
	Search        string
	TourPackageID *uuid.UUID
	PaymentStatus *PaymentStatus
	PaymentType   *PaymentType
	DateFrom      *time.Time
	DateTo        *time.Time
}

// HasDateRange reports whether either bound is set
func (f ReminderFilter) HasDateRange() bool {
	return f.DateFrom != nil || f.DateTo != nil
}

// Validate rejects inverted date ranges
func (f ReminderFilter) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return ValidationError{Field: "dateTo", Msg: "must not be before dateFrom"}
	}
	return nil
}

// Matches applies every filter rule to a single booking
func (f ReminderFilter) Matches(b *Booking) bool {
	if f.TourPackageID != nil && b.TourPackage.ID != *f.TourPackageID {
		return false
	}
	if f.PaymentStatus != nil && b.PaymentStatus != *f.PaymentStatus {
		return false
	}
	if f.PaymentType != nil && b.PaymentType != *f.PaymentType {
		return false
	}
	if !f.matchesSearch(b) {
		return false
	}
	if f.HasDateRange() {
		return f.anyPaymentInRange(b)
	}
	return true
}

func (f ReminderFilter) matchesSearch(b *Booking) bool {
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	if needle == "" {
		return true
	}
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}
	if contains(b.Name) || contains(b.MobileNo) {
		return true
	}
	for _, m := range b.Members {
		if contains(m.Name) || contains(m.MobileNo) {
			return true
		}
	}
	return false
}

func (f ReminderFilter) anyPaymentInRange(b *Booking) bool {
	for _, p := range b.Payments {
		if f.DateFrom != nil && p.PaymentDate.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && p.PaymentDate.After(*f.DateTo) {
			continue
		}
		return true
	}
	return false
}

// DispatchStatus is the per-booking result of a reminder send
type DispatchStatus string

const (
	DispatchSent                     DispatchStatus = "SENT"
	DispatchFailedPermanent          DispatchStatus = "FAILED_PERMANENT"
	DispatchFailedTransientExhausted DispatchStatus = "FAILED_TRANSIENT_EXHAUSTED"
	DispatchNotScheduled             DispatchStatus = "NOT_SCHEDULED"
)

// ReminderStamp is the bookkeeping state after a recorded reminder
type ReminderStamp struct {
	BookingID      uuid.UUID `json:"tourMemberId"`
	ReminderCount  int       `json:"reminderCount"`
	LastReminderAt time.Time `json:"lastReminderAt"`
}

// DispatchOutcome is one entry of a bulk or individual send
type DispatchOutcome struct {
	BookingID uuid.UUID      `json:"tourMemberId"`
	Status    DispatchStatus `json:"status"`
	Attempts  int            `json:"attempts"`
	Contact   string         `json:"contact,omitempty"`
	Error     string         `json:"error,omitempty"`
	Reminder  *ReminderStamp `json:"reminder,omitempty"`
}

// BulkSmsPayload is a bulk reminder request
type BulkSmsPayload struct {
	BookingIDs []uuid.UUID `json:"memberIds"`
	Message    string      `json:"message"`
}

// BatchResult is the aggregate outcome of a bulk send. Mixed outcomes are data, not an error.
type BatchResult struct {
	Outcomes  []DispatchOutcome      `json:"outcomes"`
	Counts    map[DispatchStatus]int `json:"counts"`
	Cancelled bool                   `json:"cancelled"`
}

// NewBatchResult counts outcomes per status
func NewBatchResult(outcomes []DispatchOutcome, cancelled bool) BatchResult {
	counts := map[DispatchStatus]int{
		DispatchSent:                     0,
		DispatchFailedPermanent:          0,
		DispatchFailedTransientExhausted: 0,
		DispatchNotScheduled:             0,
	}
	for _, o := range outcomes {
		counts[o.Status]++
	}
	return BatchResult{Outcomes: outcomes, Counts: counts, Cancelled: cancelled}
}

// PartialFailure reports whether any item did not end up SENT
func (r BatchResult) PartialFailure() bool {
	return r.Counts[DispatchSent] != len(r.Outcomes)
}
