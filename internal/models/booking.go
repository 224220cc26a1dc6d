package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Document maps document kinds to identifiers, e.g. {"aadhaar": "XXXX-1234"}
type Document map[string]string

// Value implements the driver.Valuer interface
// Returns JSON as string for compatibility with simple protocol mode
func (d Document) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	bytes, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// Scan implements the sql.Scanner interface
func (d *Document) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*d = nil
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return fmt.Errorf("unsupported document type %T", value)
}

// TourPackage is the product a booking is made against
type TourPackage struct {
	ID          uuid.UUID `json:"id" db:"id"`
	PackageName string    `json:"packageName" db:"package_name"`
	Price       Money     `json:"price" db:"price"`
}

// Member is a traveller on a booking. Carried as pass-through data only.
type Member struct {
	ID       uuid.UUID `json:"id" db:"id"`
	Name     string    `json:"name" db:"name"`
	MobileNo string    `json:"mobileNo" db:"mobile_no"`
	Address  string    `json:"address" db:"address"`
	Document Document  `json:"document,omitempty" db:"document"`
}

// Ledger is the derived financial view of a booking
type Ledger struct {
	TotalPaid Money         `json:"totalPaid"`
	Remaining Money         `json:"remaining"`
	Status    PaymentStatus `json:"paymentStatus"`
}

// Booking (a "tour member" in the dashboard) is a reservation with its own ledger
type Booking struct {
	ID             uuid.UUID      `json:"id" db:"id"`
	Name           string         `json:"name" db:"name"`
	MobileNo       string         `json:"mobileNo" db:"mobile_no"`
	TourPackage    TourPackage    `json:"tourPackage" db:"package"`
	PackagePrice   Money          `json:"packagePrice" db:"package_price"`
	MemberCount    int            `json:"memberCount" db:"member_count"`
	NetCost        Money          `json:"netCost" db:"net_cost"`
	Discount       Money          `json:"discount,omitempty" db:"discount"`
	TotalCost      Money          `json:"totalCost" db:"total_cost"`
	PaymentType    PaymentType    `json:"paymentType" db:"payment_type"`
	PaymentStatus  PaymentStatus  `json:"paymentStatus" db:"payment_status"`
	StatusOverride *PaymentStatus `json:"statusOverride,omitempty" db:"status_override"`
	TotalPaid      Money          `json:"totalPaid" db:"total_paid"`
	Remaining      Money          `json:"remaining" db:"remaining"`
	ReminderCount  int            `json:"reminderCount" db:"reminder_count"`
	LastReminderAt *time.Time     `json:"lastReminderAt" db:"last_reminder_at"`
	Payments       []Payment      `json:"payments" db:"-"`
	Members        []Member       `json:"members" db:"-"`
	CreatedAt      time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time      `json:"updatedAt" db:"updated_at"`
}

// ApplyLedger copies derived fields onto the booking
func (b *Booking) ApplyLedger(l Ledger) {
	b.TotalPaid = l.TotalPaid
	b.Remaining = l.Remaining
	b.PaymentStatus = l.Status
}

// Ledger returns the stored derived fields
func (b *Booking) Ledger() Ledger {
	return Ledger{TotalPaid: b.TotalPaid, Remaining: b.Remaining, Status: b.PaymentStatus}
}

// FindPayment returns the index of a payment, or -1
func (b *Booking) FindPayment(id uuid.UUID) int {
	for i := range b.Payments {
		if b.Payments[i].ID == id {
			return i
		}
	}
	return -1
}

// Contact returns the booking's reminder address. The lead contact wins,
// then the first member with a mobile number.
func (b *Booking) Contact() string {
	if b.MobileNo != "" {
		return b.MobileNo
	}
	for _, m := range b.Members {
		if m.MobileNo != "" {
			return m.MobileNo
		}
	}
	return ""
}

// Clone returns a deep copy so callers never share payment slices
func (b *Booking) Clone() *Booking {
	c := *b
	if b.StatusOverride != nil {
		s := *b.StatusOverride
		c.StatusOverride = &s
	}
	if b.LastReminderAt != nil {
		t := *b.LastReminderAt
		c.LastReminderAt = &t
	}
	c.Payments = make([]Payment, len(b.Payments))
	copy(c.Payments, b.Payments)
	c.Members = make([]Member, len(b.Members))
	for i, m := range b.Members {
		if m.Document != nil {
			doc := make(Document, len(m.Document))
			for k, v := range m.Document {
				doc[k] = v
			}
			m.Document = doc
		}
		c.Members[i] = m
	}
	return &c
}

// BookingView is the authoritative post-mutation view returned to callers
type BookingView struct {
	*Booking
	ProgressPercent float64 `json:"progressPercent"`
}

// NewBookingView wraps b and computes the paid progress, capped at 100
func NewBookingView(b *Booking) BookingView {
	progress := 100.0
	if b.TotalCost > 0 {
		progress = float64(b.TotalPaid) * 100 / float64(b.TotalCost)
		if progress > 100 {
			progress = 100
		}
		if progress < 0 {
			progress = 0
		}
	}
	return BookingView{Booking: b, ProgressPercent: progress}
}

// WithoutCreatedBy strips operator attribution for non-privileged viewers
func (v BookingView) WithoutCreatedBy() BookingView {
	b := v.Booking.Clone()
	for i := range b.Payments {
		b.Payments[i].CreatedBy = nil
	}
	v.Booking = b
	return v
}
