package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/pkg/sms"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var testPackage = models.TourPackage{
	ID:          uuid.MustParse("6f1c1f3e-1a57-4a55-9b0e-2f3c8a91d001"),
	PackageName: "Goa Getaway",
	Price:       models.NewMoney(5000, 0),
}

var testActor = models.Actor{
	UserID:    uuid.MustParse("0a4b7c1d-2e3f-4a5b-8c9d-0e1f2a3b4c5d"),
	Email:     "ops@tourdesk.in",
	Roles:     []string{models.RoleAdmin},
	IPAddress: "10.0.0.7",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// newBooking builds a booking whose stored ledger matches its PAID payments
func newBooking(name, mobile string, totalCost models.Money, amounts ...models.Money) *models.Booking {
	b := &models.Booking{
		ID:           uuid.New(),
		Name:         name,
		MobileNo:     mobile,
		TourPackage:  testPackage,
		PackagePrice: testPackage.Price,
		MemberCount:  1,
		NetCost:      totalCost,
		TotalCost:    totalCost,
		PaymentType:  models.PaymentTypeInstallment,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime,
	}
	for i, amount := range amounts {
		b.Payments = append(b.Payments, models.Payment{
			ID:          uuid.New(),
			BookingID:   b.ID,
			Amount:      amount,
			Method:      models.PaymentMethodUPI,
			Status:      models.PaymentStatusPaid,
			PaymentDate: baseTime.AddDate(0, 0, i),
		})
	}
	recomputeLedger(b)
	return b
}

func seededStore(bookings ...*models.Booking) *database.MemoryStore {
	store := database.NewMemoryStore()
	store.Seed([]models.TourPackage{testPackage}, bookings)
	return store
}

func rupees(r int64) models.Money { return models.NewMoney(r, 0) }

// conflictStore fails the first n ledger transactions with ErrConcurrentUpdate
type conflictStore struct {
	database.BookingStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *conflictStore) InLedgerTx(ctx context.Context, fn func(tx database.LedgerTx) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls <= s.failures
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("failed to commit transaction: %w", database.ErrConcurrentUpdate)
	}
	return s.BookingStore.InLedgerTx(ctx, fn)
}

// brokenReminderStore cannot record reminders
type brokenReminderStore struct {
	database.BookingStore
}

func (s *brokenReminderStore) IncrementReminder(context.Context, uuid.UUID, time.Time) (models.ReminderStamp, error) {
	return models.ReminderStamp{}, fmt.Errorf("connection reset")
}

// fakeGateway replays scripted errors per contact, then succeeds
type fakeGateway struct {
	mu       sync.Mutex
	script   map[string][]error
	calls    map[string]int
	total    int
	inFlight int
	maxInFl  int
	delay    time.Duration
	onSend   func(call int)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{script: make(map[string][]error), calls: make(map[string]int)}
}

func (g *fakeGateway) fail(contact string, errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script[contact] = append(g.script[contact], errs...)
}

func (g *fakeGateway) Send(ctx context.Context, contact, message string) (sms.DeliveryResult, error) {
	g.mu.Lock()
	g.total++
	call := g.total
	g.calls[contact]++
	g.inFlight++
	if g.inFlight > g.maxInFl {
		g.maxInFl = g.inFlight
	}
	var err error
	if queue := g.script[contact]; len(queue) > 0 {
		err, g.script[contact] = queue[0], queue[1:]
	}
	onSend := g.onSend
	g.mu.Unlock()

	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if onSend != nil {
		onSend(call)
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if err != nil {
		return sms.DeliveryResult{}, err
	}
	return sms.DeliveryResult{MessageID: fmt.Sprintf("msg-%d", call), Gateway: g.Name(), AcceptedAt: time.Now()}, nil
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) callsTo(contact string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[contact]
}

func (g *fakeGateway) totalCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.total
}
