package database

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tourdesk/ledger-backend/internal/models"
)

// memoryEntry guards one booking. The channel is a mutex whose acquisition
// can be abandoned when the context ends.
type memoryEntry struct {
	lock    chan struct{}
	booking *models.Booking
}

func newMemoryEntry(b *models.Booking) *memoryEntry {
	return &memoryEntry{lock: make(chan struct{}, 1), booking: b}
}

func (e *memoryEntry) acquire(ctx context.Context) error {
	select {
	case e.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *memoryEntry) release() { <-e.lock }

// MemoryStore is an in-process BookingStore for development and demos
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*memoryEntry
	packages map[uuid.UUID]models.TourPackage

	auditMu sync.Mutex
	audits  map[uuid.UUID][]models.PaymentAudit

	seq atomic.Int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[uuid.UUID]*memoryEntry),
		packages: make(map[uuid.UUID]models.TourPackage),
		audits:   make(map[uuid.UUID][]models.PaymentAudit),
	}
}

// Seed adds packages and bookings, replacing any with the same ID.
// Booking packages are registered automatically.
func (s *MemoryStore) Seed(packages []models.TourPackage, bookings []*models.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range packages {
		s.packages[p.ID] = p
	}
	for _, b := range bookings {
		c := b.Clone()
		for i := range c.Payments {
			if c.Payments[i].Seq == 0 {
				c.Payments[i].Seq = s.seq.Add(1)
			}
		}
		if _, ok := s.packages[c.TourPackage.ID]; !ok && c.TourPackage.ID != uuid.Nil {
			s.packages[c.TourPackage.ID] = c.TourPackage
		}
		s.bookings[c.ID] = newMemoryEntry(c)
	}
}

func (s *MemoryStore) entry(id uuid.UUID) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bookings[id]
	return e, ok
}

func (s *MemoryStore) snapshot(ctx context.Context, e *memoryEntry) (*models.Booking, error) {
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	defer e.release()
	return e.booking.Clone(), nil
}

// GetBooking returns a copy of the booking
func (s *MemoryStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	e, ok := s.entry(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	return s.snapshot(ctx, e)
}

// ListBookings returns copies of matching bookings in reminder order
func (s *MemoryStore) ListBookings(ctx context.Context, f BookingPrefilter) ([]*models.Booking, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.bookings))
	for _, e := range s.bookings {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	bookings := make([]*models.Booking, 0, len(entries))
	for _, e := range entries {
		b, err := s.snapshot(ctx, e)
		if err != nil {
			return nil, err
		}
		if f.TourPackageID != nil && b.TourPackage.ID != *f.TourPackageID {
			continue
		}
		if f.PaymentStatus != nil && b.PaymentStatus != *f.PaymentStatus {
			continue
		}
		if f.PaymentType != nil && b.PaymentType != *f.PaymentType {
			continue
		}
		bookings = append(bookings, b)
	}

	SortByReminderOrder(bookings)
	return bookings, nil
}

// SortByReminderOrder orders never-reminded bookings first, then by oldest reminder
func SortByReminderOrder(bookings []*models.Booking) {
	slices.SortStableFunc(bookings, func(a, b *models.Booking) int {
		switch {
		case a.LastReminderAt == nil && b.LastReminderAt != nil:
			return -1
		case a.LastReminderAt != nil && b.LastReminderAt == nil:
			return 1
		case a.LastReminderAt != nil && b.LastReminderAt != nil:
			if c := a.LastReminderAt.Compare(*b.LastReminderAt); c != 0 {
				return c
			}
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// ListPackages returns all packages sorted by name
func (s *MemoryStore) ListPackages(ctx context.Context) ([]models.TourPackage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	packages := make([]models.TourPackage, 0, len(s.packages))
	for _, p := range s.packages {
		packages = append(packages, p)
	}
	s.mu.RUnlock()

	slices.SortFunc(packages, func(a, b models.TourPackage) int {
		if a.PackageName < b.PackageName {
			return -1
		}
		if a.PackageName > b.PackageName {
			return 1
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return packages, nil
}

// IncrementReminder bumps the counter under the booking lock
func (s *MemoryStore) IncrementReminder(ctx context.Context, id uuid.UUID, at time.Time) (models.ReminderStamp, error) {
	e, ok := s.entry(id)
	if !ok {
		return models.ReminderStamp{}, ErrBookingNotFound
	}
	if err := e.acquire(ctx); err != nil {
		return models.ReminderStamp{}, err
	}
	defer e.release()

	e.booking.ReminderCount++
	stamped := at
	e.booking.LastReminderAt = &stamped
	e.booking.UpdatedAt = at

	return models.ReminderStamp{
		BookingID:      id,
		ReminderCount:  e.booking.ReminderCount,
		LastReminderAt: at,
	}, nil
}

// ListAudits returns a copy of the booking's audit trail
func (s *MemoryStore) ListAudits(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	return slices.Clone(s.audits[bookingID]), nil
}

// InLedgerTx stages writes on copies of the locked bookings and publishes
// them only when fn succeeds
func (s *MemoryStore) InLedgerTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx := &memoryTx{store: s, locked: make(map[uuid.UUID]*memoryEntry), staged: make(map[uuid.UUID]*models.Booking)}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for id, b := range tx.staged {
		tx.locked[id].booking = b
	}
	if len(tx.audits) > 0 {
		s.auditMu.Lock()
		for _, a := range tx.audits {
			s.audits[a.BookingID] = append(s.audits[a.BookingID], a)
		}
		s.auditMu.Unlock()
	}
	return nil
}

type memoryTx struct {
	store  *MemoryStore
	locked map[uuid.UUID]*memoryEntry
	staged map[uuid.UUID]*models.Booking
	audits []models.PaymentAudit
}

func (t *memoryTx) releaseAll() {
	for _, e := range t.locked {
		e.release()
	}
}

func (t *memoryTx) lockedBooking(id uuid.UUID) (*models.Booking, error) {
	b, ok := t.staged[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// LockBooking acquires the booking for the rest of the transaction
func (t *memoryTx) LockBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if b, ok := t.staged[id]; ok {
		return b.Clone(), nil
	}
	e, ok := t.store.entry(id)
	if !ok {
		return nil, ErrBookingNotFound
	}
	if err := e.acquire(ctx); err != nil {
		return nil, err
	}
	t.locked[id] = e
	t.staged[id] = e.booking.Clone()
	return t.staged[id].Clone(), nil
}

func (t *memoryTx) InsertPayment(_ context.Context, p *models.Payment) error {
	b, err := t.lockedBooking(p.BookingID)
	if err != nil {
		return err
	}
	p.Seq = t.store.seq.Add(1)
	b.Payments = append(b.Payments, *p)
	return nil
}

func (t *memoryTx) UpdatePayment(_ context.Context, p *models.Payment) error {
	b, err := t.lockedBooking(p.BookingID)
	if err != nil {
		return err
	}
	i := b.FindPayment(p.ID)
	if i < 0 {
		return ErrPaymentNotFound
	}
	updated := *p
	updated.Seq = b.Payments[i].Seq
	updated.CreatedBy = b.Payments[i].CreatedBy
	b.Payments[i] = updated
	return nil
}

func (t *memoryTx) DeletePayment(_ context.Context, bookingID, paymentID uuid.UUID) error {
	b, err := t.lockedBooking(bookingID)
	if err != nil {
		return err
	}
	i := b.FindPayment(paymentID)
	if i < 0 {
		return ErrPaymentNotFound
	}
	b.Payments = slices.Delete(b.Payments, i, i+1)
	return nil
}

func (t *memoryTx) SaveLedger(_ context.Context, booking *models.Booking) error {
	b, err := t.lockedBooking(booking.ID)
	if err != nil {
		return err
	}
	b.ApplyLedger(booking.Ledger())
	b.StatusOverride = nil
	if booking.StatusOverride != nil {
		s := *booking.StatusOverride
		b.StatusOverride = &s
	}
	b.UpdatedAt = booking.UpdatedAt
	return nil
}

func (t *memoryTx) AppendAudit(_ context.Context, a *models.PaymentAudit) error {
	if _, err := t.lockedBooking(a.BookingID); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	t.audits = append(t.audits, *a)
	return nil
}
