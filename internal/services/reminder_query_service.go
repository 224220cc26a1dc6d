package services

import (
	"context"
	"fmt"
	"iter"

	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
)

// ReminderQueryService selects bookings that need a payment reminder
type ReminderQueryService struct {
	store database.BookingStore
}

// NewReminderQueryService creates a new reminder query service
func NewReminderQueryService(store database.BookingStore) *ReminderQueryService {
	return &ReminderQueryService{store: store}
}

// Query returns the matching bookings, never-reminded first then oldest
// reminder first. Package, status and type are evaluated by the store; search
// and the payment date range are applied lazily while iterating. The sequence
// can be ranged over more than once and never mutates the loaded bookings.
func (s *ReminderQueryService) Query(ctx context.Context, filter models.ReminderFilter) (iter.Seq[models.BookingView], error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	bookings, err := s.store.ListBookings(ctx, database.PrefilterFrom(filter))
	if err != nil {
		return nil, fmt.Errorf("failed to query reminder candidates: %w", err)
	}

	return func(yield func(models.BookingView) bool) {
		for _, b := range bookings {
			if !filter.Matches(b) {
				continue
			}
			if !yield(models.NewBookingView(b.Clone())) {
				return
			}
		}
	}, nil
}

// ListPackages returns the tour packages available for filtering
func (s *ReminderQueryService) ListPackages(ctx context.Context) ([]models.TourPackage, error) {
	packages, err := s.store.ListPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tour packages: %w", err)
	}
	return packages, nil
}
