package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
)

// ReminderService owns reminder bookkeeping. It does not know how a reminder was delivered.
type ReminderService struct {
	store  database.BookingStore
	logger *logrus.Logger
	now    func() time.Time
}

// NewReminderService creates a new reminder service
func NewReminderService(store database.BookingStore, logger *logrus.Logger) *ReminderService {
	return &ReminderService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// RecordReminder increments the reminder count and stamps the time in one
// atomic store operation
func (s *ReminderService) RecordReminder(ctx context.Context, actor models.Actor, bookingID uuid.UUID) (models.ReminderStamp, error) {
	stamp, err := s.store.IncrementReminder(ctx, bookingID, s.now().UTC())
	if err != nil {
		if mapped := mapStoreError(err, bookingID, uuid.Nil); models.IsNotFound(mapped) {
			return models.ReminderStamp{}, mapped
		}
		return models.ReminderStamp{}, fmt.Errorf("failed to record reminder: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":     bookingID,
		"reminder_count": stamp.ReminderCount,
		"actor_id":       actor.UserID,
	}).Debug("Reminder recorded")

	return stamp, nil
}
