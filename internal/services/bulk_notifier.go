package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/pkg/sms"
	"github.com/tourdesk/ledger-backend/pkg/validator"
	"golang.org/x/sync/errgroup"
)

// BulkNotifierConfig bounds gateway fan-out and retries
type BulkNotifierConfig struct {
	Workers      int           // Concurrent gateway calls
	MaxAttempts  int           // Gateway attempts per booking, including the first
	BaseBackoff  time.Duration // Wait after the first transient failure
	MaxBackoff   time.Duration // Upper bound for the doubling backoff
	MaxBatchSize int           // Unique bookings per bulk request
}

// DefaultBulkNotifierConfig returns default configuration
func DefaultBulkNotifierConfig() BulkNotifierConfig {
	return BulkNotifierConfig{
		Workers:      8,
		MaxAttempts:  3,
		BaseBackoff:  200 * time.Millisecond,
		MaxBackoff:   5 * time.Second,
		MaxBatchSize: 500,
	}
}

// BulkNotifier sends reminder messages through the gateway and records a
// reminder for every booking the gateway accepted
type BulkNotifier struct {
	store     database.BookingStore
	reminders *ReminderService
	gateway   sms.Gateway
	phones    *validator.PhoneValidator
	config    BulkNotifierConfig
	logger    *logrus.Logger
}

// NewBulkNotifier creates a new bulk notifier
func NewBulkNotifier(
	store database.BookingStore,
	reminders *ReminderService,
	gateway sms.Gateway,
	config BulkNotifierConfig,
	logger *logrus.Logger,
) *BulkNotifier {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &BulkNotifier{
		store:     store,
		reminders: reminders,
		gateway:   gateway,
		phones:    validator.NewPhoneValidator(),
		config:    config,
		logger:    logger,
	}
}

// SendBulk dispatches message to every unique booking in the payload. Item
// failures are reported per outcome and never abort the batch. Cancelling ctx
// stops scheduling; sends already started finish and are reported.
func (n *BulkNotifier) SendBulk(ctx context.Context, actor models.Actor, payload models.BulkSmsPayload) (models.BatchResult, error) {
	message, err := validateMessage(payload.Message)
	if err != nil {
		return models.BatchResult{}, err
	}

	ids := dedupeIDs(payload.BookingIDs)
	if len(ids) == 0 {
		return models.BatchResult{}, models.ValidationError{Field: "memberIds", Msg: "at least one booking is required"}
	}
	if n.config.MaxBatchSize > 0 && len(ids) > n.config.MaxBatchSize {
		return models.BatchResult{}, models.ValidationError{
			Field: "memberIds",
			Msg:   fmt.Sprintf("at most %d bookings per request", n.config.MaxBatchSize),
		}
	}

	outcomes := make([]models.DispatchOutcome, len(ids))
	for i, id := range ids {
		outcomes[i] = models.DispatchOutcome{BookingID: id, Status: models.DispatchNotScheduled}
	}

	// Started sends must not be torn down mid-retry by the caller's cancellation
	detached := context.WithoutCancel(ctx)
	// slots bounds the fan-out instead of g.SetLimit: g.Go would block
	// without watching ctx, scheduling one more item after a cancel
	slots := make(chan struct{}, n.config.Workers)
	var g errgroup.Group
	cancelled := false

schedule:
	for i, id := range ids {
		select {
		case <-ctx.Done():
			cancelled = true
			break schedule
		case slots <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-slots
			cancelled = true
			break schedule
		}

		g.Go(func() error {
			defer func() { <-slots }()
			outcomes[i] = n.dispatch(detached, actor, id, message)
			return nil
		})
	}
	g.Wait()

	result := models.NewBatchResult(outcomes, cancelled)

	entry := n.logger.WithFields(logrus.Fields{
		"actor_id":  actor.UserID,
		"total":     len(outcomes),
		"sent":      result.Counts[models.DispatchSent],
		"permanent": result.Counts[models.DispatchFailedPermanent],
		"exhausted": result.Counts[models.DispatchFailedTransientExhausted],
		"skipped":   result.Counts[models.DispatchNotScheduled],
		"cancelled": cancelled,
	})
	if result.PartialFailure() {
		entry.Warn("Bulk reminder finished with failures")
	} else {
		entry.Info("Bulk reminder finished")
	}

	return result, nil
}

// SendIndividual runs the bulk pipeline for a single booking
func (n *BulkNotifier) SendIndividual(ctx context.Context, actor models.Actor, bookingID uuid.UUID, message string) (models.DispatchOutcome, error) {
	message, err := validateMessage(message)
	if err != nil {
		return models.DispatchOutcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.DispatchOutcome{}, err
	}
	return n.dispatch(context.WithoutCancel(ctx), actor, bookingID, message), nil
}

// dispatch resolves the contact, sends with retries and records the reminder
func (n *BulkNotifier) dispatch(ctx context.Context, actor models.Actor, bookingID uuid.UUID, message string) models.DispatchOutcome {
	outcome := models.DispatchOutcome{BookingID: bookingID}
	log := n.logger.WithField("booking_id", bookingID)

	booking, err := n.store.GetBooking(ctx, bookingID)
	if err != nil {
		if mapped := mapStoreError(err, bookingID, uuid.Nil); models.IsNotFound(mapped) {
			outcome.Status = models.DispatchFailedPermanent
			outcome.Error = mapped.Error()
			return outcome
		}
		log.WithError(err).Error("Failed to load booking for reminder")
		outcome.Status = models.DispatchFailedTransientExhausted
		outcome.Error = "failed to load booking"
		return outcome
	}

	contact, err := n.phones.Validate(booking.Contact())
	if err != nil {
		outcome.Status = models.DispatchFailedPermanent
		outcome.Error = "no valid contact: " + err.Error()
		return outcome
	}
	outcome.Contact = contact

	for attempt := 1; ; attempt++ {
		outcome.Attempts = attempt

		_, err := n.gateway.Send(ctx, contact, message)
		if err == nil {
			break
		}

		attemptLog := log.WithError(err).WithField("attempt", attempt)
		if sms.IsPermanent(err) {
			attemptLog.Error("Reminder rejected by gateway")
			outcome.Status = models.DispatchFailedPermanent
			outcome.Error = err.Error()
			return outcome
		}
		if attempt >= n.config.MaxAttempts {
			attemptLog.Error("Reminder retries exhausted")
			outcome.Status = models.DispatchFailedTransientExhausted
			outcome.Error = err.Error()
			return outcome
		}

		attemptLog.Warn("Reminder send failed, retrying")
		if err := sleepCtx(ctx, n.backoff(attempt)); err != nil {
			outcome.Status = models.DispatchFailedTransientExhausted
			outcome.Error = err.Error()
			return outcome
		}
	}

	// The message has left; from here the outcome is SENT whatever happens to bookkeeping
	outcome.Status = models.DispatchSent
	stamp, err := n.reminders.RecordReminder(ctx, actor, bookingID)
	if err != nil {
		log.WithError(err).Error("Reminder sent but not recorded")
		outcome.Error = "reminder sent but not recorded: " + err.Error()
		return outcome
	}
	outcome.Reminder = &stamp

	log.WithFields(logrus.Fields{
		"attempt":        outcome.Attempts,
		"reminder_count": stamp.ReminderCount,
	}).Info("Reminder sent")

	return outcome
}

// backoff doubles from BaseBackoff after each failed attempt, capped at MaxBackoff
func (n *BulkNotifier) backoff(attempt int) time.Duration {
	d := n.config.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if n.config.MaxBackoff > 0 && d >= n.config.MaxBackoff {
			return n.config.MaxBackoff
		}
	}
	if n.config.MaxBackoff > 0 && d > n.config.MaxBackoff {
		return n.config.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validateMessage(message string) (string, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return "", models.ValidationError{Field: "message", Msg: "must not be blank"}
	}
	return trimmed, nil
}

// dedupeIDs drops repeated ids, keeping first-seen order
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
