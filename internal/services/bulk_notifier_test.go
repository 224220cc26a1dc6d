package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/pkg/sms"
)

func newTestNotifier(store database.BookingStore, gateway sms.Gateway, workers int) *BulkNotifier {
	cfg := BulkNotifierConfig{
		Workers:      workers,
		MaxAttempts:  3,
		BaseBackoff:  0,
		MaxBackoff:   0,
		MaxBatchSize: 50,
	}
	return NewBulkNotifier(store, NewReminderService(store, testLogger()), gateway, cfg, testLogger())
}

func reminderCount(t *testing.T, store database.BookingStore, id uuid.UUID) int {
	t.Helper()
	b, err := store.GetBooking(context.Background(), id)
	require.NoError(t, err)
	return b.ReminderCount
}

func statuses(result models.BatchResult) []models.DispatchStatus {
	out := make([]models.DispatchStatus, len(result.Outcomes))
	for i, o := range result.Outcomes {
		out[i] = o.Status
	}
	return out
}

func TestBulkNotifier_SendBulk_MissingContact(t *testing.T) {
	first := newBooking("Asha Rao", "9876500001", rupees(10000))
	second := newBooking("Vikram Shah", "", rupees(10000))
	second.Members = []models.Member{{ID: uuid.New(), Name: "Priya Shah", MobileNo: "+91 98765 00002"}}
	noContact := newBooking("Walk In", "", rupees(10000))

	store := seededStore(first, second, noContact)
	gateway := newFakeGateway()
	notifier := newTestNotifier(store, gateway, 4)

	result, err := notifier.SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{first.ID, second.ID, noContact.ID},
		Message:    "Your balance is due",
	})
	require.NoError(t, err)

	assert.Equal(t, []models.DispatchStatus{models.DispatchSent, models.DispatchSent, models.DispatchFailedPermanent}, statuses(result))
	assert.Equal(t, "9876500002", result.Outcomes[1].Contact)
	assert.Equal(t, 2, result.Counts[models.DispatchSent])
	assert.Equal(t, 1, result.Counts[models.DispatchFailedPermanent])
	assert.True(t, result.PartialFailure())
	assert.False(t, result.Cancelled)

	assert.Equal(t, 1, reminderCount(t, store, first.ID))
	assert.Equal(t, 1, reminderCount(t, store, second.ID))
	assert.Equal(t, 0, reminderCount(t, store, noContact.ID))
	assert.Equal(t, 2, gateway.totalCalls())

	require.NotNil(t, result.Outcomes[0].Reminder)
	assert.Equal(t, 1, result.Outcomes[0].Reminder.ReminderCount)
}

func TestBulkNotifier_SendBulk_Dedupes(t *testing.T) {
	a := newBooking("A", "9876500011", rupees(100))
	b := newBooking("B", "9876500012", rupees(100))
	store := seededStore(a, b)
	notifier := newTestNotifier(store, newFakeGateway(), 2)

	result, err := notifier.SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{a.ID, b.ID, a.ID, a.ID},
		Message:    "Reminder",
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 2)
	assert.Equal(t, a.ID, result.Outcomes[0].BookingID)
	assert.Equal(t, b.ID, result.Outcomes[1].BookingID)
	assert.Equal(t, 1, reminderCount(t, store, a.ID))
}

func TestBulkNotifier_SendBulk_GatewayErrors(t *testing.T) {
	transient := sms.NewTransientError("rate_limited", errors.New("slow down"))
	permanent := sms.NewPermanentError("invalid_number", errors.New("unknown subscriber"))

	recovers := newBooking("Recovers", "9876500021", rupees(100))
	exhausted := newBooking("Exhausted", "9876500022", rupees(100))
	rejected := newBooking("Rejected", "9876500023", rupees(100))
	unclassified := newBooking("Unclassified", "9876500024", rupees(100))

	store := seededStore(recovers, exhausted, rejected, unclassified)
	gateway := newFakeGateway()
	gateway.fail("9876500021", transient)
	gateway.fail("9876500022", transient, transient, transient, transient)
	gateway.fail("9876500023", permanent)
	gateway.fail("9876500024", errors.New("socket hang up"))

	result, err := newTestNotifier(store, gateway, 2).SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{recovers.ID, exhausted.ID, rejected.ID, unclassified.ID},
		Message:    "Reminder",
	})
	require.NoError(t, err)

	assert.Equal(t, []models.DispatchStatus{
		models.DispatchSent,
		models.DispatchFailedTransientExhausted,
		models.DispatchFailedPermanent,
		models.DispatchSent,
	}, statuses(result))

	assert.Equal(t, 2, result.Outcomes[0].Attempts)
	assert.Equal(t, 3, result.Outcomes[1].Attempts)
	assert.Equal(t, 1, result.Outcomes[2].Attempts)
	assert.Equal(t, 2, result.Outcomes[3].Attempts)
	assert.NotEmpty(t, result.Outcomes[1].Error)

	assert.Equal(t, 3, gateway.callsTo("9876500022"))
	assert.Equal(t, 1, gateway.callsTo("9876500023"))

	assert.Equal(t, 1, reminderCount(t, store, recovers.ID))
	assert.Equal(t, 0, reminderCount(t, store, exhausted.ID))
	assert.Equal(t, 0, reminderCount(t, store, rejected.ID))
	assert.Equal(t, 1, reminderCount(t, store, unclassified.ID))
}

func TestBulkNotifier_SendBulk_UnknownBooking(t *testing.T) {
	gateway := newFakeGateway()
	notifier := newTestNotifier(seededStore(), gateway, 1)

	result, err := notifier.SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{uuid.New()},
		Message:    "Reminder",
	})
	require.NoError(t, err)
	assert.Equal(t, []models.DispatchStatus{models.DispatchFailedPermanent}, statuses(result))
	assert.Equal(t, 0, gateway.totalCalls())
}

func TestBulkNotifier_SendBulk_CancelledMidFlight(t *testing.T) {
	bookings := make([]*models.Booking, 10)
	ids := make([]uuid.UUID, 10)
	for i := range bookings {
		bookings[i] = newBooking(fmt.Sprintf("Traveller %d", i), fmt.Sprintf("98765001%02d", i), rupees(100))
		ids[i] = bookings[i].ID
	}
	store := seededStore(bookings...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gateway := newFakeGateway()
	// The fourth send is in flight when the operator cancels
	gateway.onSend = func(call int) {
		if call == 4 {
			cancel()
		}
	}

	result, err := newTestNotifier(store, gateway, 1).SendBulk(ctx, testActor, models.BulkSmsPayload{
		BookingIDs: ids,
		Message:    "Reminder",
	})
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 10)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 4, result.Counts[models.DispatchSent])
	assert.Equal(t, 6, result.Counts[models.DispatchNotScheduled])
	assert.Equal(t, 4, gateway.totalCalls())

	seen := make(map[uuid.UUID]bool)
	for i, o := range result.Outcomes {
		assert.False(t, seen[o.BookingID], "duplicate outcome for %s", o.BookingID)
		seen[o.BookingID] = true
		assert.Equal(t, ids[i], o.BookingID)

		want := 0
		if o.Status == models.DispatchSent {
			want = 1
		}
		assert.Equal(t, want, reminderCount(t, store, o.BookingID))
	}
}

func TestBulkNotifier_SendBulk_AlreadyCancelled(t *testing.T) {
	b := newBooking("Late", "9876500031", rupees(100))
	gateway := newFakeGateway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestNotifier(seededStore(b), gateway, 2).SendBulk(ctx, testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{b.ID},
		Message:    "Reminder",
	})
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, []models.DispatchStatus{models.DispatchNotScheduled}, statuses(result))
	assert.Equal(t, 0, gateway.totalCalls())
}

func TestBulkNotifier_SendBulk_BoundedParallelism(t *testing.T) {
	var ids []uuid.UUID
	var bookings []*models.Booking
	for i := 0; i < 12; i++ {
		b := newBooking(fmt.Sprintf("P%d", i), fmt.Sprintf("98765002%02d", i), rupees(100))
		bookings = append(bookings, b)
		ids = append(ids, b.ID)
	}
	gateway := newFakeGateway()
	gateway.delay = 10 * time.Millisecond

	result, err := newTestNotifier(seededStore(bookings...), gateway, 3).SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: ids,
		Message:    "Reminder",
	})
	require.NoError(t, err)
	assert.Equal(t, 12, result.Counts[models.DispatchSent])

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	assert.LessOrEqual(t, gateway.maxInFl, 3)
	assert.GreaterOrEqual(t, gateway.maxInFl, 1)
}

func TestBulkNotifier_SendBulk_BookkeepingFailureStaysSent(t *testing.T) {
	b := newBooking("Unlucky", "9876500041", rupees(100))
	store := &brokenReminderStore{BookingStore: seededStore(b)}

	result, err := newTestNotifier(store, newFakeGateway(), 1).SendBulk(context.Background(), testActor, models.BulkSmsPayload{
		BookingIDs: []uuid.UUID{b.ID},
		Message:    "Reminder",
	})
	require.NoError(t, err)
	require.Len(t, result.Outcomes, 1)
	assert.Equal(t, models.DispatchSent, result.Outcomes[0].Status)
	assert.Contains(t, result.Outcomes[0].Error, "not recorded")
	assert.Nil(t, result.Outcomes[0].Reminder)
}

func TestBulkNotifier_SendBulk_Validation(t *testing.T) {
	b := newBooking("Any", "9876500051", rupees(100))
	notifier := newTestNotifier(seededStore(b), newFakeGateway(), 1)

	tests := []struct {
		name    string
		payload models.BulkSmsPayload
	}{
		{name: "blank message", payload: models.BulkSmsPayload{BookingIDs: []uuid.UUID{b.ID}, Message: "   "}},
		{name: "no bookings", payload: models.BulkSmsPayload{Message: "Reminder"}},
		{name: "too many bookings", payload: func() models.BulkSmsPayload {
			ids := make([]uuid.UUID, 51)
			for i := range ids {
				ids[i] = uuid.New()
			}
			return models.BulkSmsPayload{BookingIDs: ids, Message: "Reminder"}
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := notifier.SendBulk(context.Background(), testActor, tt.payload)
			assert.True(t, models.IsValidation(err), "got %v", err)
		})
	}
}

func TestBulkNotifier_SendIndividual(t *testing.T) {
	b := newBooking("Solo", "9876500061", rupees(100))
	store := seededStore(b)
	gateway := newFakeGateway()
	gateway.fail("9876500061", sms.NewTransientError("timeout", errors.New("deadline")))
	notifier := newTestNotifier(store, gateway, 1)

	outcome, err := notifier.SendIndividual(context.Background(), testActor, b.ID, "Reminder")
	require.NoError(t, err)
	assert.Equal(t, models.DispatchSent, outcome.Status)
	assert.Equal(t, 2, outcome.Attempts)
	assert.Equal(t, 1, reminderCount(t, store, b.ID))

	_, err = notifier.SendIndividual(context.Background(), testActor, b.ID, "")
	assert.True(t, models.IsValidation(err))
}

func TestBulkNotifier_Backoff(t *testing.T) {
	n := NewBulkNotifier(nil, nil, nil, BulkNotifierConfig{
		Workers:     1,
		MaxAttempts: 5,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  350 * time.Millisecond,
	}, testLogger())

	assert.Equal(t, 100*time.Millisecond, n.backoff(1))
	assert.Equal(t, 200*time.Millisecond, n.backoff(2))
	assert.Equal(t, 350*time.Millisecond, n.backoff(3))
	assert.Equal(t, 350*time.Millisecond, n.backoff(10))
}
