package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/ledger-backend/internal/database"
	"github.com/tourdesk/ledger-backend/internal/middleware"
	"github.com/tourdesk/ledger-backend/internal/models"
	"github.com/tourdesk/ledger-backend/internal/services"
	"github.com/tourdesk/ledger-backend/pkg/jwt"
	"github.com/tourdesk/ledger-backend/pkg/sms"
)

var (
	testPackage = models.TourPackage{ID: uuid.New(), PackageName: "Goa Getaway", Price: models.NewMoney(5000, 0)}
	paymentDay  = time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)
)

type testServer struct {
	router   *gin.Engine
	store    *database.MemoryStore
	admin    string
	operator string
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testBooking(name, mobile string, total models.Money, paid ...models.Money) *models.Booking {
	b := &models.Booking{
		ID:          uuid.New(),
		Name:        name,
		MobileNo:    mobile,
		TourPackage: testPackage,
		MemberCount: 1,
		NetCost:     total,
		TotalCost:   total,
		PaymentType: models.PaymentTypeInstallment,
		CreatedAt:   paymentDay.AddDate(0, -1, 0),
	}
	for _, amount := range paid {
		b.Payments = append(b.Payments, models.Payment{
			ID:          uuid.New(),
			BookingID:   b.ID,
			Amount:      amount,
			Method:      models.PaymentMethodCash,
			Status:      models.PaymentStatusPaid,
			PaymentDate: paymentDay,
			CreatedBy:   &models.CreatedBy{ID: uuid.New(), Email: "ops@tourdesk.in"},
		})
	}
	b.ApplyLedger(services.ComputeLedger(b.TotalCost, b.Payments, nil))
	return b
}

func newTestServer(t *testing.T, bookings ...*models.Booking) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := testLogger()

	store := database.NewMemoryStore()
	store.Seed([]models.TourPackage{testPackage}, bookings)

	paymentCfg := services.DefaultPaymentServiceConfig()
	paymentCfg.RetryBackoff = 0
	payments := services.NewPaymentService(store, paymentCfg, logger)
	reminders := services.NewReminderService(store, logger)
	notifierCfg := services.DefaultBulkNotifierConfig()
	notifierCfg.BaseBackoff = 0
	notifierCfg.MaxBackoff = 0
	notifierCfg.MaxBatchSize = 5
	notifier := services.NewBulkNotifier(store, reminders, sms.NewLogGateway(logger), notifierCfg, logger)

	jwtService := jwt.NewService("handler-test-secret", time.Hour)
	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtService, logger))
	RegisterRoutes(api,
		NewPaymentHandler(payments, logger),
		NewReminderHandler(services.NewReminderQueryService(store), reminders, notifier, logger),
	)

	admin, err := jwtService.GenerateAccessToken(uuid.New(), "admin@tourdesk.in", []string{models.RoleAdmin})
	require.NoError(t, err)
	operator, err := jwtService.GenerateAccessToken(uuid.New(), "desk@tourdesk.in", []string{"operator"})
	require.NoError(t, err)

	return &testServer{router: router, store: store, admin: admin, operator: operator}
}

func (s *testServer) do(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0 Safari/537.36")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error"`
	Field   string `json:"field"`
	Data    T      `json:"data"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func TestRoutes_RequireAuthentication(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, "", http.MethodGet, "/api/v1/payment-reminders/tour-packages", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestPaymentHandler_GetBooking(t *testing.T) {
	booking := testBooking("Asha Rao", "9876543210", models.NewMoney(10000, 0), models.NewMoney(2500, 0))
	srv := newTestServer(t, booking)
	path := "/api/v1/tour-members/" + booking.ID.String()

	t.Run("Operator does not see attribution", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotContains(t, w.Body.String(), "createdBy")

		env := decode[models.BookingView](t, w)
		assert.True(t, env.Success)
		assert.Equal(t, models.NewMoney(2500, 0), env.Data.TotalPaid)
		assert.Equal(t, models.NewMoney(7500, 0), env.Data.Remaining)
		assert.Equal(t, models.PaymentStatusPartial, env.Data.PaymentStatus)
		assert.InDelta(t, 25.0, env.Data.ProgressPercent, 0.001)
	})

	t.Run("Admin sees attribution", func(t *testing.T) {
		w := srv.do(t, srv.admin, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ops@tourdesk.in")
	})

	t.Run("Unknown booking", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, "/api/v1/tour-members/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Malformed id", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, "/api/v1/tour-members/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "id", decode[any](t, w).Field)
	})
}

func TestPaymentHandler_PaymentLifecycle(t *testing.T) {
	booking := testBooking("Vikram Shah", "9876500002", models.NewMoney(10000, 0))
	srv := newTestServer(t, booking)
	base := "/api/v1/tour-members/" + booking.ID.String()

	w := srv.do(t, srv.admin, http.MethodPost, base+"/payments", `{"amount": 6000.50, "paymentMethod": "upi", "note": "advance"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	added := decode[models.BookingView](t, w)
	require.Len(t, added.Data.Payments, 1)
	assert.Equal(t, models.NewMoney(6000, 50), added.Data.TotalPaid)
	assert.Equal(t, models.PaymentStatusPartial, added.Data.PaymentStatus)
	assert.Equal(t, models.PaymentMethodUPI, added.Data.Payments[0].Method)
	paymentPath := base + "/payments/" + added.Data.Payments[0].ID.String()

	w = srv.do(t, srv.operator, http.MethodPut, paymentPath, map[string]interface{}{"amount": "9999.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[models.BookingView](t, w)
	assert.Equal(t, models.PaymentStatusPartial, updated.Data.PaymentStatus)
	assert.Equal(t, models.NewMoney(0, 50), updated.Data.Remaining)

	w = srv.do(t, srv.operator, http.MethodGet, paymentPath+"/receipt", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt-")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))

	w = srv.do(t, srv.operator, http.MethodDelete, paymentPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	deleted := decode[models.BookingView](t, w)
	assert.Empty(t, deleted.Data.Payments)
	assert.Equal(t, models.PaymentStatusPending, deleted.Data.PaymentStatus)

	w = srv.do(t, srv.operator, http.MethodGet, paymentPath+"/receipt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, srv.operator, http.MethodGet, base+"/payment-audits", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, srv.admin, http.MethodGet, base+"/payment-audits", nil)
	require.Equal(t, http.StatusOK, w.Code)
	audits := decode[[]models.PaymentAudit](t, w)
	require.Len(t, audits.Data, 3)
	assert.Equal(t, models.PaymentEventAdded, audits.Data[0].EventType)
	assert.Equal(t, models.PaymentEventUpdated, audits.Data[1].EventType)
	assert.Equal(t, models.PaymentEventDeleted, audits.Data[2].EventType)
	require.NotNil(t, audits.Data[0].DeviceInfo)
	assert.Contains(t, *audits.Data[0].DeviceInfo, "Linux")
}

func TestPaymentHandler_AddPaymentValidation(t *testing.T) {
	booking := testBooking("Meera Iyer", "9876500003", models.NewMoney(10000, 0))
	srv := newTestServer(t, booking)
	path := "/api/v1/tour-members/" + booking.ID.String() + "/payments"

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing amount", body: `{"paymentMethod": "CASH"}`, field: "amount"},
		{name: "missing method", body: `{"amount": 100}`, field: "paymentMethod"},
		{name: "unknown method", body: `{"amount": 100, "paymentMethod": "BARTER"}`, field: "paymentMethod"},
		{name: "zero amount", body: `{"amount": 0, "paymentMethod": "CASH"}`, field: "amount"},
		{name: "sub-paisa amount", body: `{"amount": 10.005, "paymentMethod": "CASH"}`, field: "amount"},
		{name: "oversized amount", body: `{"amount": 184467440737095516.17, "paymentMethod": "CASH"}`, field: "amount"},
		{name: "broken json", body: `{"amount":`, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, srv.operator, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			env := decode[any](t, w)
			assert.False(t, env.Success)
			assert.Equal(t, "validation_error", env.Error)
			assert.Equal(t, tt.field, env.Field)
		})
	}

	t.Run("Unknown booking", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodPost, "/api/v1/tour-members/"+uuid.NewString()+"/payments", `{"amount": 100, "paymentMethod": "CASH"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestPaymentHandler_OverrideStatus(t *testing.T) {
	booking := testBooking("Farah Khan", "9876500005", models.NewMoney(10000, 0), models.NewMoney(10000, 0))
	srv := newTestServer(t, booking)
	path := "/api/v1/tour-members/" + booking.ID.String() + "/payment-status"

	w := srv.do(t, srv.admin, http.MethodPatch, path, `{"status": "PAID"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, srv.admin, http.MethodPatch, path, `{"status": "FAILED"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStatusFailed, decode[models.BookingView](t, w).Data.PaymentStatus)

	w = srv.do(t, srv.admin, http.MethodPatch, path, `{"status": null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.PaymentStatusPaid, decode[models.BookingView](t, w).Data.PaymentStatus)
}

func TestReminderHandler_ListCandidates(t *testing.T) {
	pending := testBooking("Asha Rao", "9876500001", models.NewMoney(10000, 0))
	partial := testBooking("Vikram Shah", "9876500002", models.NewMoney(10000, 0), models.NewMoney(4000, 0))
	srv := newTestServer(t, pending, partial)
	path := "/api/v1/payment-reminders/tour-members/payment-reminders"

	ids := func(w *httptest.ResponseRecorder) []uuid.UUID {
		env := decode[[]models.BookingView](t, w)
		out := make([]uuid.UUID, len(env.Data))
		for i, v := range env.Data {
			out[i] = v.ID
		}
		return out
	}

	t.Run("No filter", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.ElementsMatch(t, []uuid.UUID{pending.ID, partial.ID}, ids(w))
	})

	t.Run("Status filter", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path+"?paymentStatus=pending", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []uuid.UUID{pending.ID}, ids(w))
	})

	t.Run("Bare dates cover the whole day", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path+"?dateFrom=2026-03-10&dateTo=2026-03-10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []uuid.UUID{partial.ID}, ids(w))
	})

	t.Run("RFC3339 bounds", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path+"?dateFrom=2026-03-10T11:00:01Z", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, ids(w))
	})

	t.Run("Search", func(t *testing.T) {
		w := srv.do(t, srv.operator, http.MethodGet, path+"?search=vikram", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []uuid.UUID{partial.ID}, ids(w))
	})

	for _, query := range []string{
		"?paymentStatus=SETTLED",
		"?paymentType=WEEKLY",
		"?tourPackageId=goa",
		"?dateFrom=yesterday",
		"?dateFrom=2026-03-11&dateTo=2026-03-10",
	} {
		t.Run("Rejects "+query, func(t *testing.T) {
			w := srv.do(t, srv.operator, http.MethodGet, path+query, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestReminderHandler_ListPackages(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, srv.operator, http.MethodGet, "/api/v1/payment-reminders/tour-packages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode[[]models.TourPackage](t, w)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "Goa Getaway", env.Data[0].PackageName)
}

func TestReminderHandler_SendBulk(t *testing.T) {
	reachable := testBooking("Asha Rao", "+91 98765 00001", models.NewMoney(10000, 0))
	unreachable := testBooking("No Phone", "", models.NewMoney(10000, 0))
	srv := newTestServer(t, reachable, unreachable)
	path := "/api/v1/payment-reminders/sms/bulk"

	w := srv.do(t, srv.operator, http.MethodPost, path, map[string]interface{}{
		"memberIds": []string{reachable.ID.String(), unreachable.ID.String(), reachable.ID.String()},
		"message":   "Your balance for Goa Getaway is due",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	env := decode[models.BatchResult](t, w)
	assert.False(t, env.Success)
	assert.Equal(t, "Sent 1 of 2 reminders", env.Message)
	require.Len(t, env.Data.Outcomes, 2)
	assert.Equal(t, models.DispatchSent, env.Data.Outcomes[0].Status)
	assert.Equal(t, "9876500001", env.Data.Outcomes[0].Contact)
	assert.Equal(t, models.DispatchFailedPermanent, env.Data.Outcomes[1].Status)
	assert.Equal(t, 1, env.Data.Counts[models.DispatchFailedPermanent])

	stored, err := srv.store.GetBooking(t.Context(), reachable.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.ReminderCount)

	t.Run("Validation", func(t *testing.T) {
		tooMany := make([]string, 6)
		for i := range tooMany {
			tooMany[i] = uuid.NewString()
		}
		for name, body := range map[string]interface{}{
			"empty ids":     map[string]interface{}{"memberIds": []string{}, "message": "hi"},
			"missing ids":   map[string]interface{}{"message": "hi"},
			"blank message": map[string]interface{}{"memberIds": []string{reachable.ID.String()}, "message": "  "},
			"too many ids":  map[string]interface{}{"memberIds": tooMany, "message": "hi"},
			"bad id":        map[string]interface{}{"memberIds": []string{"nope"}, "message": "hi"},
		} {
			t.Run(name, func(t *testing.T) {
				w := srv.do(t, srv.operator, http.MethodPost, path, body)
				assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			})
		}
	})
}

func TestReminderHandler_SendIndividualAndRecord(t *testing.T) {
	booking := testBooking("Kabir Das", "09876500004", models.NewMoney(10000, 0))
	srv := newTestServer(t, booking)

	w := srv.do(t, srv.operator, http.MethodPost, "/api/v1/payment-reminders/sms/individual", map[string]string{
		"memberId": booking.ID.String(),
		"message":  "Reminder: balance due",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	sent := decode[models.DispatchOutcome](t, w)
	assert.True(t, sent.Success)
	assert.Equal(t, models.DispatchSent, sent.Data.Status)
	require.NotNil(t, sent.Data.Reminder)
	assert.Equal(t, 1, sent.Data.Reminder.ReminderCount)

	w = srv.do(t, srv.operator, http.MethodPatch, "/api/v1/payment-reminders/tour-members/"+booking.ID.String()+"/reminder", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stamp := decode[models.ReminderStamp](t, w)
	assert.Equal(t, 2, stamp.Data.ReminderCount)
	assert.False(t, stamp.Data.LastReminderAt.IsZero())

	w = srv.do(t, srv.operator, http.MethodPatch, "/api/v1/payment-reminders/tour-members/"+uuid.NewString()+"/reminder", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(t, srv.operator, http.MethodPost, "/api/v1/payment-reminders/sms/individual", map[string]string{
		"memberId": uuid.NewString(),
		"message":  "Reminder",
	})
	require.Equal(t, http.StatusOK, w.Code)
	missing := decode[models.DispatchOutcome](t, w)
	assert.False(t, missing.Success)
	assert.Equal(t, models.DispatchFailedPermanent, missing.Data.Status)
}
