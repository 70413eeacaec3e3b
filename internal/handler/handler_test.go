package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travel/internal/domain"
	"travel/internal/gateway"
	"travel/internal/middleware"
	"travel/internal/repository"
	"travel/internal/service"
	"travel/internal/tests"
)

const secret = "handler-test-secret"

var (
	owner = domain.User{ID: "user-1", Email: "abebe@example.com", FirstName: "Abebe", LastName: "Kebede"}
	other = domain.User{ID: "user-2", Email: "other@example.com"}
)

type testServer struct {
	router  *gin.Engine
	store   *tests.MockStore
	gateway *tests.MockGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := tests.NewMockStore()
	gw := tests.NewMockGateway()
	dispatcher := tests.NewMockDispatcher()
	store.AddListing(&domain.Listing{ID: "listing-1", Title: "Lakeside Lodge", PricePerNight: decimal.RequireFromString("50.00")})

	payments := service.NewPaymentService(store.Bookings(), store.Payments(), store.Listings(), store.Users(),
		store, gw, dispatcher, tests.NewMockLockStore(), nil, service.PaymentConfig{}, zerolog.Nop())
	bookings := service.NewBookingService(store.Bookings(), store.Listings(), store.Users(), store, dispatcher, zerolog.Nop())

	bookingHandler := NewBookingHandler(bookings)
	paymentHandler := NewPaymentHandler(payments)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/payments/verify", paymentHandler.VerifyPayment)
	r.POST("/payments/verify", paymentHandler.VerifyPayment)

	authed := r.Group("/", middleware.Auth(secret))
	authed.POST("/bookings", bookingHandler.CreateBooking)
	authed.GET("/bookings", bookingHandler.ListBookings)
	authed.GET("/bookings/:id", bookingHandler.GetBooking)
	authed.POST("/bookings/:id/cancel", bookingHandler.CancelBooking)
	authed.POST("/bookings/:id/initiate-payment", paymentHandler.InitiatePayment)
	authed.GET("/payments/status/:id", paymentHandler.GetPaymentStatus)

	return &testServer{router: r, store: store, gateway: gw}
}

func (s *testServer) do(t *testing.T, method, path string, user *domain.User, body string, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if user != nil {
		token, err := middleware.SignToken(secret, *user, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) seedBooking(id string, status domain.BookingStatus) {
	s.store.AddBooking(&domain.Booking{
		ID:         id,
		ListingID:  "listing-1",
		UserID:     owner.ID,
		CheckIn:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:   time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Guests:     2,
		TotalPrice: decimal.RequireFromString("100.00"),
		Status:     status,
	})
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("load booking: %w", repository.ErrNotFound), http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrUnauthenticated, http.StatusUnauthorized},
		{service.ErrAlreadyPaid, http.StatusBadRequest},
		{service.ErrMissingTxRef, http.StatusBadRequest},
		{service.ErrInvalidDateRange, http.StatusBadRequest},
		{service.ErrBookingNotPayable, http.StatusBadRequest},
		{&gateway.Error{Kind: gateway.ErrRejected, Message: "bad"}, http.StatusBadRequest},
		{&gateway.Error{Kind: gateway.ErrUnavailable}, http.StatusServiceUnavailable},
		{service.ErrPaymentNotPending, http.StatusConflict},
		{service.ErrBookingNotCancellable, http.StatusConflict},
		{service.ErrVerificationInProgress, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapErrorToHTTPStatus(tc.err), tc.err.Error())
	}
}

func TestCreateBooking(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/bookings", &owner,
		`{"listing_id":"listing-1","check_in":"2025-07-10","check_out":"2025-07-13","guests":2}`, "application/json")

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Booking created successfully. Confirmation email will be sent shortly.", body["message"])
	booking := body["booking"].(map[string]any)
	assert.Equal(t, "150.00", booking["total_price"])
	assert.Equal(t, "pending", booking["status"])
	assert.Equal(t, float64(3), booking["nights"])
}

func TestCreateBooking_Invalid(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]string{
		"bad json":     `{`,
		"bad date":     `{"listing_id":"listing-1","check_in":"10/07/2025","check_out":"2025-07-13","guests":2}`,
		"reversed":     `{"listing_id":"listing-1","check_in":"2025-07-13","check_out":"2025-07-10","guests":2}`,
		"zero guests":  `{"listing_id":"listing-1","check_in":"2025-07-10","check_out":"2025-07-13","guests":0}`,
		"missing list": `{"check_in":"2025-07-10","check_out":"2025-07-13","guests":1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/bookings", &owner, body, "application/json")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode(t, w)["request_id"])
		})
	}
}

func TestCreateBooking_Unauthenticated(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/bookings", nil, `{}`, "application/json")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetBooking_Forbidden(t *testing.T) {
	s := newTestServer(t)
	s.seedBooking("booking-1", domain.BookingStatusPending)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/bookings/booking-1", &owner, "", "").Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, "/bookings/booking-1", &other, "", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/bookings/missing", &owner, "", "").Code)
}

func TestCancelBooking(t *testing.T) {
	s := newTestServer(t)
	s.seedBooking("booking-1", domain.BookingStatusPending)

	w := s.do(t, http.MethodPost, "/bookings/booking-1/cancel", &owner, "", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/bookings/booking-1/cancel", &owner, "", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPost, "/bookings/booking-1/initiate-payment", &owner, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInitiateAndVerifyPayment(t *testing.T) {
	s := newTestServer(t)
	s.seedBooking("booking-1", domain.BookingStatusPending)

	w := s.do(t, http.MethodPost, "/bookings/booking-1/initiate-payment", &owner, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	initiated := decode(t, w)
	assert.Equal(t, "Payment initiated successfully", initiated["message"])
	txRef := initiated["transaction_reference"].(string)
	paymentID := initiated["payment_id"].(string)
	assert.True(t, strings.HasPrefix(txRef, "tx-"))
	assert.Contains(t, initiated["checkout_url"], txRef)

	w = s.do(t, http.MethodGet, "/payments/verify?tx_ref="+url.QueryEscape(txRef), nil, "", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	verified := decode(t, w)
	assert.Equal(t, "Payment verified and confirmed", verified["message"])
	assert.Equal(t, "booking-1", verified["booking_id"])
	assert.Equal(t, "completed", verified["payment_status"])

	// A second initiation is refused once paid.
	w = s.do(t, http.MethodPost, "/bookings/booking-1/initiate-payment", &owner, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, service.ErrAlreadyPaid.Error(), decode(t, w)["error"])

	w = s.do(t, http.MethodGet, "/payments/status/"+paymentID, &owner, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, "100.00", status["amount"])
	assert.Equal(t, "ETB", status["currency"])
	assert.Equal(t, txRef, status["transaction_id"])

	w = s.do(t, http.MethodGet, "/payments/status/"+paymentID, &other, "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestVerifyPayment_Sources(t *testing.T) {
	cases := []struct {
		name        string
		method      string
		path        string
		body        string
		contentType string
	}{
		{"query trx_ref", http.MethodGet, "/payments/verify?trx_ref=tx-1", "", ""},
		{"form body", http.MethodPost, "/payments/verify", "tx_ref=tx-1", "application/x-www-form-urlencoded"},
		{"json body", http.MethodPost, "/payments/verify", `{"trx_ref":"tx-1","status":"success"}`, "application/json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t)
			s.seedBooking("booking-1", domain.BookingStatusPending)
			s.store.AddPayment(&domain.Payment{ID: "payment-1", BookingID: "booking-1", TxRef: "tx-1",
				Amount: decimal.RequireFromString("100.00"), Currency: "ETB", Status: domain.PaymentStatusPending})

			w := s.do(t, tc.method, tc.path, nil, tc.body, tc.contentType)
			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
		})
	}
}

func TestVerifyPayment_Outcomes(t *testing.T) {
	s := newTestServer(t)
	s.seedBooking("booking-1", domain.BookingStatusPending)
	s.store.AddPayment(&domain.Payment{ID: "payment-1", BookingID: "booking-1", TxRef: "tx-1",
		Amount: decimal.RequireFromString("100.00"), Currency: "ETB", Status: domain.PaymentStatusPending})
	s.gateway.SetVerdict("tx-1", gateway.ExternalStatusFailed)

	w := s.do(t, http.MethodGet, "/payments/verify?tx_ref=tx-1", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"message": "Payment failed", "payment_status": "failed"}, decode(t, w))

	w = s.do(t, http.MethodGet, "/payments/verify", nil, "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "tx_ref is required", decode(t, w)["error"])

	w = s.do(t, http.MethodGet, "/payments/verify?tx_ref=tx-unknown", nil, "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.gateway.VerifyError = &gateway.Error{Kind: gateway.ErrUnavailable, Op: "verify"}
	w = s.do(t, http.MethodGet, "/payments/verify?tx_ref=tx-1", nil, "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "payment service temporarily unavailable", decode(t, w)["error"])
}

func TestInternalErrorsAreHidden(t *testing.T) {
	s := newTestServer(t)
	s.store.CreateBookingError = errors.New("pq: connection refused")

	w := s.do(t, http.MethodPost, "/bookings", &owner,
		`{"listing_id":"listing-1","check_in":"2025-07-10","check_out":"2025-07-13","guests":2}`, "application/json")

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w)["error"])
}
