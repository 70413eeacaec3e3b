package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/v1/", SecretKey: "CHASECK_TEST-secret", Timeout: 2 * time.Second})
}

func TestClient_Initialize(t *testing.T) {
	t.Parallel()

	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/transaction/initialize", r.URL.Path)
		assert.Equal(t, "Bearer CHASECK_TEST-secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Hosted Link","status":"success","data":{"checkout_url":"https://checkout.chapa.co/checkout/payment/abc"}}`))
	})

	res, err := client.Initialize(context.Background(), InitializeRequest{
		Amount:      decimal.RequireFromString("100"),
		Currency:    "ETB",
		Email:       "abebe@example.com",
		FirstName:   "Abebe",
		LastName:    "Bikila",
		TxRef:       "tx-123",
		CallbackURL: "https://api.example.com/payments/verify",
		ReturnURL:   "https://app.example.com/bookings",
		Title:       "Travel Booking Payment",
		Description: "Payment for booking b-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.chapa.co/checkout/payment/abc", res.CheckoutURL)

	assert.Equal(t, "100.00", got["amount"])
	assert.Equal(t, "ETB", got["currency"])
	assert.Equal(t, "tx-123", got["tx_ref"])
	customization, ok := got["customization"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Travel Booking Payment", customization["title"])
}

func TestClient_InitializeRejected(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid currency","status":"failed","data":null}`))
	})

	_, err := client.Initialize(context.Background(), InitializeRequest{Amount: decimal.NewFromInt(1), TxRef: "tx-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "payment gateway rejected the request: Invalid currency", err.Error())
}

func TestClient_RejectedWithFieldErrorsHidesPayload(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":{"email":["secret internal detail"]},"status":"failed","data":null}`))
	})

	_, err := client.Initialize(context.Background(), InitializeRequest{Amount: decimal.NewFromInt(1), TxRef: "tx-1"})
	require.ErrorIs(t, err, ErrRejected)
	assert.NotContains(t, err.Error(), "secret internal detail")
}

func TestClient_ServerErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.Verify(context.Background(), "tx-1")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "payment service temporarily unavailable", err.Error())
}

func TestClient_TimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{BaseURL: srv.URL, SecretKey: "k", Timeout: 50 * time.Millisecond})
	_, err := client.Verify(context.Background(), "tx-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus ExternalStatus
		wantMethod string
	}{
		{
			name:       "success with payment_method",
			body:       `{"message":"Payment details","status":"success","data":{"status":"success","payment_method":"telebirr","reference":"APabc"}}`,
			wantStatus: ExternalStatusSuccess,
			wantMethod: "telebirr",
		},
		{
			name:       "success with method field",
			body:       `{"message":"Payment details","status":"success","data":{"status":"success","method":"card"}}`,
			wantStatus: ExternalStatusSuccess,
			wantMethod: "card",
		},
		{
			name:       "failed transaction",
			body:       `{"message":"Payment details","status":"success","data":{"status":"failed"}}`,
			wantStatus: ExternalStatusFailed,
		},
		{
			name:       "pending treated as failed",
			body:       `{"message":"Payment details","status":"success","data":{"status":"pending"}}`,
			wantStatus: ExternalStatusFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/transaction/verify/tx-42", r.URL.Path)
				_, _ = w.Write([]byte(tt.body))
			})

			res, err := client.Verify(context.Background(), "tx-42")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, tt.wantMethod, res.PaymentMethod)
		})
	}
}

func TestClient_VerifyUnknownTransaction(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Invalid transaction or Transaction not found","status":"failed","data":null}`))
	})

	_, err := client.Verify(context.Background(), "tx-unknown")
	require.ErrorIs(t, err, ErrRejected)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusNotFound, gwErr.StatusCode)
	assert.Equal(t, "verify", gwErr.Op)
}

func TestMessageOf_TruncatesOnRuneBoundary(t *testing.T) {
	// 199 ASCII bytes followed by a two-byte rune straddles the cap.
	long := strings.Repeat("a", maxMessageLen-1) + "é" + strings.Repeat("ክ", 10)
	raw, err := json.Marshal(long)
	require.NoError(t, err)

	msg := messageOf(raw)
	assert.True(t, utf8.ValidString(msg))
	assert.LessOrEqual(t, len(msg), maxMessageLen)
	assert.Equal(t, strings.Repeat("a", maxMessageLen-1), msg)

	short, err := json.Marshal("ክፍያው አልተሳካም")
	require.NoError(t, err)
	assert.Equal(t, "ክፍያው አልተሳካም", messageOf(short))
}
