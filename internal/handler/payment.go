package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"travel/internal/domain"
	"travel/internal/service"
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// InitiatePaymentResponse is returned after a checkout is opened.
type InitiatePaymentResponse struct {
	Message              string `json:"message"`
	PaymentID            string `json:"payment_id"`
	CheckoutURL          string `json:"checkout_url"`
	TransactionReference string `json:"transaction_reference"`
}

// VerifyPaymentResponse reports the outcome of a verification.
type VerifyPaymentResponse struct {
	Message       string `json:"message"`
	BookingID     string `json:"booking_id,omitempty"`
	PaymentStatus string `json:"payment_status"`
}

// PaymentResponse is the HTTP projection of a payment.
type PaymentResponse struct {
	ID            string     `json:"id"`
	BookingID     string     `json:"booking_id"`
	Amount        string     `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method,omitempty"`
	TransactionID string     `json:"transaction_id"`
	CheckoutURL   string     `json:"checkout_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	VerifiedAt    *time.Time `json:"verified_at,omitempty"`
}

// verifyParams collects the reference from any of the places the gateway puts it.
type verifyParams struct {
	TxRef  string `json:"tx_ref" form:"tx_ref"`
	TrxRef string `json:"trx_ref" form:"trx_ref"`
}

// InitiatePayment handles POST /bookings/:id/initiate-payment
func (h *PaymentHandler) InitiatePayment(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	result, err := h.paymentService.InitiatePayment(c.Request.Context(), service.InitiatePaymentRequest{
		BookingID: c.Param("id"),
		Requester: claims.User(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, InitiatePaymentResponse{
		Message:              "Payment initiated successfully",
		PaymentID:            result.PaymentID,
		CheckoutURL:          result.CheckoutURL,
		TransactionReference: result.TxRef,
	})
}

// VerifyPayment handles GET|POST /payments/verify
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	result, err := h.paymentService.VerifyPayment(c.Request.Context(), txRefFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}

	if result.Status == domain.PaymentStatusCompleted {
		respondJSON(c, http.StatusOK, VerifyPaymentResponse{
			Message:       "Payment verified and confirmed",
			BookingID:     result.BookingID,
			PaymentStatus: string(result.Status),
		})
		return
	}

	respondJSON(c, http.StatusBadRequest, VerifyPaymentResponse{
		Message:       "Payment failed",
		PaymentStatus: string(result.Status),
	})
}

// GetPaymentStatus handles GET /payments/status/:id
func (h *PaymentHandler) GetPaymentStatus(c *gin.Context) {
	claims, ok := currentUser(c)
	if !ok {
		return
	}

	payment, err := h.paymentService.GetPaymentStatus(c.Request.Context(), c.Param("id"), claims.Subject)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, PaymentResponse{
		ID:            payment.ID,
		BookingID:     payment.BookingID,
		Amount:        payment.Amount.StringFixed(2),
		Currency:      payment.Currency,
		Status:        string(payment.Status),
		PaymentMethod: payment.PaymentMethod,
		TransactionID: payment.TxRef,
		CheckoutURL:   payment.CheckoutURL,
		CreatedAt:     payment.CreatedAt,
		UpdatedAt:     payment.UpdatedAt,
		VerifiedAt:    payment.VerifiedAt,
	})
}

// txRefFrom reads tx_ref (or trx_ref) from the query, a form body or a JSON body.
func txRefFrom(c *gin.Context) string {
	var params verifyParams
	_ = c.ShouldBindQuery(&params)

	if params.TxRef == "" && params.TrxRef == "" && c.Request.Method == http.MethodPost {
		if strings.HasPrefix(c.ContentType(), binding.MIMEJSON) {
			_ = c.ShouldBindJSON(&params)
		} else {
			_ = c.ShouldBindWith(&params, binding.Form)
		}
	}

	if params.TxRef != "" {
		return params.TxRef
	}
	return params.TrxRef
}
