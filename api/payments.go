package api

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Domenick1991/tourbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	service     payment.PaymentUseCase
	frontendURL string
}

type callbackResponse struct {
	Reference     string `json:"reference"`
	PaymentStatus string `json:"paymentStatus"`
}

// NewPaymentHandler builds the gateway callback handler. With an empty
// frontendURL the browser return answers with JSON instead of a redirect.
func NewPaymentHandler(service payment.PaymentUseCase, frontendURL string) *PaymentHandler {
	return &PaymentHandler{service: service, frontendURL: strings.TrimRight(frontendURL, "/")}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.GET("/return", h.handleReturn)
	router.GET("/webhook", h.handleWebhook)
}

func (h *PaymentHandler) handleReturn(c *gin.Context) {
	cb := payment.ReturnCallback{
		PaymentRef: c.Query("payment_ref"),
		Status:     c.Query("status"),
		OrderID:    c.Query("order_id"),
	}

	b, err := h.service.HandleReturn(c.Request.Context(), cb)
	if h.frontendURL == "" {
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, callbackResponse{Reference: b.Reference, PaymentStatus: string(b.PaymentStatus)})
		return
	}

	q := url.Values{}
	q.Set("booking", cb.OrderID)
	if err != nil {
		_ = c.Error(err)
		q.Set("status", "error")
		q.Set("code", http.StatusText(statusFor(err)))
	} else {
		q.Set("booking", b.Reference)
		q.Set("status", string(b.PaymentStatus))
	}
	c.Redirect(http.StatusFound, h.frontendURL+"/booking/confirmation?"+q.Encode())
}

func (h *PaymentHandler) handleWebhook(c *gin.Context) {
	b, err := h.service.HandleWebhook(c.Request.Context(), c.Query("payment_ref"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, callbackResponse{Reference: b.Reference, PaymentStatus: string(b.PaymentStatus)})
}
