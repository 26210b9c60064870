package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service  booking.BookingUseCase
	payments payment.PaymentUseCase
}

type selectedOptionResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"priceCents"`
}

type travelerResponse struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	BirthDate string `json:"birthDate"`
	IDNumber  string `json:"idNumber"`
}

type bookingResponse struct {
	Reference           string                   `json:"reference"`
	PackageID           int                      `json:"packageId"`
	PackageTitle        string                   `json:"packageTitle"`
	Tier                string                   `json:"tier"`
	BasePriceCents      int64                    `json:"basePriceCents"`
	TotalPriceCents     int64                    `json:"totalPriceCents"`
	OriginalPriceCents  *int64                   `json:"originalPriceCents,omitempty"`
	DiscountApplied     bool                     `json:"discountApplied"`
	DiscountAmountCents int64                    `json:"discountAmountCents"`
	AmountDueCents      int64                    `json:"amountDueCents"`
	SelectedOptions     []selectedOptionResponse `json:"selectedOptions"`
	NumberOfPeople      int                      `json:"numberOfPeople"`
	PaymentStatus       string                   `json:"paymentStatus"`
	PaymentReference    *string                  `json:"paymentReference,omitempty"`
	PaymentOrder        *int                     `json:"paymentOrder,omitempty"`
	ContactEmail        string                   `json:"contactEmail"`
	ContactPhone        string                   `json:"contactPhone"`
	ContactAddress      string                   `json:"contactAddress"`
	SpecialRequests     *string                  `json:"specialRequests,omitempty"`
	Travelers           []travelerResponse       `json:"travelers"`
	CreatedAt           string                   `json:"createdAt"`
	UpdatedAt           string                   `json:"updatedAt"`
}

type paymentResponse struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
}

func NewBookingHandler(service booking.BookingUseCase, payments payment.PaymentUseCase) *BookingHandler {
	return &BookingHandler{service: service, payments: payments}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:reference", h.get)
	router.POST("/:reference/payment", h.initiatePayment)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, domain.NewValidationError("body", err.Error()))
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Location", "/api/bookings/"+b.Reference)
	c.JSON(http.StatusCreated, toBookingResponse(b))
}

func (h *BookingHandler) get(c *gin.Context) {
	reference := c.Param("reference")
	b, err := h.service.GetBookingByReference(c.Request.Context(), reference)
	if err != nil {
		writeError(c, err)
		return
	}
	if b == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "booking " + reference + " not found"})
		return
	}

	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) initiatePayment(c *gin.Context) {
	reference := c.Param("reference")
	url, err := h.payments.InitiatePayment(c.Request.Context(), reference)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, paymentResponse{Reference: reference, RedirectURL: url})
}

func toBookingResponse(b *domain.Booking) bookingResponse {
	options := make([]selectedOptionResponse, len(b.SelectedOptions))
	for i, o := range b.SelectedOptions {
		options[i] = selectedOptionResponse{ID: o.ID, Title: o.Title, PriceCents: o.PriceCents}
	}
	travelers := make([]travelerResponse, len(b.Travelers))
	for i, t := range b.Travelers {
		travelers[i] = travelerResponse{
			FirstName: t.FirstName,
			LastName:  t.LastName,
			Email:     t.Email,
			Phone:     t.Phone,
			BirthDate: t.BirthDate,
			IDNumber:  t.IDNumber,
		}
	}

	return bookingResponse{
		Reference:           b.Reference,
		PackageID:           b.PackageID,
		PackageTitle:        b.PackageTitle,
		Tier:                b.Tier,
		BasePriceCents:      b.BasePriceCents,
		TotalPriceCents:     b.TotalPriceCents,
		OriginalPriceCents:  b.OriginalPriceCents,
		DiscountApplied:     b.DiscountApplied,
		DiscountAmountCents: b.DiscountAmountCents,
		AmountDueCents:      b.AmountCents(),
		SelectedOptions:     options,
		NumberOfPeople:      b.NumberOfPeople,
		PaymentStatus:       string(b.PaymentStatus),
		PaymentReference:    b.PaymentReference,
		PaymentOrder:        b.PaymentOrder,
		ContactEmail:        b.ContactEmail,
		ContactPhone:        b.ContactPhone,
		ContactAddress:      b.ContactAddress,
		SpecialRequests:     b.SpecialRequests,
		Travelers:           travelers,
		CreatedAt:           b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:           b.UpdatedAt.Format(time.RFC3339),
	}
}
