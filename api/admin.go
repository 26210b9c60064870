package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	service booking.BookingUseCase
}

type bookingListResponse struct {
	Bookings []bookingResponse `json:"bookings"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

func NewAdminHandler(service booking.BookingUseCase) *AdminHandler {
	return &AdminHandler{service: service}
}

// Register mounts the admin routes behind basic auth. Nothing is mounted
// when no credentials are configured.
func (h *AdminHandler) Register(router *gin.RouterGroup, username, password string) {
	if username == "" || password == "" {
		return
	}
	router.Use(gin.BasicAuth(gin.Accounts{username: password}))
	router.GET("/bookings", h.listBookings)
}

func (h *AdminHandler) listBookings(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}

	list, err := h.service.ListBookings(c.Request.Context(), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]bookingResponse, len(list))
	for i := range list {
		out[i] = toBookingResponse(&list[i])
	}
	c.JSON(http.StatusOK, bookingListResponse{Bookings: out, Limit: limit, Offset: offset})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, domain.NewValidationError(key, "must be a non-negative integer")
	}
	return v, nil
}
