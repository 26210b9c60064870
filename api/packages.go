package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/packages"
	"github.com/gin-gonic/gin"
)

type PackageHandler struct {
	service  packages.PackageUseCase
	bookings booking.BookingUseCase
}

func NewPackageHandler(service packages.PackageUseCase, bookings booking.BookingUseCase) *PackageHandler {
	return &PackageHandler{service: service, bookings: bookings}
}

func (h *PackageHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/capacity", h.capacity)
}

// RegisterDiscount exposes the launch promotion state.
func (h *PackageHandler) RegisterDiscount(router *gin.RouterGroup) {
	router.GET("", h.discount)
}

func (h *PackageHandler) list(c *gin.Context) {
	views, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *PackageHandler) get(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}

	view, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *PackageHandler) capacity(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}

	info, err := h.bookings.CheckCapacity(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, info)
}

func (h *PackageHandler) discount(c *gin.Context) {
	c.JSON(http.StatusOK, h.bookings.CheckDiscount(c.Request.Context()))
}

func packageID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, domain.NewValidationError("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}
