package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/google/uuid"
)

type BookingUseCase interface {
	CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetBookingByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, reference string, status domain.PaymentStatus, paymentRef string) (*domain.Booking, error)
	CheckCapacity(ctx context.Context, packageID int) (domain.CapacityInfo, error)
	CheckDiscount(ctx context.Context) domain.DiscountInfo
	ListBookings(ctx context.Context, limit, offset int) ([]domain.Booking, error)
	CancelAbandoned(ctx context.Context, olderThan time.Duration) (int, error)
}

type CapacityChecker interface {
	Check(ctx context.Context, packageID int) (domain.CapacityInfo, error)
	Display(ctx context.Context, packageID int) (domain.CapacityInfo, error)
}

type DiscountChecker interface {
	Check(ctx context.Context) (domain.DiscountInfo, error)
	Display(ctx context.Context) domain.DiscountInfo
}

type Producer interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
	PublishWithRetry(ctx context.Context, topic, key string, value interface{}, maxRetries int) error
}

const (
	maxReferenceAttempts = 3
	defaultListLimit     = 50
	maxListLimit         = 200
	abandonBatchSize     = 100
	// Paid and overbooked events drive refunds and confirmations, so they get
	// retried on the booking topic.
	publishRetries = 3
)

type BookingService struct {
	bookings           repository.BookingRepository
	catalog            *domain.Catalog
	capacity           CapacityChecker
	discount           DiscountChecker
	producer           Producer
	log                logger.Logger
	metrics            *metrics.Metrics
	bookingTopic       string
	notificationsTopic string
	now                func() time.Time
}

type BookingServiceOption func(*BookingService)

func WithProducer(producer Producer, bookingTopic string) BookingServiceOption {
	return func(s *BookingService) {
		s.producer = producer
		s.bookingTopic = bookingTopic
	}
}

func WithNotificationsTopic(topic string) BookingServiceOption {
	return func(s *BookingService) {
		s.notificationsTopic = topic
	}
}

func WithClock(now func() time.Time) BookingServiceOption {
	return func(s *BookingService) {
		s.now = now
	}
}

func NewBookingService(
	bookings repository.BookingRepository,
	catalog *domain.Catalog,
	capacity CapacityChecker,
	discount DiscountChecker,
	log logger.Logger,
	m *metrics.Metrics,
	opts ...BookingServiceOption,
) *BookingService {
	service := &BookingService{
		bookings: bookings,
		catalog:  catalog,
		capacity: capacity,
		discount: discount,
		log:      log.With("component", "booking"),
		metrics:  m,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// CreateBooking prices the draft from the catalog and stores it as pending.
// Capacity is checked but not reserved; the paid transition is authoritative.
func (s *BookingService) CreateBooking(ctx context.Context, input CreateBookingInput) (*domain.Booking, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	pkg, err := s.catalog.Get(input.PackageID)
	if err != nil {
		return nil, err
	}
	quote, err := priceDraft(pkg, input)
	if err != nil {
		return nil, err
	}

	capInfo, err := s.capacity.Check(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	if input.NumberOfPeople > capInfo.Available {
		s.metrics.CapacityRejections.WithLabelValues("create").Inc()
		return nil, &domain.CapacityError{PackageID: pkg.ID, Requested: input.NumberOfPeople, Available: capInfo.Available}
	}

	// A failed promotion read means no discount, never a blocked booking.
	promo, err := s.discount.Check(ctx)
	if err != nil {
		s.log.Warn("discount check failed, booking without discount", "package_id", pkg.ID, "error", err)
		promo = domain.DiscountInfo{}
	}
	if promo.Available {
		quote.applyPromotion()
	}

	booking := &domain.Booking{
		PackageID:           pkg.ID,
		PackageTitle:        pkg.Title,
		Tier:                quote.tier,
		BasePriceCents:      quote.baseCents,
		TotalPriceCents:     quote.totalCents,
		OriginalPriceCents:  quote.originalCents,
		DiscountApplied:     quote.discounted,
		DiscountAmountCents: quote.discountCents,
		SelectedOptions:     quote.options,
		NumberOfPeople:      input.NumberOfPeople,
		ContactEmail:        strings.TrimSpace(input.ContactEmail),
		ContactPhone:        strings.TrimSpace(input.ContactPhone),
		ContactAddress:      strings.TrimSpace(input.ContactAddress),
		Travelers:           buildTravelers(input.Travelers),
	}
	if req := strings.TrimSpace(input.SpecialRequests); req != "" {
		booking.SpecialRequests = &req
	}

	if err := s.insertWithFreshReference(ctx, booking); err != nil {
		s.metrics.ErrorsCount.WithLabelValues("create_booking").Inc()
		return nil, err
	}

	s.metrics.BookingsCreated.Inc()
	s.log.Info("booking created",
		"reference", booking.Reference,
		"package_id", booking.PackageID,
		"people", booking.NumberOfPeople,
		"discount", booking.DiscountApplied,
	)
	s.publish(ctx, kafka.EventBookingCreated, booking, nil)
	return booking, nil
}

func (s *BookingService) insertWithFreshReference(ctx context.Context, booking *domain.Booking) error {
	var err error
	for attempt := 1; attempt <= maxReferenceAttempts; attempt++ {
		booking.Reference = NewReference(s.now())
		err = s.bookings.Create(ctx, booking)
		if !errors.Is(err, domain.ErrDuplicateRef) {
			return err
		}
		s.log.Warn("booking reference collision, regenerating", "reference", booking.Reference, "attempt", attempt)
	}
	return fmt.Errorf("%w: no unique reference after %d attempts: %w", domain.ErrPersistence, maxReferenceAttempts, err)
}

// NewReference returns ACE-<base36 unix millis>-<6 random chars> in upper case.
func NewReference(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return strings.ToUpper(fmt.Sprintf("ACE-%s-%s", strconv.FormatInt(now.UnixMilli(), 36), random))
}

func buildTravelers(in []TravelerInput) []domain.Traveler {
	travelers := make([]domain.Traveler, len(in))
	for i, t := range in {
		travelers[i] = domain.Traveler{
			ID:        uuid.NewString(),
			FirstName: strings.TrimSpace(t.FirstName),
			LastName:  strings.TrimSpace(t.LastName),
			Email:     strings.TrimSpace(t.Email),
			Phone:     strings.TrimSpace(t.Phone),
			BirthDate: t.BirthDate,
			IDNumber:  strings.TrimSpace(t.IDNumber),
		}
	}
	return travelers
}

// GetBookingByReference returns nil without an error when nothing matches.
func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := s.bookings.GetByReference(ctx, reference)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *BookingService) GetBookingByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	b, err := s.bookings.GetByPaymentReference(ctx, paymentRef)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// UpdatePaymentStatus applies a status change with compare-and-swap
// semantics. pending to pending only attaches the gateway reference. For any
// other status the reference is written by the transition itself and must
// match the one already attached. A same-status replay returns the booking
// unchanged. Leaving a terminal state fails with domain.ErrInvalidTransition.
func (s *BookingService) UpdatePaymentStatus(ctx context.Context, reference string, status domain.PaymentStatus, paymentRef string) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown payment status %q", status))
	}

	// A new checkout session replaces the previous one on a pending booking.
	// Every other status carries its payment reference into the transition.
	if status == domain.PaymentStatusPending && paymentRef != "" {
		b, err := s.bookings.AttachPaymentReference(ctx, reference, paymentRef)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("booking %s: %w", reference, err)
		}
		return b, err
	}

	res, err := s.bookings.TransitionStatus(ctx, reference, status, paymentRef)
	if err != nil {
		return nil, s.transitionFailed(ctx, reference, status, err)
	}
	if !res.Applied {
		s.log.Debug("status replay ignored", "reference", reference, "status", status)
		return res.Booking, nil
	}

	b := res.Booking
	s.metrics.StatusTransitions.WithLabelValues(string(b.PaymentStatus)).Inc()
	if res.PromoOverflow {
		s.metrics.PromoOverflow.Inc()
		s.log.Warn("promotion exhausted before payment, discount honoured without order number",
			"reference", b.Reference, "discount_cents", b.DiscountAmountCents)
	}
	s.log.Info("payment status updated", "reference", b.Reference, "status", b.PaymentStatus, "promo_order", b.PaymentOrder)

	var eventType string
	switch b.PaymentStatus {
	case domain.PaymentStatusPaid:
		eventType = kafka.EventBookingPaid
	case domain.PaymentStatusFailed:
		eventType = kafka.EventBookingFailed
	case domain.PaymentStatusCancelled:
		eventType = kafka.EventBookingCancelled
	}
	if eventType != "" {
		s.publish(ctx, eventType, b, b.PaymentOrder)
	}
	return b, nil
}

func (s *BookingService) transitionFailed(ctx context.Context, reference string, status domain.PaymentStatus, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("booking %s: %w", reference, err)
	}

	var capErr *domain.CapacityError
	if errors.As(err, &capErr) {
		s.metrics.CapacityRejections.WithLabelValues("paid").Inc()
		s.log.Error("paid booking exceeds capacity, left pending for refund",
			"reference", reference, "package_id", capErr.PackageID, "requested", capErr.Requested, "available", capErr.Available)
		if b, getErr := s.bookings.GetByReference(ctx, reference); getErr == nil {
			s.publish(ctx, kafka.EventBookingOverbooked, b, nil)
		}
		return err
	}

	if errors.Is(err, domain.ErrPaymentMismatch) {
		s.log.Warn("payment reference does not match booking", "reference", reference, "status", status, "error", err)
		return err
	}
	if errors.Is(err, domain.ErrInvalidTransition) {
		s.log.Warn("rejected status transition", "reference", reference, "status", status, "error", err)
		return err
	}

	s.metrics.ErrorsCount.WithLabelValues("update_payment_status").Inc()
	return err
}

func (s *BookingService) CheckCapacity(ctx context.Context, packageID int) (domain.CapacityInfo, error) {
	return s.capacity.Display(ctx, packageID)
}

func (s *BookingService) CheckDiscount(ctx context.Context) domain.DiscountInfo {
	return s.discount.Display(ctx)
}

func (s *BookingService) ListBookings(ctx context.Context, limit, offset int) ([]domain.Booking, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.List(ctx, limit, offset)
}

// CancelAbandoned cancels pending bookings created before now-olderThan.
// Bookings that changed state concurrently are skipped.
func (s *BookingService) CancelAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	refs, err := s.bookings.PendingBefore(ctx, s.now().Add(-olderThan), abandonBatchSize)
	if err != nil {
		return 0, err
	}

	var (
		cancelled int
		errs      []error
	)
	for _, ref := range refs {
		_, err := s.UpdatePaymentStatus(ctx, ref, domain.PaymentStatusCancelled, "")
		switch {
		case err == nil:
			cancelled++
		case errors.Is(err, domain.ErrInvalidTransition):
		default:
			errs = append(errs, fmt.Errorf("cancel %s: %w", ref, err))
		}
	}
	return cancelled, errors.Join(errs...)
}

func (s *BookingService) publish(ctx context.Context, eventType string, booking *domain.Booking, promoOrder *int) {
	if s.producer == nil || s.bookingTopic == "" {
		return
	}
	event := kafka.BookingEvent{
		Type:           eventType,
		Reference:      booking.Reference,
		PackageID:      booking.PackageID,
		PackageTitle:   booking.PackageTitle,
		NumberOfPeople: booking.NumberOfPeople,
		Email:          booking.ContactEmail,
		Status:         string(booking.PaymentStatus),
		AmountCents:    booking.AmountCents(),
		PromoOrder:     promoOrder,
		OccurredAt:     s.now().UTC(),
	}
	var err error
	switch eventType {
	case kafka.EventBookingPaid, kafka.EventBookingOverbooked:
		err = s.producer.PublishWithRetry(ctx, s.bookingTopic, booking.Reference, event, publishRetries)
	default:
		err = s.producer.Publish(ctx, s.bookingTopic, booking.Reference, event)
	}
	if err != nil {
		s.log.Warn("failed to publish event", "type", eventType, "reference", booking.Reference, "error", err)
		return
	}
	if s.notificationsTopic != "" {
		if err := s.producer.Publish(ctx, s.notificationsTopic, booking.Reference, event); err != nil {
			s.log.Warn("failed to publish notification", "type", eventType, "reference", booking.Reference, "error", err)
		}
	}
}

var _ BookingUseCase = (*BookingService)(nil)
