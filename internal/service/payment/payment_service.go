package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	konnect "github.com/Domenick1991/tourbooking/internal/payment"
)

type PaymentUseCase interface {
	InitiatePayment(ctx context.Context, reference string) (string, error)
	HandleReturn(ctx context.Context, cb ReturnCallback) (*domain.Booking, error)
	HandleWebhook(ctx context.Context, paymentRef string) (*domain.Booking, error)
}

type Gateway interface {
	InitPayment(ctx context.Context, req konnect.InitRequest) (*konnect.InitResponse, error)
	GetPayment(ctx context.Context, paymentRef string) (*konnect.PaymentDetails, error)
}

type Bookings interface {
	GetBookingByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetBookingByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error)
	UpdatePaymentStatus(ctx context.Context, reference string, status domain.PaymentStatus, paymentRef string) (*domain.Booking, error)
}

// Locks is the Redis side of payment coordination. A nil Locks disables both
// the initiation lock and callback dedupe; the status compare-and-swap still
// applies.
type Locks interface {
	AcquirePaymentLock(ctx context.Context, reference string, ttl time.Duration) (bool, error)
	ReleasePaymentLock(ctx context.Context, reference string) error
	MarkCallbackSeen(ctx context.Context, paymentRef, status string) (bool, error)
	ForgetCallback(ctx context.Context, paymentRef, status string) error
}

// ReturnCallback is the query of the browser redirect back from the gateway.
type ReturnCallback struct {
	PaymentRef string
	Status     string
	OrderID    string
}

type PaymentService struct {
	bookings Bookings
	gateway  Gateway
	locks    Locks
	cfg      config.PaymentConfig
	webhook  string
	log      logger.Logger
	metrics  *metrics.Metrics
}

type PaymentServiceOption func(*PaymentService)

// WithGateway enables payment initiation. Without it every initiation fails
// with domain.ErrConfiguration.
func WithGateway(gateway Gateway) PaymentServiceOption {
	return func(s *PaymentService) {
		s.gateway = gateway
	}
}

func WithLocks(locks Locks) PaymentServiceOption {
	return func(s *PaymentService) {
		s.locks = locks
	}
}

func NewPaymentService(bookings Bookings, cfg config.PaymentConfig, publicURL string, log logger.Logger, m *metrics.Metrics, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		bookings: bookings,
		cfg:      cfg,
		log:      log.With("component", "payment"),
		metrics:  m,
	}
	if publicURL != "" {
		s.webhook = strings.TrimRight(publicURL, "/") + "/api/payments/webhook"
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitiatePayment opens a hosted checkout session for a pending booking and
// returns the URL to send the browser to. A gateway failure marks the booking
// failed; its reference stays resolvable.
func (s *PaymentService) InitiatePayment(ctx context.Context, reference string) (string, error) {
	if s.gateway == nil {
		return "", fmt.Errorf("%w: payment gateway credentials are not set", domain.ErrConfiguration)
	}

	if s.locks != nil {
		ok, err := s.locks.AcquirePaymentLock(ctx, reference, time.Duration(s.cfg.LockSeconds)*time.Second)
		switch {
		case err != nil:
			s.log.Warn("payment lock unavailable, continuing without it", "reference", reference, "error", err)
		case !ok:
			return "", fmt.Errorf("booking %s: %w", reference, domain.ErrPaymentInProgress)
		default:
			defer func() {
				if err := s.locks.ReleasePaymentLock(context.WithoutCancel(ctx), reference); err != nil {
					s.log.Warn("failed to release payment lock", "reference", reference, "error", err)
				}
			}()
		}
	}

	b, err := s.bookings.GetBookingByReference(ctx, reference)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", fmt.Errorf("booking %s: %w", reference, domain.ErrNotFound)
	}
	if b.PaymentStatus != domain.PaymentStatusPending {
		return "", &domain.TransitionError{From: b.PaymentStatus, To: domain.PaymentStatusPending}
	}
	primary := b.PrimaryTraveler()
	if primary == nil {
		return "", fmt.Errorf("%w: booking %s has no travelers", domain.ErrPaymentInit, reference)
	}

	req := s.buildRequest(b, primary)
	started := time.Now()
	resp, err := s.gateway.InitPayment(ctx, req)
	s.metrics.GatewayDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.metrics.PaymentInitiations.WithLabelValues("failed").Inc()
		s.log.Error("payment initiation failed", "reference", reference, "amount_cents", req.Amount, "error", err)
		if _, markErr := s.bookings.UpdatePaymentStatus(context.WithoutCancel(ctx), reference, domain.PaymentStatusFailed, ""); markErr != nil {
			s.log.Error("failed to mark booking failed", "reference", reference, "error", markErr)
		}
		return "", fmt.Errorf("%w: %w", domain.ErrPaymentInit, err)
	}

	if _, err := s.bookings.UpdatePaymentStatus(ctx, reference, domain.PaymentStatusPending, resp.PaymentRef); err != nil {
		return "", err
	}
	s.metrics.PaymentInitiations.WithLabelValues("ok").Inc()
	s.log.Info("payment initiated", "reference", reference, "payment_ref", resp.PaymentRef, "amount_cents", req.Amount)
	return resp.PayURL, nil
}

func (s *PaymentService) buildRequest(b *domain.Booking, primary *domain.Traveler) konnect.InitRequest {
	return konnect.InitRequest{
		ReceiverWalletID:       s.cfg.WalletID,
		Token:                  s.cfg.Currency,
		Amount:                 b.AmountCents(),
		Type:                   "immediate",
		Description:            fmt.Sprintf("%s - %d traveler(s) - %s", b.PackageTitle, b.NumberOfPeople, b.Reference),
		AcceptedPaymentMethods: s.cfg.AcceptedMethods,
		Lifespan:               s.cfg.LifespanMinutes,
		CheckoutForm:           true,
		AddPaymentFeesToAmount: true,
		FirstName:              primary.FirstName,
		LastName:               primary.LastName,
		PhoneNumber:            primary.Phone,
		Email:                  primary.Email,
		OrderID:                b.Reference,
		Webhook:                s.webhook,
		Theme:                  s.cfg.Theme,
	}
}

// HandleReturn applies the status carried by the browser redirect. The
// redirect is only a hint: unless the config trusts it, the payment is looked
// up at the gateway and must belong to the named booking before its status is
// applied.
func (s *PaymentService) HandleReturn(ctx context.Context, cb ReturnCallback) (*domain.Booking, error) {
	if cb.OrderID == "" {
		return nil, domain.NewValidationError("order_id", "is required")
	}
	status, ok := StatusFromGateway(cb.Status)
	if !ok || status == domain.PaymentStatusPending {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unsupported status %q", cb.Status))
	}

	if s.cfg.TrustRedirectStatus {
		return s.apply(ctx, cb.OrderID, cb.PaymentRef, status)
	}
	if cb.PaymentRef == "" {
		return nil, domain.NewValidationError("payment_ref", "is required")
	}

	b, verified, err := s.verify(ctx, cb.PaymentRef, cb.OrderID)
	if err != nil {
		return nil, err
	}
	if verified != status {
		s.log.Warn("redirect status disagrees with gateway", "reference", cb.OrderID, "redirect", cb.Status, "gateway", verified)
	}
	if verified == domain.PaymentStatusPending {
		return b, nil
	}
	return s.apply(ctx, b.Reference, cb.PaymentRef, verified)
}

// HandleWebhook processes the gateway's server-to-server notification. The
// notification only names the payment; its status is fetched from the gateway.
func (s *PaymentService) HandleWebhook(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	if paymentRef == "" {
		return nil, domain.NewValidationError("payment_ref", "is required")
	}

	b, status, err := s.verify(ctx, paymentRef, "")
	if err != nil {
		return nil, err
	}
	if status == domain.PaymentStatusPending {
		return b, nil
	}
	return s.apply(ctx, b.Reference, paymentRef, status)
}

// verify fetches the payment from the gateway and resolves the booking it
// pays for. An empty orderID takes the booking from the gateway's order id, or
// failing that from the stored payment reference. The payment must carry the
// booking's reference as order id, its full amount, and must not be a
// different payment than the one already attached.
func (s *PaymentService) verify(ctx context.Context, paymentRef, orderID string) (*domain.Booking, domain.PaymentStatus, error) {
	if s.gateway == nil {
		return nil, "", fmt.Errorf("%w: payment gateway credentials are not set", domain.ErrConfiguration)
	}

	details, err := s.gateway.GetPayment(ctx, paymentRef)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch payment %s: %w", domain.ErrPaymentInit, paymentRef, err)
	}
	status, ok := StatusFromGateway(details.Status)
	if !ok {
		return nil, "", fmt.Errorf("%w: gateway reported unknown status %q", domain.ErrPaymentInit, details.Status)
	}

	var b *domain.Booking
	switch {
	case orderID != "":
		if details.OrderID != orderID {
			s.log.Warn("payment belongs to another order", "reference", orderID, "payment_ref", paymentRef, "gateway_order", details.OrderID)
			return nil, "", fmt.Errorf("%w: payment %s is for order %q, not %s", domain.ErrPaymentMismatch, paymentRef, details.OrderID, orderID)
		}
		b, err = s.current(ctx, orderID)
	case details.OrderID != "":
		b, err = s.current(ctx, details.OrderID)
	default:
		b, err = s.bookings.GetBookingByPaymentReference(ctx, paymentRef)
		if err == nil && b == nil {
			err = fmt.Errorf("payment %s: %w", paymentRef, domain.ErrNotFound)
		}
	}
	if err != nil {
		return nil, "", err
	}

	if b.PaymentReference != nil && *b.PaymentReference != "" && *b.PaymentReference != paymentRef {
		s.log.Warn("payment is not the one attached to the booking", "reference", b.Reference, "payment_ref", paymentRef, "attached", *b.PaymentReference)
		return nil, "", fmt.Errorf("%w: booking %s is paid by %s, not %s", domain.ErrPaymentMismatch, b.Reference, *b.PaymentReference, paymentRef)
	}
	if details.Amount != b.AmountCents() {
		s.log.Warn("payment amount differs from booking", "reference", b.Reference, "payment_ref", paymentRef, "amount_cents", details.Amount, "due_cents", b.AmountCents())
		return nil, "", fmt.Errorf("%w: payment %s amount %d, booking %s owes %d", domain.ErrPaymentMismatch, paymentRef, details.Amount, b.Reference, b.AmountCents())
	}
	return b, status, nil
}

// apply dedupes on (paymentRef, status) before writing. The repository
// compare-and-swap stays authoritative when Redis is absent or has expired
// the key.
func (s *PaymentService) apply(ctx context.Context, reference, paymentRef string, status domain.PaymentStatus) (*domain.Booking, error) {
	marked := false
	if s.locks != nil && paymentRef != "" {
		first, err := s.locks.MarkCallbackSeen(ctx, paymentRef, string(status))
		switch {
		case err != nil:
			s.log.Warn("callback dedupe unavailable", "payment_ref", paymentRef, "error", err)
		case !first:
			s.metrics.CallbacksDeduplicated.Inc()
			s.log.Debug("duplicate payment callback", "reference", reference, "payment_ref", paymentRef, "status", status)
			return s.current(ctx, reference)
		default:
			marked = true
		}
	}

	b, err := s.bookings.UpdatePaymentStatus(ctx, reference, status, paymentRef)
	if err != nil && marked && errors.Is(err, domain.ErrPersistence) {
		if forgetErr := s.locks.ForgetCallback(context.WithoutCancel(ctx), paymentRef, string(status)); forgetErr != nil {
			s.log.Warn("failed to clear callback dedupe key", "payment_ref", paymentRef, "error", forgetErr)
		}
	}
	return b, err
}

func (s *PaymentService) current(ctx context.Context, reference string) (*domain.Booking, error) {
	b, err := s.bookings.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("booking %s: %w", reference, domain.ErrNotFound)
	}
	return b, nil
}

// StatusFromGateway maps gateway and redirect statuses to booking statuses.
func StatusFromGateway(status string) (domain.PaymentStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case konnect.GatewayStatusCompleted, "success", "paid":
		return domain.PaymentStatusPaid, true
	case konnect.GatewayStatusFailed, "failure", "expired":
		return domain.PaymentStatusFailed, true
	case konnect.GatewayStatusCancelled, "canceled":
		return domain.PaymentStatusCancelled, true
	case konnect.GatewayStatusPending:
		return domain.PaymentStatusPending, true
	}
	return "", false
}

var _ PaymentUseCase = (*PaymentService)(nil)
