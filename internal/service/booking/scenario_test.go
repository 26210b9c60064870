package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/Domenick1991/tourbooking/internal/service/capacity"
	"github.com/Domenick1991/tourbooking/internal/service/discount"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScenario(t *testing.T) (*BookingService, *memoryStore) {
	t.Helper()
	catalog := domain.DefaultCatalog()
	store := newMemoryStore(catalog)
	log := logger.NewNop()
	m := metrics.NewMetrics("test")
	svc := NewBookingService(store, catalog,
		capacity.NewCalculator(catalog, store, log, m),
		discount.NewEvaluator(store, log, m),
		log, m,
	)
	return svc, store
}

func culturalInput(people int) CreateBookingInput {
	in := validInput(people)
	in.PackageID = 3
	in.Tier = "double"
	in.OptionIDs = nil
	return in
}

func TestScenarioLastPlaceOnSmallPackage(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()
	for i := 0; i < 29; i++ {
		store.seedPaid(3, 1, nil)
	}

	_, err := svc.CreateBooking(ctx, culturalInput(2))
	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr), "got %v", err)
	assert.Equal(t, 1, capErr.Available)

	b, err := svc.CreateBooking(ctx, culturalInput(1))
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)

	info, err := svc.CheckCapacity(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, info.Available)
	assert.True(t, info.IsFull)
	assert.Equal(t, 30, info.TotalBooked)
}

func TestScenarioPendingBookingsDoNotBlockButPaidIsGuarded(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()
	for i := 0; i < 29; i++ {
		store.seedPaid(3, 1, nil)
	}

	first, err := svc.CreateBooking(ctx, culturalInput(1))
	require.NoError(t, err)
	second, err := svc.CreateBooking(ctx, culturalInput(1))
	require.NoError(t, err)

	_, err = svc.UpdatePaymentStatus(ctx, first.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)

	_, err = svc.UpdatePaymentStatus(ctx, second.Reference, domain.PaymentStatusPaid, "")
	assert.True(t, errors.Is(err, domain.ErrCapacityExceeded))

	still, err := svc.GetBookingByReference(ctx, second.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, still.PaymentStatus)

	info, err := svc.CheckCapacity(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, info.TotalBooked)
}

func TestScenarioLastPromotionalSlot(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()
	for i := 1; i <= 99; i++ {
		order := i
		store.seedPaid(2, 1, &order)
	}
	require.Equal(t, 1, svc.CheckDiscount(ctx).RemainingSlots)

	in := validInput(1)
	in.PackageID = 2
	lucky, err := svc.CreateBooking(ctx, in)
	require.NoError(t, err)
	require.True(t, lucky.DiscountApplied)

	paid, err := svc.UpdatePaymentStatus(ctx, lucky.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentOrder)
	assert.Equal(t, 100, *paid.PaymentOrder)

	// single 1150 + camel trek 50 = 1200, 15% off = 1020
	assert.Equal(t, int64(102000), paid.TotalPriceCents)
	assert.Equal(t, int64(18000), paid.DiscountAmountCents)

	next, err := svc.CreateBooking(ctx, in)
	require.NoError(t, err)
	assert.False(t, next.DiscountApplied)
	assert.Equal(t, int64(120000), next.TotalPriceCents)

	promo := svc.CheckDiscount(ctx)
	assert.False(t, promo.Available)
	assert.Equal(t, 0, promo.RemainingSlots)
}

func TestScenarioPromotionOverAssignmentHonoursDiscount(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()
	for i := 1; i <= 99; i++ {
		order := i
		store.seedPaid(2, 1, &order)
	}

	in := validInput(1)
	in.PackageID = 2
	a, err := svc.CreateBooking(ctx, in)
	require.NoError(t, err)
	b, err := svc.CreateBooking(ctx, in)
	require.NoError(t, err)
	require.True(t, a.DiscountApplied)
	require.True(t, b.DiscountApplied)

	_, err = svc.UpdatePaymentStatus(ctx, a.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)
	late, err := svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, late.PaymentStatus)
	assert.True(t, late.DiscountApplied)
	assert.Nil(t, late.PaymentOrder)
	assert.Equal(t, 0, svc.CheckDiscount(ctx).RemainingSlots)
}

func TestScenarioTerminalStatesAreFinal(t *testing.T) {
	terminal := []domain.PaymentStatus{domain.PaymentStatusPaid, domain.PaymentStatusFailed, domain.PaymentStatusCancelled}
	for _, from := range terminal {
		for _, to := range append(terminal, domain.PaymentStatusPending) {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				svc, _ := newScenario(t)
				ctx := context.Background()

				b, err := svc.CreateBooking(ctx, validInput(1))
				require.NoError(t, err)
				_, err = svc.UpdatePaymentStatus(ctx, b.Reference, from, "")
				require.NoError(t, err)

				got, err := svc.UpdatePaymentStatus(ctx, b.Reference, to, "")
				if from == to {
					require.NoError(t, err)
					assert.Equal(t, from, got.PaymentStatus)
				} else {
					assert.True(t, errors.Is(err, domain.ErrInvalidTransition), "got %v", err)
				}

				after, err := svc.GetBookingByReference(ctx, b.Reference)
				require.NoError(t, err)
				assert.Equal(t, from, after.PaymentStatus)
			})
		}
	}
}

func TestScenarioReplayedPaidCountsCapacityOnce(t *testing.T) {
	svc, _ := newScenario(t)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, culturalInput(2))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPaid, "pay-1")
		require.NoError(t, err)
	}

	info, err := svc.CheckCapacity(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, info.TotalBooked)
}

func TestScenarioPaymentReferenceIsWrittenWithTheTransition(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, culturalInput(2))
	require.NoError(t, err)
	_, err = svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPending, "pay-1")
	require.NoError(t, err)

	for i := 0; i < 29; i++ {
		store.seedPaid(3, 1, nil)
	}

	// A rejected transition leaves the attached session untouched.
	_, err = svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPaid, "pay-1")
	require.True(t, errors.Is(err, domain.ErrCapacityExceeded), "got %v", err)
	got, err := svc.GetBookingByReference(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	require.NotNil(t, got.PaymentReference)
	assert.Equal(t, "pay-1", *got.PaymentReference)

	_, err = svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusFailed, "pay-2")
	assert.True(t, errors.Is(err, domain.ErrPaymentMismatch), "got %v", err)

	failed, err := svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusFailed, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, failed.PaymentStatus)
	assert.Equal(t, "pay-1", *failed.PaymentReference)
}

func TestScenarioTransitionStoresFirstPaymentReference(t *testing.T) {
	svc, _ := newScenario(t)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, culturalInput(1))
	require.NoError(t, err)
	paid, err := svc.UpdatePaymentStatus(ctx, b.Reference, domain.PaymentStatusPaid, "pay-7")
	require.NoError(t, err)
	require.NotNil(t, paid.PaymentReference)
	assert.Equal(t, "pay-7", *paid.PaymentReference)

	found, err := svc.GetBookingByPaymentReference(ctx, "pay-7")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, b.Reference, found.Reference)
}

func TestScenarioGetIsIdempotent(t *testing.T) {
	svc, _ := newScenario(t)
	ctx := context.Background()

	b, err := svc.CreateBooking(ctx, validInput(2))
	require.NoError(t, err)

	first, err := svc.GetBookingByReference(ctx, b.Reference)
	require.NoError(t, err)
	second, err := svc.GetBookingByReference(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, first.Travelers, 2)
}

func TestScenarioStoreFailures(t *testing.T) {
	svc, store := newScenario(t)
	ctx := context.Background()

	store.failNext = errors.New("disk full")
	_, err := svc.CreateBooking(ctx, validInput(1))
	assert.Error(t, err)
	assert.Empty(t, store.bookings)

	store.readErr = errors.New("connection refused")
	info, err := svc.CheckCapacity(ctx, 1)
	require.NoError(t, err)
	assert.True(t, info.IsFull)
	assert.Equal(t, domain.DiscountInfo{}, svc.CheckDiscount(ctx))

	_, err = svc.CreateBooking(ctx, validInput(1))
	assert.True(t, errors.Is(err, domain.ErrPersistence))
}
