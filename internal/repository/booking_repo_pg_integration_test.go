package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run the repository SQL against a real PostgreSQL. Point
// TEST_DATABASE_URL at a disposable database; every test wipes the tables.
func integrationPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = Migrate(ctx, pool)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE bookings, booking_travelers, package_usage RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE promo_counter SET assigned = 0 WHERE name = $1`, domain.PromoCounterName)
	require.NoError(t, err)
	return pool
}

func insertBooking(t *testing.T, repo BookingRepository, packageID, people int, discounted bool) *domain.Booking {
	t.Helper()
	travelers := make([]domain.Traveler, people)
	for i := range travelers {
		travelers[i] = domain.Traveler{
			ID:        uuid.NewString(),
			FirstName: "Amira",
			LastName:  "Ben Salah",
			Email:     "amira@example.com",
			Phone:     "+21612345678",
			BirthDate: "1990-04-12",
			IDNumber:  fmt.Sprintf("X%07d", i),
		}
	}
	b := &domain.Booking{
		Reference:       "ACE-IT-" + uuid.NewString()[:8],
		PackageID:       packageID,
		PackageTitle:    "Cultural Experience",
		Tier:            "double",
		BasePriceCents:  100000,
		TotalPriceCents: 100000,
		DiscountApplied: discounted,
		NumberOfPeople:  people,
		ContactEmail:    "amira@example.com",
		ContactPhone:    "+21612345678",
		ContactAddress:  "12 Rue de Marseille, Tunis",
		Travelers:       travelers,
	}
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestPGTransitionStatusConcurrentPaidRespectsCapacity(t *testing.T) {
	pool := integrationPool(t)
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	usage := NewUsageRepository(pool)
	ctx := context.Background()

	// Package 3 holds 30 people; 35 pending single bookings race to pay.
	refs := make([]string, 35)
	for i := range refs {
		refs[i] = insertBooking(t, repo, 3, 1, false).Reference
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		paid     int
		rejected int
	)
	for _, ref := range refs {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			_, err := repo.TransitionStatus(ctx, ref, domain.PaymentStatusPaid, "pay-"+ref)
			mu.Lock()
			defer mu.Unlock()
			var capErr *domain.CapacityError
			switch {
			case err == nil:
				paid++
			case errors.As(err, &capErr):
				rejected++
			default:
				t.Errorf("unexpected error for %s: %v", ref, err)
			}
		}(ref)
	}
	wg.Wait()

	assert.Equal(t, 30, paid)
	assert.Equal(t, 5, rejected)
	booked, err := usage.PaidPeople(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 30, booked)

	var stillPending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM bookings WHERE payment_status = 'pending'`).Scan(&stillPending))
	assert.Equal(t, 5, stillPending)
}

func TestPGTransitionStatusCapacityErrorReportsAvailable(t *testing.T) {
	pool := integrationPool(t)
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	ctx := context.Background()

	first := insertBooking(t, repo, 3, 9, false)
	second := insertBooking(t, repo, 3, 9, false)
	third := insertBooking(t, repo, 3, 9, false)
	late := insertBooking(t, repo, 3, 4, false)
	for _, b := range []*domain.Booking{first, second, third} {
		_, err := repo.TransitionStatus(ctx, b.Reference, domain.PaymentStatusPaid, "")
		require.NoError(t, err)
	}

	_, err := repo.TransitionStatus(ctx, late.Reference, domain.PaymentStatusPaid, "")
	var capErr *domain.CapacityError
	require.True(t, errors.As(err, &capErr), "got %v", err)
	assert.Equal(t, 3, capErr.Available)
	assert.Equal(t, 4, capErr.Requested)
}

func TestPGPromoCounterReachesLimitThenOverflows(t *testing.T) {
	pool := integrationPool(t)
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	usage := NewUsageRepository(pool)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `UPDATE promo_counter SET assigned = $2 WHERE name = $1`, domain.PromoCounterName, domain.PromoSlots-2)
	require.NoError(t, err)

	var orders []*int
	var overflow []bool
	for i := 0; i < 3; i++ {
		b := insertBooking(t, repo, 2, 1, true)
		res, err := repo.TransitionStatus(ctx, b.Reference, domain.PaymentStatusPaid, "")
		require.NoError(t, err)
		require.True(t, res.Applied)
		orders = append(orders, res.Booking.PaymentOrder)
		overflow = append(overflow, res.PromoOverflow)
	}

	require.NotNil(t, orders[0])
	require.NotNil(t, orders[1])
	assert.Equal(t, domain.PromoSlots-1, *orders[0])
	assert.Equal(t, domain.PromoSlots, *orders[1])
	assert.Nil(t, orders[2])
	assert.Equal(t, []bool{false, false, true}, overflow)

	assigned, err := usage.PromoOrdersAssigned(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.PromoSlots, assigned)

	// Undiscounted bookings never consume an order number.
	plain := insertBooking(t, repo, 2, 1, false)
	res, err := repo.TransitionStatus(ctx, plain.Reference, domain.PaymentStatusPaid, "")
	require.NoError(t, err)
	assert.Nil(t, res.Booking.PaymentOrder)
	assert.False(t, res.PromoOverflow)
}

func TestPGTransitionStatusTerminalStates(t *testing.T) {
	for _, terminal := range []domain.PaymentStatus{domain.PaymentStatusPaid, domain.PaymentStatusFailed, domain.PaymentStatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			pool := integrationPool(t)
			repo := NewBookingRepository(pool, domain.DefaultCatalog())
			usage := NewUsageRepository(pool)
			ctx := context.Background()

			b := insertBooking(t, repo, 3, 2, false)
			res, err := repo.TransitionStatus(ctx, b.Reference, terminal, "pay-1")
			require.NoError(t, err)
			require.True(t, res.Applied)

			replay, err := repo.TransitionStatus(ctx, b.Reference, terminal, "pay-1")
			require.NoError(t, err)
			assert.False(t, replay.Applied)
			assert.Equal(t, terminal, replay.Booking.PaymentStatus)
			assert.Len(t, replay.Booking.Travelers, 2)

			for _, to := range []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed, domain.PaymentStatusCancelled} {
				if to == terminal {
					continue
				}
				_, err := repo.TransitionStatus(ctx, b.Reference, to, "")
				var terr *domain.TransitionError
				require.True(t, errors.As(err, &terr), "%s -> %s: got %v", terminal, to, err)
				assert.Equal(t, terminal, terr.From)
			}

			booked, err := usage.PaidPeople(ctx, 3)
			require.NoError(t, err)
			if terminal == domain.PaymentStatusPaid {
				assert.Equal(t, 2, booked)
			} else {
				assert.Zero(t, booked)
			}
		})
	}
}

func TestPGAttachPaymentReference(t *testing.T) {
	pool := integrationPool(t)
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	ctx := context.Background()

	b := insertBooking(t, repo, 3, 1, false)
	attached, err := repo.AttachPaymentReference(ctx, b.Reference, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, attached.PaymentReference)
	assert.Equal(t, "pay-1", *attached.PaymentReference)

	// A new checkout session replaces the old one while pending.
	attached, err = repo.AttachPaymentReference(ctx, b.Reference, "pay-2")
	require.NoError(t, err)
	assert.Equal(t, "pay-2", *attached.PaymentReference)

	_, err = repo.TransitionStatus(ctx, b.Reference, domain.PaymentStatusFailed, "pay-2")
	require.NoError(t, err)

	_, err = repo.AttachPaymentReference(ctx, b.Reference, "pay-3")
	var terr *domain.TransitionError
	require.True(t, errors.As(err, &terr), "got %v", err)
	assert.Equal(t, domain.PaymentStatusFailed, terr.From)

	got, err := repo.GetByReference(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, "pay-2", *got.PaymentReference)

	_, err = repo.AttachPaymentReference(ctx, "ACE-MISSING", "pay-4")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestPGTransitionStatusPaymentReference(t *testing.T) {
	pool := integrationPool(t)
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	ctx := context.Background()

	fresh := insertBooking(t, repo, 3, 1, false)
	res, err := repo.TransitionStatus(ctx, fresh.Reference, domain.PaymentStatusPaid, "pay-new")
	require.NoError(t, err)
	require.NotNil(t, res.Booking.PaymentReference)
	assert.Equal(t, "pay-new", *res.Booking.PaymentReference)

	found, err := repo.GetByPaymentReference(ctx, "pay-new")
	require.NoError(t, err)
	assert.Equal(t, fresh.Reference, found.Reference)

	b := insertBooking(t, repo, 3, 1, false)
	_, err = repo.AttachPaymentReference(ctx, b.Reference, "pay-1")
	require.NoError(t, err)

	_, err = repo.TransitionStatus(ctx, b.Reference, domain.PaymentStatusPaid, "pay-other")
	assert.True(t, errors.Is(err, domain.ErrPaymentMismatch), "got %v", err)

	got, err := repo.GetByReference(ctx, b.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)
	assert.Equal(t, "pay-1", *got.PaymentReference)

	// An empty reference keeps the attached one.
	res, err = repo.TransitionStatus(ctx, b.Reference, domain.PaymentStatusCancelled, "")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", *res.Booking.PaymentReference)
}
