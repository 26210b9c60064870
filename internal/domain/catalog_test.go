package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogCapacities(t *testing.T) {
	c := DefaultCatalog()
	want := map[int]int{1: 100, 2: 300, 3: 30, 4: 200, 5: 150, 6: 50}
	for id, capacity := range want {
		got, err := c.Capacity(id)
		require.NoError(t, err)
		assert.Equal(t, capacity, got, "package %d", id)
	}
	assert.Len(t, c.List(), 6)
}

func TestCatalogUnknownPackage(t *testing.T) {
	_, err := DefaultCatalog().Capacity(42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPackageTierAndOption(t *testing.T) {
	p, err := DefaultCatalog().Get(4)
	require.NoError(t, err)

	tier, ok := p.Tier("private")
	require.True(t, ok)
	assert.Equal(t, int64(22200), tier.OriginalCents)

	_, ok = p.Tier("quadruple")
	assert.False(t, ok)

	opt, ok := p.Option("4")
	require.True(t, ok)
	assert.Equal(t, "Extended Museum Tour", opt.Title)
}

func TestNewCapacityInfo(t *testing.T) {
	tests := []struct {
		name      string
		capacity  int
		booked    int
		available int
		full      bool
	}{
		{"empty", 30, 0, 30, false},
		{"partial", 30, 29, 1, false},
		{"exact", 30, 30, 0, true},
		{"overbooked clamps", 30, 35, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := NewCapacityInfo(3, tt.capacity, tt.booked)
			assert.Equal(t, tt.available, info.Available)
			assert.Equal(t, tt.full, info.IsFull)
			assert.GreaterOrEqual(t, info.Available, 0)
		})
	}
}

func TestNewDiscountInfo(t *testing.T) {
	assert.Equal(t, DiscountInfo{Available: true, RemainingSlots: 100}, NewDiscountInfo(0))
	assert.Equal(t, DiscountInfo{Available: true, RemainingSlots: 1, TotalPaidBookings: 99}, NewDiscountInfo(99))
	assert.Equal(t, DiscountInfo{Available: false, RemainingSlots: 0, TotalPaidBookings: 100}, NewDiscountInfo(100))
	assert.False(t, NewDiscountInfo(140).Available)
}

func TestApplyPromoDiscount(t *testing.T) {
	price, discount := ApplyPromoDiscount(127500)
	assert.Equal(t, int64(19125), discount)
	assert.Equal(t, int64(108375), price)

	// 15% of 1 cent is 0.15, rounds to 0; 15% of 10 cents is 1.5, rounds to 2.
	_, discount = ApplyPromoDiscount(1)
	assert.Equal(t, int64(0), discount)
	_, discount = ApplyPromoDiscount(10)
	assert.Equal(t, int64(2), discount)
}

func TestPaymentStatusTerminal(t *testing.T) {
	assert.False(t, PaymentStatusPending.Terminal())
	assert.True(t, PaymentStatusPaid.Terminal())
	assert.True(t, PaymentStatusFailed.Terminal())
	assert.True(t, PaymentStatusCancelled.Terminal())
	assert.False(t, PaymentStatus("refunded").Valid())
}
