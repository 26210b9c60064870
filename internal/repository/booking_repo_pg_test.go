package repository

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBookingRepository(t *testing.T) {
	pool := &pgxpool.Pool{}
	repo := NewBookingRepository(pool, domain.DefaultCatalog())
	assert.NotNil(t, repo)
}

func TestPersistErrWrapsBoth(t *testing.T) {
	cause := errors.New("connection reset")
	err := persistErr("insert booking", cause)

	assert.True(t, errors.Is(err, domain.ErrPersistence))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, err, persistErr("outer", err))
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "bookings_reference_key"}

	assert.True(t, isUniqueViolation(fmt.Errorf("wrapped: %w", dup), "bookings_reference_key"))
	assert.True(t, isUniqueViolation(dup, ""))
	assert.False(t, isUniqueViolation(dup, "bookings_payment_order_key"))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
	assert.False(t, isUniqueViolation(errors.New("plain"), ""))
}

func TestEmbeddedMigrations(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "migrations/001_init.sql", names[0])

	body, err := migrationsFS.ReadFile(names[0])
	require.NoError(t, err)
	for _, table := range []string{"bookings", "booking_travelers", "package_usage", "promo_counter"} {
		assert.True(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}
