package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepository reads the aggregates that back capacity and the launch
// promotion. Writes happen inside BookingRepository.TransitionStatus.
type UsageRepository interface {
	PaidPeople(ctx context.Context, packageID int) (int, error)
	PaidPeopleByPackage(ctx context.Context) (map[int]int, error)
	PromoOrdersAssigned(ctx context.Context) (int, error)
}

type PGUsageRepository struct {
	db *pgxpool.Pool
}

func NewUsageRepository(db *pgxpool.Pool) UsageRepository {
	return &PGUsageRepository{db: db}
}

// PaidPeople is zero for a package that never had a paid booking.
func (r *PGUsageRepository) PaidPeople(ctx context.Context, packageID int) (int, error) {
	var booked int
	err := r.db.QueryRow(ctx, `SELECT booked_people FROM package_usage WHERE package_id=$1`, packageID).Scan(&booked)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("read package usage", err)
	}
	return booked, nil
}

func (r *PGUsageRepository) PaidPeopleByPackage(ctx context.Context) (map[int]int, error) {
	rows, err := r.db.Query(ctx, `SELECT package_id, booked_people FROM package_usage`)
	if err != nil {
		return nil, persistErr("list package usage", err)
	}
	defer rows.Close()

	usage := make(map[int]int)
	for rows.Next() {
		var id, booked int
		if err := rows.Scan(&id, &booked); err != nil {
			return nil, persistErr("scan package usage", err)
		}
		usage[id] = booked
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list package usage", err)
	}
	return usage, nil
}

func (r *PGUsageRepository) PromoOrdersAssigned(ctx context.Context) (int, error) {
	var assigned int
	err := r.db.QueryRow(ctx, `SELECT assigned FROM promo_counter WHERE name=$1`, domain.PromoCounterName).Scan(&assigned)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, persistErr("read promo counter", err)
	}
	return assigned, nil
}

var _ UsageRepository = (*PGUsageRepository)(nil)
