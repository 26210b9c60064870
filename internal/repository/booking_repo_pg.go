package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *domain.Booking) error
	GetByReference(ctx context.Context, reference string) (*domain.Booking, error)
	GetByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error)
	AttachPaymentReference(ctx context.Context, reference, paymentRef string) (*domain.Booking, error)
	TransitionStatus(ctx context.Context, reference string, to domain.PaymentStatus, paymentRef string) (*TransitionResult, error)
	List(ctx context.Context, limit, offset int) ([]domain.Booking, error)
	PendingBefore(ctx context.Context, deadline time.Time, limit int) ([]string, error)
}

// TransitionResult reports what a status transition actually did.
type TransitionResult struct {
	Booking *domain.Booking
	// Applied is false for a same-status replay.
	Applied bool
	// PromoOverflow is set when a discounted booking was paid after every
	// promotional order number had been handed out.
	PromoOverflow bool
}

type PGBookingRepository struct {
	db      *pgxpool.Pool
	catalog *domain.Catalog
}

func NewBookingRepository(db *pgxpool.Pool, catalog *domain.Catalog) BookingRepository {
	return &PGBookingRepository{db: db, catalog: catalog}
}

const bookingColumns = `id, reference, package_id, package_title, tier, base_price, total_price, original_price,
	discount_applied, discount_amount, selected_options, number_of_people, payment_status, payment_reference,
	payment_order, contact_email, contact_phone, contact_address, special_requests, created_at, updated_at`

const uniqueViolation = "23505"

// Create stores the booking and its travelers in one transaction. A reference
// collision is reported as domain.ErrDuplicateRef so the caller can retry.
func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return persistErr("begin create", err)
	}
	defer tx.Rollback(ctx)

	booking.PaymentStatus = domain.PaymentStatusPending
	if booking.SelectedOptions == nil {
		booking.SelectedOptions = []domain.SelectedOption{}
	}
	err = tx.QueryRow(ctx, `INSERT INTO bookings (reference, package_id, package_title, tier, base_price, total_price,
		original_price, discount_applied, discount_amount, selected_options, number_of_people, payment_status,
		contact_email, contact_phone, contact_address, special_requests)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id, created_at, updated_at`,
		booking.Reference, booking.PackageID, booking.PackageTitle, booking.Tier, booking.BasePriceCents,
		booking.TotalPriceCents, booking.OriginalPriceCents, booking.DiscountApplied, booking.DiscountAmountCents,
		booking.SelectedOptions, booking.NumberOfPeople, booking.PaymentStatus, booking.ContactEmail,
		booking.ContactPhone, booking.ContactAddress, booking.SpecialRequests).
		Scan(&booking.ID, &booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "bookings_reference_key") {
			return fmt.Errorf("reference %s: %w", booking.Reference, domain.ErrDuplicateRef)
		}
		return persistErr("insert booking", err)
	}

	batch := &pgx.Batch{}
	for i := range booking.Travelers {
		t := &booking.Travelers[i]
		t.BookingID = booking.ID
		t.PositionInList = i
		batch.Queue(`INSERT INTO booking_travelers (id, booking_id, position, first_name, last_name, email, phone, birth_date, id_number)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, $9)`,
			t.ID, t.BookingID, t.PositionInList, t.FirstName, t.LastName, t.Email, t.Phone, t.BirthDate, t.IDNumber)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return persistErr("insert travelers", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return persistErr("commit create", err)
	}
	return nil
}

func (r *PGBookingRepository) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1`, reference)
}

func (r *PGBookingRepository) GetByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	return r.getOne(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_reference=$1 ORDER BY id DESC LIMIT 1`, paymentRef)
}

func (r *PGBookingRepository) getOne(ctx context.Context, query string, arg string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	if err := r.loadTravelers(ctx, []*domain.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// AttachPaymentReference records the gateway session on a pending booking.
// A booking that already left pending is returned as a TransitionError.
func (r *PGBookingRepository) AttachPaymentReference(ctx context.Context, reference, paymentRef string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `UPDATE bookings SET payment_reference=$2, updated_at=now()
		WHERE reference=$1 AND payment_status=$3 RETURNING `+bookingColumns,
		reference, paymentRef, domain.PaymentStatusPending))
	if errors.Is(err, domain.ErrNotFound) {
		current, getErr := r.GetByReference(ctx, reference)
		if getErr != nil {
			return nil, getErr
		}
		return nil, &domain.TransitionError{From: current.PaymentStatus, To: domain.PaymentStatusPending}
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadTravelers(ctx, []*domain.Booking{b}); err != nil {
		return nil, err
	}
	return b, nil
}

// TransitionStatus moves a booking out of pending with a compare-and-swap.
// A paid transition also increments the package usage aggregate, guarded by
// the package capacity, and hands out the next promotional order number for
// discounted bookings. A non-empty paymentRef is stored by the same UPDATE and
// must match the reference already attached, if any. All writes share one
// transaction.
func (r *PGBookingRepository) TransitionStatus(ctx context.Context, reference string, to domain.PaymentStatus, paymentRef string) (*TransitionResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, persistErr("begin transition", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE reference=$1 FOR UPDATE`, reference))
	if err != nil {
		return nil, err
	}

	if paymentRef != "" && current.PaymentReference != nil && *current.PaymentReference != "" && *current.PaymentReference != paymentRef {
		return nil, fmt.Errorf("%w: booking %s carries payment %s, not %s", domain.ErrPaymentMismatch, reference, *current.PaymentReference, paymentRef)
	}
	if current.PaymentStatus == to {
		if err := tx.Commit(ctx); err != nil {
			return nil, persistErr("commit transition", err)
		}
		if err := r.loadTravelers(ctx, []*domain.Booking{current}); err != nil {
			return nil, err
		}
		return &TransitionResult{Booking: current}, nil
	}
	if current.PaymentStatus != domain.PaymentStatusPending || to == domain.PaymentStatusPending {
		return nil, &domain.TransitionError{From: current.PaymentStatus, To: to}
	}

	result := &TransitionResult{Applied: true}
	var order *int
	if to == domain.PaymentStatusPaid {
		if err := r.reserveCapacity(ctx, tx, current); err != nil {
			return nil, err
		}
		if current.DiscountApplied {
			order, err = r.nextPromoOrder(ctx, tx)
			if err != nil {
				return nil, err
			}
			result.PromoOverflow = order == nil
		}
	}

	updated, err := scanBooking(tx.QueryRow(ctx, `UPDATE bookings SET payment_status=$2, payment_order=$3,
		payment_reference=COALESCE(NULLIF($5, ''), payment_reference), updated_at=now()
		WHERE id=$1 AND payment_status=$4 RETURNING `+bookingColumns,
		current.ID, to, order, domain.PaymentStatusPending, paymentRef))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, persistErr("commit transition", err)
	}

	if err := r.loadTravelers(ctx, []*domain.Booking{updated}); err != nil {
		return nil, err
	}
	result.Booking = updated
	return result, nil
}

func (r *PGBookingRepository) reserveCapacity(ctx context.Context, tx pgx.Tx, b *domain.Booking) error {
	capacity, err := r.catalog.Capacity(b.PackageID)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO package_usage (package_id) VALUES ($1) ON CONFLICT (package_id) DO NOTHING`, b.PackageID); err != nil {
		return persistErr("ensure package usage", err)
	}

	var booked int
	err = tx.QueryRow(ctx, `UPDATE package_usage SET booked_people = booked_people + $2, updated_at = now()
		WHERE package_id=$1 AND booked_people + $2 <= $3 RETURNING booked_people`,
		b.PackageID, b.NumberOfPeople, capacity).Scan(&booked)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return persistErr("increment package usage", err)
	}

	if err := tx.QueryRow(ctx, `SELECT booked_people FROM package_usage WHERE package_id=$1`, b.PackageID).Scan(&booked); err != nil {
		return persistErr("read package usage", err)
	}
	available := capacity - booked
	if available < 0 {
		available = 0
	}
	return &domain.CapacityError{PackageID: b.PackageID, Requested: b.NumberOfPeople, Available: available}
}

// nextPromoOrder returns nil once the counter is exhausted.
func (r *PGBookingRepository) nextPromoOrder(ctx context.Context, tx pgx.Tx) (*int, error) {
	var order int
	err := tx.QueryRow(ctx, `UPDATE promo_counter SET assigned = assigned + 1, updated_at = now()
		WHERE name=$1 AND assigned < slots RETURNING assigned`, domain.PromoCounterName).Scan(&order)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, persistErr("assign promo order", err)
	}
	return &order, nil
}

func (r *PGBookingRepository) List(ctx context.Context, limit, offset int) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, persistErr("list bookings", err)
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list bookings", err)
	}

	ptrs := make([]*domain.Booking, len(bookings))
	for i := range bookings {
		ptrs[i] = &bookings[i]
	}
	if err := r.loadTravelers(ctx, ptrs); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *PGBookingRepository) PendingBefore(ctx context.Context, deadline time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT reference FROM bookings WHERE payment_status=$1 AND created_at <= $2 ORDER BY created_at LIMIT $3`,
		domain.PaymentStatusPending, deadline, limit)
	if err != nil {
		return nil, persistErr("list pending bookings", err)
	}
	refs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, persistErr("list pending bookings", err)
	}
	return refs, nil
}

func (r *PGBookingRepository) loadTravelers(ctx context.Context, bookings []*domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]int64, len(bookings))
	byID := make(map[int64]*domain.Booking, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		b.Travelers = make([]domain.Traveler, 0, b.NumberOfPeople)
		byID[b.ID] = b
	}

	rows, err := r.db.Query(ctx, `SELECT id, booking_id, position, first_name, last_name, email, phone,
		to_char(birth_date, 'YYYY-MM-DD'), id_number
		FROM booking_travelers WHERE booking_id = ANY($1) ORDER BY booking_id, position`, ids)
	if err != nil {
		return persistErr("load travelers", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Traveler
		if err := rows.Scan(&t.ID, &t.BookingID, &t.PositionInList, &t.FirstName, &t.LastName, &t.Email, &t.Phone, &t.BirthDate, &t.IDNumber); err != nil {
			return persistErr("scan traveler", err)
		}
		if b, ok := byID[t.BookingID]; ok {
			b.Travelers = append(b.Travelers, t)
		}
	}
	if err := rows.Err(); err != nil {
		return persistErr("load travelers", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.Reference, &b.PackageID, &b.PackageTitle, &b.Tier, &b.BasePriceCents, &b.TotalPriceCents,
		&b.OriginalPriceCents, &b.DiscountApplied, &b.DiscountAmountCents, &b.SelectedOptions, &b.NumberOfPeople,
		&b.PaymentStatus, &b.PaymentReference, &b.PaymentOrder, &b.ContactEmail, &b.ContactPhone, &b.ContactAddress,
		&b.SpecialRequests, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, persistErr("scan booking", err)
	}
	return &b, nil
}

func persistErr(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

var _ BookingRepository = (*PGBookingRepository)(nil)
