package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/repository"
)

// memoryStore mirrors the PostgreSQL semantics of the booking repository,
// including the guarded aggregates, for scenario tests.
type memoryStore struct {
	mu       sync.Mutex
	catalog  *domain.Catalog
	nextID   int64
	bookings map[string]*domain.Booking
	usage    map[int]int
	promo    int
	failNext error
	readErr  error
}

func newMemoryStore(catalog *domain.Catalog) *memoryStore {
	return &memoryStore{
		catalog:  catalog,
		bookings: make(map[string]*domain.Booking),
		usage:    make(map[int]int),
	}
}

func clone(b *domain.Booking) *domain.Booking {
	c := *b
	c.Travelers = append([]domain.Traveler(nil), b.Travelers...)
	c.SelectedOptions = append([]domain.SelectedOption(nil), b.SelectedOptions...)
	return &c
}

func (m *memoryStore) Create(ctx context.Context, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	if _, ok := m.bookings[b.Reference]; ok {
		return domain.ErrDuplicateRef
	}
	m.nextID++
	b.ID = m.nextID
	b.PaymentStatus = domain.PaymentStatusPending
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	m.bookings[b.Reference] = clone(b)
	return nil
}

func (m *memoryStore) GetByReference(ctx context.Context, reference string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(b), nil
}

func (m *memoryStore) GetByPaymentReference(ctx context.Context, paymentRef string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.PaymentReference != nil && *b.PaymentReference == paymentRef {
			return clone(b), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memoryStore) AttachPaymentReference(ctx context.Context, reference, paymentRef string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if b.PaymentStatus != domain.PaymentStatusPending {
		return nil, &domain.TransitionError{From: b.PaymentStatus, To: domain.PaymentStatusPending}
	}
	ref := paymentRef
	b.PaymentReference = &ref
	return clone(b), nil
}

func (m *memoryStore) TransitionStatus(ctx context.Context, reference string, to domain.PaymentStatus, paymentRef string) (*repository.TransitionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[reference]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if paymentRef != "" && b.PaymentReference != nil && *b.PaymentReference != "" && *b.PaymentReference != paymentRef {
		return nil, fmt.Errorf("%w: booking %s carries payment %s, not %s", domain.ErrPaymentMismatch, reference, *b.PaymentReference, paymentRef)
	}
	if b.PaymentStatus == to {
		return &repository.TransitionResult{Booking: clone(b)}, nil
	}
	if b.PaymentStatus != domain.PaymentStatusPending || to == domain.PaymentStatusPending {
		return nil, &domain.TransitionError{From: b.PaymentStatus, To: to}
	}

	res := &repository.TransitionResult{Applied: true}
	if to == domain.PaymentStatusPaid {
		capacity, err := m.catalog.Capacity(b.PackageID)
		if err != nil {
			return nil, err
		}
		if m.usage[b.PackageID]+b.NumberOfPeople > capacity {
			available := capacity - m.usage[b.PackageID]
			if available < 0 {
				available = 0
			}
			return nil, &domain.CapacityError{PackageID: b.PackageID, Requested: b.NumberOfPeople, Available: available}
		}
		m.usage[b.PackageID] += b.NumberOfPeople
		if b.DiscountApplied {
			if m.promo < domain.PromoSlots {
				m.promo++
				order := m.promo
				b.PaymentOrder = &order
			} else {
				res.PromoOverflow = true
			}
		}
	}
	b.PaymentStatus = to
	if paymentRef != "" {
		ref := paymentRef
		b.PaymentReference = &ref
	}
	b.UpdatedAt = time.Now()
	res.Booking = clone(b)
	return res, nil
}

func (m *memoryStore) List(ctx context.Context, limit, offset int) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]domain.Booking, 0, len(m.bookings))
	for _, b := range m.bookings {
		all = append(all, *clone(b))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	if offset >= len(all) {
		return []domain.Booking{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (m *memoryStore) PendingBefore(ctx context.Context, deadline time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs []string
	for ref, b := range m.bookings {
		if b.PaymentStatus == domain.PaymentStatusPending && !b.CreatedAt.After(deadline) {
			refs = append(refs, ref)
		}
	}
	sort.Strings(refs)
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (m *memoryStore) PaidPeople(ctx context.Context, packageID int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.usage[packageID], nil
}

func (m *memoryStore) PaidPeopleByPackage(ctx context.Context) (map[int]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	out := make(map[int]int, len(m.usage))
	for k, v := range m.usage {
		out[k] = v
	}
	return out, nil
}

func (m *memoryStore) PromoOrdersAssigned(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.promo, nil
}

// seedPaid stores a paid booking directly, updating the aggregates.
func (m *memoryStore) seedPaid(packageID, people int, promoOrder *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	ref := fmt.Sprintf("SEED-%04d", m.nextID)
	m.bookings[ref] = &domain.Booking{
		ID:              m.nextID,
		Reference:       ref,
		PackageID:       packageID,
		NumberOfPeople:  people,
		PaymentStatus:   domain.PaymentStatusPaid,
		PaymentOrder:    promoOrder,
		DiscountApplied: promoOrder != nil,
	}
	m.usage[packageID] += people
	if promoOrder != nil {
		m.promo++
	}
}

var (
	_ repository.BookingRepository = (*memoryStore)(nil)
	_ repository.UsageRepository   = (*memoryStore)(nil)
)
