package capacity

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
)

type UsageReader interface {
	PaidPeople(ctx context.Context, packageID int) (int, error)
	PaidPeopleByPackage(ctx context.Context) (map[int]int, error)
}

// Calculator derives remaining capacity from the paid-people aggregate.
type Calculator struct {
	catalog *domain.Catalog
	usage   UsageReader
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewCalculator(catalog *domain.Catalog, usage UsageReader, log logger.Logger, m *metrics.Metrics) *Calculator {
	return &Calculator{catalog: catalog, usage: usage, log: log.With("component", "capacity"), metrics: m}
}

// Check is the strict read used before creating a booking. Store failures
// are returned as domain.ErrPersistence.
func (c *Calculator) Check(ctx context.Context, packageID int) (domain.CapacityInfo, error) {
	capacity, err := c.catalog.Capacity(packageID)
	if err != nil {
		return domain.CapacityInfo{}, err
	}
	booked, err := c.usage.PaidPeople(ctx, packageID)
	if err != nil {
		return domain.CapacityInfo{}, wrapPersistence(fmt.Sprintf("capacity of package %d", packageID), err)
	}
	return domain.NewCapacityInfo(packageID, capacity, booked), nil
}

// Display never fails on a store error: it reports the package as full so
// the page keeps rendering. Unknown packages are still not found.
func (c *Calculator) Display(ctx context.Context, packageID int) (domain.CapacityInfo, error) {
	info, err := c.Check(ctx, packageID)
	if err == nil {
		return info, nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return domain.CapacityInfo{}, err
	}
	capacity, _ := c.catalog.Capacity(packageID)
	c.fallback(packageID, err)
	return domain.UnavailableCapacity(packageID, capacity), nil
}

// Statistics returns the display view of every catalog package using a single
// aggregate read.
func (c *Calculator) Statistics(ctx context.Context) []domain.CapacityInfo {
	packages := c.catalog.List()
	stats := make([]domain.CapacityInfo, 0, len(packages))

	usage, err := c.usage.PaidPeopleByPackage(ctx)
	for _, p := range packages {
		if err != nil {
			c.fallback(p.ID, err)
			stats = append(stats, domain.UnavailableCapacity(p.ID, p.Capacity))
			continue
		}
		stats = append(stats, domain.NewCapacityInfo(p.ID, p.Capacity, usage[p.ID]))
	}
	return stats
}

func (c *Calculator) fallback(packageID int, err error) {
	c.log.Warn("capacity read failed, reporting package as full", "package_id", packageID, "error", err)
	c.metrics.ReadFallbacks.WithLabelValues("capacity").Inc()
}

func wrapPersistence(op string, err error) error {
	if errors.Is(err, domain.ErrPersistence) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}
