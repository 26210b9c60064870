package discount

import (
	"context"
	"errors"
	"fmt"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
)

type PromoReader interface {
	PromoOrdersAssigned(ctx context.Context) (int, error)
}

// Evaluator answers whether the launch promotion still has order numbers
// left. The count only grows, so a closed promotion never reopens.
type Evaluator struct {
	promo   PromoReader
	log     logger.Logger
	metrics *metrics.Metrics
}

func NewEvaluator(promo PromoReader, log logger.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{promo: promo, log: log.With("component", "discount"), metrics: m}
}

func (e *Evaluator) Check(ctx context.Context) (domain.DiscountInfo, error) {
	assigned, err := e.promo.PromoOrdersAssigned(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			return domain.DiscountInfo{}, fmt.Errorf("promo counter: %w", err)
		}
		return domain.DiscountInfo{}, fmt.Errorf("promo counter: %w: %w", domain.ErrPersistence, err)
	}
	return domain.NewDiscountInfo(assigned), nil
}

// Display reports the promotion as closed when the counter cannot be read.
func (e *Evaluator) Display(ctx context.Context) domain.DiscountInfo {
	info, err := e.Check(ctx)
	if err != nil {
		e.log.Warn("promo counter read failed, reporting promotion as closed", "error", err)
		e.metrics.ReadFallbacks.WithLabelValues("discount").Inc()
		return domain.DiscountInfo{Available: false, RemainingSlots: 0}
	}
	return info
}
