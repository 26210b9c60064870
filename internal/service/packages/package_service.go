package packages

import (
	"context"

	"github.com/Domenick1991/tourbooking/internal/domain"
)

type PackageUseCase interface {
	List(ctx context.Context) ([]PackageView, error)
	GetByID(ctx context.Context, id int) (*PackageView, error)
}

type CapacityReader interface {
	Display(ctx context.Context, packageID int) (domain.CapacityInfo, error)
	Statistics(ctx context.Context) []domain.CapacityInfo
}

// PackageView is a catalog entry with its live capacity.
type PackageView struct {
	domain.Package
	Availability domain.CapacityInfo `json:"availability"`
}

type PackageService struct {
	catalog  *domain.Catalog
	capacity CapacityReader
}

func NewPackageService(catalog *domain.Catalog, capacity CapacityReader) *PackageService {
	return &PackageService{catalog: catalog, capacity: capacity}
}

func (s *PackageService) List(ctx context.Context) ([]PackageView, error) {
	stats := s.capacity.Statistics(ctx)
	byID := make(map[int]domain.CapacityInfo, len(stats))
	for _, info := range stats {
		byID[info.PackageID] = info
	}

	packages := s.catalog.List()
	views := make([]PackageView, 0, len(packages))
	for _, p := range packages {
		views = append(views, PackageView{Package: p, Availability: byID[p.ID]})
	}
	return views, nil
}

func (s *PackageService) GetByID(ctx context.Context, id int) (*PackageView, error) {
	p, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}
	info, err := s.capacity.Display(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PackageView{Package: *p, Availability: info}, nil
}

var _ PackageUseCase = (*PackageService)(nil)
