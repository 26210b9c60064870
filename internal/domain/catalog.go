package domain

import (
	"fmt"
	"sort"
)

type PriceTier struct {
	Name string `json:"name"`
	// OriginalCents is the full per-person price. DiscountedCents is the
	// launch promotion price shown next to it.
	OriginalCents   int64 `json:"originalCents"`
	DiscountedCents int64 `json:"discountedCents"`
}

type Option struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"priceCents"`
}

type Package struct {
	ID       int         `json:"id"`
	Title    string      `json:"title"`
	Name     string      `json:"name"`
	Capacity int         `json:"capacity"`
	Tiers    []PriceTier `json:"tiers"`
	Options  []Option    `json:"options"`
}

func (p *Package) Tier(name string) (PriceTier, bool) {
	for _, t := range p.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return PriceTier{}, false
}

func (p *Package) Option(id string) (Option, bool) {
	for _, o := range p.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Catalog is the read-only package reference data.
type Catalog struct {
	packages map[int]Package
}

func NewCatalog(packages ...Package) *Catalog {
	c := &Catalog{packages: make(map[int]Package, len(packages))}
	for _, p := range packages {
		c.packages[p.ID] = p
	}
	return c
}

func (c *Catalog) Get(id int) (*Package, error) {
	p, ok := c.packages[id]
	if !ok {
		return nil, fmt.Errorf("package %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

// Capacity has no default: unknown ids are not found.
func (c *Catalog) Capacity(id int) (int, error) {
	p, err := c.Get(id)
	if err != nil {
		return 0, err
	}
	return p.Capacity, nil
}

func (c *Catalog) List() []Package {
	out := make([]Package, 0, len(c.packages))
	for _, p := range c.packages {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func usd(dollars int64) int64 { return dollars * 100 }

func desertOptions() []Option {
	return []Option{
		{ID: "1", Title: "Quad biking experience", PriceCents: usd(50)},
		{ID: "2", Title: "Camel Trekking Adventure", PriceCents: usd(50)},
		{ID: "3", Title: "Traditional Cooking Class", PriceCents: usd(50)},
	}
}

// DefaultCatalog returns the six packages currently on sale.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Package{
			ID: 1, Title: "Southern Tunisia Adventure", Name: "PLATINUM PACK", Capacity: 100,
			Tiers: []PriceTier{
				{Name: "single", OriginalCents: usd(1275), DiscountedCents: usd(1084)},
				{Name: "double", OriginalCents: usd(1056), DiscountedCents: usd(898)},
				{Name: "triple", OriginalCents: usd(984), DiscountedCents: usd(836)},
				{Name: "quadruple", OriginalCents: usd(947), DiscountedCents: usd(805)},
			},
			Options: desertOptions(),
		},
		Package{
			ID: 2, Title: "Desert Discovery Tour", Name: "DIAMOND PACK", Capacity: 300,
			Tiers: []PriceTier{
				{Name: "single", OriginalCents: usd(1150), DiscountedCents: usd(977)},
				{Name: "double", OriginalCents: usd(1078), DiscountedCents: usd(916)},
				{Name: "triple", OriginalCents: usd(1054), DiscountedCents: usd(896)},
			},
			Options: desertOptions(),
		},
		Package{
			ID: 3, Title: "Cultural Experience", Name: "VIP PACK", Capacity: 30,
			Tiers: []PriceTier{
				{Name: "single", OriginalCents: usd(2284), DiscountedCents: usd(1939)},
				{Name: "double", OriginalCents: usd(1920), DiscountedCents: usd(1632)},
			},
			Options: []Option{
				{ID: "1", Title: "Skydiving Experience", PriceCents: usd(750)},
				{ID: "2", Title: "Professional shooting session", PriceCents: usd(750)},
			},
		},
		Package{
			ID: 4, Title: "Exciting Journey to Tunis", Name: "TUNIS CITY TOUR", Capacity: 200,
			Tiers: []PriceTier{
				{Name: "group", OriginalCents: usd(107), DiscountedCents: usd(91)},
				{Name: "private", OriginalCents: usd(222), DiscountedCents: usd(189)},
				{Name: "bicycle", OriginalCents: usd(151), DiscountedCents: usd(128)},
			},
			Options: []Option{
				{ID: "1", Title: "Private Tour Experience", PriceCents: usd(98)},
				{ID: "2", Title: "Bicycle Tour Option", PriceCents: usd(37)},
				{ID: "3", Title: "Traditional Cooking Class", PriceCents: usd(45)},
				{ID: "4", Title: "Extended Museum Tour", PriceCents: usd(25)},
			},
		},
		Package{
			ID: 5, Title: "Carthage & Sidi Bou Said", Name: "CARTHAGE & SIDI BOU SAID", Capacity: 150,
			Tiers: []PriceTier{
				{Name: "group", OriginalCents: usd(128), DiscountedCents: usd(109)},
				{Name: "private", OriginalCents: usd(234), DiscountedCents: usd(199)},
				{Name: "bicycle", OriginalCents: usd(173), DiscountedCents: usd(147)},
			},
			Options: []Option{
				{ID: "1", Title: "Private Tour Experience", PriceCents: usd(90)},
				{ID: "2", Title: "Bicycle Tour Option", PriceCents: usd(38)},
				{ID: "3", Title: "Sunset Photography Session", PriceCents: usd(65)},
				{ID: "4", Title: "Traditional Craft Workshop", PriceCents: usd(45)},
			},
		},
		Package{
			ID: 6, Title: "Sajnene Pottery Master Class", Name: "SAJNENE POTTERY MASTER CLASS", Capacity: 50,
			Tiers: []PriceTier{
				{Name: "group", OriginalCents: usd(119), DiscountedCents: usd(101)},
				{Name: "private", OriginalCents: usd(234), DiscountedCents: usd(199)},
			},
			Options: []Option{
				{ID: "1", Title: "Private Workshop Experience", PriceCents: usd(98)},
				{ID: "2", Title: "Extended Cultural Tour", PriceCents: usd(45)},
				{ID: "3", Title: "Take Home Your Creation", PriceCents: usd(35)},
				{ID: "4", Title: "Traditional Costume Experience", PriceCents: usd(25)},
			},
		},
	)
}
