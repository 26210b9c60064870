package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// Terminal statuses are never left.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

type SelectedOption struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	PriceCents int64  `json:"priceCents"`
}

type Traveler struct {
	ID             string `json:"id"`
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	BirthDate      string `json:"birthDate"`
	IDNumber       string `json:"idNumber"`
	BookingID      int64  `json:"-"`
	PositionInList int    `json:"-"`
}

// Booking prices are per person, in cents.
type Booking struct {
	ID                  int64            `json:"-"`
	Reference           string           `json:"reference"`
	PackageID           int              `json:"packageId"`
	PackageTitle        string           `json:"packageTitle"`
	Tier                string           `json:"tier"`
	BasePriceCents      int64            `json:"basePriceCents"`
	TotalPriceCents     int64            `json:"totalPriceCents"`
	OriginalPriceCents  *int64           `json:"originalPriceCents,omitempty"`
	DiscountApplied     bool             `json:"discountApplied"`
	DiscountAmountCents int64            `json:"discountAmountCents"`
	SelectedOptions     []SelectedOption `json:"selectedOptions"`
	NumberOfPeople      int              `json:"numberOfPeople"`
	PaymentStatus       PaymentStatus    `json:"paymentStatus"`
	PaymentReference    *string          `json:"paymentReference,omitempty"`
	PaymentOrder        *int             `json:"paymentOrder,omitempty"`
	ContactEmail        string           `json:"contactEmail"`
	ContactPhone        string           `json:"contactPhone"`
	ContactAddress      string           `json:"contactAddress"`
	SpecialRequests     *string          `json:"specialRequests,omitempty"`
	Travelers           []Traveler       `json:"travelers"`
	CreatedAt           time.Time        `json:"createdAt"`
	UpdatedAt           time.Time        `json:"updatedAt"`
}

// AmountCents is what the customer is charged for the whole party.
func (b *Booking) AmountCents() int64 {
	return b.TotalPriceCents * int64(b.NumberOfPeople)
}

// PrimaryTraveler is the first traveler; it acts as the payment contact.
func (b *Booking) PrimaryTraveler() *Traveler {
	if len(b.Travelers) == 0 {
		return nil
	}
	return &b.Travelers[0]
}

type CapacityInfo struct {
	PackageID   int  `json:"packageId"`
	Capacity    int  `json:"capacity"`
	TotalBooked int  `json:"totalBooked"`
	Available   int  `json:"available"`
	IsFull      bool `json:"isFull"`
}

// NewCapacityInfo clamps available at zero.
func NewCapacityInfo(packageID, capacity, booked int) CapacityInfo {
	available := capacity - booked
	if available < 0 {
		available = 0
	}
	return CapacityInfo{
		PackageID:   packageID,
		Capacity:    capacity,
		TotalBooked: booked,
		Available:   available,
		IsFull:      available == 0,
	}
}

// UnavailableCapacity is what the display path shows when usage cannot be read.
func UnavailableCapacity(packageID, capacity int) CapacityInfo {
	return CapacityInfo{PackageID: packageID, Capacity: capacity, Available: 0, IsFull: true}
}

const (
	PromoSlots           = 100
	PromoDiscountPercent = 15
	PromoCounterName     = "launch"
)

type DiscountInfo struct {
	Available         bool `json:"available"`
	RemainingSlots    int  `json:"remainingSlots"`
	TotalPaidBookings int  `json:"totalPaidBookings"`
}

func NewDiscountInfo(assigned int) DiscountInfo {
	remaining := PromoSlots - assigned
	if remaining < 0 {
		remaining = 0
	}
	return DiscountInfo{
		Available:         assigned < PromoSlots,
		RemainingSlots:    remaining,
		TotalPaidBookings: assigned,
	}
}

// ApplyPromoDiscount returns the discounted price and the discount, rounding
// the discount half-up to the cent.
func ApplyPromoDiscount(cents int64) (discounted, discount int64) {
	discount = (cents*PromoDiscountPercent + 50) / 100
	return cents - discount, discount
}
