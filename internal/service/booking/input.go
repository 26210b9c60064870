package booking

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/go-playground/validator/v10"
)

type TravelerInput struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,min=6,max=32"`
	BirthDate string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	IDNumber  string `json:"idNumber" validate:"required,max=64"`
}

// CreateBookingInput is the booking draft. Prices are never taken from the
// client; they are recomputed from the catalog.
type CreateBookingInput struct {
	PackageID       int             `json:"packageId" validate:"required,gt=0"`
	Tier            string          `json:"tier" validate:"required"`
	OptionIDs       []string        `json:"optionIds" validate:"unique,dive,required"`
	NumberOfPeople  int             `json:"numberOfPeople" validate:"required,min=1,max=10"`
	ContactEmail    string          `json:"contactEmail" validate:"required,email"`
	ContactPhone    string          `json:"contactPhone" validate:"required,min=6,max=32"`
	ContactAddress  string          `json:"contactAddress" validate:"required,max=500"`
	SpecialRequests string          `json:"specialRequests" validate:"max=2000"`
	Travelers       []TravelerInput `json:"travelers" validate:"required,min=1,max=10,dive"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateInput(input CreateBookingInput) error {
	verr := &domain.ValidationError{}

	if err := validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fieldPath(fe.Namespace()), describe(fe))
		}
	}
	if len(input.Travelers) != input.NumberOfPeople {
		verr.Add("travelers", fmt.Sprintf("expected %d travelers, got %d", input.NumberOfPeople, len(input.Travelers)))
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// fieldPath drops the struct name: CreateBookingInput.travelers[0].email
// becomes travelers[0].email.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	}
	return "is invalid (" + fe.Tag() + ")"
}

type quote struct {
	tier          string
	baseCents     int64
	totalCents    int64
	originalCents *int64
	discounted    bool
	discountCents int64
	options       []domain.SelectedOption
}

// priceDraft computes the per-person price: tier price plus every selected
// option, in the order the client listed them.
func priceDraft(pkg *domain.Package, input CreateBookingInput) (*quote, error) {
	tier, ok := pkg.Tier(input.Tier)
	if !ok {
		names := make([]string, len(pkg.Tiers))
		for i, t := range pkg.Tiers {
			names[i] = t.Name
		}
		return nil, domain.NewValidationError("tier", fmt.Sprintf("must be one of %s", strings.Join(names, ", ")))
	}

	q := &quote{
		tier:       tier.Name,
		baseCents:  tier.OriginalCents,
		totalCents: tier.OriginalCents,
		options:    make([]domain.SelectedOption, 0, len(input.OptionIDs)),
	}
	for _, id := range input.OptionIDs {
		opt, ok := pkg.Option(id)
		if !ok {
			return nil, domain.NewValidationError("optionIds", fmt.Sprintf("unknown option %q for package %d", id, pkg.ID))
		}
		q.options = append(q.options, domain.SelectedOption{ID: opt.ID, Title: opt.Title, PriceCents: opt.PriceCents})
		q.totalCents += opt.PriceCents
	}
	return q, nil
}

func (q *quote) applyPromotion() {
	original := q.totalCents
	q.totalCents, q.discountCents = domain.ApplyPromoDiscount(original)
	q.originalCents = &original
	q.discounted = true
}
