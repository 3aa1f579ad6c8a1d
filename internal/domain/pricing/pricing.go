package pricing

import (
	"errors"
	"math"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/shared/daterange"
)

var (
	ErrMinDuration  = errors.New("pricing: stay is shorter than the minimum for the billing unit")
	ErrInvalidTotal = errors.New("pricing: total must be a positive integer")
)

const (
	daysPerWeek  = 7
	daysPerMonth = 30
)

// Quote is the priced stay. Amounts are integer minor currency units.
type Quote struct {
	Unit      listings.BillingUnit
	Days      int
	Units     int
	UnitPrice int64
	Total     int64
}

// Divisor returns how many days one billed unit covers. Months are a flat
// 30 days, no calendar arithmetic.
func Divisor(unit listings.BillingUnit) (int, error) {
	switch unit {
	case listings.BillNight, listings.BillDay:
		return 1, nil
	case listings.BillWeek:
		return daysPerWeek, nil
	case listings.BillMonth:
		return daysPerMonth, nil
	default:
		return 0, listings.ErrInvalidBillingUnit
	}
}

// Calculate prices dr at unitPrice per unit: units = max(1, ceil(days/divisor)).
// Monthly listings reject stays under 30 days.
func Calculate(dr daterange.DateRange, unit listings.BillingUnit, unitPrice int64) (Quote, error) {
	divisor, err := Divisor(unit)
	if err != nil {
		return Quote{}, err
	}
	if err := dr.Validate(); err != nil {
		return Quote{}, err
	}
	days := dr.Days()
	if unit == listings.BillMonth && days < daysPerMonth {
		return Quote{}, ErrMinDuration
	}
	units := (days + divisor - 1) / divisor
	if units < 1 {
		units = 1
	}
	if unitPrice <= 0 || int64(units) > math.MaxInt64/unitPrice {
		return Quote{}, ErrInvalidTotal
	}
	total := int64(units) * unitPrice
	if total <= 0 {
		return Quote{}, ErrInvalidTotal
	}
	return Quote{
		Unit:      unit,
		Days:      days,
		Units:     units,
		UnitPrice: unitPrice,
		Total:     total,
	}, nil
}

// ForListing prices a stay using the listing's own rate and unit.
func ForListing(listing *listings.Listing, dr daterange.DateRange) (Quote, error) {
	if listing == nil {
		return Quote{}, listings.ErrListingNotFound
	}
	return Calculate(dr, listing.BillingUnit, listing.UnitPrice)
}
