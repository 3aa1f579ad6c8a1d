package listings

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrListingNotFound    = errors.New("listings: listing not found")
	ErrInvalidBillingUnit = errors.New("listings: unknown billing unit")
	ErrUnitPrice          = errors.New("listings: unit price must be positive")
)

type ListingID string
type HostID string

// BillingUnit is the time granularity used to price a stay.
type BillingUnit string

const (
	BillNight BillingUnit = "night"
	BillDay   BillingUnit = "day"
	BillWeek  BillingUnit = "week"
	BillMonth BillingUnit = "month"
)

// ParseBillingUnit normalizes user or storage input into a known unit.
func ParseBillingUnit(raw string) (BillingUnit, error) {
	unit := BillingUnit(strings.ToLower(strings.TrimSpace(raw)))
	if !unit.Valid() {
		return "", ErrInvalidBillingUnit
	}
	return unit, nil
}

func (u BillingUnit) Valid() bool {
	switch u {
	case BillNight, BillDay, BillWeek, BillMonth:
		return true
	}
	return false
}

// Listing is the read-only view of a rentable unit. Its lifecycle is owned by
// the listing catalog; reservations only read price, unit and owner.
type Listing struct {
	ID          ListingID
	Host        HostID
	Title       string
	UnitPrice   int64
	BillingUnit BillingUnit
}

func (l *Listing) Validate() error {
	if strings.TrimSpace(string(l.ID)) == "" {
		return errors.New("listings: id is required")
	}
	if strings.TrimSpace(string(l.Host)) == "" {
		return errors.New("listings: host is required")
	}
	if l.UnitPrice <= 0 {
		return ErrUnitPrice
	}
	if !l.BillingUnit.Valid() {
		return ErrInvalidBillingUnit
	}
	return nil
}

// OwnedBy reports whether the user owns the listing.
func (l *Listing) OwnedBy(userID string) bool {
	return strings.TrimSpace(userID) != "" && string(l.Host) == strings.TrimSpace(userID)
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
}
