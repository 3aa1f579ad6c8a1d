package availability

import (
	"context"
	"strings"
	"time"

	"rentme-reservations/internal/app/dto"
	"rentme-reservations/internal/app/queries"
	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
	domainrange "rentme-reservations/internal/domain/shared/daterange"
)

const checkAvailabilityKey = "availability.check"

// CheckAvailabilityQuery asks for a listing's blocking ranges. Start and End
// are optional calendar dates; when both are set a verdict is returned.
type CheckAvailabilityQuery struct {
	ListingID string
	Start     string
	End       string
}

func (q CheckAvailabilityQuery) Key() string { return checkAvailabilityKey }

type CheckAvailabilityHandler struct {
	Listings     domainlistings.Repository
	Reservations reservation.Repository
	Now          func() time.Time
}

func (h *CheckAvailabilityHandler) Handle(ctx context.Context, q CheckAvailabilityQuery) (dto.Availability, error) {
	listing, err := h.Listings.ByID(ctx, domainlistings.ListingID(q.ListingID))
	if err != nil {
		return dto.Availability{}, err
	}
	candidate, err := parseCandidate(q.Start, q.End)
	if err != nil {
		return dto.Availability{}, err
	}
	active, err := h.Reservations.ListActiveByListing(ctx, listing.ID)
	if err != nil {
		return dto.Availability{}, err
	}
	res := domainavailability.Evaluate(active, candidate, h.now())
	return dto.MapAvailability(string(listing.ID), res), nil
}

// parseCandidate returns nil when no range was requested. A well-formed but
// inverted range is returned as is so the verdict reports INVALID_RANGE.
func parseCandidate(start, end string) (*domainrange.DateRange, error) {
	start, end = strings.TrimSpace(start), strings.TrimSpace(end)
	if start == "" && end == "" {
		return nil, nil
	}
	s, err := domainrange.ParseDate(start)
	if err != nil {
		return nil, err
	}
	e, err := domainrange.ParseDate(end)
	if err != nil {
		return nil, err
	}
	return &domainrange.DateRange{Start: s, End: e}, nil
}

func (h *CheckAvailabilityHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

var _ queries.Handler[CheckAvailabilityQuery, dto.Availability] = (*CheckAvailabilityHandler)(nil)
