package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

var (
	ErrInvalidRange = errors.New("daterange: end date must be after start date")
	ErrInvalidDate  = errors.New("daterange: invalid calendar date")
)

// DateRange represents a half-open interval of calendar days [Start, End).
// A one night stay has End = Start + 1 day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// New truncates both bounds to UTC calendar days and validates the range.
func New(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: Day(start), End: Day(end)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return New(s, e)
}

// ParseDate parses a YYYY-MM-DD calendar date in UTC.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t.UTC(), nil
}

// Day drops the clock part of t, keeping its calendar date.
func Day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (dr DateRange) Validate() error {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ErrInvalidRange
	}
	if !dr.End.After(dr.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Days returns the number of whole calendar days covered, end exclusive.
func (dr DateRange) Days() int {
	return int(Day(dr.End).Sub(Day(dr.Start)).Hours() / 24)
}

// Overlaps is the single overlap rule: a.start < b.end AND a.end > b.start.
// Checkout on day D and check-in on day D do not conflict.
func (dr DateRange) Overlaps(other DateRange) bool {
	return dr.Start.Before(other.End) && dr.End.After(other.Start)
}

func (dr DateRange) Contains(other DateRange) bool {
	return !other.Start.Before(dr.Start) && !other.End.After(dr.End)
}

func (dr DateRange) String() string {
	return dr.Start.Format(DateLayout) + "/" + dr.End.Format(DateLayout)
}
