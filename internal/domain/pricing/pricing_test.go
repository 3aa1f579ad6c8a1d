package pricing

import (
	"errors"
	"math"
	"testing"
	"time"

	"rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/shared/daterange"
)

func stay(t *testing.T, days int) daterange.DateRange {
	t.Helper()
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	dr, err := daterange.New(start, start.AddDate(0, 0, days))
	if err != nil {
		t.Fatalf("invalid range for %d days: %v", days, err)
	}
	return dr
}

func TestCalculateUnits(t *testing.T) {
	cases := []struct {
		name      string
		unit      listings.BillingUnit
		days      int
		wantUnits int
		wantTotal int64
	}{
		{"one night", listings.BillNight, 1, 1, 1000},
		{"three nights", listings.BillNight, 3, 3, 3000},
		{"one day", listings.BillDay, 1, 1, 1000},
		{"one week exact", listings.BillWeek, 7, 1, 1000},
		{"eight days weekly", listings.BillWeek, 8, 2, 2000},
		{"short weekly stay", listings.BillWeek, 2, 1, 1000},
		{"thirty days monthly", listings.BillMonth, 30, 1, 1000},
		{"thirty one days monthly", listings.BillMonth, 31, 2, 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := Calculate(stay(t, tc.days), tc.unit, 1000)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Units != tc.wantUnits {
				t.Errorf("Units = %d, want %d", q.Units, tc.wantUnits)
			}
			if q.Total != tc.wantTotal {
				t.Errorf("Total = %d, want %d", q.Total, tc.wantTotal)
			}
			if q.Days != tc.days {
				t.Errorf("Days = %d, want %d", q.Days, tc.days)
			}
		})
	}
}

func TestCalculateMonthlyMinimum(t *testing.T) {
	for _, days := range []int{1, 7, 29} {
		if _, err := Calculate(stay(t, days), listings.BillMonth, 90000); !errors.Is(err, ErrMinDuration) {
			t.Errorf("%d days monthly: expected ErrMinDuration, got %v", days, err)
		}
	}
}

func TestCalculateRejectsUnknownUnit(t *testing.T) {
	if _, err := Calculate(stay(t, 3), listings.BillingUnit("fortnight"), 1000); !errors.Is(err, listings.ErrInvalidBillingUnit) {
		t.Errorf("expected ErrInvalidBillingUnit, got %v", err)
	}
}

func TestCalculateRejectsNonPositiveAndOverflowingTotals(t *testing.T) {
	if _, err := Calculate(stay(t, 3), listings.BillNight, 0); !errors.Is(err, ErrInvalidTotal) {
		t.Errorf("zero price: expected ErrInvalidTotal, got %v", err)
	}
	if _, err := Calculate(stay(t, 3), listings.BillNight, math.MaxInt64/2); !errors.Is(err, ErrInvalidTotal) {
		t.Errorf("overflow: expected ErrInvalidTotal, got %v", err)
	}
}

func TestCalculateIsMonotonicInStayLength(t *testing.T) {
	for _, unit := range []listings.BillingUnit{listings.BillNight, listings.BillDay, listings.BillWeek, listings.BillMonth} {
		var previous int64
		for days := 1; days <= 120; days++ {
			q, err := Calculate(stay(t, days), unit, 700)
			if errors.Is(err, ErrMinDuration) {
				continue
			}
			if err != nil {
				t.Fatalf("%s/%d: unexpected error: %v", unit, days, err)
			}
			if q.Total < previous {
				t.Fatalf("%s: total decreased at %d days: %d < %d", unit, days, q.Total, previous)
			}
			previous = q.Total
		}
	}
}
