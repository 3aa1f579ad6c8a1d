package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	domainlistings "rentme-reservations/internal/domain/listings"
)

type listingFixture struct {
	ID          string `json:"id"`
	Host        string `json:"host"`
	Title       string `json:"title"`
	UnitPrice   int64  `json:"unit_price"`
	BillingUnit string `json:"billing_unit"`
}

// LoadListingFixtures imports listings from a JSON array file. Invalid
// entries are logged and skipped; a missing file is not an error.
func LoadListingFixtures(ctx context.Context, path string, store ListingStore, logger *slog.Logger) (int, error) {
	if path == "" {
		return 0, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("listing fixtures file not found, skipping", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("listing fixtures file empty", "path", path)
		return 0, nil
	}
	var fixtures []listingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	imported := 0
	for _, fx := range fixtures {
		unit, err := domainlistings.ParseBillingUnit(fx.BillingUnit)
		if err != nil {
			logger.Error("fixture invalid", "listing_id", fx.ID, "error", err)
			continue
		}
		listing := &domainlistings.Listing{
			ID:          domainlistings.ListingID(fx.ID),
			Host:        domainlistings.HostID(fx.Host),
			Title:       fx.Title,
			UnitPrice:   fx.UnitPrice,
			BillingUnit: unit,
		}
		if err := store.Save(ctx, listing); err != nil {
			logger.Error("cannot store fixture listing", "listing_id", fx.ID, "error", err)
			continue
		}
		imported++
	}
	logger.Info("listing fixtures imported", "count", imported, "path", path)
	return imported, nil
}
