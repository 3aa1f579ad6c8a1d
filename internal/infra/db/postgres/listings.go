package postgres

import (
	"context"
	"database/sql"
	"errors"

	domainlistings "rentme-reservations/internal/domain/listings"
)

// ListingRepository reads the listing snapshot the catalog keeps in listings.
type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var (
		l              domainlistings.Listing
		lid, host, raw string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, host_id, title, unit_price, billing_unit FROM listings WHERE id = $1`, string(id)).
		Scan(&lid, &host, &l.Title, &l.UnitPrice, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainlistings.ErrListingNotFound
	}
	if err != nil {
		return nil, err
	}
	unit, err := domainlistings.ParseBillingUnit(raw)
	if err != nil {
		return nil, err
	}
	l.ID, l.Host, l.BillingUnit = domainlistings.ListingID(lid), domainlistings.HostID(host), unit
	return &l, nil
}

func (r *ListingRepository) Save(ctx context.Context, l *domainlistings.Listing) error {
	if err := l.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO listings (id, host_id, title, unit_price, billing_unit)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET host_id = EXCLUDED.host_id, title = EXCLUDED.title,
			unit_price = EXCLUDED.unit_price, billing_unit = EXCLUDED.billing_unit`,
		string(l.ID), string(l.Host), l.Title, l.UnitPrice, string(l.BillingUnit))
	return err
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
