package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "rentme-reservations/internal/domain/listings"
)

// ListingRepository reads the listing snapshot the catalog service keeps in
// agg_listing.
type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection("agg_listing")}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrListingNotFound
		}
		return nil, err
	}
	return doc.toListing()
}

// Save upserts a listing snapshot, used when loading fixtures.
func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	if err := listing.Validate(); err != nil {
		return err
	}
	doc := newListingDocument(listing)
	_, err := r.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
