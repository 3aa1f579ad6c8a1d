package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainavailability "rentme-reservations/internal/domain/availability"
	domainlistings "rentme-reservations/internal/domain/listings"
	"rentme-reservations/internal/domain/reservation"
)

var errListingMismatch = errors.New("mongo: built reservation belongs to another listing")

// legacyUnpaid matches payment_status values that predate the unpaid enum,
// including rows where the field is missing.
var legacyUnpaid = bson.A{string(reservation.PaymentUnpaid), "pending", "", nil}

// ReservationRepository stores reservations in agg_reservation. Writes that
// must see a consistent view of a listing run in a transaction that first
// bumps the listing's guard document; concurrent transactions on the same
// listing write-conflict there and are retried by the driver.
type ReservationRepository struct {
	db     *mongo.Database
	col    *mongo.Collection
	guards *mongo.Collection
}

func NewReservationRepository(db *mongo.Database) *ReservationRepository {
	return &ReservationRepository{
		db:     db,
		col:    db.Collection("agg_reservation"),
		guards: db.Collection("listing_guards"),
	}
}

func (r *ReservationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "status", Value: 1}, {Key: "start", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		{
			Keys:    bson.D{{Key: "checkout_session_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"checkout_session_id": bson.M{"$type": "string"}}),
		},
	})
	return err
}

func (r *ReservationRepository) ByID(ctx context.Context, id reservation.ID) (*reservation.Reservation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ReservationRepository) ByCheckoutSession(ctx context.Context, sessionID string) (*reservation.Reservation, error) {
	if sessionID == "" {
		return nil, reservation.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"checkout_session_id": sessionID})
}

func (r *ReservationRepository) findOne(ctx context.Context, filter bson.M) (*reservation.Reservation, error) {
	var doc reservationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservation.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate()
}

func (r *ReservationRepository) ListActiveByListing(ctx context.Context, listingID domainlistings.ListingID) ([]*reservation.Reservation, error) {
	return r.find(ctx, activeFilter(listingID), options.Find().SetSort(bson.D{{Key: "start", Value: 1}}))
}

func activeFilter(listingID domainlistings.ListingID) bson.M {
	return bson.M{
		"listing_id": string(listingID),
		"status":     bson.M{"$in": bson.A{string(reservation.StatusPending), string(reservation.StatusConfirmed)}},
	}
}

func (r *ReservationRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*reservation.Reservation, error) {
	cur, err := r.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := make([]*reservation.Reservation, 0)
	for cur.Next(ctx) {
		var doc reservationDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		agg, err := doc.toAggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, agg)
	}
	return out, cur.Err()
}

// overlapping loads active reservations whose dates intersect [start, end).
func (r *ReservationRepository) overlapping(ctx context.Context, listingID domainlistings.ListingID, start, end time.Time) ([]*reservation.Reservation, error) {
	filter := activeFilter(listingID)
	filter["start"] = bson.M{"$lt": end}
	filter["end"] = bson.M{"$gt": start}
	return r.find(ctx, filter)
}

func (r *ReservationRepository) guard(ctx context.Context, listingID domainlistings.ListingID, now time.Time) error {
	_, err := r.guards.UpdateOne(ctx,
		bson.M{"_id": string(listingID)},
		bson.M{"$inc": bson.M{"seq": 1}, "$set": bson.M{"touched_at": now}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *ReservationRepository) withListingTx(ctx context.Context, listingID domainlistings.ListingID, now time.Time, fn func(sc mongo.SessionContext) (any, error)) (any, error) {
	session, err := r.db.Client().StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)
	return session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if err := r.guard(sc, listingID, now); err != nil {
			return nil, err
		}
		return fn(sc)
	})
}

func (r *ReservationRepository) Admit(ctx context.Context, req reservation.AdmitRequest) (*reservation.Reservation, error) {
	res, err := r.withListingTx(ctx, req.ListingID, req.Now, func(sc mongo.SessionContext) (any, error) {
		if err := req.Range.Validate(); err != nil {
			return nil, reservation.ErrInvalidRange
		}
		existing, err := r.overlapping(sc, req.ListingID, req.Range.Start, req.Range.End)
		if err != nil {
			return nil, err
		}
		verdict := domainavailability.Check(existing, req.Range, req.Now)
		switch verdict.Reason {
		case domainavailability.ReasonNone:
		case domainavailability.ReasonInvalidRange:
			return nil, reservation.ErrInvalidRange
		default:
			return nil, domainavailability.NewConflictError(verdict)
		}
		created, err := req.Build()
		if err != nil {
			return nil, err
		}
		if created.ListingID != req.ListingID {
			return nil, errListingMismatch
		}
		if _, err := r.col.InsertOne(sc, newReservationDocument(created)); err != nil {
			return nil, fmt.Errorf("mongo: insert reservation: %w", err)
		}
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*reservation.Reservation), nil
}

func (r *ReservationRepository) MarkConfirmed(ctx context.Context, id reservation.ID, paymentIntentID string, at time.Time) (bool, error) {
	current, err := r.ByID(ctx, id)
	if err != nil {
		return false, err
	}
	res, err := r.withListingTx(ctx, current.ListingID, at, func(sc mongo.SessionContext) (any, error) {
		var doc reservationDocument
		if err := r.col.FindOne(sc, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
			return false, err
		}
		item, err := doc.toAggregate()
		if err != nil {
			return false, err
		}
		if !item.Confirmable() {
			return false, nil
		}
		if !item.Blocking(at) {
			others, err := r.overlapping(sc, item.ListingID, item.Range.Start, item.Range.End)
			if err != nil {
				return false, err
			}
			for _, other := range others {
				if other.ID != item.ID && other.Blocking(at) {
					return false, nil
				}
			}
		}
		set := bson.M{
			"status":         string(reservation.StatusConfirmed),
			"payment_status": string(reservation.PaymentPaid),
			"paid_at":        at.UTC(),
			"expires_at":     nil,
			"updated_at":     at.UTC(),
		}
		if paymentIntentID != "" {
			set["payment_intent_id"] = paymentIntentID
		}
		upd, err := r.col.UpdateOne(sc, unpaidFilter(id), bson.M{"$set": set, "$inc": bson.M{"version": 1}})
		if err != nil {
			return false, err
		}
		return upd.ModifiedCount == 1, nil
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// ExpireStale lists candidates then flips each with an update guarded by the
// sweep predicate, so a row confirmed in between is left alone.
func (r *ReservationRepository) ExpireStale(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	filter := staleFilter(now)
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	candidates, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*reservation.Reservation, 0, len(candidates))
	for _, item := range candidates {
		if err := item.Expire(now); err != nil {
			continue
		}
		cond := staleFilter(now)
		cond["_id"] = string(item.ID)
		upd, err := r.col.UpdateOne(ctx, cond, bson.M{
			"$set": bson.M{
				"status":         string(item.Status),
				"payment_status": string(item.PaymentStatus),
				"cancelled_at":   item.CancelledAt,
				"updated_at":     item.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		})
		if err != nil {
			return out, err
		}
		if upd.ModifiedCount == 1 {
			out = append(out, item)
		}
	}
	return out, nil
}

func staleFilter(now time.Time) bson.M {
	return bson.M{
		"status":            string(reservation.StatusPending),
		"payment_status":    bson.M{"$in": legacyUnpaid},
		"paid_at":           nil,
		"payment_intent_id": bson.M{"$in": bson.A{"", nil}},
		"expires_at":        bson.M{"$ne": nil, "$lt": now},
	}
}

// unpaidFilter matches id only while it is still a pending, unpaid hold.
func unpaidFilter(id reservation.ID) bson.M {
	return bson.M{
		"_id":            string(id),
		"status":         string(reservation.StatusPending),
		"payment_status": bson.M{"$in": legacyUnpaid},
	}
}

func (r *ReservationRepository) AttachCheckout(ctx context.Context, id reservation.ID, sessionID, paymentIntentID string) (bool, error) {
	set := bson.M{"checkout_session_id": sessionID, "updated_at": time.Now().UTC()}
	if paymentIntentID != "" {
		set["payment_intent_id"] = paymentIntentID
	}
	upd, err := r.col.UpdateOne(ctx, unpaidFilter(id), bson.M{"$set": set, "$inc": bson.M{"version": 1}})
	if err != nil {
		return false, err
	}
	if upd.MatchedCount == 0 {
		if _, err := r.ByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

var _ reservation.Repository = (*ReservationRepository)(nil)
