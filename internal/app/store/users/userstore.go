// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no user document exists for an id.
var ErrNotFound = errors.New("user not found")

// Bound names one side of a user's retention period.
type Bound string

const (
	StartBound Bound = "start_date"
	EndBound   Bound = "end_date"
)

// Other returns the opposite bound.
func (b Bound) Other() Bound {
	if b == StartBound {
		return EndBound
	}
	return StartBound
}

func (b Bound) valid() bool { return b == StartBound || b == EndBound }

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Get loads a user by platform id. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return u, nil
}

// Exists reports whether a user document exists for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.c.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpsertProfile creates the user or refreshes its profile fields. A newly
// created user starts with an empty period; an existing period is untouched.
func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) error {
	if p.UserID == "" {
		return errors.New("upsert profile: empty user id")
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"display_name":   p.DisplayName,
			"picture_url":    p.PictureURL,
			"status_message": p.StatusMessage,
			"updated_at":     now,
		},
		"$setOnInsert": bson.M{
			"period":     bson.M{"start_date": nil, "end_date": nil},
			"created_at": now,
		},
	}
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": p.UserID}, update, options.Update().SetUpsert(true))
	return err
}

// GetPeriod returns the stored period for a user. found is false when the
// user does not exist.
func (s *Store) GetPeriod(ctx context.Context, id string) (p models.StoredPeriod, found bool, err error) {
	var doc struct {
		Period models.StoredPeriod `bson:"period"`
	}
	opts := options.FindOne().SetProjection(bson.M{"period": 1})
	if err := s.c.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.StoredPeriod{}, false, nil
		}
		return models.StoredPeriod{}, false, err
	}
	return doc.Period, true, nil
}

// SetPeriodBound writes one bound of the user's period, but only if the
// other bound still holds the value the caller observed (nil meaning unset).
// It upserts, so a first postback from a user without a document works.
//
// applied is false when the other bound changed in the meantime; the caller
// should re-read and try again.
func (s *Store) SetPeriodBound(ctx context.Context, userID string, b Bound, value string, observedOther *string) (applied bool, err error) {
	if !b.valid() {
		return false, fmt.Errorf("set period bound: unknown bound %q", b)
	}
	now := time.Now().UTC()

	var other any
	if observedOther != nil {
		other = *observedOther
	}
	filter := bson.M{
		"_id":                        userID,
		"period." + string(b.Other()): other,
	}
	update := bson.M{
		"$set": bson.M{
			"period." + string(b): value,
			"updated_at":          now,
		},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err = s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// The _id exists but the filter did not match: the other bound moved.
		if wafflemongo.IsDup(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
