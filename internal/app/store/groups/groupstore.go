// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no group document exists for an id.
var ErrNotFound = errors.New("group not found")

// Info is the descriptive data written only when a group is first created.
type Info struct {
	Name       string
	PictureURL string
}

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// Get loads a group by platform id. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// AddMember records userID on the group, creating the group with info if it
// does not exist yet. added is false when the user was already a member,
// including when a concurrent call recorded them first.
func (s *Store) AddMember(ctx context.Context, groupID, userID string, info Info) (added bool, err error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":     groupID,
		"members": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$addToSet": bson.M{"members": userID},
		"$set":      bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"group_name":  info.Name,
			"picture_url": info.PictureURL,
			"created_at":  now,
		},
	}

	res, err := s.c.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		// Group exists and already lists the user, so the upsert collided on _id.
		if wafflemongo.IsDup(err) {
			return false, nil
		}
		return false, err
	}
	return res.ModifiedCount > 0 || res.UpsertedCount > 0, nil
}

// Ensure creates the group with no members if it does not exist yet.
// created is false when the group was already stored.
func (s *Store) Ensure(ctx context.Context, groupID string, info Info) (created bool, err error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"group_name":  info.Name,
			"picture_url": info.PictureURL,
			"members":     []string{},
			"created_at":  now,
			"updated_at":  now,
		},
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": groupID}, update, options.Update().SetUpsert(true))
	if err != nil {
		if wafflemongo.IsDup(err) {
			return false, nil
		}
		return false, err
	}
	return res.UpsertedCount > 0, nil
}
