// internal/app/store/links/linkstore.go
package linkstore

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dalemusser/mapstash/internal/app/system/batch"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("links")}
}

// Create inserts a link. The id, created_at and name_ci are assigned here,
// and the sharing user is always added to Members.
func (s *Store) Create(ctx context.Context, l models.Link) (models.Link, error) {
	if l.UserID == "" {
		return models.Link{}, errors.New("create link: empty user id")
	}
	l.ID = primitive.NewObjectID()
	l.NameCI = text.Fold(l.Name)
	l.CreatedAt = time.Now().UTC()
	if !slices.Contains(l.Members, l.UserID) {
		l.Members = append([]string{l.UserID}, l.Members...)
	}
	if _, err := s.c.InsertOne(ctx, l); err != nil {
		return models.Link{}, err
	}
	return l, nil
}

// AddMemberToGroupLinks grants userID visibility of every link shared in
// groupID that does not list them yet. Updates are committed through w in
// chunks; a failed chunk does not stop the rest. The returned error covers
// only the initial lookup; chunk failures are in Result.Errs.
func (s *Store) AddMemberToGroupLinks(ctx context.Context, w *batch.Writer, groupID, userID string) (batch.Result, error) {
	filter := bson.M{
		"group_id": groupID,
		"members":  bson.M{"$ne": userID},
	}
	cur, err := s.c.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return batch.Result{}, err
	}
	defer cur.Close(ctx)

	var writes []mongo.WriteModel
	for cur.Next(ctx) {
		var row struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return batch.Result{}, err
		}
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": row.ID}).
			SetUpdate(bson.M{"$addToSet": bson.M{"members": userID}}))
	}
	if err := cur.Err(); err != nil {
		return batch.Result{}, err
	}
	if len(writes) == 0 {
		return batch.Result{}, nil
	}
	return w.Write(ctx, s.c, writes), nil
}
