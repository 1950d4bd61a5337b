// internal/app/store/webhookevents/webhookeventstore.go
package webhookeventstore

import (
	"context"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("webhook_events")}
}

// MarkProcessed records a webhook event id. first is false when the id was
// already recorded, i.e. the event is a redelivery.
func (s *Store) MarkProcessed(ctx context.Context, eventID, eventType string) (first bool, err error) {
	doc := models.WebhookEvent{
		ID:         eventID,
		Type:       eventType,
		ReceivedAt: time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, doc); err != nil {
		if wafflemongo.IsDup(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
