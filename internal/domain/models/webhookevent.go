// internal/domain/models/webhookevent.go
package models

import "time"

// WebhookEvent records that a platform event id has been processed, so a
// redelivery of the same event can be dropped. Documents expire via a TTL
// index on received_at.
type WebhookEvent struct {
	ID         string    `bson:"_id" json:"webhook_event_id"`
	Type       string    `bson:"type" json:"type"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
}
