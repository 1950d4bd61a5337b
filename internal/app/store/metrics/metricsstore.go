package metricsstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of collection totals exported as gauges.
type Counts struct {
	Users  int64
	Groups int64
	Links  int64
}

// FetchCounts returns the collection totals.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	// EstimatedDocumentCount reads collection metadata, so scrapes stay cheap.
	if n, err := db.Collection("users").EstimatedDocumentCount(ctx); err == nil {
		out.Users = n
	}
	if n, err := db.Collection("groups").EstimatedDocumentCount(ctx); err == nil {
		out.Groups = n
	}
	if n, err := db.Collection("links").EstimatedDocumentCount(ctx); err == nil {
		out.Links = n
	}
	return out
}

// CountGroupLinks returns how many links were shared in a group.
func CountGroupLinks(ctx context.Context, db *mongo.Database, groupID string) (int64, error) {
	return db.Collection("links").CountDocuments(ctx, bson.M{"group_id": groupID})
}
