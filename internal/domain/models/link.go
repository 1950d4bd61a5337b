// internal/domain/models/link.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Link is a map link a user shared with the bot, together with the place it
// resolved to and a snapshot of who shared it.
//
// Members lists every user id allowed to see the link. It always contains
// UserID, and for group links it is kept a superset of the group's members
// by the membership backfill.
type Link struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"doc_id"`
	UserID  string             `bson:"user_id" json:"user_id"`
	GroupID string             `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Link    string             `bson:"link" json:"link"`

	PlaceID  string   `bson:"place_id,omitempty" json:"place_id,omitempty"`
	Name     string   `bson:"name" json:"name"`
	NameCI   string   `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped
	Address  string   `bson:"address" json:"address"`
	PhotoURL *string  `bson:"photo_url" json:"photo_url"`
	Lat      *float64 `bson:"lat" json:"lat"`
	Lng      *float64 `bson:"lng" json:"lng"`

	// Timestamp is the platform's server time for the message that carried the link.
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`

	DisplayName     string `bson:"display_name" json:"display_name"`
	UserPictureURL  string `bson:"user_picture_url,omitempty" json:"user_picture_url,omitempty"`
	GroupName       string `bson:"group_name,omitempty" json:"group_name,omitempty"`
	GroupPictureURL string `bson:"group_picture_url,omitempty" json:"group_picture_url,omitempty"`

	Members []string `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
