// internal/domain/models/user.go
package models

import (
	"time"
)

// User is a messaging-platform user who has followed the bot (or joined a
// group the bot is in). The document _id is the platform user id.
//
// NOTE:
//   - Period bounds are stored as civil dates ("2006-01-02") so that the
//     retention window does not drift when the configured time zone changes.
type User struct {
	ID            string `bson:"_id" json:"user_id"`
	DisplayName   string `bson:"display_name" json:"display_name"`
	PictureURL    string `bson:"picture_url,omitempty" json:"picture_url,omitempty"`
	StatusMessage string `bson:"status_message,omitempty" json:"status_message,omitempty"`

	Period StoredPeriod `bson:"period" json:"period"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// StoredPeriod is the persisted shape of a retention window. Either bound may
// be nil, which leaves that side of the window open.
type StoredPeriod struct {
	StartDate *string `bson:"start_date" json:"start_date"`
	EndDate   *string `bson:"end_date" json:"end_date"`
}

// Profile is the subset of platform profile data copied onto users and links.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
}
