// internal/domain/models/group.go
package models

import (
	"time"
)

// Group is a messaging-platform group chat the bot has seen.
//
// NOTE:
//   - The document _id is the platform's group id, not an ObjectID.
//   - Members only ever grow. A user leaving the chat does not remove them,
//     so links they could see stay visible.
type Group struct {
	ID         string   `bson:"_id" json:"group_id"`
	GroupName  string   `bson:"group_name" json:"group_name"`
	PictureURL string   `bson:"picture_url,omitempty" json:"picture_url,omitempty"`
	Members    []string `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// HasMember reports whether userID is already recorded on the group.
func (g Group) HasMember(userID string) bool {
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}
