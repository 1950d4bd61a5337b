package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser inserts a user with an empty period.
func (f *Fixtures) CreateUser(ctx context.Context, id, displayName string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{
		ID:          id,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("CreateUser(%s): %v", id, err)
	}
	return u
}

// CreateUserWithPeriod inserts a user whose period bounds are set as given.
// Empty strings leave a bound unset.
func (f *Fixtures) CreateUserWithPeriod(ctx context.Context, id, start, end string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	u := models.User{ID: id, DisplayName: id, CreatedAt: now, UpdatedAt: now}
	if start != "" {
		u.Period.StartDate = &start
	}
	if end != "" {
		u.Period.EndDate = &end
	}
	if _, err := f.db.Collection("users").InsertOne(ctx, u); err != nil {
		f.t.Fatalf("CreateUserWithPeriod(%s): %v", id, err)
	}
	return u
}

// CreateGroup inserts a group with the given members.
func (f *Fixtures) CreateGroup(ctx context.Context, id, name string, members ...string) models.Group {
	f.t.Helper()

	if members == nil {
		members = []string{}
	}
	now := time.Now().UTC()
	g := models.Group{
		ID:        id,
		GroupName: name,
		Members:   members,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := f.db.Collection("groups").InsertOne(ctx, g); err != nil {
		f.t.Fatalf("CreateGroup(%s): %v", id, err)
	}
	return g
}

// CreateGroupLink inserts a link shared by userID in groupID, visible to members.
func (f *Fixtures) CreateGroupLink(ctx context.Context, groupID, userID, name string, members ...string) models.Link {
	f.t.Helper()

	now := time.Now().UTC()
	l := models.Link{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		GroupID:   groupID,
		Link:      "https://maps.google.com/?q=" + name,
		Name:      name,
		NameCI:    text.Fold(name),
		Timestamp: now,
		Members:   append([]string{userID}, members...),
		CreatedAt: now,
	}
	if _, err := f.db.Collection("links").InsertOne(ctx, l); err != nil {
		f.t.Fatalf("CreateGroupLink(%s): %v", name, err)
	}
	return l
}

// GroupLinks reads back every link stored for groupID, oldest first.
func (f *Fixtures) GroupLinks(ctx context.Context, groupID string) []models.Link {
	f.t.Helper()

	cur, err := f.db.Collection("links").Find(ctx, bson.M{"group_id": groupID})
	if err != nil {
		f.t.Fatalf("GroupLinks(%s): %v", groupID, err)
	}
	var out []models.Link
	if err := cur.All(ctx, &out); err != nil {
		f.t.Fatalf("GroupLinks(%s): %v", groupID, err)
	}
	return out
}
