// internal/app/bootstrap/dbdeps.go
package bootstrap

import "go.mongodb.org/mongo-driver/mongo"

// DBDeps holds the backend connections shared by the app.
// ConnectDB fills it; EnsureSchema, Startup, BuildHandler and Shutdown read it.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
}
