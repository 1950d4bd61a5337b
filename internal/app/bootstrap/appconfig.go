// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (MAPSTASH_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers ports, TLS, logging and CORS; everything below is mapstash's own.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Messaging platform. A static access token wins over the id/secret pair.
	LineChannelID          string
	LineChannelSecret      string // also signs webhooks
	LineChannelAccessToken string
	LineAPIBaseURL         string
	LineVerifySignature    bool

	// Places API
	GoogleMapsAPIKey     string
	PlacesAPIBaseURL     string
	PlacesPhotoMaxWidth  int
	PlacesBreakerTimeout time.Duration

	// Photo storage: "local" or "s3"
	BlobType            string
	BlobLocalPath       string
	BlobLocalURL        string // URL prefix the local files are served under
	BlobS3Region        string
	BlobS3Bucket        string
	BlobS3Prefix        string
	BlobS3Endpoint      string // S3-compatible endpoint (MinIO, R2); blank for AWS
	BlobS3AccessKeyID   string
	BlobS3SecretKey     string
	BlobS3UsePathStyle  bool
	BlobPublicBaseURL   string

	// Public base URL of this service, used to absolutize local blob URLs.
	BaseURL string

	OutboundTimeout time.Duration
	ExpandCacheSize int

	// Saving period
	PeriodCommand       string
	PeriodTimezone      string
	PeriodDefaultPolicy string

	BackfillBatchSize int
	WebhookDedupeTTL  time.Duration
}
