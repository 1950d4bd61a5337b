// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/mapstash/internal/app/features/period"
	"github.com/dalemusser/mapstash/internal/app/features/webhook"
	"github.com/dalemusser/mapstash/internal/app/system/batch"
	"github.com/dalemusser/mapstash/internal/app/system/indexes"
	"github.com/dalemusser/mapstash/internal/app/system/mapsurl"
	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/places"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for mapstash.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, line_channel_secret, etc.
//   - Environment variables: MAPSTASH_MONGO_URI, MAPSTASH_LINE_CHANNEL_SECRET, etc.
//   - Command-line flags: --mongo_uri, --line_channel_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "mapstash", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 5, Desc: "MongoDB min connection pool size"},

	// Messaging platform
	{Name: "line_channel_id", Default: "", Desc: "LINE channel id (for short-lived access tokens)"},
	{Name: "line_channel_secret", Default: "", Desc: "LINE channel secret (webhook signatures, token exchange)"},
	{Name: "line_channel_access_token", Default: "", Desc: "LINE long-lived channel access token"},
	{Name: "line_api_base_url", Default: messaging.DefaultBaseURL, Desc: "LINE Messaging API base URL"},
	{Name: "line_verify_signature", Default: true, Desc: "Verify X-Line-Signature on webhooks (disable only for local testing)"},

	// Places API
	{Name: "google_maps_api_key", Default: "", Desc: "Google Places API key"},
	{Name: "places_api_base_url", Default: places.DefaultBaseURL, Desc: "Places API base URL"},
	{Name: "places_photo_max_width", Default: places.DefaultPhotoMaxWidth, Desc: "Max width of stored place photos"},
	{Name: "places_breaker_timeout", Default: "30s", Desc: "How long the Places circuit breaker stays open"},

	// Photo storage
	{Name: "blob_type", Default: "local", Desc: "Photo storage backend: 'local' or 's3'"},
	{Name: "blob_local_path", Default: "./uploads", Desc: "Directory for locally stored photos"},
	{Name: "blob_local_url", Default: "/files", Desc: "URL prefix for serving local photos"},
	{Name: "blob_s3_region", Default: "", Desc: "S3 region"},
	{Name: "blob_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "blob_s3_prefix", Default: "", Desc: "S3 key prefix"},
	{Name: "blob_s3_endpoint", Default: "", Desc: "S3-compatible endpoint URL (blank for AWS)"},
	{Name: "blob_s3_access_key_id", Default: "", Desc: "S3 access key id (blank uses the default AWS chain)"},
	{Name: "blob_s3_secret_key", Default: "", Desc: "S3 secret access key"},
	{Name: "blob_s3_use_path_style", Default: false, Desc: "Use path-style S3 addressing"},
	{Name: "blob_public_base_url", Default: "", Desc: "Public base URL for stored photos (e.g. a CDN)"},

	{Name: "base_url", Default: "http://localhost:8080", Desc: "Public base URL of this service"},

	{Name: "outbound_timeout", Default: "8s", Desc: "Timeout for each outbound HTTP call"},
	{Name: "expand_cache_size", Default: mapsurl.DefaultCacheSize, Desc: "Entries in the short-link expansion cache"},

	// Saving period
	{Name: "period_command", Default: webhook.DefaultPeriodCommand, Desc: "Message text that opens the saving period prompt"},
	{Name: "period_timezone", Default: "Asia/Tokyo", Desc: "Time zone the saving period dates are evaluated in"},
	{Name: "period_default_policy", Default: string(period.PolicyAllow), Desc: "When no period is set: 'allow' or 'deny'"},

	{Name: "backfill_batch_size", Default: batch.DefaultSize, Desc: "Links updated per bulk write when a member joins"},
	{Name: "webhook_dedupe_ttl", Default: "168h", Desc: "How long processed webhook event ids are remembered"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, MAPSTASH_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "MAPSTASH", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		LineChannelID:          appValues.String("line_channel_id"),
		LineChannelSecret:      appValues.String("line_channel_secret"),
		LineChannelAccessToken: appValues.String("line_channel_access_token"),
		LineAPIBaseURL:         appValues.String("line_api_base_url"),
		LineVerifySignature:    appValues.Bool("line_verify_signature"),

		GoogleMapsAPIKey:     appValues.String("google_maps_api_key"),
		PlacesAPIBaseURL:     appValues.String("places_api_base_url"),
		PlacesPhotoMaxWidth:  appValues.Int("places_photo_max_width"),
		PlacesBreakerTimeout: appValues.Duration("places_breaker_timeout", 30*time.Second),

		BlobType:           strings.ToLower(appValues.String("blob_type")),
		BlobLocalPath:      appValues.String("blob_local_path"),
		BlobLocalURL:       appValues.String("blob_local_url"),
		BlobS3Region:       appValues.String("blob_s3_region"),
		BlobS3Bucket:       appValues.String("blob_s3_bucket"),
		BlobS3Prefix:       appValues.String("blob_s3_prefix"),
		BlobS3Endpoint:     appValues.String("blob_s3_endpoint"),
		BlobS3AccessKeyID:  appValues.String("blob_s3_access_key_id"),
		BlobS3SecretKey:    appValues.String("blob_s3_secret_key"),
		BlobS3UsePathStyle: appValues.Bool("blob_s3_use_path_style"),
		BlobPublicBaseURL:  appValues.String("blob_public_base_url"),

		BaseURL: appValues.String("base_url"),

		OutboundTimeout: appValues.Duration("outbound_timeout", timeouts.DefaultOutbound),
		ExpandCacheSize: appValues.Int("expand_cache_size"),

		PeriodCommand:       appValues.String("period_command"),
		PeriodTimezone:      appValues.String("period_timezone"),
		PeriodDefaultPolicy: appValues.String("period_default_policy"),

		BackfillBatchSize: appValues.Int("backfill_batch_size"),
		WebhookDedupeTTL:  appValues.Duration("webhook_dedupe_ttl", indexes.DefaultWebhookEventTTL),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// All problems are reported together.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	var errs []error

	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		errs = append(errs, fmt.Errorf("invalid MongoDB URI: %w", err))
	}

	if appCfg.LineChannelAccessToken == "" && (appCfg.LineChannelID == "" || appCfg.LineChannelSecret == "") {
		errs = append(errs, errors.New("line_channel_access_token or line_channel_id + line_channel_secret is required"))
	}
	if appCfg.LineVerifySignature && appCfg.LineChannelSecret == "" {
		errs = append(errs, errors.New("line_channel_secret is required to verify webhook signatures"))
	}
	if !appCfg.LineVerifySignature {
		if coreCfg != nil && coreCfg.Env == "prod" {
			errs = append(errs, errors.New("line_verify_signature cannot be disabled in prod"))
		} else {
			logger.Warn("webhook signature verification is disabled")
		}
	}

	if appCfg.GoogleMapsAPIKey == "" {
		errs = append(errs, errors.New("google_maps_api_key is required"))
	}

	if _, err := time.LoadLocation(appCfg.PeriodTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid period_timezone: %w", err))
	}
	if _, err := period.ParsePolicy(appCfg.PeriodDefaultPolicy); err != nil {
		errs = append(errs, err)
	}

	switch appCfg.BlobType {
	case "local":
		if appCfg.BlobLocalPath == "" {
			errs = append(errs, errors.New("blob_local_path is required for local photo storage"))
		}
	case "s3":
		if appCfg.BlobS3Bucket == "" {
			errs = append(errs, errors.New("blob_s3_bucket is required for s3 photo storage"))
		}
		if appCfg.BlobS3Region == "" && appCfg.BlobS3Endpoint == "" {
			errs = append(errs, errors.New("blob_s3_region or blob_s3_endpoint is required for s3 photo storage"))
		}
		if (appCfg.BlobS3AccessKeyID == "") != (appCfg.BlobS3SecretKey == "") {
			errs = append(errs, errors.New("blob_s3_access_key_id and blob_s3_secret_key must be set together"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown blob_type %q (want local or s3)", appCfg.BlobType))
	}

	if appCfg.BackfillBatchSize < 0 || appCfg.ExpandCacheSize < 0 || appCfg.PlacesPhotoMaxWidth < 0 {
		errs = append(errs, errors.New("backfill_batch_size, expand_cache_size and places_photo_max_width must not be negative"))
	}

	return errors.Join(errs...)
}
