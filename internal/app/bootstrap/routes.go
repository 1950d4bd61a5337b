// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/mapstash/internal/app/features/groupsync"
	healthfeature "github.com/dalemusser/mapstash/internal/app/features/health"
	"github.com/dalemusser/mapstash/internal/app/features/maplinks"
	"github.com/dalemusser/mapstash/internal/app/features/period"
	webhookfeature "github.com/dalemusser/mapstash/internal/app/features/webhook"
	groupstore "github.com/dalemusser/mapstash/internal/app/store/groups"
	linkstore "github.com/dalemusser/mapstash/internal/app/store/links"
	metricsstore "github.com/dalemusser/mapstash/internal/app/store/metrics"
	userstore "github.com/dalemusser/mapstash/internal/app/store/users"
	webhookeventstore "github.com/dalemusser/mapstash/internal/app/store/webhookevents"
	"github.com/dalemusser/mapstash/internal/app/system/batch"
	"github.com/dalemusser/mapstash/internal/app/system/blobstore"
	"github.com/dalemusser/mapstash/internal/app/system/mapsurl"
	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/places"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Version is reported by /health. Set at build time with
// -ldflags "-X github.com/dalemusser/mapstash/internal/app/bootstrap.Version=..."
var Version = "dev"

const userAgent = "mapstash/1.0"

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// mapstash builds the inbound pipeline here (URL normalizer, place resolver,
// group sync, period conversation, link saver) and mounts:
//
//	POST /webhook   platform events
//	GET  /health    liveness and database status
//	GET  /metrics   Prometheus metrics
//	GET  /files/*   locally stored place photos (local blob backend only)
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	db := deps.MongoDatabase

	m := metrics.New()
	if err := m.RegisterStoreCounts(func(ctx context.Context) metricsstore.Counts {
		return metricsstore.FetchCounts(ctx, db)
	}, timeouts.Short()); err != nil {
		return nil, fmt.Errorf("register store metrics: %w", err)
	}

	// One resty client is shared by the URL normalizer and the places
	// resolver. Per-call deadlines come from timeouts.Outbound().
	httpClient := resty.New().SetHeader("User-Agent", userAgent)

	normalizer, err := mapsurl.New(httpClient, mapsurl.Options{CacheSize: appCfg.ExpandCacheSize}, logger)
	if err != nil {
		logger.Error("url normalizer init failed", zap.Error(err))
		return nil, err
	}

	blobs, local, err := newBlobStore(appCfg, logger)
	if err != nil {
		logger.Error("blob store init failed", zap.Error(err))
		return nil, err
	}

	resolver := places.New(httpClient, places.Config{
		BaseURL:        appCfg.PlacesAPIBaseURL,
		APIKey:         appCfg.GoogleMapsAPIKey,
		PhotoMaxWidth:  appCfg.PlacesPhotoMaxWidth,
		BreakerTimeout: appCfg.PlacesBreakerTimeout,
	}, blobs, m, logger)

	gateway, err := messaging.New(messaging.Config{
		BaseURL:            appCfg.LineAPIBaseURL,
		ChannelAccessToken: appCfg.LineChannelAccessToken,
		ChannelID:          appCfg.LineChannelID,
		ChannelSecret:      appCfg.LineChannelSecret,
	}, logger)
	if err != nil {
		logger.Error("messaging client init failed", zap.Error(err))
		return nil, err
	}

	users := userstore.New(db)
	groups := groupstore.New(db)
	links := linkstore.New(db)
	events := webhookeventstore.New(db)

	syncer := groupsync.New(groups, users, links, gateway, batch.New(appCfg.BackfillBatchSize, logger), m, logger)
	periods := period.NewConversation(users, m, logger)
	saver := maplinks.New(normalizer, resolver, links, m, logger)

	loc, err := time.LoadLocation(appCfg.PeriodTimezone)
	if err != nil {
		return nil, fmt.Errorf("period timezone: %w", err)
	}
	policy, err := period.ParsePolicy(appCfg.PeriodDefaultPolicy)
	if err != nil {
		return nil, err
	}

	router := webhookfeature.NewRouter(webhookfeature.RouterConfig{
		Gateway: gateway,
		Users:   users,
		Links:   saver,
		Periods: periods,
		Groups:  syncer,
		CountLinks: func(ctx context.Context, groupID string) (int64, error) {
			return metricsstore.CountGroupLinks(ctx, db, groupID)
		},
		Gate:          period.Gate{Loc: loc, Policy: policy},
		PeriodCommand: appCfg.PeriodCommand,
		Metrics:       m,
		Logger:        logger,
	})
	webhookHandler := webhookfeature.NewHandler(router, events, appCfg.LineChannelSecret, appCfg.LineVerifySignature, m, logger)

	r := chi.NewRouter()

	// Platform webhook
	r.Mount("/webhook", webhookfeature.Routes(webhookHandler))

	// Health check endpoint
	healthHandler := healthfeature.NewHandler(deps.MongoClient, Version, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Prometheus scrape endpoint
	r.Handle("/metrics", m.Handler())

	// Locally stored photos. The S3 backend serves its own URLs.
	if local != nil {
		prefix := localURLPrefix(appCfg.BlobLocalURL)
		r.Handle(prefix+"/*", fileserver.Handler(prefix, local.Dir()))
	}

	return r, nil
}

// newBlobStore builds the configured photo store. The *blobstore.Local
// return is non-nil only for the local backend, so the caller can serve it.
func newBlobStore(appCfg AppConfig, logger *zap.Logger) (blobstore.Store, *blobstore.Local, error) {
	switch appCfg.BlobType {
	case "s3":
		ctx, cancel := context.WithTimeout(context.Background(), timeouts.Medium())
		defer cancel()
		s3, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Region:          appCfg.BlobS3Region,
			Bucket:          appCfg.BlobS3Bucket,
			Prefix:          appCfg.BlobS3Prefix,
			Endpoint:        appCfg.BlobS3Endpoint,
			AccessKeyID:     appCfg.BlobS3AccessKeyID,
			SecretAccessKey: appCfg.BlobS3SecretKey,
			UsePathStyle:    appCfg.BlobS3UsePathStyle,
			PublicBaseURL:   appCfg.BlobPublicBaseURL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	case "local", "":
		local, err := blobstore.NewLocal(appCfg.BlobLocalPath, localPublicURL(appCfg), logger)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	default:
		return nil, nil, fmt.Errorf("unknown blob_type %q", appCfg.BlobType)
	}
}

// localURLPrefix normalizes the mount prefix to "/name" form.
func localURLPrefix(p string) string {
	p = "/" + strings.Trim(p, "/")
	if p == "/" {
		return "/files"
	}
	return p
}

// localPublicURL is the absolute URL local photos are reachable under.
func localPublicURL(appCfg AppConfig) string {
	if appCfg.BlobPublicBaseURL != "" {
		return strings.TrimRight(appCfg.BlobPublicBaseURL, "/")
	}
	return strings.TrimRight(appCfg.BaseURL, "/") + localURLPrefix(appCfg.BlobLocalURL)
}
