// Package places resolves place hints into canonical place records using
// the Places web service, and stores the first place photo in a blob store.
package places

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/mapstash/internal/app/system/blobstore"
	"github.com/dalemusser/mapstash/internal/app/system/htmlsanitize"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL       = "https://maps.googleapis.com/maps/api/place"
	DefaultPhotoMaxWidth = 400
)

// Config configures a Resolver.
type Config struct {
	BaseURL        string
	APIKey         string
	PhotoMaxWidth  int
	BreakerTimeout time.Duration    // how long the breaker stays open; 0 uses 30s
	Clock          func() time.Time // photo key timestamps; nil uses time.Now
}

// Resolver turns hints into places. Safe for concurrent use.
type Resolver struct {
	http     *resty.Client
	baseURL  string
	apiKey   string
	maxWidth int
	blobs    blobstore.Store
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time
	metrics  *metrics.Metrics
	log      *zap.Logger
}

// New builds a Resolver. blobs may be nil, in which case photos are skipped.
func New(client *resty.Client, cfg Config, blobs blobstore.Store, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	width := cfg.PhotoMaxWidth
	if width <= 0 {
		width = DefaultPhotoMaxWidth
	}
	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	log := logger.With(zap.String("component", "places"))

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "places-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Not-found is a valid answer, not an outage.
			return err == nil || errors.Is(err, failures.ErrPlaceNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Resolver{
		http:     client,
		baseURL:  base,
		apiKey:   cfg.APIKey,
		maxWidth: width,
		blobs:    blobs,
		breaker:  breaker,
		now:      now,
		metrics:  m,
		log:      log,
	}
}

// Resolve looks up the place a hint refers to. It fails with
// failures.ErrPlaceNotFound or a *failures.UpstreamError. Photo problems
// never fail a resolution; the photo is left nil instead.
func (r *Resolver) Resolve(ctx context.Context, hint models.PlaceHint) (models.ResolvedPlace, error) {
	placeID, err := r.findPlaceID(ctx, hint)
	if err != nil {
		return models.ResolvedPlace{}, err
	}

	var details detailsResponse
	err = r.getJSON(ctx, "details", map[string]string{
		"place_id": placeID,
		"fields":   "name,formatted_address,geometry,photo",
	}, &details)
	if err != nil {
		return models.ResolvedPlace{}, err
	}
	if details.Result == nil {
		return models.ResolvedPlace{}, &failures.UpstreamError{Message: "details response has no result"}
	}
	res := details.Result

	place := models.ResolvedPlace{
		PlaceID: placeID,
		Name:    htmlsanitize.PlainText(res.Name),
		Address: htmlsanitize.PlainText(res.FormattedAddress),
	}
	switch {
	case res.Geometry != nil:
		lat, lng := res.Geometry.Location.Lat, res.Geometry.Location.Lng
		place.Latitude, place.Longitude = &lat, &lng
	case hint.Kind == models.HintCoordinates:
		lat, lng := hint.Lat, hint.Lng
		place.Latitude, place.Longitude = &lat, &lng
	}

	if len(res.Photos) > 0 && res.Photos[0].PhotoReference != "" && r.blobs != nil {
		url, err := r.storePhoto(ctx, placeID, res.Photos[0].PhotoReference)
		if err != nil {
			r.log.Warn("place photo not stored",
				zap.String("place_id", placeID),
				zap.Error(err))
		} else {
			place.PhotoURL = &url
		}
	}
	return place, nil
}

// findPlaceID returns a canonical place id for hint, searching if needed.
func (r *Resolver) findPlaceID(ctx context.Context, hint models.PlaceHint) (string, error) {
	if hint.HasWellFormedPlaceID() {
		return hint.PlaceID, nil
	}

	var input string
	switch hint.Kind {
	case models.HintPlaceID:
		input = hint.PlaceID
	case models.HintCoordinates:
		input = strconv.FormatFloat(hint.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(hint.Lng, 'f', -1, 64)
	case models.HintName, models.HintQuery:
		input = hint.Text
	}
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("%w: empty place hint", failures.ErrInvalidInput)
	}

	var found findPlaceResponse
	err := r.getJSON(ctx, "findplacefromtext", map[string]string{
		"input":     input,
		"inputtype": "textquery",
		"fields":    "place_id",
	}, &found)
	if err != nil {
		return "", err
	}
	for _, c := range found.Candidates {
		if c.PlaceID != "" {
			return c.PlaceID, nil
		}
	}
	return "", failures.ErrPlaceNotFound
}

// getJSON calls {base}/{endpoint}/json through the breaker and maps the
// API status onto the failure taxonomy.
func (r *Resolver) getJSON(ctx context.Context, endpoint string, params map[string]string, out statusCarrier) error {
	start := time.Now()
	statusLabel := "error"

	_, err := r.breaker.Execute(func() (any, error) {
		cctx, cancel := context.WithTimeout(ctx, timeouts.Outbound())
		defer cancel()

		resp, err := r.http.R().
			SetContext(cctx).
			SetQueryParams(params).
			SetQueryParam("key", r.apiKey).
			SetHeader("Accept", "application/json").
			SetResult(out).
			SetError(out).
			Get(r.baseURL + "/" + endpoint + "/json")
		if err != nil {
			return nil, &failures.UpstreamError{Message: err.Error()}
		}
		statusLabel = strconv.Itoa(resp.StatusCode())

		st := out.status()
		if resp.IsError() {
			msg := st.ErrorMessage
			if msg == "" {
				msg = resp.Status()
			}
			return nil, &failures.UpstreamError{Status: resp.StatusCode(), Message: msg}
		}
		switch st.Status {
		case "OK":
			return nil, nil
		case "ZERO_RESULTS", "NOT_FOUND":
			return nil, failures.ErrPlaceNotFound
		default:
			msg := st.ErrorMessage
			if msg == "" {
				msg = "unexpected status " + strconv.Quote(st.Status)
			}
			return nil, &failures.UpstreamError{Status: resp.StatusCode(), Message: msg}
		}
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		statusLabel = "breaker_open"
		err = &failures.UpstreamError{Message: "places api temporarily unavailable"}
	}
	r.metrics.PlacesCall(endpoint, statusLabel, time.Since(start))

	if err != nil && !errors.Is(err, failures.ErrPlaceNotFound) {
		r.log.Warn("places api call failed",
			zap.String("endpoint", endpoint),
			zap.Error(err))
	}
	return err
}

// storePhoto downloads a photo and writes it to places/<id>/<unixMillis><ext>.
func (r *Resolver) storePhoto(ctx context.Context, placeID, ref string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeouts.Outbound())
	defer cancel()

	start := time.Now()
	resp, err := r.http.R().
		SetContext(cctx).
		SetQueryParams(map[string]string{
			"maxwidth":       strconv.Itoa(r.maxWidth),
			"photoreference": ref,
			"key":            r.apiKey,
		}).
		Get(r.baseURL + "/photo")
	if err != nil {
		r.metrics.PlacesCall("photo", "error", time.Since(start))
		return "", fmt.Errorf("download photo: %w", err)
	}
	r.metrics.PlacesCall("photo", strconv.Itoa(resp.StatusCode()), time.Since(start))
	if resp.IsError() {
		return "", fmt.Errorf("download photo: status %d", resp.StatusCode())
	}

	data := resp.Body()
	if len(data) == 0 {
		return "", errors.New("download photo: empty body")
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("download photo: unexpected content type %s", mt.String())
	}

	key := fmt.Sprintf("places/%s/%d%s", placeID, r.now().UnixMilli(), mt.Extension())
	url, err := r.blobs.Put(cctx, key, data, mt.String())
	if err != nil {
		return "", failures.Store("put photo", err)
	}
	return url, nil
}
