// Package maplinks saves shared map links: the URL is normalized to a place
// hint, resolved against the places API, and stored as a Link.
package maplinks

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"go.uber.org/zap"
)

// Normalizer turns a raw URL into a place hint.
type Normalizer interface {
	Normalize(ctx context.Context, raw string) (models.PlaceHint, error)
}

// Resolver looks up the place a hint refers to.
type Resolver interface {
	Resolve(ctx context.Context, hint models.PlaceHint) (models.ResolvedPlace, error)
}

// LinkWriter persists links.
type LinkWriter interface {
	Create(ctx context.Context, l models.Link) (models.Link, error)
}

// Request describes one shared link.
type Request struct {
	URL       string
	Timestamp time.Time

	Sender models.Profile

	// Group is the group snapshot when the link was shared in a group chat.
	Group *models.Group
}

// Saver runs the normalize, resolve, persist pipeline.
type Saver struct {
	normalizer Normalizer
	resolver   Resolver
	links      LinkWriter
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// New builds a Saver. m may be nil.
func New(n Normalizer, r Resolver, links LinkWriter, m *metrics.Metrics, logger *zap.Logger) *Saver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{normalizer: n, resolver: r, links: links, metrics: m, log: logger}
}

// Save stores the place behind req.URL. Errors are classified by
// failures.KindOf: invalid input, place not found, upstream or store.
func (s *Saver) Save(ctx context.Context, req Request) (models.Link, error) {
	link, err := s.save(ctx, req)
	s.metrics.LinkResolution(string(failures.KindOf(err)))
	if err != nil {
		s.log.Info("map link not saved",
			zap.String("user_id", req.Sender.UserID),
			zap.String("url", req.URL),
			zap.String("kind", string(failures.KindOf(err))),
			zap.Error(err))
	}
	return link, err
}

func (s *Saver) save(ctx context.Context, req Request) (models.Link, error) {
	if req.Sender.UserID == "" {
		return models.Link{}, errors.New("save link: empty sender")
	}

	hint, err := s.normalizer.Normalize(ctx, req.URL)
	if err != nil {
		return models.Link{}, err
	}

	place, err := s.resolver.Resolve(ctx, hint)
	if err != nil {
		return models.Link{}, err
	}

	link := models.Link{
		UserID:         req.Sender.UserID,
		Link:           req.URL,
		PlaceID:        place.PlaceID,
		Name:           place.Name,
		Address:        place.Address,
		PhotoURL:       place.PhotoURL,
		Lat:            place.Latitude,
		Lng:            place.Longitude,
		Timestamp:      req.Timestamp.UTC(),
		DisplayName:    req.Sender.DisplayName,
		UserPictureURL: req.Sender.PictureURL,
		Members:        []string{req.Sender.UserID},
	}
	if g := req.Group; g != nil {
		link.GroupID = g.ID
		link.GroupName = g.GroupName
		link.GroupPictureURL = g.PictureURL
		for _, m := range g.Members {
			if m != req.Sender.UserID {
				link.Members = append(link.Members, m)
			}
		}
	}

	cctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()
	saved, err := s.links.Create(cctx, link)
	if err != nil {
		return models.Link{}, failures.Store("insert link", err)
	}

	s.log.Info("map link saved",
		zap.String("user_id", saved.UserID),
		zap.String("group_id", saved.GroupID),
		zap.String("place_id", saved.PlaceID),
		zap.String("link_id", saved.ID.Hex()))
	return saved, nil
}
