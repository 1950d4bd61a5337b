// Package mapsurl turns shared map links into place hints. Short links are
// expanded by following redirects, and expansions are cached.
package mapsurl

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// DefaultShortenerHosts are expanded before extraction.
var DefaultShortenerHosts = []string{"maps.app.goo.gl", "goo.gl", "g.co", "g.page"}

// DefaultCacheSize bounds the expansion cache when Options.CacheSize is 0.
const DefaultCacheSize = 1024

// Options configures a Normalizer.
type Options struct {
	CacheSize      int
	ShortenerHosts []string
}

// Normalizer expands and parses map URLs. Safe for concurrent use.
type Normalizer struct {
	http       *resty.Client
	cache      *lru.Cache
	shorteners map[string]bool
	log        *zap.Logger
}

// New builds a Normalizer. client must follow redirects (resty's default).
func New(client *resty.Client, opts Options, logger *zap.Logger) (*Normalizer, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("expansion cache: %w", err)
	}
	hosts := opts.ShortenerHosts
	if len(hosts) == 0 {
		hosts = DefaultShortenerHosts
	}
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[strings.ToLower(h)] = true
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{http: client, cache: cache, shorteners: set, log: logger}, nil
}

// Normalize expands raw if needed and extracts a place hint from it.
// Returns failures.ErrInvalidInput when nothing recognizable is found.
func (n *Normalizer) Normalize(ctx context.Context, raw string) (models.PlaceHint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.PlaceHint{}, failures.ErrInvalidInput
	}
	expanded := n.Expand(ctx, raw)
	hint, ok := ExtractHint(expanded)
	if !ok {
		n.log.Debug("no place hint in url",
			zap.String("url", raw),
			zap.String("expanded", expanded))
		return models.PlaceHint{}, fmt.Errorf("%w: %s", failures.ErrInvalidInput, raw)
	}
	return hint, nil
}

// Expand returns the final URL behind a shortened link. URLs on other hosts
// are returned as-is, apart from consent-page unwrapping. Network failures
// fall back to the input.
func (n *Normalizer) Expand(ctx context.Context, raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !n.shorteners[strings.ToLower(u.Hostname())] {
		return unwrapConsent(raw)
	}

	if v, ok := n.cache.Get(raw); ok {
		return v.(string)
	}

	final, ok := n.follow(ctx, raw)
	if !ok {
		return raw
	}
	final = unwrapConsent(final)
	if final != raw {
		n.cache.Add(raw, final)
	}
	return final
}

// follow tries HEAD, then GET, and reports the URL of the last hop.
func (n *Normalizer) follow(ctx context.Context, raw string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Outbound())
	defer cancel()

	resp, err := n.http.R().SetContext(ctx).Head(raw)
	if err == nil && !resp.IsError() {
		if final, ok := lastURL(resp); ok {
			return final, true
		}
	}
	if err != nil {
		n.log.Debug("head expansion failed, trying get", zap.String("url", raw), zap.Error(err))
	}

	resp, err = n.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(raw)
	if err != nil {
		n.log.Warn("url expansion failed", zap.String("url", raw), zap.Error(err))
		return "", false
	}
	if body := resp.RawBody(); body != nil {
		body.Close()
	}
	if resp.IsError() {
		n.log.Warn("url expansion returned error status",
			zap.String("url", raw),
			zap.Int("status", resp.StatusCode()))
		return "", false
	}
	return lastURL(resp)
}

func lastURL(resp *resty.Response) (string, bool) {
	if resp == nil || resp.RawResponse == nil || resp.RawResponse.Request == nil || resp.RawResponse.Request.URL == nil {
		return "", false
	}
	return resp.RawResponse.Request.URL.String(), true
}

// unwrapConsent replaces a consent interstitial URL with its continue target.
func unwrapConsent(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasPrefix(strings.ToLower(u.Hostname()), "consent.google.") {
		return raw
	}
	if next := u.Query().Get("continue"); next != "" {
		return next
	}
	return raw
}
