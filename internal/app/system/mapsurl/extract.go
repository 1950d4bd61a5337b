package mapsurl

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/dalemusser/mapstash/internal/domain/models"
)

var (
	atCoords  = regexp.MustCompile(`@(-?\d+\.\d+),(-?\d+\.\d+)`)
	placeSeg  = regexp.MustCompile(`/place/([^/?#]+)`)
	featureID = regexp.MustCompile(`!1s(0x[0-9a-fA-F]+:0x[0-9a-fA-F]+)`)
	urlInText = regexp.MustCompile(`https?://[^\s<>"]+`)
)

// ExtractHint reads a place hint out of an already-expanded map URL.
// First match wins, in this order:
//
//  1. an explicit well-formed place id (place_id, query_place_id, q=place_id:)
//  2. @lat,lng in the path
//  3. a /place/<name> path segment
//  4. a q= or query= parameter (a "lat,lng" value gives coordinates)
//  5. an opaque feature id (!1s0x..:0x.., ftid=, cid=, or a malformed place id)
func ExtractHint(raw string) (models.PlaceHint, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return models.PlaceHint{}, false
	}
	q := u.Query()

	var opaque string
	for _, id := range explicitPlaceIDs(q) {
		if models.PlaceIDHint(id).HasWellFormedPlaceID() {
			return models.PlaceIDHint(id), true
		}
		if opaque == "" {
			opaque = id
		}
	}

	if m := atCoords.FindStringSubmatch(u.Path); m != nil {
		if lat, lng, ok := parseLatLng(m[1] + "," + m[2]); ok {
			return models.CoordinatesHint(lat, lng), true
		}
	}

	if m := placeSeg.FindStringSubmatch(u.EscapedPath()); m != nil {
		if name, err := url.QueryUnescape(m[1]); err == nil {
			name = strings.TrimSpace(name)
			if lat, lng, ok := parseLatLng(name); ok {
				return models.CoordinatesHint(lat, lng), true
			}
			if name != "" {
				return models.NameHint(name), true
			}
		}
	}

	for _, key := range []string{"q", "query"} {
		v := strings.TrimSpace(q.Get(key))
		if v == "" || strings.HasPrefix(v, "place_id:") {
			continue
		}
		if lat, lng, ok := parseLatLng(v); ok {
			return models.CoordinatesHint(lat, lng), true
		}
		return models.QueryHint(v), true
	}

	if m := featureID.FindStringSubmatch(raw); m != nil {
		return models.PlaceIDHint(m[1]), true
	}
	if unescaped, err := url.PathUnescape(raw); err == nil {
		if m := featureID.FindStringSubmatch(unescaped); m != nil {
			return models.PlaceIDHint(m[1]), true
		}
	}
	for _, key := range []string{"ftid", "cid"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			return models.PlaceIDHint(v), true
		}
	}
	if opaque != "" {
		return models.PlaceIDHint(opaque), true
	}
	return models.PlaceHint{}, false
}

func explicitPlaceIDs(q url.Values) []string {
	var ids []string
	for _, key := range []string{"place_id", "query_place_id"} {
		if v := strings.TrimSpace(q.Get(key)); v != "" {
			ids = append(ids, v)
		}
	}
	if v, ok := strings.CutPrefix(strings.TrimSpace(q.Get("q")), "place_id:"); ok && v != "" {
		ids = append(ids, v)
	}
	return ids
}

// parseLatLng accepts "lat,lng" with optional spaces and checks ranges.
func parseLatLng(s string) (lat, lng float64, ok bool) {
	a, b, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, false
	}
	return lat, lng, true
}

// FindMapURL returns the first map URL found in a free-text message.
func FindMapURL(text string) (string, bool) {
	for _, candidate := range urlInText.FindAllString(text, -1) {
		candidate = strings.TrimRight(candidate, ".,;:!?)]}'。、」』）")
		if IsMapURL(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// IsMapURL reports whether raw points at a Google Maps page or one of its
// shortener hosts.
func IsMapURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	path := u.Path

	switch {
	case host == "maps.app.goo.gl":
		return true
	case host == "goo.gl":
		return strings.HasPrefix(path, "/maps")
	case strings.HasPrefix(host, "maps.google."):
		return true
	case host == "google.com" || strings.HasPrefix(host, "google.") ||
		host == "www.google.com" || strings.HasPrefix(host, "www.google."):
		return path == "/maps" || strings.HasPrefix(path, "/maps/")
	}
	return false
}
