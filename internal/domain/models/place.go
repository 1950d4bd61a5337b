// internal/domain/models/place.go
package models

import (
	"fmt"
	"regexp"
	"strings"
)

// HintKind identifies which variant of a PlaceHint is populated.
type HintKind int

const (
	HintPlaceID HintKind = iota + 1
	HintCoordinates
	HintName
	HintQuery
)

func (k HintKind) String() string {
	switch k {
	case HintPlaceID:
		return "place_id"
	case HintCoordinates:
		return "coordinates"
	case HintName:
		return "name"
	case HintQuery:
		return "query"
	default:
		return "unknown"
	}
}

// PlaceHint is what a map URL says about the place it points at.
// Exactly one variant is populated, selected by Kind.
type PlaceHint struct {
	Kind    HintKind
	PlaceID string
	Lat     float64
	Lng     float64
	Text    string // Name or Query, depending on Kind
}

// PlaceIDHint builds a place-id hint. The id may be a canonical Places id or
// an opaque feature id lifted from the URL.
func PlaceIDHint(id string) PlaceHint { return PlaceHint{Kind: HintPlaceID, PlaceID: id} }

// CoordinatesHint builds a coordinates hint.
func CoordinatesHint(lat, lng float64) PlaceHint {
	return PlaceHint{Kind: HintCoordinates, Lat: lat, Lng: lng}
}

// NameHint builds a hint from a path-encoded place name.
func NameHint(name string) PlaceHint { return PlaceHint{Kind: HintName, Text: name} }

// QueryHint builds a free-text query hint.
func QueryHint(q string) PlaceHint { return PlaceHint{Kind: HintQuery, Text: q} }

// placeIDShape matches the URL-safe base64 text of a Places id. Opaque
// feature ids (0x..:0x..) and numeric cids never match.
var placeIDShape = regexp.MustCompile(`^[A-Za-z0-9_-]{20,}$`)

// HasWellFormedPlaceID reports whether the hint carries a canonical Places id
// that can go straight to a details lookup. Ids with the common ChIJ prefix
// always qualify; other prefixes (GhIJ, Ei...) must look like a full id.
func (h PlaceHint) HasWellFormedPlaceID() bool {
	if h.Kind != HintPlaceID {
		return false
	}
	id := h.PlaceID
	if strings.HasPrefix(id, "ChIJ") {
		return true
	}
	if strings.HasPrefix(id, "0x") || isDigits(id) {
		return false
	}
	return placeIDShape.MatchString(id)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func (h PlaceHint) String() string {
	switch h.Kind {
	case HintPlaceID:
		return "place_id:" + h.PlaceID
	case HintCoordinates:
		return fmt.Sprintf("coordinates:%g,%g", h.Lat, h.Lng)
	case HintName:
		return "name:" + h.Text
	case HintQuery:
		return "query:" + h.Text
	default:
		return "empty"
	}
}

// ResolvedPlace is the canonical description of a place after an upstream
// lookup. Optional fields are nil when the upstream did not supply them.
type ResolvedPlace struct {
	PlaceID   string
	Name      string
	Address   string
	PhotoURL  *string
	Latitude  *float64
	Longitude *float64
}
