// Package failures is the error taxonomy shared by the inbound pipeline.
//
// Components return (or wrap) these errors; the webhook router classifies
// them with KindOf to pick the reply a user sees and the metric outcome.
package failures

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput means a URL could not be turned into a place hint.
	ErrInvalidInput = errors.New("not a recognizable map place URL")

	// ErrPlaceNotFound means the places search returned no candidates.
	ErrPlaceNotFound = errors.New("place not found")

	// ErrUpstream is matched by every *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream error")

	// ErrStore marks document or blob store failures.
	ErrStore = errors.New("store error")

	// ErrValidation means user-supplied data was rejected (e.g. start date after end date).
	ErrValidation = errors.New("validation error")
)

// UpstreamError is a non-2xx or malformed response from the places API.
// Message carries the upstream's own error text when it sent one.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("places api error (status %d): %s", e.Status, e.Message)
	}
	return "places api error: " + e.Message
}

// Is lets errors.Is(err, ErrUpstream) match any UpstreamError.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// Store wraps err as a store failure. A nil err stays nil.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

// Kind is a coarse classification of a pipeline error.
type Kind string

const (
	KindNone          Kind = "ok"
	KindInvalidInput  Kind = "invalid_input"
	KindPlaceNotFound Kind = "place_not_found"
	KindUpstream      Kind = "upstream_error"
	KindStore         Kind = "store_error"
	KindValidation    Kind = "validation_error"
	KindInternal      Kind = "internal_error"
)

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrPlaceNotFound):
		return KindPlaceNotFound
	case errors.Is(err, ErrUpstream):
		return KindUpstream
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrStore):
		return KindStore
	default:
		return KindInternal
	}
}

// UpstreamMessage returns the upstream's message if err wraps an
// UpstreamError, or "" otherwise.
func UpstreamMessage(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	return ""
}
