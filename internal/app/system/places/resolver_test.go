package places

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type upstream struct {
	find       string // JSON body for findplacefromtext
	findStatus int
	details    string
	photoCode  int

	mu        sync.Mutex
	lastInput string
	findCalls int
}

func (u *upstream) calls() (int, string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.findCalls, u.lastInput
}

func (u *upstream) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/findplacefromtext/json", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.findCalls++
		u.lastInput = r.URL.Query().Get("input")
		u.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if u.findStatus != 0 {
			w.WriteHeader(u.findStatus)
		}
		_, _ = w.Write([]byte(u.find))
	})
	mux.HandleFunc("/details/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(u.details))
	})
	mux.HandleFunc("/photo", func(w http.ResponseWriter, r *http.Request) {
		if u.photoCode != 0 {
			w.WriteHeader(u.photoCode)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngHeader)
	})
	return mux
}

type memBlobs struct {
	mu   sync.Mutex
	puts map[string]string // key -> content type
}

func (m *memBlobs) Put(_ context.Context, key string, _ []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.puts == nil {
		m.puts = map[string]string{}
	}
	m.puts[key] = contentType
	return "https://blobs.example.com/" + key, nil
}

var fixedClock = func() time.Time { return time.UnixMilli(1700000000000) }

const detailsOK = `{
  "status": "OK",
  "result": {
    "name": "Tokyo <b>Tower</b>",
    "formatted_address": "4 Chome-2-8 Shibakoen, Minato City, Tokyo",
    "geometry": {"location": {"lat": 35.6585805, "lng": 139.7454329}},
    "photos": [{"photo_reference": "REF1"}]
  }
}`

func newResolver(t *testing.T, u *upstream, blobs *memBlobs) *Resolver {
	t.Helper()
	srv := httptest.NewServer(u.handler())
	t.Cleanup(srv.Close)
	return New(resty.New(), Config{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Clock:   fixedClock,
	}, blobs, nil, zap.NewNop())
}

func TestResolve_Deterministic(t *testing.T) {
	u := &upstream{
		find:    `{"status":"OK","candidates":[{"place_id":"ChIJCewJkL2LGGAR3Qmk0vCTGkg"}]}`,
		details: detailsOK,
	}
	blobs := &memBlobs{}
	r := newResolver(t, u, blobs)
	hint := models.CoordinatesHint(35.6585805, 139.7454329)

	first, err := r.Resolve(context.Background(), hint)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := r.Resolve(context.Background(), hint)
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("results differ:\n%s\n%s", a, b)
	}

	if first.PlaceID != "ChIJCewJkL2LGGAR3Qmk0vCTGkg" {
		t.Errorf("PlaceID = %q", first.PlaceID)
	}
	if first.Name != "Tokyo Tower" {
		t.Errorf("Name = %q, want markup stripped", first.Name)
	}
	if first.Latitude == nil || *first.Latitude != 35.6585805 {
		t.Errorf("Latitude = %v", first.Latitude)
	}
	wantPhoto := "https://blobs.example.com/places/ChIJCewJkL2LGGAR3Qmk0vCTGkg/1700000000000.png"
	if first.PhotoURL == nil || *first.PhotoURL != wantPhoto {
		t.Errorf("PhotoURL = %v, want %s", first.PhotoURL, wantPhoto)
	}
	if ct := blobs.puts["places/ChIJCewJkL2LGGAR3Qmk0vCTGkg/1700000000000.png"]; ct != "image/png" {
		t.Errorf("stored content type = %q", ct)
	}
	if _, input := u.calls(); input != "35.6585805,139.7454329" {
		t.Errorf("search input = %q", input)
	}
}

func TestResolve_WellFormedIDSkipsSearch(t *testing.T) {
	for _, id := range []string{"ChIJdirect", "GhIJQWDl0CIeQUARxks3icF8U8A"} {
		t.Run(id, func(t *testing.T) {
			u := &upstream{details: detailsOK}
			r := newResolver(t, u, &memBlobs{})

			place, err := r.Resolve(context.Background(), models.PlaceIDHint(id))
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if place.PlaceID != id {
				t.Errorf("PlaceID = %q", place.PlaceID)
			}
			if n, _ := u.calls(); n != 0 {
				t.Errorf("expected no search calls, got %d", n)
			}
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero results status", body: `{"status":"ZERO_RESULTS","candidates":[]}`},
		{name: "ok but empty", body: `{"status":"OK","candidates":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, &upstream{find: tt.body}, &memBlobs{})
			_, err := r.Resolve(context.Background(), models.QueryHint("nowhere at all"))
			if !errors.Is(err, failures.ErrPlaceNotFound) {
				t.Errorf("expected ErrPlaceNotFound, got %v", err)
			}
		})
	}
}

func TestResolve_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		code       int
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "non-2xx",
			body:       `{"status":"INVALID_REQUEST","error_message":"bad input"}`,
			code:       http.StatusBadRequest,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "bad input",
		},
		{
			name:       "request denied with 200",
			body:       `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`,
			wantStatus: http.StatusOK,
			wantMsg:    "The provided API key is invalid.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, &upstream{find: tt.body, findStatus: tt.code}, &memBlobs{})
			_, err := r.Resolve(context.Background(), models.QueryHint("x"))

			var ue *failures.UpstreamError
			if !errors.As(err, &ue) {
				t.Fatalf("expected UpstreamError, got %v", err)
			}
			if ue.Status != tt.wantStatus || ue.Message != tt.wantMsg {
				t.Errorf("UpstreamError = %+v", ue)
			}
		})
	}
}

func TestResolve_PhotoFailureLeavesNilPhoto(t *testing.T) {
	u := &upstream{
		find:      `{"status":"OK","candidates":[{"place_id":"ChIJx"}]}`,
		details:   detailsOK,
		photoCode: http.StatusForbidden,
	}
	blobs := &memBlobs{}
	r := newResolver(t, u, blobs)

	place, err := r.Resolve(context.Background(), models.NameHint("Tokyo Tower"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if place.PhotoURL != nil {
		t.Errorf("expected nil photo, got %s", *place.PhotoURL)
	}
	if len(blobs.puts) != 0 {
		t.Errorf("expected no blobs stored, got %v", blobs.puts)
	}
}

func TestResolve_MissingGeometryFallsBackToHint(t *testing.T) {
	u := &upstream{
		find:    `{"status":"OK","candidates":[{"place_id":"ChIJy"}]}`,
		details: `{"status":"OK","result":{"name":"Somewhere","formatted_address":"Addr"}}`,
	}
	r := newResolver(t, u, &memBlobs{})

	place, err := r.Resolve(context.Background(), models.CoordinatesHint(1.5, 2.5))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if place.Latitude == nil || *place.Latitude != 1.5 || *place.Longitude != 2.5 {
		t.Errorf("coordinates = %v,%v, want hint coordinates", place.Latitude, place.Longitude)
	}
	if place.PhotoURL != nil {
		t.Error("expected nil photo when no photos")
	}
}

func TestResolve_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	u := &upstream{find: `{"status":"UNKNOWN_ERROR"}`, findStatus: http.StatusInternalServerError}
	r := newResolver(t, u, &memBlobs{})

	for i := 0; i < 5; i++ {
		_, _ = r.Resolve(context.Background(), models.QueryHint("x"))
	}
	before, _ := u.calls()

	_, err := r.Resolve(context.Background(), models.QueryHint("x"))
	var ue *failures.UpstreamError
	if !errors.As(err, &ue) || !strings.Contains(ue.Message, "unavailable") {
		t.Fatalf("expected breaker UpstreamError, got %v", err)
	}
	if after, _ := u.calls(); after != before {
		t.Error("expected open breaker to skip the upstream call")
	}
}

func TestResolve_EmptyHint(t *testing.T) {
	r := newResolver(t, &upstream{}, &memBlobs{})
	if _, err := r.Resolve(context.Background(), models.QueryHint("  ")); !errors.Is(err, failures.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
