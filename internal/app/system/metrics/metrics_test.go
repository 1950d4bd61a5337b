package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	metricsstore "github.com/dalemusser/mapstash/internal/app/store/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.WebhookEvent("message", "ok")
	m.WebhookEvent("message", "ok")
	m.WebhookEvent("postback", "error")
	m.Redelivery()
	m.LinkResolution("place_not_found")
	m.Backfilled(3)
	m.Backfilled(0)

	body := scrape(t, m)
	for _, want := range []string{
		`mapstash_webhook_events_total{outcome="ok",type="message"} 2`,
		`mapstash_webhook_events_total{outcome="error",type="postback"} 1`,
		"mapstash_webhook_redeliveries_dropped_total 1",
		`mapstash_links_resolutions_total{outcome="place_not_found"} 1`,
		"mapstash_groups_backfilled_links_total 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.WebhookEvent("message", "ok")
	m.Redelivery()
	m.LinkResolution("ok")
	m.PlacesCall("details", "200", time.Second)
	m.Backfilled(1)
	m.PeriodUpdate("start_date", "saved")
}

func TestMetrics_HandlerExposesStoreCounts(t *testing.T) {
	m := New()
	err := m.RegisterStoreCounts(func(context.Context) metricsstore.Counts {
		return metricsstore.Counts{Users: 4, Groups: 2, Links: 9}
	}, time.Second)
	if err != nil {
		t.Fatalf("RegisterStoreCounts failed: %v", err)
	}
	m.PlacesCall("findplacefromtext", "200", 120*time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		"mapstash_users 4",
		"mapstash_links 9",
		`mapstash_places_request_duration_seconds_count{endpoint="findplacefromtext",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
