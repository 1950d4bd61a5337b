// Package webhook receives messaging-platform webhooks and routes each event
// to link saving, the period conversation or group sync.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps the webhook request body.
const maxBodyBytes = 1 << 20

// EventLog records processed event ids so redeliveries can be dropped.
type EventLog interface {
	MarkProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}

// Handler serves POST /webhook.
type Handler struct {
	Router        *Router
	Events        EventLog
	ChannelSecret string

	// VerifySignature is off only in local development.
	VerifySignature bool

	Metrics *metrics.Metrics
	Log     *zap.Logger

	validate *validator.Validate
}

// NewHandler builds a webhook Handler.
func NewHandler(router *Router, events EventLog, secret string, verify bool, m *metrics.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Router:          router,
		Events:          events,
		ChannelSecret:   secret,
		VerifySignature: verify,
		Metrics:         m,
		Log:             logger,
		validate:        validator.New(),
	}
}

// ServeWebhook handles POST /webhook.
//
// 401 when the signature does not match, 400 for a malformed body, 413 when
// the body is too large. Otherwise every event is handled in order and the
// response is 200, even if individual events failed.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if h.VerifySignature && !messaging.VerifySignature(h.ChannelSecret, body, r.Header.Get(messaging.SignatureHeader)) {
		h.Log.Warn("webhook signature mismatch", zap.String("remote_addr", r.RemoteAddr))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		h.Log.Warn("webhook body is not valid JSON", zap.Error(err))
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	log := h.Log.With(zap.String("batch_id", uuid.NewString()))
	log.Debug("webhook received", zap.Int("events", len(payload.Events)))

	for i, raw := range payload.Events {
		h.handleEvent(r.Context(), log.With(zap.Int("index", i)), raw)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) handleEvent(ctx context.Context, log *zap.Logger, raw json.RawMessage) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Warn("event skipped: undecodable", zap.Error(err))
		h.Metrics.WebhookEvent("unknown", outcomeInvalid)
		return
	}
	if err := h.validate.Struct(ev); err != nil {
		log.Warn("event skipped: invalid", zap.String("event_type", ev.Type), zap.Error(err))
		h.Metrics.WebhookEvent(ev.Type, outcomeInvalid)
		return
	}

	if ev.WebhookEventID != "" && h.Events != nil {
		mctx, cancel := context.WithTimeout(ctx, timeouts.Short())
		first, err := h.Events.MarkProcessed(mctx, ev.WebhookEventID, ev.Type)
		cancel()
		switch {
		case err != nil:
			log.Warn("event dedupe unavailable, processing anyway",
				zap.String("webhook_event_id", ev.WebhookEventID), zap.Error(err))
		case !first:
			log.Info("redelivered event dropped",
				zap.String("webhook_event_id", ev.WebhookEventID),
				zap.Bool("is_redelivery", ev.DeliveryContext.IsRedelivery))
			h.Metrics.Redelivery()
			return
		}
	}

	h.Router.route(ctx, log, ev)
}
