package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/mapstash/internal/app/features/maplinks"
	"github.com/dalemusser/mapstash/internal/app/features/period"
	userstore "github.com/dalemusser/mapstash/internal/app/store/users"
	"github.com/dalemusser/mapstash/internal/app/system/mapsurl"
	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/metrics"
	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultPeriodCommand is the message text that opens the period prompt.
const DefaultPeriodCommand = "保存期間変更"

// Outcomes recorded per event.
const (
	outcomeHandled  = "handled"
	outcomeIgnored  = "ignored"
	outcomeSilent   = "unknown_user"
	outcomeRejected = "rejected"
	outcomePrompt   = "period_prompt"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
	outcomePanic    = "panic"
)

// Gateway sends replies and reads profiles.
type Gateway interface {
	Reply(ctx context.Context, replyToken string, msgs ...messaging.Message) error
	Profile(ctx context.Context, userID string) (models.Profile, error)
}

// Users reads and registers users.
type Users interface {
	Get(ctx context.Context, id string) (models.User, error)
	UpsertProfile(ctx context.Context, p models.Profile) error
}

// LinkSaver stores shared links.
type LinkSaver interface {
	Save(ctx context.Context, req maplinks.Request) (models.Link, error)
}

// Periods applies period postbacks.
type Periods interface {
	SetStart(ctx context.Context, userID string, d period.Date) (period.Period, error)
	SetEnd(ctx context.Context, userID string, d period.Date) (period.Period, error)
}

// Groups synchronizes group membership.
type Groups interface {
	Join(ctx context.Context, groupID, userID string) (bool, error)
	Touch(ctx context.Context, groupID, userID string) (models.Group, error)
	EnsureGroup(ctx context.Context, groupID string) error
}

// GroupLinkCounter counts the links stored for a group.
type GroupLinkCounter func(ctx context.Context, groupID string) (int64, error)

// RouterConfig holds the router's collaborators and settings.
type RouterConfig struct {
	Gateway    Gateway
	Users      Users
	Links      LinkSaver
	Periods    Periods
	Groups     Groups
	CountLinks GroupLinkCounter

	Gate          period.Gate
	PeriodCommand string

	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Router handles single events. It keeps no state between events.
type Router struct {
	gateway    Gateway
	users      Users
	links      LinkSaver
	periods    Periods
	groups     Groups
	countLinks GroupLinkCounter
	gate       period.Gate
	command    string
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// NewRouter builds a Router from cfg.
func NewRouter(cfg RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cmd := strings.TrimSpace(cfg.PeriodCommand)
	if cmd == "" {
		cmd = DefaultPeriodCommand
	}
	return &Router{
		gateway:    cfg.Gateway,
		users:      cfg.Users,
		links:      cfg.Links,
		periods:    cfg.Periods,
		groups:     cfg.Groups,
		countLinks: cfg.CountLinks,
		gate:       cfg.Gate,
		command:    cmd,
		metrics:    cfg.Metrics,
		log:        log,
	}
}

// Route handles one event and returns its outcome label. A panic inside a
// handler is recovered and logged so later events in the batch still run.
func (r *Router) Route(ctx context.Context, ev Event) string {
	return r.route(ctx, r.log, ev)
}

func (r *Router) route(ctx context.Context, log *zap.Logger, ev Event) (outcome string) {
	log = log.With(
		zap.String("event_type", ev.Type),
		zap.String("webhook_event_id", ev.WebhookEventID),
		zap.String("user_id", ev.Source.UserID),
		zap.String("group_id", ev.Source.GroupID))

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("event handler panicked", zap.Any("panic", rec), zap.Stack("stack"))
			outcome = outcomePanic
		}
		r.metrics.WebhookEvent(ev.Type, outcome)
	}()

	switch ev.Type {
	case "follow":
		return r.onFollow(ctx, log, ev)
	case "message":
		if ev.Message == nil || ev.Message.Type != "text" {
			return outcomeIgnored
		}
		return r.onText(ctx, log, ev)
	case "postback":
		return r.onPostback(ctx, log, ev)
	case "memberJoined":
		return r.onMemberJoined(ctx, log, ev)
	case "join":
		return r.onJoin(ctx, log, ev)
	default:
		log.Debug("event ignored")
		return outcomeIgnored
	}
}

func (r *Router) reply(ctx context.Context, log *zap.Logger, token string, msgs ...messaging.Message) {
	if token == "" {
		return
	}
	if err := r.gateway.Reply(ctx, token, msgs...); err != nil {
		log.Warn("reply failed", zap.Error(err))
	}
}

func (r *Router) onFollow(ctx context.Context, log *zap.Logger, ev Event) string {
	userID := ev.Source.UserID
	if userID == "" {
		return outcomeInvalid
	}

	p, err := r.gateway.Profile(ctx, userID)
	if err != nil {
		log.Warn("profile unavailable, registering without it", zap.Error(err))
		p = models.Profile{UserID: userID}
	}
	if p.UserID == "" {
		p.UserID = userID
	}
	uctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	err = r.users.UpsertProfile(uctx, p)
	cancel()
	if err != nil {
		log.Error("register user failed", zap.Error(err))
		return outcomeError
	}

	log.Info("user registered", zap.String("display_name", p.DisplayName))
	r.reply(ctx, log, ev.ReplyToken, messaging.Text(followText(r.command)))
	return outcomeHandled
}

func (r *Router) onText(ctx context.Context, log *zap.Logger, ev Event) string {
	userID := ev.Source.UserID
	if userID == "" {
		return outcomeInvalid
	}
	text := strings.TrimSpace(ev.Message.Text)

	var group *models.Group
	if gid := ev.Source.GroupID; gid != "" {
		g, err := r.groups.Touch(ctx, gid, userID)
		if err != nil {
			log.Warn("group sync failed", zap.Error(err))
			g = models.Group{ID: gid}
		}
		group = &g
	}

	if text == r.command {
		r.reply(ctx, log, ev.ReplyToken, period.Prompt())
		return outcomePrompt
	}

	uctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	user, err := r.users.Get(uctx, userID)
	cancel()
	if errors.Is(err, userstore.ErrNotFound) {
		log.Debug("message from unregistered user")
		return outcomeSilent
	}
	if err != nil {
		log.Error("load user failed", zap.Error(err))
		return outcomeError
	}

	p, err := period.FromStored(userID, user.Period)
	if err != nil {
		log.Warn("stored period unreadable, treating as unset", zap.Error(err))
		p = period.Period{UserID: userID}
	}
	if !r.gate.Allows(p, ev.Time()) {
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(period.RejectedText))
		return outcomeRejected
	}

	url, ok := mapsurl.FindMapURL(text)
	if !ok {
		return outcomeIgnored
	}

	link, err := r.links.Save(ctx, maplinks.Request{
		URL:       url,
		Timestamp: ev.Time(),
		Sender: models.Profile{
			UserID:      user.ID,
			DisplayName: user.DisplayName,
			PictureURL:  user.PictureURL,
		},
		Group: group,
	})
	if err != nil {
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(saveErrorText(err)))
		return string(failures.KindOf(err))
	}
	r.reply(ctx, log, ev.ReplyToken, messaging.Text(savedText(link)))
	return outcomeHandled
}

func (r *Router) onPostback(ctx context.Context, log *zap.Logger, ev Event) string {
	userID := ev.Source.UserID
	if userID == "" || ev.Postback == nil {
		return outcomeInvalid
	}

	var (
		p   period.Period
		err error
	)
	switch pb := DecodePostback(*ev.Postback).(type) {
	case SetStartDate:
		p, err = r.periods.SetStart(ctx, userID, pb.Date)
	case SetEndDate:
		p, err = r.periods.SetEnd(ctx, userID, pb.Date)
	case OpenKeyboard:
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(openKeyboardText))
		return outcomeHandled
	case UnknownPostback:
		log.Info("unknown postback", zap.String("data", pb.Data))
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(unknownPostbackText))
		return outcomeIgnored
	}

	switch {
	case errors.Is(err, failures.ErrValidation):
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(period.InvalidText))
		return string(failures.KindValidation)
	case err != nil:
		log.Error("period update failed", zap.Error(err))
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(postbackFailedText))
		return outcomeError
	}
	r.reply(ctx, log, ev.ReplyToken, messaging.Text(period.StatusText(p)))
	return outcomeHandled
}

func (r *Router) onMemberJoined(ctx context.Context, log *zap.Logger, ev Event) string {
	groupID := ev.Source.GroupID
	if groupID == "" || ev.Joined == nil {
		return outcomeInvalid
	}

	added, failed := 0, 0
	for _, m := range ev.Joined.Members {
		if m.Type != "user" || m.UserID == "" {
			continue
		}
		ok, err := r.groups.Join(ctx, groupID, m.UserID)
		if err != nil {
			failed++
			log.Error("group join failed", zap.String("member_id", m.UserID), zap.Error(err))
			continue
		}
		if ok {
			added++
		}
	}

	if added > 0 {
		var saved int64
		if r.countLinks != nil {
			cctx, cancel := context.WithTimeout(ctx, timeouts.Short())
			n, err := r.countLinks(cctx, groupID)
			cancel()
			if err != nil {
				log.Warn("count group links failed", zap.Error(err))
			}
			saved = n
		}
		r.reply(ctx, log, ev.ReplyToken, messaging.Text(memberWelcomeText(saved)))
	}
	if failed > 0 {
		return outcomeError
	}
	return outcomeHandled
}

func (r *Router) onJoin(ctx context.Context, log *zap.Logger, ev Event) string {
	groupID := ev.Source.GroupID
	if groupID == "" {
		return outcomeIgnored
	}
	if err := r.groups.EnsureGroup(ctx, groupID); err != nil {
		log.Error("create group failed", zap.Error(err))
		return outcomeError
	}
	r.reply(ctx, log, ev.ReplyToken, messaging.Text(botJoinedText()))
	return outcomeHandled
}
