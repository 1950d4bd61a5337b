// Package messaging is the client for the LINE Messaging API: replies,
// pushes, profile and group lookups, and webhook signature checks.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/mapstash/internal/app/system/timeouts"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://api.line.me"

	// maxMessages is the platform's limit per reply or push.
	maxMessages = 5

	// Pushes are retried with the same X-Line-Retry-Key.
	pushRetries      = 2
	pushRetryWait    = 250 * time.Millisecond
	pushRetryMaxWait = 2 * time.Second
)

// ErrNotFound is returned when the platform reports the user or group
// does not exist (or the bot cannot see it).
var ErrNotFound = errors.New("not found on messaging platform")

// APIError is a non-2xx response from the platform.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api error (status %d): %s", e.Status, e.Message)
}

type apiErrorBody struct {
	Message string `json:"message"`
}

// GroupSummary is a group's display data.
type GroupSummary struct {
	GroupID    string `json:"groupId"`
	GroupName  string `json:"groupName"`
	PictureURL string `json:"pictureUrl"`
}

// Config configures a Client. A static ChannelAccessToken wins; otherwise
// ChannelID and ChannelSecret are exchanged for short-lived tokens.
type Config struct {
	BaseURL            string
	ChannelAccessToken string
	ChannelID          string
	ChannelSecret      string
}

// Client talks to the Messaging API. Safe for concurrent use.
type Client struct {
	http *resty.Client
	push *resty.Client
	log  *zap.Logger
}

// New builds a Client whose requests carry a bearer token from cfg.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	var ts oauth2.TokenSource
	switch {
	case cfg.ChannelAccessToken != "":
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.ChannelAccessToken, TokenType: "Bearer"})
	case cfg.ChannelID != "" && cfg.ChannelSecret != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ChannelID,
			ClientSecret: cfg.ChannelSecret,
			TokenURL:     base + "/v2/oauth/accessToken",
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		ts = cc.TokenSource(context.Background())
	default:
		return nil, errors.New("messaging: channel access token or channel id/secret required")
	}

	hc := oauth2.NewClient(context.Background(), ts)
	newRC := func() *resty.Client {
		return resty.NewWithClient(hc).
			SetBaseURL(base).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "mapstash/1.0")
	}
	push := newRC().
		SetRetryCount(pushRetries).
		SetRetryWaitTime(pushRetryWait).
		SetRetryMaxWaitTime(pushRetryMaxWait).
		AddRetryCondition(retryablePush)

	return &Client{http: newRC(), push: push, log: logger.With(zap.String("component", "messaging"))}, nil
}

// retryablePush reports whether a push attempt may be sent again. Only
// transport errors, rate limiting and server errors qualify.
func retryablePush(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Reply answers a webhook event with up to five messages.
func (c *Client) Reply(ctx context.Context, replyToken string, msgs ...Message) error {
	if replyToken == "" {
		return errors.New("reply: empty reply token")
	}
	if err := checkCount(msgs); err != nil {
		return err
	}
	body := map[string]any{"replyToken": replyToken, "messages": msgs}
	return c.post(ctx, "/v2/bot/message/reply", body, nil)
}

// Push sends up to five messages to a user or group. Failed attempts are
// retried under one X-Line-Retry-Key so the platform delivers at most once.
func (c *Client) Push(ctx context.Context, to string, msgs ...Message) error {
	if to == "" {
		return errors.New("push: empty recipient")
	}
	if err := checkCount(msgs); err != nil {
		return err
	}
	body := map[string]any{"to": to, "messages": msgs}
	headers := map[string]string{"X-Line-Retry-Key": uuid.NewString()}
	return c.postWith(ctx, c.push, "/v2/bot/message/push", body, headers)
}

// ReplyText replies with a single text message.
func (c *Client) ReplyText(ctx context.Context, replyToken, text string) error {
	return c.Reply(ctx, replyToken, Text(text))
}

// PushText pushes a single text message.
func (c *Client) PushText(ctx context.Context, to, text string) error {
	return c.Push(ctx, to, Text(text))
}

// Profile fetches a user's profile. Returns ErrNotFound if the user has not
// added the bot.
func (c *Client) Profile(ctx context.Context, userID string) (models.Profile, error) {
	var p models.Profile
	err := c.get(ctx, "/v2/bot/profile/{userId}", map[string]string{"userId": userID}, &p)
	return p, err
}

// GroupMemberProfile fetches a member's profile as seen inside a group.
func (c *Client) GroupMemberProfile(ctx context.Context, groupID, userID string) (models.Profile, error) {
	var p models.Profile
	err := c.get(ctx, "/v2/bot/group/{groupId}/member/{userId}",
		map[string]string{"groupId": groupID, "userId": userID}, &p)
	return p, err
}

// GroupSummary fetches a group's name and picture.
func (c *Client) GroupSummary(ctx context.Context, groupID string) (GroupSummary, error) {
	var g GroupSummary
	err := c.get(ctx, "/v2/bot/group/{groupId}/summary", map[string]string{"groupId": groupID}, &g)
	return g, err
}

func checkCount(msgs []Message) error {
	if len(msgs) == 0 {
		return errors.New("no messages to send")
	}
	if len(msgs) > maxMessages {
		return fmt.Errorf("too many messages: %d (max %d)", len(msgs), maxMessages)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, headers map[string]string) error {
	return c.postWith(ctx, c.http, path, body, headers)
}

func (c *Client) postWith(ctx context.Context, rc *resty.Client, path string, body any, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Outbound())
	defer cancel()

	var apiErr apiErrorBody
	resp, err := rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		SetError(&apiErr).
		Post(path)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	return c.check(resp, path, apiErr)
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Outbound())
	defer cancel()

	var apiErr apiErrorBody
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(out).
		SetError(&apiErr).
		Get(path)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	return c.check(resp, path, apiErr)
}

func (c *Client) check(resp *resty.Response, path string, apiErr apiErrorBody) error {
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	msg := apiErr.Message
	if msg == "" {
		msg = resp.Status()
	}
	c.log.Warn("messaging api error",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.String("message", msg))
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
