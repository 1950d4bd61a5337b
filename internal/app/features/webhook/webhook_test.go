package webhook

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

	"github.com/dalemusser/mapstash/internal/app/features/maplinks"
	"github.com/dalemusser/mapstash/internal/app/features/groupsync"
	"github.com/dalemusser/mapstash/internal/app/features/period"
	groupstore "github.com/dalemusser/mapstash/internal/app/store/groups"
	userstore "github.com/dalemusser/mapstash/internal/app/store/users"
	"github.com/dalemusser/mapstash/internal/app/system/batch"
	"github.com/dalemusser/mapstash/internal/app/system/mapsurl"
	"github.com/dalemusser/mapstash/internal/app/system/messaging"
	"github.com/dalemusser/mapstash/internal/app/system/places"
	"github.com/dalemusser/mapstash/internal/domain/failures"
	"github.com/dalemusser/mapstash/internal/domain/models"
	"github.com/dalemusser/mapstash/internal/testutil"
	"github.com/go-resty/resty/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testSecret = "channel-secret"

func mustParse(t *testing.T, s string) period.Date {
	t.Helper()
	d, err := period.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return d
}

// ---- fakes ----

type sentReply struct {
	Token    string
	Messages []messaging.Message
}

func (s sentReply) text() string {
	if len(s.Messages) == 0 {
		return ""
	}
	if tm, ok := s.Messages[0].(messaging.TextMessage); ok {
		return tm.Text
	}
	return ""
}

type fakeGateway struct {
	mu      sync.Mutex
	replies []sentReply
}

func (g *fakeGateway) Reply(_ context.Context, token string, msgs ...messaging.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, sentReply{Token: token, Messages: msgs})
	return nil
}

func (g *fakeGateway) Profile(_ context.Context, id string) (models.Profile, error) {
	return models.Profile{UserID: id, DisplayName: "profile " + id}, nil
}

type memUsers struct {
	users       map[string]models.User
	undeadlined int
}

func (m *memUsers) noteDeadline(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		m.undeadlined++
	}
}

func (m *memUsers) Get(ctx context.Context, id string) (models.User, error) {
	m.noteDeadline(ctx)
	u, ok := m.users[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) Exists(ctx context.Context, id string) (bool, error) {
	m.noteDeadline(ctx)
	_, ok := m.users[id]
	return ok, nil
}

func (m *memUsers) UpsertProfile(ctx context.Context, p models.Profile) error {
	m.noteDeadline(ctx)
	u := m.users[p.UserID]
	u.ID, u.DisplayName, u.PictureURL = p.UserID, p.DisplayName, p.PictureURL
	m.users[p.UserID] = u
	return nil
}

type memLinks struct {
	mu    sync.Mutex
	saved []models.Link
}

func (m *memLinks) Create(_ context.Context, l models.Link) (models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = primitive.NewObjectID()
	m.saved = append(m.saved, l)
	return l, nil
}

type fakePeriods struct {
	start, end *period.Date
}

func (f *fakePeriods) SetStart(_ context.Context, id string, d period.Date) (period.Period, error) {
	if f.end != nil && d.After(*f.end) {
		return period.Period{}, failures.ErrValidation
	}
	f.start = &d
	return period.Period{UserID: id, Start: f.start, End: f.end}, nil
}

func (f *fakePeriods) SetEnd(_ context.Context, id string, d period.Date) (period.Period, error) {
	if f.start != nil && f.start.After(d) {
		return period.Period{}, failures.ErrValidation
	}
	f.end = &d
	return period.Period{UserID: id, Start: f.start, End: f.end}, nil
}

type fakeGroups struct {
	joined  map[string]bool
	touched int
	panicOn string
}

func (f *fakeGroups) Join(_ context.Context, g, u string) (bool, error) {
	key := g + "/" + u
	if f.joined[key] {
		return false, nil
	}
	f.joined[key] = true
	return true, nil
}

func (f *fakeGroups) Touch(ctx context.Context, g, u string) (models.Group, error) {
	if u == f.panicOn {
		panic("touch exploded")
	}
	f.touched++
	_, _ = f.Join(ctx, g, u)
	return models.Group{ID: g, GroupName: "Trip", Members: []string{u, "U-other"}}, nil
}

func (f *fakeGroups) EnsureGroup(context.Context, string) error { return nil }

// memGroupStore backs a real groupsync.Syncer.
type memGroupStore struct {
	groups map[string]models.Group
}

func (m *memGroupStore) Get(_ context.Context, id string) (models.Group, error) {
	g, ok := m.groups[id]
	if !ok {
		return models.Group{}, groupstore.ErrNotFound
	}
	return g, nil
}

func (m *memGroupStore) AddMember(_ context.Context, groupID, userID string, info groupstore.Info) (bool, error) {
	g, ok := m.groups[groupID]
	if !ok {
		g = models.Group{ID: groupID, GroupName: info.Name}
	}
	if g.HasMember(userID) {
		return false, nil
	}
	g.Members = append(g.Members, userID)
	m.groups[groupID] = g
	return true, nil
}

func (m *memGroupStore) Ensure(_ context.Context, groupID string, info groupstore.Info) (bool, error) {
	if _, ok := m.groups[groupID]; ok {
		return false, nil
	}
	m.groups[groupID] = models.Group{ID: groupID, GroupName: info.Name, Members: []string{}}
	return true, nil
}

type groupPlatform struct{ fakeGateway }

func (g *groupPlatform) GroupMemberProfile(_ context.Context, _, id string) (models.Profile, error) {
	return models.Profile{UserID: id, DisplayName: "member " + id}, nil
}

func (g *groupPlatform) GroupSummary(_ context.Context, id string) (messaging.GroupSummary, error) {
	return messaging.GroupSummary{GroupID: id, GroupName: "Trip"}, nil
}

type noBackfill struct{}

func (noBackfill) AddMemberToGroupLinks(context.Context, *batch.Writer, string, string) (batch.Result, error) {
	return batch.Result{}, nil
}

type memEventLog struct {
	seen map[string]bool
	err  error
}

func (m *memEventLog) MarkProcessed(_ context.Context, id, _ string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	if m.seen[id] {
		return false, nil
	}
	m.seen[id] = true
	return true, nil
}

// ---- harness ----

type placesUpstream struct {
	mu     sync.Mutex
	find   string
	inputs []string
}

func (p *placesUpstream) findInputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.inputs...)
}

func (p *placesUpstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/findplacefromtext/json", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.inputs = append(p.inputs, r.URL.Query().Get("input"))
		p.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(p.find))
	})
	mux.HandleFunc("/details/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"OK","result":{"name":"Ramen Shop","formatted_address":"Shibuya, Tokyo","geometry":{"location":{"lat":35.6595,"lng":139.7005}}}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

const foundOne = `{"status":"OK","candidates":[{"place_id":"ChIJramen"}]}`

type harness struct {
	gateway *fakeGateway
	users   *memUsers
	links   *memLinks
	periods *fakePeriods
	groups  *fakeGroups
	events  *memEventLog
	places  *placesUpstream
	counted int64
	handler *Handler
}

// harnessSetup overrides collaborators before the handler is built.
type harnessSetup struct {
	client *resty.Client
	groups func(h *harness) Groups
}

func newHarness(t *testing.T, opts ...func(*harnessSetup)) *harness {
	t.Helper()
	setup := harnessSetup{client: resty.New()}
	for _, o := range opts {
		o(&setup)
	}
	h := &harness{
		gateway: &fakeGateway{},
		users:   &memUsers{users: map[string]models.User{}},
		links:   &memLinks{},
		periods: &fakePeriods{},
		groups:  &fakeGroups{joined: map[string]bool{}},
		events:  &memEventLog{seen: map[string]bool{}},
		places:  &placesUpstream{find: foundOne},
		counted: 3,
	}
	srv := h.places.server(t)

	norm, err := mapsurl.New(setup.client, mapsurl.Options{}, zap.NewNop())
	if err != nil {
		t.Fatalf("mapsurl.New: %v", err)
	}
	resolver := places.New(resty.New(), places.Config{BaseURL: srv.URL, APIKey: "k"}, nil, nil, zap.NewNop())
	saver := maplinks.New(norm, resolver, h.links, nil, zap.NewNop())

	var groups Groups = h.groups
	if setup.groups != nil {
		groups = setup.groups(h)
	}
	router := NewRouter(RouterConfig{
		Gateway: h.gateway,
		Users:   h.users,
		Links:   saver,
		Periods: h.periods,
		Groups:  groups,
		CountLinks: func(context.Context, string) (int64, error) {
			return h.counted, nil
		},
		Gate:   period.Gate{Loc: time.UTC, Policy: period.PolicyAllow},
		Logger: zap.NewNop(),
	})
	h.handler = NewHandler(router, h.events, testSecret, true, nil, zap.NewNop())
	return h
}

func (h *harness) registerUser(id string) {
	h.users.users[id] = models.User{ID: id, DisplayName: "Alice"}
}

func (h *harness) post(t *testing.T, events ...map[string]any) *testutil.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{"destination": "Ubot", "events": events})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := testutil.NewRecorder()
	h.handler.ServeWebhook(rec, testutil.NewWebhookRequest(testSecret, body))
	return rec
}

func (h *harness) replyTexts() []string {
	var out []string
	for _, r := range h.gateway.replies {
		out = append(out, r.text())
	}
	return out
}

var eventTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func textEvent(id, userID, text string) map[string]any {
	return map[string]any{
		"type":           "message",
		"webhookEventId": id,
		"timestamp":      eventTime.UnixMilli(),
		"replyToken":     "rt-" + id,
		"source":         map[string]any{"type": "user", "userId": userID},
		"message":        map[string]any{"id": "m-" + id, "type": "text", "text": text},
	}
}

func groupTextEvent(id, groupID, userID, text string) map[string]any {
	ev := textEvent(id, userID, text)
	ev["source"] = map[string]any{"type": "group", "groupId": groupID, "userId": userID}
	return ev
}

func postbackEvent(id, userID, data, date string) map[string]any {
	pb := map[string]any{"data": data}
	if date != "" {
		pb["params"] = map[string]any{"date": date}
	}
	return map[string]any{
		"type":           "postback",
		"webhookEventId": id,
		"timestamp":      eventTime.UnixMilli(),
		"replyToken":     "rt-" + id,
		"source":         map[string]any{"type": "user", "userId": userID},
		"postback":       pb,
	}
}

// ---- tests ----

func TestWebhook_SavesCoordinateLink(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")

	rec := h.post(t, textEvent("e1", "U1", "lunch here https://www.google.com/maps/@35.6595,139.7005,17z"))
	rec.AssertStatus(t, http.StatusOK)

	if len(h.links.saved) != 1 {
		t.Fatalf("links saved = %d, want 1", len(h.links.saved))
	}
	l := h.links.saved[0]
	if l.PlaceID != "ChIJramen" || l.Name != "Ramen Shop" || l.DisplayName != "Alice" {
		t.Errorf("link = %+v", l)
	}
	if l.Lat == nil || *l.Lat != 35.6595 {
		t.Errorf("Lat = %v", l.Lat)
	}
	if !l.Timestamp.Equal(eventTime) {
		t.Errorf("Timestamp = %v, want %v", l.Timestamp, eventTime)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "Saved Ramen Shop") {
		t.Errorf("replies = %q", texts)
	}
	if h.gateway.replies[0].Token != "rt-e1" {
		t.Errorf("reply token = %q", h.gateway.replies[0].Token)
	}
}

func TestWebhook_ZeroCandidates(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	h.places.find = `{"status":"ZERO_RESULTS","candidates":[]}`

	h.post(t, textEvent("e1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if len(h.links.saved) != 0 {
		t.Errorf("links saved = %d, want 0", len(h.links.saved))
	}
	if texts := h.replyTexts(); len(texts) != 1 || texts[0] != placeNotFoundText {
		t.Errorf("replies = %q", texts)
	}
}

func TestWebhook_UpstreamErrorMessageReachesUser(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	h.places.find = `{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`

	h.post(t, textEvent("e1", "U1", "https://www.google.com/maps/place/Tokyo+Tower"))

	texts := h.replyTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "The provided API key is invalid.") {
		t.Errorf("replies = %q", texts)
	}
}

func TestWebhook_PlainTextIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")

	rec := h.post(t, textEvent("e1", "U1", "hello"))
	rec.AssertStatus(t, http.StatusOK)

	if len(h.links.saved) != 0 || len(h.gateway.replies) != 0 {
		t.Errorf("links = %d, replies = %d, want none", len(h.links.saved), len(h.gateway.replies))
	}
}

func TestWebhook_UnknownUserIsSilent(t *testing.T) {
	h := newHarness(t)

	h.post(t, textEvent("e1", "U-stranger", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if len(h.links.saved) != 0 || len(h.gateway.replies) != 0 {
		t.Errorf("links = %d, replies = %d, want none", len(h.links.saved), len(h.gateway.replies))
	}
}

func TestWebhook_PeriodCommandRepliesWithPrompt(t *testing.T) {
	h := newHarness(t)

	h.post(t, textEvent("e1", "U-stranger", DefaultPeriodCommand))

	if len(h.gateway.replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(h.gateway.replies))
	}
	tm, ok := h.gateway.replies[0].Messages[0].(messaging.TemplateMessage)
	if !ok {
		t.Fatalf("reply is %T, want template", h.gateway.replies[0].Messages[0])
	}
	if len(tm.Template.Actions) != 2 {
		t.Errorf("actions = %+v", tm.Template.Actions)
	}
}

func TestWebhook_OutsidePeriodIsRejected(t *testing.T) {
	h := newHarness(t)
	end := "2024-04-30"
	h.users.users["U1"] = models.User{ID: "U1", Period: models.StoredPeriod{EndDate: &end}}

	h.post(t, textEvent("e1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if len(h.links.saved) != 0 {
		t.Errorf("links saved = %d, want 0", len(h.links.saved))
	}
	if texts := h.replyTexts(); len(texts) != 1 || texts[0] != period.RejectedText {
		t.Errorf("replies = %q", texts)
	}
}

func TestWebhook_GroupLinkCarriesSnapshot(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")

	h.post(t, groupTextEvent("e1", "G1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if h.groups.touched != 1 {
		t.Errorf("touched = %d, want 1", h.groups.touched)
	}
	if len(h.links.saved) != 1 {
		t.Fatalf("links saved = %d", len(h.links.saved))
	}
	l := h.links.saved[0]
	if l.GroupID != "G1" || l.GroupName != "Trip" || len(l.Members) != 2 {
		t.Errorf("link = %+v", l)
	}
}

func TestWebhook_SignatureMismatch(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")

	body, _ := json.Marshal(map[string]any{"events": []any{textEvent("e1", "U1", "https://www.google.com/maps/@1.5,2.5,17z")}})
	rec := testutil.NewRecorder()
	h.handler.ServeWebhook(rec, testutil.NewWebhookRequest("wrong-secret", body))
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = testutil.NewRecorder()
	h.handler.ServeWebhook(rec, testutil.NewWebhookRequest("", body))
	rec.AssertStatus(t, http.StatusUnauthorized)

	if len(h.links.saved) != 0 || len(h.gateway.replies) != 0 {
		t.Error("rejected request must not be processed")
	}
}

func TestWebhook_MalformedBody(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"events": [`)
	rec := testutil.NewRecorder()
	h.handler.ServeWebhook(rec, testutil.NewWebhookRequest(testSecret, body))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"events":[],"destination":"` + strings.Repeat("x", maxBodyBytes) + `"}`)
	rec := testutil.NewRecorder()
	h.handler.ServeWebhook(rec, testutil.NewWebhookRequest(testSecret, body))
	rec.AssertStatus(t, http.StatusRequestEntityTooLarge)
}

func TestWebhook_RedeliveryIsDropped(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	ev := textEvent("e1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z")

	h.post(t, ev)
	ev["deliveryContext"] = map[string]any{"isRedelivery": true}
	rec := h.post(t, ev)
	rec.AssertStatus(t, http.StatusOK)

	if len(h.links.saved) != 1 {
		t.Errorf("links saved = %d, want 1", len(h.links.saved))
	}
	if len(h.gateway.replies) != 1 {
		t.Errorf("replies = %d, want 1", len(h.gateway.replies))
	}
}

func TestWebhook_DedupeFailureStillProcesses(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	h.events.err = errors.New("mongo down")

	h.post(t, textEvent("e1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if len(h.links.saved) != 1 {
		t.Errorf("links saved = %d, want 1", len(h.links.saved))
	}
}

func TestWebhook_InvalidEventSkipped(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	broken := map[string]any{"type": "message", "webhookEventId": "bad", "source": map[string]any{"type": "user", "userId": "U1"}}

	rec := h.post(t, broken, textEvent("e2", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))
	rec.AssertStatus(t, http.StatusOK)

	if len(h.links.saved) != 1 {
		t.Errorf("links saved = %d, want 1", len(h.links.saved))
	}
}

func TestWebhook_PanicIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")
	h.groups.panicOn = "U-boom"

	rec := h.post(t,
		groupTextEvent("e1", "G1", "U-boom", "hello"),
		textEvent("e2", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"),
	)
	rec.AssertStatus(t, http.StatusOK)

	if len(h.links.saved) != 1 {
		t.Errorf("links saved = %d, want 1", len(h.links.saved))
	}
}

func TestWebhook_PeriodPostbacks(t *testing.T) {
	h := newHarness(t)

	h.post(t,
		postbackEvent("p1", "U1", "action=setStartDate", "2024-01-10"),
		postbackEvent("p2", "U1", "action=setEndDate", "2024-01-05"),
		postbackEvent("p3", "U1", "action=setEndDate", "2024-01-31"),
		postbackEvent("p4", "U1", "action=somethingElse", ""),
		postbackEvent("p5", "U1", "action=openKeyboard", ""),
	)

	want := []string{
		"Start date set to 2024-01-10. Please choose an end date too.",
		period.InvalidText,
		"Saving period set: 2024-01-10 to 2024-01-31.",
		unknownPostbackText,
		openKeyboardText,
	}
	got := h.replyTexts()
	if len(got) != len(want) {
		t.Fatalf("replies = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWebhook_FollowRegistersUser(t *testing.T) {
	h := newHarness(t)

	h.post(t, map[string]any{
		"type":           "follow",
		"webhookEventId": "f1",
		"timestamp":      eventTime.UnixMilli(),
		"replyToken":     "rt-f1",
		"source":         map[string]any{"type": "user", "userId": "U9"},
	})

	u, ok := h.users.users["U9"]
	if !ok || u.DisplayName != "profile U9" {
		t.Errorf("user = %+v, registered %v", u, ok)
	}
	if texts := h.replyTexts(); len(texts) != 1 || !strings.Contains(texts[0], DefaultPeriodCommand) {
		t.Errorf("replies = %q", texts)
	}
}

func TestWebhook_MemberJoined(t *testing.T) {
	h := newHarness(t)
	joined := map[string]any{
		"type":           "memberJoined",
		"webhookEventId": "j1",
		"timestamp":      eventTime.UnixMilli(),
		"replyToken":     "rt-j1",
		"source":         map[string]any{"type": "group", "groupId": "G1"},
		"joined": map[string]any{"members": []any{
			map[string]any{"type": "user", "userId": "U1"},
			map[string]any{"type": "user", "userId": "U2"},
		}},
	}

	h.post(t, joined)
	if !h.groups.joined["G1/U1"] || !h.groups.joined["G1/U2"] {
		t.Errorf("joined = %v", h.groups.joined)
	}
	if texts := h.replyTexts(); len(texts) != 1 || !strings.Contains(texts[0], "3 saved places") {
		t.Errorf("replies = %q", texts)
	}

	// Same members again under a new event id: nobody new, no welcome.
	joined["webhookEventId"] = "j2"
	h.post(t, joined)
	if n := len(h.gateway.replies); n != 1 {
		t.Errorf("replies = %d, want 1", n)
	}
}

func TestWebhook_GroupMessageFromUnregisteredUserIsSilent(t *testing.T) {
	store := &memGroupStore{groups: map[string]models.Group{}}
	h := newHarness(t, func(s *harnessSetup) {
		s.groups = func(h *harness) Groups {
			return groupsync.New(store, h.users, noBackfill{}, &groupPlatform{}, nil, nil, zap.NewNop())
		}
	})

	rec := h.post(t, groupTextEvent("e1", "G1", "U-new", "https://www.google.com/maps/@35.6595,139.7005,17z"))
	rec.AssertStatus(t, http.StatusOK)

	if _, ok := h.users.users["U-new"]; ok {
		t.Error("a group message must not register its sender")
	}
	if len(h.links.saved) != 0 {
		t.Errorf("links saved = %d, want 0", len(h.links.saved))
	}
	if texts := h.replyTexts(); len(texts) != 0 {
		t.Errorf("replies = %q, want none", texts)
	}
	g, ok := store.groups["G1"]
	if !ok {
		t.Fatal("group should still be recorded")
	}
	if g.HasMember("U-new") {
		t.Errorf("members = %v, want sender excluded", g.Members)
	}
}

func TestWebhook_GroupMessageFromRegisteredUserJoins(t *testing.T) {
	store := &memGroupStore{groups: map[string]models.Group{
		"G1": {ID: "G1", GroupName: "Trip", Members: []string{"U-other"}},
	}}
	h := newHarness(t, func(s *harnessSetup) {
		s.groups = func(h *harness) Groups {
			return groupsync.New(store, h.users, noBackfill{}, &groupPlatform{}, nil, nil, zap.NewNop())
		}
	})
	h.registerUser("U1")

	h.post(t, groupTextEvent("e1", "G1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"))

	if !store.groups["G1"].HasMember("U1") {
		t.Errorf("members = %v, want U1 joined", store.groups["G1"].Members)
	}
	if len(h.links.saved) != 1 {
		t.Fatalf("links saved = %d, want 1", len(h.links.saved))
	}
	if l := h.links.saved[0]; l.GroupID != "G1" || len(l.Members) != 2 {
		t.Errorf("link group = %q, members = %v", l.GroupID, l.Members)
	}
}

// shortenerTransport answers the shortened link with a redirect to target
// and every other request with an empty 200.
type shortenerTransport struct {
	short  string
	target string
}

func (s shortenerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	resp := &http.Response{
		Status:     "200 OK",
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{},
		Body:       http.NoBody,
		Request:    r,
	}
	if r.URL.String() == s.short {
		resp.Status, resp.StatusCode = "302 Found", http.StatusFound
		resp.Header.Set("Location", s.target)
	}
	return resp, nil
}

func TestWebhook_ExpandsShortenedLink(t *testing.T) {
	rt := shortenerTransport{
		short:  "https://maps.app.goo.gl/abc123",
		target: "https://www.google.com/maps/@35.6762,139.6503,15z",
	}
	h := newHarness(t, func(s *harnessSetup) {
		s.client = resty.New().SetTransport(rt)
	})
	h.registerUser("U1")

	h.post(t, textEvent("e1", "U1", "look https://maps.app.goo.gl/abc123"))

	if got := h.places.findInputs(); len(got) != 1 || got[0] != "35.6762,139.6503" {
		t.Errorf("place search inputs = %q, want the expanded coordinates", got)
	}
	if len(h.links.saved) != 1 {
		t.Fatalf("links saved = %d, want 1", len(h.links.saved))
	}
	if l := h.links.saved[0]; l.PlaceID != "ChIJramen" || l.Link != rt.short {
		t.Errorf("link = %+v", l)
	}
	texts := h.replyTexts()
	if len(texts) != 1 || !strings.HasPrefix(texts[0], "Saved Ramen Shop") {
		t.Errorf("replies = %q", texts)
	}
}

func TestWebhook_StoreCallsCarryDeadline(t *testing.T) {
	h := newHarness(t)
	h.registerUser("U1")

	h.post(t,
		map[string]any{
			"type":           "follow",
			"webhookEventId": "e0",
			"timestamp":      eventTime.UnixMilli(),
			"replyToken":     "rt-e0",
			"source":         map[string]any{"type": "user", "userId": "U2"},
		},
		textEvent("e1", "U1", "https://www.google.com/maps/@35.6595,139.7005,17z"),
	)

	if len(h.links.saved) != 1 {
		t.Fatalf("links saved = %d, want 1", len(h.links.saved))
	}
	if h.users.undeadlined != 0 {
		t.Errorf("user store calls without deadline = %d", h.users.undeadlined)
	}
}
