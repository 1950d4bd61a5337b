package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type recorded struct {
	Method string
	Path   string
	Auth   string
	Retry  string
	Body   map[string]any
}

type fakeLine struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeLine) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func (f *fakeLine) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	record := func(r *http.Request) {
		var body map[string]any
		if b, _ := io.ReadAll(r.Body); len(b) > 0 {
			_ = json.Unmarshal(b, &body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Auth:   r.Header.Get("Authorization"),
			Retry:  r.Header.Get("X-Line-Retry-Key"),
			Body:   body,
		})
		f.mu.Unlock()
	}
	mux.HandleFunc("/v2/oauth/accessToken", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("client_id") != "1234" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued-token","expires_in":2592000,"token_type":"Bearer"}`))
	})
	mux.HandleFunc("/v2/bot/message/reply", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/v2/bot/message/push", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"The property, 'to', in the request body is invalid"}`))
	})
	mux.HandleFunc("/v2/bot/profile/U1", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"userId":"U1","displayName":"Alice","pictureUrl":"https://p.example/a.png","statusMessage":"hi"}`))
	})
	mux.HandleFunc("/v2/bot/group/G1/summary", func(w http.ResponseWriter, r *http.Request) {
		record(r)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"groupId":"G1","groupName":"Lunch crew","pictureUrl":"https://p.example/g.png"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ReplyWithStaticToken(t *testing.T) {
	fake := &fakeLine{}
	srv := fake.server(t)
	c, err := New(Config{BaseURL: srv.URL, ChannelAccessToken: "static-token"}, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := c.ReplyText(context.Background(), "rt-1", "Saved!"); err != nil {
		t.Fatalf("ReplyText failed: %v", err)
	}

	got := fake.last()
	if got.Auth != "Bearer static-token" {
		t.Errorf("Authorization = %q", got.Auth)
	}
	if got.Body["replyToken"] != "rt-1" {
		t.Errorf("replyToken = %v", got.Body["replyToken"])
	}
	msgs, _ := got.Body["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", got.Body["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["type"] != "text" || first["text"] != "Saved!" {
		t.Errorf("message = %v", first)
	}
}

func TestClient_ClientCredentialsToken(t *testing.T) {
	fake := &fakeLine{}
	srv := fake.server(t)
	c, err := New(Config{BaseURL: srv.URL, ChannelID: "1234", ChannelSecret: "secret"}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	p, err := c.Profile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if p.DisplayName != "Alice" || p.PictureURL != "https://p.example/a.png" {
		t.Errorf("profile = %+v", p)
	}
	if got := fake.last().Auth; got != "Bearer issued-token" {
		t.Errorf("Authorization = %q", got)
	}
}

func TestClient_PushErrorCarriesMessage(t *testing.T) {
	fake := &fakeLine{}
	srv := fake.server(t)
	c, _ := New(Config{BaseURL: srv.URL, ChannelAccessToken: "t"}, nil)

	err := c.PushText(context.Background(), "U1", "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if fake.last().Retry == "" {
		t.Error("expected push to carry a retry key")
	}
}

func TestClient_PushRetriesWithSameKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("X-Line-Retry-Key"))
		attempt := len(keys)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if attempt == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"temporarily unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c, _ := New(Config{BaseURL: srv.URL, ChannelAccessToken: "t"}, nil)

	if err := c.PushText(context.Background(), "U1", "hello"); err != nil {
		t.Fatalf("PushText: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 {
		t.Fatalf("attempts = %d, want 2", len(keys))
	}
	if keys[0] == "" || keys[0] != keys[1] {
		t.Errorf("retry keys = %q, want one key reused", keys)
	}
}

func TestClient_ReplyIsNotRetried(t *testing.T) {
	var (
		mu       sync.Mutex
		attempts int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	c, _ := New(Config{BaseURL: srv.URL, ChannelAccessToken: "t"}, nil)

	if err := c.ReplyText(context.Background(), "rt-1", "hi"); err == nil {
		t.Fatal("expected error")
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestClient_PushClientErrorIsNotRetried(t *testing.T) {
	fake := &fakeLine{}
	srv := fake.server(t)
	c, _ := New(Config{BaseURL: srv.URL, ChannelAccessToken: "t"}, nil)

	_ = c.PushText(context.Background(), "U1", "hello")

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.requests) != 1 {
		t.Errorf("push attempts = %d, want 1", len(fake.requests))
	}
}

func TestClient_GroupSummaryAndNotFound(t *testing.T) {
	fake := &fakeLine{}
	srv := fake.server(t)
	c, _ := New(Config{BaseURL: srv.URL, ChannelAccessToken: "t"}, nil)

	g, err := c.GroupSummary(context.Background(), "G1")
	if err != nil {
		t.Fatalf("GroupSummary failed: %v", err)
	}
	if g.GroupName != "Lunch crew" {
		t.Errorf("GroupName = %q", g.GroupName)
	}

	if _, err := c.GroupMemberProfile(context.Background(), "G1", "U9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClient_MessageLimits(t *testing.T) {
	c, _ := New(Config{BaseURL: "http://127.0.0.1:1", ChannelAccessToken: "t"}, nil)

	if err := c.Reply(context.Background(), "rt"); err == nil {
		t.Error("expected error for zero messages")
	}
	six := []Message{Text("1"), Text("2"), Text("3"), Text("4"), Text("5"), Text("6")}
	if err := c.Reply(context.Background(), "rt", six...); err == nil {
		t.Error("expected error for six messages")
	}
	if err := c.Reply(context.Background(), "", Text("x")); err == nil {
		t.Error("expected error for empty reply token")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Error("expected error without credentials")
	}
}

func TestButtonsTemplateShape(t *testing.T) {
	msg := Buttons("Set period", "Period", "Choose dates",
		DatePicker("Start", "action=setStartDate"),
		DatePicker("End", "action=setEndDate"))

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded struct {
		Type     string `json:"type"`
		AltText  string `json:"altText"`
		Template struct {
			Type    string `json:"type"`
			Actions []struct {
				Type string `json:"type"`
				Data string `json:"data"`
				Mode string `json:"mode"`
			} `json:"actions"`
		} `json:"template"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.Type != "template" || decoded.Template.Type != "buttons" {
		t.Errorf("types = %q/%q", decoded.Type, decoded.Template.Type)
	}
	if len(decoded.Template.Actions) != 2 ||
		decoded.Template.Actions[0].Type != "datetimepicker" ||
		decoded.Template.Actions[0].Mode != "date" ||
		decoded.Template.Actions[1].Data != "action=setEndDate" {
		t.Errorf("actions = %+v", decoded.Template.Actions)
	}
}
