package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/w93163red/LivCap-Translate/internal/db"
)

type fakeStore struct {
	sessions []db.Session
	captions map[string][]db.Caption
	err      error

	gotLimit int
	gotQuery string
}

func (f *fakeStore) RecentSessions(limit int) ([]db.Session, error) {
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.sessions[:min(limit, len(f.sessions))], nil
}

func (f *fakeStore) LatestSession() (*db.Session, error) {
	if len(f.sessions) == 0 {
		return nil, f.err
	}
	return &f.sessions[0], nil
}

func (f *fakeStore) GetSession(id string) (*db.Session, error) {
	for i := range f.sessions {
		if f.sessions[i].ID == id {
			return &f.sessions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CaptionsForSession(sessionID string) ([]db.Caption, error) {
	return f.captions[sessionID], nil
}

func (f *fakeStore) SearchCaptions(query string, limit int) ([]db.Caption, error) {
	f.gotQuery, f.gotLimit = query, limit
	var out []db.Caption
	for _, cs := range f.captions {
		for _, c := range cs {
			if strings.Contains(c.Text, query) || strings.Contains(c.Translation, query) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func newFakeStore() *fakeStore {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	return &fakeStore{
		sessions: []db.Session{
			{ID: "sess-2", Locale: "ja-JP", Status: db.StatusActive, StartedAt: start.Add(time.Hour)},
			{ID: "sess-1", Locale: "en-US", Status: db.StatusCompleted, StartedAt: start, EndedAt: &end},
		},
		captions: map[string][]db.Caption{
			"sess-1": {
				{ID: "c-1", SessionID: "sess-1", SequenceNumber: 1, Text: "Welcome to the keynote.", Translation: "基調講演へようこそ。", CreatedAt: start},
				{ID: "c-2", SessionID: "sess-1", SequenceNumber: 2, Text: "Let's begin.", CreatedAt: start},
			},
			"sess-2": {
				{ID: "c-3", SessionID: "sess-2", SequenceNumber: 1, Text: "こんにちは。", Translation: "Hello.", CreatedAt: start},
			},
		},
	}
}

func newTools(store Store) *Tools {
	return NewTools(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content = %T", res.Content[0])
	}
	return tc.Text
}

func TestListSessions(t *testing.T) {
	store := newFakeStore()
	res, err := newTools(store).ListSessions(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("error result: %s", resultText(t, res))
	}
	var out struct {
		Sessions []sessionJSON `json:"sessions"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Sessions) != 2 || out.Sessions[0].ID != "sess-2" || out.Sessions[1].EndedAt == nil {
		t.Fatalf("sessions = %+v", out.Sessions)
	}
	if store.gotLimit != defaultSessionLimit {
		t.Errorf("limit = %d", store.gotLimit)
	}

	if _, err := newTools(store).ListSessions(context.Background(), call(map[string]any{"limit": float64(100000)})); err != nil {
		t.Fatal(err)
	}
	if store.gotLimit != maxLimit {
		t.Errorf("limit = %d, want clamp to %d", store.gotLimit, maxLimit)
	}
}

func TestListSessionsStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("disk I/O error")}
	res, err := newTools(store).ListSessions(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "disk I/O error") {
		t.Fatalf("result = %+v", res)
	}
}

func TestGetCaptions(t *testing.T) {
	tools := newTools(newFakeStore())

	tests := []struct {
		name     string
		args     map[string]any
		session  string
		captions int
	}{
		{"latest by default", nil, "sess-2", 1},
		{"explicit session", map[string]any{"session_id": "sess-1"}, "sess-1", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tools.GetCaptions(context.Background(), call(tt.args))
			if err != nil {
				t.Fatal(err)
			}
			var out struct {
				Session  sessionJSON   `json:"session"`
				Captions []captionJSON `json:"captions"`
			}
			if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
				t.Fatal(err)
			}
			if out.Session.ID != tt.session || len(out.Captions) != tt.captions {
				t.Fatalf("out = %+v", out)
			}
		})
	}

	res, err := tools.GetCaptions(context.Background(), call(map[string]any{"session_id": "nope"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("unknown session should be an error result")
	}

	res, err = newTools(&fakeStore{}).GetCaptions(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "no sessions") {
		t.Errorf("empty store result = %s", resultText(t, res))
	}
}

func TestSearchCaptions(t *testing.T) {
	store := newFakeStore()
	tools := newTools(store)

	res, err := tools.SearchCaptions(context.Background(), call(map[string]any{"query": "Hello", "limit": float64(5)}))
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		Query   string        `json:"query"`
		Matches []captionJSON `json:"matches"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Matches) != 1 || out.Matches[0].ID != "c-3" {
		t.Fatalf("matches = %+v", out.Matches)
	}
	if store.gotQuery != "Hello" || store.gotLimit != 5 {
		t.Errorf("SearchCaptions(%q, %d)", store.gotQuery, store.gotLimit)
	}

	res, err = tools.SearchCaptions(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing query should be an error result")
	}
}

func TestServerListsTools(t *testing.T) {
	s := New(newFakeStore(), "test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"list_sessions", "get_captions", "search_captions"} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("tools/list missing %s: %s", name, data)
		}
	}
}
