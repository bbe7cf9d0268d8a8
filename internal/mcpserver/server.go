// Package mcpserver exposes stored captions and translations to MCP clients.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/w93163red/LivCap-Translate/internal/db"
)

const (
	defaultSessionLimit = 20
	defaultSearchLimit  = 50
	maxLimit            = 500
)

// Store is the read side of the caption store. *db.Store implements it.
type Store interface {
	RecentSessions(limit int) ([]db.Session, error)
	LatestSession() (*db.Session, error)
	GetSession(id string) (*db.Session, error)
	CaptionsForSession(sessionID string) ([]db.Caption, error)
	SearchCaptions(query string, limit int) ([]db.Caption, error)
}

// Tools holds the tool handlers over a store.
type Tools struct {
	store Store
	log   *slog.Logger
}

// NewTools returns handlers reading from store.
func NewTools(store Store, logger *slog.Logger) *Tools {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{store: store, log: logger.With("component", "mcpserver")}
}

// New builds an MCP server with the caption tools registered.
func New(store Store, version string, logger *slog.Logger) *server.MCPServer {
	t := NewTools(store, logger)
	s := server.NewMCPServer("livcap", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List recent caption sessions, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of sessions to return (default 20)."),
		),
	), t.ListSessions)

	s.AddTool(mcp.NewTool("get_captions",
		mcp.WithDescription("Get the captions and translations of a session. Defaults to the most recent session."),
		mcp.WithString("session_id",
			mcp.Description("Session id from list_sessions. Omit for the most recent session."),
		),
	), t.GetCaptions)

	s.AddTool(mcp.NewTool("search_captions",
		mcp.WithDescription("Search captions and translations for a phrase across all sessions."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to look for. Matching is case-insensitive for ASCII."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of matches to return (default 50)."),
		),
	), t.SearchCaptions)

	return s
}

type sessionJSON struct {
	ID        string     `json:"id"`
	Locale    string     `json:"locale,omitempty"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
}

type captionJSON struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	SequenceNumber int       `json:"sequenceNumber"`
	Text           string    `json:"text"`
	Translation    string    `json:"translation,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

func toSessionJSON(s db.Session) sessionJSON {
	return sessionJSON{
		ID:        s.ID,
		Locale:    s.Locale,
		Title:     s.Title,
		Status:    s.Status,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
}

func toCaptionsJSON(captions []db.Caption) []captionJSON {
	out := make([]captionJSON, 0, len(captions))
	for _, c := range captions {
		out = append(out, captionJSON{
			ID:             c.ID,
			SessionID:      c.SessionID,
			SequenceNumber: c.SequenceNumber,
			Text:           c.Text,
			Translation:    c.Translation,
			CreatedAt:      c.CreatedAt,
		})
	}
	return out
}

// ListSessions handles list_sessions.
func (t *Tools) ListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := clampLimit(req.GetInt("limit", defaultSessionLimit), defaultSessionLimit)
	sessions, err := t.store.RecentSessions(limit)
	if err != nil {
		t.log.Error("list sessions", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("list sessions: %v", err)), nil
	}
	out := make([]sessionJSON, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionJSON(s))
	}
	return jsonResult(map[string]any{"sessions": out})
}

// GetCaptions handles get_captions.
func (t *Tools) GetCaptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")

	var sess *db.Session
	var err error
	if id == "" {
		sess, err = t.store.LatestSession()
	} else {
		sess, err = t.store.GetSession(id)
	}
	if err != nil {
		t.log.Error("get session", "session_id", id, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("get session: %v", err)), nil
	}
	if sess == nil {
		if id == "" {
			return mcp.NewToolResultError("no sessions recorded yet"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("session %q not found", id)), nil
	}

	captions, err := t.store.CaptionsForSession(sess.ID)
	if err != nil {
		t.log.Error("get captions", "session_id", sess.ID, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("get captions: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"session":  toSessionJSON(*sess),
		"captions": toCaptionsJSON(captions),
	})
}

// SearchCaptions handles search_captions.
func (t *Tools) SearchCaptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}
	limit := clampLimit(req.GetInt("limit", defaultSearchLimit), defaultSearchLimit)

	captions, err := t.store.SearchCaptions(query, limit)
	if err != nil {
		t.log.Error("search captions", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("search captions: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"query":   query,
		"matches": toCaptionsJSON(captions),
	})
}

func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxLimit)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
