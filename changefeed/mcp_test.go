package changefeed

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/breakingchange/recorder"
	"github.com/hazyhaar/breakingchange/registry"
)

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "changefeed-test", Version: "v0.0.1"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if out != nil && !res.IsError {
		text := res.Content[0].(*mcp.TextContent).Text
		if err := json.Unmarshal([]byte(text), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", name, err, text)
		}
	}
	return res
}

func TestMCP_Tools(t *testing.T) {
	// WHAT: The MCP surface lists sources, checks one, then reads back its
	// event, diff and fetch history.
	pages, srv := newSite(t)
	pages.set("/terms", termsBefore)
	src := source(srv, "acme", "terms", "/terms")
	svc := newTestService(t, testConfig(t), WithSources([]registry.Source{src}))
	session := mcpSession(t, svc)

	var sources struct {
		Sources []registry.Source `json:"sources"`
	}
	callTool(t, session, "changefeed_list_sources", map[string]any{}, &sources)
	if len(sources.Sources) != 1 || sources.Sources[0].Slug != "acme" {
		t.Fatalf("sources: %+v", sources)
	}

	var outcome Outcome
	res := callTool(t, session, "changefeed_check_source", map[string]any{"slug": "acme", "type": "terms"}, &outcome)
	if res.IsError || outcome.Status != StatusBaseline || outcome.Event == nil {
		t.Fatalf("check: %+v", outcome)
	}

	var list struct {
		Events []*recorder.ChangeEvent `json:"events"`
	}
	callTool(t, session, "changefeed_list_events", map[string]any{"vendor": "Acme"}, &list)
	if len(list.Events) != 1 || list.Events[0].ID != outcome.Event.ID {
		t.Fatalf("events: %+v", list.Events)
	}

	var diff struct {
		Diff string `json:"diff"`
	}
	callTool(t, session, "changefeed_get_diff", map[string]any{"diff_id": outcome.Event.DiffID}, &diff)
	if diff.Diff == "" {
		t.Error("diff should not be empty")
	}

	var hist struct {
		Entries []*RunEntry `json:"entries"`
	}
	callTool(t, session, "changefeed_fetch_history", map[string]any{"slug": "acme", "type": "terms"}, &hist)
	if len(hist.Entries) != 1 || hist.Entries[0].Status != "baseline" {
		t.Errorf("history: %+v", hist.Entries)
	}
}

func TestMCP_Errors(t *testing.T) {
	svc := newTestService(t, testConfig(t))
	session := mcpSession(t, svc)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"unknown source", "changefeed_check_source", map[string]any{"slug": "nope", "type": "terms"}},
		{"missing diff", "changefeed_get_diff", map[string]any{"diff_id": "acme-terms-123-abc"}},
		{"traversal diff id", "changefeed_get_diff", map[string]any{"diff_id": "../events"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := callTool(t, session, tt.tool, tt.args, nil); !res.IsError {
				t.Error("want tool error")
			}
		})
	}

	var list struct {
		Events []*recorder.ChangeEvent `json:"events"`
	}
	if res := callTool(t, session, "changefeed_list_events", map[string]any{}, &list); res.IsError || list.Events == nil {
		t.Errorf("empty log should list no events, got %+v", res.Content)
	}
}
