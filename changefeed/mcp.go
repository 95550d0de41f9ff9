package changefeed

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/breakingchange/kit"
	"github.com/hazyhaar/breakingchange/recorder"
)

// RegisterMCP registers the change feed tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerListSources(srv)
	s.registerListEvents(srv)
	s.registerGetDiff(srv)
	s.registerCheckSource(srv)
	s.registerHistory(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func (s *Service) register(srv *mcp.Server, tool *mcp.Tool, endpoint kit.Endpoint, decode func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error)) {
	mw := kit.Chain(kit.Logging(s.logger, tool.Name), kit.Recover(s.logger, tool.Name))
	kit.RegisterMCPTool(srv, tool, mw(endpoint), decode)
}

func (s *Service) registerListSources(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "changefeed_list_sources",
		Description: "List the watched vendor pages",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		return map[string]any{"sources": s.Sources()}, nil
	}

	s.register(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerListEvents(srv *mcp.Server) {
	type req struct {
		Vendor   string `json:"vendor"`
		Slug     string `json:"slug"`
		Type     string `json:"type"`
		Severity string `json:"severity"`
		Limit    int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "changefeed_list_events",
		Description: "List recorded change events, newest first",
		InputSchema: inputSchema(map[string]any{
			"vendor":   map[string]any{"type": "string", "description": "Vendor name"},
			"slug":     map[string]any{"type": "string", "description": "Source slug"},
			"type":     map[string]any{"type": "string", "description": "Document type: terms, pricing, changelog..."},
			"severity": map[string]any{"type": "string", "description": "low, medium, high or critical"},
			"limit":    map[string]any{"type": "integer", "description": "Max events (default 50)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.Limit <= 0 {
			p.Limit = 50
		}
		events, err := s.ListEvents(ctx, EventFilter{
			Vendor: p.Vendor, Slug: p.Slug, Type: p.Type, Severity: p.Severity, Limit: p.Limit,
		})
		if err != nil {
			return nil, err
		}
		if events == nil {
			events = []*recorder.ChangeEvent{}
		}
		return map[string]any{"events": events}, nil
	}

	s.register(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerGetDiff(srv *mcp.Server) {
	type req struct {
		DiffID string `json:"diff_id"`
	}

	tool := &mcp.Tool{
		Name:        "changefeed_get_diff",
		Description: "Return the unified diff of a change event",
		InputSchema: inputSchema(map[string]any{
			"diff_id": map[string]any{"type": "string", "description": "diff_id of the event"},
		}, []string{"diff_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if p.DiffID == "" {
			return nil, errors.New("diff_id is required")
		}
		diff, err := s.Diff(ctx, p.DiffID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"diff_id": p.DiffID, "diff": diff}, nil
	}

	s.register(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerCheckSource(srv *mcp.Server) {
	type req struct {
		Slug string `json:"slug"`
		Type string `json:"type"`
	}

	tool := &mcp.Tool{
		Name:        "changefeed_check_source",
		Description: "Fetch one watched page now and record any meaningful change",
		InputSchema: inputSchema(map[string]any{
			"slug": map[string]any{"type": "string", "description": "Source slug"},
			"type": map[string]any{"type": "string", "description": "Document type"},
		}, []string{"slug", "type"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		return s.CheckSource(ctx, p.Slug, p.Type)
	}

	s.register(srv, tool, endpoint, kit.DecodeJSON[req]())
}

func (s *Service) registerHistory(srv *mcp.Server) {
	type req struct {
		Slug  string `json:"slug"`
		Type  string `json:"type"`
		Limit int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "changefeed_fetch_history",
		Description: "Show recent fetch attempts for a watched page",
		InputSchema: inputSchema(map[string]any{
			"slug":  map[string]any{"type": "string"},
			"type":  map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer"},
		}, []string{"slug", "type"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		entries, err := s.History(ctx, p.Slug, p.Type, p.Limit)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*RunEntry{}
		}
		return map[string]any{"entries": entries}, nil
	}

	s.register(srv, tool, endpoint, kit.DecodeJSON[req]())
}
