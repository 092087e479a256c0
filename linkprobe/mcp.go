package linkprobe

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/urlgate/kit"
	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
)

// RegisterMCP registers linkprobe tools on an MCP server.
func (v *Validator) RegisterMCP(srv *mcp.Server) {
	v.registerValidateTool(srv)
	v.registerFingerprintTool(srv)
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

type urlRequest struct {
	URL string `json:"url"`
}

func decodeURL(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var rr urlRequest
	if err := json.Unmarshal(req.Params.Arguments, &rr); err != nil {
		return nil, err
	}
	rr.URL = strings.TrimSpace(rr.URL)
	if rr.URL == "" {
		return nil, errors.New("url is required")
	}
	return &kit.MCPDecodeResult{Request: &rr}, nil
}

// --- validate ---

func (v *Validator) registerValidateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "linkprobe_validate",
		Description: "Check whether a URL points to a real, reachable resource. Runs stealth, enhanced, behavioral and DNS strategies in order and returns the first conclusive result.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "Absolute http(s) URL to validate"},
		}, []string{"url"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		rr := req.(*urlRequest)
		if err := v.Admit(ctx, rr.URL); err != nil {
			return nil, err
		}
		return v.Validate(ctx, rr.URL), nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(v.logger, "linkprobe_validate")(endpoint), decodeURL)
}

// --- fingerprint ---

type fingerprintResponse struct {
	Profile string            `json:"profile"`
	Family  string            `json:"family"`
	Headers map[string]string `json:"headers"`
}

func (v *Validator) registerFingerprintTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "linkprobe_fingerprint",
		Description: "Show the browser profile and navigation headers linkprobe would present for a URL. Sends no request.",
		InputSchema: inputSchema(map[string]any{
			"url": map[string]any{"type": "string", "description": "URL whose profile to compute"},
		}, []string{"url"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		rr := req.(*urlRequest)
		p := fingerprint.Select(rr.URL)
		return &fingerprintResponse{
			Profile: p.Name,
			Family:  p.Family.String(),
			Headers: fingerprint.BuildHeaders(p, fingerprint.KindNavigate).Map(),
		}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decodeURL)
}
