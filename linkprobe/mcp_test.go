package linkprobe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/urlgate/linkprobe/internal/fingerprint"
)

var testImpl = &mcp.Implementation{Name: "linkprobe-test", Version: "0.1.0"}

func mcpSession(t *testing.T, v *Validator) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testImpl, nil)
	v.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()

	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func callTool(t *testing.T, session *mcp.ClientSession, name string, args any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("CallTool(%s) tool error: %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	return tc.Text
}

func TestMCP_Validate(t *testing.T) {
	stubs := cascade(Result{Exists: true, Accessible: true, Attempts: 1,
		Metadata: &Metadata{StatusCode: 200, Title: "Example"}})
	session := mcpSession(t, newStubValidator(stubs, nil))

	text := callTool(t, session, "linkprobe_validate", map[string]any{"url": "https://example.com"})

	var res Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Exists || !res.Accessible || res.Method != MethodStealth {
		t.Fatalf("result = %+v", res)
	}
	if res.Metadata == nil || res.Metadata.Title != "Example" {
		t.Fatalf("metadata = %+v", res.Metadata)
	}
}

func TestMCP_Validate_MissingURL(t *testing.T) {
	// WHAT: an empty url is a tool error, not a cascade run.
	stubs := cascade()
	session := mcpSession(t, newStubValidator(stubs, nil))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "linkprobe_validate",
		Arguments: map[string]any{"url": "  "},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if stubs[0].calls.Load() != 0 {
		t.Fatal("cascade ran on invalid input")
	}
}

func TestMCP_Validate_GuardRejects(t *testing.T) {
	// WHAT: the MCP tool applies the same URL guard as the HTTP route.
	stubs := cascade(Result{Exists: true, Accessible: true})
	session := mcpSession(t, newStubValidator(stubs, nil, WithURLGuard(rejectContaining("127.0.0.1"))))

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "linkprobe_validate",
		Arguments: map[string]any{"url": "http://127.0.0.1:8080/admin"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for a guarded URL")
	}
	if stubs[0].calls.Load() != 0 {
		t.Fatal("cascade ran for a guarded URL")
	}
}

func TestMCP_Fingerprint(t *testing.T) {
	session := mcpSession(t, newStubValidator(cascade(), nil))

	const target = "https://github.com/golang/go"
	text := callTool(t, session, "linkprobe_fingerprint", map[string]any{"url": target})

	var resp fingerprintResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := fingerprint.Select(target)
	if resp.Profile != want.Name || resp.Family != want.Family.String() {
		t.Fatalf("profile = %s/%s, want %s/%s", resp.Profile, resp.Family, want.Name, want.Family)
	}
	if resp.Headers["User-Agent"] != want.UserAgent {
		t.Fatalf("user agent = %q", resp.Headers["User-Agent"])
	}
	if resp.Headers["Sec-Fetch-Mode"] != "navigate" {
		t.Fatalf("sec-fetch-mode = %q", resp.Headers["Sec-Fetch-Mode"])
	}
}
