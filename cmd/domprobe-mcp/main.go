// Command domprobe-mcp exposes the domprobe HTTP API as MCP tools over stdio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/domprobe/models"
)

func main() {
	apiURL := os.Getenv("DOMPROBE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("DOMPROBE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "DOMPROBE_API_KEY is required")
		os.Exit(1)
	}

	if err := server.ServeStdio(newServer(newAPIClient(apiURL, apiKey))); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func newServer(api *apiClient) *server.MCPServer {
	s := server.NewMCPServer(
		"domprobe",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	listTool := mcp.NewTool("list_dom_elements",
		mcp.WithDescription("Load a web page in a headless browser, wait until it is idle, and list every DOM element in document order with its tag, id, class and a short text preview."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to inspect"),
		),
		mcp.WithBoolean("tag_summary",
			mcp.Description("Append a table of the most common tags"),
		),
		mcp.WithBoolean("inject",
			mcp.Description("Apply the vertical-only CSS override before listing (default true)"),
		),
		mcp.WithString("wait_strategy",
			mcp.Description("How to detect that the page finished loading: 'event' (default) or 'poll'"),
			mcp.Enum(models.WaitEvent, models.WaitPoll),
		),
	)
	s.AddTool(listTool, handleListElements(api))

	compareTool := mcp.NewTool("compare_static_dom",
		mcp.WithDescription("Compare the DOM structure a browser renders for a page with the structure of its raw HTML. Returns a SimHash distance from 0 (identical) to 64."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the page to compare"),
		),
	)
	s.AddTool(compareTool, handleCompareStatic(api))

	return s
}

// scriptBuiltDistance is the fingerprint distance above which a page is
// reported as built by script.
const scriptBuiltDistance = 10

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 150 * time.Second},
	}
}

// elements calls POST /api/v1/elements. API-level failures come back as a
// response with Success false, transport failures as an error.
func (a *apiClient) elements(ctx context.Context, req models.ElementsRequest) (*models.ElementsResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/elements", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var out models.ElementsResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}
	return &out, nil
}

func failure(resp *models.ElementsResponse) *mcp.CallToolResult {
	msg := "request failed"
	if resp.Error != nil {
		msg = fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)
	}
	return mcp.NewToolResultError(msg)
}

func handleListElements(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		inject := request.GetBool("inject", true)

		resp, err := api.elements(ctx, models.ElementsRequest{
			URL:          url,
			TagSummary:   request.GetBool("tag_summary", false),
			Inject:       &inject,
			WaitStrategy: request.GetString("wait_strategy", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return failure(resp), nil
		}

		var b strings.Builder
		if resp.Unexpected != "" {
			fmt.Fprintf(&b, "The DOM script returned an unexpected value: %s\n", resp.Unexpected)
		}
		if resp.InjectError != "" {
			fmt.Fprintf(&b, "Note: CSS injection failed: %s\n", resp.InjectError)
		}
		b.WriteString(resp.Report)
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleCompareStatic(api *apiClient) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		resp, err := api.elements(ctx, models.ElementsRequest{URL: url, CompareStatic: true})
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if !resp.Success {
			return failure(resp), nil
		}
		if resp.StaticDistance == nil {
			return mcp.NewToolResultError("static fetch failed; only the rendered DOM is available"), nil
		}

		d := *resp.StaticDistance
		verdict := "mostly static: the rendered DOM matches the raw HTML"
		if d > scriptBuiltDistance {
			verdict = "script-built: the rendered DOM differs substantially from the raw HTML"
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"URL: %s\nRendered elements: %d\nFingerprint: %s\nDistance: %d/64\n%s",
			resp.URL, resp.Total, resp.Fingerprint, d, verdict,
		)), nil
	}
}
