package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/domprobe/models"
)

func fakeAPI(t *testing.T, handle func(req models.ElementsRequest) (int, models.ElementsResponse)) *apiClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/elements", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))

		var req models.ElementsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		status, resp := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return newAPIClient(srv.URL+"/", "k")
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListElements(t *testing.T) {
	var got models.ElementsRequest
	api := fakeAPI(t, func(req models.ElementsRequest) (int, models.ElementsResponse) {
		got = req
		return http.StatusOK, models.ElementsResponse{Success: true, Total: 1, Report: "REPORT"}
	})

	res, err := handleListElements(api)(context.Background(), callTool(map[string]any{
		"url":         "https://example.com",
		"tag_summary": true,
	}))
	require.NoError(t, err)

	assert.False(t, res.IsError)
	assert.Equal(t, "REPORT", resultText(t, res))
	assert.Equal(t, "https://example.com", got.URL)
	assert.True(t, got.TagSummary)
	require.NotNil(t, got.Inject)
	assert.True(t, *got.Inject)
}

func TestListElements_NotesInjectFailure(t *testing.T) {
	api := fakeAPI(t, func(req models.ElementsRequest) (int, models.ElementsResponse) {
		return http.StatusOK, models.ElementsResponse{Success: true, Report: "R", InjectError: "csp"}
	})

	res, err := handleListElements(api)(context.Background(), callTool(map[string]any{"url": "https://example.com"}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "CSS injection failed: csp")
}

func TestListElements_APIError(t *testing.T) {
	api := fakeAPI(t, func(req models.ElementsRequest) (int, models.ElementsResponse) {
		return http.StatusGatewayTimeout, models.ElementsResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeLoadTimeout, Message: "page did not become idle"},
		}
	})

	res, err := handleListElements(api)(context.Background(), callTool(map[string]any{"url": "https://example.com"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "[LOAD_TIMEOUT]")
}

func TestListElements_MissingURL(t *testing.T) {
	res, err := handleListElements(newAPIClient("http://127.0.0.1:0", "k"))(context.Background(), callTool(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCompareStatic(t *testing.T) {
	api := fakeAPI(t, func(req models.ElementsRequest) (int, models.ElementsResponse) {
		assert.True(t, req.CompareStatic)
		d := 23
		return http.StatusOK, models.ElementsResponse{Success: true, URL: req.URL, Total: 40, StaticDistance: &d}
	})

	res, err := handleCompareStatic(api)(context.Background(), callTool(map[string]any{"url": "https://example.com"}))
	require.NoError(t, err)

	text := resultText(t, res)
	assert.Contains(t, text, "Distance: 23/64")
	assert.Contains(t, text, "script-built")
}

func TestCompareStatic_NoDistance(t *testing.T) {
	api := fakeAPI(t, func(req models.ElementsRequest) (int, models.ElementsResponse) {
		return http.StatusOK, models.ElementsResponse{Success: true}
	})

	res, err := handleCompareStatic(api)(context.Background(), callTool(map[string]any{"url": "https://example.com"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewServer(t *testing.T) {
	assert.NotNil(t, newServer(newAPIClient("http://127.0.0.1:8080", "k")))
}
