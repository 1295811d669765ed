package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/browser/browsertest"
	"github.com/use-agent/domprobe/cache"
	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
	"github.com/use-agent/domprobe/pipeline"
	"github.com/use-agent/domprobe/snapshot"
	"github.com/ysmood/gson"
)

const testKey = "test-key"

var oneDivLines = []string{"HTML|||hello", "HEAD|||", "BODY|||hello", "DIV|x|y|hello"}

type staticFetcher struct {
	html string
	err  error
}

func (f staticFetcher) Fetch(ctx context.Context, url string) (*snapshot.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &snapshot.Document{HTML: f.html, StatusCode: http.StatusOK, FinalURL: url}, nil
}

func pageReturning(lines ...string) func() browser.Page {
	return func() browser.Page {
		return &browsertest.Page{
			Eval: func(source string) (gson.JSON, error) {
				if source == pipeline.EnumerateElementsScript {
					return browsertest.Strings(lines...), nil
				}
				return gson.New(nil), nil
			},
		}
	}
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Server.Mode = gin.TestMode
	cfg.Auth.APIKeys = []string{testKey}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000
	cfg.Pipeline.PollInterval = time.Millisecond
	cfg.Pipeline.LoadTimeout = time.Second
	return cfg
}

func newTestRouter(t *testing.T, driver *browsertest.Driver, fetcher staticFetcher, cfg *config.Config) (*gin.Engine, *cache.Cache) {
	t.Helper()
	cc := cache.New(10)
	t.Cleanup(cc.Close)
	return NewRouter(driver, fetcher, cfg, cc, time.Now()), cc
}

func postElements(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/elements", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.ElementsResponse {
	t.Helper()
	var resp models.ElementsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestElements_Success(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: pageReturning(oneDivLines...), MaxPages: 4}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	w := postElements(r, `{"url":"https://example.com"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, models.ElementRecord{Tag: "DIV", ID: "x", Class: "y", Text: "hello"}, resp.Elements[3])
	assert.Contains(t, resp.Report, "Total elements: 4")
	assert.Len(t, resp.Fingerprint, 16)
	assert.Equal(t, "fake", resp.Driver)
	assert.Nil(t, resp.StaticDistance)
	assert.Empty(t, resp.CacheStatus)
	assert.Equal(t, 1, driver.Released())
}

func TestElements_CompareStatic(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: pageReturning(oneDivLines...)}
	fetcher := staticFetcher{html: `<div id="x" class="y">hello</div>`}
	r, _ := newTestRouter(t, driver, fetcher, testConfig())

	w := postElements(r, `{"url":"https://example.com","compare_static":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.StaticDistance)
	assert.Equal(t, 0, *resp.StaticDistance)
}

func TestElements_CompareStaticIgnoresInjectedStyle(t *testing.T) {
	injected := "STYLE|||" + pipeline.VerticalOnlyCSS[:pipeline.TextPreviewLimit]
	driver := &browsertest.Driver{NewPageFunc: pageReturning("HTML|||hello", "HEAD|||", injected, "BODY|||hello", "DIV|x|y|hello")}
	fetcher := staticFetcher{html: `<div id="x" class="y">hello</div>`}
	r, _ := newTestRouter(t, driver, fetcher, testConfig())

	w := postElements(r, `{"url":"https://example.com","compare_static":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, 5, resp.Total)
	require.NotNil(t, resp.StaticDistance)
	assert.Equal(t, 0, *resp.StaticDistance)
}

func TestElements_CacheSeparatesStealth(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: pageReturning(oneDivLines...)}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	plain := decode(t, postElements(r, `{"url":"https://example.com","max_age":60000}`))
	stealthy := decode(t, postElements(r, `{"url":"https://example.com","max_age":60000,"stealth":true}`))

	assert.Equal(t, "miss", plain.CacheStatus)
	assert.Equal(t, "miss", stealthy.CacheStatus)
	require.Len(t, driver.Options(), 2)
	assert.True(t, driver.Options()[1].Stealth)
}

func TestElements_CompareStaticFailureIsBestEffort(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: pageReturning(oneDivLines...)}
	r, _ := newTestRouter(t, driver, staticFetcher{err: errors.New("refused")}, testConfig())

	w := postElements(r, `{"url":"https://example.com","compare_static":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w).StaticDistance)
}

func TestElements_Cache(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: pageReturning(oneDivLines...)}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	body := `{"url":"https://example.com","max_age":60000}`
	first := decode(t, postElements(r, body))
	second := decode(t, postElements(r, body))

	assert.Equal(t, "miss", first.CacheStatus)
	assert.Equal(t, "hit", second.CacheStatus)
	assert.Equal(t, first.Elements, second.Elements)
	assert.Len(t, driver.Options(), 1)
}

func TestElements_NoInjectAndStealth(t *testing.T) {
	var page *browsertest.Page
	driver := &browsertest.Driver{NewPageFunc: func() browser.Page {
		page = pageReturning("DIV|||")().(*browsertest.Page)
		return page
	}}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	w := postElements(r, `{"url":"https://example.com","inject":false,"stealth":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{pipeline.EnumerateElementsScript}, page.Executed())
	assert.True(t, driver.Options()[0].Stealth)
}

func TestElements_UnexpectedResult(t *testing.T) {
	driver := &browsertest.Driver{NewPageFunc: func() browser.Page {
		return &browsertest.Page{Eval: func(string) (gson.JSON, error) { return gson.NewFrom(`42`), nil }}
	}}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	w := postElements(r, `{"url":"https://example.com","inject":false}`)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, "42", resp.Unexpected)
	assert.Equal(t, 0, resp.Total)
	assert.NotNil(t, resp.Elements)
}

func TestElements_Errors(t *testing.T) {
	tests := []struct {
		name   string
		driver *browsertest.Driver
		body   string
		status int
		code   string
	}{
		{
			name:   "missing url",
			driver: &browsertest.Driver{},
			body:   `{}`,
			status: http.StatusBadRequest,
			code:   models.ErrCodeInvalidInput,
		},
		{
			name:   "bad wait strategy",
			driver: &browsertest.Driver{},
			body:   `{"url":"https://example.com","wait_strategy":"sleep"}`,
			status: http.StatusBadRequest,
			code:   models.ErrCodeInvalidInput,
		},
		{
			name: "navigation failure",
			driver: &browsertest.Driver{NewPageFunc: func() browser.Page {
				return &browsertest.Page{LoadErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
			}},
			body:   `{"url":"https://example.invalid"}`,
			status: http.StatusBadGateway,
			code:   models.ErrCodeLoadFailed,
		},
		{
			name: "never idle",
			driver: &browsertest.Driver{NewPageFunc: func() browser.Page {
				return &browsertest.Page{LoadingPolls: 1 << 30}
			}},
			body:   `{"url":"https://example.com","wait_strategy":"poll"}`,
			status: http.StatusGatewayTimeout,
			code:   models.ErrCodeLoadTimeout,
		},
		{
			name: "script error",
			driver: &browsertest.Driver{NewPageFunc: func() browser.Page {
				return &browsertest.Page{Eval: func(string) (gson.JSON, error) {
					return gson.New(nil), errors.New("ReferenceError")
				}}
			}},
			body:   `{"url":"https://example.com","inject":false}`,
			status: http.StatusInternalServerError,
			code:   models.ErrCodeExtractFailed,
		},
		{
			name:   "browser unavailable",
			driver: &browsertest.Driver{Err: models.NewProbeError(models.ErrCodeBrowserCrash, "no browser", nil)},
			body:   `{"url":"https://example.com"}`,
			status: http.StatusServiceUnavailable,
			code:   models.ErrCodeBrowserCrash,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Pipeline.LoadTimeout = 30 * time.Millisecond
			r, _ := newTestRouter(t, tt.driver, staticFetcher{}, cfg)

			w := postElements(r, tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestElements_RequiresAPIKey(t *testing.T) {
	r, _ := newTestRouter(t, &browsertest.Driver{}, staticFetcher{}, testConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/elements", strings.NewReader(`{"url":"https://example.com"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ErrCodeUnauthorized, decode(t, w).Error.Code)
}

func TestElements_AuthDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = false
	driver := &browsertest.Driver{NewPageFunc: pageReturning("DIV|||")}
	r, _ := newTestRouter(t, driver, staticFetcher{}, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/elements", strings.NewReader(`{"url":"https://example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealth(t *testing.T) {
	driver := &browsertest.Driver{MaxPages: 4}
	r, _ := newTestRouter(t, driver, staticFetcher{}, testConfig())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "fake", resp.Driver)
	assert.Equal(t, 4, resp.PoolStats.MaxPages)
	assert.NotEmpty(t, resp.Version)
}
