package config_test

import (
	"net/http"
	"os"
	"testing"
	"time"

	"gateway/config"
	"gateway/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	file, err := os.CreateTemp(t.TempDir(), "config_test_*.yaml")
	require.NoError(t, err)
	defer file.Close()

	_, err = file.Write([]byte(content))
	require.NoError(t, err)
	return file.Name()
}

// TestLoadConfiguration verifies that a valid configuration file is correctly loaded.
func TestLoadConfiguration(t *testing.T) {
	content := `
listen: ":9090"
logging:
  enabled: true
  verbose: false
  level: "debug"
metrics:
  enabled: true
session:
  keys: ["some secrets"]
  rolling: true
targets:
  - type: proxy
    match:
      path: /api
    target: "http://backend:8000/test{path}"
    options:
      ws: true
      max_request_size: 2048
      response_headers_fallback:
        x-fallback: fallback-header
  - type: file
    match:
      index_fallback: ""
    target: /srv/www/index.html
    options:
      root: /
      max_age: 1h
  - type: static
    match:
      path: /
      headers:
        user-agent: {regex: Googlebot}
    target: /srv/googlebot
    session: false
  - type: static
    match: /
    target: /srv/www
`

	loaded, err := config.LoadConfiguration(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, ":9090", loaded.Listen)
	assert.Equal(t, "/metrics", loaded.Metrics.Path)
	assert.True(t, loaded.Session.Enabled)
	assert.True(t, loaded.Session.Rolling)
	assert.Equal(t, config.DefaultSessionCookieName, loaded.Session.CookieName)
	assert.Equal(t, config.StoreMemory, loaded.Session.Store)
	assert.Equal(t, config.DefaultSessionMaxAge, loaded.Session.MaxAge)
	require.Len(t, loaded.Targets, 4)

	proxy := loaded.Targets[0]
	require.NotNil(t, proxy.Proxy)
	assert.True(t, proxy.Proxy.WebSocket)
	assert.Equal(t, int64(2048), proxy.Proxy.EffectiveMaxRequestSize())
	assert.Equal(t, "fallback-header", proxy.Proxy.ResponseHeadersFallback["x-fallback"])
	assert.Same(t, &loaded.Transport, proxy.Proxy.Transport)

	res, ok := match.Match(match.Context{Path: "/api/users", Headers: http.Header{}}, proxy.Pattern)
	require.True(t, ok)
	assert.Equal(t, "/api", res.Base)
	_, ok = match.Match(match.Context{Path: "/apidocs", Headers: http.Header{}}, proxy.Pattern)
	assert.False(t, ok)

	file := loaded.Targets[1]
	require.NotNil(t, file.File)
	assert.Equal(t, time.Hour, file.File.MaxAge)
	assert.Equal(t, config.DotfilesIgnore, file.File.Dotfiles)
	_, ok = match.Match(match.Context{Path: "/login", Headers: http.Header{}}, file.Pattern)
	assert.True(t, ok)
	_, ok = match.Match(match.Context{Path: "/foo.txt", Headers: http.Header{}}, file.Pattern)
	assert.False(t, ok)

	bot := loaded.Targets[2]
	require.NotNil(t, bot.Session)
	assert.False(t, *bot.Session)
	_, ok = match.Match(match.Context{Path: "/foo.txt", Headers: http.Header{"User-Agent": {"Googlebot/2.1"}}}, bot.Pattern)
	assert.True(t, ok)
	_, ok = match.Match(match.Context{Path: "/foo.txt", Headers: http.Header{}}, bot.Pattern)
	assert.False(t, ok)

	static := loaded.Targets[3]
	require.NotNil(t, static.Static)
	assert.Equal(t, "index.html", static.Static.Index)
}

// TestLoadConfigurationWithDefaults verifies that default values are set when not specified.
func TestLoadConfigurationWithDefaults(t *testing.T) {
	content := `
targets:
  - type: proxy
    target: "http://backend:8000"
`

	loaded, err := config.LoadConfiguration(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultListen, loaded.Listen)
	assert.Equal(t, "info", loaded.Logging.Level)
	assert.False(t, loaded.Session.Enabled)
	assert.Equal(t, config.DefaultMaxRequestSize, loaded.Targets[0].Proxy.EffectiveMaxRequestSize())
	assert.False(t, loaded.Targets[0].Proxy.WebSocket)

	res, ok := match.Match(match.Context{Path: "/anything", Headers: http.Header{}}, loaded.Targets[0].Pattern)
	require.True(t, ok)
	assert.Equal(t, "", res.Base)
}

func TestMatchForms(t *testing.T) {
	content := `
targets:
  - type: proxy
    target: "http://a"
    match: [/a, {regex: "^(/b[0-9]+)"}]
  - type: proxy
    target: "http://b"
    match: {regex: "^/c"}
  - type: proxy
    target: "http://c"
    match:
      headers:
        x-flag: true
        x-absent: false
        x-env: prod
`
	loaded, err := config.Parse([]byte(content))
	require.NoError(t, err)

	ctx := func(path string, h http.Header) match.Context {
		if h == nil {
			h = http.Header{}
		}
		return match.Context{Path: path, Headers: h}
	}

	res, ok := match.Match(ctx("/b42/x", nil), loaded.Targets[0].Pattern)
	require.True(t, ok)
	assert.Equal(t, "/b42", res.Base)

	res, ok = match.Match(ctx("/cats", nil), loaded.Targets[1].Pattern)
	require.True(t, ok)
	assert.Equal(t, "/c", res.Base)

	headers := http.Header{"X-Flag": {"1"}, "X-Env": {"dev", "prod"}}
	_, ok = match.Match(ctx("/", headers), loaded.Targets[2].Pattern)
	assert.True(t, ok)
	headers.Set("X-Absent", "here")
	_, ok = match.Match(ctx("/", headers), loaded.Targets[2].Pattern)
	assert.False(t, ok)
}

func TestUnlimitedRequestSize(t *testing.T) {
	loaded, err := config.Parse([]byte(`
targets:
  - type: proxy
    target: "http://a"
    options:
      max_request_size: 0
`))
	require.NoError(t, err)
	assert.Equal(t, int64(0), loaded.Targets[0].Proxy.EffectiveMaxRequestSize())
}

func TestSessionBoolean(t *testing.T) {
	loaded, err := config.Parse([]byte(`
session: false
targets:
  - type: static
    target: /srv
`))
	require.NoError(t, err)
	assert.False(t, loaded.Session.Enabled)
}

// TestValidation covers the configuration errors that must fail fast.
func TestValidation(t *testing.T) {
	testCases := []struct {
		name     string
		content  string
		errorMsg string
	}{
		{
			name: "target session without gateway session",
			content: `
targets:
  - type: proxy
    target: "http://a"
    session: true
`,
			errorMsg: "not in gateway",
		},
		{
			name: "unknown target type",
			content: `
targets:
  - type: lambda
    target: "arn"
`,
			errorMsg: "unknown target type",
		},
		{
			name: "invalid regex",
			content: `
targets:
  - type: proxy
    target: "http://a"
    match: {regex: "("}
`,
			errorMsg: "error compiling regex",
		},
		{
			name: "negative request size",
			content: `
targets:
  - type: proxy
    target: "http://a"
    options:
      max_request_size: -1
`,
			errorMsg: "max_request_size cannot be negative",
		},
		{
			name: "session without keys",
			content: `
session: true
targets:
  - type: proxy
    target: "http://a"
`,
			errorMsg: "session.keys is required",
		},
		{
			name: "redis store without redis",
			content: `
session: {keys: [k], store: redis}
targets:
  - type: proxy
    target: "http://a"
`,
			errorMsg: "requires redis.enabled",
		},
		{
			name: "negative timeout",
			content: `
transport:
  http:
    dial_timeout: -1s
targets:
  - type: proxy
    target: "http://a"
`,
			errorMsg: "transport timeouts must be non-negative",
		},
		{
			name:     "no targets",
			content:  `listen: ":8080"`,
			errorMsg: "at least one target is required",
		},
		{
			name: "bad dotfiles policy",
			content: `
targets:
  - type: static
    target: /srv
    options:
      dotfiles: maybe
`,
			errorMsg: "unknown dotfiles policy",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tc.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorMsg)
		})
	}
}

func TestPreparedPatternIsKept(t *testing.T) {
	cfg := &config.GatewayConfig{
		Targets: []config.TargetConfig{{
			Type:   config.TypeProxy,
			Target: "http://a",
			Pattern: match.Func(func(ctx match.Context) (match.Result, bool) {
				return match.Result{Base: "", Remainder: ctx.Path}, ctx.Path == "/only"
			}),
		}},
	}
	require.NoError(t, config.Prepare(cfg))

	_, ok := match.Match(match.Context{Path: "/only"}, cfg.Targets[0].Pattern)
	assert.True(t, ok)
	_, ok = match.Match(match.Context{Path: "/other"}, cfg.Targets[0].Pattern)
	assert.False(t, ok)
}

func TestTargetNames(t *testing.T) {
	loaded, err := config.Parse([]byte(`
targets:
  - type: proxy
    name: api
    target: "http://a"
  - type: static
    target: /srv
`))
	require.NoError(t, err)
	assert.Equal(t, "api", loaded.Targets[0].Name)
	assert.Equal(t, "static-1", loaded.Targets[1].Name)
}
