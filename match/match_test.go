package match

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctx(path string, headers http.Header) Context {
	if headers == nil {
		headers = http.Header{}
	}
	return Context{Path: path, Headers: headers}
}

func TestLiteralBoundary(t *testing.T) {
	p := Path(Literal("/app"))

	_, ok := Match(ctx("/app-other", nil), p)
	assert.False(t, ok)

	res, ok := Match(ctx("/app", nil), p)
	require.True(t, ok)
	assert.Equal(t, Result{Base: "/app", Remainder: ""}, res)

	res, ok = Match(ctx("/app/sub", nil), p)
	require.True(t, ok)
	assert.Equal(t, Result{Base: "/app", Remainder: "/sub"}, res)
}

func TestLiteralTrailingSlash(t *testing.T) {
	res, ok := Match(ctx("/static/app.js", nil), Path(Literal("/static/")))
	require.True(t, ok)
	assert.Equal(t, "/static/", res.Base)
	assert.Equal(t, "app.js", res.Remainder)

	res, ok = Match(ctx("/anything", nil), Path(Literal("/")))
	require.True(t, ok)
	assert.Equal(t, "/", res.Base)
}

func TestLiteralSetFirstSuccess(t *testing.T) {
	p := Path(LiteralSet{"/api", "/api/v2", "/web"})

	res, ok := Match(ctx("/api/v2/users", nil), p)
	require.True(t, ok)
	assert.Equal(t, "/api", res.Base)

	res, ok = Match(ctx("/web", nil), p)
	require.True(t, ok)
	assert.Equal(t, "/web", res.Base)

	_, ok = Match(ctx("/webhooks", nil), p)
	assert.False(t, ok)
}

func TestRegexCaptureGroup(t *testing.T) {
	p := Path(MustRegex(`^(/tenant/[^/]+)/`))

	res, ok := Match(ctx("/tenant/acme/dashboard", nil), p)
	require.True(t, ok)
	assert.Equal(t, "/tenant/acme", res.Base)
	assert.Equal(t, "/dashboard", res.Remainder)
}

func TestRegexWholeMatchWithoutGroup(t *testing.T) {
	res, ok := Match(ctx("/docs/intro", nil), Path(MustRegex(`^/docs`)))
	require.True(t, ok)
	assert.Equal(t, "/docs", res.Base)
	assert.Equal(t, "/intro", res.Remainder)
}

func TestRegexNonParticipatingGroupFallsBackToWholeMatch(t *testing.T) {
	res, ok := Match(ctx("/b/x", nil), Path(MustRegex(`^(?:/a(/z)|/b)`)))
	require.True(t, ok)
	assert.Equal(t, "/b", res.Base)
}

func TestRegexNonPrefixCaptureIsMiss(t *testing.T) {
	_, ok := Match(ctx("/x/api/y", nil), Path(MustRegex(`/api`)))
	assert.False(t, ok)
}

func TestAnyOfMixed(t *testing.T) {
	p := Path(AnyOf{Literal("/a"), MustRegex(`^/b\d+`)})

	res, ok := Match(ctx("/b12/c", nil), p)
	require.True(t, ok)
	assert.Equal(t, "/b12", res.Base)

	_, ok = Match(ctx("/c", nil), p)
	assert.False(t, ok)
}

func TestEmptyPatternMatchesEverything(t *testing.T) {
	res, ok := Match(ctx("/whatever", nil), Pattern{})
	require.True(t, ok)
	assert.Equal(t, "", res.Base)
	assert.Equal(t, "/whatever", res.Remainder)

	res, ok = Match(ctx("/whatever", nil), Path(Literal("")))
	require.True(t, ok)
	assert.Equal(t, "", res.Base)
}

func TestHeaderPresence(t *testing.T) {
	required := Pattern{Headers: map[string]HeaderPattern{"x-flag": Present(true)}}
	forbidden := Pattern{Headers: map[string]HeaderPattern{"x-flag": Present(false)}}

	without := ctx("/", nil)
	with := ctx("/", http.Header{"X-Flag": {""}})

	_, ok := Match(without, required)
	assert.False(t, ok)
	_, ok = Match(with, required)
	assert.True(t, ok)

	_, ok = Match(with, forbidden)
	assert.False(t, ok)
	_, ok = Match(without, forbidden)
	assert.True(t, ok)
}

func TestHeaderEqualsAnyValue(t *testing.T) {
	p := Pattern{Headers: map[string]HeaderPattern{"Accept": Equals("text/html")}}

	_, ok := Match(ctx("/", http.Header{"Accept": {"application/json", "text/html"}}), p)
	assert.True(t, ok)

	_, ok = Match(ctx("/", http.Header{"Accept": {"application/json"}}), p)
	assert.False(t, ok)

	_, ok = Match(ctx("/", nil), p)
	assert.False(t, ok)
}

func TestHeaderRegexWithPath(t *testing.T) {
	p := Pattern{
		Path:    Literal("/"),
		Headers: map[string]HeaderPattern{"user-agent": HeaderRegex{regexp.MustCompile(`Googlebot`)}},
	}

	res, ok := Match(ctx("/foo.txt", http.Header{"User-Agent": {"Mozilla/5.0 (compatible; Googlebot/2.1)"}}), p)
	require.True(t, ok)
	assert.Equal(t, "/", res.Base)
	assert.Equal(t, "foo.txt", res.Remainder)

	_, ok = Match(ctx("/foo.txt", http.Header{"User-Agent": {"curl/8"}}), p)
	assert.False(t, ok)
}

func TestPredicateBypassesPathAndHeaders(t *testing.T) {
	p := Pattern{
		Path: Literal("/never"),
		Predicate: func(c Context) (Result, bool) {
			return Result{Base: "/p", Remainder: c.Path[2:]}, true
		},
	}
	res, ok := Match(ctx("/p/q", nil), p)
	require.True(t, ok)
	assert.Equal(t, "/p", res.Base)
}

func TestRoundTripAndIdempotence(t *testing.T) {
	patterns := []Pattern{
		{},
		Path(Literal("/app")),
		Path(LiteralSet{"/x", "/app/"}),
		Path(MustRegex(`^(/app)/`)),
		IndexFileFallback("/app"),
	}
	paths := []string{"/app", "/app/", "/app/a/b", "/x/y", "/"}

	for _, p := range patterns {
		for _, path := range paths {
			c := ctx(path, nil)
			first, ok1 := Match(c, p)
			second, ok2 := Match(c, p)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, first, second)
			if ok1 {
				assert.Equal(t, path, first.Base+first.Remainder)
			}
		}
	}
}

func TestIndexFileFallback(t *testing.T) {
	p := IndexFileFallback("")

	for _, path := range []string{"/", "/login", "/app/workbench"} {
		_, ok := Match(ctx(path, nil), p)
		assert.True(t, ok, path)
	}
	for _, path := range []string{"/foo.txt", "/assets/app.js"} {
		_, ok := Match(ctx(path, nil), p)
		assert.False(t, ok, path)
	}

	prefixed := IndexFileFallback("/app")
	res, ok := Match(ctx("/app/settings", nil), prefixed)
	require.True(t, ok)
	assert.Equal(t, "/app", res.Base)
	_, ok = Match(ctx("/application", nil), prefixed)
	assert.False(t, ok)
}

func TestContextFromRequestFoldsHost(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://example.com/a/b?x=1", nil)
	c := ContextFromRequest(r)
	assert.Equal(t, "/a/b", c.Path)
	assert.Equal(t, "example.com", c.Headers.Get("Host"))
	assert.Empty(t, r.Header.Get("Host"))
}
