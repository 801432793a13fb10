// Package match decides whether a request belongs to a target and which part
// of its path is consumed by the match.
package match

import (
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
)

// Context is a read-only view of an inbound request or upgrade.
type Context struct {
	Path    string
	Headers http.Header
}

// Result is a successful match. Base is always a prefix of the matched path
// and Remainder is the rest of it.
type Result struct {
	Base      string
	Remainder string
}

// Predicate is a caller-supplied matcher. Its result is used as-is.
type Predicate func(ctx Context) (Result, bool)

// PathPattern matches a request path and reports the consumed base.
type PathPattern interface {
	matchPath(path string) (string, bool)
}

// HeaderPattern matches the values of one request header.
type HeaderPattern interface {
	matchHeader(values []string, present bool) bool
}

// Pattern is the normalized form of every supported match pattern. The zero
// Pattern matches every request with an empty base.
type Pattern struct {
	Path      PathPattern
	Headers   map[string]HeaderPattern
	Predicate Predicate
}

// IsZero reports whether p declares nothing.
func (p Pattern) IsZero() bool {
	return p.Path == nil && len(p.Headers) == 0 && p.Predicate == nil
}

// Path returns a pattern that only checks the request path.
func Path(pp PathPattern) Pattern {
	return Pattern{Path: pp}
}

// Func returns a pattern evaluated by fn alone.
func Func(fn Predicate) Pattern {
	return Pattern{Predicate: fn}
}

// Literal matches paths starting with the text on a clean segment boundary:
// "/app" matches "/app" and "/app/x" but not "/app-x".
type Literal string

func (l Literal) matchPath(path string) (string, bool) {
	s := string(l)
	if !strings.HasPrefix(path, s) {
		return "", false
	}
	if len(path) == len(s) || strings.HasSuffix(s, "/") || path[len(s)] == '/' {
		return s, true
	}
	return "", false
}

// LiteralSet tries each literal in order.
type LiteralSet []string

func (ls LiteralSet) matchPath(path string) (string, bool) {
	for _, s := range ls {
		if base, ok := Literal(s).matchPath(path); ok {
			return base, true
		}
	}
	return "", false
}

// Regex matches with a regular expression. The first capturing group, or the
// whole match when the group did not participate, becomes the base; a base
// that is not a prefix of the path is a miss.
type Regex struct {
	*regexp.Regexp
}

// MustRegex compiles expr and panics on error.
func MustRegex(expr string) Regex {
	return Regex{regexp.MustCompile(expr)}
}

func (r Regex) matchPath(path string) (string, bool) {
	if r.Regexp == nil {
		return "", false
	}
	loc := r.FindStringSubmatchIndex(path)
	if loc == nil {
		return "", false
	}
	start, end := loc[0], loc[1]
	if len(loc) >= 4 && loc[2] >= 0 {
		start, end = loc[2], loc[3]
	}
	base := path[start:end]
	if !strings.HasPrefix(path, base) {
		return "", false
	}
	return base, true
}

// AnyOf tries a mixed list of path patterns in order.
type AnyOf []PathPattern

func (a AnyOf) matchPath(path string) (string, bool) {
	for _, pp := range a {
		if pp == nil {
			continue
		}
		if base, ok := pp.matchPath(path); ok {
			return base, true
		}
	}
	return "", false
}

// Present requires the header to be present (true) or absent (false).
type Present bool

func (p Present) matchHeader(_ []string, present bool) bool {
	return bool(p) == present
}

// Equals requires one of the header values to equal the text.
type Equals string

func (e Equals) matchHeader(values []string, present bool) bool {
	if !present {
		return false
	}
	for _, v := range values {
		if v == string(e) {
			return true
		}
	}
	return false
}

// HeaderRegex requires one of the header values to match.
type HeaderRegex struct {
	*regexp.Regexp
}

func (h HeaderRegex) matchHeader(values []string, present bool) bool {
	if !present || h.Regexp == nil {
		return false
	}
	for _, v := range values {
		if h.MatchString(v) {
			return true
		}
	}
	return false
}

// Match evaluates p against ctx.
func Match(ctx Context, p Pattern) (Result, bool) {
	if p.Predicate != nil {
		return p.Predicate(ctx)
	}

	base := ""
	if p.Path != nil {
		b, ok := p.Path.matchPath(ctx.Path)
		if !ok {
			return Result{}, false
		}
		base = b
	}

	for name, hp := range p.Headers {
		if hp == nil {
			continue
		}
		values, present := ctx.Headers[textproto.CanonicalMIMEHeaderKey(name)]
		if !hp.matchHeader(values, present) {
			return Result{}, false
		}
	}

	return Result{Base: base, Remainder: ctx.Path[len(base):]}, true
}

// ContextFromRequest builds a match context from r. The Host header lives on
// r.Host in net/http, so it is folded back into the header view.
func ContextFromRequest(r *http.Request) Context {
	headers := r.Header
	if r.Host != "" && headers.Get("Host") == "" {
		headers = r.Header.Clone()
		if headers == nil {
			headers = http.Header{}
		}
		headers.Set("Host", r.Host)
	}
	return Context{Path: r.URL.Path, Headers: headers}
}

// IndexFileFallback matches prefix itself and any path under it whose
// remainder has no dot, so client-side routes fall back to an index file
// while asset requests do not. prefix must be empty or start and not end
// with "/".
func IndexFileFallback(prefix string) Pattern {
	return Func(func(ctx Context) (Result, bool) {
		if !strings.HasPrefix(ctx.Path, prefix) {
			return Result{}, false
		}
		rest := ctx.Path[len(prefix):]
		if rest != "" && (rest[0] != '/' || strings.Contains(rest, ".")) {
			return Result{}, false
		}
		return Result{Base: prefix, Remainder: rest}, true
	})
}
