package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"gateway/match"

	"gopkg.in/yaml.v3"
)

// TargetConfig describes one backend a request may be routed to. It is
// immutable once the gateway has been built from it.
type TargetConfig struct {
	Name    string      `yaml:"name"`    // Label used in logs and metrics; defaults to "<type>-<index>".
	Type    string      `yaml:"type"`    // "proxy", "file" or "static".
	Match   MatchConfig `yaml:"match"`   // Match pattern; absent matches everything.
	Target  string      `yaml:"target"`  // URL template, file path template or directory.
	Session *bool       `yaml:"session"` // Session policy; nil inherits the gateway's.
	Options yaml.Node   `yaml:"options"` // Type specific options, decoded by validation.

	// Pattern is the compiled match pattern. Code-built configurations may
	// set it directly, for example to use a match.Predicate.
	Pattern match.Pattern `yaml:"-"`

	Proxy  *ProxyOptions  `yaml:"-"`
	File   *FileOptions   `yaml:"-"`
	Static *StaticOptions `yaml:"-"`
}

// ProxyOptions holds the options of a proxy target.
type ProxyOptions struct {
	WebSocket               bool              `yaml:"ws"`                        // Forward upgrade requests matching this target.
	MaxRequestSize          *int64            `yaml:"max_request_size"`          // Request body cap in bytes; nil uses the default, 0 disables it.
	ResponseHeadersFallback map[string]string `yaml:"response_headers_fallback"` // Headers sent when the gateway answers itself.
	ChangeOrigin            bool              `yaml:"change_origin"`             // Send the upstream host as Host.
	XForward                bool              `yaml:"xfwd"`                      // Add X-Forwarded-* headers.
	AdditionalHeaders       map[string]string `yaml:"additional_headers"`        // Headers set on every upstream request.
	ExcludedHeaders         []string          `yaml:"excluded_headers"`          // Headers removed from every upstream request.
	Transport               *TransportConfig  `yaml:"transport"`                 // Overrides the global transport.
}

// EffectiveMaxRequestSize returns the body cap in bytes, 0 meaning unlimited.
func (o *ProxyOptions) EffectiveMaxRequestSize() int64 {
	if o.MaxRequestSize == nil {
		return DefaultMaxRequestSize
	}
	return *o.MaxRequestSize
}

// Dotfile policies for file and static targets.
const (
	DotfilesIgnore = "ignore" // Answer 404.
	DotfilesAllow  = "allow"
	DotfilesDeny   = "deny" // Answer 403.
)

// FileOptions holds the options of a file target.
type FileOptions struct {
	Root     string            `yaml:"root"`     // Directory relative paths resolve against; the file must stay inside it.
	Headers  map[string]string `yaml:"headers"`  // Headers served with the file.
	MaxAge   time.Duration     `yaml:"max_age"`  // Cache-Control max-age.
	Dotfiles string            `yaml:"dotfiles"` // ignore, allow or deny.
	Compress *bool             `yaml:"compress"` // Gzip responses; defaults to true.
}

// StaticOptions holds the options of a static directory target.
type StaticOptions struct {
	Index    string        `yaml:"index"`    // Index file of directories; defaults to index.html.
	MaxAge   time.Duration `yaml:"max_age"`  // Cache-Control max-age.
	Dotfiles string        `yaml:"dotfiles"` // ignore, allow or deny.
	Compress *bool         `yaml:"compress"` // Gzip responses; defaults to true.
}

// validateAndSetDefaults decodes the type specific options and checks them.
func (t *TargetConfig) validateAndSetDefaults(gw *GatewayConfig) error {
	if t.Target == "" {
		return fmt.Errorf("target is required")
	}

	if t.Session != nil && *t.Session && !gw.Session.Enabled {
		return fmt.Errorf("session is enabled on target %q but not in gateway", t.Target)
	}

	switch t.Type {
	case TypeProxy:
		if t.Proxy == nil {
			t.Proxy = &ProxyOptions{}
			if err := decodeOptions(&t.Options, t.Proxy); err != nil {
				return err
			}
		}
		if t.Proxy.MaxRequestSize != nil && *t.Proxy.MaxRequestSize < 0 {
			return fmt.Errorf("max_request_size cannot be negative")
		}
		if t.Proxy.Transport != nil {
			if err := validateTransport(t.Proxy.Transport.HTTP); err != nil {
				return err
			}
		} else {
			t.Proxy.Transport = &gw.Transport
		}
	case TypeFile:
		if t.File == nil {
			t.File = &FileOptions{}
			if err := decodeOptions(&t.Options, t.File); err != nil {
				return err
			}
		}
		if err := validateDotfiles(&t.File.Dotfiles); err != nil {
			return err
		}
	case TypeStatic:
		if t.Static == nil {
			t.Static = &StaticOptions{}
			if err := decodeOptions(&t.Options, t.Static); err != nil {
				return err
			}
		}
		if t.Static.Index == "" {
			t.Static.Index = "index.html"
		}
		if err := validateDotfiles(&t.Static.Dotfiles); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown target type %q", t.Type)
	}
	return nil
}

func decodeOptions(node *yaml.Node, out any) error {
	if node.Kind == 0 {
		return nil
	}
	if err := node.Decode(out); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func validateDotfiles(policy *string) error {
	switch *policy {
	case "":
		*policy = DotfilesIgnore
	case DotfilesIgnore, DotfilesAllow, DotfilesDeny:
	default:
		return fmt.Errorf("unknown dotfiles policy %q", *policy)
	}
	return nil
}

// CompilePattern compiles Match into Pattern unless Pattern was set in code.
func (t *TargetConfig) CompilePattern() error {
	if !t.Pattern.IsZero() {
		return nil
	}
	pattern, err := t.Match.Compile()
	if err != nil {
		return err
	}
	t.Pattern = pattern
	return nil
}

// PathConfig is one path alternative: a literal prefix or a regular expression.
type PathConfig struct {
	Literal string
	Regex   string
}

// HeaderConfig is the expectation on one header: presence, equality or regex.
type HeaderConfig struct {
	Present *bool
	Equals  *string
	Regex   string
}

// MatchConfig is the YAML form of a match pattern. Accepted forms:
//
//	match: /app
//	match: [/app, /web]
//	match: {regex: "^(/t/[^/]+)/"}
//	match: {index_fallback: /app}
//	match:
//	  path: /app              # or a list, or {regex: ...}
//	  headers:
//	    x-flag: true          # presence; false requires absence
//	    x-env: prod           # equality with any value
//	    user-agent: {regex: Googlebot}
type MatchConfig struct {
	Path          []PathConfig
	Headers       map[string]HeaderConfig
	IndexFallback *string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *MatchConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		m.Path = []PathConfig{{Literal: node.Value}}
		return nil
	case yaml.SequenceNode:
		paths, err := decodePaths(node)
		if err != nil {
			return err
		}
		m.Path = paths
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i].Value, node.Content[i+1]
			switch key {
			case "regex":
				m.Path = []PathConfig{{Regex: value.Value}}
			case "path":
				paths, err := decodePaths(value)
				if err != nil {
					return err
				}
				m.Path = paths
			case "headers":
				headers, err := decodeHeaders(value)
				if err != nil {
					return err
				}
				m.Headers = headers
			case "index_fallback":
				prefix := value.Value
				m.IndexFallback = &prefix
			default:
				return fmt.Errorf("line %d: unknown match key %q", node.Content[i].Line, key)
			}
		}
		return nil
	}
	return fmt.Errorf("line %d: invalid match pattern", node.Line)
}

func decodePaths(node *yaml.Node) ([]PathConfig, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return []PathConfig{{Literal: node.Value}}, nil
	case yaml.MappingNode:
		var p struct {
			Regex string `yaml:"regex"`
		}
		if err := node.Decode(&p); err != nil {
			return nil, err
		}
		if p.Regex == "" {
			return nil, fmt.Errorf("line %d: path mapping requires regex", node.Line)
		}
		return []PathConfig{{Regex: p.Regex}}, nil
	case yaml.SequenceNode:
		var paths []PathConfig
		for _, item := range node.Content {
			p, err := decodePaths(item)
			if err != nil {
				return nil, err
			}
			paths = append(paths, p...)
		}
		return paths, nil
	}
	return nil, fmt.Errorf("line %d: invalid path pattern", node.Line)
}

func decodeHeaders(node *yaml.Node) (map[string]HeaderConfig, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: headers must be a mapping", node.Line)
	}
	headers := make(map[string]HeaderConfig, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name, value := node.Content[i].Value, node.Content[i+1]
		var hc HeaderConfig
		switch {
		case value.Kind == yaml.ScalarNode && value.Tag == "!!bool":
			var b bool
			if err := value.Decode(&b); err != nil {
				return nil, err
			}
			hc.Present = &b
		case value.Kind == yaml.ScalarNode:
			s := value.Value
			hc.Equals = &s
		case value.Kind == yaml.MappingNode:
			var r struct {
				Regex string `yaml:"regex"`
			}
			if err := value.Decode(&r); err != nil {
				return nil, err
			}
			hc.Regex = r.Regex
		default:
			return nil, fmt.Errorf("line %d: invalid pattern for header %q", value.Line, name)
		}
		headers[strings.ToLower(name)] = hc
	}
	return headers, nil
}

// Compile turns the configuration into a match pattern, compiling regular
// expressions eagerly.
func (m MatchConfig) Compile() (match.Pattern, error) {
	if m.IndexFallback != nil {
		prefix := *m.IndexFallback
		if prefix != "" && (!strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/")) {
			return match.Pattern{}, fmt.Errorf("index_fallback prefix %q must start and not end with /", prefix)
		}
		return match.IndexFileFallback(prefix), nil
	}

	var pattern match.Pattern

	switch {
	case len(m.Path) == 1 && m.Path[0].Regex == "":
		pattern.Path = match.Literal(m.Path[0].Literal)
	case len(m.Path) > 0:
		alternatives := make(match.AnyOf, 0, len(m.Path))
		for _, p := range m.Path {
			if p.Regex == "" {
				alternatives = append(alternatives, match.Literal(p.Literal))
				continue
			}
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return match.Pattern{}, fmt.Errorf("error compiling regex for path %s: %w", p.Regex, err)
			}
			alternatives = append(alternatives, match.Regex{Regexp: re})
		}
		pattern.Path = alternatives
	}

	if len(m.Headers) > 0 {
		pattern.Headers = make(map[string]match.HeaderPattern, len(m.Headers))
		for name, hc := range m.Headers {
			switch {
			case hc.Present != nil:
				pattern.Headers[name] = match.Present(*hc.Present)
			case hc.Equals != nil:
				pattern.Headers[name] = match.Equals(*hc.Equals)
			default:
				re, err := regexp.Compile(hc.Regex)
				if err != nil {
					return match.Pattern{}, fmt.Errorf("error compiling regex for header %s: %w", name, err)
				}
				pattern.Headers[name] = match.HeaderRegex{Regexp: re}
			}
		}
	}

	return pattern, nil
}
