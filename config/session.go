package config

import (
	"time"

	"gopkg.in/yaml.v3"
)

// Session stores.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// SessionConfig holds the gateway's session support. In YAML it is either a
// boolean or a mapping; a mapping enables sessions unless it says otherwise.
type SessionConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Keys       []string      `yaml:"keys"`        // Signing keys, newest first.
	CookieName string        `yaml:"cookie_name"` // Defaults to gateway.sess.
	MaxAge     time.Duration `yaml:"max_age"`     // Cookie and store lifetime.
	Secure     bool          `yaml:"secure"`      // Mark the cookie Secure.
	HTTPOnly   *bool         `yaml:"http_only"`   // Defaults to true.
	SameSite   string        `yaml:"same_site"`   // lax, strict, none or empty.
	Rolling    bool          `yaml:"rolling"`     // Refresh the cookie on every committed request.
	Store      string        `yaml:"store"`       // memory or redis.
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *SessionConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&s.Enabled)
	}

	type plain SessionConfig
	p := plain{Enabled: true}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = SessionConfig(p)
	return nil
}

// IsHTTPOnly reports whether the session cookie is hidden from scripts.
func (s SessionConfig) IsHTTPOnly() bool {
	return s.HTTPOnly == nil || *s.HTTPOnly
}
