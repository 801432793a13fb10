// Package session implements the gateway's cookie session: a signed cookie
// carrying an opaque session ID, values kept in a Store, and an explicit
// commit that writes the cookie before a target starts its response.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"net/http"
	"strings"
	"time"

	"gateway/config"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

// ErrSessionDisabled is returned when a target requires a session but the
// gateway has no session support.
var ErrSessionDisabled = errors.New("session is not enabled in gateway")

// Values holds the data of one session.
type Values map[string]string

// Session is the state of one visitor for the lifetime of one request.
type Session struct {
	id        string
	values    Values
	prevHash  string
	forceSave bool
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// PrevHash is the fingerprint of the values loaded from the store. It is
// empty on a first visit.
func (s *Session) PrevHash() string { return s.prevHash }

// Get returns a value.
func (s *Session) Get(key string) string { return s.values[key] }

// Set stores a value.
func (s *Session) Set(key, value string) { s.values[key] = value }

// Delete removes a value.
func (s *Session) Delete(key string) { delete(s.values, key) }

// Populated reports whether the session holds any value.
func (s *Session) Populated() bool { return len(s.values) > 0 }

// Save forces the next commit to persist the session even if unchanged.
func (s *Session) Save() { s.forceSave = true }

func hashValues(v Values) string {
	// json.Marshal sorts map keys, so equal maps hash equally.
	data, _ := json.Marshal(v)
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE(data))
}

// Manager loads and commits sessions.
type Manager struct {
	cfg    config.SessionConfig
	codecs []securecookie.Codec
	store  Store
}

// NewManager creates a session manager.
//
// Parameters:
// - cfg: The session configuration; Keys must not be empty.
// - store: The store that keeps session values.
//
// Returns:
// - *Manager: The manager.
// - error: An error if no signing key is configured.
func NewManager(cfg config.SessionConfig, store Store) (*Manager, error) {
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("session keys are required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = config.DefaultSessionCookieName
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = config.DefaultSessionMaxAge
	}

	pairs := make([][]byte, 0, len(cfg.Keys)*2)
	for _, key := range cfg.Keys {
		// Signed, not encrypted: the cookie only carries an opaque ID.
		pairs = append(pairs, []byte(key), nil)
	}
	codecs := securecookie.CodecsFromPairs(pairs...)
	for _, codec := range codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(int(cfg.MaxAge / time.Second))
		}
	}

	return &Manager{cfg: cfg, codecs: codecs, store: store}, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.cfg.CookieName }

// Load returns the session of r. A missing, tampered or expired cookie, or a
// cookie whose values are gone from the store, yields a fresh session.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil {
		return m.fresh(), nil
	}

	var id string
	if err := securecookie.DecodeMulti(m.cfg.CookieName, cookie.Value, &id, m.codecs...); err != nil {
		return m.fresh(), nil
	}

	values, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if values == nil {
		return m.fresh(), nil
	}

	return &Session{id: id, values: values, prevHash: hashValues(values)}, nil
}

func (m *Manager) fresh() *Session {
	return &Session{id: uuid.NewString(), values: Values{}}
}

// Commit persists s and queues its cookie on w when the session was forced,
// changed, or rolling is on. A new session without values is not persisted
// unless forced.
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	hash := hashValues(s.values)

	switch {
	case s.forceSave:
	case s.prevHash == "" && !s.Populated():
		return nil
	case hash != s.prevHash:
	case m.cfg.Rolling:
	default:
		return nil
	}

	if err := m.store.Set(ctx, s.id, s.values, m.cfg.MaxAge); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	encoded, err := securecookie.EncodeMulti(m.cfg.CookieName, s.id, m.codecs...)
	if err != nil {
		return fmt.Errorf("failed to encode session cookie: %w", err)
	}
	http.SetCookie(w, m.cookie(encoded, int(m.cfg.MaxAge/time.Second)))

	s.prevHash = hash
	s.forceSave = false
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   m.cfg.Secure,
		HttpOnly: m.cfg.IsHTTPOnly(),
	}
	if maxAge > 0 {
		c.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	switch strings.ToLower(m.cfg.SameSite) {
	case "lax":
		c.SameSite = http.SameSiteLaxMode
	case "strict":
		c.SameSite = http.SameSiteStrictMode
	case "none":
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

type contextKey struct{}

// NewContext returns a copy of ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the session committed for the current request, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(contextKey{}).(*Session)
	return s, ok
}
