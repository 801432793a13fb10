package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"gateway/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, rolling bool) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	m, err := NewManager(config.SessionConfig{
		Enabled: true,
		Keys:    []string{"some secrets"},
		Rolling: rolling,
	}, store)
	require.NoError(t, err)
	return m, store
}

// replay copies the cookies set on rec onto a new request.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestEffectivePolicy(t *testing.T) {
	yes, no := true, false

	enabled, err := Effective(true, nil)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = Effective(true, &no)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = Effective(false, nil)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = Effective(false, &yes)
	assert.ErrorIs(t, err, ErrSessionDisabled)
}

func TestBeginForcesSessionOnFirstVisit(t *testing.T) {
	m, store := newTestManager(t, false)
	c := NewCoordinator(m)

	rec := httptest.NewRecorder()
	r, err := c.Begin(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, config.DefaultSessionCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, 1, store.Len())

	s, ok := FromContext(r.Context())
	require.True(t, ok)
	assert.NotEmpty(t, s.PrevHash())

	// A returning visitor without changes gets no new cookie.
	rec2 := httptest.NewRecorder()
	r2, err := c.Begin(rec2, replay(rec))
	require.NoError(t, err)
	assert.Empty(t, rec2.Header().Values("Set-Cookie"))

	s2, ok := FromContext(r2.Context())
	require.True(t, ok)
	assert.Equal(t, s.ID(), s2.ID())
}

func TestRollingRefreshesCookie(t *testing.T) {
	m, _ := newTestManager(t, true)
	c := NewCoordinator(m)

	rec := httptest.NewRecorder()
	_, err := c.Begin(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	rec2 := httptest.NewRecorder()
	_, err = c.Begin(rec2, replay(rec))
	require.NoError(t, err)
	assert.Len(t, rec2.Header().Values("Set-Cookie"), 1)
}

func TestChangedValuesArePersisted(t *testing.T) {
	m, store := newTestManager(t, false)

	s, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Empty(t, s.PrevHash())

	// An untouched new session is not persisted.
	rec := httptest.NewRecorder()
	require.NoError(t, m.Commit(context.Background(), rec, s))
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
	assert.Equal(t, 0, store.Len())

	s.Set("user", "alice")
	require.NoError(t, m.Commit(context.Background(), rec, s))
	assert.Len(t, rec.Header().Values("Set-Cookie"), 1)

	loaded, err := m.Load(replay(rec))
	require.NoError(t, err)
	assert.Equal(t, s.ID(), loaded.ID())
	assert.Equal(t, "alice", loaded.Get("user"))
}

func TestDeletedValueIsPersisted(t *testing.T) {
	m, _ := newTestManager(t, false)

	s, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	s.Set("user", "alice")
	s.Set("theme", "dark")
	rec := httptest.NewRecorder()
	require.NoError(t, m.Commit(context.Background(), rec, s))

	loaded, err := m.Load(replay(rec))
	require.NoError(t, err)
	loaded.Delete("user")

	rec2 := httptest.NewRecorder()
	require.NoError(t, m.Commit(context.Background(), rec2, loaded))
	assert.Len(t, rec2.Header().Values("Set-Cookie"), 1)

	reloaded, err := m.Load(replay(rec2))
	require.NoError(t, err)
	assert.Empty(t, reloaded.Get("user"))
	assert.Equal(t, "dark", reloaded.Get("theme"))
}

func TestTamperedCookieYieldsFreshSession(t *testing.T) {
	m, _ := newTestManager(t, false)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: config.DefaultSessionCookieName, Value: "forged"})

	s, err := m.Load(r)
	require.NoError(t, err)
	assert.Empty(t, s.PrevHash())
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", Values{"k": "v"}, -time.Second))
	values, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, values)

	require.NoError(t, store.Set(ctx, "b", Values{"k": "v"}, time.Minute))
	values, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "v", values["k"])

	require.NoError(t, store.Destroy(ctx, "b"))
	values, err = store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, values)
}

// TestRedisStore runs against a live Redis when REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	store := NewRedisStore(client)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "test-id", Values{"user": "bob"}, time.Minute))
	values, err := store.Get(ctx, "test-id")
	require.NoError(t, err)
	assert.Equal(t, "bob", values["user"])

	require.NoError(t, store.Destroy(ctx, "test-id"))
	values, err = store.Get(ctx, "test-id")
	require.NoError(t, err)
	assert.Nil(t, values)
}
