package session

import (
	"net/http"
)

// Effective resolves a target's session policy. A target inherits the
// gateway's policy unless it declares one; declaring true while the gateway
// has no session support is a configuration error.
func Effective(gatewayEnabled bool, declared *bool) (bool, error) {
	if gatewayEnabled {
		if declared == nil {
			return true, nil
		}
		return *declared, nil
	}
	if declared != nil && *declared {
		return false, ErrSessionDisabled
	}
	return false, nil
}

// Coordinator prepares the session of a request routed to a session-enabled
// target. Sessions are never committed implicitly on write: a proxied
// response may already have flushed its headers by then.
type Coordinator struct {
	manager *Manager
}

// NewCoordinator creates a coordinator over manager.
func NewCoordinator(manager *Manager) *Coordinator {
	return &Coordinator{manager: manager}
}

// Manager returns the underlying session manager.
func (c *Coordinator) Manager() *Manager { return c.manager }

// Begin loads the session of r, forces its creation on a first visit and
// commits it exactly once, queueing the cookie on w. The returned request
// carries the session in its context.
func (c *Coordinator) Begin(w http.ResponseWriter, r *http.Request) (*http.Request, error) {
	s, err := c.manager.Load(r)
	if err != nil {
		return r, err
	}

	if s.PrevHash() == "" {
		s.Save()
	}

	if err := c.manager.Commit(r.Context(), w, s); err != nil {
		return r, err
	}

	return r.WithContext(NewContext(r.Context(), s)), nil
}
