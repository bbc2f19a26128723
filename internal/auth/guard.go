package auth

import (
	"sync"

	"github.com/buildflow/site-client/internal/domain"
)

// GuardState is the outcome of evaluating a protected route.
type GuardState string

const (
	GuardLoading          GuardState = "LOADING"
	GuardAllowed          GuardState = "ALLOWED"
	GuardRedirectLogin    GuardState = "REDIRECT_LOGIN"
	GuardRedirectFallback GuardState = "REDIRECT_FALLBACK"
)

// Decision tells the caller whether to render children, wait, or navigate
// away. Target is set only for redirect states.
type Decision struct {
	State  GuardState
	Target string
}

// Allowed reports whether children may render.
func (d Decision) Allowed() bool {
	return d.State == GuardAllowed
}

// Evaluate is the pure access gate for one render pass. While the session is
// still loading it returns GuardLoading and no navigation. Once settled, an
// unauthenticated session redirects to login; an authenticated session with
// a role outside the allowed set redirects to fallback; otherwise children
// render. An empty allowed set admits any authenticated role.
func Evaluate(sess *domain.Session, loading bool, allowed []domain.Role, fallback string) Decision {
	if loading {
		return Decision{State: GuardLoading}
	}
	if sess == nil || sess.AccessToken == "" {
		return Decision{State: GuardRedirectLogin, Target: RouteLogin}
	}
	if len(allowed) == 0 {
		return Decision{State: GuardAllowed}
	}
	for _, role := range allowed {
		if sess.User.Role == role {
			return Decision{State: GuardAllowed}
		}
	}
	if fallback == "" {
		fallback = RouteHome
	}
	return Decision{State: GuardRedirectFallback, Target: fallback}
}

// Guard binds the access gate to a navigation callback. It is fed session
// snapshots as they change and triggers navigation at most once per settled
// decision; a new loading phase re-arms it.
type Guard struct {
	allowed  []domain.Role
	fallback string
	navigate func(route string)

	mu   sync.Mutex
	last *Decision
}

// NewGuard builds a guard for the given allowed role set. navigate is
// invoked with the redirect target when access is denied; it may be nil for
// callers that only inspect decisions.
func NewGuard(allowed []domain.Role, fallback string, navigate func(route string)) *Guard {
	return &Guard{allowed: allowed, fallback: fallback, navigate: navigate}
}

// Observe re-evaluates the gate for the latest session state and returns the
// decision. Redirect navigation fires only when the settled decision changed
// since the last observation.
func (g *Guard) Observe(sess *domain.Session, loading bool) Decision {
	decision := Evaluate(sess, loading, g.allowed, g.fallback)

	g.mu.Lock()
	defer g.mu.Unlock()

	if decision.State == GuardLoading {
		g.last = nil
		return decision
	}
	if g.last != nil && *g.last == decision {
		return decision
	}
	g.last = &decision

	if g.navigate != nil && (decision.State == GuardRedirectLogin || decision.State == GuardRedirectFallback) {
		g.navigate(decision.Target)
	}
	return decision
}
