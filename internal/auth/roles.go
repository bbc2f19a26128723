package auth

import (
	"strings"

	"github.com/buildflow/site-client/internal/domain"
)

// RouteLogin is where unauthenticated users are sent.
const RouteLogin = "/login"

// RouteHome is the default fallback for authenticated users outside their
// permitted area.
const RouteHome = "/"

// RoleProfile bundles everything the UI derives from a role: its dashboard
// route, the route prefixes it may visit, and presentation attributes.
type RoleProfile struct {
	DashboardRoute string
	RoutePrefixes  []string
	DisplayName    string
	Color          string
}

// roleTable is the single source of truth for role-driven navigation. Every
// recognized role has exactly one entry; lookups for anything else fall back
// to defaultProfile so rendering never blocks on an unmapped value.
var roleTable = map[domain.Role]RoleProfile{
	domain.RoleHomeowner: {
		DashboardRoute: "/",
		RoutePrefixes:  []string{"/", "/projects", "/quotes", "/messages", "/notifications"},
		DisplayName:    "Homeowner",
		Color:          "#2563EB",
	},
	domain.RoleContractor: {
		DashboardRoute: "/contractor",
		RoutePrefixes:  []string{"/contractor", "/projects", "/quotes", "/messages", "/notifications"},
		DisplayName:    "Contractor",
		Color:          "#D97706",
	},
	domain.RoleSupervisor: {
		DashboardRoute: "/supervisor",
		RoutePrefixes:  []string{"/supervisor", "/projects", "/messages", "/notifications"},
		DisplayName:    "Supervisor",
		Color:          "#059669",
	},
	domain.RoleAdmin: {
		DashboardRoute: "/admin",
		RoutePrefixes:  []string{"/admin", "/projects", "/messages", "/notifications"},
		DisplayName:    "Administrator",
		Color:          "#DC2626",
	},
}

var defaultProfile = RoleProfile{
	DashboardRoute: RouteHome,
	RoutePrefixes:  []string{RouteHome},
	DisplayName:    "User",
	Color:          "#6B7280",
}

// ProfileFor returns the role's profile, or the default profile for an
// unrecognized role. Total: never fails.
func ProfileFor(role domain.Role) RoleProfile {
	if profile, ok := roleTable[role]; ok {
		return profile
	}
	return defaultProfile
}

// DashboardRouteFor returns the landing route for a role.
func DashboardRouteFor(role domain.Role) string {
	return ProfileFor(role).DashboardRoute
}

// DisplayNameFor returns the human-readable role label.
func DisplayNameFor(role domain.Role) string {
	return ProfileFor(role).DisplayName
}

// ColorFor returns the accent color associated with a role.
func ColorFor(role domain.Role) string {
	return ProfileFor(role).Color
}

// MayVisit reports whether a role's permitted prefixes cover the route.
func MayVisit(role domain.Role, route string) bool {
	for _, prefix := range ProfileFor(role).RoutePrefixes {
		if prefix == "/" {
			if route == "/" {
				return true
			}
			continue
		}
		if route == prefix || strings.HasPrefix(route, prefix+"/") {
			return true
		}
	}
	return false
}
