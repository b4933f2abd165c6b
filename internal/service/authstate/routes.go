package authstate

import (
	"strings"
)

type RouteClass int

const (
	// Rendered without waiting for an auth decision
	RoutePublic RouteClass = iota

	// Sign in pages: signed in users are sent to the dashboard
	RouteGuestOnly

	// Account pages: anonymous users are sent to the sign in page
	RouteProtected
)

const (
	PathAuth      = "/auth"
	PathDashboard = "/dashboard"

	// Provider callback lands here while the user is still anonymous and must not bounce
	pathAuthCallback = "/auth/callback"
)

var protectedPrefixes = []string{PathDashboard, "/profile", "/subscription"}

func Classify(path string) RouteClass {
	path = strings.TrimRight(path, "/")

	if underPrefix(path, pathAuthCallback) {
		return RoutePublic
	}
	if underPrefix(path, PathAuth) {
		return RouteGuestOnly
	}
	for _, prefix := range protectedPrefixes {
		if underPrefix(path, prefix) {
			return RouteProtected
		}
	}
	return RoutePublic
}

// '/profile' matches '/profile' and '/profile/edit' but not '/profiles'
func underPrefix(path string, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
