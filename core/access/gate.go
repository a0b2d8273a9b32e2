package access

import (
	"github.com/trezcool/schoolgate/core/profile"
	"github.com/trezcool/schoolgate/core/session"
)

type Decision struct {
	Allow      bool   `json:"allow"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func allow() Decision                   { return Decision{Allow: true} }
func redirectTo(target string) Decision { return Decision{RedirectTo: target} }

// Decide is the route guard: it allows requestedPath or tells where to go instead.
// It is total: every session and path get exactly one decision.
func Decide(s session.Session, requestedPath string) Decision {
	p := cleanPath(requestedPath)

	switch s.Phase {
	case session.PhaseInitializing, session.PhaseAwaitingProfile:
		return redirectTo(LoadingPlaceholder)

	case session.PhaseBootstrapRequired:
		if p == PathSetupAdmin {
			return allow()
		}
		return redirectTo(PathSetupAdmin)

	case session.PhaseSignedOut:
		if p == PathLogin {
			return allow()
		}
		return redirectTo(PathLogin)

	case session.PhaseReady:
		if s.Profile == nil {
			return redirectTo(ErrorPlaceholder)
		}
		return decideReady(*s.Profile, p)
	}

	// PhaseError, or anything unknown
	return redirectTo(ErrorPlaceholder)
}

func decideReady(usr profile.Profile, p string) Decision {
	if status := statusPage(usr); status != "" {
		if p == status {
			return allow()
		}
		return redirectTo(status)
	}
	if route, ok := RouteOf(p); ok && Permits(usr.Role, route) {
		return allow()
	}
	return redirectTo(DefaultRoute(usr.Role))
}

// statusPage returns the page a user is held on because of their account status, if any.
func statusPage(usr profile.Profile) string {
	switch {
	case usr.IsStudent() && usr.AccountStatus == profile.StatusPending:
		return PathPending
	case usr.IsStudent() && usr.AccountStatus == profile.StatusRejected:
		return PathRejected
	case (usr.IsStudent() || usr.IsTeacher()) && usr.AccountStatus == profile.StatusInactive:
		return PathInactive
	}
	return ""
}
