package auth

import "slices"

// Well-known paths used by the role gate.
const (
	LoginPath        = "/login"
	AdminLandingPath = "/admin"
	UserLandingPath  = "/dashboard"
)

// LandingPath returns the default authenticated screen for a role.
func LandingPath(r Role) string {
	switch r {
	case RoleAdmin:
		return AdminLandingPath
	case RoleUser:
		return UserLandingPath
	default:
		return LoginPath
	}
}

// State is the per-browser-session auth state published by the auth context.
type State struct {
	Identity  *Identity `json:"identity"`
	Profile   *Profile  `json:"profile"`
	IsLoading bool      `json:"is_loading"`
	// Err keeps the last classified failure for diagnostic surfaces.
	Err error `json:"-"`
}

// Outcome is the role gate verdict.
type Outcome string

const (
	OutcomeWait     Outcome = "wait"
	OutcomeLogin    Outcome = "login"
	OutcomeRedirect Outcome = "redirect"
	OutcomeRender   Outcome = "render"
)

// Decision is the result of evaluating the role gate.
type Decision struct {
	Outcome  Outcome
	Location string // set for login and redirect outcomes
}

// Decide evaluates the role gate decision table; the first matching row wins.
// An empty required set means any authenticated role.
func Decide(s State, required []Role) Decision {
	switch {
	case s.IsLoading:
		return Decision{Outcome: OutcomeWait}
	case s.Identity == nil:
		return Decision{Outcome: OutcomeLogin, Location: LoginPath}
	case s.Profile == nil:
		return Decision{Outcome: OutcomeLogin, Location: LoginPath}
	case len(required) > 0 && !slices.Contains(required, s.Profile.Role):
		return Decision{Outcome: OutcomeRedirect, Location: LandingPath(s.Profile.Role)}
	default:
		return Decision{Outcome: OutcomeRender}
	}
}
