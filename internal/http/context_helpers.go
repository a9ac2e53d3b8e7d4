package httpx

import (
	"context"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
)

// authStateKey is an unexported context key type to avoid collisions across packages.
type authStateKey struct{}

type requestAuth struct {
	sessionID string
	state     domainauth.State
}

// SetAuthStateInContext returns a child context carrying the session id and its settled auth state.
func SetAuthStateInContext(ctx context.Context, sessionID string, state domainauth.State) context.Context {
	return context.WithValue(ctx, authStateKey{}, requestAuth{sessionID: sessionID, state: state})
}

// GetAuthStateFromContext returns the auth state attached by the role gate and whether one was attached.
func GetAuthStateFromContext(ctx context.Context) (domainauth.State, bool) {
	ra, ok := ctx.Value(authStateKey{}).(requestAuth)
	return ra.state, ok
}

// GetSessionIDFromContext returns the session id the auth state was resolved for.
func GetSessionIDFromContext(ctx context.Context) string {
	ra, _ := ctx.Value(authStateKey{}).(requestAuth)
	return ra.sessionID
}

// GetProfileFromContext returns the profile of the signed-in user, or nil.
func GetProfileFromContext(ctx context.Context) *domainauth.Profile {
	st, ok := GetAuthStateFromContext(ctx)
	if !ok {
		return nil
	}
	return st.Profile
}

// IsAdmin reports whether the request carries an admin profile.
func IsAdmin(ctx context.Context) bool {
	return GetProfileFromContext(ctx).IsAdmin()
}
