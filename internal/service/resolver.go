package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tribunal-ia/portal/internal/core"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/ports"
	"golang.org/x/sync/singleflight"
)

// Resolution outcomes, used as metric labels.
const (
	resolveAnonymous   = "anonymous"
	resolveFound       = "found"
	resolveCreated     = "created"
	resolveRaced       = "raced"
	resolveUnavailable = "unavailable"
	resolveFailed      = "failed"
)

// Resolution is the identity and profile resolved for a browser session.
// Identity is nil when there is no session; Profile is nil when it could not be read or created.
type Resolution struct {
	Identity *domainauth.Identity
	Profile  *domainauth.Profile
	Err      error
}

// SessionResolverOptions groups dependencies for SessionResolver.
type SessionResolverOptions struct {
	Credentials ports.CredentialStore  // required
	Profiles    core.ProfileRepository // required
	Config      SessionResolverConfig
}

// DefaultProfileLoadTimeout bounds a shared profile load once it no longer follows its first caller.
const DefaultProfileLoadTimeout = 10 * time.Second

// SessionResolverConfig holds optional collaborators.
type SessionResolverConfig struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	LoadTimeout time.Duration
}

// SessionResolver turns a credential session into an identity and its profile row,
// creating the row the first time an identity is seen.
type SessionResolver struct {
	credentials ports.CredentialStore
	profiles    core.ProfileRepository
	logger      *slog.Logger
	metrics     *metrics.Metrics
	loadTimeout time.Duration

	loads singleflight.Group
}

// NewSessionResolver constructs a SessionResolver. It panics when a required dependency is nil.
func NewSessionResolver(opts SessionResolverOptions) *SessionResolver {
	if opts.Credentials == nil {
		panic("Credentials is required")
	}
	if opts.Profiles == nil {
		panic("Profiles is required")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Config.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultProfileLoadTimeout
	}
	return &SessionResolver{
		credentials: opts.Credentials,
		profiles:    opts.Profiles,
		logger:      logger.With("component", "session_resolver"),
		metrics:     opts.Config.Metrics,
		loadTimeout: timeout,
	}
}

// Resolve reads the current session and loads (or lazily creates) the profile for it.
// A credential store failure is reported as no session with an unavailable AuthError attached.
func (r *SessionResolver) Resolve(ctx context.Context, sessionID string) Resolution {
	start := time.Now()
	res, outcome := r.resolve(ctx, sessionID)
	r.metrics.ObserveResolve(outcome, time.Since(start))
	return res
}

func (r *SessionResolver) resolve(ctx context.Context, sessionID string) (Resolution, string) {
	sess, err := r.credentials.CurrentSession(ctx, sessionID)
	if err != nil {
		r.logger.WarnContext(ctx, "credential store unavailable, treating as signed out", "error", err)
		return Resolution{Err: domainauth.NewAuthError(domainauth.KindUnavailable, err)}, resolveUnavailable
	}
	if sess == nil {
		return Resolution{}, resolveAnonymous
	}

	identity := sess.Identity()
	profile, outcome, err := r.loadProfile(ctx, identity)
	if err != nil {
		r.logger.ErrorContext(ctx, "profile unavailable", "user_id", identity.UserID, "error", err)
		return Resolution{Identity: &identity, Err: err}, resolveFailed
	}
	return Resolution{Identity: &identity, Profile: profile}, outcome
}

// LoadProfile returns the profile for identity, inserting the default profile when none exists.
// Concurrent loads for one identity share a single lookup.
func (r *SessionResolver) LoadProfile(ctx context.Context, identity domainauth.Identity) (*domainauth.Profile, error) {
	p, _, err := r.loadProfile(ctx, identity)
	return p, err
}

type loadResult struct {
	profile *domainauth.Profile
	outcome string
}

func (r *SessionResolver) loadProfile(ctx context.Context, identity domainauth.Identity) (*domainauth.Profile, string, error) {
	// The shared load outlives any single caller; each caller stops waiting on its own ctx.
	ch := r.loads.DoChan(identity.UserID, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		p, outcome, err := r.findOrCreate(loadCtx, identity)
		return loadResult{profile: p, outcome: outcome}, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, resolveFailed, fmt.Errorf("load profile: %w", ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, resolveFailed, res.Err
	}
	lr, _ := res.Val.(loadResult)
	// each caller gets its own copy
	out := *lr.profile
	return &out, lr.outcome, nil
}

func (r *SessionResolver) findOrCreate(ctx context.Context, identity domainauth.Identity) (*domainauth.Profile, string, error) {
	p, err := r.profiles.GetByID(ctx, identity.UserID)
	if err == nil {
		return p, resolveFound, nil
	}
	if !domainauth.IsProfileNotFound(err) {
		return nil, resolveFailed, fmt.Errorf("lookup profile: %w", err)
	}

	created, err := r.profiles.Create(ctx, domainauth.NewDefaultProfile(identity))
	if err == nil {
		r.logger.InfoContext(ctx, "created profile", "user_id", identity.UserID)
		return created, resolveCreated, nil
	}
	if !domainauth.IsProfileConflict(err) {
		return nil, resolveFailed, fmt.Errorf("create profile: %w", err)
	}

	// Another request inserted the row first; its row wins.
	winner, err := r.profiles.GetByID(ctx, identity.UserID)
	if err != nil {
		return nil, resolveFailed, fmt.Errorf("reread profile after conflict: %w", err)
	}
	return winner, resolveRaced, nil
}

// LookupProfile reads the profile for userID without creating it.
func (r *SessionResolver) LookupProfile(ctx context.Context, userID string) (*domainauth.Profile, error) {
	p, err := r.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	return p, nil
}
