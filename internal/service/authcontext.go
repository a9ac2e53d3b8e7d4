package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/observability/metrics"
	"github.com/tribunal-ia/portal/internal/ports"
)

// Defaults for AuthContextManagerConfig.
const (
	DefaultAuthContextIdleTTL = 30 * time.Minute
	DefaultResolveTimeout     = 10 * time.Second
)

// Resolver resolves browser sessions to identities and profiles.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) Resolution
	LookupProfile(ctx context.Context, userID string) (*domainauth.Profile, error)
}

// AuthContext holds the auth state of one browser session.
type AuthContext struct {
	sessionID string

	mu       sync.Mutex
	state    domainauth.State
	seq      uint64
	settled  chan struct{}
	lastUsed time.Time
}

func newAuthContext(sessionID string, now time.Time) *AuthContext {
	return &AuthContext{
		sessionID: sessionID,
		state:     domainauth.State{IsLoading: true},
		settled:   make(chan struct{}),
		lastUsed:  now,
	}
}

// SessionID returns the browser session the context belongs to.
func (c *AuthContext) SessionID() string { return c.sessionID }

// State returns a snapshot of the current auth state.
func (c *AuthContext) State() domainauth.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// WaitSettled blocks until the context is not loading, max elapses or ctx is done,
// and returns the state at that point.
func (c *AuthContext) WaitSettled(ctx context.Context, maxWait time.Duration) domainauth.State {
	c.mu.Lock()
	ch := c.settled
	c.mu.Unlock()

	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		select {
		case <-ch:
		case <-timer.C:
		case <-ctx.Done():
		}
	}
	return c.State()
}

// begin marks the context loading and returns the token of the new operation.
func (c *AuthContext) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	if !c.state.IsLoading {
		c.state.IsLoading = true
		c.settled = make(chan struct{})
	}
	return c.seq
}

// apply runs fn on the state when token is still the latest one initiated.
// Stale results are dropped and leave the state untouched.
func (c *AuthContext) apply(token uint64, fn func(*domainauth.State)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if token != c.seq {
		return false
	}
	fn(&c.state)
	c.settle()
	return true
}

// clear drops identity and profile and invalidates every in-flight operation.
func (c *AuthContext) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	wasLoading := c.state.IsLoading
	c.state = domainauth.State{}
	if wasLoading {
		close(c.settled)
	}
}

// settle must be called with c.mu held.
func (c *AuthContext) settle() {
	if c.state.IsLoading {
		c.state.IsLoading = false
		close(c.settled)
	}
}

func (c *AuthContext) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *AuthContext) idleSince(cutoff time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.IsLoading && c.lastUsed.Before(cutoff)
}

func (c *AuthContext) userID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Identity == nil {
		return ""
	}
	return c.state.Identity.UserID
}

// AuthContextManagerOptions groups dependencies for AuthContextManager.
type AuthContextManagerOptions struct {
	Credentials ports.CredentialStore // required
	Resolver    Resolver              // required
	Config      AuthContextManagerConfig
}

// AuthContextManagerConfig holds optional collaborators and tuning.
type AuthContextManagerConfig struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	IdleTTL        time.Duration // contexts unused this long are evicted
	SweepInterval  time.Duration // defaults to IdleTTL/4
	ResolveTimeout time.Duration
	Now            func() time.Time
}

// LoginResult reports the outcome of a password login. Reason is empty on success.
type LoginResult struct {
	SessionID string
	Reason    domainauth.ErrorKind
}

// OK reports whether the login succeeded.
func (r LoginResult) OK() bool { return r.Reason == "" && r.SessionID != "" }

// AuthContextManager owns the auth contexts of all browser sessions served by this process.
// It subscribes to the credential store exactly once and applies auth events to the
// matching contexts on a single goroutine, in publish order.
type AuthContextManager struct {
	credentials    ports.CredentialStore
	resolver       Resolver
	logger         *slog.Logger
	metrics        *metrics.Metrics
	idleTTL        time.Duration
	sweepInterval  time.Duration
	resolveTimeout time.Duration
	now            func() time.Time

	unsubscribe func()
	baseCtx     context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	closeOnce   sync.Once

	qmu    sync.Mutex
	queue  []domainauth.Event
	signal chan struct{}

	mu       sync.Mutex
	contexts map[string]*AuthContext
	closed   bool
}

// NewAuthContextManager constructs the manager, registers its single credential store
// subscription and starts the event consumer and idle sweeper. Call Close to stop them.
func NewAuthContextManager(opts AuthContextManagerOptions) *AuthContextManager {
	if opts.Credentials == nil {
		panic("Credentials is required")
	}
	if opts.Resolver == nil {
		panic("Resolver is required")
	}
	cfg := opts.Config
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = DefaultAuthContextIdleTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = idle / 4
	}
	timeout := cfg.ResolveTimeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &AuthContextManager{
		credentials:    opts.Credentials,
		resolver:       opts.Resolver,
		logger:         logger.With("component", "auth_context"),
		metrics:        cfg.Metrics,
		idleTTL:        idle,
		sweepInterval:  sweep,
		resolveTimeout: timeout,
		now:            now,
		baseCtx:        ctx,
		cancel:         cancel,
		signal:         make(chan struct{}, 1),
		contexts:       make(map[string]*AuthContext),
	}

	m.unsubscribe = opts.Credentials.Subscribe(m.enqueue)

	m.wg.Add(2)
	go m.consume()
	go m.sweep()
	return m
}

// Close removes the credential store subscription, stops background goroutines and
// waits for in-flight resolutions to finish. It is safe to call more than once.
func (m *AuthContextManager) Close() {
	m.closeOnce.Do(func() {
		m.unsubscribe()
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		m.cancel()
		m.wg.Wait()
	})
}

// Context returns the auth context for sessionID, creating it and starting its first
// resolution when it does not exist. An empty sessionID yields a settled anonymous context.
func (m *AuthContextManager) Context(sessionID string) *AuthContext {
	now := m.now()
	if sessionID == "" {
		c := newAuthContext("", now)
		c.clear()
		return c
	}

	m.mu.Lock()
	c, ok := m.contexts[sessionID]
	if ok {
		m.mu.Unlock()
		c.touch(now)
		return c
	}
	c = newAuthContext(sessionID, now)
	if m.closed {
		m.mu.Unlock()
		c.clear()
		return c
	}
	m.contexts[sessionID] = c
	n := len(m.contexts)
	m.mu.Unlock()

	m.metrics.SetAuthContexts(n)
	m.startResolve(c, 0)
	return c
}

// Login signs in with email and password. It never returns an error: failures are
// reported through LoginResult.Reason. The profile is resolved in the background.
func (m *AuthContextManager) Login(ctx context.Context, email, password string) LoginResult {
	sess, err := m.credentials.SignIn(ctx, email, password)
	if err != nil {
		reason := domainauth.LoginReason(err)
		m.logger.InfoContext(ctx, "login failed", "reason", reason, "error", err)
		m.metrics.ObserveLogin(string(reason))
		return LoginResult{Reason: reason}
	}
	m.metrics.ObserveLogin(metrics.ResultSuccess)
	m.Context(sess.ID)
	return LoginResult{SessionID: sess.ID}
}

// Logout signs the session out. Local state is cleared even when the credential store
// fails; that error is returned for logging only.
func (m *AuthContextManager) Logout(ctx context.Context, sessionID string) error {
	err := m.credentials.SignOut(ctx, sessionID)
	if err != nil {
		m.logger.WarnContext(ctx, "remote sign out failed, clearing local state", "error", err)
	}
	m.drop(sessionID)
	return err
}

// RefreshProfile re-reads the profile of the session's identity. On failure the last
// known profile is kept and the error returned.
func (m *AuthContextManager) RefreshProfile(ctx context.Context, sessionID string) error {
	c := m.lookup(sessionID)
	if c == nil {
		return nil
	}
	st := c.State()
	if st.Identity == nil {
		return nil
	}
	return m.refresh(ctx, c, st.Identity.UserID)
}

// RefreshUser re-reads the profile for every context in this process signed in as userID.
func (m *AuthContextManager) RefreshUser(ctx context.Context, userID string) {
	for _, c := range m.contextsFor(userID) {
		if err := m.refresh(ctx, c, userID); err != nil {
			m.logger.WarnContext(ctx, "profile refresh failed", "user_id", userID, "error", err)
		}
	}
}

// refreshUserAsync runs RefreshUser off the event consumer so one slow lookup does not
// hold up events for other sessions.
func (m *AuthContextManager) refreshUserAsync(userID string) {
	m.spawn(func() {
		ctx, cancel := context.WithTimeout(m.baseCtx, m.resolveTimeout)
		defer cancel()
		m.RefreshUser(ctx, userID)
	})
}

func (m *AuthContextManager) refresh(ctx context.Context, c *AuthContext, userID string) error {
	token := c.begin()
	p, err := m.resolver.LookupProfile(ctx, userID)
	c.apply(token, func(s *domainauth.State) {
		if err != nil {
			// A deleted user loses their profile; other failures keep the last one.
			if domainauth.IsProfileNotFound(err) {
				s.Profile = nil
			}
			s.Err = err
			return
		}
		s.Profile = p
		s.Err = nil
	})
	return err
}

// Len reports the number of live contexts.
func (m *AuthContextManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

func (m *AuthContextManager) lookup(sessionID string) *AuthContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.contexts[sessionID]
}

func (m *AuthContextManager) contextsFor(userID string) []*AuthContext {
	if userID == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AuthContext
	for _, c := range m.contexts {
		if c.userID() == userID {
			out = append(out, c)
		}
	}
	return out
}

func (m *AuthContextManager) drop(sessionID string) {
	m.mu.Lock()
	c, ok := m.contexts[sessionID]
	delete(m.contexts, sessionID)
	n := len(m.contexts)
	m.mu.Unlock()
	if ok {
		c.clear()
		m.metrics.SetAuthContexts(n)
	}
}

// forget removes c from the map if it is still the context registered for its session.
// c keeps its settled state for callers already holding it.
func (m *AuthContextManager) forget(c *AuthContext) {
	m.mu.Lock()
	cur, ok := m.contexts[c.sessionID]
	if !ok || cur != c {
		m.mu.Unlock()
		return
	}
	delete(m.contexts, c.sessionID)
	n := len(m.contexts)
	m.mu.Unlock()
	m.metrics.SetAuthContexts(n)
}

// spawn runs fn on a goroutine that Close waits for. It does nothing once the manager is closed.
func (m *AuthContextManager) spawn(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// startResolve runs a full resolution for c under token. A session the credential
// store does not know is answered as signed out and not kept.
func (m *AuthContextManager) startResolve(c *AuthContext, token uint64) {
	m.spawn(func() {
		ctx, cancel := context.WithTimeout(m.baseCtx, m.resolveTimeout)
		defer cancel()

		res := m.resolver.Resolve(ctx, c.sessionID)
		applied := c.apply(token, func(s *domainauth.State) {
			s.Identity = res.Identity
			s.Profile = res.Profile
			s.Err = res.Err
		})
		if !applied {
			m.logger.Debug("discarded stale resolution", "session_id", c.sessionID)
			return
		}
		if res.Identity == nil {
			m.forget(c)
		}
	})
}

func (m *AuthContextManager) enqueue(ev domainauth.Event) {
	m.qmu.Lock()
	m.queue = append(m.queue, ev)
	m.qmu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *AuthContextManager) consume() {
	defer m.wg.Done()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-m.signal:
		}

		m.qmu.Lock()
		batch := m.queue
		m.queue = nil
		m.qmu.Unlock()

		for _, ev := range batch {
			m.handle(ev)
		}
	}
}

func (m *AuthContextManager) handle(ev domainauth.Event) {
	if ev.SessionID == "" {
		if ev.Kind == domainauth.EventUserUpdated && ev.UserID != "" {
			m.refreshUserAsync(ev.UserID)
		}
		return
	}

	switch {
	case ev.Kind == domainauth.EventSignedOut:
		m.drop(ev.SessionID)
	case ev.IsSignIn():
		c := m.lookup(ev.SessionID)
		if c == nil {
			return
		}
		m.startResolve(c, c.begin())
	}
}

func (m *AuthContextManager) sweep() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

func (m *AuthContextManager) evictIdle() int {
	cutoff := m.now().Add(-m.idleTTL)
	m.mu.Lock()
	evicted := 0
	for id, c := range m.contexts {
		if c.idleSince(cutoff) {
			delete(m.contexts, id)
			evicted++
		}
	}
	n := len(m.contexts)
	m.mu.Unlock()

	if evicted > 0 {
		m.metrics.SetAuthContexts(n)
		m.logger.Debug("evicted idle auth contexts", "count", evicted)
	}
	return evicted
}
