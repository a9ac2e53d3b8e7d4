package service

import (
	"context"
	"sort"
	"sync"
	"time"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

// fakeProfileRepo is an in-memory ProfileRepository with a unique key on id, like the users table.
type fakeProfileRepo struct {
	mu       sync.Mutex
	rows     map[string]domainauth.Profile
	creates  int
	getErr   error
	getFn    func(ctx context.Context)  // runs before the lookup, outside the lock
	createFn func(p domainauth.Profile) // runs before the insert, outside the lock
}

func newFakeProfileRepo(seed ...domainauth.Profile) *fakeProfileRepo {
	r := &fakeProfileRepo{rows: make(map[string]domainauth.Profile)}
	for _, p := range seed {
		r.rows[p.ID] = p
	}
	return r
}

func (r *fakeProfileRepo) GetByID(ctx context.Context, id string) (*domainauth.Profile, error) {
	if r.getFn != nil {
		r.getFn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, &domainauth.ProfileLookupError{UserID: id, Err: r.getErr}
	}
	p, ok := r.rows[id]
	if !ok {
		return nil, &domainauth.ProfileLookupError{UserID: id, NotFound: true}
	}
	return &p, nil
}

func (r *fakeProfileRepo) Create(_ context.Context, p domainauth.Profile) (*domainauth.Profile, error) {
	if r.createFn != nil {
		r.createFn(p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[p.ID]; ok {
		return nil, &domainauth.ProfileWriteError{UserID: p.ID, Conflict: true}
	}
	r.creates++
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	r.rows[p.ID] = p
	return &p, nil
}

func (r *fakeProfileRepo) List(_ context.Context, limit, offset int) ([]*domainauth.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domainauth.Profile, 0, len(r.rows))
	for _, p := range r.rows {
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeProfileRepo) update(id string, fn func(*domainauth.Profile)) (*domainauth.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	fn(&p)
	r.rows[id] = p
	return &p, nil
}

func (r *fakeProfileRepo) SetRole(_ context.Context, id string, role domainauth.Role) (*domainauth.Profile, error) {
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", "unknown role")
	}
	return r.update(id, func(p *domainauth.Profile) { p.Role = role })
}

func (r *fakeProfileRepo) IncrementPetitions(_ context.Context, id string) (*domainauth.Profile, error) {
	return r.update(id, func(p *domainauth.Profile) { p.PetitionsUsed++ })
}

func (r *fakeProfileRepo) ResetPetitions(_ context.Context, id string) (*domainauth.Profile, error) {
	return r.update(id, func(p *domainauth.Profile) { p.PetitionsUsed = 0 })
}

func (r *fakeProfileRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return apperrors.NotFoundf("user %s not found", id)
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeProfileRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *fakeProfileRepo) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// fakeUsageLogs records usage log entries.
type fakeUsageLogs struct {
	mu      sync.Mutex
	entries []model.CreateUsageLogRequest
	err     error
}

func (f *fakeUsageLogs) Create(_ context.Context, req model.CreateUsageLogRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, req)
	return nil
}

func (f *fakeUsageLogs) List(_ context.Context, _ model.UsageLogsListOptions) ([]*model.UsageLog, error) {
	return nil, nil
}

func (f *fakeUsageLogs) actions() []model.UsageAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.UsageAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

// fakeWebhook records payloads instead of posting them.
type fakeWebhook struct {
	mu       sync.Mutex
	sent     []any
	urls     []string
	err      error
	validate func(expr string) error
}

func (f *fakeWebhook) Send(_ context.Context, url, _ string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, url)
	f.sent = append(f.sent, payload)
	return f.err
}

func (f *fakeWebhook) ValidateExpr(expr string) error {
	if f.validate != nil {
		return f.validate(expr)
	}
	return nil
}

func (f *fakeWebhook) payloads() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.sent...)
}

// stubChangeWaiter hands out queued events and otherwise blocks until ctx ends.
type stubChangeWaiter struct {
	events chan model.ChangeEvent
	mu     sync.Mutex
	calls  map[string]int
}

func newStubChangeWaiter() *stubChangeWaiter {
	return &stubChangeWaiter{events: make(chan model.ChangeEvent, 16), calls: make(map[string]int)}
}

func (w *stubChangeWaiter) WaitForChange(ctx context.Context, table string) (model.ChangeEvent, error) {
	w.mu.Lock()
	w.calls[table]++
	w.mu.Unlock()
	select {
	case ev := <-w.events:
		return ev, nil
	case <-ctx.Done():
		return model.ChangeEvent{}, ctx.Err()
	}
}

func (w *stubChangeWaiter) callCount(table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[table]
}
