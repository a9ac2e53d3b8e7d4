package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tribunal-ia/portal/internal/core"
	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
	apperrors "github.com/tribunal-ia/portal/internal/errors"
)

const (
	defaultUserListLimit = 100
	maxUserListLimit     = 500
)

// ProfileChangedFunc is called after an administrator changes a user's profile.
type ProfileChangedFunc func(ctx context.Context, userID string)

// UserAdminServiceOptions groups dependencies for UserAdminService.
type UserAdminServiceOptions struct {
	Profiles  core.ProfileRepository  // required
	UsageLogs core.UsageLogRepository // required
	Config    UserAdminServiceConfig
}

// UserAdminServiceConfig holds optional collaborators.
type UserAdminServiceConfig struct {
	Logger *slog.Logger
	// OnProfileChanged lets live auth contexts, on every instance, pick up the new role or counter.
	OnProfileChanged ProfileChangedFunc
}

// UserAdminService lets administrators manage roles, counters and accounts.
type UserAdminService struct {
	profiles core.ProfileRepository
	logs     core.UsageLogRepository
	logger   *slog.Logger
	changed  ProfileChangedFunc
}

// NewUserAdminService constructs a UserAdminService. It panics when a repository is nil.
func NewUserAdminService(opts UserAdminServiceOptions) *UserAdminService {
	if opts.Profiles == nil || opts.UsageLogs == nil {
		panic("Profiles and UsageLogs repositories are required")
	}
	logger := opts.Config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	changed := opts.Config.OnProfileChanged
	if changed == nil {
		changed = func(context.Context, string) {}
	}
	return &UserAdminService{
		profiles: opts.Profiles,
		logs:     opts.UsageLogs,
		logger:   logger.With("component", "user_admin"),
		changed:  changed,
	}
}

// List returns a page of user profiles.
func (s *UserAdminService) List(ctx context.Context, limit, offset int) ([]*domainauth.Profile, error) {
	users, err := s.profiles.List(ctx, clampLimit(limit, defaultUserListLimit, maxUserListLimit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetRole changes a user's role.
func (s *UserAdminService) SetRole(ctx context.Context, actor *domainauth.Profile, userID string, role domainauth.Role) (*domainauth.Profile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.ValidationField("role", "role must be admin or user")
	}
	p, err := s.profiles.SetRole(ctx, userID, role)
	if err != nil {
		return nil, fmt.Errorf("set role: %w", err)
	}
	s.after(ctx, model.ActionRoleChanged, actor.ID, userID)
	return p, nil
}

// ResetCounter sets a user's petition counter back to zero.
func (s *UserAdminService) ResetCounter(ctx context.Context, actor *domainauth.Profile, userID string) (*domainauth.Profile, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	p, err := s.profiles.ResetPetitions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reset petitions: %w", err)
	}
	s.after(ctx, model.ActionCounterReset, actor.ID, userID)
	return p, nil
}

// Delete removes a user, their cases and the cases' results. Administrators cannot delete themselves.
func (s *UserAdminService) Delete(ctx context.Context, actor *domainauth.Profile, userID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if actor.ID == userID {
		return apperrors.Forbiddenf("administrators cannot delete their own account")
	}
	if err := s.profiles.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.after(ctx, model.ActionUserDeleted, actor.ID, userID)
	return nil
}

// after records the action against the target user and notifies live sessions.
func (s *UserAdminService) after(ctx context.Context, action model.UsageAction, actorID, userID string) {
	s.logger.InfoContext(ctx, "user updated", "action", action, "actor_id", actorID, "user_id", userID)
	if err := s.logs.Create(ctx, model.CreateUsageLogRequest{Action: action, UserID: userID}); err != nil {
		s.logger.WarnContext(ctx, "failed to write usage log", "action", action, "error", err)
	}
	s.changed(ctx, userID)
}

func requireAdmin(actor *domainauth.Profile) error {
	if actor == nil || !actor.IsAdmin() {
		return apperrors.Forbiddenf("administrator role required")
	}
	return nil
}
