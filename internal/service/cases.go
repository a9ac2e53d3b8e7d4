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
	defaultCaseListLimit = 50
	maxCaseListLimit     = 200
)

// CaseServiceOptions groups dependencies for CaseService.
type CaseServiceOptions struct {
	Cases     core.CaseRepository     // required
	UsageLogs core.UsageLogRepository // required
	Logger    *slog.Logger
}

// CaseService reads cases for their owners and administrators.
type CaseService struct {
	cases  core.CaseRepository
	logs   core.UsageLogRepository
	logger *slog.Logger
}

// NewCaseService constructs a CaseService. It panics when a repository is nil.
func NewCaseService(opts CaseServiceOptions) *CaseService {
	if opts.Cases == nil || opts.UsageLogs == nil {
		panic("Cases and UsageLogs repositories are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CaseService{cases: opts.Cases, logs: opts.UsageLogs, logger: logger.With("component", "cases")}
}

// History lists the viewer's own cases, newest first.
func (s *CaseService) History(ctx context.Context, viewer *domainauth.Profile, limit, offset int) ([]*model.Case, error) {
	if viewer == nil {
		return nil, apperrors.Forbiddenf("sign in to view cases")
	}
	id := viewer.ID
	cases, err := s.cases.List(ctx, model.CasesListOptions{
		Limit:  clampLimit(limit, defaultCaseListLimit, maxCaseListLimit),
		Offset: max(offset, 0),
		UserID: &id,
	})
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return cases, nil
}

// Detail returns a case with its workflow results. Cases owned by someone else are
// reported as not found unless the viewer is an administrator.
func (s *CaseService) Detail(ctx context.Context, viewer *domainauth.Profile, caseID string) (*model.CaseDetail, error) {
	if viewer == nil {
		return nil, apperrors.Forbiddenf("sign in to view cases")
	}
	d, err := s.cases.Detail(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", caseID, err)
	}
	if d.Case.UserID != viewer.ID && !viewer.IsAdmin() {
		return nil, apperrors.NotFoundf("case %s not found", caseID)
	}
	return d, nil
}

// AdminList lists every case, optionally narrowed by owner or status.
func (s *CaseService) AdminList(ctx context.Context, opts model.CasesListOptions) ([]*model.Case, error) {
	opts.Limit = clampLimit(opts.Limit, defaultCaseListLimit, maxCaseListLimit)
	opts.Offset = max(opts.Offset, 0)
	if opts.Status != nil && !opts.Status.Valid() {
		return nil, apperrors.ValidationField("status", "unknown case status")
	}
	cases, err := s.cases.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	return cases, nil
}

// Delete removes a case and its results and records who removed it.
func (s *CaseService) Delete(ctx context.Context, actor *domainauth.Profile, caseID string) error {
	if actor == nil || !actor.IsAdmin() {
		return apperrors.Forbiddenf("only administrators may delete cases")
	}
	if err := s.cases.Delete(ctx, caseID); err != nil {
		return fmt.Errorf("delete case %s: %w", caseID, err)
	}
	if err := s.logs.Create(ctx, model.CreateUsageLogRequest{
		Action: model.ActionCaseDeleted,
		CaseID: caseID,
		UserID: actor.ID,
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to write usage log", "action", model.ActionCaseDeleted, "error", err)
	}
	return nil
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
