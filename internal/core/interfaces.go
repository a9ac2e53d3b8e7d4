package core

import (
	"context"

	domainauth "github.com/tribunal-ia/portal/internal/domain/auth"
	"github.com/tribunal-ia/portal/internal/domain/model"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// Services depend on these interfaces, not on the Postgres implementations in internal/data.

// ProfileRepository defines data operations on the users table.
// GetByID returns *domainauth.ProfileLookupError with NotFound set when no row exists;
// Create returns *domainauth.ProfileWriteError with Conflict set on a duplicate id.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*domainauth.Profile, error)
	Create(ctx context.Context, p domainauth.Profile) (*domainauth.Profile, error)
	List(ctx context.Context, limit, offset int) ([]*domainauth.Profile, error)
	SetRole(ctx context.Context, id string, role domainauth.Role) (*domainauth.Profile, error)
	IncrementPetitions(ctx context.Context, id string) (*domainauth.Profile, error)
	ResetPetitions(ctx context.Context, id string) (*domainauth.Profile, error)
	// Delete removes the profile after its cases and their results.
	Delete(ctx context.Context, id string) error
}

// CaseRepository defines data operations on cases and the workflow results attached to them.
type CaseRepository interface {
	Create(ctx context.Context, req model.CreateCaseRequest) (*model.Case, error)
	GetByCaseID(ctx context.Context, caseID string) (*model.Case, error)
	List(ctx context.Context, opts model.CasesListOptions) ([]*model.Case, error)
	Detail(ctx context.Context, caseID string) (*model.CaseDetail, error)
	// Delete removes the case after its dependent results.
	Delete(ctx context.Context, caseID string) error
}

// SettingsRepository reads and writes the single settings row.
type SettingsRepository interface {
	// Get returns model.DefaultSettings when no row exists.
	Get(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error)
}

// UsageLogRepository appends and lists usage log entries.
type UsageLogRepository interface {
	Create(ctx context.Context, req model.CreateUsageLogRequest) error
	List(ctx context.Context, opts model.UsageLogsListOptions) ([]*model.UsageLog, error)
}

// ChangeWaiter blocks until the next change notification on table.
type ChangeWaiter interface {
	WaitForChange(ctx context.Context, table string) (model.ChangeEvent, error)
}
