// Package mocks provides mock implementations of the portal repository interfaces.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the repository interfaces
// in internal/core. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	profiles := mocks.NewMockProfileRepository(ctrl)
//	profiles.EXPECT().GetByID(gomock.Any(), "u-1").Return(profile, nil)
package mocks

// GetByID, Create, List, SetRole, IncrementPetitions, ResetPetitions, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=profile_repository_mock.go github.com/tribunal-ia/portal/internal/core ProfileRepository

// Create, GetByCaseID, List, Detail, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=case_repository_mock.go github.com/tribunal-ia/portal/internal/core CaseRepository

// Get, Save
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=settings_repository_mock.go github.com/tribunal-ia/portal/internal/core SettingsRepository

// Create, List
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=usage_log_repository_mock.go github.com/tribunal-ia/portal/internal/core UsageLogRepository

// WaitForChange
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=change_waiter_mock.go github.com/tribunal-ia/portal/internal/core ChangeWaiter
