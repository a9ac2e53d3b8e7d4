package service

import (
	"context"
	"fmt"

	"github.com/tribunal-ia/portal/internal/core"
	"github.com/tribunal-ia/portal/internal/domain/model"
)

const (
	defaultUsageLogLimit = 100
	maxUsageLogLimit     = 1000
)

// UsageLogService lists the activity log for administrators.
type UsageLogService struct {
	repo core.UsageLogRepository
}

// NewUsageLogService constructs a UsageLogService.
func NewUsageLogService(repo core.UsageLogRepository) *UsageLogService {
	if repo == nil {
		panic("UsageLogRepository is required")
	}
	return &UsageLogService{repo: repo}
}

// List returns log entries, newest first.
func (s *UsageLogService) List(ctx context.Context, opts model.UsageLogsListOptions) ([]*model.UsageLog, error) {
	opts.Limit = clampLimit(opts.Limit, defaultUsageLogLimit, maxUsageLogLimit)
	opts.Offset = max(opts.Offset, 0)
	logs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list usage logs: %w", err)
	}
	return logs, nil
}
