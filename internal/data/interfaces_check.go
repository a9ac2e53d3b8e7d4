package data

import "github.com/tribunal-ia/portal/internal/core"

var (
	_ core.ProfileRepository  = (*ProfileRepo)(nil)
	_ core.CaseRepository     = (*CaseRepo)(nil)
	_ core.SettingsRepository = (*SettingsRepo)(nil)
	_ core.UsageLogRepository = (*UsageLogRepo)(nil)
	_ core.ChangeWaiter       = (*ChangeWaiter)(nil)
	_ core.CacheRepository    = (*RedisCacheRepo)(nil)
)
