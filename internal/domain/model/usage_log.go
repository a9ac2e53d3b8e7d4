package model

import "time"

// UsageAction names an auditable portal action.
type UsageAction string

const (
	ActionPetitionSubmitted UsageAction = "petition_submitted"
	ActionWebhookFailed     UsageAction = "webhook_failed"
	ActionRoleChanged       UsageAction = "role_changed"
	ActionCounterReset      UsageAction = "counter_reset"
	ActionUserDeleted       UsageAction = "user_deleted"
	ActionCaseDeleted       UsageAction = "case_deleted"
	ActionSettingsUpdated   UsageAction = "settings_updated"
)

// UsageLog is one row of the admin-facing activity log.
type UsageLog struct {
	ID         string      `json:"id"                db:"id"`
	Action     UsageAction `json:"action"            db:"action"`
	CaseID     *string     `json:"case_id,omitempty" db:"case_id"`
	UserID     *string     `json:"user_id,omitempty" db:"user_id"`
	OccurredAt time.Time   `json:"occurred_at"       db:"occurred_at"`
}

// CreateUsageLogRequest represents parameters to append a UsageLog.
type CreateUsageLogRequest struct {
	Action UsageAction
	CaseID string
	UserID string
}

// UsageLogsListOptions controls paging and filtering for listing usage logs.
type UsageLogsListOptions struct {
	Limit  int
	Offset int
	Action *UsageAction
}
