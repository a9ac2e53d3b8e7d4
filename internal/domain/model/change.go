package model

// ChangeOp is the kind of row mutation reported by the change feed.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// ChangeEvent is the payload emitted by the database triggers on watched tables.
type ChangeEvent struct {
	Table  string   `json:"table"`
	Op     ChangeOp `json:"op"`
	RowID  string   `json:"row_id"`
	UserID string   `json:"user_id,omitempty"`
}

// ChangeFilter narrows a change subscription to matching rows. Empty fields match anything.
type ChangeFilter struct {
	RowID  string
	UserID string
}

// Matches reports whether ev passes the filter.
func (f ChangeFilter) Matches(ev ChangeEvent) bool {
	if f.RowID != "" && f.RowID != ev.RowID {
		return false
	}
	if f.UserID != "" && f.UserID != ev.UserID {
		return false
	}
	return true
}

// WatchedTables lists the tables with change triggers installed.
var WatchedTables = []string{
	"users",
	"cases",
	"case_analyses",
	"case_interactions",
	"case_sentences",
	"case_reports",
	"settings",
}
