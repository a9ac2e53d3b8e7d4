package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/tribunal-ia/portal/internal/domain/model"
)

// ChangeChannelPrefix is prepended to a table name to form its LISTEN channel.
const ChangeChannelPrefix = "portal_changes_"

// ErrUnwatchedTable is returned when waiting on a table without a change trigger.
var ErrUnwatchedTable = errors.New("table has no change notifications")

// ChangeWaiter blocks on Postgres LISTEN for row changes emitted by the portal_notify_change trigger.
type ChangeWaiter struct {
	DB *sql.DB
}

// NewChangeWaiter creates a ChangeWaiter.
func NewChangeWaiter(db *sql.DB) *ChangeWaiter {
	return &ChangeWaiter{DB: db}
}

// WaitForChange waits for the next notification on table and decodes its payload.
// Each call holds one pooled connection for its duration.
func (w *ChangeWaiter) WaitForChange(ctx context.Context, table string) (model.ChangeEvent, error) {
	if !slices.Contains(model.WatchedTables, table) {
		return model.ChangeEvent{}, fmt.Errorf("%w: %s", ErrUnwatchedTable, table)
	}

	conn, err := w.DB.Conn(ctx)
	if err != nil {
		return model.ChangeEvent{}, fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	channel := ChangeChannelPrefix + table
	quoted := pgx.Identifier{channel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return model.ChangeEvent{}, fmt.Errorf("listen %s: %w", channel, execErr)
	}
	defer func() {
		// Leave the pooled connection clean even when ctx is already done.
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	var ev model.ChangeEvent
	err = conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		n, waitErr := sc.Conn().WaitForNotification(ctx)
		if waitErr != nil {
			return waitErr
		}
		return decodeChange(n.Payload, table, &ev)
	})
	return ev, err
}

func decodeChange(payload, table string, ev *model.ChangeEvent) error {
	if err := json.Unmarshal([]byte(payload), ev); err != nil {
		return fmt.Errorf("decode change payload: %w", err)
	}
	if ev.Table == "" {
		ev.Table = table
	}
	return nil
}
