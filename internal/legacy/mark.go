package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"social-go/internal/treestore"
)

// MigrationPath holds the run counter written by Mark.
const MigrationPath = "meta/migration"

// MigrationState is the node stored at MigrationPath.
type MigrationState struct {
	Runs    int   `json:"runs"`
	LastRun int64 `json:"lastRun"`
}

// Mark records a finished import in the source tree: an admin log entry with
// the report, and a run counter bumped with a conditional write.
func Mark(ctx context.Context, client *treestore.Client, report *Report, at time.Time) error {
	entry := map[string]any{
		"action":    "migrated_to_sql",
		"user":      "importer",
		"details":   report,
		"timestamp": at.UnixMilli(),
	}
	if _, err := client.Push(ctx, "adminLogs", entry); err != nil {
		return fmt.Errorf("mark migration: %w", err)
	}

	err := client.Update(ctx, MigrationPath, 0, func(current json.RawMessage) (any, error) {
		var state MigrationState
		if len(current) > 0 {
			if err := json.Unmarshal(current, &state); err != nil {
				return nil, err
			}
		}
		state.Runs++
		state.LastRun = at.UnixMilli()
		return state, nil
	})
	if err != nil {
		return fmt.Errorf("mark migration: %w", err)
	}
	return nil
}
