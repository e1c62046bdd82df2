package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchProvider Phase = iota
	SyncUser
	SyncFailed
	Complete
)

func (p Phase) String() string {
	switch p {
	case FetchProvider:
		return "fetch_provider"
	case SyncUser:
		return "sync_user"
	case SyncFailed:
		return "sync_failed"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func fetchProviderUpdate(step, total int, userID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchProvider,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Fetching provider data for %s...", userID),
	}
}

func syncedUserUpdate(step, total int, result UserSyncResult) ProgressUpdate {
	label := ""
	if result.Result != nil && result.Result.Mood != nil {
		label = string(result.Result.Mood.Label)
	}
	return ProgressUpdate{
		Phase:   SyncUser,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Synced %s (%s)", result.UserID, label),
		Data:    result,
	}
}

func syncFailedUpdate(step, total int, result UserSyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncFailed,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Failed to sync %s: %v", result.UserID, result.Error),
		Data:    result,
	}
}

func completeUpdate(result *BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    result.Total,
		Total:   result.Total,
		Message: fmt.Sprintf("Synced %d/%d users", result.Succeeded, result.Total),
		Data:    result,
	}
}
