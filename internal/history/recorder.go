package history

import (
	"context"
	"time"
)

// ManagerRecorder adapts a Store to internal/manager's Recorder interface,
// stamping wall-clock time at the call site so Store itself stays free of
// a hidden time.Now dependency.
type ManagerRecorder struct {
	store *Store
}

// NewManagerRecorder wraps store for use as a manager.Recorder.
func NewManagerRecorder(store *Store) *ManagerRecorder {
	return &ManagerRecorder{store: store}
}

// RecordActivation logs a project switching from previousRoot to root.
// previousRoot is empty on first activation.
func (r *ManagerRecorder) RecordActivation(ctx context.Context, root, previousRoot string) error {
	return r.store.Record(ctx, Entry{
		Event:        EventActivated,
		ProjectRoot:  root,
		PreviousRoot: previousRoot,
		OccurredAt:   time.Now().UTC(),
	})
}

// RecordDeactivation logs root's fleet being fully shut down.
func (r *ManagerRecorder) RecordDeactivation(ctx context.Context, root string) error {
	return r.store.Record(ctx, Entry{
		Event:       EventDeactivated,
		ProjectRoot: root,
		OccurredAt:  time.Now().UTC(),
	})
}
