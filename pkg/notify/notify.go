// Package notify posts best-effort side-channel notifications to an
// experiment's issue reference.
package notify

import "context"

// Notifier posts message to the tracker referenced by issueRef. Callers
// treat failures as best-effort: a notification failure must never undo
// the state transition that triggered it.
type Notifier interface {
	Notify(ctx context.Context, issueRef, message string) error
}
