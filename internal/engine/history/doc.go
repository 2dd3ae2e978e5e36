// Package history provides undo/redo over a single text buffer as an
// ordered list of snapshots plus a cursor.
//
// # Snapshots
//
// A Snapshot is an immutable text value together with where it came from
// (the seed, a typing burst, or an external rewrite) and when it was
// recorded. The History holds snapshots[0..n) and a cursor; the snapshot at
// the cursor is the committed current text.
//
// # Transitions
//
// Every mutation is one of:
//
//   - TextChanged: the visible text changes immediately, but the snapshot is
//     committed only after a quiet window with no further typing. Each new
//     call replaces the pending commit, so one burst yields one snapshot
//     holding the burst's last text.
//   - ExternalRewrite: cancels any pending commit and commits at once.
//     Typing that follows starts a new burst.
//   - Undo / Redo: move the cursor by one, clamped to the ends. They cancel
//     any pending commit and never append.
//
// Committing at the cursor discards every snapshot after it.
//
//	h := history.New("graph TD", history.WithScheduler(sched))
//	h.TextChanged("graph TD\n  A-->B")
//	h.ExternalRewrite(generated)
//	h.Undo()
//
// # Scheduling
//
// The quiet window runs on an injected schedule.Scheduler. At most one
// callback is pending per History, and a callback that loses a race with a
// cancellation is ignored.
package history
