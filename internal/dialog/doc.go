// Package dialog owns the single on-screen dialog slot shared by every
// instrument workflow on a lab panel.
//
// Many independent producers (maintenance, QC, waiting-for-input and
// sample reminders) compete for one slot. The Registry keeps them in an
// ordered queue and guarantees that at most one dialog is visible.
//
// # Architecture
//
//	producers ──Upsert/Remove──▶ Registry ──▶ cool-down decision
//	                                │                │
//	                                ▼                ▼
//	                         Visibility gate ◀── suppression timer
//	                                │
//	                                ▼
//	                       listeners (WebSocket hub, history)
//
// # Rules
//
//   - Ids are unique. Upsert with a known id replaces the entry in place;
//     a new id is appended to the end of the queue.
//   - The front of the queue is visible unless a cool-down is active.
//   - A cool-down starts only when a removal or insert changes the front
//     to a different dialog (different pointer and different id) while
//     both the old and new queues are non-empty.
//   - Only one cool-down window exists at a time; a new trigger restarts it.
//
// # Usage
//
//	reg := dialog.NewRegistry(dialog.Options{Cooldown: 500 * time.Millisecond})
//	defer reg.Close()
//
//	reg.Upsert(dialog.Entry{ID: dialog.Key("waiting", "5"), Payload: dialog.Payload{Title: "Load rack"}})
//	if e, ok := reg.Visible(); ok {
//	    render(e.Payload)
//	}
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Listeners are invoked
// outside the registry lock and may call back into the Registry.
package dialog
