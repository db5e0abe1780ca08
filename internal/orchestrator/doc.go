// Package orchestrator owns one dialog orchestration scope: the dialog
// registry, the producers watching each instrument, and the user actions
// that close dialogs.
//
// A Scope lives as long as the dashboard session it serves. Closing it
// unbinds every producer and tears the registry down; queued dialogs are
// not persisted. Manager swaps scopes when feature toggles are reloaded,
// carrying the watched instruments and registry listeners across.
package orchestrator
