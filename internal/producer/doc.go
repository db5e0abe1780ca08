// Package producer turns instrument events into dialog registry operations.
//
// Each producer follows one workflow for one instrument and owns a Machine:
//
//	Idle ──qualifying event──▶ Open ──progress / timer / user──▶ Closed
//	                            ▲                                  │
//	                            └──────── qualifying event ────────┘
//
// Opening upserts a dialog under a key derived from the workflow and the
// instrument id ("maintenance-result-5"), so repeated events replace the
// same entry. Closing removes it. Some workflows close themselves after
// the instrument has reported a target health state for a fixed delay;
// any other health state cancels that countdown.
//
// Producers ignore events for other instruments. Rebinding a producer to
// a different instrument drops its subscriptions and timer and starts over
// with a fresh Machine.
package producer
