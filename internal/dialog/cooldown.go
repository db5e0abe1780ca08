package dialog

import "time"

// ShouldSuppress decides whether a queue transition starts a cool-down.
//
// It reports true only when all of these hold:
//  1. cooldown is positive
//  2. prev had a front entry
//  3. next has a front entry
//  4. the new front is a different entry (pointer) with a different id
//
// First-ever dialogs, emptied queues and in-place updates of the current
// front therefore never hide the slot.
func ShouldSuppress(cooldown time.Duration, prev, next []*Entry) bool {
	if cooldown <= 0 {
		return false
	}
	if len(prev) == 0 || len(next) == 0 {
		return false
	}
	oldFront, newFront := prev[0], next[0]
	return oldFront != newFront && oldFront.ID != newFront.ID
}

// suppressLocked hides the slot and (re)starts the single release timer.
// A newer trigger stops the outstanding timer; the sequence number fences
// off a callback that already fired but has not yet taken the lock.
// Callers must hold r.mu.
func (r *Registry) suppressLocked() {
	r.suppressed = true
	if r.release != nil {
		r.release.Stop()
	}
	r.releaseSeq++
	seq := r.releaseSeq
	r.release = r.clock.AfterFunc(r.cooldown, func() {
		r.releaseSuppression(seq)
	})
}

// releaseSuppression ends the cool-down window armed with sequence seq.
func (r *Registry) releaseSuppression(seq uint64) {
	r.mu.Lock()
	if r.closed || seq != r.releaseSeq || !r.suppressed {
		r.mu.Unlock()
		return
	}
	r.suppressed = false
	r.release = nil
	change := r.changeLocked(OpReleased, "", nil)
	listeners := r.listenersLocked()
	r.mu.Unlock()

	r.logger.Debug("dialog cool-down released", "pending", change.View.Pending)
	notify(listeners, change)
}
