package dialog

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/nerrad567/labpanel-core/internal/clock"
)

func entry(id, title string) Entry {
	return Entry{ID: id, Payload: Payload{Title: title}}
}

func newTestRegistry(cooldown time.Duration) (*Registry, *clock.Fake) {
	fc := clock.NewFake()
	return NewRegistry(Options{Cooldown: cooldown, Clock: fc}), fc
}

func visibleID(t *testing.T, r *Registry) string {
	t.Helper()
	e, ok := r.Visible()
	if !ok {
		return ""
	}
	return e.ID
}

func assertIDs(t *testing.T, r *Registry, want ...string) {
	t.Helper()
	got := r.Entries()
	if len(got) != len(want) {
		t.Fatalf("Entries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Entries() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_FIFO(t *testing.T) {
	r, _ := newTestRegistry(0)
	defer r.Close()

	r.Upsert(entry("A", "a"))
	r.Upsert(entry("B", "b"))
	r.Upsert(entry("C", "c"))

	if got := visibleID(t, r); got != "A" {
		t.Fatalf("front = %q, want A", got)
	}

	r.Remove("A")
	if got := visibleID(t, r); got != "B" {
		t.Fatalf("front after Remove(A) = %q, want B", got)
	}
	assertIDs(t, r, "B", "C")
}

func TestRegistry_UpsertReplacesInPlace(t *testing.T) {
	r, _ := newTestRegistry(0)
	defer r.Close()

	r.Upsert(entry("A", "a"))
	r.Upsert(entry("B", "old"))
	r.Upsert(entry("C", "c"))
	r.Upsert(entry("B", "new"))

	assertIDs(t, r, "A", "B", "C")

	got, ok := r.Get("B")
	if !ok {
		t.Fatal("Get(B) not found")
	}
	if got.Payload.Title != "new" {
		t.Errorf("B title = %q, want %q", got.Payload.Title, "new")
	}
}

func TestRegistry_UpsertMatchesFreshRegistry(t *testing.T) {
	replaced, _ := newTestRegistry(0)
	defer replaced.Close()
	fresh, _ := newTestRegistry(0)
	defer fresh.Close()

	replaced.Upsert(entry("A", "first"))
	replaced.Upsert(entry("A", "second"))
	fresh.Upsert(entry("A", "second"))

	a, _ := replaced.Visible()
	b, _ := fresh.Visible()
	if a.ID != b.ID || a.Payload.Title != b.Payload.Title {
		t.Errorf("replaced front = %+v, fresh front = %+v", a, b)
	}
	if len(replaced.Entries()) != 1 {
		t.Errorf("Entries() = %v, want a single entry", replaced.Entries())
	}
}

func TestRegistry_GeneratesID(t *testing.T) {
	r, _ := newTestRegistry(0)
	defer r.Close()

	id := r.Upsert(Entry{Payload: Payload{Title: "untracked"}})
	if id == "" {
		t.Fatal("Upsert() returned empty id")
	}
	if !r.Has(id) {
		t.Errorf("Has(%q) = false after upsert", id)
	}

	other := r.Upsert(Entry{Payload: Payload{Title: "another"}})
	if other == id {
		t.Error("generated ids collide")
	}
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry(500 * time.Millisecond)
	defer r.Close()

	calls := 0
	r.Subscribe(func(Change) { calls++ })

	r.Upsert(entry("A", "a"))
	r.Remove("missing")

	if calls != 1 {
		t.Errorf("listener calls = %d, want 1", calls)
	}
	if got := visibleID(t, r); got != "A" {
		t.Errorf("front = %q, want A", got)
	}
}

func TestRegistry_CooldownGatesNextFront(t *testing.T) {
	r, fc := newTestRegistry(500 * time.Millisecond)
	defer r.Close()

	r.Upsert(entry("m0", "first"))
	r.Upsert(entry("m1", "second"))
	if got := visibleID(t, r); got != "m0" {
		t.Fatalf("front = %q, want m0", got)
	}

	r.Remove("m0")
	if got := visibleID(t, r); got != "" {
		t.Fatalf("t=0: visible = %q, want nothing", got)
	}

	fc.Advance(499 * time.Millisecond)
	if got := visibleID(t, r); got != "" {
		t.Fatalf("t=499: visible = %q, want nothing", got)
	}

	fc.Advance(time.Millisecond)
	if got := visibleID(t, r); got != "m1" {
		t.Fatalf("t=500: visible = %q, want m1", got)
	}
}

func TestRegistry_NoCooldownCases(t *testing.T) {
	tests := []struct {
		name     string
		cooldown time.Duration
		run      func(r *Registry)
		want     string
	}{
		{
			name:     "first dialog",
			cooldown: time.Second,
			run: func(r *Registry) {
				r.Upsert(entry("A", "a"))
			},
			want: "A",
		},
		{
			name:     "in-place update of front",
			cooldown: time.Second,
			run: func(r *Registry) {
				r.Upsert(entry("A", "a"))
				r.Upsert(entry("A", "a2"))
			},
			want: "A",
		},
		{
			name:     "append behind front",
			cooldown: time.Second,
			run: func(r *Registry) {
				r.Upsert(entry("A", "a"))
				r.Upsert(entry("B", "b"))
			},
			want: "A",
		},
		{
			name:     "cool-down disabled",
			cooldown: 0,
			run: func(r *Registry) {
				r.Upsert(entry("A", "a"))
				r.Upsert(entry("B", "b"))
				r.Remove("A")
			},
			want: "B",
		},
		{
			name:     "queue emptied then refilled",
			cooldown: time.Second,
			run: func(r *Registry) {
				r.Upsert(entry("A", "a"))
				r.Remove("A")
				r.Upsert(entry("B", "b"))
			},
			want: "B",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRegistry(tt.cooldown)
			defer r.Close()

			tt.run(r)

			if r.Suppressed() {
				t.Error("Suppressed() = true, want false")
			}
			if got := visibleID(t, r); got != tt.want {
				t.Errorf("visible = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRegistry_CooldownRestartsOnRetrigger(t *testing.T) {
	r, fc := newTestRegistry(500 * time.Millisecond)
	defer r.Close()

	r.Upsert(entry("A", "a"))
	r.Upsert(entry("B", "b"))
	r.Upsert(entry("C", "c"))

	r.Remove("A") // window 1 starts at t=0
	fc.Advance(300 * time.Millisecond)
	r.Remove("B") // window restarts at t=300

	fc.Advance(300 * time.Millisecond) // t=600: first window would have ended
	if got := visibleID(t, r); got != "" {
		t.Fatalf("t=600: visible = %q, want nothing", got)
	}
	if fc.Pending() != 1 {
		t.Errorf("pending timers = %d, want 1", fc.Pending())
	}

	fc.Advance(200 * time.Millisecond) // t=800
	if got := visibleID(t, r); got != "C" {
		t.Fatalf("t=800: visible = %q, want C", got)
	}
}

func TestRegistry_StaleReleaseIgnored(t *testing.T) {
	r, _ := newTestRegistry(500 * time.Millisecond)
	defer r.Close()

	r.Upsert(entry("A", "a"))
	r.Upsert(entry("B", "b"))
	r.Upsert(entry("C", "c"))
	r.Remove("A")

	r.mu.Lock()
	stale := r.releaseSeq
	r.mu.Unlock()

	r.Remove("B")

	// A callback from the first window that lost the race must not unhide.
	r.releaseSuppression(stale)
	if !r.Suppressed() {
		t.Fatal("stale release lifted the current cool-down")
	}
}

func TestRegistry_Listeners(t *testing.T) {
	r, fc := newTestRegistry(100 * time.Millisecond)
	defer r.Close()

	var order []string
	var changes []Change
	r.Subscribe(func(c Change) {
		order = append(order, "first")
		changes = append(changes, c)
	})
	unsubscribe := r.Subscribe(func(Change) { order = append(order, "second") })

	r.Upsert(entry("A", "a"))
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("listener order = %v, want [first second]", order)
	}

	unsubscribe()
	r.Upsert(entry("B", "b"))
	r.Upsert(entry("B", "b2"))
	r.Remove("A")
	fc.Advance(100 * time.Millisecond)

	wantOps := []Op{OpInserted, OpInserted, OpReplaced, OpRemoved, OpReleased}
	if len(changes) != len(wantOps) {
		t.Fatalf("got %d changes, want %d", len(changes), len(wantOps))
	}
	for i, op := range wantOps {
		if changes[i].Op != op {
			t.Errorf("change[%d].Op = %q, want %q", i, changes[i].Op, op)
		}
		if i > 0 && changes[i].View.Version <= changes[i-1].View.Version {
			t.Errorf("change[%d] version %d not increasing", i, changes[i].View.Version)
		}
	}

	if replaced := changes[2]; replaced.Entry == nil || replaced.Entry.Payload.Title != "b2" {
		t.Errorf("replace entry = %+v, want title b2", replaced.Entry)
	}
	removed := changes[3]
	if removed.Entry == nil || removed.Entry.ID != "A" {
		t.Errorf("removal entry = %+v, want A", removed.Entry)
	}
	if !removed.View.Suppressed || removed.View.Visible != nil {
		t.Errorf("removal view = %+v, want suppressed with nothing visible", removed.View)
	}
	released := changes[4]
	if released.Entry != nil {
		t.Errorf("release entry = %+v, want nil", released.Entry)
	}
	if released.View.Visible == nil || released.View.Visible.ID != "B" {
		t.Errorf("release view = %+v, want B visible", released.View)
	}
}

func TestRegistry_ListenerMayMutate(t *testing.T) {
	r, _ := newTestRegistry(0)
	defer r.Close()

	r.Subscribe(func(c Change) {
		if c.Op == OpInserted && c.ID == "A" {
			r.Upsert(entry("follow-up", "f"))
		}
	})

	r.Upsert(entry("A", "a"))
	assertIDs(t, r, "A", "follow-up")
}

func TestRegistry_Close(t *testing.T) {
	r, fc := newTestRegistry(500 * time.Millisecond)

	calls := 0
	r.Subscribe(func(Change) { calls++ })

	r.Upsert(entry("A", "a"))
	r.Upsert(entry("B", "b"))
	r.Remove("A")
	r.Close()

	if fc.Pending() != 0 {
		t.Errorf("pending timers after Close = %d, want 0", fc.Pending())
	}

	r.Upsert(entry("C", "c"))
	if r.Has("C") {
		t.Error("Upsert after Close queued an entry")
	}
	if calls != 3 {
		t.Errorf("listener calls = %d, want 3", calls)
	}
	r.Close()
}

func TestRegistry_VersionBase(t *testing.T) {
	r := NewRegistry(Options{Clock: clock.NewFake(), VersionBase: 42})
	defer r.Close()

	if v := r.View().Version; v != 42 {
		t.Fatalf("empty registry version = %d, want 42", v)
	}
	r.Upsert(entry("A", "a"))
	if v := r.View().Version; v != 43 {
		t.Errorf("version after upsert = %d, want 43", v)
	}
}

func TestRegistry_AtMostOneVisible(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r, fc := newTestRegistry(50 * time.Millisecond)
	defer r.Close()

	for step := 0; step < 2000; step++ {
		id := "d" + strconv.Itoa(rng.Intn(8))
		switch rng.Intn(3) {
		case 0:
			r.Upsert(entry(id, "x"))
		case 1:
			r.Remove(id)
		default:
			fc.Advance(time.Duration(rng.Intn(80)) * time.Millisecond)
		}

		view := r.View()
		ids := r.Entries()
		seen := make(map[string]bool, len(ids))
		for _, v := range ids {
			if seen[v] {
				t.Fatalf("step %d: duplicate id %q in %v", step, v, ids)
			}
			seen[v] = true
		}

		switch {
		case view.Visible == nil:
			if !view.Suppressed && len(ids) > 0 {
				t.Fatalf("step %d: nothing visible but queue %v is not suppressed", step, ids)
			}
		default:
			if view.Suppressed {
				t.Fatalf("step %d: visible %q while suppressed", step, view.Visible.ID)
			}
			if view.Visible.ID != ids[0] {
				t.Fatalf("step %d: visible %q, front %q", step, view.Visible.ID, ids[0])
			}
		}
	}
}
