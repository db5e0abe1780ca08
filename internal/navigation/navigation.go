// Package navigation tracks the dashboard's current route and issues
// navigation requests on behalf of dialog producers.
//
// The dashboard reports its route whenever the user moves; producers read
// it to decide whether closing a dialog should also leave an
// instrument-scoped view. Requests are delivered to subscribers (the
// WebSocket hub) which forward them to the dashboard.
package navigation

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ErrInvalidRoute is returned for routes that are not absolute paths.
var ErrInvalidRoute = errors.New("navigation: invalid route")

// Root is the dashboard's home route.
const Root = "/"

// RequestKind distinguishes absolute navigation from navigate-up.
type RequestKind string

// Navigation request kinds.
const (
	KindNavigate RequestKind = "navigate"
	KindUp       RequestKind = "up"
)

// Request is one navigation instruction for the dashboard.
type Request struct {
	Kind RequestKind `json:"kind"`
	From string      `json:"from"`
	To   string      `json:"to"`
}

// Tracker holds the current route.
//
// Thread Safety: all methods are safe for concurrent use. Subscribers are
// called outside the lock, in registration order.
type Tracker struct {
	mu        sync.Mutex
	current   string
	listeners []listener
	nextID    uint64
}

type listener struct {
	id uint64
	fn func(Request)
}

// NewTracker creates a tracker positioned at Root.
func NewTracker() *Tracker {
	return &Tracker{current: Root}
}

// Current returns the last known route.
func (t *Tracker) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// SetCurrent records the route the dashboard reports. It does not emit a
// request; the dashboard is already there.
func (t *Tracker) SetCurrent(route string) error {
	clean, err := Clean(route)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.current = clean
	t.mu.Unlock()
	return nil
}

// Navigate asks the dashboard to go to an absolute route.
func (t *Tracker) Navigate(route string) error {
	clean, err := Clean(route)
	if err != nil {
		return err
	}

	t.mu.Lock()
	req := Request{Kind: KindNavigate, From: t.current, To: clean}
	t.current = clean
	fns := t.listenersLocked()
	t.mu.Unlock()

	emit(fns, req)
	return nil
}

// Up navigates one level up from the current route. It reports false, and
// does nothing, when already at Root.
func (t *Tracker) Up() bool {
	return t.UpIf(func(string) bool { return true })
}

// UpIf navigates one level up only if match accepts the current route.
// The check and the move happen atomically with respect to SetCurrent.
func (t *Tracker) UpIf(match func(current string) bool) bool {
	t.mu.Lock()
	from := t.current
	if from == Root || !match(from) {
		t.mu.Unlock()
		return false
	}
	req := Request{Kind: KindUp, From: from, To: Parent(from)}
	t.current = req.To
	fns := t.listenersLocked()
	t.mu.Unlock()

	emit(fns, req)
	return true
}

// Subscribe registers fn for navigation requests.
func (t *Tracker) Subscribe(fn func(Request)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener{id: id, fn: fn})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}

func (t *Tracker) listenersLocked() []func(Request) {
	fns := make([]func(Request), len(t.listeners))
	for i, l := range t.listeners {
		fns[i] = l.fn
	}
	return fns
}

func emit(fns []func(Request), req Request) {
	for _, fn := range fns {
		fn(req)
	}
}

// Clean normalises an absolute route: duplicate and trailing slashes are
// dropped, "." and ".." elements resolved.
func Clean(route string) (string, error) {
	if !strings.HasPrefix(route, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoute, route)
	}
	return path.Clean(route), nil
}

// Parent returns the route one level above route.
//
//	Parent("/instruments/5/maintenance") == "/instruments/5"
//	Parent("/instruments") == "/"
func Parent(route string) string {
	if route == Root || route == "" {
		return Root
	}
	return path.Dir(path.Clean(route))
}

// InstrumentRoute builds the route of one instrument view.
func InstrumentRoute(instrumentID, view string) string {
	return "/instruments/" + instrumentID + "/" + view
}

// instrumentRoutes matches /instruments/{instrumentID}/{view} using chi's
// tree so route parsing is the same as the API's.
var instrumentRoutes = func() *chi.Mux {
	m := chi.NewRouter()
	m.Get("/instruments/{instrumentID}/{view}", func(http.ResponseWriter, *http.Request) {})
	return m
}()

// ParseInstrumentRoute extracts the instrument id and view from an
// instrument-scoped route.
func ParseInstrumentRoute(route string) (instrumentID, view string, ok bool) {
	clean, err := Clean(route)
	if err != nil {
		return "", "", false
	}
	rctx := chi.NewRouteContext()
	if !instrumentRoutes.Match(rctx, http.MethodGet, clean) {
		return "", "", false
	}
	return rctx.URLParam("instrumentID"), rctx.URLParam("view"), true
}

// MatchInstrumentRoute reports whether route is one of the given views of
// instrumentID, e.g. MatchInstrumentRoute("/instruments/5/maintenance",
// "5", "maintenance", "diagnostics") is true.
func MatchInstrumentRoute(route, instrumentID string, views ...string) bool {
	id, view, ok := ParseInstrumentRoute(route)
	if !ok || id != instrumentID {
		return false
	}
	for _, v := range views {
		if v == view {
			return true
		}
	}
	return false
}
