// Package throttle implements the shared (category, kind) log-suppression
// map the Watcher Pool uses to avoid repeating the same error every event
// loop tick. The Operation Dispatcher does not use it: ops.Dispatch logs
// every failed operation. Built on golang.org/x/time/rate's
// Sometimes helper, which already implements "run at most once per
// interval" — the exact semantics spec §4.8 asks for — one instance per
// (category, kind) pair.
package throttle

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Window is the cooldown duration within which a repeated (category,
// kind) pair is suppressed.
const Window = 60 * time.Second

type key struct {
	category string
	kind     string
}

// Throttle tracks last-logged timestamps per (category, kind) pair via a
// rate.Sometimes per key. Zero value is not usable; use New.
type Throttle struct {
	mu sync.Mutex
	m  map[key]*rate.Sometimes
}

// New returns a ready-to-use Throttle.
func New() *Throttle {
	return &Throttle{m: make(map[key]*rate.Sometimes)}
}

// ShouldLog reports whether a (category, kind) pair may log now, and if
// so records the current time as its last-logged timestamp.
func (t *Throttle) ShouldLog(category, kind string) bool {
	k := key{category, kind}

	t.mu.Lock()
	s, ok := t.m[k]
	if !ok {
		s = &rate.Sometimes{Interval: Window}
		t.m[k] = s
	}
	t.mu.Unlock()

	var fired bool
	s.Do(func() { fired = true })
	return fired
}

// Reset clears every recorded timestamp; used by tests. The debug CLI
// flag does not reset a Throttle; it swaps in Disabled() instead.
func (t *Throttle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[key]*rate.Sometimes)
}

// Logger is the interface the Watcher Pool depends on, so the --debug
// flag can swap in an always-on implementation without an if/else at
// every call site.
type Logger interface {
	ShouldLog(category, kind string) bool
}

// disabled always permits logging; returned by Disabled for --debug.
type disabled struct{}

func (disabled) ShouldLog(string, string) bool { return true }

// Disabled returns a Logger that never throttles.
func Disabled() Logger { return disabled{} }

var _ Logger = (*Throttle)(nil)
