// Package watcher maintains one long-lived watch loop per
// (ResourceKind, ScopeSelector) pair and converts the remote event stream
// into the canonical {Added|Modified|Deleted, Resynced} sequence the
// Resource Store expects. Grounded on the list-then-range-over-channel
// shape used throughout pkg/agent/state_scanner.go for dynamic-client
// consumption, generalized into a persistent reconnecting loop per
// spec §4.3.
package watcher

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/dgunzy/flux9s/internal/clierr"
	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/throttle"
	"github.com/dgunzy/flux9s/internal/transport"
)

// ScopeSelector mirrors transport.Scope but is the identity component of
// a subscription key (two subscriptions with equal ScopeSelector values
// are the same subscription, per spec §4.3's idempotent subscribe).
type ScopeSelector struct {
	Namespace string
	All       bool
}

func (s ScopeSelector) toTransport() transport.Scope {
	return transport.Scope{Namespace: s.Namespace, All: s.All}
}

type subKey struct {
	kind  string
	scope ScopeSelector
}

// Subscription is the handle returned by Subscribe; callers read from
// Events. The channel is never closed: its goroutine stops sending when
// cancelled by UnsubscribeAllExcept/UnsubscribeAll or when the
// subscription terminates permanently (CRD absent).
type Subscription struct {
	Events <-chan model.WatchEvent

	key    subKey
	cancel context.CancelFunc
}

// Pool maintains one active watch goroutine per (kind, scope).
type Pool struct {
	mu    sync.Mutex
	subs  map[subKey]*entry
	trans *transport.Transport
	st    *store.Store
	log   logr.Logger
	thr   throttle.Logger
}

type entry struct {
	sub     *Subscription
	events  chan model.WatchEvent
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an empty Pool bound to a Transport, a Store to apply events
// into, and an error-throttle Logger (throttle.Disabled() for --debug).
func New(trans *transport.Transport, st *store.Store, log logr.Logger, thr throttle.Logger) *Pool {
	return &Pool{
		subs:  make(map[subKey]*entry),
		trans: trans,
		st:    st,
		log:   log,
		thr:   thr,
	}
}

// Subscribe is idempotent: calling twice with equal (kind, scope) yields
// the same underlying watch goroutine.
func (p *Pool) Subscribe(ctx context.Context, kind registry.Kind, scope ScopeSelector) *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := subKey{kind.Name, scope}
	if e, ok := p.subs[key]; ok {
		return e.sub
	}

	events := make(chan model.WatchEvent, 64)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	sub := &Subscription{Events: events, key: key, cancel: cancel}
	e := &entry{sub: sub, events: events, cancel: cancel, done: done}
	p.subs[key] = e

	go p.run(runCtx, kind, scope, events, done)
	return sub
}

// UnsubscribeAllExcept cancels every active subscription whose kind is
// not in keep, used on namespace/context switch per spec §4.7.
func (p *Pool) UnsubscribeAllExcept(keep map[string]bool, scope ScopeSelector) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, e := range p.subs {
		if key.scope != scope {
			continue
		}
		if keep[key.kind] {
			continue
		}
		e.cancel()
		delete(p.subs, key)
	}
}

// UnsubscribeAll cancels every active subscription, used on full context
// switch.
func (p *Pool) UnsubscribeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, e := range p.subs {
		e.cancel()
		delete(p.subs, key)
	}
}

func (p *Pool) forget(key subKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, key)
}

// run is the per-subscription loop: step 1 acquires a fresh snapshot and
// emits Added then Resynced; step 2 streams incremental events; step 3
// on error either terminates (NotFound) or backs off and restarts; step 4
// exits cleanly on cancellation.
func (p *Pool) run(ctx context.Context, kind registry.Kind, scope ScopeSelector, out chan model.WatchEvent, done chan struct{}) {
	defer close(done)
	defer p.forget(subKey{kind.Name, scope})

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := p.runOnce(ctx, kind, scope, out)
		if err == nil {
			// watch channel closed by the server with no error; treat as
			// a transient disconnect and reconnect.
			err = fmt.Errorf("watch channel closed")
		}
		if ctx.Err() != nil {
			return
		}

		if clierr.Classify(err) == clierr.NotFound {
			if p.thr.ShouldLog("watch-terminal", kind.Name) {
				p.log.Info("CRD absent, terminating subscription permanently", "kind", kind.Name, "scope", scope)
			}
			return
		}

		if p.thr.ShouldLog("watch-error", kind.Name) {
			p.log.Error(err, "watch error, reconnecting", "kind", kind.Name, "scope", scope, "attempt", attempt)
		}

		delay := backoff(attempt)
		attempt++
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff returns min(2^n * 1s, 30s) with up to 20% jitter.
func backoff(attempt int) time.Duration {
	base := time.Second << attempt
	if base > 30*time.Second || base <= 0 {
		base = 30 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(base) / 5))
	return base + jitter
}

// runOnce performs one list+watch cycle: list (the "initial snapshot"),
// emit Added for each object then Resynced, then stream incremental
// events until the watch ends or ctx is cancelled.
func (p *Pool) runOnce(ctx context.Context, kind registry.Kind, scope ScopeSelector, out chan model.WatchEvent) error {
	handle, err := p.trans.DynamicAPI(ctx, kind, scope.toTransport())
	if err != nil {
		return err
	}

	gen := p.st.BeginResync(kind.Name, resyncNamespace(scope))

	list, err := handle.List(ctx)
	if err != nil {
		return err
	}
	for i := range list.Items {
		obj := list.Items[i]
		ev := model.WatchEvent{Type: model.EventAdded, Kind: kind.Name, Object: &obj}
		p.st.Apply(ev, gen)
		send(ctx, out, ev)
	}
	p.st.EndResync(kind.Name, resyncNamespace(scope), gen)
	send(ctx, out, model.WatchEvent{Type: model.EventResynced, Kind: kind.Name})

	w, err := handle.Watch(ctx, list.GetResourceVersion())
	if err != nil {
		return err
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case rawEvent, ok := <-w.ResultChan():
			if !ok {
				return nil
			}
			ev, ok := toWatchEvent(kind.Name, rawEvent)
			if !ok {
				continue
			}
			p.st.Apply(ev, gen)
			send(ctx, out, ev)
		}
	}
}

func resyncNamespace(scope ScopeSelector) string {
	if scope.All {
		return ""
	}
	return scope.Namespace
}

func toWatchEvent(kind string, e watch.Event) (model.WatchEvent, bool) {
	obj, ok := e.Object.(*unstructured.Unstructured)
	if !ok {
		return model.WatchEvent{}, false
	}
	switch e.Type {
	case watch.Added:
		return model.WatchEvent{Type: model.EventAdded, Kind: kind, Object: obj}, true
	case watch.Modified:
		return model.WatchEvent{Type: model.EventModified, Kind: kind, Object: obj}, true
	case watch.Deleted:
		return model.WatchEvent{Type: model.EventDeleted, Kind: kind, Object: obj}, true
	default:
		return model.WatchEvent{}, false
	}
}

func send(ctx context.Context, out chan model.WatchEvent, ev model.WatchEvent) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
