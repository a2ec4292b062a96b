package watcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	clienttesting "k8s.io/client-go/testing"

	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/throttle"
	"github.com/dgunzy/flux9s/internal/transport"
)

func TestSubscribe_IsIdempotent(t *testing.T) {
	st := store.New()
	p := New(nil, st, testr.New(t), throttle.Disabled())

	kind, _ := registry.ByAlias("Kustomization")
	// Pre-seed the pool with a subscription for (kind, scope); a Subscribe
	// call with equal arguments must return that same Subscription rather
	// than starting a new watch.
	p.mu.Lock()
	key := subKey{kind.Name, ScopeSelector{Namespace: "flux-system"}}
	p.subs[key] = &entry{sub: &Subscription{}}
	existing := p.subs[key].sub
	p.mu.Unlock()

	sub := p.Subscribe(context.Background(), kind, ScopeSelector{Namespace: "flux-system"})
	assert.Same(t, existing, sub)
}

func TestBackoff_CapsAtThirtySeconds(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := backoff(attempt)
		assert.LessOrEqual(t, d, 36*time.Second)
		assert.Greater(t, d, time.Duration(0))
	}
}

func TestUnsubscribeAllExcept_ClosesNonMatching(t *testing.T) {
	st := store.New()
	p := New(nil, st, testr.New(t), throttle.Disabled())

	closed := false
	ctx, cancel := context.WithCancel(context.Background())
	_ = ctx
	key := subKey{"HelmRelease", ScopeSelector{Namespace: "flux-system"}}
	p.subs[key] = &entry{sub: &Subscription{}, cancel: func() { closed = true; cancel() }}

	p.UnsubscribeAllExcept(map[string]bool{"Kustomization": true}, ScopeSelector{Namespace: "flux-system"})
	assert.True(t, closed)
	assert.Empty(t, p.subs)
}

// TestRun_TerminatesOnCRDAbsent covers spec §8's boundary behavior: "A
// kind whose CRD is absent: its watcher terminates silently after one log
// line." Every list call returns a NotFound, so Transport.DynamicAPI's
// version probe fails on each of Kustomization's declared versions and
// surfaces that NotFound, and run must return (closing done) without ever
// sending an event.
func TestRun_TerminatesOnCRDAbsent(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "kustomize.toolkit.fluxcd.io", Version: "v1", Resource: "kustomizations"}
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{gvr: "KustomizationList"}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds)
	client.PrependReactor("list", "kustomizations", func(clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewNotFound(schema.GroupResource{Group: gvr.Group, Resource: gvr.Resource}, "")
	})

	tr := transport.NewWithClient(client)
	st := store.New()
	p := New(tr, st, testr.New(t), throttle.Disabled())
	kind, _ := registry.ByAlias("Kustomization")

	out := make(chan model.WatchEvent, 8)
	done := make(chan struct{})

	finished := make(chan struct{})
	go func() {
		p.run(context.Background(), kind, ScopeSelector{Namespace: "flux-system"}, out, done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not terminate on CRD-absent within timeout")
	}

	select {
	case <-done:
	default:
		t.Fatal("run must close done on terminal return")
	}
	select {
	case ev := <-out:
		t.Fatalf("expected no events on CRD-absent termination, got %v", ev)
	default:
	}
}

// TestRun_ReconnectsAfterTransientError covers the other half of spec
// §4.3 step 3: a non-NotFound error (simulated here as a generic server
// error on the first list call) backs off and retries rather than
// terminating, and a subsequent successful cycle resumes normal delivery
// (observed via the Resynced event the second runOnce emits).
func TestRun_ReconnectsAfterTransientError(t *testing.T) {
	gvr := schema.GroupVersionResource{Group: "kustomize.toolkit.fluxcd.io", Version: "v1", Resource: "kustomizations"}
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{gvr: "KustomizationList"}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds)

	var calls atomic.Int32
	client.PrependReactor("list", "kustomizations", func(clienttesting.Action) (bool, runtime.Object, error) {
		if calls.Add(1) == 1 {
			return true, nil, apierrors.NewServerTimeout(schema.GroupResource{Group: gvr.Group, Resource: gvr.Resource}, "list", 1)
		}
		return false, nil, nil
	})

	tr := transport.NewWithClient(client)
	st := store.New()
	p := New(tr, st, testr.New(t), throttle.Disabled())
	kind, _ := registry.ByAlias("Kustomization")

	out := make(chan model.WatchEvent, 8)
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	finished := make(chan struct{})
	go func() {
		p.run(ctx, kind, ScopeSelector{Namespace: "flux-system"}, out, done)
		close(finished)
	}()

	var sawResync bool
	deadline := time.After(10 * time.Second)
	for !sawResync {
		select {
		case ev := <-out:
			if ev.Type == model.EventResynced {
				sawResync = true
			}
		case <-deadline:
			t.Fatal("never observed a Resynced event after the transient error, reconnect did not happen")
		}
	}
	require.GreaterOrEqual(t, int(calls.Load()), 2, "expected at least one retried list call after the transient error")

	cancel()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not exit promptly after context cancellation")
	}
}
