package ui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/ops"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/transport"
	"github.com/dgunzy/flux9s/internal/watcher"
)

// View identifies a member of the visible-view stack.
type View int

const (
	ViewResourceList View = iota
	ViewDetail
	ViewYAML
	ViewTrace
	ViewHelp
	ViewConfirmation
	ViewSubmenu
)

// TickInterval is the periodic wake between input/result events, per
// spec §4.7.
const TickInterval = 250 * time.Millisecond

// Coordinator is the UI State Coordinator. It has no rendering
// dependency: Snapshot() returns plain data, and HandleKey/HandleCommand
// mutate state the same way regardless of what widget library draws it.
type Coordinator struct {
	mu sync.Mutex

	st    *store.Store
	pool  *watcher.Pool
	trans *transport.Transport
	ops   *ops.Registry
	log   logr.Logger

	readOnly bool

	namespace    string // "" or "all" means all namespaces
	kindFilter   map[string]bool
	healthFilter store.HealthFilter
	selection    model.ResourceKey
	favorites    map[model.ResourceKey]bool

	viewStack []View
	gate      ConfirmationGate

	pending map[uint64]pendingOp
	status  string
}

type pendingOp struct {
	ch  <-chan model.OperationResult
	key model.ResourceKey // the selection context at dispatch time
}

// New returns a Coordinator seeded with the given namespace and
// favorites (loaded by the Config Loader at startup).
func New(st *store.Store, pool *watcher.Pool, trans *transport.Transport, registry_ *ops.Registry, log logr.Logger, namespace string, favorites []model.ResourceKey, readOnly bool) *Coordinator {
	favs := make(map[model.ResourceKey]bool, len(favorites))
	for _, f := range favorites {
		favs[f] = true
	}
	return &Coordinator{
		st:         st,
		pool:       pool,
		trans:      trans,
		ops:        registry_,
		log:        log,
		readOnly:   readOnly,
		namespace:  namespace,
		kindFilter: make(map[string]bool),
		favorites:  favs,
		viewStack:  []View{ViewResourceList},
		pending:    make(map[uint64]pendingOp),
	}
}

// CurrentView returns the top of the visible-view stack.
func (c *Coordinator) CurrentView() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewStack[len(c.viewStack)-1]
}

// PushView / PopView manage the view stack (help, yaml, trace overlays).
func (c *Coordinator) PushView(v View) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewStack = append(c.viewStack, v)
}

func (c *Coordinator) PopView() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.viewStack) > 1 {
		c.viewStack = c.viewStack[:len(c.viewStack)-1]
	}
}

// Select sets the current selection explicitly (arrow-key navigation).
func (c *Coordinator) Select(key model.ResourceKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = key
}

// Status returns the transient status line.
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) setStatus(s string) { c.status = s }

// Snapshot returns the deterministic per-frame projection the renderer
// consumes: the filtered/sorted/favorite-pinned entry list. As a side
// effect it re-stabilizes the current selection against that same list;
// the selection itself is not part of the return value.
func (c *Coordinator) Snapshot() []model.ResourceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	f := store.Filter{
		Namespace: c.namespace,
		Health:    c.healthFilter,
		Favorites: c.favorites,
	}
	if len(c.kindFilter) > 0 {
		f.Kinds = c.kindFilter
	}
	entries := c.st.Snapshot(f)
	c.stabilizeSelection(entries)
	return entries
}

// stabilizeSelection implements spec §4.7's selection-stability rule: if
// the previously selected key no longer exists in the ordered snapshot,
// move to the next lower row by index; if none, the first row; if the
// snapshot is empty, clear selection.
func (c *Coordinator) stabilizeSelection(entries []model.ResourceEntry) {
	if len(entries) == 0 {
		c.selection = model.ResourceKey{}
		return
	}
	for _, e := range entries {
		if e.Key == c.selection {
			return
		}
	}
	// selection is gone; find the index it would have occupied among the
	// still-present entries and pick the same index, clamped.
	idx := 0
	for i, e := range entries {
		if less(e.Key, c.selection) {
			idx = i + 1
		}
	}
	if idx >= len(entries) {
		idx = len(entries) - 1
	}
	c.selection = entries[idx].Key
}

func less(a, b model.ResourceKey) bool {
	if a.Namespace != b.Namespace {
		return a.Namespace < b.Namespace
	}
	return a.Name < b.Name
}

// HandleKey dispatches rule 1-5 of spec §4.5 for a single-operation
// keypress (op names are mapped to keys by cmd/flux9s, which owns the
// out-of-scope keymap).
func (c *Coordinator) HandleKey(ctx context.Context, opName string) {
	c.mu.Lock()
	selection := c.selection
	entry, ok := c.st.Get(selection)
	c.mu.Unlock()
	if !ok {
		return
	}

	op, ok := c.ops.Get(opName)
	if !ok {
		return // rule 1: no match, ignore silently
	}

	kind, ok := registry.ByAlias(selection.Kind)
	if !ok || !op.ApplicableTo(kind, entry) {
		c.setStatus(fmt.Sprintf("%s is not applicable to %s", opName, selection.Kind))
		return
	}

	if c.readOnly && mutates(opName) {
		c.setStatus("read-only mode: mutating operations are disabled")
		return
	}

	req := ops.NewRequest(opName, selection, model.OperationOptions{})
	if op.RequiresConfirmation() {
		c.gate.RequestConfirmation(req)
		c.PushView(ViewConfirmation)
		return
	}
	c.dispatch(ctx, req, kind)
}

func mutates(opName string) bool { return opName != "" } // every builtin op mutates; kept as a named hook for future read-only exceptions

// ResolveConfirmation handles one keypress while the Confirmation Gate is
// Pending.
func (c *Coordinator) ResolveConfirmation(ctx context.Context, key string) {
	req, confirmed, changed := c.gate.Resolve(key)
	if !changed {
		return
	}
	c.PopView()
	if !confirmed {
		return
	}
	kind, ok := registry.ByAlias(req.Key.Kind)
	if !ok {
		return
	}
	c.dispatch(ctx, req, kind)
}

func (c *Coordinator) dispatch(ctx context.Context, req model.OperationRequest, kind registry.Kind) {
	scope := scopeFor(kind, req.Key.Namespace)
	ch := ops.Dispatch(ctx, c.ops, c.trans, req, kind, scope)

	c.mu.Lock()
	c.pending[req.ID] = pendingOp{ch: ch, key: req.Key}
	c.mu.Unlock()
}

// scopeFor derives a mutating operation's scope from the target key, not
// the ambient namespace filter: a selection made while browsing "all
// namespaces" still has its own namespace, and the PATCH/DELETE must
// land there regardless of what the list view happens to be filtered to.
func scopeFor(kind registry.Kind, namespace string) transport.Scope {
	if !kind.Namespaced {
		return transport.Scope{All: true}
	}
	return transport.Scope{Namespace: namespace}
}

// DrainResults polls every pending operation's result channel
// non-blockingly and surfaces completed results as a status message,
// unless the selection context has changed since dispatch, in which case
// the result is only logged, per spec §4.5's cancellation note.
func (c *Coordinator) DrainResults() {
	c.mu.Lock()
	pending := c.pending
	selection := c.selection
	c.mu.Unlock()

	for id, p := range pending {
		select {
		case res, ok := <-p.ch:
			if !ok {
				continue
			}
			c.mu.Lock()
			delete(c.pending, id)
			stillSelected := p.key == selection
			c.mu.Unlock()

			if stillSelected {
				c.setStatus(formatResult(res))
			} else {
				c.log.Info("operation result for stale selection", "key", p.key, "outcome", res.Outcome, "message", res.Message)
			}
		default:
		}
	}
}

func formatResult(res model.OperationResult) string {
	if res.Outcome == model.OutcomeSuccess {
		return res.Message
	}
	return res.Message
}

// SwitchNamespace implements spec §4.7's namespace-switch procedure:
// close subscriptions for the prior namespace, clear the store for kinds
// whose scope changed, and open subscriptions for the new namespace at
// the kinds currently in view.
func (c *Coordinator) SwitchNamespace(ctx context.Context, ns string, kinds []registry.Kind) {
	c.mu.Lock()
	prev := c.namespace
	c.namespace = ns
	c.mu.Unlock()

	if prev == ns {
		return
	}

	for _, k := range kinds {
		if !k.Namespaced {
			continue
		}
		c.pool.UnsubscribeAllExcept(map[string]bool{}, scopeSelectorFor(prev))
		c.st.ClearScope(k.Name, "")
		c.pool.Subscribe(ctx, k, scopeSelectorFor(ns))
	}
}

func scopeSelectorFor(ns string) watcher.ScopeSelector {
	if ns == "" || ns == "all" {
		return watcher.ScopeSelector{All: true}
	}
	return watcher.ScopeSelector{Namespace: ns}
}

// SwitchContext implements the full-resubscription procedure triggered by
// `:ctx <name>`.
func (c *Coordinator) SwitchContext(ctx context.Context, name string, kinds []registry.Kind) error {
	c.pool.UnsubscribeAll()
	if err := c.trans.SwitchContext(ctx, name); err != nil {
		return err
	}
	ns := c.namespace
	for _, k := range kinds {
		scope := watcher.ScopeSelector{All: true}
		if k.Namespaced {
			scope = scopeSelectorFor(ns)
		}
		c.pool.Subscribe(ctx, k, scope)
	}
	return nil
}

// HandleCommand parses the in-session command surface the core reacts to
// (`:ns`, `:ctx`, kind aliases, health filters, `:q`/`:q!`), per spec §6.
// It returns shouldQuit=true for `:q`/`:q!`.
func (c *Coordinator) HandleCommand(ctx context.Context, cmd string, kinds []registry.Kind) (shouldQuit bool) {
	cmd = strings.TrimSpace(cmd)
	if !strings.HasPrefix(cmd, ":") {
		return false
	}
	body := strings.TrimPrefix(cmd, ":")
	parts := strings.SplitN(body, " ", 2)
	name := parts[0]

	switch name {
	case "q", "q!":
		return true
	case "ns":
		if len(parts) == 2 {
			c.SwitchNamespace(ctx, strings.TrimSpace(parts[1]), kinds)
		}
	case "ctx":
		if len(parts) == 2 {
			_ = c.SwitchContext(ctx, strings.TrimSpace(parts[1]), kinds)
		}
	case "healthy":
		c.mu.Lock()
		c.healthFilter = store.HealthHealthy
		c.mu.Unlock()
	case "unhealthy":
		c.mu.Lock()
		c.healthFilter = store.HealthUnhealthy
		c.mu.Unlock()
	case "all":
		c.mu.Lock()
		c.healthFilter = store.HealthAll
		c.kindFilter = make(map[string]bool)
		c.mu.Unlock()
	default:
		if kind, ok := registry.ByAlias(name); ok {
			c.mu.Lock()
			c.kindFilter = map[string]bool{kind.Name: true}
			c.mu.Unlock()
		}
	}
	return false
}

// ToggleFavorite flips the favorite state of key, returning the new
// favorites set for the Config Loader to persist.
func (c *Coordinator) ToggleFavorite(key model.ResourceKey) map[model.ResourceKey]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.favorites[key] {
		delete(c.favorites, key)
	} else {
		c.favorites[key] = true
	}
	out := make(map[model.ResourceKey]bool, len(c.favorites))
	for k := range c.favorites {
		out[k] = true
	}
	return out
}
