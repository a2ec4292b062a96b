// Package store is the thread-safe, keyed projection of live cluster
// objects the UI reads every frame. Grounded on the RWMutex
// replace/list pattern in
// JNickson-cluster-telemetry-service/internal/store/store.go, generalized
// from whole-slice replace to per-key upsert/delete and from one
// resource type to the generic ResourceKey-keyed map spec §4.4 requires.
package store

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	kstatus "sigs.k8s.io/cli-utils/pkg/kstatus/status"

	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
)

// Filter narrows a Snapshot call.
type Filter struct {
	Kinds         map[string]bool // nil/empty means all kinds
	Namespace     string          // "" means all namespaces
	NameSubstring string
	Health        HealthFilter
	Favorites     map[model.ResourceKey]bool
}

// HealthFilter selects by derived readiness.
type HealthFilter int

const (
	HealthAll HealthFilter = iota
	HealthHealthy
	HealthUnhealthy
)

func (f Filter) matches(e *model.ResourceEntry) bool {
	if len(f.Kinds) > 0 && !f.Kinds[e.Key.Kind] {
		return false
	}
	if f.Namespace != "" && f.Namespace != "all" && e.Key.Namespace != f.Namespace {
		return false
	}
	if f.NameSubstring != "" && !strings.Contains(strings.ToLower(e.Key.Name), strings.ToLower(f.NameSubstring)) {
		return false
	}
	switch f.Health {
	case HealthHealthy:
		if e.Ready != model.TriTrue {
			return false
		}
	case HealthUnhealthy:
		if e.Ready == model.TriTrue {
			return false
		}
	}
	return true
}

// Store is the single piece of shared mutable state in the system,
// guarded by a read-write lock with short critical sections, per spec §5.
type Store struct {
	mu      sync.RWMutex
	entries map[model.ResourceKey]*model.ResourceEntry

	// pendingGen tracks, per (kind, namespace-scope), the generation
	// counter used to implement resync's implicit-delete rule (see
	// BeginResync/Added/EndResync).
	pendingGen map[scopeKey]uint64

	// observe is the test-only channel every applied event is mirrored
	// to; nil in production unless WithObserver is used.
	observe chan model.WatchEvent

	log logr.Logger
}

type scopeKey struct {
	kind      string
	namespace string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries:    make(map[model.ResourceKey]*model.ResourceEntry),
		pendingGen: make(map[scopeKey]uint64),
		log:        logr.Discard(),
	}
}

// SetLogger attaches the structured logger used for the kstatus
// second-opinion check in buildEntry. Unset, the Store logs nothing.
func (s *Store) SetLogger(log logr.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
}

// WithObserver attaches a test-only channel that receives every applied
// event; production builds never call this, per spec §6's "Event
// emission for testability" interface.
func (s *Store) WithObserver(ch chan model.WatchEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observe = ch
}

func (s *Store) notify(ev model.WatchEvent) {
	if s.observe == nil {
		return
	}
	select {
	case s.observe <- ev:
	default:
	}
}

// BeginResync starts a pending-resync window for (kind, namespace): the
// generation counter is bumped, and every Added delivered before the
// matching EndResync is stamped with the new generation. EndResync then
// removes any entry in that scope whose generation is stale, implementing
// "an object present before Resynced that is not in the snapshot is an
// implicit Deleted" without the watcher needing to diff itself.
func (s *Store) BeginResync(kind, namespace string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scopeKey{kind, namespace}
	s.pendingGen[k]++
	return s.pendingGen[k]
}

// EndResync removes entries in (kind, namespace) whose generation predates
// gen — the objects that existed before the resync snapshot but were not
// re-Added during it.
func (s *Store) EndResync(kind, namespace string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if key.Kind != kind {
			continue
		}
		if namespace != "" && key.Namespace != namespace {
			continue
		}
		if e.Generation() < gen {
			delete(s.entries, key)
		}
	}
}

// Apply applies one WatchEvent. Added and Modified are treated
// identically (an Added on an existing key upserts, satisfying invariant
// (ii)); Deleted removes idempotently (invariant (iii)).
func (s *Store) Apply(ev model.WatchEvent, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := keyFromObject(ev.Kind, ev.Object)
	if !ok {
		return
	}

	switch ev.Type {
	case model.EventAdded, model.EventModified:
		entry := buildEntry(key, ev.Object)
		entry.SetGeneration(gen)
		s.entries[key] = entry
		crossCheckReady(s.log, key, ev.Object, entry.Ready)
	case model.EventDeleted:
		delete(s.entries, key)
	}
	s.notify(ev)
}

// Get returns the current entry for key, if any.
func (s *Store) Get(key model.ResourceKey) (model.ResourceEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	if !ok {
		return model.ResourceEntry{}, false
	}
	return *e, true
}

// Snapshot returns an ordered, owned copy of entries matching filter,
// sorted by (namespace, name) with favorites pinned to the top preserving
// relative order. The read lock is held only while copying; the result
// is safe to use across frames without holding any lock.
func (s *Store) Snapshot(f Filter) []model.ResourceEntry {
	s.mu.RLock()
	matched := make([]model.ResourceEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.matches(e) {
			matched = append(matched, *e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Key.Namespace != matched[j].Key.Namespace {
			return matched[i].Key.Namespace < matched[j].Key.Namespace
		}
		return matched[i].Key.Name < matched[j].Key.Name
	})

	if len(f.Favorites) == 0 {
		return matched
	}

	favored := make([]model.ResourceEntry, 0, len(matched))
	rest := make([]model.ResourceEntry, 0, len(matched))
	for _, e := range matched {
		if f.Favorites[e.Key] {
			favored = append(favored, e)
		} else {
			rest = append(rest, e)
		}
	}
	return append(favored, rest...)
}

// ClearScope removes every entry for a kind within a namespace (or every
// namespace if namespace == ""), used on namespace switch per spec §4.7.
func (s *Store) ClearScope(kind, namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.Kind != kind {
			continue
		}
		if namespace == "" || key.Namespace == namespace {
			delete(s.entries, key)
		}
	}
}

func keyFromObject(kind string, obj *unstructured.Unstructured) (model.ResourceKey, bool) {
	if obj == nil {
		return model.ResourceKey{}, false
	}
	return model.ResourceKey{Kind: kind, Namespace: obj.GetNamespace(), Name: obj.GetName()}, true
}

// buildEntry derives ready/suspended/status_message/last_reconciled_at
// from the object's conditions and spec. Ready derivation follows the
// canonical algorithm in spec §4.4 exactly: Ready condition present and
// True -> true; present and not True -> false; absent but the kind is
// inventory-bearing with a non-empty inventory -> true; otherwise
// unknown.
func buildEntry(key model.ResourceKey, obj *unstructured.Unstructured) *model.ResourceEntry {
	e := &model.ResourceEntry{
		Key:             key,
		ResourceVersion: obj.GetResourceVersion(),
		Raw:             obj,
	}

	cond, msg, hasReady := readyCondition(obj)
	switch {
	case hasReady && cond == "True":
		e.Ready = model.TriTrue
	case hasReady:
		e.Ready = model.TriFalse
	default:
		if kind, ok := registry.ByAlias(key.Kind); ok && kind.InventoryBearing && hasNonEmptyInventory(obj) {
			e.Ready = model.TriTrue
		} else {
			e.Ready = model.TriUnknown
		}
	}
	e.StatusMessage = msg

	if suspend, found, _ := unstructured.NestedBool(obj.Object, "spec", "suspend"); found {
		e.Suspended = suspend
	}

	if ts, found, _ := unstructured.NestedString(obj.Object, "status", "lastHandledReconcileAt"); found && ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			e.LastReconciled = parsed
		}
	}

	return e
}

func readyCondition(obj *unstructured.Unstructured) (status, message string, found bool) {
	conditions, ok, _ := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if !ok {
		return "", "", false
	}
	for _, c := range conditions {
		m, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); t != "Ready" {
			continue
		}
		s, _ := m["status"].(string)
		msg, _ := m["message"].(string)
		return s, msg, true
	}
	return "", "", false
}

func hasNonEmptyInventory(obj *unstructured.Unstructured) bool {
	if entries, ok, _ := unstructured.NestedSlice(obj.Object, "status", "inventory", "entries"); ok && len(entries) > 0 {
		return true
	}
	if entries, ok, _ := unstructured.NestedSlice(obj.Object, "status", "inventory"); ok && len(entries) > 0 {
		return true
	}
	return false
}

// crossCheckReady computes sigs.k8s.io/cli-utils's kstatus status for obj
// as a second opinion on the canonical Ready derivation, logging at debug
// level when the two disagree. It never overrides canonical; the
// canonical algorithm above remains the source of truth.
func crossCheckReady(log logr.Logger, key model.ResourceKey, obj *unstructured.Unstructured, canonical model.Tri) {
	res, err := kstatus.Compute(obj)
	if err != nil {
		return
	}
	agrees := map[model.Tri]map[kstatus.Status]bool{
		model.TriTrue:    {kstatus.CurrentStatus: true},
		model.TriFalse:   {kstatus.FailedStatus: true, kstatus.InProgressStatus: true, kstatus.TerminatingStatus: true},
		model.TriUnknown: {kstatus.UnknownStatus: true, kstatus.NotFoundStatus: true, kstatus.InProgressStatus: true},
	}
	if agrees[canonical][res.Status] {
		return
	}
	log.V(1).Info("kstatus disagrees with canonical Ready derivation",
		"key", key.String(), "canonical", canonical, "kstatus", res.Status)
}

// GenerationString renders a generation counter for log messages.
func GenerationString(gen uint64) string {
	return strconv.FormatUint(gen, 10)
}
