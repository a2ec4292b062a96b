// Package model holds the data types shared across the watch-and-state
// engine: resource identity, the projected view the store keeps per
// object, and the small value types the operation dispatcher and trace
// engine pass around.
package model

import (
	"fmt"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Tri is a tri-state boolean: true, false, or unknown.
type Tri int

const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

func (t Tri) String() string {
	switch t {
	case TriTrue:
		return "true"
	case TriFalse:
		return "false"
	default:
		return "unknown"
	}
}

// ResourceKind is the immutable, build-time identity of a monitored kind.
type ResourceKind struct {
	Name     string // canonical display name, e.g. "Kustomization"
	Group    string
	Versions []string // declared order; first that resolves is cached
	Plural   string
	Aliases  []string

	SupportsSuspend           bool
	SupportsReconcile         bool
	SupportsReconcileWithSrc  bool
	InventoryBearing          bool
	Namespaced                bool
}

// Version returns the primary (first declared) API version.
func (k ResourceKind) Version() string {
	if len(k.Versions) == 0 {
		return ""
	}
	return k.Versions[0]
}

// ResourceKey is the identity tuple (kind, namespace, name). Namespace is
// the empty string for cluster-scoped kinds.
type ResourceKey struct {
	Kind      string
	Namespace string
	Name      string
}

// String renders "kind:namespace:name". Names and namespaces must not
// contain ':' — the registry and unstructured object names never do.
func (k ResourceKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Kind, k.Namespace, k.Name)
}

// ParseResourceKey parses the String() form back into a ResourceKey.
func ParseResourceKey(s string) (ResourceKey, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ResourceKey{}, fmt.Errorf("invalid resource key %q", s)
	}
	return ResourceKey{Kind: parts[0], Namespace: parts[1], Name: parts[2]}, nil
}

// ResourceEntry is the projected view of one live object, as kept by the
// Resource Store and read by the UI each frame.
type ResourceEntry struct {
	Key             ResourceKey
	ResourceVersion string
	Ready           Tri
	Suspended       bool
	StatusMessage   string
	LastReconciled  time.Time
	Raw             *unstructured.Unstructured

	// generation is a pending-resync stamp; see store.go for its role in
	// implicit-delete-on-resync.
	generation uint64
}

// Generation exposes the resync generation stamp for the store's own
// bookkeeping; other packages should not depend on its value.
func (e *ResourceEntry) Generation() uint64 { return e.generation }

// SetGeneration is used only by the store.
func (e *ResourceEntry) SetGeneration(g uint64) { e.generation = g }

// InventoryEntry is a reference appearing inside a managing object's
// status.inventory, in the Flux/cli-utils ObjMetadata string encoding
// "<namespace>_<name>_<group>_<kind>".
type InventoryEntry struct {
	Kind      string
	Group     string
	Namespace string
	Name      string
	Version   string // apiVersion carried alongside the entry, if known
}

// TraceStatus is the resolution status of a TraceNode.
type TraceStatus string

const (
	TraceResolved TraceStatus = "resolved"
	TraceMissing  TraceStatus = "missing"
	TraceError    TraceStatus = "error"
)

// TraceNode is one node of the ownership DAG built by the Trace Engine.
type TraceNode struct {
	Key      ResourceKey
	GVK      string // "group/version, Kind=X"; empty if unresolved
	Children []*TraceNode
	Status   TraceStatus
	Detail   string // cap-exceeded marker, error text, etc.
}

// OperationOptions carries the enumerated options an OperationRequest may
// set.
type OperationOptions struct {
	Timeout    time.Duration
	WithSource bool
	Cascade    bool
}

// OperationRequest is created on keypress and lives until its result
// returns or is dropped.
type OperationRequest struct {
	ID      uint64
	OpName  string
	Key     ResourceKey
	Options OperationOptions
}

// OutcomeKind distinguishes success from the fixed failure taxonomy
// operations report.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
)

// FailureKind is the fixed set of operation failure categories.
type FailureKind string

const (
	FailureNotFound FailureKind = "NotFound"
	FailureConflict FailureKind = "Conflict"
	FailureForbidden FailureKind = "Forbidden"
	FailureNetwork  FailureKind = "Network"
	FailureTimeout  FailureKind = "Timeout"
	FailureUnknown  FailureKind = "Unknown"
)

// OperationResult is delivered exactly once per OperationRequest.
type OperationResult struct {
	RequestID uint64
	Outcome   OutcomeKind
	Message   string
	Failure   FailureKind
}

// WatchEventType is the canonical watch event discriminator the Watcher
// Pool emits, independent of the underlying transport's event shape.
type WatchEventType int

const (
	EventAdded WatchEventType = iota
	EventModified
	EventDeleted
	EventResynced
)

// WatchEvent is the canonical event the Watcher Pool hands to the
// Resource Store.
type WatchEvent struct {
	Type   WatchEventType
	Kind   string
	Object *unstructured.Unstructured
}
