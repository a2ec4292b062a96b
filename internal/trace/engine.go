// Package trace resolves a managed object's ownership DAG: its
// sourceRef upward to the originating artifact, and its status.inventory
// downward to the objects it manages. Grounded on the ownership-chain
// walker in pkg/agent/reverse_trace.go (GVR resolution, visited-guarded
// iteration, status-condition inspection) and the reference-extraction
// pattern in pkg/agent/cross_ref.go, generalized from "walk
// ownerReferences up" to "walk sourceRef up and inventory down" per the
// Trace Engine's actual responsibility.
package trace

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"sigs.k8s.io/cli-utils/pkg/object"

	"github.com/dgunzy/flux9s/internal/clierr"
	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/transport"
)

const (
	maxNodes = 500
	maxDepth = 16
)

// Engine runs traces against a Store (for cache hits) and falls back to
// the Cluster Transport for objects the store hasn't seen.
type Engine struct {
	st    *store.Store
	trans *transport.Transport
	scope transport.Scope
}

// New returns a trace Engine.
func New(st *store.Store, trans *transport.Transport, scope transport.Scope) *Engine {
	return &Engine{st: st, trans: trans, scope: scope}
}

// visited guards against cycles and also enforces the node-count cap,
// since every discovered node is inserted exactly once.
type run struct {
	visited map[model.ResourceKey]bool
	count   int
}

// Trace builds the TraceNode rooted at key. It always terminates: the
// node-count and depth caps bound recursion even on a pathological
// (cyclic or huge) inventory.
func (e *Engine) Trace(ctx context.Context, key model.ResourceKey) *model.TraceNode {
	r := &run{visited: make(map[model.ResourceKey]bool)}
	node := e.build(ctx, r, key, 0)
	if node == nil {
		// only possible if key is somehow pre-visited, which an empty
		// r.visited never is; kept defensive rather than panicking.
		return &model.TraceNode{Key: key, Status: model.TraceError, Detail: "cycle at root"}
	}
	return node
}

// build returns nil when key has already been visited anywhere in this
// trace (the visited set is shared by every branch) — the caller drops
// the edge rather than append a node whose Key repeats an earlier one,
// keeping every root-to-leaf path free of duplicate keys.
func (e *Engine) build(ctx context.Context, r *run, key model.ResourceKey, depth int) *model.TraceNode {
	log := logr.FromContextOrDiscard(ctx)
	if r.visited[key] {
		return nil
	}
	if depth > maxDepth {
		return &model.TraceNode{Key: key, Status: model.TraceError, Detail: "depth cap exceeded"}
	}
	if r.count >= maxNodes {
		return &model.TraceNode{Key: key, Status: model.TraceError, Detail: "node cap exceeded"}
	}
	r.visited[key] = true
	r.count++

	node := &model.TraceNode{Key: key}

	kind, ok := registry.ByAlias(key.Kind)
	if !ok {
		node.Status = model.TraceMissing
		node.Detail = "unknown kind"
		log.V(1).Info("trace: unknown kind", "key", key.String())
		return node
	}

	obj, err := e.fetch(ctx, kind, key)
	if err != nil {
		if clierr.Classify(err) == clierr.NotFound {
			node.Status = model.TraceMissing
			log.V(1).Info("trace: object missing", "key", key.String())
			return node
		}
		node.Status = model.TraceError
		node.Detail = err.Error()
		log.Error(err, "trace: fetch failed", "key", key.String())
		return node
	}
	node.Status = model.TraceResolved
	node.GVK = fmt.Sprintf("%s/%s, Kind=%s", kind.Group, kind.Version(), kind.Name)

	if parentKey, parentKind, ok := sourceRefOf(obj, key); ok {
		if child := e.build(ctx, r, parentKey, depth+1); child != nil {
			node.Children = append(node.Children, child)
		}
		_ = parentKind
	}

	if kind.InventoryBearing {
		for _, childKey := range inventoryKeys(obj) {
			if child := e.build(ctx, r, childKey, depth+1); child != nil {
				node.Children = append(node.Children, child)
			}
		}
	}

	return node
}

func (e *Engine) fetch(ctx context.Context, kind registry.Kind, key model.ResourceKey) (map[string]interface{}, error) {
	if entry, ok := e.st.Get(key); ok && entry.Raw != nil {
		return entry.Raw.Object, nil
	}
	scope := e.scope
	if kind.Namespaced {
		scope = transport.Scope{Namespace: key.Namespace}
	}
	handle, err := e.trans.DynamicAPI(ctx, kind, scope)
	if err != nil {
		return nil, err
	}
	obj, err := handle.Get(ctx, key.Name)
	if err != nil {
		return nil, err
	}
	return obj.Object, nil
}

func sourceRefOf(obj map[string]interface{}, self model.ResourceKey) (model.ResourceKey, registry.Kind, bool) {
	refKind, kFound := nestedStr(obj, "spec", "sourceRef", "kind")
	refName, nFound := nestedStr(obj, "spec", "sourceRef", "name")
	if !kFound || !nFound {
		return model.ResourceKey{}, registry.Kind{}, false
	}
	refNS, nsFound := nestedStr(obj, "spec", "sourceRef", "namespace")
	if !nsFound || refNS == "" {
		refNS = self.Namespace
	}
	kind, ok := registry.ByAlias(refKind)
	if !ok {
		return model.ResourceKey{Kind: refKind, Namespace: refNS, Name: refName}, registry.Kind{}, true
	}
	return model.ResourceKey{Kind: kind.Name, Namespace: refNS, Name: refName}, kind, true
}

// inventoryKeys extracts status.inventory.entries[] (or status.inventory[]
// for kinds that don't nest under "entries") in input order, parsing each
// entry's ObjMetadata-encoded id with sigs.k8s.io/cli-utils/pkg/object,
// the same library the Flux kustomize/helm controllers' own inventory
// format is interoperable with.
func inventoryKeys(obj map[string]interface{}) []model.ResourceKey {
	entries := nestedSlice(obj, "status", "inventory", "entries")
	if entries == nil {
		entries = nestedSlice(obj, "status", "inventory")
	}

	keys := make([]model.ResourceKey, 0, len(entries))
	for _, raw := range entries {
		m, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		id, _ := m["id"].(string)
		if id == "" {
			continue
		}
		meta, err := object.ParseObjMetadata(id)
		if err != nil {
			continue
		}
		keys = append(keys, model.ResourceKey{
			Kind:      meta.GroupKind.Kind,
			Namespace: meta.Namespace,
			Name:      meta.Name,
		})
	}
	return keys
}

func nestedStr(obj map[string]interface{}, path ...string) (string, bool) {
	cur := obj
	for i, p := range path {
		v, ok := cur[p]
		if !ok {
			return "", false
		}
		if i == len(path)-1 {
			s, ok := v.(string)
			return s, ok
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return "", false
		}
		cur = next
	}
	return "", false
}

func nestedSlice(obj map[string]interface{}, path ...string) []interface{} {
	cur := obj
	for i, p := range path {
		v, ok := cur[p]
		if !ok {
			return nil
		}
		if i == len(path)-1 {
			s, _ := v.([]interface{})
			return s
		}
		next, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = next
	}
	return nil
}
