package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	dynamicfake "k8s.io/client-go/dynamic/fake"

	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/store"
	"github.com/dgunzy/flux9s/internal/transport"
)

func fakeTransport(objs ...runtime.Object) *transport.Transport {
	scheme := runtime.NewScheme()
	listKinds := map[schema.GroupVersionResource]string{
		{Group: "kustomize.toolkit.fluxcd.io", Version: "v1", Resource: "kustomizations"}: "KustomizationList",
		{Group: "source.toolkit.fluxcd.io", Version: "v1", Resource: "gitrepositories"}:   "GitRepositoryList",
	}
	client := dynamicfake.NewSimpleDynamicClientWithCustomListKinds(scheme, listKinds, objs...)
	return transport.NewWithClient(client)
}

func TestTrace_ResolvesSourceRefParent(t *testing.T) {
	ks := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata":   map[string]interface{}{"name": "apps", "namespace": "flux-system"},
		"spec": map[string]interface{}{
			"sourceRef": map[string]interface{}{"kind": "GitRepository", "name": "repo"},
		},
	}}
	repo := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "source.toolkit.fluxcd.io/v1",
		"kind":       "GitRepository",
		"metadata":   map[string]interface{}{"name": "repo", "namespace": "flux-system"},
	}}

	tr := fakeTransport(ks, repo)
	eng := New(store.New(), tr, transport.Scope{Namespace: "flux-system"})

	root := eng.Trace(context.Background(), model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "apps"})
	assert.Equal(t, model.TraceResolved, root.Status)
	assert.Len(t, root.Children, 1)
	assert.Equal(t, model.ResourceKey{Kind: "GitRepository", Namespace: "flux-system", Name: "repo"}, root.Children[0].Key)
	assert.Equal(t, model.TraceResolved, root.Children[0].Status)
}

func TestTrace_MissingSourceReportsMissingNotError(t *testing.T) {
	ks := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata":   map[string]interface{}{"name": "apps", "namespace": "flux-system"},
		"spec": map[string]interface{}{
			"sourceRef": map[string]interface{}{"kind": "GitRepository", "name": "missing-repo"},
		},
	}}
	tr := fakeTransport(ks)
	eng := New(store.New(), tr, transport.Scope{Namespace: "flux-system"})

	root := eng.Trace(context.Background(), model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "apps"})
	assert.Len(t, root.Children, 1)
	assert.Equal(t, model.TraceMissing, root.Children[0].Status)
}

func TestTrace_TerminatesWithNoDuplicateKeyOnCycle(t *testing.T) {
	a := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata":   map[string]interface{}{"name": "a", "namespace": "flux-system"},
		"spec": map[string]interface{}{
			"sourceRef": map[string]interface{}{"kind": "Kustomization", "name": "a"},
		},
	}}
	tr := fakeTransport(a)
	eng := New(store.New(), tr, transport.Scope{Namespace: "flux-system"})

	root := eng.Trace(context.Background(), model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "a"})
	assert.Equal(t, model.TraceResolved, root.Status)
	assert.Empty(t, root.Children, "the self-cycle edge must be dropped, not appended as a duplicate-key node")
	assertNoDuplicateKeyOnAnyPath(t, root, nil)
}

func TestTrace_TwoNodeCycleHasNoDuplicateKeyOnAnyPath(t *testing.T) {
	a := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata":   map[string]interface{}{"name": "a", "namespace": "flux-system"},
		"spec": map[string]interface{}{
			"sourceRef": map[string]interface{}{"kind": "GitRepository", "name": "b"},
		},
	}}
	b := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "source.toolkit.fluxcd.io/v1",
		"kind":       "GitRepository",
		"metadata":   map[string]interface{}{"name": "b", "namespace": "flux-system"},
		"spec": map[string]interface{}{
			"sourceRef": map[string]interface{}{"kind": "Kustomization", "name": "a"},
		},
	}}
	tr := fakeTransport(a, b)
	eng := New(store.New(), tr, transport.Scope{Namespace: "flux-system"})

	root := eng.Trace(context.Background(), model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "a"})
	assert.Equal(t, model.TraceResolved, root.Status)
	assert.Len(t, root.Children, 1)
	assert.Empty(t, root.Children[0].Children, "b's edge back to a must be dropped, not duplicate a's key")
	assertNoDuplicateKeyOnAnyPath(t, root, nil)
}

// assertNoDuplicateKeyOnAnyPath walks node's DAG depth-first, failing the
// test if any ResourceKey repeats along a single root-to-leaf path.
func assertNoDuplicateKeyOnAnyPath(t *testing.T, node *model.TraceNode, ancestors []model.ResourceKey) {
	t.Helper()
	if node == nil {
		return
	}
	for _, a := range ancestors {
		assert.NotEqual(t, a, node.Key, "duplicate key %v along root-to-leaf path", node.Key)
	}
	path := make([]model.ResourceKey, len(ancestors)+1)
	copy(path, ancestors)
	path[len(ancestors)] = node.Key
	for _, child := range node.Children {
		assertNoDuplicateKeyOnAnyPath(t, child, path)
	}
}
