package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/dgunzy/flux9s/internal/model"
)

func kustomization(name, namespace, ready string) *unstructured.Unstructured {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "kustomize.toolkit.fluxcd.io/v1",
		"kind":       "Kustomization",
		"metadata": map[string]interface{}{
			"name":            name,
			"namespace":       namespace,
			"resourceVersion": "1",
		},
	}}
	if ready != "" {
		_ = unstructured.SetNestedSlice(obj.Object, []interface{}{
			map[string]interface{}{"type": "Ready", "status": ready, "message": "reconciliation in progress"},
		}, "status", "conditions")
	}
	return obj
}

func TestApply_AddedTreatedAsModifiedWhenKeyExists(t *testing.T) {
	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("apps", "flux-system", "False")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("apps", "flux-system", "True")}, 1)

	entry, ok := s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "apps"})
	assert.True(t, ok)
	assert.Equal(t, model.TriTrue, entry.Ready)

	snap := s.Snapshot(Filter{})
	assert.Len(t, snap, 1)
}

func TestApply_ModifyRace(t *testing.T) {
	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("x", "flux-system", "False")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventModified, Kind: "Kustomization", Object: kustomization("x", "flux-system", "True")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventModified, Kind: "Kustomization", Object: kustomization("x", "flux-system", "False")}, 1)

	entry, ok := s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "x"})
	assert.True(t, ok)
	assert.Equal(t, model.TriFalse, entry.Ready)
	assert.Len(t, s.Snapshot(Filter{}), 1)
}

func TestApply_DeleteIsIdempotent(t *testing.T) {
	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("y", "flux-system", "True")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventDeleted, Kind: "Kustomization", Object: kustomization("y", "flux-system", "")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventDeleted, Kind: "Kustomization", Object: kustomization("y", "flux-system", "")}, 1)

	_, ok := s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "y"})
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot(Filter{}))
}

func TestSnapshot_SortedAndFiltered(t *testing.T) {
	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("b", "flux-system", "True")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("a", "flux-system", "True")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("c", "other-ns", "True")}, 1)

	snap := s.Snapshot(Filter{Namespace: "flux-system"})
	assert.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Key.Name)
	assert.Equal(t, "b", snap[1].Key.Name)
}

func TestSnapshot_FavoritesPinned(t *testing.T) {
	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("a", "flux-system", "True")}, 1)
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("z", "flux-system", "True")}, 1)

	fav := model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "z"}
	snap := s.Snapshot(Filter{Favorites: map[model.ResourceKey]bool{fav: true}})
	assert.Equal(t, "z", snap[0].Key.Name)
	assert.Equal(t, "a", snap[1].Key.Name)
}

func TestResync_ImplicitDelete(t *testing.T) {
	s := New()
	gen1 := s.BeginResync("Kustomization", "flux-system")
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("stale", "flux-system", "True")}, gen1)
	s.EndResync("Kustomization", "flux-system", gen1)

	gen2 := s.BeginResync("Kustomization", "flux-system")
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("fresh", "flux-system", "True")}, gen2)
	s.EndResync("Kustomization", "flux-system", gen2)

	_, ok := s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "stale"})
	assert.False(t, ok, "object missing from the new snapshot must be implicitly deleted")

	_, ok = s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "fresh"})
	assert.True(t, ok)
}

func TestSnapshot_ZeroResourcesEmpty(t *testing.T) {
	s := New()
	assert.Empty(t, s.Snapshot(Filter{}))
}

func TestReadyDerivation_InventoryBearingWithoutReadyCondition(t *testing.T) {
	obj := kustomization("composite", "flux-system", "")
	_ = unstructured.SetNestedSlice(obj.Object, []interface{}{
		map[string]interface{}{"id": "flux-system_dep_apps_Deployment", "v": "apps/v1"},
	}, "status", "inventory", "entries")

	s := New()
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: obj}, 1)
	entry, _ := s.Get(model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "composite"})
	assert.Equal(t, model.TriTrue, entry.Ready)
}

func TestWatchAndRenderBaseline(t *testing.T) {
	s := New()
	gen := s.BeginResync("Kustomization", "flux-system")
	s.Apply(model.WatchEvent{Type: model.EventAdded, Kind: "Kustomization", Object: kustomization("apps", "flux-system", "True")}, gen)
	s.EndResync("Kustomization", "flux-system", gen)

	snap := s.Snapshot(Filter{})
	assert.Len(t, snap, 1)
	assert.Equal(t, model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "apps"}, snap[0].Key)
	assert.Equal(t, model.TriTrue, snap[0].Ready)
}
