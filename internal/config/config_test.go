package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgunzy/flux9s/internal/model"
)

func TestLoad_MissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.FavoritesRaw)
}

func TestSaveAndLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	key := model.ResourceKey{Kind: "Kustomization", Namespace: "flux-system", Name: "apps"}

	cfg := Config{Namespace: "flux-system"}
	cfg.SetFavorites(map[model.ResourceKey]bool{key: true})
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "flux-system", loaded.Namespace)
	assert.Equal(t, []model.ResourceKey{key}, loaded.Favorites())
}

func TestFavorites_SkipsMalformedEntries(t *testing.T) {
	cfg := Config{FavoritesRaw: []string{"not-a-valid-key", "Kustomization:flux-system:apps"}}
	keys := cfg.Favorites()
	assert.Len(t, keys, 1)
	assert.Equal(t, "apps", keys[0].Name)
}
