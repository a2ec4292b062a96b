// Package config is the Config Loader: reads and writes the favorites
// list and last-used namespace/context from the user config file, using
// gopkg.in/yaml.v3, the teacher's YAML library. Grounded on the
// getSnapshotPath/loadSnapshot/saveSnapshot persistence pattern in
// cmd/cub-scout/localcluster.go, generalized from a full cluster-state
// snapshot to the narrow favorites/namespace preference spec §6 allows
// the core to persist.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dgunzy/flux9s/internal/model"
)

// Config is the on-disk shape of ~/.config/flux9s/config.yaml.
type Config struct {
	FavoritesRaw []string `yaml:"favorites"`
	Namespace    string   `yaml:"namespace"`
	Context      string   `yaml:"context"`
}

// Path returns the config file path, honoring XDG_CONFIG_HOME.
func Path() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "flux9s", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "flux9s", "config.yaml")
}

// Load reads the config file, returning a zero-value Config (not an
// error) if it does not yet exist.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg atomically (write to a temp file, then rename) so a
// crash mid-write never corrupts the favorites list.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Favorites parses the config's favorites list into ResourceKeys,
// silently skipping any malformed entry rather than failing startup.
func (c Config) Favorites() []model.ResourceKey {
	keys := make([]model.ResourceKey, 0, len(c.FavoritesRaw))
	for _, s := range c.FavoritesRaw {
		if k, err := model.ParseResourceKey(s); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

// SetFavorites replaces the config's favorites list from a set of
// ResourceKeys, rendering each with ResourceKey.String().
func (c *Config) SetFavorites(keys map[model.ResourceKey]bool) {
	list := make([]string, 0, len(keys))
	for k := range keys {
		list = append(list, k.String())
	}
	c.FavoritesRaw = list
}
