// Package transport establishes authenticated sessions to the
// orchestration API and exposes namespaced/cluster-wide list, watch,
// patch and delete primitives over dynamic objects. Grounded on the
// kubeconfig loading cmd/cub-scout/main.go used (buildConfig,
// getCurrentContext), generalized to support explicit context switching.
package transport

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/dgunzy/flux9s/internal/clierr"
	"github.com/dgunzy/flux9s/internal/registry"
)

// ApiHandle is the per-kind capability the rest of the system uses to
// talk to the orchestration API. It never caches objects; the Resource
// Store is the cache.
type ApiHandle struct {
	client    dynamic.Interface
	gvr       schema.GroupVersionResource
	namespace string // empty for cluster-wide or cluster-scoped kinds
}

func (h ApiHandle) resource() dynamic.ResourceInterface {
	if h.namespace == "" {
		return h.client.Resource(h.gvr)
	}
	return h.client.Resource(h.gvr).Namespace(h.namespace)
}

// Watch opens a watch starting from the given resourceVersion ("" for a
// fresh list+watch).
func (h ApiHandle) Watch(ctx context.Context, resourceVersion string) (watch.Interface, error) {
	return h.resource().Watch(ctx, metav1.ListOptions{ResourceVersion: resourceVersion})
}

// List performs a one-shot list, used to build the initial snapshot.
func (h ApiHandle) List(ctx context.Context) (*unstructured.UnstructuredList, error) {
	l, err := h.resource().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, clierr.Wrap(err)
	}
	return l, nil
}

// Get fetches a single object by name.
func (h ApiHandle) Get(ctx context.Context, name string) (*unstructured.Unstructured, error) {
	obj, err := h.resource().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, clierr.Wrap(err)
	}
	return obj, nil
}

// Patch applies a JSON-merge patch.
func (h ApiHandle) Patch(ctx context.Context, name string, patchJSON []byte) (*unstructured.Unstructured, error) {
	obj, err := h.resource().Patch(ctx, name, types.MergePatchType, patchJSON, metav1.PatchOptions{})
	if err != nil {
		return nil, clierr.Wrap(err)
	}
	return obj, nil
}

// Delete deletes the object with Background propagation.
func (h ApiHandle) Delete(ctx context.Context, name string) error {
	bg := metav1.DeletePropagationBackground
	err := h.resource().Delete(ctx, name, metav1.DeleteOptions{PropagationPolicy: &bg})
	if err != nil {
		return clierr.Wrap(err)
	}
	return nil
}

// Scope selects either a specific namespace or all namespaces.
type Scope struct {
	Namespace string // empty means "all namespaces" for namespaced kinds
	All       bool
}

// Transport holds the current dynamic client and the resolved-version
// cache; switching context invalidates both and callers must
// re-subscribe, per the contract in spec §4.1.
type Transport struct {
	mu         sync.RWMutex
	client     dynamic.Interface
	restCfg    *rest.Config
	kubeconfig string
	context    string
	log        logr.Logger

	resolvedVersion map[string]string // registry.Kind.Name -> resolved version
}

// New builds a Transport from the ambient kubeconfig, honoring
// --kubeconfig and KUBECONFIG exactly as the teacher's buildConfig did,
// generalized to accept an explicit starting context.
func New(log logr.Logger, kubeconfigPath, context string) (*Transport, error) {
	t := &Transport{
		kubeconfig:      kubeconfigPath,
		context:         context,
		log:             log,
		resolvedVersion: make(map[string]string),
	}
	if err := t.connect(); err != nil {
		return nil, err
	}
	return t, nil
}

// NewWithClient builds a Transport around an already-constructed dynamic
// client, bypassing kubeconfig loading. Used by tests with
// k8s.io/client-go/dynamic/fake.
func NewWithClient(client dynamic.Interface) *Transport {
	return &Transport{client: client, resolvedVersion: make(map[string]string)}
}

func (t *Transport) connect() error {
	cfg, err := t.buildConfig()
	if err != nil {
		return fmt.Errorf("building cluster config: %w", err)
	}
	client, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return fmt.Errorf("building dynamic client: %w", err)
	}

	t.mu.Lock()
	t.restCfg = cfg
	t.client = client
	t.resolvedVersion = make(map[string]string)
	t.mu.Unlock()
	return nil
}

func (t *Transport) buildConfig() (*rest.Config, error) {
	if t.kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		if env := os.Getenv("KUBECONFIG"); env != "" {
			t.kubeconfig = env
		} else {
			home, _ := os.UserHomeDir()
			t.kubeconfig = home + "/.kube/config"
		}
	}

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: t.kubeconfig}
	overrides := &clientcmd.ConfigOverrides{}
	if t.context != "" {
		overrides.CurrentContext = t.context
	}
	return clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
}

// ListContexts returns every context name declared in the kubeconfig.
func (t *Transport) ListContexts() ([]string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if t.kubeconfig != "" {
		rules.ExplicitPath = t.kubeconfig
	}
	raw, err := rules.Load()
	if err != nil {
		return nil, clierr.Wrap(err)
	}
	names := make([]string, 0, len(raw.Contexts))
	for name := range raw.Contexts {
		names = append(names, name)
	}
	return names, nil
}

// CurrentContext returns the active context name, "default" if the
// kubeconfig has none set, as the teacher's getCurrentContext did.
func (t *Transport) CurrentContext() string {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if t.kubeconfig != "" {
		rules.ExplicitPath = t.kubeconfig
	}
	cfg := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{})
	raw, err := cfg.RawConfig()
	if err != nil {
		return "unknown"
	}
	if raw.CurrentContext == "" {
		return "default"
	}
	return raw.CurrentContext
}

// SwitchContext reconnects using a different kubeconfig context. Every
// previously issued ApiHandle becomes stale; callers (the Watcher Pool,
// via the UI Coordinator) must re-subscribe.
func (t *Transport) SwitchContext(ctx context.Context, name string) error {
	t.context = name
	return t.connect()
}

// DynamicAPI resolves the GVR for kind, trying declared versions in order
// until one succeeds on a no-op Get-like probe, and returns a handle
// scoped per scope. The resolved version is cached for the lifetime of
// the Transport (cleared on SwitchContext).
func (t *Transport) DynamicAPI(ctx context.Context, kind registry.Kind, scope Scope) (ApiHandle, error) {
	t.mu.RLock()
	client := t.client
	version, cached := t.resolvedVersion[kind.Name]
	t.mu.RUnlock()

	ns := ""
	if kind.Namespaced && !scope.All {
		ns = scope.Namespace
	}

	if cached {
		gvr := schema.GroupVersionResource{Group: kind.Group, Version: version, Resource: kind.Plural}
		return ApiHandle{client: client, gvr: gvr, namespace: ns}, nil
	}

	var lastErr error
	for _, v := range kind.Versions {
		gvr := schema.GroupVersionResource{Group: kind.Group, Version: v, Resource: kind.Plural}
		h := ApiHandle{client: client, gvr: gvr, namespace: ns}
		_, err := h.List(ctx)
		if err == nil {
			t.mu.Lock()
			t.resolvedVersion[kind.Name] = v
			t.mu.Unlock()
			return h, nil
		}
		lastErr = err
		if clierr.Classify(err) != clierr.NotFound {
			// a real error (auth, network) at this version is the
			// resolution failure; no point trying fallback versions.
			return ApiHandle{}, err
		}
	}
	return ApiHandle{}, lastErr
}
