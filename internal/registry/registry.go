// Package registry is the single source of truth for which resource
// kinds flux9s monitors: their group, version(s), plural name, and
// command aliases. No other package hardcodes a GVR — everything else
// consumes this table.
package registry

import "strings"

// All is the static table of every monitored ResourceKind, declared once
// at build time. Order matters only for display defaults; lookups are by
// alias or name.
var All = []Kind{
	{
		Name: "GitRepository", Group: "source.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "gitrepositories", Aliases: []string{"gitrepo", "gitrepos", "gitrepository", "gitrepositories", "git"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "OCIRepository", Group: "source.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "ocirepositories", Aliases: []string{"ocirepo", "ocirepos", "ocirepository", "ocirepositories", "oci"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "HelmRepository", Group: "source.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "helmrepositories", Aliases: []string{"helmrepo", "helmrepos", "helmrepository", "helmrepositories", "hrepo"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "Bucket", Group: "source.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "buckets", Aliases: []string{"bucket", "buckets"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "HelmChart", Group: "source.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "helmcharts", Aliases: []string{"helmchart", "helmcharts", "hc"},
		SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "Kustomization", Group: "kustomize.toolkit.fluxcd.io", Versions: []string{"v1", "v1beta2"},
		Plural: "kustomizations", Aliases: []string{"ks", "kustomization", "kustomizations"},
		SupportsSuspend: true, SupportsReconcile: true, SupportsReconcileWithSrc: true,
		InventoryBearing: true, Namespaced: true,
	},
	{
		Name: "HelmRelease", Group: "helm.toolkit.fluxcd.io", Versions: []string{"v2", "v2beta2", "v2beta1"},
		Plural: "helmreleases", Aliases: []string{"hr", "helmrelease", "helmreleases"},
		SupportsSuspend: true, SupportsReconcile: true, SupportsReconcileWithSrc: true,
		InventoryBearing: true, Namespaced: true,
	},
	{
		Name: "ImageRepository", Group: "image.toolkit.fluxcd.io", Versions: []string{"v1beta2"},
		Plural: "imagerepositories", Aliases: []string{"imagerepo", "imagerepos", "imagerepository", "imagerepositories"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "ImagePolicy", Group: "image.toolkit.fluxcd.io", Versions: []string{"v1beta2"},
		Plural: "imagepolicies", Aliases: []string{"imagepolicy", "imagepolicies", "ipol"},
		Namespaced: true,
	},
	{
		Name: "ImageUpdateAutomation", Group: "image.toolkit.fluxcd.io", Versions: []string{"v1beta2"},
		Plural: "imageupdateautomations", Aliases: []string{"iua", "imageupdateautomation", "imageupdateautomations"},
		SupportsSuspend: true, SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "Alert", Group: "notification.toolkit.fluxcd.io", Versions: []string{"v1beta3", "v1beta2"},
		Plural: "alerts", Aliases: []string{"alert", "alerts"},
		SupportsSuspend: true, Namespaced: true,
	},
	{
		Name: "Provider", Group: "notification.toolkit.fluxcd.io", Versions: []string{"v1beta3", "v1beta2"},
		Plural: "providers", Aliases: []string{"provider", "providers"},
		SupportsSuspend: true, Namespaced: true,
	},
	{
		Name: "Receiver", Group: "notification.toolkit.fluxcd.io", Versions: []string{"v1"},
		Plural: "receivers", Aliases: []string{"receiver", "receivers", "recv"},
		SupportsSuspend: true, Namespaced: true,
	},
	{
		Name: "ResourceSet", Group: "fluxcd.controlplane.io", Versions: []string{"v1"},
		Plural: "resourcesets", Aliases: []string{"rset", "resourceset", "resourcesets"},
		SupportsReconcile: true, InventoryBearing: true, Namespaced: true,
	},
	{
		Name: "ResourceSetInputProvider", Group: "fluxcd.controlplane.io", Versions: []string{"v1"},
		Plural: "resourcesetinputproviders", Aliases: []string{"rsip", "resourcesetinputprovider", "resourcesetinputproviders"},
		SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "FluxInstance", Group: "fluxcd.controlplane.io", Versions: []string{"v1"},
		Plural: "fluxinstances", Aliases: []string{"fi", "fluxinstance", "fluxinstances"},
		SupportsReconcile: true, Namespaced: true,
	},
	{
		Name: "FluxReport", Group: "fluxcd.controlplane.io", Versions: []string{"v1"},
		Plural: "fluxreports", Aliases: []string{"fr", "fluxreport", "fluxreports"},
		Namespaced: true,
	},
	{
		Name: "Application", Group: "argoproj.io", Versions: []string{"v1alpha1"},
		Plural: "applications", Aliases: []string{"app", "argoapp", "application", "applications"},
		Namespaced: true,
	},
}

// Kind is the registry's ResourceKind shape. Kept distinct from
// model.ResourceKind so the registry package has no dependency on the
// store/model package; the rest of the module uses Kind directly, and no
// conversion between the two types exists.
type Kind struct {
	Name     string
	Group    string
	Versions []string
	Plural   string
	Aliases  []string

	SupportsSuspend          bool
	SupportsReconcile        bool
	SupportsReconcileWithSrc bool
	InventoryBearing         bool
	Namespaced               bool
}

var byAlias map[string]*Kind

func init() {
	byAlias = make(map[string]*Kind, len(All)*2)
	for i := range All {
		k := &All[i]
		byAlias[strings.ToLower(k.Name)] = k
		for _, a := range k.Aliases {
			byAlias[strings.ToLower(a)] = k
		}
	}
}

// ByAlias looks up a ResourceKind by canonical name or any declared
// alias, case-insensitively.
func ByAlias(s string) (Kind, bool) {
	k, ok := byAlias[strings.ToLower(s)]
	if !ok {
		return Kind{}, false
	}
	return *k, true
}

// GVK returns the group, primary version, and plural resource name for a
// kind.
func GVK(k Kind) (group, version, plural string) {
	return k.Group, k.Version(), k.Plural
}

// Version returns the primary (first declared) API version.
func (k Kind) Version() string {
	if len(k.Versions) == 0 {
		return ""
	}
	return k.Versions[0]
}
