package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/dgunzy/flux9s/internal/clierr"
	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/transport"
)

// ReconcileAnnotation is the annotation key the reconcile operation
// refreshes. The source resources use this name today; a future
// platform version renaming it is out of scope, per spec §9.
const ReconcileAnnotation = "reconcile.fluxcd.io/requestedAt"

type suspendOp struct{}

func (suspendOp) Name() string { return "suspend" }
func (suspendOp) ApplicableTo(kind registry.Kind, _ model.ResourceEntry) bool {
	return kind.SupportsSuspend
}
func (suspendOp) RequiresConfirmation() bool { return false }
func (suspendOp) Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, _ model.OperationOptions) model.OperationResult {
	res := mergePatch(ctx, t, key, kind, scope, map[string]interface{}{"spec": map[string]interface{}{"suspend": true}})
	if res.Outcome == model.OutcomeSuccess {
		res.Message = fmt.Sprintf("Suspended %s/%s", key.Kind, key.Name)
	}
	return res
}

type resumeOp struct{}

func (resumeOp) Name() string { return "resume" }
func (resumeOp) ApplicableTo(kind registry.Kind, _ model.ResourceEntry) bool {
	return kind.SupportsSuspend
}
func (resumeOp) RequiresConfirmation() bool { return false }
func (resumeOp) Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, _ model.OperationOptions) model.OperationResult {
	res := mergePatch(ctx, t, key, kind, scope, map[string]interface{}{"spec": map[string]interface{}{"suspend": false}})
	if res.Outcome == model.OutcomeSuccess {
		res.Message = fmt.Sprintf("Resumed %s/%s", key.Kind, key.Name)
	}
	return res
}

type reconcileOp struct{}

func (reconcileOp) Name() string { return "reconcile" }
func (reconcileOp) ApplicableTo(kind registry.Kind, entry model.ResourceEntry) bool {
	return kind.SupportsReconcile && !entry.Suspended
}
func (reconcileOp) RequiresConfirmation() bool { return false }
func (reconcileOp) Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, opts model.OperationOptions) model.OperationResult {
	if res, ok := reconcileChecked(ctx, t, key, kind, scope); !ok {
		return res
	}
	return reconcileNow(ctx, t, key, kind, scope)
}

// reconcileChecked re-fetches the object and refuses (ok=false) when its
// spec.suspend is true. reconcileOp runs it even though ApplicableTo
// already excludes suspended entries, as a defense-in-depth check against
// the live object. reconcile-with-source reaches it only for the primary
// object: the source object is reconciled through reconcileNow, without
// this check.
func reconcileChecked(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope) (model.OperationResult, bool) {
	handle, err := t.DynamicAPI(ctx, kind, scope)
	if err != nil {
		return failureResult(key, clierr.Classify(err), err), false
	}
	obj, err := handle.Get(ctx, key.Name)
	if err != nil {
		return failureResult(key, clierr.Classify(err), err), false
	}
	if suspend, found, _ := nestedBool(obj.Object, "spec", "suspend"); found && suspend {
		return model.OperationResult{Outcome: model.OutcomeFailure, Failure: model.FailureUnknown, Message: "cannot reconcile suspended resource"}, false
	}
	return model.OperationResult{}, true
}

func reconcileNow(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope) model.OperationResult {
	now := time.Now().UTC().Format(time.RFC3339)
	res := mergePatch(ctx, t, key, kind, scope, map[string]interface{}{
		"metadata": map[string]interface{}{
			"annotations": map[string]interface{}{ReconcileAnnotation: now},
		},
	})
	if res.Outcome == model.OutcomeSuccess {
		res.Message = fmt.Sprintf("Reconciliation requested for %s/%s", key.Kind, key.Name)
	}
	return res
}

type reconcileWithSourceOp struct{}

func (reconcileWithSourceOp) Name() string { return "reconcile-with-source" }
func (reconcileWithSourceOp) ApplicableTo(kind registry.Kind, entry model.ResourceEntry) bool {
	return kind.SupportsReconcileWithSrc && !entry.Suspended
}
func (reconcileWithSourceOp) RequiresConfirmation() bool { return false }
func (reconcileWithSourceOp) Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, opts model.OperationOptions) model.OperationResult {
	srcKey, srcKind, ok, err := resolveSourceRef(ctx, t, key, kind, scope)
	if err != nil {
		return failureResult(key, clierr.Classify(err), err)
	}
	if ok {
		srcScope := scope
		if srcKind.Namespaced {
			srcScope = transport.Scope{Namespace: srcKey.Namespace}
		}
		if res := reconcileNow(ctx, t, srcKey, srcKind, srcScope); res.Outcome == model.OutcomeFailure {
			return res
		}
	}
	return reconcileOp{}.Execute(ctx, t, key, kind, scope, opts)
}

type deleteOp struct{}

func (deleteOp) Name() string { return "delete" }
func (deleteOp) ApplicableTo(registry.Kind, model.ResourceEntry) bool { return true }
func (deleteOp) RequiresConfirmation() bool                            { return true }
func (deleteOp) Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, _ model.OperationOptions) model.OperationResult {
	handle, err := t.DynamicAPI(ctx, kind, scope)
	if err != nil {
		return failureResult(key, clierr.Classify(err), err)
	}
	if err := handle.Delete(ctx, key.Name); err != nil {
		return failureResult(key, clierr.Classify(err), err)
	}
	return model.OperationResult{Outcome: model.OutcomeSuccess, Message: fmt.Sprintf("Deleted %s/%s", key.Kind, key.Name)}
}

// resolveSourceRef fetches the object and extracts spec.sourceRef, used
// by reconcile-with-source to find the upstream object to refresh first.
// Namespace on the ref defaults to the referencing object's own
// namespace, per spec §4.6.
func resolveSourceRef(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope) (model.ResourceKey, registry.Kind, bool, error) {
	handle, err := t.DynamicAPI(ctx, kind, scope)
	if err != nil {
		return model.ResourceKey{}, registry.Kind{}, false, err
	}
	obj, err := handle.Get(ctx, key.Name)
	if err != nil {
		return model.ResourceKey{}, registry.Kind{}, false, err
	}
	refKind, kFound, _ := nestedString(obj.Object, "spec", "sourceRef", "kind")
	refName, nFound, _ := nestedString(obj.Object, "spec", "sourceRef", "name")
	if !kFound || !nFound {
		return model.ResourceKey{}, registry.Kind{}, false, nil
	}
	refNS, nsFound, _ := nestedString(obj.Object, "spec", "sourceRef", "namespace")
	if !nsFound || refNS == "" {
		refNS = key.Namespace
	}
	rk, ok := registry.ByAlias(refKind)
	if !ok {
		return model.ResourceKey{}, registry.Kind{}, false, nil
	}
	return model.ResourceKey{Kind: rk.Name, Namespace: refNS, Name: refName}, rk, true, nil
}
