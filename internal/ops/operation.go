// Package ops is the Operation Dispatcher: a small registry of mutating
// operations, each spawned as an independent goroutine whose outcome is
// delivered over a one-shot result channel. Grounded on the
// Executor/Registry interface shape in
// pkg/remedy/{executor,registry}.go, generalized from shelling out to
// kubectl/flux to calling the Cluster Transport's Patch/Delete directly,
// per the requirement that operations mutate via the Platform API rather
// than a subprocess.
package ops

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/dgunzy/flux9s/internal/clierr"
	"github.com/dgunzy/flux9s/internal/model"
	"github.com/dgunzy/flux9s/internal/registry"
	"github.com/dgunzy/flux9s/internal/transport"
)

// Operation is the interface every builtin (and future) mutating action
// implements.
type Operation interface {
	Name() string
	ApplicableTo(kind registry.Kind, entry model.ResourceEntry) bool
	RequiresConfirmation() bool
	Execute(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, opts model.OperationOptions) model.OperationResult
}

// Registry holds every known Operation keyed by name.
type Registry struct {
	ops map[string]Operation
}

// DefaultRegistry returns a Registry pre-populated with the five builtin
// operations from spec §4.5.
func DefaultRegistry() *Registry {
	r := &Registry{ops: make(map[string]Operation)}
	r.Register(suspendOp{})
	r.Register(resumeOp{})
	r.Register(reconcileOp{})
	r.Register(reconcileWithSourceOp{})
	r.Register(deleteOp{})
	return r
}

// Register adds or replaces an operation.
func (r *Registry) Register(op Operation) { r.ops[op.Name()] = op }

// Get looks up an operation by name.
func (r *Registry) Get(name string) (Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

const defaultTimeout = 30 * time.Second

var nextRequestID atomic.Uint64

// NewRequest allocates an OperationRequest with a fresh ID and the
// default 30s timeout unless opts overrides it.
func NewRequest(opName string, key model.ResourceKey, opts model.OperationOptions) model.OperationRequest {
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	return model.OperationRequest{
		ID:      nextRequestID.Add(1),
		OpName:  opName,
		Key:     key,
		Options: opts,
	}
}

// Dispatch spawns req on its own goroutine and returns a channel that
// receives exactly one OperationResult, per spec §4.5/§8. The caller
// (the UI Coordinator) owns registering the result channel in its
// pending-operations map; Dispatch itself has no knowledge of that map.
func Dispatch(ctx context.Context, reg *Registry, t *transport.Transport, req model.OperationRequest, kind registry.Kind, scope transport.Scope) <-chan model.OperationResult {
	log := logr.FromContextOrDiscard(ctx)
	resultCh := make(chan model.OperationResult, 1)

	op, ok := reg.Get(req.OpName)
	if !ok {
		// unknown op name: ignored silently per dispatch rule 1, but the
		// caller still expects a channel, so report Unknown rather than
		// leaving it unfulfilled.
		log.Error(nil, "no such operation", "op", req.OpName, "key", req.Key.String())
		resultCh <- model.OperationResult{RequestID: req.ID, Outcome: model.OutcomeFailure, Failure: model.FailureUnknown, Message: "no such operation"}
		close(resultCh)
		return resultCh
	}

	go func() {
		defer close(resultCh)
		opCtx, cancel := context.WithTimeout(ctx, req.Options.Timeout)
		defer cancel()

		log.V(0).Info("dispatching operation", "op", req.OpName, "key", req.Key.String())
		result := op.Execute(opCtx, t, req.Key, kind, scope, req.Options)
		result.RequestID = req.ID
		if opCtx.Err() != nil && result.Outcome == model.OutcomeSuccess {
			result = model.OperationResult{RequestID: req.ID, Outcome: model.OutcomeFailure, Failure: model.FailureTimeout, Message: clierr.Message(clierr.Timeout, req.Key.Kind, req.Key.Name)}
		}
		if result.Outcome == model.OutcomeFailure {
			log.Error(nil, "operation failed", "op", req.OpName, "key", req.Key.String(), "message", result.Message)
		} else {
			log.V(0).Info("operation succeeded", "op", req.OpName, "key", req.Key.String())
		}
		resultCh <- result
	}()

	return resultCh
}

func mergePatch(ctx context.Context, t *transport.Transport, key model.ResourceKey, kind registry.Kind, scope transport.Scope, patch map[string]interface{}) model.OperationResult {
	body, err := json.Marshal(patch)
	if err != nil {
		return failureResult(key, clierr.Internal, err)
	}
	handle, err := t.DynamicAPI(ctx, kind, scope)
	if err != nil {
		return failureResult(key, clierr.Classify(err), err)
	}
	if _, err := handle.Patch(ctx, key.Name, body); err != nil {
		return failureResult(key, clierr.Classify(err), err)
	}
	return model.OperationResult{Outcome: model.OutcomeSuccess}
}

func failureResult(key model.ResourceKey, k clierr.Kind, err error) model.OperationResult {
	return model.OperationResult{
		Outcome: model.OutcomeFailure,
		Failure: toFailureKind(k),
		Message: clierr.Message(k, key.Kind, key.Name),
	}
}

func toFailureKind(k clierr.Kind) model.FailureKind {
	switch k {
	case clierr.NotFound:
		return model.FailureNotFound
	case clierr.Conflict:
		return model.FailureConflict
	case clierr.Forbidden, clierr.Unauthorized:
		return model.FailureForbidden
	case clierr.Network:
		return model.FailureNetwork
	case clierr.Timeout:
		return model.FailureTimeout
	default:
		return model.FailureUnknown
	}
}
