// Package clierr classifies transport and operation errors into the
// stable taxonomy flux9s' components key their behavior on (retry vs.
// terminate, log vs. suppress, user-visible template).
package clierr

import (
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Kind is the stable error taxonomy used throughout the watch-and-state
// engine and the operation dispatcher.
type Kind string

const (
	NotFound     Kind = "NotFound"
	Unauthorized Kind = "Unauthorized"
	Forbidden    Kind = "Forbidden"
	Conflict     Kind = "Conflict"
	Network      Kind = "Network"
	Timeout      Kind = "Timeout"
	Throttled    Kind = "Throttled"
	Invalid      Kind = "Invalid"
	Internal     Kind = "Internal"
)

// Error wraps an underlying error with its classified Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Classify inspects err and returns its Kind, preferring the
// apimachinery status reason when the error carries one and falling back
// to message sniffing for transport-level failures that never reach a
// typed apierrors.StatusError (dial errors, proxy failures).
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	switch {
	case apierrors.IsNotFound(err):
		return NotFound
	case apierrors.IsUnauthorized(err):
		return Unauthorized
	case apierrors.IsForbidden(err):
		return Forbidden
	case apierrors.IsConflict(err):
		return Conflict
	case apierrors.IsTooManyRequests(err):
		return Throttled
	case apierrors.IsTimeout(err), apierrors.IsServerTimeout(err):
		return Timeout
	case apierrors.IsInvalid(err), apierrors.IsBadRequest(err):
		return Invalid
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no matches for kind"), strings.Contains(msg, "the server could not find"):
		return NotFound
	case strings.Contains(msg, "forbidden"), strings.Contains(msg, "access denied"):
		return Forbidden
	case strings.Contains(msg, "unauthorized"):
		return Unauthorized
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "i/o timeout"):
		return Timeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "dial tcp"):
		return Network
	}
	return Internal
}

// Wrap classifies err and wraps it as an *Error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Classify(err), Err: err}
}

// Message renders the fixed user-visible template for a failure kind,
// with the object's kind/name interpolated, per the Operation Dispatcher's
// error semantics.
func Message(k Kind, objKind, objName string) string {
	ref := objKind + "/" + objName
	switch k {
	case NotFound:
		return fmt.Sprintf("%s not found", ref)
	case Unauthorized:
		return fmt.Sprintf("not authorized to modify %s", ref)
	case Forbidden:
		return fmt.Sprintf("forbidden: insufficient permissions for %s", ref)
	case Conflict:
		return fmt.Sprintf("%s was modified concurrently, try again", ref)
	case Network:
		return fmt.Sprintf("network error contacting the cluster for %s", ref)
	case Timeout:
		return fmt.Sprintf("timed out waiting for %s", ref)
	case Throttled:
		return fmt.Sprintf("rate limited while updating %s", ref)
	case Invalid:
		return fmt.Sprintf("invalid request for %s", ref)
	default:
		return fmt.Sprintf("unexpected error on %s", ref)
	}
}

// Unwrap returns the underlying error, stripping every wrapper.
func Unwrap(err error) error {
	for {
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return err
		}
		err = unwrapped
	}
}
