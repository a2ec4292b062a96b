package clierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil error", nil, ""},
		{"k8s not found", apierrors.NewNotFound(schema.GroupResource{Resource: "pods"}, "test"), NotFound},
		{"crd absent", errors.New(`no matches for kind "HelmRelease" in version "helm.toolkit.fluxcd.io/v2"`), NotFound},
		{"k8s forbidden", apierrors.NewForbidden(schema.GroupResource{Resource: "pods"}, "test", nil), Forbidden},
		{"forbidden message", errors.New("forbidden: user cannot list pods"), Forbidden},
		{"k8s conflict", apierrors.NewConflict(schema.GroupResource{Resource: "kustomizations"}, "apps", nil), Conflict},
		{"k8s too many requests", apierrors.NewTooManyRequests("slow down", 5), Throttled},
		{"connection refused", errors.New("dial tcp 127.0.0.1:6443: connection refused"), Network},
		{"deadline exceeded", errors.New("context deadline exceeded"), Timeout},
		{"unanticipated", errors.New("something went wrong"), Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil))

	err := Wrap(apierrors.NewNotFound(schema.GroupResource{Resource: "kustomizations"}, "apps"))
	var ce *Error
	assert.ErrorAs(t, err, &ce)
	assert.Equal(t, NotFound, ce.Kind)
}

func TestMessage(t *testing.T) {
	assert.Contains(t, Message(NotFound, "Kustomization", "apps"), "Kustomization/apps")
	assert.Contains(t, Message(Conflict, "HelmRelease", "web"), "modified concurrently")
	assert.Contains(t, Message(Internal, "Bucket", "data"), "unexpected error")
}

func TestUnwrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base)
	assert.Equal(t, base, Unwrap(wrapped))
}
