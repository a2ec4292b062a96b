package main

import (
	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
)

// newLogger builds the ambient structured logger: a zap.Logger wrapped
// as a logr.Logger via zapr, the idiomatic pairing the rest of the
// Kubernetes-controller ecosystem uses (as in Azure/eno's
// logr.FromContextOrDiscard/NewContext threading). debug raises the
// level to capture per-event detail (spec §4.10's V(1)).
func newLogger(debug bool) logr.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return logr.Discard()
	}
	return zapr.NewLogger(zl)
}
